package listing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// catalogRateLimit caps catalog polls at once per second, well under
// either exchange's published REST rate limit, since the poller calls
// FetchCatalog on a fixed interval regardless of backoff state.
const catalogRateLimit = rate.Limit(1)

// newCatalogBreaker builds the per-exchange breaker catalog fetchers
// wrap their HTTP call in, matching the external fallback chains in
// internal/fx and internal/refprice.
func newCatalogBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: name,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}

// UpbitCatalog fetches Upbit's full market list, matching the
// market_monitor's 30s /v1/market/all diff described in spec.md §4.F.
type UpbitCatalog struct {
	HTTPClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
}

// NewUpbitCatalog builds a catalog fetcher with a conservative timeout,
// since a stuck catalog fetch must never block the listing poll loop.
func NewUpbitCatalog() *UpbitCatalog {
	return &UpbitCatalog{
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(catalogRateLimit, 1),
		breaker:    newCatalogBreaker("catalog-upbit"),
	}
}

func (c *UpbitCatalog) Name() string { return "upbit" }

type upbitMarketEntry struct {
	Market string `json:"market"`
}

// FetchCatalog returns the set of KRW-quoted symbols currently listed.
func (c *UpbitCatalog) FetchCatalog(ctx context.Context) (map[string]bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	result, err := c.breaker.Execute(func() (any, error) {
		return c.fetch(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.(map[string]bool), nil
}

func (c *UpbitCatalog) fetch(ctx context.Context) (map[string]bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.upbit.com/v1/market/all", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing: upbit market/all: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing: upbit market/all: status %d", resp.StatusCode)
	}

	var entries []upbitMarketEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("listing: decode upbit market/all: %w", err)
	}

	out := make(map[string]bool, len(entries))
	for _, e := range entries {
		if symbol, ok := strings.CutPrefix(e.Market, "KRW-"); ok {
			out[symbol] = true
		}
	}
	return out, nil
}

// BithumbCatalog fetches Bithumb's full KRW ticker list
// (/public/ticker/ALL_KRW) for the catalog diff described in spec.md
// §4.F; the orchestrator polls it at the same ListingPollInterval as
// UpbitCatalog.
type BithumbCatalog struct {
	HTTPClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
}

// NewBithumbCatalog builds a catalog fetcher with a conservative timeout.
func NewBithumbCatalog() *BithumbCatalog {
	return &BithumbCatalog{
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(catalogRateLimit, 1),
		breaker:    newCatalogBreaker("catalog-bithumb"),
	}
}

func (c *BithumbCatalog) Name() string { return "bithumb" }

type bithumbTickerAllResponse struct {
	Status string                     `json:"status"`
	Data   map[string]json.RawMessage `json:"data"`
}

// FetchCatalog returns the set of symbols currently listed. Bithumb's
// ALL_KRW response mixes per-symbol objects with a "date" scalar field
// in the same map, so non-object entries are skipped rather than
// treated as symbols.
func (c *BithumbCatalog) FetchCatalog(ctx context.Context) (map[string]bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	result, err := c.breaker.Execute(func() (any, error) {
		return c.fetch(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.(map[string]bool), nil
}

func (c *BithumbCatalog) fetch(ctx context.Context) (map[string]bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.bithumb.com/public/ticker/ALL_KRW", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing: bithumb ticker/ALL_KRW: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing: bithumb ticker/ALL_KRW: status %d", resp.StatusCode)
	}

	var parsed bithumbTickerAllResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("listing: decode bithumb ticker/ALL_KRW: %w", err)
	}
	if parsed.Status != "0000" {
		return nil, fmt.Errorf("listing: bithumb ticker/ALL_KRW: status field %q", parsed.Status)
	}

	out := make(map[string]bool, len(parsed.Data))
	for symbol, raw := range parsed.Data {
		if symbol == "date" {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err != nil {
			continue
		}
		out[symbol] = true
	}
	return out, nil
}
