package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	kimpgate "github.com/kimgate/kimpgate"
)

// MetadataProvider looks up canonical identity and chain bindings for a
// symbol from an external catalog. A lookup failure is never fatal: the
// registry falls back to a minimal (symbol-only) row, matching the
// original token registry's "insert with whatever we have" bootstrap
// behaviour.
type MetadataProvider interface {
	Lookup(ctx context.Context, symbol string) (kimpgate.TokenIdentity, error)
}

// CoinGeckoProvider queries CoinGecko's public markets/search endpoints.
// Disabled (returns ErrDisabled) when no API key is configured, since the
// free tier's aggressive rate limiting makes it unsuitable as a hard
// dependency on the listing-detection hot path.
type CoinGeckoProvider struct {
	APIKey     string
	HTTPClient *http.Client
}

// ErrDisabled is returned by CoinGeckoProvider.Lookup when APIKey is empty.
var ErrDisabled = fmt.Errorf("registry: metadata provider disabled (no API key configured)")

// NewCoinGeckoProvider builds a provider reading its key from the
// METADATA_API_KEY environment variable, per spec.md §7's "best-effort,
// optional external enrichment" note for the Token Registry.
func NewCoinGeckoProvider() *CoinGeckoProvider {
	return &CoinGeckoProvider{
		APIKey:     os.Getenv("METADATA_API_KEY"),
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	}
}

type coinGeckoSearchResponse struct {
	Coins []struct {
		ID     string `json:"id"`
		Symbol string `json:"symbol"`
		Name   string `json:"name"`
	} `json:"coins"`
}

// Lookup resolves symbol via CoinGecko's search endpoint. It returns only
// the canonical id and display name; chain bindings require a second,
// coin-specific call this best-effort path does not make.
func (p *CoinGeckoProvider) Lookup(ctx context.Context, symbol string) (kimpgate.TokenIdentity, error) {
	if p.APIKey == "" {
		return kimpgate.TokenIdentity{}, ErrDisabled
	}

	url := fmt.Sprintf("https://api.coingecko.com/api/v3/search?query=%s", symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return kimpgate.TokenIdentity{}, err
	}
	req.Header.Set("x-cg-demo-api-key", p.APIKey)

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return kimpgate.TokenIdentity{}, fmt.Errorf("registry: coingecko search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return kimpgate.TokenIdentity{}, fmt.Errorf("registry: coingecko search: status %d", resp.StatusCode)
	}

	var parsed coinGeckoSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return kimpgate.TokenIdentity{}, fmt.Errorf("registry: decode coingecko response: %w", err)
	}

	for _, coin := range parsed.Coins {
		if strings.EqualFold(coin.Symbol, symbol) {
			return kimpgate.TokenIdentity{Symbol: symbol, CanonicalID: coin.ID, Name: coin.Name}, nil
		}
	}
	return kimpgate.TokenIdentity{}, fmt.Errorf("registry: no coingecko match for %q", symbol)
}

// Bootstrap looks up symbol via provider and registers whatever is
// found; on any error (including ErrDisabled) it registers a minimal,
// symbol-only identity instead of leaving the symbol unknown, per the
// original registry's insert-with-whatever-we-have bootstrap behaviour.
func Bootstrap(ctx context.Context, r *Registry, provider MetadataProvider, symbol string) {
	id, err := provider.Lookup(ctx, symbol)
	if err != nil {
		r.Register(kimpgate.TokenIdentity{Symbol: symbol})
		return
	}
	r.Register(id)
}
