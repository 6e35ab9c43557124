// Package refprice implements the Reference-Price Fetcher described in
// spec.md §4.H: a six-stage fallback across futures/spot/aggregated
// sources, each with a fixed confidence, cached per (source, symbol).
package refprice

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sony/gobreaker"

	kimpgate "github.com/kimgate/kimpgate"
)

// Confidence values per source, highest first: futures > spot > aggregated.
const (
	ConfidenceFuturesAlpha = 0.95
	ConfidenceFuturesBeta  = 0.90
	ConfidenceSpotAlpha    = 0.80
	ConfidenceSpotBeta     = 0.75
	ConfidenceSpotGamma    = 0.70
	ConfidenceAggregated   = 0.55
)

// Quote is one reference-price resolution.
type Quote struct {
	PriceUSD    float64
	Source      kimpgate.ReferenceSource
	Confidence  float64
	Volume24hUSD *float64
}

// FetchFunc is a single source lookup. symbol is the canonical market
// symbol (e.g. "BTC"); a FetchFunc may return an error for "no quote".
type FetchFunc func(ctx context.Context, symbol string) (price float64, volume24h *float64, err error)

type stage struct {
	source     kimpgate.ReferenceSource
	confidence float64
	fetch      FetchFunc
	// breaker is independent per stage: a persistently-failing source
	// (e.g. the aggregated stage's upstream going down) must not
	// short-circuit a separate, healthy source further up the chain.
	breaker *gobreaker.CircuitBreaker
}

// Fetcher runs the six-stage fallback and caches results per
// (source, symbol) with a bounded LRU, per Open Question guidance that a
// multi-key cache (unlike FX's single KRW/USD rate) justifies an LRU
// rather than a single mutex-guarded struct.
type Fetcher struct {
	stages []stage
	cache  *lru.Cache[string, Quote]
}

// New builds a Fetcher. Stages with a nil FetchFunc are skipped.
func New(futuresAlpha, futuresBeta, spotAlpha, spotBeta, spotGamma, aggregated FetchFunc) *Fetcher {
	cache, _ := lru.New[string, Quote](1024)
	return &Fetcher{
		stages: []stage{
			{kimpgate.RefFuturesAlpha, ConfidenceFuturesAlpha, futuresAlpha, newBreaker("refprice-futures-alpha")},
			{kimpgate.RefFuturesBeta, ConfidenceFuturesBeta, futuresBeta, newBreaker("refprice-futures-beta")},
			{kimpgate.RefSpotAlpha, ConfidenceSpotAlpha, spotAlpha, newBreaker("refprice-spot-alpha")},
			{kimpgate.RefSpotBeta, ConfidenceSpotBeta, spotBeta, newBreaker("refprice-spot-beta")},
			{kimpgate.RefSpotGamma, ConfidenceSpotGamma, spotGamma, newBreaker("refprice-spot-gamma")},
			{kimpgate.RefAggregated, ConfidenceAggregated, aggregated, newBreaker("refprice-aggregated")},
		},
		cache: cache,
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: name,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}

// Fetch resolves symbol's global USD reference price, trying each stage
// in order and caching the first success.
func (f *Fetcher) Fetch(ctx context.Context, symbol string) (Quote, error) {
	for _, st := range f.stages {
		if st.fetch == nil {
			continue
		}
		result, err := st.breaker.Execute(func() (any, error) {
			price, vol, err := st.fetch(ctx, symbol)
			if err != nil {
				return nil, err
			}
			return Quote{PriceUSD: price, Source: st.source, Confidence: st.confidence, Volume24hUSD: vol}, nil
		})
		if err != nil {
			continue
		}
		quote := result.(Quote)
		f.cache.Add(cacheKey(st.source, symbol), quote)
		return quote, nil
	}
	return Quote{}, fmt.Errorf("refprice: all sources exhausted for %q", symbol)
}

// Cached returns the most recent cached quote for (source, symbol), if any.
func (f *Fetcher) Cached(source kimpgate.ReferenceSource, symbol string) (Quote, bool) {
	return f.cache.Get(cacheKey(source, symbol))
}

func cacheKey(source kimpgate.ReferenceSource, symbol string) string {
	return source.String() + ":" + symbol
}
