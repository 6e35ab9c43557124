// Package fx implements the FX Resolver described in spec.md §4.G: a
// six-stage KRW-per-USD fallback chain with a short-TTL cache and
// durable snapshot logging.
package fx

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	kimpgate "github.com/kimgate/kimpgate"
	"github.com/kimgate/kimpgate/internal/storage"
)

// DefaultCacheTTL is how long a successful resolution may be reused by
// the fallback chain's cache stage.
const DefaultCacheTTL = 300 * time.Second

// DefaultHardcodedFallback is the last-resort rate when every live
// source and the cache are unavailable.
const DefaultHardcodedFallback = 1350.0

type cachedRate struct {
	rate kimpgate.FXSnapshot
	at   time.Time
	ok   bool
}

// Resolver runs the fallback chain. Each external lookup is a field so
// tests can substitute stubs; nil fields are treated as "source
// unavailable" and the chain advances.
type Resolver struct {
	NaverFinance func(ctx context.Context) (float64, error)
	PublicAPI    func(ctx context.Context) (float64, error)
	USDTKRW      func(ctx context.Context) (float64, error) // domestic stablecoin quote
	BTCKRW       func(ctx context.Context) (float64, error)
	BTCUSD       func(ctx context.Context) (float64, error)

	CacheTTL          time.Duration
	HardcodedFallback float64

	w *storage.Writer

	// One breaker per stage: a persistently-failing early stage (e.g.
	// Naver Finance down for maintenance) must not short-circuit an
	// unrelated, healthy later stage (e.g. the BTC-implied cross-rate).
	naverBreaker  *gobreaker.CircuitBreaker
	publicBreaker *gobreaker.CircuitBreaker
	usdtBreaker   *gobreaker.CircuitBreaker
	btcBreaker    *gobreaker.CircuitBreaker

	mu    sync.Mutex
	cache cachedRate
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: name,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}

// New builds a Resolver persisting successful resolutions through w.
func New(w *storage.Writer) *Resolver {
	return &Resolver{
		w:                 w,
		CacheTTL:          DefaultCacheTTL,
		HardcodedFallback: DefaultHardcodedFallback,
		naverBreaker:      newBreaker("fx-naver"),
		publicBreaker:     newBreaker("fx-public-api"),
		usdtBreaker:       newBreaker("fx-usdt-direct"),
		btcBreaker:        newBreaker("fx-btc-implied"),
	}
}

// Resolve runs the fallback chain and always returns a snapshot: unlike
// most I/O in this system, FX resolution is never allowed to return a
// bare error, since the Gate Engine cannot proceed without *some* rate.
func (r *Resolver) Resolve(ctx context.Context) kimpgate.FXSnapshot {
	if snap, ok := r.tryStage(ctx, r.naverBreaker, kimpgate.FXNaver, r.NaverFinance); ok {
		return r.finish(snap)
	}
	if snap, ok := r.tryStage(ctx, r.publicBreaker, kimpgate.FXPublicAPI, r.PublicAPI); ok {
		return r.finish(snap)
	}
	if snap, ok := r.tryStage(ctx, r.usdtBreaker, kimpgate.FXUSDTDirect, r.USDTKRW); ok {
		return r.finish(snap)
	}
	if snap, ok := r.tryBTCImplied(ctx); ok {
		return r.finish(snap)
	}
	if snap, ok := r.tryCache(); ok {
		return snap // already persisted when first resolved; don't re-log
	}

	snap := kimpgate.FXSnapshot{Ts: now(), RateKRWPerUSD: r.fallbackRate(), Source: kimpgate.FXHardcodedFallback}
	return r.persist(snap)
}

func (r *Resolver) fallbackRate() float64 {
	if r.HardcodedFallback == 0 {
		return DefaultHardcodedFallback
	}
	return r.HardcodedFallback
}

func (r *Resolver) tryStage(ctx context.Context, breaker *gobreaker.CircuitBreaker, source kimpgate.FXSource, fetch func(context.Context) (float64, error)) (kimpgate.FXSnapshot, bool) {
	if fetch == nil {
		return kimpgate.FXSnapshot{}, false
	}
	result, err := breaker.Execute(func() (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		return kimpgate.FXSnapshot{}, false
	}
	rate := result.(float64)
	if rate <= 0 {
		return kimpgate.FXSnapshot{}, false
	}
	return kimpgate.FXSnapshot{Ts: now(), RateKRWPerUSD: rate, Source: source}, true
}

func (r *Resolver) tryBTCImplied(ctx context.Context) (kimpgate.FXSnapshot, bool) {
	if r.BTCKRW == nil || r.BTCUSD == nil {
		return kimpgate.FXSnapshot{}, false
	}
	result, err := r.btcBreaker.Execute(func() (any, error) {
		btcKRW, err := r.BTCKRW(ctx)
		if err != nil {
			return nil, err
		}
		btcUSD, err := r.BTCUSD(ctx)
		if err != nil {
			return nil, err
		}
		return [2]float64{btcKRW, btcUSD}, nil
	})
	if err != nil {
		return kimpgate.FXSnapshot{}, false
	}
	pair := result.([2]float64)
	if pair[1] <= 0 {
		return kimpgate.FXSnapshot{}, false
	}
	rate := pair[0] / pair[1]
	return kimpgate.FXSnapshot{Ts: now(), RateKRWPerUSD: rate, Source: kimpgate.FXBTCImplied, BTCKRW: &pair[0], BTCUSD: &pair[1]}, true
}

func (r *Resolver) tryCache() (kimpgate.FXSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.cache.ok {
		return kimpgate.FXSnapshot{}, false
	}
	if now().Sub(r.cache.at) > r.CacheTTL {
		return kimpgate.FXSnapshot{}, false
	}
	snap := r.cache.rate
	snap.Source = kimpgate.FXCached
	return snap, true
}

// finish updates the cache with a live resolution and persists the
// snapshot, then returns it. Only called for stages that queried a real
// source; the hardcoded-fallback path uses persist instead, since
// caching it would let a later call — once every live stage and the
// cache have also expired — relabel the same untrustworthy rate as
// FXCached, a source the Gate Engine's watch-only check does not trip
// on.
func (r *Resolver) finish(snap kimpgate.FXSnapshot) kimpgate.FXSnapshot {
	r.mu.Lock()
	r.cache = cachedRate{rate: snap, at: now(), ok: true}
	r.mu.Unlock()
	return r.persist(snap)
}

// persist logs snap without touching the cache.
func (r *Resolver) persist(snap kimpgate.FXSnapshot) kimpgate.FXSnapshot {
	r.w.Enqueue(
		`INSERT INTO fx_snapshots (ts, rate_krw_per_usd, source, btc_krw, btc_usd, usdt_krw_upbit, usdt_krw_bithumb, real_fx_rate) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		[]any{snap.Ts.Unix(), snap.RateKRWPerUSD, snap.Source.String(), snap.BTCKRW, snap.BTCUSD, snap.USDTKRWUpbit, snap.USDTKRWBithumb, snap.RealFXRate},
		storage.Critical,
	)
	return snap
}

var now = time.Now
