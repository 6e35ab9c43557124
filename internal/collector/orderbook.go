package collector

import (
	"sort"
	"sync"

	kimpgate "github.com/kimgate/kimpgate"
)

// MaxOrderbookDepth caps the number of price levels retained per side,
// per spec.md §4.D — this is a liquidity cache for cost-model slippage
// walks, not a full order book replica. Overflow evicts the highest
// asks and lowest bids first, keeping the levels nearest the spread.
const MaxOrderbookDepth = 50

// OrderbookCache holds the latest Orderbook per market for one exchange.
// Safe for concurrent reads from the Gate Engine while the owning
// collector goroutine writes.
type OrderbookCache struct {
	mu    sync.RWMutex
	books map[string]kimpgate.Orderbook
}

// NewOrderbookCache creates an empty cache.
func NewOrderbookCache() *OrderbookCache {
	return &OrderbookCache{books: make(map[string]kimpgate.Orderbook)}
}

// SetSnapshot replaces a market's book wholesale, used by snapshot-style
// feeds (Upbit) and by the delta feed (Bithumb) after each applied batch.
func (c *OrderbookCache) SetSnapshot(ob kimpgate.Orderbook) {
	capLevels(&ob)
	c.mu.Lock()
	c.books[ob.Market] = ob
	c.mu.Unlock()
}

// Get returns the last known book for market, and whether one exists.
func (c *OrderbookCache) Get(market string) (kimpgate.Orderbook, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ob, ok := c.books[market]
	return ob, ok
}

// Invalidate drops a market's cached book, used when a delta feed loses
// sync and must wait for a fresh snapshot.
func (c *OrderbookCache) Invalidate(market string) {
	c.mu.Lock()
	delete(c.books, market)
	c.mu.Unlock()
}

// Qualify builds the `EXCHANGE:MARKET` key spec.md §4.D uses for both the
// Second Bucket and the orderbook cache, keeping identically-named
// markets on different exchanges (e.g. "KRW-XYZ" on Upbit vs. "XYZ_KRW"
// on Bithumb) from colliding.
func Qualify(exchange, market string) string {
	return exchange + ":" + market
}

func capLevels(ob *kimpgate.Orderbook) {
	sort.Slice(ob.Asks, func(i, j int) bool { return ob.Asks[i].Price < ob.Asks[j].Price })
	sort.Slice(ob.Bids, func(i, j int) bool { return ob.Bids[i].Price > ob.Bids[j].Price })
	if len(ob.Asks) > MaxOrderbookDepth {
		ob.Asks = ob.Asks[:MaxOrderbookDepth]
	}
	if len(ob.Bids) > MaxOrderbookDepth {
		ob.Bids = ob.Bids[:MaxOrderbookDepth]
	}
}
