package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	kimpgate "github.com/kimgate/kimpgate"
	"github.com/kimgate/kimpgate/internal/bucket"
)

// bithumbSubscribeFrame mirrors Bithumb's subscription envelope.
type bithumbSubscribeFrame struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
	TickTypes []string `json:"tickTypes,omitempty"`
}

type bithumbTradeMessage struct {
	Type    string `json:"type"`
	Content struct {
		Symbol      string `json:"symbol"`
		ContPrice   string `json:"contPrice"`
		ContQty     string `json:"contQty"`
		ContDtm     string `json:"contDtm"` // "YYYY-MM-DD HH:MM:SS.sss"
	} `json:"content"`
}

// bithumbOrderbookMessage is Bithumb's incremental orderbook-depth push:
// each list entry is a delta (price/qty/side/total), qty=0 meaning
// "remove this level".
type bithumbOrderbookMessage struct {
	Type    string `json:"type"`
	Content struct {
		List []struct {
			Symbol    string `json:"symbol"`
			OrderType string `json:"orderType"` // "ask" | "bid"
			Price     string `json:"price"`
			Quantity  string `json:"quantity"`
		} `json:"list"`
	} `json:"content"`
}

// Bithumb implements Exchange for Bithumb's trade+orderbook-depth stream.
// Unlike Upbit, Bithumb's orderbook feed is delta-based: a reconnect must
// invalidate the cache and wait for enough deltas to rebuild a usable
// book (spec.md §4.D).
type Bithumb struct {
	mu     sync.Mutex
	staged map[string]kimpgate.Orderbook

	Bucket    *bucket.SecondBucket
	Orderbook *OrderbookCache
}

// NewBithumb builds a Bithumb collector stream sinking into bucket b and ob.
func NewBithumb(b *bucket.SecondBucket, ob *OrderbookCache) *Bithumb {
	return &Bithumb{staged: make(map[string]kimpgate.Orderbook), Bucket: b, Orderbook: ob}
}

func (bt *Bithumb) Name() string     { return "bithumb" }
func (bt *Bithumb) Endpoint() string { return "wss://pubwss.bithumb.com/pub/ws" }

func (bt *Bithumb) SubscribePayload(markets []string) ([]byte, error) {
	frames := []any{
		bithumbSubscribeFrame{Type: "transaction", Symbols: markets},
		bithumbSubscribeFrame{Type: "orderbookdepth", Symbols: markets},
	}
	return json.Marshal(frames)
}

func (bt *Bithumb) OnMessage(data []byte) error {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("bithumb: decode envelope: %w", err)
	}

	switch probe.Type {
	case "transaction":
		var msg bithumbTradeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("bithumb: decode trade: %w", err)
		}
		price, err := strconv.ParseFloat(msg.Content.ContPrice, 64)
		if err != nil {
			return fmt.Errorf("bithumb: bad trade price: %w", err)
		}
		qty, err := strconv.ParseFloat(msg.Content.ContQty, 64)
		if err != nil {
			return fmt.Errorf("bithumb: bad trade qty: %w", err)
		}
		ts, err := time.ParseInLocation("2006-01-02 15:04:05.000", msg.Content.ContDtm, time.Local)
		if err != nil {
			ts = time.Now()
		}
		bt.Bucket.Add(Qualify(bt.Name(), msg.Content.Symbol), price, qty, ts.Unix())
		return nil
	case "orderbookdepth":
		var msg bithumbOrderbookMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("bithumb: decode orderbook: %w", err)
		}
		bt.applyDelta(msg)
		return nil
	default:
		return nil
	}
}

func (bt *Bithumb) applyDelta(msg bithumbOrderbookMessage) {
	bt.mu.Lock()
	defer bt.mu.Unlock()

	touched := make(map[string]bool)
	for _, lvl := range msg.Content.List {
		price, err := strconv.ParseFloat(lvl.Price, 64)
		if err != nil {
			continue
		}
		qty, err := strconv.ParseFloat(lvl.Quantity, 64)
		if err != nil {
			continue
		}
		key := Qualify(bt.Name(), lvl.Symbol)
		ob, ok := bt.staged[key]
		if !ok {
			ob = kimpgate.Orderbook{Market: key}
		}
		if lvl.OrderType == "ask" {
			ob.Asks = upsertLevel(ob.Asks, price, qty)
		} else {
			ob.Bids = upsertLevel(ob.Bids, price, qty)
		}
		bt.staged[key] = ob
		touched[key] = true
	}

	for symbol := range touched {
		ob := bt.staged[symbol]
		ob.Ts = time.Now()
		bt.Orderbook.SetSnapshot(ob)
	}
}

// upsertLevel replaces the level at price, removing it when qty is zero
// (Bithumb's convention for a fully-cleared price level).
func upsertLevel(levels []kimpgate.PriceLevel, price, qty float64) []kimpgate.PriceLevel {
	for i, lvl := range levels {
		if lvl.Price == price {
			if qty == 0 {
				return append(levels[:i], levels[i+1:]...)
			}
			levels[i].Qty = qty
			return levels
		}
	}
	if qty == 0 {
		return levels
	}
	return append(levels, kimpgate.PriceLevel{Price: price, Qty: qty})
}

// OnReconnected drops every staged book: Bithumb's depth feed is
// delta-only, so a reconnect leaves no valid baseline until fresh deltas
// rebuild one.
func (bt *Bithumb) OnReconnected() {
	bt.mu.Lock()
	for symbol := range bt.staged {
		delete(bt.staged, symbol)
		bt.Orderbook.Invalidate(symbol)
	}
	bt.mu.Unlock()
}

// FetchGap is a no-op: Bithumb's trade stream has no REST backfill wired
// in this collector.
func (bt *Bithumb) FetchGap(ctx context.Context, since time.Time) error { return nil }
