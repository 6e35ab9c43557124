// Package bucket implements the in-memory 1-second OHLCV aggregator
// described in spec.md §4.C. A SecondBucket is owned by exactly one
// collector goroutine; nothing here is safe to share across goroutines
// without external locking, by design (spec.md §5).
package bucket

import (
	"github.com/kimgate/kimpgate/internal/storage"
)

// Bar is one in-flight (market, ts_second) OHLCV accumulator.
type Bar struct {
	Market      string
	TsSecond    int64
	Open        float64
	High        float64
	Low         float64
	Close       float64
	VolumeBase  float64
	VolumeQuote float64
	seeded      bool
}

type key struct {
	market   string
	tsSecond int64
}

// SecondBucket accumulates trade ticks into per-(market, ts_second) bars.
type SecondBucket struct {
	bars map[key]*Bar
}

// New creates an empty SecondBucket.
func New() *SecondBucket {
	return &SecondBucket{bars: make(map[key]*Bar)}
}

// Add folds one trade tick into its bar. The first Add for a
// (market, ts_second) pair seeds open/high/low/close to price; subsequent
// Adds extend high/low, overwrite close and sum volumes. Commutative
// within a second (spec.md §5's ordering guarantee).
func (b *SecondBucket) Add(market string, price, volumeBase float64, tsSecond int64) {
	k := key{market, tsSecond}
	bar, ok := b.bars[k]
	if !ok {
		bar = &Bar{Market: market, TsSecond: tsSecond}
		b.bars[k] = bar
	}

	if !bar.seeded {
		bar.Open, bar.High, bar.Low, bar.Close = price, price, price, price
		bar.seeded = true
	} else {
		if price > bar.High {
			bar.High = price
		}
		if price < bar.Low {
			bar.Low = price
		}
		bar.Close = price
	}
	bar.VolumeBase += volumeBase
	bar.VolumeQuote += volumeBase * price
}

// FlushCompleted submits every bar with ts_second < currentTsSecond to the
// writer and removes it from memory.
func (b *SecondBucket) FlushCompleted(w *storage.Writer, currentTsSecond int64) {
	for k, bar := range b.bars {
		if k.tsSecond < currentTsSecond {
			enqueueBar(w, bar)
			delete(b.bars, k)
		}
	}
}

// FlushAll submits every remaining bar, used at shutdown.
func (b *SecondBucket) FlushAll(w *storage.Writer) {
	for k, bar := range b.bars {
		enqueueBar(w, bar)
		delete(b.bars, k)
	}
}

// Len reports the number of in-flight bars, for tests and diagnostics.
func (b *SecondBucket) Len() int { return len(b.bars) }

func enqueueBar(w *storage.Writer, bar *Bar) {
	sql := `INSERT INTO ohlcv_1s (market, ts_second, open, high, low, close, volume_base, volume_quote)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(market, ts_second) DO UPDATE SET
			open=excluded.open, high=excluded.high, low=excluded.low, close=excluded.close,
			volume_base=excluded.volume_base, volume_quote=excluded.volume_quote`
	w.Enqueue(sql, []any{bar.Market, bar.TsSecond, bar.Open, bar.High, bar.Low, bar.Close, bar.VolumeBase, bar.VolumeQuote}, storage.Normal)
}
