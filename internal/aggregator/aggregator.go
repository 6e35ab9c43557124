// Package aggregator implements the 1s -> 1m OHLCV rollup described in
// spec.md §4.E: a periodic task that folds the preceding minute's 1s
// bars into a replace-on-conflict 1m row, self-heals on startup, and
// purges stale 1s data.
package aggregator

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"github.com/kimgate/kimpgate/internal/storage"
)

// SelfHealWindow bounds how many past minutes are re-rolled on startup
// to repair partial work from a prior crash (spec.md §4.E).
const SelfHealWindow = 15 * time.Minute

// RetentionWindow is how long 1s rows are kept before purge (spec.md §4.E).
const RetentionWindow = 10 * time.Minute

// Interval is the rollup cadence.
const Interval = 1 * time.Minute

// Aggregator reads completed 1s bars and writes 1m rollups through the
// Writer. It never mutates the database directly.
type Aggregator struct {
	db  *sql.DB
	w   *storage.Writer
	log zerolog.Logger
}

// New builds an Aggregator reading from db and writing through w.
func New(db *sql.DB, w *storage.Writer, log zerolog.Logger) *Aggregator {
	return &Aggregator{db: db, w: w, log: log.With().Str("component", "aggregator").Logger()}
}

// RollupMinute folds every 1s bar in [minuteStart, minuteStart+60) into a
// replace-on-conflict 1m row per market.
func (a *Aggregator) RollupMinute(minuteStart int64) error {
	rows, err := a.db.Query(`
		SELECT market,
			(SELECT open FROM ohlcv_1s s2 WHERE s2.market = s1.market AND s2.ts_second >= ? AND s2.ts_second < ? ORDER BY s2.ts_second ASC LIMIT 1) AS open,
			MAX(high) AS high,
			MIN(low) AS low,
			(SELECT close FROM ohlcv_1s s2 WHERE s2.market = s1.market AND s2.ts_second >= ? AND s2.ts_second < ? ORDER BY s2.ts_second DESC LIMIT 1) AS close,
			SUM(volume_base) AS volume_base,
			SUM(volume_quote) AS volume_quote
		FROM ohlcv_1s s1
		WHERE ts_second >= ? AND ts_second < ?
		GROUP BY market`,
		minuteStart, minuteStart+60, minuteStart, minuteStart+60, minuteStart, minuteStart+60)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var market string
		var open, high, low, close, volBase, volQuote float64
		if err := rows.Scan(&market, &open, &high, &low, &close, &volBase, &volQuote); err != nil {
			return err
		}
		a.w.Enqueue(`
			INSERT INTO ohlcv_1m (market, ts_minute, open, high, low, close, volume_base, volume_quote)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(market, ts_minute) DO UPDATE SET
				open=excluded.open, high=excluded.high, low=excluded.low, close=excluded.close,
				volume_base=excluded.volume_base, volume_quote=excluded.volume_quote`,
			[]any{market, minuteStart, open, high, low, close, volBase, volQuote}, storage.Normal)
	}
	return rows.Err()
}

// SelfHeal re-rolls up to SelfHealWindow of past minutes, repairing any
// partial work left behind by a prior crash.
func (a *Aggregator) SelfHeal(now time.Time) error {
	current := alignToMinute(now)
	start := current.Add(-SelfHealWindow)
	for t := start; t.Before(current); t = t.Add(Interval) {
		if err := a.RollupMinute(t.Unix()); err != nil {
			return err
		}
	}
	return nil
}

// Purge requests deletion of 1s rows older than RetentionWindow.
func (a *Aggregator) Purge(now time.Time) {
	cutoff := now.Add(-RetentionWindow).Unix()
	a.w.Enqueue(`DELETE FROM ohlcv_1s WHERE ts_second < ?`, []any{cutoff}, storage.Normal)
}

// ForceRollup rolls up the current, possibly-incomplete minute so
// nothing is lost on shutdown (spec.md §4.E).
func (a *Aggregator) ForceRollup(now time.Time) error {
	return a.RollupMinute(alignToMinute(now).Unix())
}

// Run drives the periodic rollup+purge cycle until ctx is cancelled.
// Each tick rolls up the minute that just completed.
func (a *Aggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			prevMinute := alignToMinute(now).Add(-Interval)
			if err := a.RollupMinute(prevMinute.Unix()); err != nil {
				a.log.Error().Err(err).Time("minute", prevMinute).Msg("rollup failed")
			}
			a.Purge(now)
		}
	}
}

func alignToMinute(t time.Time) time.Time {
	return t.Truncate(time.Minute)
}
