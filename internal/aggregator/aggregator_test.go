package aggregator

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimgate/kimpgate/internal/storage"
)

func newTestDB(t *testing.T) (*sql.DB, *storage.Writer) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "agg.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.ApplyMigrations(db))
	w := storage.New(db, zerolog.Nop())
	w.Start()
	t.Cleanup(w.Shutdown)
	return db, w
}

func seedBar(t *testing.T, db *sql.DB, market string, tsSecond int64, o, h, l, c, vb, vq float64) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO ohlcv_1s (market, ts_second, open, high, low, close, volume_base, volume_quote) VALUES (?,?,?,?,?,?,?,?)`,
		market, tsSecond, o, h, l, c, vb, vq)
	require.NoError(t, err)
}

func TestRollupMinute_AggregatesCorrectly(t *testing.T) {
	db, w := newTestDB(t)
	a := New(db, w, zerolog.Nop())

	const minute = int64(1700000000)
	seedBar(t, db, "KRW-XYZ", minute+0, 100, 105, 99, 101, 1, 100)
	seedBar(t, db, "KRW-XYZ", minute+30, 101, 110, 98, 108, 2, 200)
	seedBar(t, db, "KRW-XYZ", minute+59, 108, 109, 107, 107.5, 1, 107)

	require.NoError(t, a.RollupMinute(minute))
	w.Shutdown()

	var open, high, low, close, volBase, volQuote float64
	err := db.QueryRow(`SELECT open, high, low, close, volume_base, volume_quote FROM ohlcv_1m WHERE market='KRW-XYZ' AND ts_minute=?`, minute).
		Scan(&open, &high, &low, &close, &volBase, &volQuote)
	require.NoError(t, err)
	assert.Equal(t, 100.0, open)
	assert.Equal(t, 110.0, high)
	assert.Equal(t, 98.0, low)
	assert.Equal(t, 107.5, close)
	assert.InDelta(t, 4.0, volBase, 0.0001)
	assert.InDelta(t, 407.0, volQuote, 0.0001)
}

func TestRollupMinute_IsIdempotent(t *testing.T) {
	db, w := newTestDB(t)
	a := New(db, w, zerolog.Nop())

	const minute = int64(1700000100)
	seedBar(t, db, "KRW-ABC", minute, 10, 12, 9, 11, 1, 10)

	require.NoError(t, a.RollupMinute(minute))
	require.NoError(t, a.RollupMinute(minute))
	w.Shutdown()

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM ohlcv_1m WHERE market='KRW-ABC' AND ts_minute=?`, minute).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestRollupMinute_ReRollSupersedesWithMoreCompleteData(t *testing.T) {
	db, w := newTestDB(t)
	a := New(db, w, zerolog.Nop())

	const minute = int64(1700000200)
	seedBar(t, db, "KRW-DEF", minute, 10, 10, 10, 10, 1, 10)
	require.NoError(t, a.RollupMinute(minute))

	seedBar(t, db, "KRW-DEF", minute+30, 20, 25, 5, 22, 1, 20)
	require.NoError(t, a.RollupMinute(minute))
	w.Shutdown()

	var high, low float64
	require.NoError(t, db.QueryRow(`SELECT high, low FROM ohlcv_1m WHERE market='KRW-DEF' AND ts_minute=?`, minute).Scan(&high, &low))
	assert.Equal(t, 25.0, high)
	assert.Equal(t, 5.0, low)
}

func TestPurge_DeletesOnlyOlderThanRetentionWindow(t *testing.T) {
	db, w := newTestDB(t)
	a := New(db, w, zerolog.Nop())

	now := time.Unix(1700010000, 0)
	seedBar(t, db, "KRW-OLD", now.Add(-20*time.Minute).Unix(), 1, 1, 1, 1, 1, 1)
	seedBar(t, db, "KRW-NEW", now.Add(-1*time.Minute).Unix(), 1, 1, 1, 1, 1, 1)

	a.Purge(now)
	w.Shutdown()

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM ohlcv_1s`).Scan(&count))
	assert.Equal(t, 1, count)
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM ohlcv_1s WHERE market='KRW-NEW'`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestSelfHeal_RollsUpPastWindowWithoutError(t *testing.T) {
	db, w := newTestDB(t)
	a := New(db, w, zerolog.Nop())

	now := time.Unix(1700020000, 0).Truncate(time.Minute)
	seedBar(t, db, "KRW-HEAL", now.Add(-5*time.Minute).Unix(), 1, 1, 1, 1, 1, 1)

	require.NoError(t, a.SelfHeal(now))
	w.Shutdown()

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM ohlcv_1m WHERE market='KRW-HEAL'`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestForceRollup_RollsUpIncompleteCurrentMinute(t *testing.T) {
	db, w := newTestDB(t)
	a := New(db, w, zerolog.Nop())

	now := time.Unix(1700030010, 0)
	seedBar(t, db, "KRW-FORCE", now.Truncate(time.Minute).Unix()+5, 1, 1, 1, 1, 1, 1)

	require.NoError(t, a.ForceRollup(now))
	w.Shutdown()

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM ohlcv_1m WHERE market='KRW-FORCE'`).Scan(&count))
	assert.Equal(t, 1, count)
}
