// Package alert implements the Alert Router described in spec.md §4.M:
// level-graded delivery (log-only, debounced, batched, or immediate) to
// an external chat API, with a credentials-missing dry-run fallback and
// a batch buffer flushed on shutdown.
package alert

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	kimpgate "github.com/kimgate/kimpgate"
	"github.com/kimgate/kimpgate/internal/storage"
)

// DefaultDebounceTTL is how long a MEDIUM send suppresses a repeat with
// the same key (spec.md §4.M).
const DefaultDebounceTTL = 300 * time.Second

// DefaultBatchInterval is how often the LOW batch buffer auto-flushes.
const DefaultBatchInterval = 1 * time.Hour

// DefaultMaxBatch bounds the LOW batch buffer; beyond it the oldest
// message is evicted and the drop counted, mirroring the Writer queue's
// no-unbounded-buffer rule (spec.md §5).
const DefaultMaxBatch = 500

const chatAPI = "https://api.telegram.org/bot%s/sendMessage"

// debounceUpsertSQL mirrors the `debounce_records` schema's
// (key, last_sent_at, expires_at) columns.
const debounceUpsertSQL = `INSERT INTO debounce_records (key, last_sent_at, expires_at)
	VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET last_sent_at = excluded.last_sent_at, expires_at = excluded.expires_at`

// Router is the Alert Router's single entry point. One Router per
// process; Send is safe for concurrent use.
type Router struct {
	BotToken string
	ChatID   string

	HTTPClient    *http.Client
	DebounceTTL   time.Duration
	BatchInterval time.Duration
	MaxBatch      int

	db *sql.DB // read-only: debounce lookups
	w  *storage.Writer
	log zerolog.Logger

	mu            sync.Mutex
	batch         []string
	batchDrops    uint64
	lastFlushedAt time.Time
}

// New builds a Router reading bot credentials from CHAT_BOT_TOKEN /
// CHAT_BOT_CHANNEL when unset; db supplies read-only debounce lookups,
// w is the sole path for debounce-record writes.
func New(db *sql.DB, w *storage.Writer, log zerolog.Logger) *Router {
	return &Router{
		BotToken:      os.Getenv("CHAT_BOT_TOKEN"),
		ChatID:        os.Getenv("CHAT_BOT_CHANNEL"),
		HTTPClient:    &http.Client{Timeout: 10 * time.Second},
		DebounceTTL:   DefaultDebounceTTL,
		BatchInterval: DefaultBatchInterval,
		MaxBatch:      DefaultMaxBatch,
		db:            db,
		w:             w,
		log:           log.With().Str("component", "alert").Logger(),
		lastFlushedAt: now(),
	}
}

// IsConfigured reports whether both bot credentials are present; when
// false, Send degrades to a logged dry-run rather than failing.
func (r *Router) IsConfigured() bool {
	return r.BotToken != "" && r.ChatID != ""
}

// Send routes message per level. key is the debounce key for MEDIUM
// alerts; it is ignored for every other level.
func (r *Router) Send(ctx context.Context, level kimpgate.AlertLevel, message, key string) {
	formatted := fmt.Sprintf("%s %s", levelPrefix(level), message)

	switch level {
	case kimpgate.AlertInfo:
		r.log.Info().Str("level", "INFO").Msg(message)
		return

	case kimpgate.AlertLow:
		r.appendBatch(formatted)
		r.log.Info().Str("level", "LOW").Str("preview", truncate(message, 80)).Msg("batched")
		r.tryFlushBatch(ctx)
		return

	case kimpgate.AlertMedium:
		if key != "" && !r.debounceOK(key) {
			r.log.Debug().Str("key", key).Msg("medium alert debounced")
			return
		}
		if key != "" {
			r.debounceUpdate(key)
		}
	}

	r.log.Info().Str("level", level.String()).Str("preview", truncate(message, 100)).Msg("sending")
	r.deliver(ctx, formatted)
}

// FlushBatch sends the accumulated LOW batch as one combined message,
// regardless of whether BatchInterval has elapsed. Called unconditionally
// during orchestrator shutdown (spec.md §4.M).
func (r *Router) FlushBatch(ctx context.Context) {
	r.mu.Lock()
	if len(r.batch) == 0 {
		r.mu.Unlock()
		return
	}
	batch := r.batch
	r.batch = nil
	r.lastFlushedAt = now()
	r.mu.Unlock()

	header := fmt.Sprintf("--- LOW alerts (%d) ---\n\n", len(batch))
	r.deliver(ctx, header+strings.Join(batch, "\n\n"))
}

func (r *Router) appendBatch(formatted string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.batch) >= r.MaxBatch {
		r.batch = r.batch[1:]
		r.batchDrops++
	}
	r.batch = append(r.batch, formatted)
}

func (r *Router) tryFlushBatch(ctx context.Context) {
	r.mu.Lock()
	due := now().Sub(r.lastFlushedAt) >= r.BatchInterval
	r.mu.Unlock()
	if due {
		r.FlushBatch(ctx)
	}
}

// debounceOK reports whether key has no unexpired debounce record. A
// lookup failure fails open (send allowed) — the original gate checker's
// behaviour, since a missing debounce table must never silently suppress
// a real alert.
func (r *Router) debounceOK(key string) bool {
	if r.db == nil {
		return true
	}
	var expiresAt int64
	err := r.db.QueryRow(`SELECT expires_at FROM debounce_records WHERE key = ?`, key).Scan(&expiresAt)
	if err == sql.ErrNoRows {
		return true
	}
	if err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("debounce lookup failed, allowing send")
		return true
	}
	return now().Unix() >= expiresAt
}

func (r *Router) debounceUpdate(key string) {
	if r.w == nil {
		return
	}
	sent := now().Unix()
	expires := now().Add(r.DebounceTTL).Unix()
	r.w.Enqueue(debounceUpsertSQL, []any{key, sent, expires}, storage.Normal)
}

// deliver POSTs formatted to the configured chat API, or logs a dry-run
// line when no credentials are configured.
func (r *Router) deliver(ctx context.Context, formatted string) {
	if !r.IsConfigured() {
		r.log.Info().Str("mode", "dry-run").Str("preview", truncate(formatted, 200)).Msg("chat delivery skipped")
		return
	}

	payload, err := json.Marshal(map[string]any{
		"chat_id":                  r.ChatID,
		"text":                     formatted,
		"parse_mode":               "Markdown",
		"disable_web_page_preview": true,
	})
	if err != nil {
		r.log.Warn().Err(err).Msg("failed to marshal chat payload")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf(chatAPI, r.BotToken), bytes.NewReader(payload))
	if err != nil {
		r.log.Warn().Err(err).Msg("failed to build chat request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		r.log.Warn().Err(err).Msg("chat delivery error")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		r.log.Warn().Int("status", resp.StatusCode).Msg("chat delivery failed")
	}
}

// BatchDrops reports how many LOW messages were evicted for exceeding
// MaxBatch before ever being flushed.
func (r *Router) BatchDrops() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batchDrops
}

func levelPrefix(level kimpgate.AlertLevel) string {
	switch level {
	case kimpgate.AlertCritical:
		return "[CRITICAL]"
	case kimpgate.AlertHigh:
		return "[HIGH]"
	case kimpgate.AlertMedium:
		return "[MEDIUM]"
	case kimpgate.AlertLow:
		return "[LOW]"
	default:
		return "[INFO]"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var now = time.Now
