package alert

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kimpgate "github.com/kimgate/kimpgate"
	"github.com/kimgate/kimpgate/internal/storage"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "kimpgate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.ApplyMigrations(db))
	return db
}

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	db := openTestDB(t)
	w := storage.New(db, zerolog.Nop())
	w.Start()
	t.Cleanup(w.Shutdown)
	return New(db, w, zerolog.Nop())
}

func withFakeClock(t *testing.T, start time.Time) *time.Time {
	t.Helper()
	cur := start
	orig := now
	now = func() time.Time { return cur }
	t.Cleanup(func() { now = orig })
	return &cur
}

func TestSend_Info_NeverCallsDelivery(t *testing.T) {
	r := newTestRouter(t)
	r.BotToken, r.ChatID = "tok", "chat" // configured, but INFO must not attempt delivery
	r.HTTPClient = &http.Client{Transport: failingTransport{t}}
	r.Send(context.Background(), kimpgate.AlertInfo, "just fyi", "")
}

type failingTransport struct{ t *testing.T }

func (f failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	f.t.Fatal("delivery should not have been attempted")
	return nil, nil
}

func TestSend_Unconfigured_DryRunDoesNotPanic(t *testing.T) {
	r := newTestRouter(t)
	r.BotToken, r.ChatID = "", ""
	r.Send(context.Background(), kimpgate.AlertCritical, "urgent", "")
}

func TestSend_Low_AppendsToBatchWithoutImmediateDelivery(t *testing.T) {
	r := newTestRouter(t)
	r.BotToken, r.ChatID = "tok", "chat"
	r.HTTPClient = &http.Client{Transport: failingTransport{t}}
	r.BatchInterval = time.Hour
	r.Send(context.Background(), kimpgate.AlertLow, "minor heads up", "")
	r.mu.Lock()
	n := len(r.batch)
	r.mu.Unlock()
	assert.Equal(t, 1, n)
}

func TestSend_Low_BatchFlushesWhenIntervalElapsed(t *testing.T) {
	var sent int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		sent++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := newTestRouter(t)
	r.BotToken, r.ChatID = "tok", "chat"
	deliverTo(r, srv.URL)
	r.BatchInterval = 10 * time.Millisecond

	clock := withFakeClock(t, time.Unix(1_700_000_000, 0))
	r.lastFlushedAt = *clock

	r.Send(context.Background(), kimpgate.AlertLow, "first", "")
	assert.Equal(t, 0, sent)

	*clock = clock.Add(11 * time.Millisecond)
	r.Send(context.Background(), kimpgate.AlertLow, "second", "")
	assert.Equal(t, 1, sent, "interval elapsed, batch should auto-flush as one combined message")

	r.mu.Lock()
	n := len(r.batch)
	r.mu.Unlock()
	assert.Equal(t, 0, n, "batch should have been cleared by the auto-flush")
}

func TestFlushBatch_EmptyBuffer_IsNoop(t *testing.T) {
	r := newTestRouter(t)
	r.FlushBatch(context.Background()) // must not panic or attempt delivery
}

func TestAppendBatch_EvictsOldestBeyondMaxAndCountsDrop(t *testing.T) {
	r := newTestRouter(t)
	r.MaxBatch = 2
	r.appendBatch("a")
	r.appendBatch("b")
	r.appendBatch("c")
	r.mu.Lock()
	batch := append([]string{}, r.batch...)
	r.mu.Unlock()
	assert.Equal(t, []string{"b", "c"}, batch)
	assert.Equal(t, uint64(1), r.BatchDrops())
}

// Scenario 6 (spec.md §8): MEDIUM alert with key k sent at t0; second
// send at t0+100s (TTL 300) is suppressed; third at t0+301s is sent.
func TestSend_Medium_DebounceTiming(t *testing.T) {
	var sends int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		sends++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := newTestRouter(t)
	r.BotToken, r.ChatID = "tok", "chat"
	deliverTo(r, srv.URL)
	r.DebounceTTL = 300 * time.Second

	clock := withFakeClock(t, time.Unix(1_700_000_000, 0))
	t0 := *clock

	r.Send(context.Background(), kimpgate.AlertMedium, "listing detected", "listing:XYZ")
	assert.Equal(t, 1, sends)
	waitForDrain(t, r.w)

	*clock = t0.Add(100 * time.Second)
	r.Send(context.Background(), kimpgate.AlertMedium, "listing detected again", "listing:XYZ")
	assert.Equal(t, 1, sends, "should still be debounced at t0+100s")

	*clock = t0.Add(301 * time.Second)
	r.Send(context.Background(), kimpgate.AlertMedium, "listing detected once more", "listing:XYZ")
	assert.Equal(t, 2, sends, "debounce window expired by t0+301s")
}

// waitForDrain blocks until the Writer's queue has committed everything
// enqueued so far, so a debounce upsert is guaranteed visible to the
// next read-only query.
func waitForDrain(t *testing.T, w *storage.Writer) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for w.QueueDepth() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("writer queue did not drain in time")
		}
		time.Sleep(time.Millisecond)
	}
	time.Sleep(5 * time.Millisecond) // let an in-flight commitBatch finish
}

func TestSend_Medium_NoKey_AlwaysSends(t *testing.T) {
	var sends int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		sends++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := newTestRouter(t)
	r.BotToken, r.ChatID = "tok", "chat"
	deliverTo(r, srv.URL)

	r.Send(context.Background(), kimpgate.AlertMedium, "a", "")
	r.Send(context.Background(), kimpgate.AlertMedium, "b", "")
	assert.Equal(t, 2, sends)
}

func TestSend_HighAndCritical_AlwaysSendImmediately(t *testing.T) {
	var sends int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		sends++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := newTestRouter(t)
	r.BotToken, r.ChatID = "tok", "chat"
	deliverTo(r, srv.URL)

	r.Send(context.Background(), kimpgate.AlertHigh, "a", "")
	r.Send(context.Background(), kimpgate.AlertCritical, "b", "")
	assert.Equal(t, 2, sends)
}

func TestDebounceOK_NoRecord_ReturnsTrue(t *testing.T) {
	r := newTestRouter(t)
	assert.True(t, r.debounceOK("never-seen"))
}

// deliverTo redirects the router's HTTP client at a local test server
// by swapping the chatAPI target through a custom RoundTripper, since
// chatAPI is a package constant pointed at the real chat provider.
func deliverTo(r *Router, target string) {
	r.HTTPClient = &http.Client{Transport: redirectTransport{target: target}}
}

type redirectTransport struct{ target string }

func (rt redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	newReq, err := http.NewRequestWithContext(req.Context(), req.Method, rt.target, req.Body)
	if err != nil {
		return nil, err
	}
	newReq.Header = req.Header
	return http.DefaultTransport.RoundTrip(newReq)
}
