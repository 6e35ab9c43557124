// Package collector implements the long-lived, reconnecting WebSocket
// collectors described in spec.md §4.D: one goroutine per upstream
// endpoint, each owning its own Second Bucket and orderbook cache.
package collector

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Exchange is the small capability set each per-exchange stream
// implements, per spec.md §9's polymorphism note.
type Exchange interface {
	// Name identifies the exchange for logging/keys, e.g. "upbit".
	Name() string
	// Endpoint is the WebSocket URL to dial.
	Endpoint() string
	// SubscribePayload builds the exchange-specific subscription frame for
	// the given set of markets.
	SubscribePayload(markets []string) ([]byte, error)
	// OnMessage decodes one inbound frame and applies it (trade -> second
	// bucket, orderbook delta -> orderbook cache).
	OnMessage(data []byte) error
	// OnReconnected is invoked after a fresh connection is established.
	// Snapshot-based exchanges (Upbit) need not do anything; delta-based
	// exchanges (Bithumb orderbook) must invalidate and rebuild caches.
	OnReconnected()
	// FetchGap is invoked when downtime exceeded the gap threshold,
	// reserved for REST backfill. A nil implementation is a no-op.
	FetchGap(ctx context.Context, since time.Time) error
}

// Config tunes reconnect/keepalive behaviour. Zero-valued fields take the
// defaults from spec.md §4.D.
type Config struct {
	PingInterval   time.Duration
	MinBackoff     time.Duration
	MaxBackoff     time.Duration
	GapThreshold   time.Duration
	DialTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.PingInterval == 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.MinBackoff == 0 {
		c.MinBackoff = 1 * time.Second
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = 60 * time.Second
	}
	if c.GapThreshold == 0 {
		c.GapThreshold = 5 * time.Second
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 10 * time.Second
	}
	return c
}

// Collector manages one upstream WebSocket endpoint's full lifecycle:
// connect, receive, keepalive, reconnect with backoff, and dynamic
// subscription (spec.md §4.D).
type Collector struct {
	ex  Exchange
	cfg Config
	log zerolog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	markets []string

	connected    atomic.Bool
	lastMsg      atomic.Int64 // unix nanos
	disconnectAt atomic.Int64 // unix nanos, 0 when connected

	closeCh chan struct{}
	closed  atomic.Bool
}

// New builds a Collector for the given exchange stream.
func New(ex Exchange, cfg Config, log zerolog.Logger) *Collector {
	return &Collector{
		ex:      ex,
		cfg:     cfg.withDefaults(),
		log:     log.With().Str("component", "collector").Str("exchange", ex.Name()).Logger(),
		closeCh: make(chan struct{}),
	}
}

// IsConnected reports current connection state, for the Health Monitor.
func (c *Collector) IsConnected() bool { return c.connected.Load() }

// LastMsgTime reports the last time a message was received, for the
// Health Monitor.
func (c *Collector) LastMsgTime() time.Time {
	ns := c.lastMsg.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// AddMarket appends a market and re-subscribes. Idempotent.
func (c *Collector) AddMarket(market string) {
	c.mu.Lock()
	for _, m := range c.markets {
		if m == market {
			c.mu.Unlock()
			return
		}
	}
	c.markets = append(c.markets, market)
	conn := c.conn
	markets := append([]string(nil), c.markets...)
	c.mu.Unlock()

	if conn != nil {
		c.resubscribe(conn, markets)
	}
}

func (c *Collector) resubscribe(conn *websocket.Conn, markets []string) {
	payload, err := c.ex.SubscribePayload(markets)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to build subscribe payload")
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.log.Error().Err(err).Msg("failed to send subscribe payload")
	}
}

// Run drives the connect/receive/reconnect loop until ctx is cancelled or
// Close is called.
func (c *Collector) Run(ctx context.Context) {
	backoff := c.cfg.MinBackoff
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closeCh:
			return
		default:
		}

		if err := c.connectAndServe(ctx); err != nil {
			c.log.Warn().Err(err).Dur("backoff", backoff).Msg("collector disconnected, reconnecting")
		}

		if c.closed.Load() {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-c.closeCh:
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > c.cfg.MaxBackoff {
			backoff = c.cfg.MaxBackoff
		}
	}
}

func (c *Collector) connectAndServe(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.ex.Endpoint(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	wasDown := c.disconnectAt.Load()
	if wasDown != 0 {
		downFor := time.Since(time.Unix(0, wasDown))
		if downFor > c.cfg.GapThreshold {
			if err := c.ex.FetchGap(ctx, time.Unix(0, wasDown)); err != nil {
				c.log.Warn().Err(err).Msg("gap-recovery hook failed")
			}
		}
	}
	c.ex.OnReconnected()

	c.mu.Lock()
	c.conn = conn
	markets := append([]string(nil), c.markets...)
	c.mu.Unlock()

	if len(markets) > 0 {
		payload, err := c.ex.SubscribePayload(markets)
		if err != nil {
			return err
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return err
		}
	}

	c.connected.Store(true)
	c.disconnectAt.Store(0)
	defer func() {
		c.connected.Store(false)
		c.disconnectAt.Store(time.Now().UnixNano())
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()

	pingTicker := time.NewTicker(c.cfg.PingInterval)
	defer pingTicker.Stop()

	msgCh := make(chan []byte, 256)
	errCh := make(chan error, 1)
	go c.readLoop(conn, msgCh, errCh)

	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.PingInterval * 2))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.PingInterval * 2))
	})

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.closeCh:
			return nil
		case err := <-errCh:
			return err
		case data := <-msgCh:
			c.lastMsg.Store(time.Now().UnixNano())
			if err := c.ex.OnMessage(data); err != nil {
				c.log.Debug().Err(err).Msg("dropping malformed upstream message")
			}
		case <-pingTicker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

func (c *Collector) readLoop(conn *websocket.Conn, msgCh chan<- []byte, errCh chan<- error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			errCh <- err
			return
		}
		select {
		case msgCh <- data:
		default:
			// backpressure: drop the message just read rather than block
			// the socket reader indefinitely (spec.md §5 bounded buffers).
		}
	}
}

// Close gracefully closes the socket; the owning orchestrator is
// responsible for calling FlushAll on the Second Bucket afterwards
// (spec.md §4.O shutdown order).
func (c *Collector) Close() {
	if c.closed.Swap(true) {
		return
	}
	close(c.closeCh)
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}
}
