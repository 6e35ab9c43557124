package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimgate/kimpgate/internal/bucket"
)

func TestUpbit_OnMessage_Trade(t *testing.T) {
	b := bucket.New()
	ob := NewOrderbookCache()
	u := NewUpbit(b, ob)

	msg := `{"type":"trade","code":"KRW-XYZ","trade_price":1234.5,"trade_volume":2,"trade_timestamp":1700000000000}`
	require.NoError(t, u.OnMessage([]byte(msg)))
	assert.Equal(t, 1, b.Len())
}

func TestUpbit_OnMessage_Orderbook(t *testing.T) {
	b := bucket.New()
	ob := NewOrderbookCache()
	u := NewUpbit(b, ob)

	msg := `{"type":"orderbook","code":"KRW-XYZ","orderbook_units":[{"ask_price":101,"bid_price":99,"ask_size":1,"bid_size":1}]}`
	require.NoError(t, u.OnMessage([]byte(msg)))

	book, ok := ob.Get("upbit:KRW-XYZ")
	require.True(t, ok)
	assert.Equal(t, 101.0, book.BestAsk())
	assert.Equal(t, 99.0, book.BestBid())
}

func TestBithumb_OnMessage_Trade(t *testing.T) {
	b := bucket.New()
	ob := NewOrderbookCache()
	bt := NewBithumb(b, ob)

	msg := `{"type":"transaction","content":{"symbol":"XYZ_KRW","contPrice":"1000","contQty":"0.5","contDtm":"2024-01-01 00:00:00.000"}}`
	require.NoError(t, bt.OnMessage([]byte(msg)))
	assert.Equal(t, 1, b.Len())
}

func TestBithumb_OrderbookDelta_UpsertAndRemove(t *testing.T) {
	b := bucket.New()
	obCache := NewOrderbookCache()
	bt := NewBithumb(b, obCache)

	add := `{"type":"orderbookdepth","content":{"list":[{"symbol":"XYZ_KRW","orderType":"ask","price":"100","quantity":"1"}]}}`
	require.NoError(t, bt.OnMessage([]byte(add)))
	book, ok := obCache.Get("bithumb:XYZ_KRW")
	require.True(t, ok)
	assert.Equal(t, 100.0, book.BestAsk())

	remove := `{"type":"orderbookdepth","content":{"list":[{"symbol":"XYZ_KRW","orderType":"ask","price":"100","quantity":"0"}]}}`
	require.NoError(t, bt.OnMessage([]byte(remove)))
	book, ok = obCache.Get("bithumb:XYZ_KRW")
	require.True(t, ok)
	assert.Equal(t, 0.0, book.BestAsk())
}

func TestBithumb_OnReconnected_InvalidatesStagedBooks(t *testing.T) {
	b := bucket.New()
	obCache := NewOrderbookCache()
	bt := NewBithumb(b, obCache)

	add := `{"type":"orderbookdepth","content":{"list":[{"symbol":"XYZ_KRW","orderType":"ask","price":"100","quantity":"1"}]}}`
	require.NoError(t, bt.OnMessage([]byte(add)))
	_, ok := obCache.Get("bithumb:XYZ_KRW")
	require.True(t, ok)

	bt.OnReconnected()
	_, ok = obCache.Get("bithumb:XYZ_KRW")
	assert.False(t, ok)
}

// echoExchange is a minimal Exchange used to drive Collector's
// connect/reconnect loop against a local test server without touching a
// real exchange endpoint.
type echoExchange struct {
	endpoint    string
	msgs        chan []byte
	reconnected chan struct{}
}

func (e *echoExchange) Name() string     { return "echo" }
func (e *echoExchange) Endpoint() string { return e.endpoint }
func (e *echoExchange) SubscribePayload(markets []string) ([]byte, error) {
	return []byte(strings.Join(markets, ",")), nil
}
func (e *echoExchange) OnMessage(data []byte) error {
	select {
	case e.msgs <- data:
	default:
	}
	return nil
}
func (e *echoExchange) OnReconnected() {
	select {
	case e.reconnected <- struct{}{}:
	default:
	}
}
func (e *echoExchange) FetchGap(ctx context.Context, since time.Time) error { return nil }

func TestCollector_ReceivesMessagesAndReportsConnected(t *testing.T) {
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte("hello"))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	ex := &echoExchange{endpoint: wsURL, msgs: make(chan []byte, 4), reconnected: make(chan struct{}, 4)}
	c := New(ex, Config{DialTimeout: 2 * time.Second, MinBackoff: 50 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	select {
	case msg := <-ex.msgs:
		assert.Equal(t, "hello", string(msg))
	case <-time.After(3 * time.Second):
		t.Fatal("did not receive message from test server")
	}

	assert.Eventually(t, c.IsConnected, time.Second, 10*time.Millisecond)
	c.Close()
}
