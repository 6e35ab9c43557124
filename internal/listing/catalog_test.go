package listing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestUpbitCatalog_FetchCatalog_StripsKRWPrefix(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"market":"KRW-BTC"},{"market":"KRW-ETH"},{"market":"BTC-ETH"}]`))
	}))
	defer srv.Close()

	c := NewUpbitCatalog()
	c.HTTPClient = srv.Client()
	got, err := fetchFrom(t, c, srv.URL)
	if err != nil {
		t.Fatalf("FetchCatalog: %v", err)
	}
	if !got["BTC"] || !got["ETH"] {
		t.Errorf("expected BTC and ETH, got %v", got)
	}
	if len(got) != 2 {
		t.Errorf("expected only KRW-quoted markets, got %v", got)
	}
}

func TestBithumbCatalog_FetchCatalog_SkipsDateField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"0000","data":{"BTC":{"closing_price":"1"},"ETH":{"closing_price":"2"},"date":"1234567890"}}`))
	}))
	defer srv.Close()

	c := NewBithumbCatalog()
	c.HTTPClient = srv.Client()
	got, err := fetchFromBithumb(t, c, srv.URL)
	if err != nil {
		t.Fatalf("FetchCatalog: %v", err)
	}
	if !got["BTC"] || !got["ETH"] {
		t.Errorf("expected BTC and ETH, got %v", got)
	}
	if got["date"] {
		t.Error("date scalar field should not be treated as a symbol")
	}
}

func TestBithumbCatalog_FetchCatalog_NonZeroStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"5600","data":{}}`))
	}))
	defer srv.Close()

	c := NewBithumbCatalog()
	c.HTTPClient = srv.Client()
	_, err := fetchFromBithumb(t, c, srv.URL)
	if err == nil {
		t.Fatal("expected error for non-zero status field")
	}
}

// fetchFrom/fetchFromBithumb redirect the fixed upstream URL to a local
// test server by temporarily wrapping FetchCatalog's request via a
// custom RoundTripper, since the catalog fetchers hit fixed exchange
// URLs rather than taking an endpoint parameter.
func fetchFrom(t *testing.T, c *UpbitCatalog, target string) (map[string]bool, error) {
	t.Helper()
	c.HTTPClient.Transport = redirectTransport{target: target}
	return c.FetchCatalog(context.Background())
}

func fetchFromBithumb(t *testing.T, c *BithumbCatalog, target string) (map[string]bool, error) {
	t.Helper()
	c.HTTPClient.Transport = redirectTransport{target: target}
	return c.FetchCatalog(context.Background())
}

type redirectTransport struct{ target string }

func (rt redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out, err := http.NewRequestWithContext(req.Context(), req.Method, rt.target, req.Body)
	if err != nil {
		return nil, err
	}
	out.Header = req.Header
	return http.DefaultTransport.RoundTrip(out)
}
