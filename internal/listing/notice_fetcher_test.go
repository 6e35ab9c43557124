package listing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractNotices_Upbit_ParsesIDAndStripsTags(t *testing.T) {
	html := `
		<li><a href="/service_center/notice?id=3011"><span class="badge">상장</span> ABC(ABC) 원화 마켓 디지털 자산 추가</a></li>
		<li><a href="/service_center/notice?id=3012">XYZ 입출금 중단 안내</a></li>
	`
	got := ExtractNotices("upbit", html)
	require.Len(t, got, 2)
	assert.Equal(t, "3011", got[0].ID)
	assert.Equal(t, "상장 ABC(ABC) 원화 마켓 디지털 자산 추가", got[0].Title)
	assert.Equal(t, "https://upbit.com/service_center/notice?id=3011", got[0].URL)
	assert.Equal(t, "3012", got[1].ID)
}

func TestExtractNotices_Bithumb_MatchesNoticePath(t *testing.T) {
	html := `<a href="/notice/1234">[거래] ABC 거래 중단 안내</a>`
	got := ExtractNotices("bithumb", html)
	require.Len(t, got, 1)
	assert.Equal(t, "1234", got[0].ID)
	assert.Equal(t, "https://feed.bithumb.com/notice/1234", got[0].URL)
}

func TestExtractNotices_DedupsRepeatedID(t *testing.T) {
	html := `
		<a href="/service_center/notice?id=99">first copy</a>
		<a href="/service_center/notice?id=99">second copy, same id</a>
	`
	got := ExtractNotices("upbit", html)
	assert.Len(t, got, 1, "the same notice id appearing twice in the page must only be extracted once")
}

func TestExtractNotices_SkipsTooShortTitle(t *testing.T) {
	html := `<a href="/service_center/notice?id=5">ab</a>`
	got := ExtractNotices("upbit", html)
	assert.Empty(t, got)
}

func TestExtractNotices_UnknownExchangeReturnsNil(t *testing.T) {
	got := ExtractNotices("coinone", `<a href="/service_center/notice?id=5">whatever title</a>`)
	assert.Nil(t, got)
}

func TestHTTPNoticeFetcher_FetchHTML_ReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<a href="/service_center/notice?id=1">test notice</a>`))
	}))
	defer srv.Close()

	f := NewHTTPNoticeFetcher()
	f.HTTPClient = srv.Client()
	f.HTTPClient.Transport = redirectTransport{target: srv.URL}

	html, err := f.FetchHTML(context.Background(), "https://upbit.com/service_center/notice")
	require.NoError(t, err)
	assert.Contains(t, html, "test notice")
}

func TestHTTPNoticeFetcher_FetchHTML_NonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := NewHTTPNoticeFetcher()
	f.HTTPClient = srv.Client()
	f.HTTPClient.Transport = redirectTransport{target: srv.URL}

	_, err := f.FetchHTML(context.Background(), "https://upbit.com/service_center/notice")
	assert.Error(t, err)
}
