package listing

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// NoticeFetcher retrieves a notice board's raw HTML. Stubbed as an
// interface so the orchestrator's poll loop is testable without a live
// HTTP round-trip; the default implementation is a plain net/http GET,
// since the pack carries no CloudFlare-bypass or headless-browser
// library and a polled notice board doesn't warrant vendoring one.
type NoticeFetcher interface {
	FetchHTML(ctx context.Context, url string) (string, error)
}

// noticeRateLimit mirrors catalogRateLimit: notice boards are polled on
// a fixed interval regardless of backoff state.
const noticeRateLimit = rate.Limit(1)

// HTTPNoticeFetcher is the default NoticeFetcher: a plain GET with a
// browser-like User-Agent, since some exchange notice boards reject
// bare Go HTTP client requests.
type HTTPNoticeFetcher struct {
	HTTPClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
}

// NewHTTPNoticeFetcher builds a fetcher with a conservative timeout, its
// own rate limiter, and its own circuit breaker.
func NewHTTPNoticeFetcher() *HTTPNoticeFetcher {
	return &HTTPNoticeFetcher{
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(noticeRateLimit, 1),
		breaker:    newCatalogBreaker("notice-fetcher"),
	}
}

func (f *HTTPNoticeFetcher) FetchHTML(ctx context.Context, url string) (string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return "", err
	}
	result, err := f.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; kimpgate-notice-poller/1.0)")
		resp, err := f.HTTPClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("listing: fetch notice board %s: %w", url, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("listing: fetch notice board %s: status %d", url, resp.StatusCode)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("listing: read notice board %s: %w", url, err)
		}
		return string(body), nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// RawNotice is one notice extracted from a fetched HTML page, before
// classification by ParseNotice.
type RawNotice struct {
	ID    string
	Title string
	URL   string
}

// noticeLinkPattern and noticeURLTemplate are per-exchange, matching
// each board's own link markup rather than a generic HTML parser — the
// original fetcher extracts notices the same way, with plain regexes
// over raw HTML rather than a DOM library.
var noticeLinkPattern = map[string]*regexp.Regexp{
	"upbit":   regexp.MustCompile(`(?is)<a[^>]*href="/?service_center/notice\?id=(\d+)"[^>]*>(.*?)</a>`),
	"bithumb": regexp.MustCompile(`(?is)href="/?notice/(\d+)"[^>]*>([^<]+)</a>`),
}

var noticeURLTemplate = map[string]string{
	"upbit":   "https://upbit.com/service_center/notice?id=%s",
	"bithumb": "https://feed.bithumb.com/notice/%s",
}

var htmlTagPattern = regexp.MustCompile(`<[^>]+>`)

// ExtractNotices pulls candidate (id, title) pairs out of exchange's
// notice board HTML. Unknown exchanges yield nothing rather than a
// generic best-effort parse, since a wrong pattern risks silently
// returning garbage titles instead of an honest empty result.
func ExtractNotices(exchange, html string) []RawNotice {
	pattern, ok := noticeLinkPattern[exchange]
	if !ok {
		return nil
	}
	tmpl := noticeURLTemplate[exchange]

	seen := make(map[string]bool)
	var out []RawNotice
	for _, m := range pattern.FindAllStringSubmatch(html, -1) {
		id, inner := m[1], m[2]
		if seen[id] {
			continue
		}
		seen[id] = true

		title := strings.TrimSpace(htmlTagPattern.ReplaceAllString(inner, ""))
		if len(title) < 3 {
			continue
		}
		out = append(out, RawNotice{ID: id, Title: title, URL: fmt.Sprintf(tmpl, id)})
	}
	return out
}
