package listing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/housing-cli/internal/pool"
	"github.com/sells-group/housing-cli/internal/resilience"
	"github.com/sells-group/housing-cli/internal/scrape"
	"github.com/sells-group/housing-cli/internal/session"
)

// fakeFetcher serves canned bodies keyed by URL.
type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[string]string
	fail    map[string]error
	headers []http.Header
	calls   atomic.Int32
}

func (f *fakeFetcher) Fetch(_ context.Context, url string, header http.Header) (*scrape.Page, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.headers = append(f.headers, header)
	f.mu.Unlock()

	if err, ok := f.fail[url]; ok {
		return nil, err
	}
	body, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("unexpected url %s", url)
	}
	return &scrape.Page{URL: url, StatusCode: 200, Body: []byte(body)}, nil
}

func card(title string) string {
	return fmt.Sprintf(`<article class="placard">
		<div class="property-title">%s</div>
		<a class="property-link" href="/%s/">x</a>
		<p class="property-pricing">$1</p>
	</article>`, title, strings.ToLower(title))
}

func page(marker string, titles ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	if marker != "" {
		b.WriteString(`<span class="pageRange">` + marker + `</span>`)
	}
	for _, t := range titles {
		b.WriteString(card(t))
	}
	b.WriteString("</body></html>")
	return b.String()
}

const base = "https://www.apartments.com/san-francisco-ca/?bb=xyz"

func TestPageURL(t *testing.T) {
	s := New(base, &fakeFetcher{})

	u, err := s.PageURL(1)
	require.NoError(t, err)
	assert.Equal(t, base, u)

	u, err = s.PageURL(2)
	require.NoError(t, err)
	assert.Equal(t, "https://www.apartments.com/san-francisco-ca/2/?bb=xyz", u)

	noQuery := New("https://www.apartments.com/oakland-ca", &fakeFetcher{})
	u, err = noQuery.PageURL(12)
	require.NoError(t, err)
	assert.Equal(t, "https://www.apartments.com/oakland-ca/12/", u)
}

func TestFetchPage_MergesSessionHeaders(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{base: page("", "Alpha")}}
	sess := session.ProviderFunc(func(_ context.Context, url string) (http.Header, error) {
		assert.Equal(t, base, url)
		return http.Header{"Cookie": {"sid=1"}, "User-Agent": {"harvested"}}, nil
	})

	s := New(base, f, WithSession(sess))
	listings, err := s.FetchPage(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, "Alpha", listings[0].Title)

	require.Len(t, f.headers, 1)
	assert.Equal(t, "sid=1", f.headers[0].Get("Cookie"))
	assert.Equal(t, "harvested", f.headers[0].Get("User-Agent"))
	assert.NotEmpty(t, f.headers[0].Get("Accept-Language"))
}

func TestFetchPage_SessionError(t *testing.T) {
	sess := session.ProviderFunc(func(context.Context, string) (http.Header, error) {
		return nil, errors.New("chrome missing")
	})
	s := New(base, &fakeFetcher{}, WithSession(sess))

	_, err := s.FetchPage(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chrome missing")
}

func TestPageRange_CachedPerSource(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{base: page("Page 1 of 3")}}
	s := New(base, f)

	for i := 0; i < 3; i++ {
		r, err := s.PageRange(context.Background())
		require.NoError(t, err)
		assert.Equal(t, PageRange{1, 3}, r)
	}
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestPageRange_DefaultsWithoutMarker(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{base: page("", "Alpha")}}
	r, err := New(base, f).PageRange(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PageRange{1, 1}, r)
}

func TestFetchAll_PageFailureKeepsSiblings(t *testing.T) {
	f := &fakeFetcher{
		pages: map[string]string{
			base: page("Page 1 of 4", "A1", "A2"),
			"https://www.apartments.com/san-francisco-ca/2/?bb=xyz": page("", "B1"),
			"https://www.apartments.com/san-francisco-ca/4/?bb=xyz": page("", "D1", "D2"),
		},
		fail: map[string]error{
			"https://www.apartments.com/san-francisco-ca/3/?bb=xyz": errors.New("connection reset"),
		},
	}
	s := New(base, f, WithPool(pool.New(4, time.Second)))

	listings, errs := s.FetchAll(context.Background())

	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "page 3")

	var titles []string
	for i, l := range listings {
		titles = append(titles, l.Title)
		assert.Equal(t, i, l.Index)
	}
	assert.Equal(t, []string{"A1", "A2", "B1", "D1", "D2"}, titles, "page order is preserved")
}

func TestFetchAll_RangeError(t *testing.T) {
	f := &fakeFetcher{fail: map[string]error{base: errors.New("dns")}}
	listings, errs := New(base, f).FetchAll(context.Background())
	assert.Nil(t, listings)
	require.Len(t, errs, 1)
}

func TestSource_WithHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sf/":
			_, _ = w.Write([]byte(page("Page 1 of 2", "Alpha")))
		case "/sf/2/":
			assert.Equal(t, "q=1", r.URL.RawQuery)
			_, _ = w.Write([]byte(page("", "Beta")))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	fetcher := scrape.NewHTTPFetcher(scrape.WithRetry(resilience.RetryConfig{MaxAttempts: 1}))
	s := New(srv.URL+"/sf/?q=1", fetcher)

	listings, errs := s.FetchAll(context.Background())
	require.Empty(t, errs)
	require.Len(t, listings, 2)
	assert.Equal(t, "Alpha", listings[0].Title)
	assert.Equal(t, "Beta", listings[1].Title)
	assert.Equal(t, 2, listings[1].Page)
}
