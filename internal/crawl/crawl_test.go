package crawl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/housing-cli/internal/cache"
	"github.com/sells-group/housing-cli/internal/listing"
	"github.com/sells-group/housing-cli/internal/model"
	"github.com/sells-group/housing-cli/internal/pool"
	"github.com/sells-group/housing-cli/internal/report"
	"github.com/sells-group/housing-cli/internal/resilience"
	"github.com/sells-group/housing-cli/internal/review"
	"github.com/sells-group/housing-cli/internal/scrape"
	"github.com/sells-group/housing-cli/pkg/google"
	"github.com/sells-group/housing-cli/pkg/google/mocks"
)

type fakeListings struct {
	page     []model.Listing
	pageErr  error
	all      []model.Listing
	allErrs  []error
	allCalls atomic.Int32
}

func (f *fakeListings) FetchPage(_ context.Context, n int) ([]model.Listing, error) {
	if n != 1 {
		return nil, fmt.Errorf("unexpected page %d", n)
	}
	return append([]model.Listing(nil), f.page...), f.pageErr
}

func (f *fakeListings) FetchAll(context.Context) ([]model.Listing, []error) {
	f.allCalls.Add(1)
	return append([]model.Listing(nil), f.all...), f.allErrs
}

type fakeSource struct {
	name  model.ReviewSource
	fail  map[string]bool
	delay func(title string) time.Duration
	calls atomic.Int32
}

func (f *fakeSource) Name() model.ReviewSource { return f.name }

func (f *fakeSource) Lookup(ctx context.Context, title string) (*model.Review, error) {
	f.calls.Add(1)
	if f.delay != nil {
		select {
		case <-time.After(f.delay(title)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fail[title] {
		return nil, errors.New("lookup failed")
	}
	return &model.Review{Source: f.name, Rating: "4", ReviewCount: "10", Link: "https://r/" + title}, nil
}

func titles(n int) []model.Listing {
	out := make([]model.Listing, n)
	for i := range out {
		out[i] = model.Listing{Index: i, Page: 1, Title: fmt.Sprintf("Apt %d", i)}
	}
	return out
}

func TestCrawl_DefaultsToFirstPage(t *testing.T) {
	listings := &fakeListings{page: titles(2)}
	g := &fakeSource{name: model.ReviewSourceGoogle}

	c := &Crawler{Listings: listings, Sources: []review.Source{g}, Pool: pool.New(2, 0)}
	out, err := c.Crawl(context.Background())
	require.NoError(t, err)

	require.Len(t, out, 2)
	assert.Equal(t, int32(0), listings.allCalls.Load())
	for _, l := range out {
		require.NotNil(t, l.Google)
		assert.Nil(t, l.Yelp)
	}
}

func TestCrawl_Limit(t *testing.T) {
	g := &fakeSource{name: model.ReviewSourceGoogle}
	c := &Crawler{
		Listings: &fakeListings{page: titles(10)},
		Sources:  []review.Source{g},
		Pool:     pool.New(4, 0),
		Limit:    DefaultLimit,
	}

	out, err := c.Crawl(context.Background())
	require.NoError(t, err)
	assert.Len(t, out, 3)
	assert.Equal(t, int32(3), g.calls.Load())
}

func TestCrawl_AllPages(t *testing.T) {
	all := titles(4)
	all[2].Page, all[3].Page = 2, 2
	listings := &fakeListings{all: all, allErrs: []error{errors.New("page 3: reset")}}

	c := &Crawler{Listings: listings, Pool: pool.New(2, 0), AllPages: true}
	out, stats, err := c.CrawlWithStats(context.Background())
	require.NoError(t, err)
	assert.Len(t, out, 4)
	assert.Equal(t, 3, stats.Pages)
	assert.Equal(t, 1, stats.PageErrors)
	assert.NotEmpty(t, stats.RunID)
}

func TestCrawl_AllPagesFailed(t *testing.T) {
	c := &Crawler{
		Listings: &fakeListings{allErrs: []error{errors.New("dns")}},
		Pool:     pool.New(1, 0),
		AllPages: true,
	}
	_, err := c.Crawl(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "every page failed")
}

func TestCrawl_FirstPageError(t *testing.T) {
	c := &Crawler{Listings: &fakeListings{pageErr: errors.New("blocked")}, Pool: pool.New(1, 0)}
	_, err := c.Crawl(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crawl: fetch listings")
}

func TestCrawl_SourceFailureKeepsListing(t *testing.T) {
	g := &fakeSource{name: model.ReviewSourceGoogle, fail: map[string]bool{"Apt 1": true}}
	y := &fakeSource{name: model.ReviewSourceYelp}

	c := &Crawler{Listings: &fakeListings{page: titles(3)}, Sources: []review.Source{g, y}, Pool: pool.New(3, 0)}
	out, stats, err := c.CrawlWithStats(context.Background())
	require.NoError(t, err)

	require.Len(t, out, 3)
	assert.Nil(t, out[1].Google)
	assert.NotNil(t, out[1].Yelp)
	assert.NotNil(t, out[0].Google)
	assert.Equal(t, 2, stats.Enriched[model.ReviewSourceGoogle])
	assert.Equal(t, 1, stats.Failures[model.ReviewSourceGoogle])
	assert.Equal(t, 3, stats.Enriched[model.ReviewSourceYelp])
}

func TestCrawl_PreservesOrder(t *testing.T) {
	g := &fakeSource{
		name: model.ReviewSourceGoogle,
		// Earlier listings finish last.
		delay: func(title string) time.Duration {
			var n int
			_, _ = fmt.Sscanf(title, "Apt %d", &n)
			return time.Duration(6-n) * 5 * time.Millisecond
		},
	}
	c := &Crawler{Listings: &fakeListings{page: titles(6)}, Sources: []review.Source{g}, Pool: pool.New(6, 0)}

	out, err := c.Crawl(context.Background())
	require.NoError(t, err)
	for i, l := range out {
		assert.Equal(t, i, l.Index)
		assert.Equal(t, fmt.Sprintf("Apt %d", i), l.Title)
	}
}

func TestCrawl_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := &fakeSource{name: model.ReviewSourceGoogle}
	c := &Crawler{Listings: &fakeListings{page: titles(2)}, Sources: []review.Source{g}, Pool: pool.New(1, 0)}
	out, err := c.Crawl(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, out, 2)
	assert.Nil(t, out[0].Google)
}

const threeCards = `<html><body>
<span class="pageRange">Page 1 of 1</span>
<article class="placard">
  <div class="property-title">The Harlow</div>
  <a class="property-link" href="/the-harlow/">view</a>
  <p class="property-pricing">$3,100</p>
  <div class="property-address">1 Main St</div>
</article>
<article class="placard">
  <div class="property-title">Mission Lofts</div>
  <a class="property-link" href="/mission-lofts/">view</a>
  <p class="property-pricing">$2,800</p>
  <p class="property-specials">1 month free</p>
  <div class="property-address">200 Valencia St</div>
</article>
<article class="placard">
  <div class="property-title">Bayview Court</div>
  <a class="property-link" href="/bayview/">view</a>
  <p class="property-pricing">$1,900</p>
  <div class="property-address">9 Third St</div>
</article>
</body></html>`

func TestCrawl_EndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(threeCards))
	}))
	defer srv.Close()

	p := pool.New(4, 5*time.Second)
	fetcher := scrape.NewHTTPFetcher(scrape.WithRetry(resilience.RetryConfig{MaxAttempts: 1}))
	site := listing.New(srv.URL+"/san-francisco-ca/", fetcher, listing.WithPool(p))

	places := mocks.NewMockClient(t)
	places.On("TextSearch", mock.Anything, mock.Anything).
		Return(&google.TextSearchResponse{Places: []google.Place{{ID: "fixed", Rating: 4.2, UserRatingCount: 57}}}, nil)
	g := review.NewGoogle(places, cache.New[*model.Review]("google", cache.Config{Size: 16}))

	c := &Crawler{Listings: site, Sources: []review.Source{g}, Pool: p, Limit: DefaultLimit}
	out, err := c.Crawl(context.Background())
	require.NoError(t, err)

	require.Len(t, out, 3)
	assert.Equal(t, "The Harlow", out[0].Title)
	assert.Equal(t, "$2,800 1 month free", out[1].Price)
	for _, l := range out {
		require.NotNil(t, l.Google)
		assert.Equal(t, "4.2", l.Google.Rating)
		assert.Equal(t, "57", l.Google.ReviewCount)
		assert.Nil(t, l.Yelp)
	}

	doc, err := report.RenderHTML(out)
	require.NoError(t, err)
	assert.Equal(t, 4, strings.Count(doc, "<tr>"))
}
