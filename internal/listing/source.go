// Package listing scrapes apartment listing cards from a paginated results site.
package listing

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/housing-cli/internal/model"
	"github.com/sells-group/housing-cli/internal/pool"
	"github.com/sells-group/housing-cli/internal/scrape"
	"github.com/sells-group/housing-cli/internal/session"
)

// DefaultHeaders returns the browser-like headers sent with every page request.
func DefaultHeaders() http.Header {
	return http.Header{
		"Accept":          {"text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7"},
		"Accept-Language": {"en-US,en;q=0.9"},
		"User-Agent":      {"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36"},
	}
}

// Option configures a Source.
type Option func(*Source)

// WithSession adds harvested session headers to every request.
func WithSession(p session.Provider) Option {
	return func(s *Source) { s.session = p }
}

// WithHeaders replaces the base request headers.
func WithHeaders(h http.Header) Option {
	return func(s *Source) { s.header = h }
}

// WithSelectors overrides the card selectors.
func WithSelectors(sel Selectors) Option {
	return func(s *Source) { s.selectors = sel.withDefaults() }
}

// WithPool runs page fetches on a shared pool.
func WithPool(p *pool.Pool) Option {
	return func(s *Source) { s.pool = p }
}

// Source fetches listings for one search URL.
type Source struct {
	baseURL   string
	fetcher   scrape.Fetcher
	session   session.Provider
	header    http.Header
	selectors Selectors
	pool      *pool.Pool

	mu        sync.Mutex
	pageRange *PageRange
}

// New creates a Source for baseURL, the first results page.
func New(baseURL string, fetcher scrape.Fetcher, opts ...Option) *Source {
	s := &Source{
		baseURL:   baseURL,
		fetcher:   fetcher,
		header:    DefaultHeaders(),
		selectors: DefaultSelectors(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.pool == nil {
		s.pool = pool.New(0, 0)
	}
	return s
}

// BaseURL returns the first results page URL.
func (s *Source) BaseURL() string { return s.baseURL }

// PageURL returns the URL for page n. Page 1 is the base URL verbatim;
// later pages insert "/n/" ahead of the query string.
func (s *Source) PageURL(n int) (string, error) {
	if n <= 1 {
		return s.baseURL, nil
	}
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return "", eris.Wrapf(err, "listing: parse base url %q", s.baseURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strconv.Itoa(n) + "/"
	u.RawPath = ""
	return u.String(), nil
}

func (s *Source) requestHeader(ctx context.Context) (http.Header, error) {
	if s.session == nil {
		return s.header.Clone(), nil
	}
	sess, err := s.session.Headers(ctx, s.baseURL)
	if err != nil {
		return nil, eris.Wrap(err, "listing: session headers")
	}
	return session.Merge(s.header, sess), nil
}

func (s *Source) fetch(ctx context.Context, n int) (*scrape.Page, error) {
	pageURL, err := s.PageURL(n)
	if err != nil {
		return nil, err
	}
	header, err := s.requestHeader(ctx)
	if err != nil {
		return nil, err
	}
	page, err := s.fetcher.Fetch(ctx, pageURL, header)
	if err != nil {
		return nil, eris.Wrapf(err, "listing: fetch page %d", n)
	}
	return page, nil
}

// FetchPage fetches and parses one results page. Unparseable cards are
// logged and skipped.
func (s *Source) FetchPage(ctx context.Context, n int) ([]model.Listing, error) {
	zap.L().Debug("listing: fetching page", zap.Int("page", n), zap.String("url", s.baseURL))

	page, err := s.fetch(ctx, n)
	if err != nil {
		return nil, err
	}

	listings, cardErrs := ParseCards(bytes.NewReader(page.Body), n, s.selectors)
	for _, cerr := range cardErrs {
		zap.L().Error("listing: skipping card", zap.Int("page", n), zap.Error(cerr))
	}
	return listings, nil
}

// PageRange reads the pagination marker from page 1. A successful result is
// kept for the life of the Source.
func (s *Source) PageRange(ctx context.Context) (PageRange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pageRange != nil {
		return *s.pageRange, nil
	}

	page, err := s.fetch(ctx, 1)
	if err != nil {
		return PageRange{}, err
	}
	r := ParsePageRange(bytes.NewReader(page.Body), s.selectors)
	s.pageRange = &r

	zap.L().Info("listing: page range", zap.Int("first", r.First), zap.Int("last", r.Last))
	return r, nil
}

// FetchAll fetches every page in PageRange concurrently. A failed page is
// reported in the returned errors and does not affect the other pages.
// Listings are returned in page order and indexed sequentially.
func (s *Source) FetchAll(ctx context.Context) ([]model.Listing, []error) {
	r, err := s.PageRange(ctx)
	if err != nil {
		return nil, []error{err}
	}

	results := pool.Map(ctx, s.pool, r.Pages(), s.FetchPage)

	var (
		all  []model.Listing
		errs []error
	)
	for _, res := range results {
		if res.Err != nil {
			zap.L().Warn("listing: page failed", zap.Error(res.Err))
			errs = append(errs, res.Err)
			continue
		}
		all = append(all, res.Value...)
	}
	model.Reindex(all)
	return all, errs
}
