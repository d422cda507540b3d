// Package crawl scrapes a listing site and enriches every listing with
// third-party reviews.
package crawl

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/housing-cli/internal/model"
	"github.com/sells-group/housing-cli/internal/pool"
	"github.com/sells-group/housing-cli/internal/review"
)

// DefaultLimit is how many listings are enriched when no limit is configured.
const DefaultLimit = 3

// Listings is the listing-site side of a crawl.
type Listings interface {
	FetchPage(ctx context.Context, n int) ([]model.Listing, error)
	FetchAll(ctx context.Context) ([]model.Listing, []error)
}

// Crawler fetches listings and enriches them with every configured Source.
type Crawler struct {
	Listings Listings
	Sources  []review.Source
	Pool     *pool.Pool

	// Limit truncates the listing set before enrichment. Zero keeps all.
	Limit int
	// AllPages fetches every page in the site's page range instead of page 1.
	AllPages bool
}

// Stats summarizes one crawl.
type Stats struct {
	RunID      string
	Pages      int
	PageErrors int
	Listings   int
	Enriched   map[model.ReviewSource]int
	Failures   map[model.ReviewSource]int
	Duration   time.Duration
}

// Crawl runs one scrape-and-enrich pass. Review lookup failures are logged
// and leave that source's fields nil. The returned listings are in scrape
// order.
func (c *Crawler) Crawl(ctx context.Context) ([]model.Listing, error) {
	listings, _, err := c.CrawlWithStats(ctx)
	return listings, err
}

// CrawlWithStats is Crawl plus a run summary.
func (c *Crawler) CrawlWithStats(ctx context.Context) ([]model.Listing, *Stats, error) {
	start := time.Now()
	stats := &Stats{
		RunID:    uuid.New().String(),
		Enriched: make(map[model.ReviewSource]int, len(c.Sources)),
		Failures: make(map[model.ReviewSource]int, len(c.Sources)),
	}
	log := zap.L().With(zap.String("component", "crawl"), zap.String("run_id", stats.RunID))

	listings, err := c.fetchListings(ctx, log, stats)
	if err != nil {
		return nil, stats, err
	}
	if c.Limit > 0 && len(listings) > c.Limit {
		listings = listings[:c.Limit]
	}
	stats.Listings = len(listings)
	log.Info("crawl: listings fetched",
		zap.Int("listings", len(listings)),
		zap.Int("pages", stats.Pages),
		zap.Int("sources", len(c.Sources)),
	)

	out := c.enrich(ctx, log, listings, stats)
	stats.Duration = time.Since(start)

	fields := []zap.Field{
		zap.Int("listings", stats.Listings),
		zap.Int("page_errors", stats.PageErrors),
		zap.Duration("duration", stats.Duration),
	}
	for _, s := range c.Sources {
		name := string(s.Name())
		fields = append(fields,
			zap.Int(name+"_enriched", stats.Enriched[s.Name()]),
			zap.Int(name+"_failures", stats.Failures[s.Name()]),
		)
	}
	log.Info("crawl: complete", fields...)

	if err := ctx.Err(); err != nil {
		return out, stats, eris.Wrap(err, "crawl: canceled")
	}
	return out, stats, nil
}

func (c *Crawler) fetchListings(ctx context.Context, log *zap.Logger, stats *Stats) ([]model.Listing, error) {
	if !c.AllPages {
		stats.Pages = 1
		listings, err := c.Listings.FetchPage(ctx, 1)
		if err != nil {
			stats.PageErrors = 1
			return nil, eris.Wrap(err, "crawl: fetch listings")
		}
		model.Reindex(listings)
		return listings, nil
	}

	listings, errs := c.Listings.FetchAll(ctx)
	stats.PageErrors = len(errs)
	for _, err := range errs {
		log.Warn("crawl: page error", zap.Error(err))
	}
	if len(listings) == 0 && len(errs) > 0 {
		return nil, eris.Wrap(errors.Join(errs...), "crawl: every page failed")
	}
	stats.Pages = pagesSeen(listings) + len(errs)
	return listings, nil
}

func pagesSeen(listings []model.Listing) int {
	seen := make(map[int]struct{})
	for _, l := range listings {
		seen[l.Page] = struct{}{}
	}
	return len(seen)
}

func (c *Crawler) enrich(ctx context.Context, log *zap.Logger, listings []model.Listing, stats *Stats) []model.Listing {
	if len(c.Sources) == 0 || len(listings) == 0 {
		return listings
	}
	p := c.Pool
	if p == nil {
		p = pool.New(0, 0)
	}

	enriched := make([]atomic.Int64, len(c.Sources))
	failed := make([]atomic.Int64, len(c.Sources))

	results := pool.Map(ctx, p, listings, func(ctx context.Context, l model.Listing) (model.Listing, error) {
		for i, src := range c.Sources {
			r, err := src.Lookup(ctx, l.Title)
			if err != nil {
				failed[i].Add(1)
				log.Warn("crawl: review lookup failed",
					zap.String("source", string(src.Name())),
					zap.String("title", l.Title),
					zap.Error(err),
				)
				continue
			}
			if r != nil {
				enriched[i].Add(1)
				l.SetReview(r)
			}
		}
		return l, nil
	})

	out := make([]model.Listing, len(listings))
	for i, res := range results {
		if res.Err != nil {
			// Task never ran or panicked; keep the bare listing.
			log.Warn("crawl: enrichment skipped",
				zap.String("title", listings[i].Title),
				zap.Error(res.Err),
			)
			out[i] = listings[i]
			continue
		}
		out[i] = res.Value
	}
	model.SortByIndex(out)

	for i, s := range c.Sources {
		stats.Enriched[s.Name()] = int(enriched[i].Load())
		stats.Failures[s.Name()] = int(failed[i].Load())
	}
	return out
}
