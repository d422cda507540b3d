package main

import (
	"context"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/housing-cli/internal/cache"
	"github.com/sells-group/housing-cli/internal/config"
	"github.com/sells-group/housing-cli/internal/crawl"
	"github.com/sells-group/housing-cli/internal/listing"
	"github.com/sells-group/housing-cli/internal/model"
	"github.com/sells-group/housing-cli/internal/pool"
	"github.com/sells-group/housing-cli/internal/report"
	"github.com/sells-group/housing-cli/internal/resilience"
	"github.com/sells-group/housing-cli/internal/review"
	"github.com/sells-group/housing-cli/internal/scrape"
	"github.com/sells-group/housing-cli/internal/session"
	"github.com/sells-group/housing-cli/pkg/google"
	"github.com/sells-group/housing-cli/pkg/yelp"
)

// openReport opens a written report. Replaced in tests.
var openReport = browser.OpenFile

func runCrawl(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return run(ctx, cfg, args[0], args[1], cmd.OutOrStdout())
}

func run(ctx context.Context, c *config.Config, siteURL, outPath string, out io.Writer) error {
	if err := c.Validate(); err != nil {
		return err
	}

	crawler := newCrawler(c, siteURL)
	listings, err := crawler.Crawl(ctx)
	if err != nil {
		return err
	}

	if err := report.WriteFile(outPath, listings); err != nil {
		return err
	}
	report.PrintSummary(out, listings)
	zap.L().Info("report written", zap.String("path", outPath), zap.Int("listings", len(listings)))

	if c.Crawl.OpenReport {
		if err := openReport(outPath); err != nil {
			zap.L().Warn("could not open report", zap.String("path", outPath), zap.Error(err))
		}
	}
	return nil
}

// newCrawler wires the listing source and review sources from config.
func newCrawler(c *config.Config, siteURL string) *crawl.Crawler {
	p := pool.New(c.Crawl.Workers, seconds(c.Crawl.TaskTimeoutSecs))
	retry := resilience.FromConfig(c.Retry.MaxAttempts, c.Retry.InitialBackoffMs, c.Retry.MaxBackoffMs)
	cacheCfg := cache.Config{Size: c.Cache.Size, TTL: time.Duration(c.Cache.TTLMinutes) * time.Minute}

	browserOpts := []session.BrowserOption{session.WithHeadless(c.Session.Headless)}
	if c.Session.TimeoutSecs > 0 {
		browserOpts = append(browserOpts, session.WithTimeout(seconds(c.Session.TimeoutSecs)))
	}
	if c.Session.UserAgent != "" {
		browserOpts = append(browserOpts, session.WithUserAgent(c.Session.UserAgent))
	}
	if c.Session.ExecPath != "" {
		browserOpts = append(browserOpts, session.WithExecPath(c.Session.ExecPath))
	}
	chrome := session.NewBrowserProvider(browserOpts...)

	var sess session.Provider
	if c.Session.Enabled {
		sess = session.NewCachedProvider(chrome, cache.New[http.Header]("session", cacheCfg))
	}

	fetchOpts := []scrape.Option{scrape.WithRetry(retry)}
	if c.Listing.TimeoutSecs > 0 {
		fetchOpts = append(fetchOpts, scrape.WithHTTPClient(&http.Client{Timeout: seconds(c.Listing.TimeoutSecs)}))
	}
	if c.Listing.MaxBodyMB > 0 {
		fetchOpts = append(fetchOpts, scrape.WithMaxBody(int64(c.Listing.MaxBodyMB)<<20))
	}
	var fetcher scrape.Fetcher = scrape.NewHTTPFetcher(fetchOpts...)
	if c.Listing.BrowserFallback {
		fetcher = scrape.NewChain(fetcher, chrome)
	}
	listOpts := []listing.Option{listing.WithPool(p), listing.WithSelectors(c.Listing.Selectors)}
	if sess != nil {
		listOpts = append(listOpts, listing.WithSession(sess))
	}

	return &crawl.Crawler{
		Listings: listing.New(siteURL, fetcher, listOpts...),
		Sources:  newSources(c, sess, retry, cacheCfg),
		Pool:     p,
		Limit:    c.Crawl.Limit,
		AllPages: c.Crawl.AllPages,
	}
}

func newSources(c *config.Config, sess session.Provider, retry resilience.RetryConfig, cacheCfg cache.Config) []review.Source {
	var sources []review.Source

	if c.Yelp.Enabled {
		client := yelp.NewClient(
			yelp.WithBaseURL(c.Yelp.BaseURL),
			yelp.WithTimeout(seconds(c.Yelp.TimeoutSecs)),
			yelp.WithRetry(retry),
			yelp.WithCloudflareBypass(c.Yelp.CloudflareBypass),
		)
		opts := []review.YelpOption{review.WithLocation(c.Yelp.Location)}
		if sess != nil {
			opts = append(opts, review.WithYelpSession(sess))
		}
		sources = append(sources, review.NewYelp(client,
			cache.New[string]("yelp_url", cacheCfg),
			cache.New[*model.Review]("yelp_rating", cacheCfg),
			opts...,
		))
	}

	if c.Google.Enabled {
		client := google.NewClient(c.Google.Key,
			google.WithBaseURL(c.Google.BaseURL),
			google.WithRetry(retry),
		)
		sources = append(sources, review.NewGoogle(client,
			cache.New[*model.Review]("google_rating", cacheCfg),
			review.WithBias(&google.LocationBias{Circle: google.Circle{
				Center: google.LatLng{Latitude: c.Google.Latitude, Longitude: c.Google.Longitude},
				Radius: c.Google.RadiusMeters,
			}}),
			review.WithQuerySuffix(c.Google.QueryKeyword, c.Google.QuerySuffix),
		))
	}

	return sources
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
