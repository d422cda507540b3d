// Package scrape fetches HTML pages for the listing scraper, retrying
// transient failures and detecting anti-bot challenge pages.
package scrape

import (
	"context"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Chain tries fetchers in priority order, returning the first success.
type Chain struct {
	fetchers []Fetcher
}

// NewChain creates a Chain. Fetchers are tried in order; the first
// successful page is returned.
func NewChain(fetchers ...Fetcher) *Chain {
	return &Chain{fetchers: fetchers}
}

// Fetch tries each fetcher in order for a single URL. A canceled context
// stops the chain immediately.
func (c *Chain) Fetch(ctx context.Context, targetURL string, header http.Header) (*Page, error) {
	var lastErr error
	for i, f := range c.fetchers {
		page, err := f.Fetch(ctx, targetURL, header)
		if err == nil && page != nil {
			return page, nil
		}
		if err == nil {
			err = eris.Errorf("scrape: fetcher %d returned no page", i)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, eris.Wrap(ctxErr, "scrape: chain canceled")
		}
		zap.L().Debug("scrape: fetcher failed, trying next",
			zap.Int("fetcher", i),
			zap.String("url", targetURL),
			zap.Error(err),
		)
		lastErr = err
	}
	if lastErr != nil {
		return nil, eris.Wrap(lastErr, "scrape: all fetchers failed")
	}
	return nil, eris.Errorf("scrape: no fetchers for url: %s", targetURL)
}
