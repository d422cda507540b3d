package session

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/housing-cli/internal/scrape"
)

// Fetch renders url in Chrome with header sent on every request and returns
// the resulting DOM. It serves pages that a plain HTTP client cannot load.
func (b *BrowserProvider) Fetch(ctx context.Context, url string, header http.Header) (*scrape.Page, error) {
	tabCtx, closeBrowser := b.launch(ctx)
	defer closeBrowser()

	start := time.Now()
	var html string
	err := chromedp.Run(tabCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(extraHeaders(header)),
		chromedp.Navigate(url),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "session: render %s", url)
	}

	zap.L().Debug("session: page rendered",
		zap.String("url", url),
		zap.Int("bytes", len(html)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return &scrape.Page{
		URL:        url,
		StatusCode: http.StatusOK,
		Header:     http.Header{},
		Body:       []byte(html),
		Source:     "browser",
	}, nil
}

// extraHeaders converts header for the devtools protocol. The user agent is
// left to the browser.
func extraHeaders(header http.Header) network.Headers {
	out := make(network.Headers, len(header))
	for k, vals := range header {
		if strings.EqualFold(k, "User-Agent") || len(vals) == 0 {
			continue
		}
		out[k] = strings.Join(vals, ", ")
	}
	return out
}
