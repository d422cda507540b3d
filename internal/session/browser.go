package session

import (
	"context"
	"net/http"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// headerScript replays a same-origin request from inside the page and
// returns the raw response header block.
const headerScript = `(() => {
	const req = new XMLHttpRequest();
	req.open('GET', document.location, false);
	req.send(null);
	return req.getAllResponseHeaders();
})()`

// BrowserOption configures a BrowserProvider.
type BrowserOption func(*BrowserProvider)

// WithHeadless toggles headless mode.
func WithHeadless(headless bool) BrowserOption {
	return func(b *BrowserProvider) { b.headless = headless }
}

// WithTimeout bounds one harvest, including browser startup.
func WithTimeout(d time.Duration) BrowserOption {
	return func(b *BrowserProvider) { b.timeout = d }
}

// WithUserAgent sets the browser user agent.
func WithUserAgent(ua string) BrowserOption {
	return func(b *BrowserProvider) { b.userAgent = ua }
}

// WithExecPath points at a specific Chrome binary.
func WithExecPath(path string) BrowserOption {
	return func(b *BrowserProvider) { b.execPath = path }
}

// BrowserProvider launches a fresh Chrome per call and closes it before
// returning.
type BrowserProvider struct {
	headless  bool
	timeout   time.Duration
	userAgent string
	execPath  string
}

// NewBrowserProvider creates a BrowserProvider.
func NewBrowserProvider(opts ...BrowserOption) *BrowserProvider {
	b := &BrowserProvider{
		headless: true,
		timeout:  60 * time.Second,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *BrowserProvider) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.WindowSize(1920, 1080),
	}
	if b.headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	}
	if b.userAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.userAgent))
	}
	if b.execPath != "" {
		opts = append(opts, chromedp.ExecPath(b.execPath))
	}
	return opts
}

// launch starts a fresh Chrome bounded by the provider timeout. The
// returned func closes the browser.
func (b *BrowserProvider) launch(ctx context.Context) (context.Context, context.CancelFunc) {
	cancelTimeout := context.CancelFunc(func() {})
	if b.timeout > 0 {
		ctx, cancelTimeout = context.WithTimeout(ctx, b.timeout)
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, b.allocatorOptions()...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	return tabCtx, func() {
		cancelTab()
		cancelAlloc()
		cancelTimeout()
	}
}

// Headers loads url in Chrome and returns its cookies as a Cookie header
// together with the response headers of an in-page replay of the request.
func (b *BrowserProvider) Headers(ctx context.Context, url string) (http.Header, error) {
	tabCtx, closeBrowser := b.launch(ctx)
	defer closeBrowser()

	start := time.Now()
	var (
		cookies   []*network.Cookie
		rawHeader string
	)
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = network.GetCookies().Do(ctx)
			return err
		}),
		chromedp.Evaluate(headerScript, &rawHeader),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "session: harvest headers for %s", url)
	}

	jar := make(map[string]string, len(cookies))
	for _, c := range cookies {
		jar[c.Name] = c.Value
	}

	h := ParseHeaderBlock(rawHeader)
	if len(jar) > 0 {
		h.Set("Cookie", CookieHeader(jar))
	}

	zap.L().Info("session: headers harvested",
		zap.String("url", url),
		zap.Int("cookies", len(cookies)),
		zap.Int("headers", len(h)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return h, nil
}
