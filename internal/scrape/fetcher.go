package scrape

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/housing-cli/internal/resilience"
)

// Page is a fetched HTML document, decoded to UTF-8.
type Page struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Source     string // "http" or "browser"
}

// Fetcher retrieves one HTML page with the given request headers.
type Fetcher interface {
	Fetch(ctx context.Context, url string, header http.Header) (*Page, error)
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(f *HTTPFetcher) { f.client = hc }
}

// WithRetry overrides the default retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(f *HTTPFetcher) { f.retry = cfg }
}

// WithMaxBody caps how many bytes of a response are read.
func WithMaxBody(n int64) Option {
	return func(f *HTTPFetcher) { f.maxBody = n }
}

// HTTPFetcher fetches pages via net/http, retrying transient failures and
// rejecting anti-bot challenge pages.
type HTTPFetcher struct {
	client  *http.Client
	retry   resilience.RetryConfig
	maxBody int64
}

// NewHTTPFetcher creates an HTTPFetcher with sensible defaults.
func NewHTTPFetcher(opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		retry:   resilience.DefaultRetryConfig(),
		maxBody: 8 << 20,
	}
	for _, o := range opts {
		o(f)
	}
	if f.retry.OnRetry == nil {
		f.retry.OnRetry = resilience.RetryLogger("scrape", "fetch")
	}
	return f
}

// Fetch GETs url with header, retrying transient failures.
func (f *HTTPFetcher) Fetch(ctx context.Context, targetURL string, header http.Header) (*Page, error) {
	return resilience.DoVal(ctx, f.retry, func(ctx context.Context) (*Page, error) {
		return f.fetchOnce(ctx, targetURL, header)
	})
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, targetURL string, header http.Header) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "scrape: create request")
	}
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "scrape: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		return nil, eris.Wrap(err, "scrape: read body")
	}

	if bt := DetectBlock(resp, body); bt != BlockNone {
		return nil, eris.Errorf("scrape: blocked (%s) at %s", bt, targetURL)
	}
	if err := resilience.StatusError("scrape", resp.StatusCode); err != nil {
		return nil, err
	}

	body, err = decodeCharset(resp.Header.Get("Content-Type"), body)
	if err != nil {
		zap.L().Debug("scrape: charset decode failed, using raw body",
			zap.String("url", targetURL),
			zap.Error(err),
		)
	}

	return &Page{
		URL:        targetURL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Source:     "http",
	}, nil
}

// decodeCharset converts body to UTF-8 based on the Content-Type charset.
// On failure the original body is returned with the error.
func decodeCharset(contentType string, body []byte) ([]byte, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return body, nil
	}
	charset := strings.ToLower(params["charset"])
	if charset == "" || charset == "utf-8" || charset == "utf8" {
		return body, nil
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return body, eris.Wrapf(err, "scrape: unsupported charset %q", charset)
	}
	decoded, err := io.ReadAll(enc.NewDecoder().Reader(bytes.NewReader(body)))
	if err != nil {
		return body, eris.Wrap(err, "scrape: decode body")
	}
	return decoded, nil
}
