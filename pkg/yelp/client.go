// Package yelp talks to the Yelp web frontend: the GraphQL batch endpoint
// behind the search box suggestions, and business profile pages.
package yelp

import (
	"context"
	"net/http"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"

	"github.com/sells-group/housing-cli/internal/resilience"
)

const (
	// DefaultBaseURL is the Yelp web origin.
	DefaultBaseURL = "https://www.yelp.com"

	suggestionsOperation  = "GetSuggestions"
	suggestionsDocumentID = "109c8a7e92ee9b481268cf55e8e21cc8ce753f8bf6453ad42ca7c1652ea0535f"
)

// Client performs Yelp frontend operations.
type Client interface {
	// Suggest returns search-box suggestions for prefix near location.
	Suggest(ctx context.Context, prefix, location string, header http.Header) ([]Suggestion, error)
	// Page fetches an HTML page, usually a business profile.
	Page(ctx context.Context, pageURL string, header http.Header) ([]byte, error)
	// BaseURL is the origin relative redirect URLs resolve against.
	BaseURL() string
}

// Suggestion is one search-box suggestion.
type Suggestion struct {
	Title       string `json:"title"`
	RedirectURL string `json:"redirectUrl"`
}

type gqlOperation struct {
	OperationName string        `json:"operationName"`
	Variables     gqlVariables  `json:"variables"`
	Extensions    gqlExtensions `json:"extensions"`
}

type gqlVariables struct {
	Capabilities []string `json:"capabilities"`
	Prefix       string   `json:"prefix"`
	Location     string   `json:"location"`
}

type gqlExtensions struct {
	OperationType string `json:"operationType"`
	DocumentID    string `json:"documentId"`
}

type suggestResult struct {
	Data struct {
		SearchSuggestFrontend struct {
			PrefetchSuggestions struct {
				Suggestions []Suggestion `json:"suggestions"`
			} `json:"prefetchSuggestions"`
		} `json:"searchSuggestFrontend"`
	} `json:"data"`
}

// Option configures the client.
type Option func(*options)

type options struct {
	baseURL   string
	timeout   time.Duration
	retry     resilience.RetryConfig
	cfBypass  bool
	transport http.RoundTripper
}

// WithBaseURL overrides the Yelp origin.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = strings.TrimSuffix(url, "/") }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithRetry overrides the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(o *options) { o.retry = cfg }
}

// WithCloudflareBypass toggles the TLS fingerprint shim on the transport.
func WithCloudflareBypass(enabled bool) Option {
	return func(o *options) { o.cfBypass = enabled }
}

// WithTransport replaces the underlying round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

type restyClient struct {
	http    *resty.Client
	baseURL string
	retry   resilience.RetryConfig
}

// NewClient creates a Yelp client.
func NewClient(opts ...Option) Client {
	o := options{
		baseURL:  DefaultBaseURL,
		timeout:  30 * time.Second,
		retry:    resilience.DefaultRetryConfig(),
		cfBypass: true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.retry.OnRetry == nil {
		o.retry.OnRetry = resilience.RetryLogger("yelp", "request")
	}

	httpClient := resty.New()
	httpClient.SetTimeout(o.timeout)
	httpClient.SetBaseURL(o.baseURL)
	if o.transport != nil {
		httpClient.SetTransport(o.transport)
	}
	if o.cfBypass {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}

	return &restyClient{http: httpClient, baseURL: o.baseURL, retry: o.retry}
}

func (c *restyClient) BaseURL() string { return c.baseURL }

// gqlHeader layers the JSON API headers over the session headers.
func (c *restyClient) gqlHeader(header http.Header) map[string][]string {
	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Accept", "*/*")
	h.Set("Content-Type", "application/json")
	h.Set("Origin", c.baseURL)
	return h
}

func (c *restyClient) Suggest(ctx context.Context, prefix, location string, header http.Header) ([]Suggestion, error) {
	batch := []gqlOperation{{
		OperationName: suggestionsOperation,
		Variables: gqlVariables{
			Capabilities: []string{},
			Prefix:       prefix,
			Location:     location,
		},
		Extensions: gqlExtensions{
			OperationType: "query",
			DocumentID:    suggestionsDocumentID,
		},
	}}

	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]Suggestion, error) {
		var out []suggestResult
		res, err := c.http.R().
			SetContext(ctx).
			SetHeaderMultiValues(c.gqlHeader(header)).
			SetBody(batch).
			SetResult(&out).
			Post("/gql/batch")
		if err != nil {
			return nil, eris.Wrap(err, "yelp: suggestions request")
		}
		if err := resilience.StatusError("yelp: suggestions", res.StatusCode()); err != nil {
			return nil, err
		}
		if len(out) == 0 {
			return nil, nil
		}
		return out[0].Data.SearchSuggestFrontend.PrefetchSuggestions.Suggestions, nil
	})
}

func (c *restyClient) Page(ctx context.Context, pageURL string, header http.Header) ([]byte, error) {
	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		res, err := c.http.R().
			SetContext(ctx).
			SetHeaderMultiValues(header.Clone()).
			Get(pageURL)
		if err != nil {
			return nil, eris.Wrapf(err, "yelp: fetch %s", pageURL)
		}
		if err := resilience.StatusError("yelp: page", res.StatusCode()); err != nil {
			return nil, err
		}
		return res.Body(), nil
	})
}
