// Package google is a minimal Google Places API (New) text search client.
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/housing-cli/internal/resilience"
)

const defaultBaseURL = "https://places.googleapis.com/v1"

// CoreFields are always requested from text search.
var CoreFields = []string{
	"id",
	"types",
	"formattedAddress",
	"displayName",
	"location",
	"rating",
	"userRatingCount",
}

// Client performs Google Places API operations.
type Client interface {
	TextSearch(ctx context.Context, req TextSearchRequest) (*TextSearchResponse, error)
}

// TextSearchRequest is the body of places:searchText. Fields lists extra
// place fields to add to the field mask on top of CoreFields.
type TextSearchRequest struct {
	TextQuery      string        `json:"textQuery"`
	LocationBias   *LocationBias `json:"locationBias,omitempty"`
	MaxResultCount int           `json:"maxResultCount,omitempty"`
	Fields         []string      `json:"-"`
}

// LocationBias prefers results inside a circle.
type LocationBias struct {
	Circle Circle `json:"circle"`
}

// Circle is a center point and radius in meters.
type Circle struct {
	Center LatLng  `json:"center"`
	Radius float64 `json:"radius"`
}

// LatLng is a WGS84 coordinate.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// TextSearchResponse is the response from Places Text Search.
type TextSearchResponse struct {
	Places []Place `json:"places"`
}

// Place represents a place returned by the API.
type Place struct {
	ID               string      `json:"id"`
	DisplayName      DisplayName `json:"displayName"`
	FormattedAddress string      `json:"formattedAddress"`
	Types            []string    `json:"types"`
	Location         *LatLng     `json:"location,omitempty"`
	Rating           float64     `json:"rating"`
	UserRatingCount  int         `json:"userRatingCount"`
	BusinessStatus   string      `json:"businessStatus,omitempty"`
	PriceLevel       string      `json:"priceLevel,omitempty"`
}

// DisplayName holds the place's display name.
type DisplayName struct {
	Text string `json:"text"`
}

// FieldMask renders the X-Goog-FieldMask header for CoreFields plus extra.
func FieldMask(extra ...string) string {
	seen := make(map[string]bool, len(CoreFields)+len(extra))
	parts := make([]string, 0, len(CoreFields)+len(extra))
	for _, f := range append(append([]string(nil), CoreFields...), extra...) {
		f = strings.TrimPrefix(f, "places.")
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		parts = append(parts, "places."+f)
	}
	return strings.Join(parts, ",")
}

// MapsLink returns the canonical Google Maps URL for a place ID.
func MapsLink(placeID string) string {
	return "https://www.google.com/maps/place/?q=place_id:" + url.QueryEscape(placeID)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetry overrides the retry policy for transient API failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	retry   resilience.RetryConfig
}

// NewClient creates a Google Places API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		retry: resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger("google", "text_search")
	}
	return c
}

func (c *httpClient) TextSearch(ctx context.Context, in TextSearchRequest) (*TextSearchResponse, error) {
	if c.apiKey == "" {
		return nil, eris.New("google: missing api key")
	}

	body, err := json.Marshal(in)
	if err != nil {
		return nil, eris.Wrap(err, "google: marshal request")
	}

	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*TextSearchResponse, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/places:searchText", bytes.NewReader(body))
		if err != nil {
			return nil, eris.Wrap(err, "google: create request")
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Goog-Api-Key", c.apiKey)
		req.Header.Set("X-Goog-FieldMask", FieldMask(in.Fields...))

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, eris.Wrap(err, "google: send request")
		}
		defer resp.Body.Close() //nolint:errcheck

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "google: read response")
		}

		if resp.StatusCode != http.StatusOK {
			err := eris.Errorf("google: unexpected status %d: %s", resp.StatusCode, string(respBody))
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return nil, resilience.NewTransientError(err, resp.StatusCode)
			}
			return nil, err
		}

		var result TextSearchResponse
		if err := json.Unmarshal(respBody, &result); err != nil {
			return nil, eris.Wrap(err, "google: unmarshal response")
		}
		return &result, nil
	})
}
