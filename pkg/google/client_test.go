package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/housing-cli/internal/resilience"
)

func noRetry() Option {
	return WithRetry(resilience.RetryConfig{MaxAttempts: 1})
}

func TestTextSearch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/places:searchText", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Goog-Api-Key"))
		assert.Contains(t, r.Header.Get("X-Goog-FieldMask"), "places.rating")
		assert.Contains(t, r.Header.Get("X-Goog-FieldMask"), "places.businessStatus")

		var body TextSearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "The Harlow", body.TextQuery)
		require.NotNil(t, body.LocationBias)
		assert.InDelta(t, 37.7959572, body.LocationBias.Circle.Center.Latitude, 1e-6)
		assert.InDelta(t, 20000, body.LocationBias.Circle.Radius, 0.001)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(TextSearchResponse{
			Places: []Place{
				{
					ID:              "ChIJ-harlow",
					DisplayName:     DisplayName{Text: "The Harlow"},
					Rating:          4.5,
					UserRatingCount: 127,
				},
			},
		})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), noRetry())
	resp, err := client.TextSearch(context.Background(), TextSearchRequest{
		TextQuery: "The Harlow",
		LocationBias: &LocationBias{Circle: Circle{
			Center: LatLng{Latitude: 37.7959572, Longitude: -122.3944423},
			Radius: 20000,
		}},
		Fields: []string{"businessStatus"},
	})

	require.NoError(t, err)
	require.Len(t, resp.Places, 1)
	assert.Equal(t, "ChIJ-harlow", resp.Places[0].ID)
	assert.InDelta(t, 4.5, resp.Places[0].Rating, 0.001)
	assert.Equal(t, 127, resp.Places[0].UserRatingCount)
}

func TestTextSearch_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), noRetry())
	resp, err := client.TextSearch(context.Background(), TextSearchRequest{TextQuery: "Nowhere"})

	require.NoError(t, err)
	assert.Empty(t, resp.Places)
}

func TestTextSearch_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error": "invalid API key"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient("bad-key", WithBaseURL(srv.URL), noRetry())
	resp, err := client.TextSearch(context.Background(), TextSearchRequest{TextQuery: "test"})

	assert.Error(t, err)
	assert.Nil(t, resp)
	assert.Contains(t, err.Error(), "403")
}

func TestTextSearch_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"places":[{"id":"p1"}]}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithRetry(resilience.RetryConfig{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
	}))
	resp, err := client.TextSearch(context.Background(), TextSearchRequest{TextQuery: "x"})

	require.NoError(t, err)
	assert.Equal(t, "p1", resp.Places[0].ID)
	assert.Equal(t, int32(2), calls.Load())
}

func TestTextSearch_MissingKey(t *testing.T) {
	client := NewClient("")
	_, err := client.TextSearch(context.Background(), TextSearchRequest{TextQuery: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing api key")
}

func TestTextSearch_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := client.TextSearch(ctx, TextSearchRequest{TextQuery: "test"})

	assert.Error(t, err)
	assert.Nil(t, resp)
}

func TestFieldMask(t *testing.T) {
	assert.Equal(t,
		"places.id,places.types,places.formattedAddress,places.displayName,places.location,places.rating,places.userRatingCount",
		FieldMask(),
	)
	assert.Equal(t,
		"places.id,places.types,places.formattedAddress,places.displayName,places.location,places.rating,places.userRatingCount,places.priceLevel",
		FieldMask("places.priceLevel", "rating", ""),
	)
}

func TestMapsLink(t *testing.T) {
	assert.Equal(t, "https://www.google.com/maps/place/?q=place_id:ChIJ-abc_123", MapsLink("ChIJ-abc_123"))
}
