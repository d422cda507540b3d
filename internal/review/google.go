package review

import (
	"context"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/housing-cli/internal/cache"
	"github.com/sells-group/housing-cli/internal/model"
	"github.com/sells-group/housing-cli/pkg/google"
)

// Rating bounds for a valid place rating.
const (
	MinRating = 0.0
	MaxRating = 5.0
)

// DefaultBias centers searches on downtown San Francisco with a 20 km radius.
func DefaultBias() *google.LocationBias {
	return &google.LocationBias{Circle: google.Circle{
		Center: google.LatLng{Latitude: 37.7959572, Longitude: -122.3944423},
		Radius: 20000,
	}}
}

// GoogleOption configures a Google source.
type GoogleOption func(*Google)

// WithBias sets the location bias circle.
func WithBias(b *google.LocationBias) GoogleOption {
	return func(g *Google) { g.bias = b }
}

// WithQuerySuffix appends suffix to titles that do not mention keyword.
// An empty suffix sends titles unchanged.
func WithQuerySuffix(keyword, suffix string) GoogleOption {
	return func(g *Google) {
		g.keyword = strings.ToLower(keyword)
		g.suffix = suffix
	}
}

// WithExtraFields requests extra place fields on every search.
func WithExtraFields(fields ...string) GoogleOption {
	return func(g *Google) { g.extraFields = fields }
}

// Google rates listings with the Places text search.
type Google struct {
	client      google.Client
	cache       *cache.Cache[*model.Review]
	bias        *google.LocationBias
	keyword     string
	suffix      string
	extraFields []string
}

// NewGoogle creates a Google source. Results are memoized per query in c.
func NewGoogle(client google.Client, c *cache.Cache[*model.Review], opts ...GoogleOption) *Google {
	g := &Google{
		client: client,
		cache:  c,
		bias:   DefaultBias(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Name implements Source.
func (g *Google) Name() model.ReviewSource { return model.ReviewSourceGoogle }

// Query returns the text actually sent for title.
func (g *Google) Query(title string) string {
	if g.suffix == "" || strings.Contains(strings.ToLower(title), g.keyword) {
		return title
	}
	return title + " " + g.suffix
}

// FindBestMatch runs a biased text search for query.
func (g *Google) FindBestMatch(ctx context.Context, query string, extraFields ...string) (*google.TextSearchResponse, error) {
	resp, err := g.client.TextSearch(ctx, google.TextSearchRequest{
		TextQuery:    g.Query(query),
		LocationBias: g.bias,
		Fields:       append(append([]string(nil), g.extraFields...), extraFields...),
	})
	if err != nil {
		return nil, eris.Wrapf(err, "review: google search %q", query)
	}
	return resp, nil
}

// FetchRating returns the top candidate's rating, or nil when there is no
// candidate. The search runs at most once per query.
func (g *Google) FetchRating(ctx context.Context, query string) (*model.Review, error) {
	return g.cache.GetOrLoad(ctx, query, func(ctx context.Context) (*model.Review, error) {
		resp, err := g.FindBestMatch(ctx, query)
		if err != nil {
			return nil, err
		}
		if len(resp.Places) == 0 {
			zap.L().Warn("review: no google results", zap.String("query", query))
			return nil, nil
		}

		top := resp.Places[0]
		if top.Rating < MinRating || top.Rating > MaxRating {
			zap.L().Warn("review: google rating out of range",
				zap.String("query", query),
				zap.String("place_id", top.ID),
				zap.Float64("rating", top.Rating),
			)
			return nil, nil
		}

		r := &model.Review{
			Source: model.ReviewSourceGoogle,
			Link:   google.MapsLink(top.ID),
		}
		if top.UserRatingCount > 0 {
			r.Rating = strconv.FormatFloat(top.Rating, 'f', -1, 64)
			r.ReviewCount = strconv.Itoa(top.UserRatingCount)
		}
		return r, nil
	})
}

// Lookup implements Source.
func (g *Google) Lookup(ctx context.Context, title string) (*model.Review, error) {
	return g.FetchRating(ctx, title)
}
