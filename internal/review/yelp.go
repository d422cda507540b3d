package review

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/housing-cli/internal/cache"
	"github.com/sells-group/housing-cli/internal/model"
	"github.com/sells-group/housing-cli/internal/session"
	"github.com/sells-group/housing-cli/pkg/yelp"
)

// DefaultYelpLocation scopes suggestion lookups.
const DefaultYelpLocation = "San Francisco Bay Area, CA, United States"

// YelpOption configures a Yelp source.
type YelpOption func(*Yelp)

// WithLocation sets the suggestion location.
func WithLocation(loc string) YelpOption {
	return func(y *Yelp) { y.location = loc }
}

// WithYelpSession adds harvested session headers to Yelp requests.
func WithYelpSession(p session.Provider) YelpOption {
	return func(y *Yelp) { y.session = p }
}

// Yelp rates listings by resolving a business page through Yelp's search
// suggestions and scraping the rating next to the reviews anchor.
type Yelp struct {
	client   yelp.Client
	session  session.Provider
	location string
	urls     *cache.Cache[string]
	ratings  *cache.Cache[*model.Review]
}

// NewYelp creates a Yelp source. urls memoizes canonical URLs per query and
// ratings memoizes results per query.
func NewYelp(client yelp.Client, urls *cache.Cache[string], ratings *cache.Cache[*model.Review], opts ...YelpOption) *Yelp {
	y := &Yelp{
		client:   client,
		location: DefaultYelpLocation,
		urls:     urls,
		ratings:  ratings,
	}
	for _, o := range opts {
		o(y)
	}
	return y
}

// Name implements Source.
func (y *Yelp) Name() model.ReviewSource { return model.ReviewSourceYelp }

func (y *Yelp) header(ctx context.Context) (http.Header, error) {
	if y.session == nil {
		return http.Header{}, nil
	}
	h, err := y.session.Headers(ctx, y.client.BaseURL())
	if err != nil {
		return nil, eris.Wrap(err, "review: yelp session")
	}
	return h, nil
}

// ResolveCanonicalURL returns the business page URL for query, or
// model.NotFound when Yelp has no suggestion.
func (y *Yelp) ResolveCanonicalURL(ctx context.Context, query string) (string, error) {
	return y.urls.GetOrLoad(ctx, query, func(ctx context.Context) (string, error) {
		h, err := y.header(ctx)
		if err != nil {
			return "", err
		}
		suggestions, err := y.client.Suggest(ctx, query, y.location, h)
		if err != nil {
			return "", eris.Wrapf(err, "review: yelp suggest %q", query)
		}
		for _, s := range suggestions {
			if s.RedirectURL != "" {
				return y.client.BaseURL() + s.RedirectURL, nil
			}
		}
		return model.NotFound, nil
	})
}

// FetchRating returns the Yelp rating for query, or nil when there is no
// business page or the page has no rating.
func (y *Yelp) FetchRating(ctx context.Context, query string) (*model.Review, error) {
	return y.ratings.GetOrLoad(ctx, query, func(ctx context.Context) (*model.Review, error) {
		link, err := y.ResolveCanonicalURL(ctx, query)
		if err != nil {
			return nil, err
		}
		if !strings.HasPrefix(link, "http://") && !strings.HasPrefix(link, "https://") {
			zap.L().Debug("review: no yelp page", zap.String("query", query))
			return nil, nil
		}

		h, err := y.header(ctx)
		if err != nil {
			return nil, err
		}
		body, err := y.client.Page(ctx, link, h)
		if err != nil {
			return nil, eris.Wrapf(err, "review: yelp page %s", link)
		}

		rating, count, ok, err := ParseYelpRating(body)
		if err != nil {
			return nil, err
		}
		if !ok {
			zap.L().Warn("review: yelp page has no rating", zap.String("url", link))
			return nil, nil
		}
		return &model.Review{
			Source:      model.ReviewSourceYelp,
			Rating:      rating,
			ReviewCount: count,
			Link:        link,
		}, nil
	})
}

// Lookup implements Source.
func (y *Yelp) Lookup(ctx context.Context, title string) (*model.Review, error) {
	return y.FetchRating(ctx, title)
}

// ParseYelpRating extracts the rating and review count from a business
// page. The count is the text of the first reviews anchor and the rating is
// the element just before that anchor's parent.
func ParseYelpRating(body []byte) (rating, count string, ok bool, err error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", "", false, eris.Wrap(err, "review: parse yelp page")
	}

	anchor := doc.Find(`a[href="#reviews"]`).First()
	if anchor.Length() == 0 {
		return "", "", false, nil
	}
	count = strings.TrimSpace(anchor.Text())
	rating = strings.TrimSpace(anchor.Parent().Prev().Text())
	return rating, count, true, nil
}
