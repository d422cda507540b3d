// Package model holds the listing and review records shared across the crawl.
package model

import "sort"

// ReviewSource identifies a third-party rating provider.
type ReviewSource string

const (
	ReviewSourceYelp   ReviewSource = "yelp"
	ReviewSourceGoogle ReviewSource = "google"
)

// NotFound is the canonical-URL sentinel used when a review site has no match.
const NotFound = "Not found"

// Review holds one provider's rating data for a listing. Values are kept as
// text because the review site reports them as free-form page text.
type Review struct {
	Source      ReviewSource `json:"source"`
	Rating      string       `json:"rating"`
	ReviewCount string       `json:"review_count"`
	Link        string       `json:"link"`
}

// Listing is one apartment scraped from a listing page, optionally enriched
// with third-party reviews. Yelp and Google stay nil until enrichment succeeds.
type Listing struct {
	Index    int    `json:"index"`
	Page     int    `json:"page"`
	Title    string `json:"title"`
	Price    string `json:"price"`
	Location string `json:"location"`
	Link     string `json:"link"`

	Yelp   *Review `json:"yelp,omitempty"`
	Google *Review `json:"google,omitempty"`
}

// SetReview attaches r to the field matching its source.
func (l *Listing) SetReview(r *Review) {
	if r == nil {
		return
	}
	switch r.Source {
	case ReviewSourceYelp:
		l.Yelp = r
	case ReviewSourceGoogle:
		l.Google = r
	}
}

// Review returns the review for src, or nil.
func (l *Listing) Review(src ReviewSource) *Review {
	switch src {
	case ReviewSourceYelp:
		return l.Yelp
	case ReviewSourceGoogle:
		return l.Google
	}
	return nil
}

// SortByIndex orders listings by their scrape position.
func SortByIndex(listings []Listing) {
	sort.SliceStable(listings, func(i, j int) bool {
		return listings[i].Index < listings[j].Index
	})
}

// Reindex assigns sequential indexes in slice order.
func Reindex(listings []Listing) {
	for i := range listings {
		listings[i].Index = i
	}
}
