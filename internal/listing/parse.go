package listing

import (
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/housing-cli/internal/model"
)

// PageRange is the inclusive span of result pages to fetch.
type PageRange struct {
	First int
	Last  int
}

// Pages lists every page number in the range.
func (r PageRange) Pages() []int {
	if r.Last < r.First {
		return []int{r.First}
	}
	pages := make([]int, 0, r.Last-r.First+1)
	for p := r.First; p <= r.Last; p++ {
		pages = append(pages, p)
	}
	return pages
}

var singlePage = PageRange{First: 1, Last: 1}

// e.g. <span class="pageRange">Page 3 of 28</span>
var pageRangeRe = regexp.MustCompile(`Page (\d+) of (\d+)`)

// ParsePageRange reads the "Page X of Y" marker, defaulting to a single page.
func ParsePageRange(r io.Reader, sel Selectors) PageRange {
	sel = sel.withDefaults()
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return singlePage
	}
	marker := doc.Find(sel.PageRange).First()
	if marker.Length() == 0 {
		return singlePage
	}
	return parsePageRangeText(marker.Text())
}

func parsePageRangeText(text string) PageRange {
	m := pageRangeRe.FindStringSubmatch(text)
	if m == nil {
		return singlePage
	}
	first, err1 := strconv.Atoi(m[1])
	last, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil || first < 1 || last < first {
		return singlePage
	}
	return PageRange{First: first, Last: last}
}

// ParseCards extracts one Listing per card on a results page. Cards that
// cannot be parsed are skipped and reported in the returned error slice.
func ParseCards(r io.Reader, page int, sel Selectors) ([]model.Listing, []error) {
	sel = sel.withDefaults()
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, []error{eris.Wrapf(err, "listing: parse page %d", page)}
	}

	var (
		listings []model.Listing
		errs     []error
	)
	doc.Find(sel.Card).Each(func(i int, card *goquery.Selection) {
		l, err := parseCard(card, sel)
		if err != nil {
			errs = append(errs, eris.Wrapf(err, "listing: page %d card %d", page, i))
			return
		}
		l.Page = page
		l.Index = len(listings)
		listings = append(listings, l)
	})
	return listings, errs
}

func parseCard(card *goquery.Selection, sel Selectors) (model.Listing, error) {
	title := firstMatch(card, sel.Title)
	if title == nil {
		return model.Listing{}, eris.New("missing title")
	}
	href, ok := card.Find(sel.Link).First().Attr("href")
	if !ok {
		return model.Listing{}, eris.New("missing link")
	}

	return model.Listing{
		Title:    strings.TrimSpace(title.Text()),
		Link:     strings.TrimSpace(href),
		Price:    parsePrice(card, sel),
		Location: parseAddress(card, sel),
	}, nil
}

// parsePrice takes the first price shape present and appends any specials
// note after a single space.
func parsePrice(card *goquery.Selection, sel Selectors) string {
	price := ""
	if s := firstMatch(card, sel.Price); s != nil {
		price = strings.TrimSpace(s.Text())
	}
	if special := card.Find(sel.Specials).First(); special.Length() > 0 {
		price += " " + strings.TrimSpace(special.Text())
	}
	return price
}

func parseAddress(card *goquery.Selection, sel Selectors) string {
	parts := card.Find(sel.Address).Map(func(_ int, s *goquery.Selection) string {
		return strings.TrimSpace(s.Text())
	})
	return strings.Join(parts, ", ")
}

// firstMatch returns the first selector in order that matches inside card.
func firstMatch(card *goquery.Selection, selectors []string) *goquery.Selection {
	for _, s := range selectors {
		if m := card.Find(s).First(); m.Length() > 0 {
			return m
		}
	}
	return nil
}
