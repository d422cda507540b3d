package report

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/sells-group/housing-cli/internal/model"
)

// PrintSummary writes a console table of listings to w.
func PrintSummary(w io.Writer, listings []model.Listing) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"#", "Title", "Price", "Yelp", "Google"})
	for _, l := range listings {
		t.AppendRow(table.Row{l.Index + 1, l.Title, l.Price, ratingCell(l.Yelp), ratingCell(l.Google)})
	}
	t.AppendFooter(table.Row{"", "Total", len(listings), countRated(listings, model.ReviewSourceYelp), countRated(listings, model.ReviewSourceGoogle)})
	t.Render()
}

func ratingCell(r *model.Review) string {
	if r == nil || r.Rating == "" {
		return "-"
	}
	if r.ReviewCount == "" {
		return r.Rating
	}
	return r.Rating + " (" + r.ReviewCount + ")"
}

func countRated(listings []model.Listing, src model.ReviewSource) int {
	n := 0
	for i := range listings {
		if listings[i].Review(src) != nil {
			n++
		}
	}
	return n
}
