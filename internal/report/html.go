// Package report renders crawl results as an HTML table and a console summary.
package report

import (
	"bytes"
	"html/template"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/housing-cli/internal/model"
)

// Columns is the fixed header row of the HTML report.
var Columns = []string{
	"yelp_rating",
	"yelp_review",
	"google_rating",
	"google_review",
	"price",
	"title",
	"location",
}

var page = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Apartment listings</title>
<style>
table { border-collapse: collapse; font-family: sans-serif; font-size: 14px; }
th, td { border: 1px solid #ccc; padding: 4px 8px; text-align: left; }
th { background: #f2f2f2; }
</style>
</head>
<body>
<table>
<thead>
<tr>{{range .Columns}}<th>{{.}}</th>{{end}}</tr>
</thead>
<tbody>
{{- range .Listings}}
<tr>
{{- template "review" .Yelp}}
{{- template "review" .Google}}
<td>{{.Price}}</td>
<td>{{if .Link}}<a href="{{.Link}}">{{.Title}}</a>{{else}}{{.Title}}{{end}}</td>
<td>{{.Location}}</td>
</tr>
{{- end}}
</tbody>
</table>
</body>
</html>
{{define "review"}}
<td>{{with .}}{{.Rating}}{{end}}</td>
<td>{{with .}}{{if .Link}}<a href="{{.Link}}">{{.ReviewCount}}</a>{{else}}{{.ReviewCount}}{{end}}{{end}}</td>
{{- end}}
`))

// RenderHTML renders listings as a single-table HTML document. Every
// scraped value is escaped; nil reviews render as empty cells.
func RenderHTML(listings []model.Listing) (string, error) {
	var buf bytes.Buffer
	err := page.Execute(&buf, struct {
		Columns  []string
		Listings []model.Listing
	}{Columns, listings})
	if err != nil {
		return "", eris.Wrap(err, "report: render html")
	}
	return buf.String(), nil
}

// WriteFile renders listings and writes the document to path.
func WriteFile(path string, listings []model.Listing) error {
	doc, err := RenderHTML(listings)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		return eris.Wrapf(err, "report: write %s", path)
	}
	return nil
}
