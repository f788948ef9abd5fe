// Package report renders consumption reports for the delivery collaborator.
package report

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/shopspring/decimal"

	"consumption-tracker/internal/models"
)

const (
	TemplateSummary  = "summary"
	TemplateDetailed = "detailed"
)

type Message struct {
	Subject string
	Body    string
}

type categoryTotal struct {
	Category string
	Quantity decimal.Decimal
}

type templateData struct {
	models.ConsumptionReport
	Date       string
	Categories []categoryTotal
}

var templates = template.Must(template.New(TemplateSummary).Parse(`<h2>Consumption report: {{.EventName}}</h2>
<p>{{.Date}}</p>
<table>
<thead><tr><th>Category</th><th>Consumed</th></tr></thead>
<tbody>
{{range .Categories}}<tr><td>{{.Category}}</td><td>{{.Quantity}}</td></tr>
{{end}}</tbody>
</table>
<p><strong>Total: {{.Total}}</strong></p>
`))

func init() {
	template.Must(templates.New(TemplateDetailed).Parse(`<h2>Consumption report: {{.EventName}}</h2>
<p>{{.Date}}</p>
<table>
<thead><tr><th>Category</th><th>Brand</th><th>Consumed</th><th>Stock at load</th></tr></thead>
<tbody>
{{range .Lines}}<tr><td>{{.Category}}</td><td>{{.Brand}}</td><td>{{.Quantity}}</td><td>{{.Stock}}</td></tr>
{{end}}</tbody>
</table>
<p><strong>Total: {{.Total}}</strong></p>
`))
}

// Render produces the subject and HTML body of r. Unknown template names fall
// back to the summary layout.
func Render(r models.ConsumptionReport) (Message, error) {
	name := r.Template
	if templates.Lookup(name) == nil {
		name = TemplateSummary
	}

	data := templateData{
		ConsumptionReport: r,
		Date:              r.GeneratedAt.Format("Mon 02 Jan 2006 15:04"),
		Categories:        totalsByCategory(r.Lines),
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return Message{}, fmt.Errorf("render %s report: %w", name, err)
	}

	return Message{
		Subject: fmt.Sprintf("Consumption report: %s (%s)", r.EventName, r.GeneratedAt.Format("2006-01-02")),
		Body:    buf.String(),
	}, nil
}

func totalsByCategory(lines []models.ReportLine) []categoryTotal {
	var out []categoryTotal
	index := make(map[string]int)
	for _, l := range lines {
		i, ok := index[l.Category]
		if !ok {
			i = len(out)
			index[l.Category] = i
			out = append(out, categoryTotal{Category: l.Category, Quantity: decimal.Zero})
		}
		out[i].Quantity = out[i].Quantity.Add(l.Quantity)
	}
	return out
}
