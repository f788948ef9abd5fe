package report

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"consumption-tracker/internal/models"
)

func testReport(template string) models.ConsumptionReport {
	items := []models.ConsumptionItem{
		{Brand: "House Red", Category: "Wine", Quantity: decimal.NewFromInt(2), AvailableStock: decimal.NewFromInt(12)},
		{Brand: "Prosecco", Category: "Wine", Quantity: decimal.NewFromInt(1)},
		{Brand: "IPA", Category: "Beer", Quantity: decimal.RequireFromString("0.5")},
		{Brand: "Stout", Category: "Beer", Quantity: decimal.Zero},
	}
	return models.BuildReport("ev-1", "Saturday <Gala>", template, items, time.Date(2026, 10, 17, 22, 0, 0, 0, time.UTC))
}

func TestRender_Summary(t *testing.T) {
	msg, err := Render(testReport(TemplateSummary))
	if err != nil {
		t.Fatalf("Render() failed: %v", err)
	}

	if msg.Subject != "Consumption report: Saturday <Gala> (2026-10-17)" {
		t.Errorf("subject = %q", msg.Subject)
	}

	expected := []string{"<td>Wine</td><td>3</td>", "<td>Beer</td><td>0.5</td>", "Total: 3.5", "Saturday &lt;Gala&gt;"}
	for _, want := range expected {
		if !strings.Contains(msg.Body, want) {
			t.Errorf("body should contain %q, got:\n%s", want, msg.Body)
		}
	}
	if strings.Contains(msg.Body, "Stout") {
		t.Error("summary should not list zero lines")
	}
}

func TestRender_Detailed(t *testing.T) {
	msg, err := Render(testReport(TemplateDetailed))
	if err != nil {
		t.Fatalf("Render() failed: %v", err)
	}

	if !strings.Contains(msg.Body, "<td>Wine</td><td>House Red</td><td>2</td><td>12</td>") {
		t.Errorf("detailed body missing brand line:\n%s", msg.Body)
	}
}

func TestRender_UnknownTemplateFallsBack(t *testing.T) {
	msg, err := Render(testReport("fancy"))
	if err != nil {
		t.Fatalf("Render() failed: %v", err)
	}
	if !strings.Contains(msg.Body, "<th>Consumed</th>") {
		t.Error("unknown template should render the summary layout")
	}
}
