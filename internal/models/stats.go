package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type WindowStats struct {
	TotalItems           int             `json:"total_items"`
	ItemsWithConsumption int             `json:"items_with_consumption"`
	TotalConsumption     decimal.Decimal `json:"total_consumption"`
	CompletionRate       float64         `json:"completion_rate"`
}

func ComputeWindowStats(items []ConsumptionItem) WindowStats {
	stats := WindowStats{TotalItems: len(items), TotalConsumption: decimal.Zero}
	for _, item := range items {
		if item.Quantity.IsPositive() {
			stats.ItemsWithConsumption++
		}
		stats.TotalConsumption = stats.TotalConsumption.Add(item.Quantity)
	}
	if stats.TotalItems > 0 {
		stats.CompletionRate = float64(stats.ItemsWithConsumption) / float64(stats.TotalItems)
	}
	return stats
}

type DirectoryStats struct {
	Windows          int             `json:"windows"`
	ActiveWindows    int             `json:"active_windows"`
	TotalItems       int             `json:"total_items"`
	TotalConsumption decimal.Decimal `json:"total_consumption"`
	Complete         bool            `json:"complete"`
	Syncing          bool            `json:"syncing"`
}

type ReportLine struct {
	Category string          `json:"category"`
	Brand    string          `json:"brand"`
	Quantity decimal.Decimal `json:"quantity"`
	Stock    decimal.Decimal `json:"available_stock"`
}

// ConsumptionReport is what a window hands to the report collaborator.
type ConsumptionReport struct {
	EventID     string          `json:"event_id"`
	EventName   string          `json:"event_name"`
	Template    string          `json:"template"`
	GeneratedAt time.Time       `json:"generated_at"`
	Lines       []ReportLine    `json:"lines"`
	Total       decimal.Decimal `json:"total"`
}

// BuildReport keeps only items with consumption, in window order.
func BuildReport(eventID, eventName, template string, items []ConsumptionItem, now time.Time) ConsumptionReport {
	r := ConsumptionReport{
		EventID:     eventID,
		EventName:   eventName,
		Template:    template,
		GeneratedAt: now,
		Total:       decimal.Zero,
	}
	for _, item := range items {
		if !item.Quantity.IsPositive() {
			continue
		}
		r.Lines = append(r.Lines, ReportLine{
			Category: item.Category,
			Brand:    item.Brand,
			Quantity: item.Quantity,
			Stock:    item.AvailableStock,
		})
		r.Total = r.Total.Add(item.Quantity)
	}
	return r
}
