package models

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// CatalogItem is one row of the live inventory snapshot. It never carries a
// session's consumption.
type CatalogItem struct {
	ID             string          `json:"id" db:"id"`
	Brand          string          `json:"brand" db:"brand"`
	Category       string          `json:"category" db:"category"`
	AvailableStock decimal.Decimal `json:"available_stock" db:"available_stock"`
}

// Normalize trims the loose fields a backing store may return and fills in
// defaults for missing ones.
func (c CatalogItem) Normalize() CatalogItem {
	c.ID = strings.TrimSpace(c.ID)
	c.Brand = strings.TrimSpace(c.Brand)
	c.Category = strings.TrimSpace(c.Category)
	if c.Brand == "" {
		c.Brand = c.ID
	}
	if c.Category == "" {
		c.Category = UncategorizedCategory
	}
	if c.AvailableStock.IsNegative() {
		c.AvailableStock = decimal.Zero
	}
	return c
}

const UncategorizedCategory = "Other"

var DefaultCategories = []string{"Wine", "Beer", "Spirits", "Cocktails", "Non-Alcoholic"}

var DefaultBrands = map[string][]string{
	"Wine":          {"House Red", "House White", "Prosecco", "Rosé"},
	"Beer":          {"Draft Lager", "IPA", "Stout", "Wheat Beer"},
	"Spirits":       {"Gin", "Rum", "Tequila", "Vodka", "Whisky"},
	"Cocktails":     {"Aperol Spritz", "Margarita", "Mojito", "Negroni"},
	"Non-Alcoholic": {"Cola", "Orange Juice", "Soda Water", "Still Water"},
}

// DedupeStrings drops blanks and repeated names while keeping the order of
// first occurrence.
func DedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// DefaultWindowConfig returns the built-in demonstration configuration.
func DefaultWindowConfig() WindowConfig {
	brands := make(map[string][]string, len(DefaultBrands))
	for k, v := range DefaultBrands {
		brands[k] = slices.Clone(v)
	}
	return WindowConfig{
		Categories: slices.Clone(DefaultCategories),
		Brands:     brands,
		Email: EmailSettings{
			Template: "summary",
		},
	}
}
