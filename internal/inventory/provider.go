// Package inventory defines the collaborator boundary of the consumption
// tracker: catalog reads, manager emails, events, reports and the sheet sync
// that windows push quantity changes to.
package inventory

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"consumption-tracker/internal/models"
)

// ErrDataUnavailable is returned when the organization has no catalog
// configured. Callers degrade to the built-in defaults.
var ErrDataUnavailable = errors.New("catalog data unavailable")

// ErrEventNotFound is returned by UpdateEvent for unknown event ids.
var ErrEventNotFound = errors.New("event not found")

// Provider is the InventorySnapshotProvider of one organization.
type Provider interface {
	ListCategories(ctx context.Context) ([]string, error)
	ListBrands(ctx context.Context, category string) ([]string, error)
	ListManagerEmails(ctx context.Context) ([]string, error)
	UpdateManagerEmails(ctx context.Context, emails []string) error

	// LoadLiveInventorySnapshot returns the read-only catalog with current
	// stock. It never includes any session's consumption.
	LoadLiveInventorySnapshot(ctx context.Context, sourceKey string) ([]models.CatalogItem, error)

	CreateEvent(ctx context.Context, name string) (string, error)
	UpdateEvent(ctx context.Context, eventID, name string) error

	// SendFormattedReport hands the report to the delivery collaborator.
	SendFormattedReport(ctx context.Context, eventID string, recipients []string, report models.ConsumptionReport) error
}

// SheetSync is the external connection a window pushes quantity changes to.
type SheetSync interface {
	PushConsumption(ctx context.Context, target, eventID, itemID string, quantity decimal.Decimal) error
}

// DefaultSourceKey is used when a window has no sheet target.
const DefaultSourceKey = "live"
