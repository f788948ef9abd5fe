package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"consumption-tracker/internal/models"
)

// DemoProvider serves the built-in demonstration catalog. It backs the
// tracker when no organization context is available, so every operation
// succeeds locally.
type DemoProvider struct {
	mu      sync.RWMutex
	config  models.WindowConfig
	emails  []string
	events  map[string]string
	reports []models.ConsumptionReport
	pushes  map[string]decimal.Decimal
	logger  *slog.Logger
}

func NewDemoProvider(logger *slog.Logger) *DemoProvider {
	return &DemoProvider{
		config: models.DefaultWindowConfig(),
		events: make(map[string]string),
		pushes: make(map[string]decimal.Decimal),
		logger: logger,
	}
}

func (p *DemoProvider) ListCategories(ctx context.Context) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.config.Categories), nil
}

func (p *DemoProvider) ListBrands(ctx context.Context, category string) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.config.Brands[category]), nil
}

func (p *DemoProvider) ListManagerEmails(ctx context.Context) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.emails), nil
}

func (p *DemoProvider) UpdateManagerEmails(ctx context.Context, emails []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.emails = slices.Clone(emails)
	return nil
}

// LoadLiveInventorySnapshot derives one item per default brand. Ids are
// stable across calls so two windows load the same catalog rows.
func (p *DemoProvider) LoadLiveInventorySnapshot(ctx context.Context, sourceKey string) ([]models.CatalogItem, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var items []models.CatalogItem
	for ci, category := range p.config.Categories {
		for bi, brand := range p.config.Brands[category] {
			items = append(items, models.CatalogItem{
				ID:             demoItemID(category, brand),
				Brand:          brand,
				Category:       category,
				AvailableStock: decimal.NewFromInt(int64(12 + 6*ci + 3*bi)),
			})
		}
	}
	return items, nil
}

func (p *DemoProvider) CreateEvent(ctx context.Context, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := uuid.NewString()
	p.events[id] = name
	return id, nil
}

func (p *DemoProvider) UpdateEvent(ctx context.Context, eventID, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.events[eventID]; !ok {
		return fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
	}
	p.events[eventID] = name
	return nil
}

func (p *DemoProvider) SendFormattedReport(ctx context.Context, eventID string, recipients []string, report models.ConsumptionReport) error {
	p.mu.Lock()
	p.reports = append(p.reports, report)
	p.mu.Unlock()

	p.logger.Info("demo report recorded",
		"event_id", eventID,
		"recipients", len(recipients),
		"lines", len(report.Lines),
		"total", report.Total.String(),
	)
	return nil
}

func (p *DemoProvider) PushConsumption(ctx context.Context, target, eventID, itemID string, quantity decimal.Decimal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes[target+"|"+eventID+"|"+itemID] = quantity
	return nil
}

// Reports returns the reports recorded so far.
func (p *DemoProvider) Reports() []models.ConsumptionReport {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.reports)
}

func demoItemID(category, brand string) string {
	slug := func(s string) string {
		return strings.ReplaceAll(strings.ToLower(s), " ", "-")
	}
	return "demo-" + slug(category) + "-" + slug(brand)
}
