package session

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"consumption-tracker/internal/models"
)

var errRemote = errors.New("collaborator unavailable")

type fakeProvider struct {
	mu sync.Mutex

	categories    []string
	categoriesErr error
	brands        map[string][]string
	emails        []string
	emailsErr     error
	snapshot      []models.CatalogItem
	snapshotErr   error
	eventErr      error
	updateErr     error
	reportErr     error
	pushErr       error

	// block, when set, holds PushConsumption until it is closed.
	block chan struct{}

	brandCalls    int
	invalidations int
	events        map[string]string
	eventSeq      int
	renames       []string
	reports       []models.ConsumptionReport
	pushes        []decimal.Decimal
	savedEmails   []string
	snapshotKeys  []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		categories: []string{"Wine", "Beer"},
		brands: map[string][]string{
			"Wine": {"Prosecco", "House Red"},
			"Beer": {"IPA"},
		},
		emails: []string{"gm@bar.test"},
		snapshot: []models.CatalogItem{
			{ID: "ipa", Brand: "IPA", Category: "Beer", AvailableStock: decimal.NewFromInt(24)},
			{ID: "red", Brand: "House Red", Category: "Wine", AvailableStock: decimal.NewFromInt(12)},
			{ID: "pro", Brand: "Prosecco", Category: "Wine", AvailableStock: decimal.NewFromInt(6)},
			{ID: "kom", Brand: "Kombucha", Category: "Soft", AvailableStock: decimal.NewFromInt(3)},
		},
		events: make(map[string]string),
	}
}

func (p *fakeProvider) ListCategories(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.categories, p.categoriesErr
}

func (p *fakeProvider) ListBrands(ctx context.Context, category string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.brandCalls++
	return p.brands[category], nil
}

func (p *fakeProvider) ListManagerEmails(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.emails, p.emailsErr
}

func (p *fakeProvider) UpdateManagerEmails(ctx context.Context, emails []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.emailsErr != nil {
		return p.emailsErr
	}
	p.savedEmails = emails
	return nil
}

func (p *fakeProvider) LoadLiveInventorySnapshot(ctx context.Context, sourceKey string) ([]models.CatalogItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshotKeys = append(p.snapshotKeys, sourceKey)
	if p.snapshotErr != nil {
		return nil, p.snapshotErr
	}
	out := make([]models.CatalogItem, len(p.snapshot))
	copy(out, p.snapshot)
	return out, nil
}

func (p *fakeProvider) CreateEvent(ctx context.Context, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.eventErr != nil {
		return "", p.eventErr
	}
	p.eventSeq++
	id := fmt.Sprintf("ev-%d", p.eventSeq)
	p.events[id] = name
	return id, nil
}

func (p *fakeProvider) UpdateEvent(ctx context.Context, eventID, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := cmp.Or(p.updateErr, p.eventErr); err != nil {
		return err
	}
	p.events[eventID] = name
	p.renames = append(p.renames, name)
	return nil
}

func (p *fakeProvider) SendFormattedReport(ctx context.Context, eventID string, recipients []string, report models.ConsumptionReport) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reportErr != nil {
		return p.reportErr
	}
	p.reports = append(p.reports, report)
	return nil
}

func (p *fakeProvider) PushConsumption(ctx context.Context, target, eventID, itemID string, quantity decimal.Decimal) error {
	p.mu.Lock()
	block := p.block
	p.mu.Unlock()
	if block != nil {
		<-block
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pushErr != nil {
		return p.pushErr
	}
	p.pushes = append(p.pushes, quantity)
	return nil
}

func (p *fakeProvider) Invalidate(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.invalidations++
	return nil
}

func (p *fakeProvider) set(fn func(p *fakeProvider)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 17, 20, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testDeps(p *fakeProvider, clock *fakeClock) Deps {
	return Deps{
		Provider:  p,
		Sheet:     p,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		NoticeTTL: 3 * time.Second,
		Now:       clock.Now,
	}
}

func testConfig() models.WindowConfig {
	return models.WindowConfig{
		Categories: []string{"Wine", "Beer"},
		Brands:     map[string][]string{"Wine": {"House Red", "Prosecco"}, "Beer": {"IPA"}},
		Email:      models.EmailSettings{Recipients: []string{"gm@bar.test"}, Template: "summary"},
	}
}

func syncedConfig() models.WindowConfig {
	cfg := testConfig()
	cfg.Sheet.TargetID = "sheet-1"
	return cfg
}

// loadedWindow opens and loads one window over p.
func loadedWindow(t *testing.T, p *fakeProvider, clock *fakeClock, cfg models.WindowConfig) (*Manager, *Window) {
	t.Helper()
	m := NewManager(testDeps(p, clock))
	w, err := m.Create(cfg)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if _, err := m.Activate(context.Background(), w.ID()); err != nil {
		t.Fatalf("Activate() failed: %v", err)
	}
	return m, w
}
