package session

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"consumption-tracker/internal/inventory"
	"consumption-tracker/internal/models"
)

type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
)

var allStates = []string{string(StateConnecting), string(StateConnected), string(StateDisconnected)}

const brandFetchLimit = 4

// Options carry the organization context and the per-deployment window
// settings that do not come from the catalog.
type Options struct {
	OrganizationID     string
	Email              models.EmailSettings
	Sheet              models.SheetSettings
	HalfStepCategories []string
}

// Status is the top-level view of the tracker.
type Status struct {
	State    State                 `json:"state"`
	Degraded bool                  `json:"degraded"`
	Warning  string                `json:"warning,omitempty"`
	Layout   LayoutView            `json:"layout"`
	Stats    models.DirectoryStats `json:"stats"`
	Tabs     []models.TabLabel     `json:"tabs"`
	CanOpen  bool                  `json:"can_open"`
}

// Tracker bootstraps the shared configuration and owns the window manager.
// Window failures never change its state.
type Tracker struct {
	mu       sync.RWMutex
	state    State
	started  bool
	degraded bool
	demo     bool
	warning  string
	base     models.WindowConfig
	provider inventory.Provider

	opts    Options
	deps    Deps
	manager *Manager
}

func NewTracker(deps Deps, opts Options) *Tracker {
	deps = deps.withDefaults()
	return &Tracker{
		state:    StateConnecting,
		opts:     opts,
		deps:     deps,
		provider: deps.Provider,
		manager:  NewManager(deps),
	}
}

func (t *Tracker) Manager() *Manager { return t.manager }

// Start loads the configuration and opens the first window. Configuration
// problems degrade to the demonstration catalog with a warning instead of
// failing; only a second call returns an error.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	t.started = true
	t.mu.Unlock()
	t.deps.Metrics.SetTrackerState(string(StateConnecting), allStates)

	var (
		cfg     models.WindowConfig
		state   = StateConnected
		warning string
		demo    bool
	)

	switch {
	case t.opts.OrganizationID == "" || t.provider == nil:
		cfg = models.DefaultWindowConfig()
		warning = "No organization context available. Running with the demonstration catalog."
		demo = true
	default:
		var err error
		cfg, warning, err = t.loadConfig(ctx)
		if err != nil {
			state = StateDisconnected
			cfg = models.DefaultWindowConfig()
			warning = fmt.Sprintf("Configuration could not be loaded (%v). Running with the demonstration catalog.", err)
			demo = true
		}
	}

	cfg.Email.Template = cmp.Or(t.opts.Email.Template, cfg.Email.Template)
	cfg.Email.AutoSend = t.opts.Email.AutoSend
	cfg.Sheet = t.opts.Sheet
	cfg.HalfStepCategories = slices.Clone(t.opts.HalfStepCategories)

	t.mu.Lock()
	t.state = state
	t.warning = warning
	t.degraded = demo || warning != ""
	t.base = cfg
	t.demo = demo
	if demo {
		d := inventory.NewDemoProvider(t.deps.Logger)
		t.provider = d
		t.manager.useProvider(d, d)
	}
	t.mu.Unlock()

	t.deps.Metrics.SetTrackerState(string(state), allStates)
	if warning != "" {
		t.deps.Logger.Warn("tracker degraded", "state", state, "warning", warning)
	} else {
		t.deps.Logger.Info("tracker connected",
			"organization_id", t.opts.OrganizationID,
			"categories", len(cfg.Categories),
			"recipients", len(cfg.Email.Recipients),
		)
	}

	if _, err := t.CreateWindow(ctx); err != nil {
		return err
	}
	return nil
}

// loadConfig reads categories, brands and recipients from the provider.
// A missing catalog falls back to the default categories and is reported
// as a warning; any other failure is a configuration load failure.
func (t *Tracker) loadConfig(ctx context.Context) (models.WindowConfig, string, error) {
	var warning string

	categories, err := t.provider.ListCategories(ctx)
	switch {
	case errors.Is(err, inventory.ErrDataUnavailable):
		warning = "No catalog is configured for this organization. Using the default categories."
		cfg := models.DefaultWindowConfig()
		emails, err := t.provider.ListManagerEmails(ctx)
		if err != nil {
			return models.WindowConfig{}, "", fmt.Errorf("%w: manager emails: %w", ErrConfigLoadFailed, err)
		}
		cfg.Email.Recipients = models.DedupeStrings(emails)
		return cfg, warning, nil
	case err != nil:
		return models.WindowConfig{}, "", fmt.Errorf("%w: categories: %w", ErrConfigLoadFailed, err)
	}

	categories = models.DedupeStrings(categories)
	brands := make([][]string, len(categories))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(brandFetchLimit)
	for i, category := range categories {
		g.Go(func() error {
			list, err := t.provider.ListBrands(gctx, category)
			if err != nil {
				return fmt.Errorf("brands of %q: %w", category, err)
			}
			brands[i] = models.DedupeStrings(list)
			return nil
		})
	}

	var emails []string
	g.Go(func() error {
		var err error
		emails, err = t.provider.ListManagerEmails(gctx)
		if err != nil {
			return fmt.Errorf("manager emails: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return models.WindowConfig{}, "", fmt.Errorf("%w: %w", ErrConfigLoadFailed, err)
	}

	cfg := models.WindowConfig{
		Categories: categories,
		Brands:     make(map[string][]string, len(categories)),
		Email:      models.EmailSettings{Recipients: models.DedupeStrings(emails)},
	}
	for i, category := range categories {
		cfg.Brands[category] = brands[i]
	}
	return cfg, warning, nil
}

// CreateWindow opens a window with a clone of the current configuration and
// activates it. A snapshot load failure stays inside the new window.
func (t *Tracker) CreateWindow(ctx context.Context) (*Window, error) {
	t.mu.RLock()
	cfg := t.base.Clone()
	t.mu.RUnlock()

	w, err := t.manager.Create(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := t.manager.Activate(ctx, w.ID()); err != nil {
		t.deps.Logger.Warn("window load failed", "window_id", w.ID().String(), "error", err)
	}
	return w, nil
}

// UpdateManagerEmails writes the recipients through the provider. Only
// windows created afterwards pick the new list up.
func (t *Tracker) UpdateManagerEmails(ctx context.Context, emails []string) error {
	emails = models.DedupeStrings(emails)

	t.mu.RLock()
	provider := t.provider
	t.mu.RUnlock()

	if err := provider.UpdateManagerEmails(ctx, emails); err != nil {
		t.deps.Logger.Warn("manager email update failed", "error", err)
		return &RejectedError{Cause: err}
	}

	t.mu.Lock()
	t.base.Email.Recipients = slices.Clone(emails)
	t.mu.Unlock()

	t.deps.Logger.Info("manager emails updated", "recipients", len(emails))
	return nil
}

// CloseWindow closes a window through the manager. With auto-send on, a
// confirmed close of a window that has consumption sends its report first;
// a failed send is logged and the window still closes.
func (t *Tracker) CloseWindow(ctx context.Context, id uuid.UUID, confirmed bool) error {
	w, err := t.manager.Get(id)
	if err != nil {
		return err
	}
	if !confirmed && w.Dirty() {
		return ErrConfirmationRequired
	}

	if w.Config().Email.AutoSend && w.CanSendReport() {
		if err := w.SendReport(ctx); err != nil {
			t.deps.Logger.Warn("auto-send report failed", "window_id", id.String(), "error", err)
		} else {
			t.deps.Logger.Info("report sent on close", "window_id", id.String())
		}
	}
	return t.manager.Close(id, confirmed)
}

type catalogInvalidator interface {
	Invalidate(ctx context.Context) error
}

// RefreshCatalog drops cached catalog lists and reloads the configuration
// new windows start from. Open windows keep theirs. It is a no-op on the
// demonstration catalog.
func (t *Tracker) RefreshCatalog(ctx context.Context) error {
	t.mu.RLock()
	provider, demo := t.provider, t.demo
	t.mu.RUnlock()
	if demo {
		return nil
	}

	if c, ok := provider.(catalogInvalidator); ok {
		if err := c.Invalidate(ctx); err != nil {
			t.deps.Logger.Warn("catalog cache invalidation failed", "error", err)
		}
	}

	cfg, warning, err := t.loadConfig(ctx)
	if err != nil {
		t.deps.Logger.Warn("catalog refresh failed", "error", err)
		return err
	}

	t.mu.Lock()
	cfg.Email.Template = t.base.Email.Template
	cfg.Email.AutoSend = t.base.Email.AutoSend
	cfg.Sheet = t.base.Sheet
	cfg.HalfStepCategories = t.base.HalfStepCategories
	t.base = cfg
	t.warning = warning
	t.degraded = warning != ""
	t.mu.Unlock()

	t.deps.Logger.Info("catalog refreshed",
		"categories", len(cfg.Categories),
		"recipients", len(cfg.Email.Recipients),
	)
	return nil
}

// BaseConfig returns a copy of the configuration new windows start from.
func (t *Tracker) BaseConfig() models.WindowConfig {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.base.Clone()
}

func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

func (t *Tracker) Status() Status {
	t.mu.RLock()
	status := Status{
		State:    t.state,
		Degraded: t.degraded,
		Warning:  t.warning,
	}
	t.mu.RUnlock()

	status.Layout = t.manager.Layout()
	status.Stats = t.manager.Stats()
	status.Tabs = t.manager.Tabs()
	status.CanOpen = status.Stats.Windows < MaxWindows
	return status
}

