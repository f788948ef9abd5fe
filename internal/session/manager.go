package session

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"consumption-tracker/internal/inventory"
	"consumption-tracker/internal/models"
)

// MaxWindows is the hard cap of concurrently open windows.
const MaxWindows = 3

// LayoutView names the windows to mount for the current layout.
type LayoutView struct {
	Mode       models.LayoutMode `json:"mode"`
	Fullscreen bool              `json:"fullscreen"`
	Compact    bool              `json:"compact"`
	Mounted    []uuid.UUID       `json:"mounted"`
}

// Manager is the window directory. Its mutex guards the directory, the
// selection and the layout; each window guards its own items. Lock order is
// always manager then window, and no remote call runs under the manager lock.
type Manager struct {
	mu       sync.RWMutex
	windows  []*Window
	activeID uuid.UUID
	focusID  uuid.UUID
	layout   models.LayoutMode
	deps     Deps
}

func NewManager(deps Deps) *Manager {
	return &Manager{
		layout: models.LayoutTabs,
		deps:   deps.withDefaults(),
	}
}

func (m *Manager) useProvider(p inventory.Provider, s inventory.SheetSync) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deps.Provider = p
	m.deps.Sheet = s
}

// Create opens a window with a clone of cfg in the lowest free position.
// At the cap it returns ErrWindowLimitExceeded and changes nothing.
func (m *Manager) Create(cfg models.WindowConfig) (*Window, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.windows) >= MaxWindows {
		m.deps.Logger.Warn("window limit reached", "limit", MaxWindows)
		return nil, fmt.Errorf("%w: at most %d windows", ErrWindowLimitExceeded, MaxWindows)
	}

	w := newWindow(m.freePosition(), len(m.windows) == 0, cfg, m.deps)
	m.windows = append(m.windows, w)
	if m.activeID == uuid.Nil {
		m.activeID = w.id
	}
	m.deps.Metrics.SetOpenWindows(len(m.windows))
	m.deps.Logger.Info("window created", "window_id", w.id.String(), "position", w.position, "open", len(m.windows))
	return w, nil
}

func (m *Manager) freePosition() int {
	taken := make(map[int]bool, len(m.windows))
	for _, w := range m.windows {
		taken[w.position] = true
	}
	for p := 1; p <= MaxWindows; p++ {
		if !taken[p] {
			return p
		}
	}
	return len(m.windows) + 1
}

func (m *Manager) findLocked(id uuid.UUID) (int, *Window) {
	i := slices.IndexFunc(m.windows, func(w *Window) bool { return w.id == id })
	if i < 0 {
		return -1, nil
	}
	return i, m.windows[i]
}

func (m *Manager) Get(id uuid.UUID) (*Window, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, w := m.findLocked(id); w != nil {
		return w, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrWindowNotFound, id)
}

// Windows returns the open windows in creation order.
func (m *Manager) Windows() []*Window {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.windows)
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.windows)
}

func (m *Manager) CanCreate() bool { return m.Count() < MaxWindows }

// Active returns the selected window, or nil when none is open.
func (m *Manager) Active() *Window {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, w := m.findLocked(m.activeID)
	return w
}

// Activate selects id and loads the window on its first activation. A load
// failure is reported but the window stays selected.
func (m *Manager) Activate(ctx context.Context, id uuid.UUID) (*Window, error) {
	m.mu.Lock()
	_, w := m.findLocked(id)
	if w == nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrWindowNotFound, id)
	}
	m.activeID = id
	m.mu.Unlock()

	return w, w.Load(ctx)
}

// Close removes a window. A dirty window needs confirmed; without it the
// call returns ErrConfirmationRequired and the window is untouched. Closing
// the active window selects the first remaining one.
func (m *Manager) Close(id uuid.UUID, confirmed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, w := m.findLocked(id)
	if w == nil {
		return fmt.Errorf("%w: %s", ErrWindowNotFound, id)
	}
	if !confirmed && w.Dirty() {
		return ErrConfirmationRequired
	}

	m.windows = slices.Delete(m.windows, i, i+1)
	w.close()

	if m.focusID == id {
		m.focusID = uuid.Nil
	}
	if m.activeID == id {
		m.activeID = uuid.Nil
		if len(m.windows) > 0 {
			m.activeID = m.windows[0].id
		}
	}

	m.deps.Metrics.SetOpenWindows(len(m.windows))
	m.deps.Logger.Info("window closed", "window_id", id.String(), "open", len(m.windows))
	return nil
}

// SetLayout switches between tabs and grid. Item state is untouched.
func (m *Manager) SetLayout(mode models.LayoutMode) error {
	if mode != models.LayoutTabs && mode != models.LayoutGrid {
		return fmt.Errorf("%w: %q", ErrInvalidLayout, mode)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.layout = mode
	return nil
}

// Layout resolves which windows are mounted. A fullscreen window bypasses
// the layout entirely.
func (m *Manager) Layout() LayoutView {
	m.mu.RLock()
	defer m.mu.RUnlock()

	view := LayoutView{Mode: m.layout, Mounted: []uuid.UUID{}}
	switch {
	case m.focusID != uuid.Nil:
		view.Fullscreen = true
		view.Mounted = append(view.Mounted, m.focusID)
	case m.layout == models.LayoutGrid:
		view.Compact = true
		for _, w := range m.windows {
			view.Mounted = append(view.Mounted, w.id)
		}
	case m.activeID != uuid.Nil:
		view.Mounted = append(view.Mounted, m.activeID)
	}
	return view
}

// EnterFullscreen focuses id, replacing any previous focus.
func (m *Manager) EnterFullscreen(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, w := m.findLocked(id); w == nil {
		return fmt.Errorf("%w: %s", ErrWindowNotFound, id)
	}
	m.focusID = id
	return nil
}

// ExitFullscreen releases the focus and restores the previous layout.
func (m *Manager) ExitFullscreen() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.focusID = uuid.Nil
}

// Snapshot returns the window's snapshot with directory-level flags set.
func (m *Manager) Snapshot(id uuid.UUID) (models.WindowSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, w := m.findLocked(id)
	if w == nil {
		return models.WindowSnapshot{}, fmt.Errorf("%w: %s", ErrWindowNotFound, id)
	}
	snap := w.Snapshot()
	snap.Fullscreen = m.focusID == id
	return snap, nil
}

// Stats aggregates every open window.
func (m *Manager) Stats() models.DirectoryStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := models.DirectoryStats{Windows: len(m.windows), TotalConsumption: decimal.Zero}
	consumed := 0
	for _, w := range m.windows {
		ws := w.Stats()
		if w.isActive {
			stats.ActiveWindows++
		}
		stats.TotalItems += ws.TotalItems
		stats.TotalConsumption = stats.TotalConsumption.Add(ws.TotalConsumption)
		consumed += ws.ItemsWithConsumption
		if w.syncing() {
			stats.Syncing = true
		}
	}
	stats.Complete = stats.TotalItems > 0 && consumed == stats.TotalItems
	return stats
}

// Tabs returns the tab strip labels in creation order.
func (m *Manager) Tabs() []models.TabLabel {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tabs := make([]models.TabLabel, 0, len(m.windows))
	for _, w := range m.windows {
		w.mu.Lock()
		tabs = append(tabs, models.TabLabel{
			ID:          w.id,
			Position:    w.position,
			Title:       w.eventName,
			Active:      w.id == m.activeID,
			Consumption: models.ComputeWindowStats(w.itemsLocked()).TotalConsumption,
			Dirty:       w.dirtyLocked(),
		})
		w.mu.Unlock()
	}
	return tabs
}
