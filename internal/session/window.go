// Package session holds the consumption tracking state machine: windows,
// the window directory and the tracker that bootstraps them.
package session

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"consumption-tracker/internal/inventory"
	"consumption-tracker/internal/models"
	"consumption-tracker/internal/observability"
)

const (
	defaultNoticeTTL     = 3 * time.Second
	defaultRemoteTimeout = 10 * time.Second
)

// Deps are the collaborators shared by every window of a tracker.
type Deps struct {
	Provider inventory.Provider
	Sheet    inventory.SheetSync
	Logger   *slog.Logger
	Metrics  *observability.Metrics

	NoticeTTL     time.Duration
	RemoteTimeout time.Duration
	Now           func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.NoticeTTL <= 0 {
		d.NoticeTTL = defaultNoticeTTL
	}
	if d.RemoteTimeout <= 0 {
		d.RemoteTimeout = defaultRemoteTimeout
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

type opKind int

const (
	opIncrement opKind = iota
	opDecrement
	opSet
)

// QuantityOp is one user action on an item's quantity.
type QuantityOp struct {
	kind  opKind
	input string
}

var (
	OpIncrement = QuantityOp{kind: opIncrement}
	OpDecrement = QuantityOp{kind: opDecrement}
)

// OpSet is a direct entry of input.
func OpSet(input string) QuantityOp { return QuantityOp{kind: opSet, input: input} }

func (op QuantityOp) apply(q *QuantityControl) bool {
	switch op.kind {
	case opIncrement:
		return q.Increment()
	case opDecrement:
		return q.Decrement()
	default:
		return q.SetDirect(op.input)
	}
}

type trackedItem struct {
	item    models.ConsumptionItem
	control QuantityControl
}

func (t *trackedItem) view() models.ConsumptionItem {
	out := t.item
	out.Quantity = t.control.Value()
	out.Pending = t.control.Busy()
	return out
}

// Window is one independent consumption session. Its items are a
// window-scoped copy of the inventory snapshot and never alias another
// window's state.
type Window struct {
	mu sync.Mutex

	id        uuid.UUID
	position  int
	isActive  bool
	createdAt time.Time
	config    models.WindowConfig

	eventID       string
	eventName     string
	committedName string
	draftName     string

	items     []*trackedItem
	index     map[string]*trackedItem
	loaded    bool
	loading   bool
	collapsed map[string]bool

	renaming   bool
	sending    bool
	notice     *models.Notice
	lastSynced time.Time
	closed     bool

	events singleflight.Group
	deps   Deps
	logger *slog.Logger
}

func newWindow(position int, isActive bool, cfg models.WindowConfig, deps Deps) *Window {
	id := uuid.New()
	w := &Window{
		id:        id,
		position:  position,
		isActive:  isActive,
		createdAt: deps.Now(),
		config:    cfg.Clone(),
		eventName: fmt.Sprintf("Event %d", position),
		index:     make(map[string]*trackedItem),
		collapsed: make(map[string]bool),
		deps:      deps,
		logger:    deps.Logger.With("window_id", id.String(), "position", position),
	}
	w.committedName = w.eventName
	return w
}

func (w *Window) ID() uuid.UUID { return w.id }

func (w *Window) Position() int { return w.position }

func (w *Window) EventName() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.eventName
}

// Config returns a copy of the configuration cloned into the window.
func (w *Window) Config() models.WindowConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.config.Clone()
}

func (w *Window) sourceKey() string {
	if w.config.Sheet.TargetID != "" {
		return w.config.Sheet.TargetID
	}
	return inventory.DefaultSourceKey
}

// Load fetches the live snapshot the first time the window is activated and
// builds its working set with every quantity at zero. Later calls are no-ops.
func (w *Window) Load(ctx context.Context) error {
	w.mu.Lock()
	if w.closed || w.loaded || w.loading || len(w.items) > 0 {
		w.mu.Unlock()
		return nil
	}
	w.loading = true
	source := w.sourceKey()
	w.mu.Unlock()

	var snapshot []models.CatalogItem
	err := w.remote(ctx, "load_snapshot", func(ctx context.Context) error {
		var err error
		snapshot, err = w.deps.Provider.LoadLiveInventorySnapshot(ctx, source)
		return err
	})

	w.mu.Lock()
	defer w.mu.Unlock()
	w.loading = false
	if w.closed {
		return ErrWindowClosed
	}
	if err != nil {
		w.setNotice(models.NoticeError, "Inventory could not be loaded: "+err.Error(), false)
		w.logger.Warn("snapshot load failed", "source_key", source, "error", err)
		return fmt.Errorf("%w: %w", inventory.ErrDataUnavailable, err)
	}

	w.items = w.scopedItems(snapshot)
	w.index = make(map[string]*trackedItem, len(w.items))
	for _, t := range w.items {
		w.index[t.item.Key.ItemID] = t
	}
	w.loaded = true
	if len(w.items) == 0 {
		w.setNotice(models.NoticeWarning, "No inventory items are available for this event", false)
	}
	w.logger.Info("window loaded", "source_key", source, "items", len(w.items))
	return nil
}

// scopedItems rewrites snapshot rows into window-scoped items ordered by
// configured category order, then brand. Unknown categories sort last.
func (w *Window) scopedItems(snapshot []models.CatalogItem) []*trackedItem {
	items := make([]*trackedItem, 0, len(snapshot))
	seen := make(map[string]struct{}, len(snapshot))
	for _, row := range snapshot {
		row = row.Normalize()
		if row.ID == "" {
			continue
		}
		if _, dup := seen[row.ID]; dup {
			continue
		}
		seen[row.ID] = struct{}{}
		control := NewQuantityControl()
		if slices.Contains(w.config.HalfStepCategories, row.Category) {
			control = NewRoomCountControl()
		}
		items = append(items, &trackedItem{
			item: models.ConsumptionItem{
				Key:            models.ItemKey{WindowID: w.id, ItemID: row.ID},
				Brand:          row.Brand,
				Category:       row.Category,
				AvailableStock: row.AvailableStock,
			},
			control: control,
		})
	}

	rank := func(category string) int {
		if r := w.config.CategoryRank(category); r >= 0 {
			return r
		}
		return len(w.config.Categories)
	}
	slices.SortStableFunc(items, func(a, b *trackedItem) int {
		return cmp.Or(
			cmp.Compare(rank(a.item.Category), rank(b.item.Category)),
			cmp.Compare(a.item.Category, b.item.Category),
			cmp.Compare(strings.ToLower(a.item.Brand), strings.ToLower(b.item.Brand)),
			cmp.Compare(a.item.Key.ItemID, b.item.Key.ItemID),
		)
	})
	return items
}

var errNoChange = errors.New("no change")

type quantityState struct {
	quantity    decimal.Decimal
	lastUpdated time.Time
}

// UpdateQuantity applies op to the item locally and, when the window has a
// sheet connection, pushes the new value. A failed push rolls the item back
// to its pre-update value. The returned item reflects the final local state.
func (w *Window) UpdateQuantity(ctx context.Context, itemID string, op QuantityOp) (models.ConsumptionItem, error) {
	var (
		tracked *trackedItem
		push    bool
		target  string
		value   decimal.Decimal
	)

	err := RunOptimistic(ctx, Optimistic[quantityState]{
		Apply: func() (quantityState, error) {
			w.mu.Lock()
			defer w.mu.Unlock()

			if w.closed {
				return quantityState{}, ErrWindowClosed
			}
			t, ok := w.index[itemID]
			if !ok {
				return quantityState{}, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
			}
			tracked = t
			if t.control.Busy() {
				return quantityState{}, ErrItemBusy
			}

			prev := quantityState{quantity: t.control.Value(), lastUpdated: t.item.LastUpdated}
			if !op.apply(&t.control) {
				return prev, errNoChange
			}
			t.item.LastUpdated = w.deps.Now()
			value = t.control.Value()

			target = w.config.Sheet.TargetID
			push = target != "" && w.deps.Sheet != nil
			if push {
				t.control.Begin()
			}
			return prev, nil
		},
		Commit: func(ctx context.Context) error {
			if !push {
				return nil
			}
			eventID, _, err := w.ensureEvent(ctx, "")
			if err != nil {
				return err
			}
			return w.remote(ctx, "push_consumption", func(ctx context.Context) error {
				return w.deps.Sheet.PushConsumption(ctx, target, eventID, itemID, value)
			})
		},
		Restore: func(prev quantityState) {
			w.mu.Lock()
			defer w.mu.Unlock()
			if w.closed {
				return
			}
			tracked.control.restore(prev.quantity)
			tracked.item.LastUpdated = prev.lastUpdated
		},
		Settle: func(err error) {
			w.mu.Lock()
			defer w.mu.Unlock()
			w.deps.Metrics.ObserveQuantityUpdate(err)
			if w.closed {
				return
			}
			tracked.control.Ack()
			if err != nil {
				w.setNotice(models.NoticeError, fmt.Sprintf("%s was not saved: %v", tracked.item.Brand, errors.Unwrap(err)), false)
				w.logger.Warn("quantity push rejected", "item_id", itemID, "error", err)
				return
			}
			if push {
				w.lastSynced = w.deps.Now()
			}
		},
	})

	switch {
	case errors.Is(err, errNoChange):
		err = nil
	case err != nil && tracked == nil:
		return models.ConsumptionItem{}, err
	}
	return w.itemView(tracked), err
}

func (w *Window) itemView(t *trackedItem) models.ConsumptionItem {
	if t == nil {
		return models.ConsumptionItem{}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return t.view()
}

// Item returns the current state of one item.
func (w *Window) Item(itemID string) (models.ConsumptionItem, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.index[itemID]
	if !ok {
		return models.ConsumptionItem{}, false
	}
	return t.view(), true
}

// ensureEvent returns the window's event id, creating the event on first
// use. The event is created as name, or under the last committed name when
// name is empty, so a rename still in flight never reaches the sheet through
// a push. Concurrent callers share one CreateEvent call and the first caller's
// name wins. The returned name is the one the event was created with, or
// empty when it already existed.
func (w *Window) ensureEvent(ctx context.Context, name string) (string, string, error) {
	w.mu.Lock()
	if w.eventID != "" {
		id := w.eventID
		w.mu.Unlock()
		return id, "", nil
	}
	if name == "" {
		name = w.committedName
	}
	w.mu.Unlock()

	type created struct{ id, name string }
	v, err, _ := w.events.Do("event", func() (any, error) {
		var id string
		err := w.remote(ctx, "create_event", func(ctx context.Context) error {
			var err error
			id, err = w.deps.Provider.CreateEvent(ctx, name)
			return err
		})
		if err != nil {
			return nil, err
		}

		w.mu.Lock()
		defer w.mu.Unlock()
		if w.eventID == "" {
			w.eventID = id
			w.logger.Info("event created", "event_id", id, "event_name", name)
		}
		return created{id: w.eventID, name: name}, nil
	})
	if err != nil {
		return "", "", err
	}
	c := v.(created)
	return c.id, c.name, nil
}

// StageEventName keeps an uncommitted edit of the event name.
func (w *Window) StageEventName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidEventName
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.draftName = name
	return nil
}

// CancelEventName drops the staged edit.
func (w *Window) CancelEventName() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.draftName = ""
}

// CommitEventName persists the staged name. On failure the displayed name
// reverts and an error notice is shown.
func (w *Window) CommitEventName(ctx context.Context) error {
	var name string

	err := RunOptimistic(ctx, Optimistic[string]{
		Apply: func() (string, error) {
			w.mu.Lock()
			defer w.mu.Unlock()

			if w.closed {
				return "", ErrWindowClosed
			}
			if w.renaming {
				return "", ErrRenameInFlight
			}
			name, w.draftName = w.draftName, ""
			if name == "" || name == w.eventName {
				return "", errNoChange
			}

			prev := w.eventName
			w.eventName = name
			w.renaming = true
			return prev, nil
		},
		Commit: func(ctx context.Context) error {
			eventID, createdAs, err := w.ensureEvent(ctx, name)
			if err != nil || createdAs == name {
				return err
			}
			return w.remote(ctx, "update_event", func(ctx context.Context) error {
				return w.deps.Provider.UpdateEvent(ctx, eventID, name)
			})
		},
		Restore: func(prev string) {
			w.mu.Lock()
			defer w.mu.Unlock()
			if !w.closed && w.eventName == name {
				w.eventName = prev
			}
		},
		Settle: func(err error) {
			w.mu.Lock()
			defer w.mu.Unlock()
			w.deps.Metrics.ObserveRename(err)
			w.renaming = false
			if w.closed {
				return
			}
			if err != nil {
				w.setNotice(models.NoticeError, fmt.Sprintf("Could not rename event: %v", errors.Unwrap(err)), false)
				w.logger.Warn("event rename rejected", "event_name", name, "error", err)
				return
			}
			w.committedName = name
			w.setNotice(models.NoticeSuccess, "Event renamed", true)
			w.logger.Info("event renamed", "event_id", w.eventID, "event_name", name)
		},
	})
	if errors.Is(err, errNoChange) {
		return nil
	}
	return err
}

// SendReport hands the window's consumption to the report collaborator.
// It is rejected while a send is in flight and when nothing was consumed.
func (w *Window) SendReport(ctx context.Context) error {
	var (
		recipients []string
		report     models.ConsumptionReport
	)

	return RunOptimistic(ctx, Optimistic[struct{}]{
		Apply: func() (struct{}, error) {
			w.mu.Lock()
			defer w.mu.Unlock()

			if w.closed {
				return struct{}{}, ErrWindowClosed
			}
			if w.sending {
				return struct{}{}, ErrReportInFlight
			}
			items := w.itemsLocked()
			if !models.ComputeWindowStats(items).TotalConsumption.IsPositive() {
				return struct{}{}, ErrNothingToReport
			}

			recipients = slices.Clone(w.config.Email.Recipients)
			report = models.BuildReport(w.eventID, w.eventName, w.config.Email.Template, items, w.deps.Now())
			w.sending = true
			return struct{}{}, nil
		},
		Commit: func(ctx context.Context) error {
			eventID, _, err := w.ensureEvent(ctx, "")
			if err != nil {
				return err
			}
			report.EventID = eventID
			return w.remote(ctx, "send_report", func(ctx context.Context) error {
				return w.deps.Provider.SendFormattedReport(ctx, eventID, recipients, report)
			})
		},
		Settle: func(err error) {
			w.mu.Lock()
			defer w.mu.Unlock()
			w.deps.Metrics.ObserveReport(err)
			w.sending = false
			if w.closed {
				return
			}
			if err != nil {
				w.setNotice(models.NoticeError, fmt.Sprintf("Report could not be sent: %v", errors.Unwrap(err)), true)
				w.logger.Warn("report send failed", "error", err)
				return
			}
			w.setNotice(models.NoticeSuccess, fmt.Sprintf("Report sent to %d recipient(s)", len(recipients)), true)
			w.logger.Info("report sent", "event_id", report.EventID, "recipients", len(recipients), "total", report.Total.String())
		},
	})
}

// CanSendReport mirrors the enabled state of the send action.
func (w *Window) CanSendReport() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.closed && !w.sending && models.ComputeWindowStats(w.itemsLocked()).TotalConsumption.IsPositive()
}

// View groups the items matching filter by category, in display order.
// Groups without matching items are omitted. It never mutates items.
func (w *Window) View(filter models.ViewFilter) []models.CategoryGroup {
	w.mu.Lock()
	defer w.mu.Unlock()

	var groups []models.CategoryGroup
	at := make(map[string]int)
	for _, t := range w.items {
		item := t.view()
		if !filter.Matches(item) {
			continue
		}
		i, ok := at[item.Category]
		if !ok {
			i = len(groups)
			at[item.Category] = i
			groups = append(groups, models.CategoryGroup{
				Category:  item.Category,
				Collapsed: w.collapsed[item.Category],
				Total:     decimal.Zero,
			})
		}
		groups[i].Items = append(groups[i].Items, item)
		groups[i].Total = groups[i].Total.Add(item.Quantity)
	}
	return groups
}

// ToggleCategory flips the collapsed state of category and returns it.
func (w *Window) ToggleCategory(category string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.collapsed[category] = !w.collapsed[category]
	if !w.collapsed[category] {
		delete(w.collapsed, category)
		return false
	}
	return true
}

func (w *Window) Stats() models.WindowStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return models.ComputeWindowStats(w.itemsLocked())
}

// Dirty reports whether any item has a quantity above zero.
func (w *Window) Dirty() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dirtyLocked()
}

func (w *Window) dirtyLocked() bool {
	for _, t := range w.items {
		if t.control.Value().IsPositive() {
			return true
		}
	}
	return false
}

func (w *Window) syncing() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sending || w.renaming || w.loading {
		return true
	}
	for _, t := range w.items {
		if t.control.Busy() {
			return true
		}
	}
	return false
}

// Notice returns the current notice, dropping it once expired.
func (w *Window) Notice() *models.Notice {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.noticeLocked()
}

func (w *Window) DismissNotice() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.notice = nil
}

// setNotice replaces the current notice. Transient notices expire after
// the configured TTL; others stay until dismissed or superseded.
func (w *Window) setNotice(kind models.NoticeKind, message string, transient bool) {
	n := &models.Notice{Kind: kind, Message: message}
	if transient {
		n.ExpiresAt = w.deps.Now().Add(w.deps.NoticeTTL)
	}
	w.notice = n
}

func (w *Window) noticeLocked() *models.Notice {
	if w.notice == nil {
		return nil
	}
	if !w.notice.ExpiresAt.IsZero() && !w.deps.Now().Before(w.notice.ExpiresAt) {
		w.notice = nil
		return nil
	}
	n := *w.notice
	return &n
}

func (w *Window) itemsLocked() []models.ConsumptionItem {
	items := make([]models.ConsumptionItem, len(w.items))
	for i, t := range w.items {
		items[i] = t.view()
	}
	return items
}

// Snapshot returns an immutable copy of the window for rendering.
func (w *Window) Snapshot() models.WindowSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	items := w.itemsLocked()
	collapsed := make([]string, 0, len(w.collapsed))
	for category := range w.collapsed {
		collapsed = append(collapsed, category)
	}
	slices.Sort(collapsed)

	return models.WindowSnapshot{
		ID:          w.id,
		Position:    w.position,
		EventID:     w.eventID,
		EventName:   w.eventName,
		DraftName:   w.draftName,
		IsActive:    w.isActive,
		Loaded:      w.loaded,
		Sending:     w.sending,
		Items:       items,
		Collapsed:   collapsed,
		Notice:      w.noticeLocked(),
		Stats:       models.ComputeWindowStats(items),
		Config:      w.config.Clone(),
		CreatedAt:   w.createdAt,
		LastSynced:  w.lastSynced,
		HasSyncLink: w.config.Sheet.TargetID != "" && w.deps.Sheet != nil,
	}
}

func (w *Window) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
}

// remote runs one collaborator call with the configured timeout and records
// its duration.
func (w *Window) remote(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, w.deps.RemoteTimeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	w.deps.Metrics.ObserveCollaborator(operation, time.Since(start).Seconds())
	return err
}
