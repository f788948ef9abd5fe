package models

import (
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ItemKey is the window-scoped identity of an item. Two windows loading the
// same catalog row get distinct keys.
type ItemKey struct {
	WindowID uuid.UUID `json:"window_id"`
	ItemID   string    `json:"item_id"`
}

// String is for display and DOM ids only; the item part is path-escaped so
// separators inside catalog ids stay unambiguous.
func (k ItemKey) String() string {
	return k.WindowID.String() + "/" + url.PathEscape(k.ItemID)
}

type ConsumptionItem struct {
	Key            ItemKey         `json:"key"`
	Brand          string          `json:"brand"`
	Category       string          `json:"category"`
	Quantity       decimal.Decimal `json:"quantity"`
	AvailableStock decimal.Decimal `json:"available_stock"`
	LastUpdated    time.Time       `json:"last_updated,omitzero"`
	Pending        bool            `json:"pending"`
}

type EmailSettings struct {
	Recipients []string `json:"recipients"`
	Template   string   `json:"template"`
	AutoSend   bool     `json:"auto_send"`
}

type SheetSettings struct {
	TargetID    string `json:"target_id"`
	Naming      string `json:"naming"`
	ColumnRange string `json:"column_range"`
}

// WindowConfig is copied into every window at creation; windows never share
// a mutable config afterwards.
type WindowConfig struct {
	Categories []string            `json:"categories"`
	Brands     map[string][]string `json:"brands"`
	Email      EmailSettings       `json:"email"`
	Sheet      SheetSettings       `json:"sheet"`

	// HalfStepCategories are counted in halves, as rooms are.
	HalfStepCategories []string `json:"half_step_categories,omitempty"`
}

func (c WindowConfig) Clone() WindowConfig {
	out := c
	out.Categories = slices.Clone(c.Categories)
	out.Brands = make(map[string][]string, len(c.Brands))
	for k, v := range c.Brands {
		out.Brands[k] = slices.Clone(v)
	}
	out.Email.Recipients = slices.Clone(c.Email.Recipients)
	out.HalfStepCategories = slices.Clone(c.HalfStepCategories)
	return out
}

// CategoryRank returns the configured position of category, or -1.
func (c WindowConfig) CategoryRank(category string) int {
	return slices.Index(c.Categories, category)
}

type LayoutMode string

const (
	LayoutTabs LayoutMode = "tabs"
	LayoutGrid LayoutMode = "grid"
)

type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
	NoticeWarning NoticeKind = "warning"
)

type Notice struct {
	Kind      NoticeKind `json:"kind"`
	Message   string     `json:"message"`
	ExpiresAt time.Time  `json:"expires_at,omitzero"`
}

// WindowSnapshot is an immutable copy of a window for rendering and JSON.
type WindowSnapshot struct {
	ID          uuid.UUID         `json:"id"`
	Position    int               `json:"position"`
	EventID     string            `json:"event_id,omitempty"`
	EventName   string            `json:"event_name"`
	DraftName   string            `json:"draft_name,omitempty"`
	IsActive    bool              `json:"is_active"`
	Loaded      bool              `json:"loaded"`
	Sending     bool              `json:"sending"`
	Fullscreen  bool              `json:"fullscreen"`
	Items       []ConsumptionItem `json:"items"`
	Collapsed   []string          `json:"collapsed,omitempty"`
	Notice      *Notice           `json:"notice,omitempty"`
	Stats       WindowStats       `json:"stats"`
	Config      WindowConfig      `json:"config"`
	CreatedAt   time.Time         `json:"created_at"`
	LastSynced  time.Time         `json:"last_synced,omitzero"`
	HasSyncLink bool              `json:"has_sync_link"`
}

// TabLabel is the condensed presentation of a window in the tab strip.
type TabLabel struct {
	ID          uuid.UUID       `json:"id"`
	Position    int             `json:"position"`
	Title       string          `json:"title"`
	Active      bool            `json:"active"`
	Consumption decimal.Decimal `json:"consumption"`
	Dirty       bool            `json:"dirty"`
}

// CategoryGroup is one collapsible group of the filtered window view.
type CategoryGroup struct {
	Category  string            `json:"category"`
	Collapsed bool              `json:"collapsed"`
	Items     []ConsumptionItem `json:"items"`
	Total     decimal.Decimal   `json:"total"`
}

type ViewFilter struct {
	Categories []string `json:"categories,omitempty"`
	Search     string   `json:"search,omitempty"`
}

// Matches reports whether item passes both the category filter and the
// case-insensitive search on brand or category.
func (f ViewFilter) Matches(item ConsumptionItem) bool {
	if len(f.Categories) > 0 && !slices.Contains(f.Categories, item.Category) {
		return false
	}
	term := strings.ToLower(strings.TrimSpace(f.Search))
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(item.Brand), term) ||
		strings.Contains(strings.ToLower(item.Category), term)
}
