package handlers

import (
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/starfederation/datastar-go/datastar"

	"consumption-tracker/internal/models"
	"consumption-tracker/internal/session"
)

var windowPanelTemplate = template.Must(template.New("windowPanel").Parse(`
<section id="window-{{.Window.ID}}" class="window{{if .Compact}} compact{{end}}{{if .Window.Fullscreen}} fullscreen{{end}}">
<header>
<h2>{{.Window.EventName}}</h2>
<span class="position">#{{.Window.Position}}</span>
{{with .Window.Notice}}<p class="notice notice-{{.Kind}}">{{.Message}}</p>{{end}}
</header>
{{range .Groups}}<details class="category"{{if not .Collapsed}} open{{end}}>
<summary>{{.Category}} <span class="total">{{.Total}}</span></summary>
<table>
<tbody>
{{range .Items}}<tr id="item-{{.Key.ItemID}}"{{if .Pending}} class="pending"{{end}}>
<td>{{.Brand}}</td>
<td class="stock">{{.AvailableStock}}</td>
<td class="quantity"><strong>{{.Quantity}}</strong></td>
</tr>
{{end}}</tbody>
</table>
</details>
{{end}}<footer>
<span>{{.Window.Stats.ItemsWithConsumption}}/{{.Window.Stats.TotalItems}} items</span>
<span>Total {{.Window.Stats.TotalConsumption}}</span>
<button{{if not .CanSendReport}} disabled{{end}}>Send report</button>
</footer>
</section>`))

type SSEHandlers struct {
	tracker *session.Tracker
	logger  *slog.Logger
}

func NewSSEHandlers(tracker *session.Tracker, logger *slog.Logger) *SSEHandlers {
	return &SSEHandlers{
		tracker: tracker,
		logger:  logger,
	}
}

type panelData struct {
	Window        models.WindowSnapshot
	Groups        []models.CategoryGroup
	CanSendReport bool
	Compact       bool
}

func (h *SSEHandlers) renderWindowPanel(data panelData) (string, error) {
	var buf strings.Builder
	err := windowPanelTemplate.Execute(&buf, data)
	return buf.String(), err
}

// HandleWindow patches the window panel and its stats signals.
func (h *SSEHandlers) HandleWindow(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "malformed window id", http.StatusBadRequest)
		return
	}
	manager := h.tracker.Manager()
	win, err := manager.Get(id)
	if err != nil {
		http.Error(w, "window not found", http.StatusNotFound)
		return
	}
	snap, err := manager.Snapshot(id)
	if err != nil {
		http.Error(w, "window not found", http.StatusNotFound)
		return
	}

	html, err := h.renderWindowPanel(panelData{
		Window:        snap,
		Groups:        win.View(filterFrom(r)),
		CanSendReport: win.CanSendReport(),
		Compact:       manager.Layout().Compact,
	})
	if err != nil {
		h.logger.Error("render window panel", "window_id", id.String(), "error", err)
		return
	}

	sse := datastar.NewSSE(w, r)
	sse.PatchElements(html)

	signals, err := json.Marshal(map[string]any{
		"window": map[string]any{
			"id":         snap.ID,
			"eventName":  snap.EventName,
			"stats":      snap.Stats,
			"sending":    snap.Sending,
			"lastSynced": snap.LastSynced,
		},
	})
	if err != nil {
		h.logger.Error("marshal window signals", "error", err)
		return
	}
	sse.PatchSignals(signals)

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// HandleStatus patches the tracker status bar signals.
func (h *SSEHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	status := h.tracker.Status()
	signals, err := json.Marshal(map[string]any{
		"tracker": map[string]any{
			"state":    status.State,
			"degraded": status.Degraded,
			"warning":  status.Warning,
			"canOpen":  status.CanOpen,
			"layout":   status.Layout,
			"stats":    status.Stats,
			"tabs":     status.Tabs,
		},
	})
	if err != nil {
		h.logger.Error("marshal status signals", "error", err)
		return
	}
	sse.PatchSignals(signals)

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
