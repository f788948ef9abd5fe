package handlers

import (
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/google/uuid"

	"consumption-tracker/internal/errors"
	"consumption-tracker/internal/inventory"
	"consumption-tracker/internal/models"
	"consumption-tracker/internal/observability"
	"consumption-tracker/internal/session"
)

const maxBodyBytes = 64 << 10

// domainErrors maps session and collaborator sentinels onto the HTTP error
// taxonomy.
var domainErrors = []errors.Mapping{
	{Target: session.ErrWindowNotFound, Code: errors.CodeNotFound, Message: "Window not found"},
	{Target: session.ErrWindowClosed, Code: errors.CodeNotFound, Message: "Window was closed"},
	{Target: session.ErrItemNotFound, Code: errors.CodeNotFound, Message: "Item not found in this window"},
	{Target: session.ErrConfirmationRequired, Code: errors.CodeConfirmationRequired},
	{Target: session.ErrRenameInFlight, Code: errors.CodeConflict},
	{Target: session.ErrReportInFlight, Code: errors.CodeConflict},
	{Target: session.ErrNothingToReport, Code: errors.CodeConflict},
	{Target: session.ErrInvalidEventName, Code: errors.CodeValidation},
	{Target: session.ErrInvalidLayout, Code: errors.CodeValidation},
	{Target: models.ErrInvalidRequest, Code: errors.CodeValidation},
	{Target: session.ErrConfigLoadFailed, Code: errors.CodeConfigLoadFailed},
	{Target: inventory.ErrDataUnavailable, Code: errors.CodeDataUnavailable},
}

type APIHandlers struct {
	tracker *session.Tracker
	logger  *slog.Logger
	started time.Time
}

func NewAPIHandlers(tracker *session.Tracker, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		tracker: tracker,
		logger:  logger,
		started: time.Now(),
	}
}

type windowResponse struct {
	Window        models.WindowSnapshot  `json:"window"`
	Groups        []models.CategoryGroup `json:"groups"`
	CanSendReport bool                   `json:"can_send_report"`
}

func (h *APIHandlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := observability.GetRequestID(r.Context())
	errors.WriteError(w, observability.LoggerFrom(r.Context(), h.logger), appError(err), requestID)
}

func appError(err error) *errors.AppError {
	var rejected *session.RejectedError
	switch {
	case stderrors.Is(err, session.ErrWindowLimitExceeded):
		return errors.WindowLimitExceeded(session.MaxWindows)
	case stderrors.Is(err, session.ErrItemBusy):
		return errors.Conflict("A previous change to this item is still being saved")
	case stderrors.As(err, &rejected):
		return errors.UpdateRejected(err, "The change could not be saved and was rolled back")
	}
	return errors.FromDomain(err, domainErrors...)
}

func (h *APIHandlers) window(r *http.Request) (*session.Window, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return nil, errors.BadRequestWrap(err, "Malformed window id")
	}
	return h.tracker.Manager().Get(id)
}

func decode(w http.ResponseWriter, r *http.Request, req any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(req); err != nil {
		return errors.BadRequestWrap(err, "Malformed request body")
	}
	return models.Validate(req)
}

func filterFrom(r *http.Request) models.ViewFilter {
	q := r.URL.Query()
	return models.ViewFilter{
		Categories: q["category"],
		Search:     q.Get("search"),
	}
}

func (h *APIHandlers) windowResponse(win *session.Window, filter models.ViewFilter) (windowResponse, error) {
	snap, err := h.tracker.Manager().Snapshot(win.ID())
	if err != nil {
		return windowResponse{}, err
	}
	return windowResponse{
		Window:        snap,
		Groups:        win.View(filter),
		CanSendReport: win.CanSendReport(),
	}, nil
}

func (h *APIHandlers) respondWindow(w http.ResponseWriter, r *http.Request, win *session.Window, status int) {
	resp, err := h.windowResponse(win, filterFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	errors.WriteSuccessStatus(w, status, resp)
}

func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	errors.WriteSuccess(w, map[string]string{
		"status":    "healthy",
		"tracker":   string(h.tracker.State()),
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   "1.0.0",
	})
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	status := h.tracker.Status()
	errors.WriteSuccess(w, map[string]any{
		"state":      status.State,
		"degraded":   status.Degraded,
		"directory":  status.Stats,
		"uptime":     time.Since(h.started).Round(time.Second).String(),
		"goroutines": runtime.NumGoroutine(),
	})
}

// HandleRefreshCatalog reloads categories, brands and recipients for
// windows opened from now on.
func (h *APIHandlers) HandleRefreshCatalog(w http.ResponseWriter, r *http.Request) {
	if err := h.tracker.RefreshCatalog(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	status := h.tracker.Status()
	errors.WriteSuccess(w, map[string]any{
		"state":      status.State,
		"degraded":   status.Degraded,
		"categories": h.tracker.BaseConfig().Categories,
	})
}

func (h *APIHandlers) HandleTracker(w http.ResponseWriter, r *http.Request) {
	errors.WriteSuccessWithHeaders(w, h.tracker.Status(), map[string]string{
		"Cache-Control": "no-store",
	})
}

func (h *APIHandlers) HandleCreateWindow(w http.ResponseWriter, r *http.Request) {
	win, err := h.tracker.CreateWindow(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondWindow(w, r, win, http.StatusCreated)
}

func (h *APIHandlers) HandleWindow(w http.ResponseWriter, r *http.Request) {
	win, err := h.window(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondWindow(w, r, win, http.StatusOK)
}

func (h *APIHandlers) HandleActivate(w http.ResponseWriter, r *http.Request) {
	win, err := h.window(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if _, err := h.tracker.Manager().Activate(r.Context(), win.ID()); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondWindow(w, r, win, http.StatusOK)
}

func (h *APIHandlers) HandleClose(w http.ResponseWriter, r *http.Request) {
	win, err := h.window(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	if err := h.tracker.CloseWindow(r.Context(), win.ID(), confirmed); err != nil {
		h.writeError(w, r, err)
		return
	}
	errors.WriteSuccess(w, h.tracker.Status())
}

func (h *APIHandlers) updateQuantity(w http.ResponseWriter, r *http.Request, op session.QuantityOp) {
	win, err := h.window(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx := observability.WithWindowID(r.Context(), win.ID().String())
	item, err := win.UpdateQuantity(ctx, r.PathValue("item"), op)
	if err != nil {
		h.writeError(w, r.WithContext(ctx), err)
		return
	}
	errors.WriteSuccess(w, item)
}

func (h *APIHandlers) HandleIncrement(w http.ResponseWriter, r *http.Request) {
	h.updateQuantity(w, r, session.OpIncrement)
}

func (h *APIHandlers) HandleDecrement(w http.ResponseWriter, r *http.Request) {
	h.updateQuantity(w, r, session.OpDecrement)
}

func (h *APIHandlers) HandleSetQuantity(w http.ResponseWriter, r *http.Request) {
	var req models.SetQuantityRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.updateQuantity(w, r, session.OpSet(req.Value))
}

func (h *APIHandlers) HandleRenameEvent(w http.ResponseWriter, r *http.Request) {
	win, err := h.window(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req models.RenameEventRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := win.StageEventName(req.Name); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := win.CommitEventName(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondWindow(w, r, win, http.StatusOK)
}

func (h *APIHandlers) HandleSendReport(w http.ResponseWriter, r *http.Request) {
	win, err := h.window(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := win.SendReport(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondWindow(w, r, win, http.StatusOK)
}

func (h *APIHandlers) HandleToggleCategory(w http.ResponseWriter, r *http.Request) {
	win, err := h.window(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	collapsed := win.ToggleCategory(r.PathValue("category"))
	errors.WriteSuccess(w, map[string]any{
		"category":  r.PathValue("category"),
		"collapsed": collapsed,
	})
}

func (h *APIHandlers) HandleDismissNotice(w http.ResponseWriter, r *http.Request) {
	win, err := h.window(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	win.DismissNotice()
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandlers) HandleLayout(w http.ResponseWriter, r *http.Request) {
	var req models.LayoutRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.tracker.Manager().SetLayout(req.Mode); err != nil {
		h.writeError(w, r, err)
		return
	}
	errors.WriteSuccess(w, h.tracker.Manager().Layout())
}

func (h *APIHandlers) HandleEnterFullscreen(w http.ResponseWriter, r *http.Request) {
	win, err := h.window(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.tracker.Manager().EnterFullscreen(win.ID()); err != nil {
		h.writeError(w, r, err)
		return
	}
	errors.WriteSuccess(w, h.tracker.Manager().Layout())
}

func (h *APIHandlers) HandleExitFullscreen(w http.ResponseWriter, r *http.Request) {
	h.tracker.Manager().ExitFullscreen()
	errors.WriteSuccess(w, h.tracker.Manager().Layout())
}

func (h *APIHandlers) HandleManagerEmails(w http.ResponseWriter, r *http.Request) {
	var req models.ManagerEmailsRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.tracker.UpdateManagerEmails(r.Context(), req.Emails); err != nil {
		h.writeError(w, r, err)
		return
	}
	errors.WriteSuccess(w, map[string]any{
		"recipients": h.tracker.BaseConfig().Email.Recipients,
	})
}
