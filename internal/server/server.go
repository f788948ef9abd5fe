package server

import (
	"cmp"
	"log/slog"
	"net/http"

	"consumption-tracker/internal/handlers"
	"consumption-tracker/internal/session"
)

type Server struct {
	tracker     *session.Tracker
	mux         *http.ServeMux
	logger      *slog.Logger
	apiHandlers *handlers.APIHandlers
	sseHandlers *handlers.SSEHandlers
}

type TemplateHandlers struct {
	Page        http.HandlerFunc
	Metrics     http.Handler
	MetricsPath string
}

func NewServer(tracker *session.Tracker, logger *slog.Logger, templateHandlers *TemplateHandlers) *Server {
	s := &Server{
		tracker:     tracker,
		mux:         http.NewServeMux(),
		logger:      logger,
		apiHandlers: handlers.NewAPIHandlers(tracker, logger),
		sseHandlers: handlers.NewSSEHandlers(tracker, logger),
	}
	s.setupRoutes(templateHandlers)
	return s
}

func (s *Server) setupRoutes(templateHandlers *TemplateHandlers) {
	// Page and operational routes
	s.mux.HandleFunc("GET /{$}", templateHandlers.Page)
	s.mux.HandleFunc("GET /health", s.apiHandlers.HandleHealth)
	s.mux.HandleFunc("GET /admin/stats", s.apiHandlers.HandleStats)
	s.mux.HandleFunc("POST /admin/catalog/refresh", s.apiHandlers.HandleRefreshCatalog)
	if templateHandlers.Metrics != nil {
		s.mux.Handle("GET "+cmp.Or(templateHandlers.MetricsPath, "/metrics"), templateHandlers.Metrics)
	}

	// Tracker and window directory
	s.mux.HandleFunc("GET /api/tracker", s.apiHandlers.HandleTracker)
	s.mux.HandleFunc("POST /api/windows", s.apiHandlers.HandleCreateWindow)
	s.mux.HandleFunc("GET /api/windows/{id}", s.apiHandlers.HandleWindow)
	s.mux.HandleFunc("POST /api/windows/{id}/activate", s.apiHandlers.HandleActivate)
	s.mux.HandleFunc("DELETE /api/windows/{id}", s.apiHandlers.HandleClose)
	s.mux.HandleFunc("PUT /api/layout", s.apiHandlers.HandleLayout)
	s.mux.HandleFunc("POST /api/windows/{id}/fullscreen", s.apiHandlers.HandleEnterFullscreen)
	s.mux.HandleFunc("DELETE /api/fullscreen", s.apiHandlers.HandleExitFullscreen)
	s.mux.HandleFunc("PUT /api/settings/manager-emails", s.apiHandlers.HandleManagerEmails)

	// Window session
	s.mux.HandleFunc("POST /api/windows/{id}/items/{item}/increment", s.apiHandlers.HandleIncrement)
	s.mux.HandleFunc("POST /api/windows/{id}/items/{item}/decrement", s.apiHandlers.HandleDecrement)
	s.mux.HandleFunc("PUT /api/windows/{id}/items/{item}", s.apiHandlers.HandleSetQuantity)
	s.mux.HandleFunc("PUT /api/windows/{id}/event", s.apiHandlers.HandleRenameEvent)
	s.mux.HandleFunc("POST /api/windows/{id}/report", s.apiHandlers.HandleSendReport)
	s.mux.HandleFunc("POST /api/windows/{id}/categories/{category}/toggle", s.apiHandlers.HandleToggleCategory)
	s.mux.HandleFunc("DELETE /api/windows/{id}/notice", s.apiHandlers.HandleDismissNotice)

	// Datastar SSE endpoints
	s.mux.HandleFunc("GET /sse/windows/{id}", s.sseHandlers.HandleWindow)
	s.mux.HandleFunc("GET /sse/status", s.sseHandlers.HandleStatus)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
