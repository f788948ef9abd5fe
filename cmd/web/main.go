package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"consumption-tracker/internal/config"
	"consumption-tracker/internal/inventory"
	"consumption-tracker/internal/middleware"
	"consumption-tracker/internal/models"
	"consumption-tracker/internal/observability"
	"consumption-tracker/internal/server"
	"consumption-tracker/internal/session"
	"consumption-tracker/internal/storage"
	"consumption-tracker/internal/ui/templates"
)

const (
	renderTimeout = 10 * time.Second
	startTimeout  = 30 * time.Second
)

func pageHandler(tracker *session.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
		defer cancel()

		status := tracker.Status()
		page := templates.Page(templates.PageData{
			Title:    "Consumption tracker",
			State:    string(status.State),
			Warning:  status.Warning,
			Layout:   status.Layout.Mode,
			Tabs:     status.Tabs,
			Mounted:  status.Layout.Mounted,
			CanOpen:  status.CanOpen,
			Degraded: status.Degraded,
		})

		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := page.Render(ctx, w); err != nil {
			http.Error(w, "render error", http.StatusInternalServerError)
		}
	}
}

// backing is the organization's catalog store plus its cache, or nothing
// when the tracker runs on demo data.
type backing struct {
	deps    session.Deps
	closers []closer
}

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

func openBacking(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*backing, error) {
	b := &backing{}
	if !cfg.HasOrganization() {
		logger.Warn("no organization configured, tracker will use demo inventory")
		return b, nil
	}

	db, err := storage.Open(ctx, cfg.Database.URL, cfg.Database.MaxConns, logger)
	if err != nil {
		return nil, err
	}
	b.closers = append(b.closers, closer{"database", func(context.Context) error { return db.Close() }})

	if cfg.Database.Migrate {
		if err := storage.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("database schema ensured")
	}

	store := storage.NewStore(db, cfg.Tracker.OrganizationID, logger)

	cache := inventory.NewMemoryCache()
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			db.Close()
			return nil, err
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, using in-memory catalog cache", "error", err)
			client.Close()
		} else {
			cache = inventory.NewRedisCache(client)
			b.closers = append(b.closers, closer{"redis", func(context.Context) error { return client.Close() }})
		}
	}

	b.deps.Provider = inventory.NewCachedProvider(store, cache, cfg.Tracker.OrganizationID, cfg.Redis.CatalogTTL, logger, metrics)
	b.deps.Sheet = store
	return b, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logger)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"version", "1.0.0",
		"config", cfg,
	)

	metrics := observability.NewMetrics()

	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()

	b, err := openBacking(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Error("failed to open catalog store", "error", err)
		os.Exit(1)
	}

	deps := b.deps
	deps.Logger = logger
	deps.Metrics = metrics
	deps.NoticeTTL = cfg.Tracker.NoticeTTL
	deps.RemoteTimeout = cfg.Tracker.RemoteTimeout

	tracker := session.NewTracker(deps, session.Options{
		OrganizationID: cfg.Tracker.OrganizationID,
		Email: models.EmailSettings{
			Template: cfg.Tracker.ReportTemplate,
			AutoSend: cfg.Tracker.AutoSend,
		},
		Sheet: models.SheetSettings{
			TargetID:    cfg.Tracker.SheetTarget,
			Naming:      cfg.Tracker.SheetNaming,
			ColumnRange: cfg.Tracker.ColumnRange,
		},
		HalfStepCategories: cfg.Tracker.HalfStep,
	})

	start := time.Now()
	if err := tracker.Start(ctx); err != nil {
		logger.Error("failed to start tracker", "error", err)
		os.Exit(1)
	}
	logger.Info("tracker started",
		"state", tracker.State(),
		"duration", time.Since(start),
	)

	templateHandlers := &server.TemplateHandlers{
		Page: pageHandler(tracker),
	}
	if cfg.Metrics.Enabled {
		templateHandlers.Metrics = promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{Registry: metrics.Registry})
		templateHandlers.MetricsPath = cfg.Metrics.Path
	}

	srv := server.NewServer(tracker, logger, templateHandlers)

	rateLimiter := middleware.NewRateLimiter(cfg.Security)

	middlewareChain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Metrics(metrics),
		middleware.Tracing(logger),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.Security),
		middleware.TrustedProxy(cfg.Security),
		middleware.RateLimit(rateLimiter, logger),
	)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      middlewareChain(srv),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	gracefulServer := server.NewGracefulServer(httpServer, logger, cfg)

	for _, c := range b.closers {
		gracefulServer.RegisterShutdownHook(c.name, c.fn)
	}
	gracefulServer.RegisterShutdownHook("tracker", func(ctx context.Context) error {
		stats := tracker.Manager().Stats()
		logger.Info("closing tracker",
			"open_windows", stats.Windows,
			"total_consumption", stats.TotalConsumption,
		)
		return nil
	})

	logger.Info("starting graceful server")
	if err := gracefulServer.ListenAndServe(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("application stopped gracefully")
}
