package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus collectors of the tracker service.
type Metrics struct {
	Registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Session metrics
	OpenWindows      prometheus.Gauge
	TrackerState     *prometheus.GaugeVec
	QuantityUpdates  *prometheus.CounterVec
	EventRenames     *prometheus.CounterVec
	ReportSends      *prometheus.CounterVec
	CollaboratorTime *prometheus.HistogramVec

	// Catalog cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
}

// NewMetrics registers every collector on a fresh registry, so several
// instances can coexist in tests.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consumption_tracker_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "consumption_tracker_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		HTTPRequestsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "consumption_tracker_http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),
		OpenWindows: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "consumption_tracker_open_windows",
				Help: "Number of open consumption windows",
			},
		),
		TrackerState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "consumption_tracker_state",
				Help: "1 for the current tracker connection state, 0 otherwise",
			},
			[]string{"state"},
		),
		QuantityUpdates: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consumption_tracker_quantity_updates_total",
				Help: "Quantity updates by outcome",
			},
			[]string{"outcome"},
		),
		EventRenames: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consumption_tracker_event_renames_total",
				Help: "Event rename commits by outcome",
			},
			[]string{"outcome"},
		),
		ReportSends: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consumption_tracker_report_sends_total",
				Help: "Report sends by outcome",
			},
			[]string{"outcome"},
		),
		CollaboratorTime: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "consumption_tracker_collaborator_duration_seconds",
				Help:    "Duration of calls to the inventory, event and report collaborators",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		CacheHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consumption_tracker_catalog_cache_hits_total",
				Help: "Catalog cache hits",
			},
			[]string{"kind"},
		),
		CacheMisses: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consumption_tracker_catalog_cache_misses_total",
				Help: "Catalog cache misses",
			},
			[]string{"kind"},
		),
	}
}

// SetTrackerState flips the state gauge so exactly one label reads 1.
func (m *Metrics) SetTrackerState(state string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		m.TrackerState.WithLabelValues(s).Set(v)
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) ObserveQuantityUpdate(err error) {
	if m != nil {
		m.QuantityUpdates.WithLabelValues(outcome(err)).Inc()
	}
}

func (m *Metrics) ObserveRename(err error) {
	if m != nil {
		m.EventRenames.WithLabelValues(outcome(err)).Inc()
	}
}

func (m *Metrics) ObserveReport(err error) {
	if m != nil {
		m.ReportSends.WithLabelValues(outcome(err)).Inc()
	}
}

func (m *Metrics) ObserveCollaborator(operation string, seconds float64) {
	if m != nil {
		m.CollaboratorTime.WithLabelValues(operation).Observe(seconds)
	}
}

func (m *Metrics) SetOpenWindows(n int) {
	if m != nil {
		m.OpenWindows.Set(float64(n))
	}
}

func (m *Metrics) CacheHit(kind string) {
	if m != nil {
		m.CacheHits.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) CacheMiss(kind string) {
	if m != nil {
		m.CacheMisses.WithLabelValues(kind).Inc()
	}
}
