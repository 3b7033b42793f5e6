package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Invocation outcomes
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeLoadError = "load_error"
)

// Metrics holds the Prometheus collectors of one service instance
type Metrics struct {
	registry *prometheus.Registry

	Invocations        *prometheus.CounterVec
	InvocationDuration prometheus.Histogram
	CleanupFailures    *prometheus.CounterVec
	ArtifactUploads    *prometheus.CounterVec
	HTTPRequests       *prometheus.CounterVec
}

// New registers all collectors on a private registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Invocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chromeserver_invocations_total",
				Help: "Job invocations by outcome",
			},
			[]string{"outcome"},
		),
		InvocationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chromeserver_invocation_duration_seconds",
				Help:    "Wall time of a job invocation including browser launch and cleanup",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
		),
		CleanupFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chromeserver_cleanup_failures_total",
				Help: "Failed releases of per-invocation resources",
			},
			[]string{"resource"},
		),
		ArtifactUploads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chromeserver_artifact_uploads_total",
				Help: "Artifact uploads by status",
			},
			[]string{"status"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chromeserver_http_requests_total",
				Help: "HTTP requests by method and status code",
			},
			[]string{"method", "status"},
		),
	}
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
