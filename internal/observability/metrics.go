// File: internal/observability/metrics.go
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "dealwire"

// Metrics groups the collectors recorded by the publish and harvest flows.
// Each instance owns its registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	PublishRequests *prometheus.CounterVec
	PublishDuration prometheus.Histogram
	StepFailures    *prometheus.CounterVec
	LoginAttempts   *prometheus.CounterVec
	BrowserSessions prometheus.Gauge
	BrowserLaunches prometheus.Counter
	HarvestCache    *prometheus.CounterVec
	HarvestItems    prometheus.Counter
}

// NewMetrics registers every collector on a fresh registry, together with
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		PublishRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "publish_requests_total",
			Help:      "Publish requests by outcome code.",
		}, []string{"outcome"}),
		PublishDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "publish_duration_seconds",
			Help:      "Wall time of publish flows that reached the browser.",
			Buckets:   []float64{5, 10, 20, 30, 45, 60, 90, 120, 180},
		}),
		StepFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "wizard_step_failures_total",
			Help:      "Wizard step failures by step name and policy.",
		}, []string{"step", "policy"}),
		LoginAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "login_attempts_total",
			Help:      "Login attempts on the deals site by result.",
		}, []string{"result"}),
		BrowserSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "browser_sessions_active",
			Help:      "Browser sessions currently open.",
		}),
		BrowserLaunches: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "browser_launches_total",
			Help:      "Browser processes launched.",
		}),
		HarvestCache: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "harvest_cache_lookups_total",
			Help:      "Flash-sale cache lookups by result.",
		}, []string{"result"}),
		HarvestItems: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "harvest_items_total",
			Help:      "Listing records produced by the harvester.",
		}),
	}
}

// Registry exposes the underlying registry for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
