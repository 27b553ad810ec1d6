package sugos

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of a Service.
//
// Metrics:
//   - sugos_runs_total{status} - runs by final status (auth_failed for rejected logins)
//   - sugos_items_total{kind,result} - items by kind and result (ok, fallback, failed)
//   - sugos_lookup_failures_total{stage} - degraded search/detail calls
//   - sugos_run_duration_seconds - wall time of completed runs
type Metrics struct {
	RunsTotal           *prometheus.CounterVec
	ItemsTotal          *prometheus.CounterVec
	LookupFailuresTotal *prometheus.CounterVec
	RunDuration         prometheus.Histogram

	gatherer prometheus.Gatherer
}

// NewMetrics registers the collectors on reg. A nil reg gets a private registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	m := &Metrics{
		RunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sugos_runs_total",
				Help: "Total number of export runs by final status",
			},
			[]string{"status"},
		),
		ItemsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sugos_items_total",
				Help: "Total number of processed items by kind and result",
			},
			[]string{"kind", "result"}, // result: ok, fallback, failed
		),
		LookupFailuresTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sugos_lookup_failures_total",
				Help: "Total number of failed order searches and detail lookups",
			},
			[]string{"stage"}, // search, detail
		),
		RunDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sugos_run_duration_seconds",
				Help:    "Duration of export runs in seconds",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17min
			},
		),
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

func (m *Metrics) run(status string, d time.Duration) {
	m.RunsTotal.WithLabelValues(status).Inc()
	if d > 0 {
		m.RunDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) item(kind Kind, result string) {
	m.ItemsTotal.WithLabelValues(string(kind), result).Inc()
}

func (m *Metrics) lookupFailure(stage string) {
	m.LookupFailuresTotal.WithLabelValues(stage).Inc()
}

// Handler serves the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
