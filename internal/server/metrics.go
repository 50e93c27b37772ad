package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors of one server. Each server gets its own
// registry so tests can build several side by side.
type Metrics struct {
	registry *prometheus.Registry

	uploads  *prometheus.CounterVec
	views    *prometheus.CounterVec
	renders  *prometheus.CounterVec
	insights *prometheus.CounterVec
	evicted  prometheus.Counter
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func newMetrics(store *Store) *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	m := &Metrics{
		registry: reg,
		uploads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edalens_uploads_total",
			Help: "Uploaded files by outcome.",
		}, []string{"outcome"}),
		views: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edalens_views_total",
			Help: "Computed dataset views by analysis mode.",
		}, []string{"mode"}),
		renders: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edalens_chart_renders_total",
			Help: "Rendered charts by kind and format.",
		}, []string{"kind", "format"}),
		insights: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edalens_insights_total",
			Help: "Language-model insight requests by outcome.",
		}, []string{"outcome"}),
		evicted: f.NewCounter(prometheus.CounterOpts{
			Name: "edalens_sessions_evicted_total",
			Help: "Datasets dropped after their idle timeout.",
		}),
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edalens_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"route", "status"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "edalens_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "edalens_sessions",
		Help: "Datasets currently held in memory.",
	}, func() float64 { return float64(store.Len()) })
	return m
}

func (m *Metrics) observe(route string, status int, start time.Time) {
	if route == "" {
		route = "unmatched"
	}
	m.latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
