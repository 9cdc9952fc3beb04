package core

import (
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"simplenotes/internal/types"
)

// Metrics is the API's Prometheus collector set. It records HTTP traffic and
// also implements billing.Recorder and quota.DenialRecorder so the domain
// services report through the same registry.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	reconciles   *prometheus.CounterVec
	quotaDenials *prometheus.CounterVec
}

// NewMetrics builds a Metrics on its own registry, including the Go runtime
// and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		reconciles: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "entitlement_reconciliations_total",
			Help: "Entitlement reconciliation outcomes by trigger",
		}, []string{"trigger", "outcome"}),
		quotaDenials: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quota_denials_total",
			Help: "Note creations denied by the quota gate",
		}, []string{"plan"}),
	}
}

// RecordRequest records one HTTP request.
func (m *Metrics) RecordRequest(method, route, status string, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordReconcile implements billing.Recorder.
func (m *Metrics) RecordReconcile(trigger types.ReconcileTrigger, outcome string) {
	m.reconciles.WithLabelValues(string(trigger), outcome).Inc()
}

// RecordQuotaDenial implements quota.DenialRecorder.
func (m *Metrics) RecordQuotaDenial(plan string) {
	m.quotaDenials.WithLabelValues(plan).Inc()
}

// RegisterPgxPool exposes connection pool statistics as gauges.
func (m *Metrics) RegisterPgxPool(pool *pgxpool.Pool) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "pgxpool_acquired_conns",
			Help: "Number of currently acquired connections in the pool",
		}, func() float64 {
			return float64(pool.Stat().AcquiredConns())
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "pgxpool_max_conns",
			Help: "Maximum number of connections in the pool",
		}, func() float64 {
			return float64(pool.Stat().MaxConns())
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "pgxpool_total_conns",
			Help: "Total number of connections in the pool",
		}, func() float64 {
			return float64(pool.Stat().TotalConns())
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "pgxpool_idle_conns",
			Help: "Number of idle connections in the pool",
		}, func() float64 {
			return float64(pool.Stat().IdleConns())
		}),
	)
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
