package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DharaniManchala/credit-card-fraud-detector/internal/domain"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	batches       *prometheus.CounterVec
	rowsScored    prometheus.Counter
	fraudsFlagged prometheus.Counter
	scoreDuration prometheus.Histogram
	cacheLookups  *prometheus.CounterVec
	reviewFinds   prometheus.Counter
	modelReloads  *prometheus.CounterVec
}

// NewMetrics registers collectors on a fresh registry, including the Go
// runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fraudscore",
				Subsystem: "api",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "fraudscore",
				Subsystem: "api",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
			},
			[]string{"method", "route"},
		),

		batches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fraudscore",
				Subsystem: "scoring",
				Name:      "batches_total",
				Help:      "Scored batches by outcome",
			},
			[]string{"outcome"},
		),
		rowsScored: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "fraudscore",
				Subsystem: "scoring",
				Name:      "rows_total",
				Help:      "Transactions scored",
			},
		),
		fraudsFlagged: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "fraudscore",
				Subsystem: "scoring",
				Name:      "frauds_total",
				Help:      "Transactions predicted as fraud",
			},
		),
		scoreDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "fraudscore",
				Subsystem: "scoring",
				Name:      "batch_duration_seconds",
				Help:      "Time to parse and score one batch",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
			},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fraudscore",
				Subsystem: "cache",
				Name:      "lookups_total",
				Help:      "Batch result cache lookups",
			},
			[]string{"result"},
		),
		reviewFinds: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "fraudscore",
				Subsystem: "rules",
				Name:      "findings_total",
				Help:      "Review rule findings attached to scored batches",
			},
		),
		modelReloads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fraudscore",
				Subsystem: "model",
				Name:      "reloads_total",
				Help:      "Bundle reload attempts",
			},
			[]string{"outcome"},
		),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request counts and latency by route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) observeBatch(result *domain.BatchResult, elapsed time.Duration) {
	m.batches.WithLabelValues("scored").Inc()
	m.rowsScored.Add(float64(result.Total))
	m.fraudsFlagged.Add(float64(result.FraudCount))
	m.reviewFinds.Add(float64(len(result.Reviews)))
	m.scoreDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) batchOutcome(outcome string) {
	m.batches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) cacheLookup(hit bool) {
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

func (m *Metrics) modelReload(err error) {
	if err != nil {
		m.modelReloads.WithLabelValues("failed").Inc()
		return
	}
	m.modelReloads.WithLabelValues("ok").Inc()
}
