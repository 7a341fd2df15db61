// Package observability exposes process-wide Prometheus metrics for the
// memory pipeline and the HTTP surface.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	ingestTotal          *prometheus.CounterVec
	ingestDuration       prometheus.Histogram
	searchDuration       prometheus.Histogram
	oracleFallbackTotal  *prometheus.CounterVec
	memoriesDeletedTotal prometheus.Counter
	httpRequestsTotal    *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
	registry    *prometheus.Registry
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			ingestTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_ingest_statements_total",
					Help: "Ingested statements by outcome (stored, duplicate).",
				},
				[]string{"outcome"},
			),
			ingestDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_ingest_duration_seconds",
					Help:    "Duration of full utterance ingests.",
					Buckets: prometheus.DefBuckets,
				},
			),
			searchDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_search_duration_seconds",
					Help:    "Duration of lexical memory searches.",
					Buckets: prometheus.DefBuckets,
				},
			),
			oracleFallbackTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_oracle_fallbacks_total",
					Help: "Oracle calls absorbed into fallback values by stage.",
				},
				[]string{"stage"},
			),
			memoriesDeletedTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "memory_records_deleted_total",
					Help: "Memory records removed by user request.",
				},
			),
			httpRequestsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "http_requests_total",
					Help: "HTTP requests by route and status class.",
				},
				[]string{"route", "status"},
			),
		}

		registry = prometheus.NewRegistry()
		registry.MustRegister(
			m.ingestTotal,
			m.ingestDuration,
			m.searchDuration,
			m.oracleFallbackTotal,
			m.memoriesDeletedTotal,
			m.httpRequestsTotal,
		)

		metricsInst = m
	})
	return metricsInst
}

// EnsureRegistered initializes the metric set. Safe to call multiple times.
func EnsureRegistered() {
	getMetrics()
}

// MetricsHandler returns the /metrics HTTP handler.
func MetricsHandler() http.Handler {
	getMetrics()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// RecordIngestOutcome counts one processed statement.
func RecordIngestOutcome(outcome string) {
	getMetrics().ingestTotal.WithLabelValues(outcome).Inc()
}

// RecordIngestDuration records the wall time of one utterance ingest.
func RecordIngestDuration(d time.Duration) {
	getMetrics().ingestDuration.Observe(d.Seconds())
}

// RecordSearchDuration records the wall time of one search.
func RecordSearchDuration(d time.Duration) {
	getMetrics().searchDuration.Observe(d.Seconds())
}

// RecordOracleFallback counts one oracle response absorbed into a fallback.
func RecordOracleFallback(stage string) {
	getMetrics().oracleFallbackTotal.WithLabelValues(stage).Inc()
}

// RecordMemoryDeleted counts one user-initiated record deletion.
func RecordMemoryDeleted() {
	getMetrics().memoriesDeletedTotal.Inc()
}

// RecordHTTPRequest counts one handled HTTP request.
func RecordHTTPRequest(route, status string) {
	getMetrics().httpRequestsTotal.WithLabelValues(route, status).Inc()
}
