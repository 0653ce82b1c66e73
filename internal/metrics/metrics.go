// Package metrics exposes Prometheus collectors for the audit service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	runsStartedTotal           prometheus.Counter
	runsFinishedTotal          *prometheus.CounterVec
	pagesAuditedTotal          *prometheus.CounterVec
	pageAuditDurationSeconds   prometheus.Histogram
	activeRuns                 prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		runsStartedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sitepulse_runs_started_total",
				Help: "Total number of audit runs started.",
			},
		)

		runsFinishedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitepulse_runs_finished_total",
				Help: "Total number of audit runs finished, labeled by terminal status.",
			},
			[]string{"status"},
		)

		pagesAuditedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitepulse_pages_audited_total",
				Help: "Total number of pages audited, labeled by outcome.",
			},
			[]string{"status"},
		)

		pageAuditDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sitepulse_page_audit_duration_seconds",
				Help:    "Histogram of per-page audit latencies across both form factors.",
				Buckets: []float64{1, 2.5, 5, 10, 20, 45, 90},
			},
		)

		activeRuns = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sitepulse_active_runs",
				Help: "Number of runs currently discovering or auditing.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRunStarted increments the started counter and the active-run gauge.
func ObserveRunStarted() {
	if runsStartedTotal == nil {
		return
	}
	runsStartedTotal.Inc()
	activeRuns.Inc()
}

// ObserveRunFinished records a terminal run status and releases the gauge.
func ObserveRunFinished(status string) {
	if runsFinishedTotal == nil {
		return
	}
	runsFinishedTotal.WithLabelValues(status).Inc()
	activeRuns.Dec()
}

// ObservePageAudited records one page outcome and its latency.
func ObservePageAudited(status string, duration time.Duration) {
	if pagesAuditedTotal == nil {
		return
	}
	pagesAuditedTotal.WithLabelValues(status).Inc()
	pageAuditDurationSeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
