// Package metrics exposes Prometheus collectors for the catalog service.
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
	catalogTasksTotal            *prometheus.CounterVec
	catalogEnrichDurationSeconds prometheus.Histogram
	catalogRateLimitDelaySeconds prometheus.Histogram
	catalogCoursesWrittenTotal   *prometheus.CounterVec
	httpRequestsTotal            *prometheus.CounterVec
	httpRequestDurationSeconds   *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		catalogTasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_tasks_total",
				Help: "Total number of background tasks, labeled by kind and status.",
			},
			[]string{"kind", "status"},
		)

		catalogEnrichDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "catalog_enrich_duration_seconds",
				Help:    "Histogram of end-to-end enrichment latencies.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		)

		catalogRateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "catalog_rate_limit_delay_seconds",
				Help:    "Histogram of model-call rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

		catalogCoursesWrittenTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_courses_written_total",
				Help: "Total number of store writes, labeled by operation.",
			},
			[]string{"operation"},
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

// ObserveTask increments the task counter for the given kind and status.
func ObserveTask(kind, status string) {
	if catalogTasksTotal == nil {
		return
	}
	catalogTasksTotal.WithLabelValues(kind, status).Inc()
}

// ObserveEnrichment records one end-to-end enrichment duration.
func ObserveEnrichment(duration time.Duration) {
	if catalogEnrichDurationSeconds == nil {
		return
	}
	catalogEnrichDurationSeconds.Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(duration time.Duration) {
	if catalogRateLimitDelaySeconds == nil {
		return
	}
	catalogRateLimitDelaySeconds.Observe(duration.Seconds())
}

// ObserveWrite increments the store write counter for an operation.
func ObserveWrite(operation string) {
	if catalogCoursesWrittenTotal == nil {
		return
	}
	catalogCoursesWrittenTotal.WithLabelValues(operation).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
