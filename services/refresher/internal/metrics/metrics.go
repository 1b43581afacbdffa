// Package metrics exposes Prometheus collectors for refresh runs and the
// catalog request queue.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RefreshRunsTotal counts finished refresh runs by category and status
	// (ok, skipped, failed).
	RefreshRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refresh_runs_total",
			Help: "Total number of refresh runs by outcome",
		},
		[]string{"category", "status"},
	)

	RefreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "refresh_duration_seconds",
			Help:    "Duration of refresh runs in seconds",
			Buckets: []float64{0.1, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"category"},
	)

	PublishedEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "refresh_published_entries",
			Help: "Number of entries in the last published set per category",
		},
		[]string{"category"},
	)

	ResolutionMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refresh_resolution_misses_total",
			Help: "Suggestions dropped because no catalog match was found",
		},
		[]string{"category"},
	)

	// CatalogRequestsTotal counts catalog calls by endpoint and outcome
	// (ok, error).
	CatalogRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_requests_total",
			Help: "Total number of catalog API requests",
		},
		[]string{"endpoint", "outcome"},
	)

	ThrottleQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "throttle_queue_depth",
			Help: "Tasks waiting in the catalog request queue",
		},
	)

	ThrottleWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "throttle_wait_seconds",
			Help:    "Time a task spent queued before execution",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)
)

// RecordRun records a finished refresh run.
func RecordRun(category, status string, d time.Duration) {
	RefreshRunsTotal.WithLabelValues(category, status).Inc()
	RefreshDuration.WithLabelValues(category).Observe(d.Seconds())
}

// RecordCatalogRequest records one catalog call.
func RecordCatalogRequest(endpoint string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	CatalogRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
}
