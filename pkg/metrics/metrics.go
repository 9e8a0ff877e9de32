// Package metrics provides Prometheus metrics for the reconciliation engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal tracks reconciliation runs by terminal status and trigger
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Total number of reconciliation runs by status and trigger",
		},
		[]string{"status", "trigger"},
	)

	// RunDuration tracks full run duration in seconds
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "sync",
			Name:      "run_duration_seconds",
			Help:      "Duration of reconciliation runs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
	)

	// PhaseDuration tracks per-phase duration in seconds
	PhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "sync",
			Name:      "phase_duration_seconds",
			Help:      "Duration of run phases in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"phase"},
	)

	// ProductsScanned tracks catalog rows visited by the cursor
	ProductsScanned = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "sync",
			Name:      "products_scanned_total",
			Help:      "Total number of catalog rows visited",
		},
	)

	// DirectivesApplied tracks directive outcomes
	DirectivesApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "sync",
			Name:      "directives_total",
			Help:      "Total number of update directives by outcome",
		},
		[]string{"outcome"},
	)

	// FeedPagesFetched tracks ERP feed pages retrieved
	FeedPagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "erp",
			Name:      "feed_pages_total",
			Help:      "Total number of feed pages fetched",
		},
		[]string{"feed"},
	)

	// TokenRefreshes tracks ERP login calls
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "erp",
			Name:      "token_refreshes_total",
			Help:      "Total number of ERP token refresh operations",
		},
		[]string{"status"},
	)

	// CacheInvalidations tracks post-run cache invalidation outcomes
	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "cache",
			Name:      "invalidations_total",
			Help:      "Total number of cache invalidation attempts by outcome",
		},
		[]string{"status"},
	)
)

// RecordRun records a terminal run outcome
func RecordRun(status, trigger string, durationSeconds float64) {
	RunsTotal.WithLabelValues(status, trigger).Inc()
	RunDuration.Observe(durationSeconds)
}

// RecordDirectives records applied directive counts
func RecordDirectives(updated, failed int) {
	DirectivesApplied.WithLabelValues("updated").Add(float64(updated))
	DirectivesApplied.WithLabelValues("failed").Add(float64(failed))
}
