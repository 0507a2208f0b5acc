// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Allocation outcomes.
const (
	OutcomeAllocated = "allocated"
	OutcomeReplaced  = "replaced"
	OutcomeExhausted = "exhausted"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
)

// Collision columns.
const (
	ColumnShortCode = "short_code"
	ColumnLongValue = "long_value"
)

var (
	// AllocationsTotal counts encode calls by outcome.
	AllocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shtlink_allocations_total",
			Help: "Total number of short code allocations by outcome",
		},
		[]string{"outcome"},
	)

	// AllocationAttempts measures candidates consumed per allocation.
	AllocationAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shtlink_allocation_attempts",
			Help:    "Candidate codes consumed per allocation",
			Buckets: []float64{1, 2, 3, 4, 6, 8, 16, 32, 64},
		},
	)

	// CollisionsTotal counts uniqueness conflicts by the column that collided.
	CollisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shtlink_collisions_total",
			Help: "Total number of uniqueness conflicts by column",
		},
		[]string{"column"},
	)

	// DecodesTotal counts decode lookups by result.
	DecodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shtlink_decodes_total",
			Help: "Total number of decode lookups by result",
		},
		[]string{"result"},
	)

	// StoreOpDuration measures store operation latency.
	StoreOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shtlink_store_op_duration_seconds",
			Help:    "Store operation duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAllocation records the outcome of one encode call and, for completed
// chains, how many candidates it consumed.
func RecordAllocation(outcome string, attempts int) {
	AllocationsTotal.WithLabelValues(outcome).Inc()
	if attempts > 0 {
		AllocationAttempts.Observe(float64(attempts))
	}
}

// RecordCollision records a uniqueness conflict on column.
func RecordCollision(column string) {
	CollisionsTotal.WithLabelValues(column).Inc()
}

// RecordDecode records a decode lookup.
func RecordDecode(found bool) {
	result := "miss"
	if found {
		result = "hit"
	}
	DecodesTotal.WithLabelValues(result).Inc()
}

// RecordStoreOp records a store operation duration.
func RecordStoreOp(operation string, duration time.Duration) {
	StoreOpDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
