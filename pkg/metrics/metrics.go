// Package metrics provides Prometheus metrics for the resolution pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BatchesTotal tracks finished batches by status
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "pipeline",
			Name:      "batches_total",
			Help:      "Total number of processed batches by status",
		},
		[]string{"status"},
	)

	// BatchDuration tracks end-to-end batch duration in seconds
	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "pipeline",
			Name:      "batch_duration_seconds",
			Help:      "Duration of batch processing in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"status"},
	)

	// StageDuration tracks the duration of each pipeline stage
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"stage"},
	)

	// RecordsTotal tracks ingested records by outcome (valid, invalid)
	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "ingest",
			Name:      "records_total",
			Help:      "Total number of ingested records by validation outcome",
		},
		[]string{"outcome"},
	)

	// MatchLinksTotal tracks emitted match links by method
	MatchLinksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "matching",
			Name:      "links_total",
			Help:      "Total number of match links by method",
		},
		[]string{"method"},
	)

	// ComparisonsTotal tracks fuzzy pair comparisons
	ComparisonsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "matching",
			Name:      "comparisons_total",
			Help:      "Total number of fuzzy pair comparisons",
		},
	)

	// ComparisonCapHits tracks batches that reached the comparison cap
	ComparisonCapHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "matching",
			Name:      "comparison_cap_hits_total",
			Help:      "Total number of batches whose fuzzy comparisons were capped",
		},
	)

	// GoldenRecordsTotal tracks synthesized golden records
	GoldenRecordsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "merging",
			Name:      "golden_records_total",
			Help:      "Total number of synthesized golden records",
		},
	)

	// AuditWriteFailures tracks audit entries that could not be stored
	AuditWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "audit",
			Name:      "write_failures_total",
			Help:      "Total number of audit entries that failed to persist",
		},
	)
)
