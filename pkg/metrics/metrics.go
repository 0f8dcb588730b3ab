// Package metrics provides Prometheus metrics for the clover service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MatchRequestsTotal tracks interactive match requests by routed action
	MatchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "matching",
			Name:      "requests_total",
			Help:      "Total number of match requests by entity kind and routed action",
		},
		[]string{"entity_kind", "action"},
	)

	// MatchDuration tracks match request duration in seconds
	MatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "matching",
			Name:      "request_duration_seconds",
			Help:      "Duration of match requests in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"entity_kind"},
	)

	// ScanDuration tracks batch duplicate scan duration in seconds
	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "dedupe",
			Name:      "scan_duration_seconds",
			Help:      "Duration of batch duplicate detection runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	// ScanPairsCompared tracks pairwise comparisons per scan; the company
	// scan is O(n²) so this is the number to watch as tenants grow
	ScanPairsCompared = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "dedupe",
			Name:      "pairs_compared_total",
			Help:      "Total number of entity pairs compared by duplicate scans",
		},
	)

	// CandidatesInserted tracks new pending duplicate candidates
	CandidatesInserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "dedupe",
			Name:      "candidates_inserted_total",
			Help:      "Total number of pending duplicate candidates inserted",
		},
		[]string{"entity_kind"},
	)

	// MergesTotal tracks completed merges by trigger (api, auto)
	MergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "merging",
			Name:      "merges_total",
			Help:      "Total number of completed merges by entity kind and trigger",
		},
		[]string{"entity_kind", "trigger"},
	)

	// AutoMergeSkipsTotal tracks auto-merge candidates skipped by reason
	AutoMergeSkipsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "automerge",
			Name:      "skips_total",
			Help:      "Total number of auto-merge candidates skipped by reason",
		},
		[]string{"reason"},
	)
)
