package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FilterRecomputations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashguard_filter_recomputations_total",
			Help: "Total number of visible set recomputations",
		},
		[]string{"reason"},
	)

	VisibleThreats = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dashguard_visible_threats",
			Help:    "Size of the visible set after each recomputation",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	MarkerOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashguard_marker_operations_total",
			Help: "Marker layer operations issued by map reconciliation",
		},
		[]string{"op"},
	)

	MapTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashguard_map_transitions_total",
			Help: "Map controller state transitions",
		},
		[]string{"to"},
	)

	MapInitFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dashguard_map_init_failures_total",
			Help: "Map surface attach attempts that failed",
		},
	)

	StatsCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashguard_stats_cache_lookups_total",
			Help: "Stats snapshot cache lookups",
		},
		[]string{"result"},
	)

	FeedLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashguard_feed_loads_total",
			Help: "Threat feed loads by loader and outcome",
		},
		[]string{"loader", "outcome"},
	)

	FeedRecordsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dashguard_feed_records_rejected_total",
			Help: "Feed records dropped by normalization",
		},
	)

	ActiveWorkspaces = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dashguard_active_workspaces",
			Help: "Number of live analyst workspaces",
		},
	)
)
