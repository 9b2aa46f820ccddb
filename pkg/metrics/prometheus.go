package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AdmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querywarden_admissions_total",
			Help: "Total number of admission decisions by outcome",
		},
		[]string{"group_id", "decision"},
	)

	RejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querywarden_rejections_total",
			Help: "Total number of queries rejected at admission by breaching resource",
		},
		[]string{"group_id", "resource"},
	)

	CancellationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querywarden_cancellations_total",
			Help: "Total number of running queries cancelled by the enforcement loop",
		},
		[]string{"group_id", "resource"},
	)

	ThresholdBreaches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querywarden_threshold_breaches_total",
			Help: "Threshold breaches observed by the enforcement loop",
		},
		[]string{"group_id", "resource", "severity"},
	)

	ResourceUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "querywarden_resource_usage",
			Help: "Live resource usage attributed to a query group, in node units",
		},
		[]string{"group_id", "resource"},
	)

	ActiveQueries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "querywarden_active_queries",
			Help: "Number of queries currently running per query group",
		},
		[]string{"group_id"},
	)

	EnforcementCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querywarden_enforcement_cycle_duration_seconds",
			Help:    "Duration of one enforcement cycle",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)

	EnforcementSkippedGroups = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "querywarden_enforcement_skipped_groups_total",
			Help: "Groups skipped in a cycle because running queries could not be enumerated",
		},
	)
)
