package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "govrewards_crank_build_info",
			Help: "Build information of the governance rewards crank",
		},
		[]string{"version", "commit", "date"},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "govrewards_crank_runs_total",
			Help: "Total number of workflow runs",
		},
		[]string{"workflow", "status"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "govrewards_crank_run_duration_seconds",
			Help:    "Duration of workflow runs",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17 minutes
		},
		[]string{"workflow"},
	)

	OutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "govrewards_crank_outcomes_total",
			Help: "Total number of per-entity outcomes",
		},
		[]string{"workflow", "outcome"},
	)

	LastRunDegradations = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "govrewards_crank_last_run_degradations",
			Help: "Degradation count of the most recent run of each workflow",
		},
		[]string{"workflow"},
	)

	LastSuccessTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "govrewards_crank_last_success_timestamp_seconds",
			Help: "Unix time of the last workflow run that finished without a fatal failure",
		},
		[]string{"workflow"},
	)
)
