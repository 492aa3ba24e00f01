package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline metrics
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_runs_total",
			Help: "Total number of pipeline runs by terminal state",
		},
		[]string{"state"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "pipeline_stage_duration_seconds",
			Help: "Time spent in each pipeline stage",
		},
		[]string{"stage"},
	)

	StageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stage_errors_total",
			Help: "Total number of stage errors recorded on runs",
		},
		[]string{"stage"},
	)

	QueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pipeline_queue_length",
		Help: "Number of submitted runs not yet terminal",
	})

	// Extraction client metrics
	ModelCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extraction_model_calls_total",
			Help: "Remote model calls by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	ModelRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extraction_model_retries_total",
			Help: "Retries performed against the remote model",
		},
		[]string{"operation"},
	)

	ParseDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extraction_parse_drops_total",
			Help: "Objects dropped while partitioning a model response",
		},
		[]string{"reason"},
	)

	// Query engine metrics
	SearchFanout = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "search_fanout_duration_seconds",
			Help: "Duration of each store search during a combined query",
		},
		[]string{"store"},
	)

	SearchStoreFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_store_failures_total",
			Help: "Store searches that failed and contributed zero results",
		},
		[]string{"store"},
	)
)
