// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dvm_jobs_received_total",
			Help: "Total number of job requests accepted for processing",
		},
		[]string{"task_type"},
	)

	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dvm_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dvm_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "dvm_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dvm_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	DuplicateRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dvm_duplicate_requests_total",
			Help: "Job requests dropped because they were already claimed",
		},
		[]string{"task_type"},
	)

	FeedbackPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dvm_feedback_published_total",
			Help: "Job feedback events published, by status and outcome",
		},
		[]string{"status", "outcome"},
	)

	UpstreamQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dvm_upstream_query_duration_seconds",
			Help:    "Duration of upstream hot-content queries",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"outcome"},
	)

	ResultItems = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dvm_result_items",
			Help:    "Number of references returned per job",
			Buckets: []float64{0, 1, 5, 10, 20, 50, 100},
		},
	)

	ParamFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dvm_param_fallbacks_total",
			Help: "Request parameters that were ignored or replaced by defaults",
		},
		[]string{"param"},
	)

	RelayConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dvm_relay_connected",
			Help: "1 while a listening relay connection is up",
		},
		[]string{"relay"},
	)

	RelayPublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dvm_relay_publishes_total",
			Help: "Per-relay publish acknowledgements",
		},
		[]string{"relay", "accepted"},
	)
)
