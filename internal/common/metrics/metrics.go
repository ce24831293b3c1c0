// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RoutingResolutions counts resolve calls by mode (manual, auto) and
	// outcome (classified, fallback, cached, empty, unknown_id, cancelled).
	RoutingResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompt_routing_resolutions_total",
			Help: "Total number of prompt routing resolutions",
		},
		[]string{"mode", "outcome"},
	)

	ClassifierDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prompt_classifier_duration_seconds",
			Help:    "Duration of classifier calls in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 30},
		},
		[]string{"status"},
	)

	TemplateStoreSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "prompt_template_store_size",
			Help: "Number of templates in the active store",
		},
	)

	SnapshotReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompt_snapshot_reloads_total",
			Help: "Total number of template store rebuilds",
		},
		[]string{"status"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompt_http_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"route", "status"},
	)

	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)
)
