package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

var (
	// AttemptsTotal counts finished deployment attempts.
	// kind is "deploy" or "redeploy"; result is "success" or "failure".
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "launchpad_deploy_attempts_total",
			Help: "Total number of finished deployment attempts by kind and result",
		},
		[]string{"kind", "result"},
	)

	// StageDurationSeconds tracks how long each pipeline stage takes.
	// stage: detect | package | submit | verify
	StageDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "launchpad_stage_duration_seconds",
			Help:    "Duration of deployment pipeline stages in seconds",
			Buckets: []float64{0.05, 0.25, 1, 5, 15, 30, 60, 120},
		},
		[]string{"stage"},
	)

	// VerificationsTotal counts verifier outcomes. result is "verified" or "unverified".
	VerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "launchpad_verifications_total",
			Help: "Total number of live URL verifications by result",
		},
		[]string{"result"},
	)

	// DetectionsTotal counts classifier results by framework category.
	DetectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "launchpad_detections_total",
			Help: "Total number of framework detections by category",
		},
		[]string{"category"},
	)

	// FilesPackaged tracks how many files a deployment payload carries.
	FilesPackaged = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "launchpad_files_packaged",
			Help:    "Number of files in each deployment payload",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	// JobsQueued reports jobs waiting for a worker.
	JobsQueued = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "launchpad_jobs_queued",
			Help: "Number of background jobs waiting for a worker",
		},
	)

	// JobsRejectedTotal counts jobs dropped because the queue was full.
	JobsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "launchpad_jobs_rejected_total",
			Help: "Total number of background jobs rejected because the queue was full",
		},
		[]string{"job_type"},
	)

	// JobPanicsTotal counts jobs that panicked and were recovered.
	JobPanicsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "launchpad_job_panics_total",
			Help: "Total number of background jobs recovered from a panic",
		},
		[]string{"job_type"},
	)

	// WebhooksTotal counts accepted webhook callbacks by reported status.
	WebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "launchpad_webhooks_total",
			Help: "Total number of deployment webhooks received by status",
		},
		[]string{"status"},
	)
)

// Result maps a boolean outcome onto the result label.
func Result(ok bool) string {
	if ok {
		return ResultSuccess
	}
	return ResultFailure
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
