// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
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

var (
	AccessDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decoder_access_decisions_total",
			Help: "Access gate decisions by outcome and grant",
		},
		[]string{"decision", "grant"},
	)

	DecodeRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decoder_requests_total",
			Help: "Decode attempts by outcome (ready, harmful, crisis, incomplete, failed)",
		},
		[]string{"outcome"},
	)

	AIDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "decoder_ai_duration_seconds",
			Help:    "Latency of the generative AI call",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		},
		[]string{"provider"},
	)

	PaymentSignals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decoder_payment_signals_total",
			Help: "Payment return signals consumed, by tag",
		},
		[]string{"tag", "source"},
	)

	CrisisShortCircuits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "decoder_crisis_short_circuits_total",
			Help: "Questions stopped by the crisis keyword filter",
		},
	)

	LeadSinkFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decoder_lead_sink_failures_total",
			Help: "Lead capture failures per sink",
		},
		[]string{"sink"},
	)

	ProxyRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decoder_proxy_requests_total",
			Help: "Proxy requests by response status",
		},
		[]string{"status"},
	)
)
