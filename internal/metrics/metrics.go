// Package metrics provides Prometheus metrics for observability.
// Metrics are organized by domain: HTTP requests, job polling, result
// paging, and pipeline runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "user_sync"
)

var (
	// HTTP metrics - track reference server request volume and latency
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path, and status code",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
	)

	// Poll metrics - track status polling against async jobs
	PollAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "attempts_total",
			Help:      "Total number of status polls by job kind and observed status",
		},
		[]string{"job_kind", "status"},
	)

	PollOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "outcomes_total",
			Help:      "Total number of completed poll waits by job kind and outcome",
		},
		[]string{"job_kind", "outcome"},
	)

	PollWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "wait_duration_seconds",
			Help:      "Time spent waiting for a job to reach a terminal status",
			Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"job_kind"},
	)

	// Page metrics - track result page fetches
	PageFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pages",
			Name:      "fetches_total",
			Help:      "Total number of result page fetches by source and result",
		},
		[]string{"source", "result"},
	)

	PageFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pages",
			Name:      "fetch_duration_seconds",
			Help:      "Result page fetch duration in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"source"},
	)

	// Pipeline metrics - track sync run stage transitions
	PipelineTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "transitions_total",
			Help:      "Total number of pipeline stage transitions",
		},
		[]string{"from", "to"},
	)

	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of finished pipeline runs by outcome",
		},
		[]string{"outcome"},
	)
)

// ObservePoll records one status observation during a poll wait.
func ObservePoll(jobKind, status string) {
	PollAttemptsTotal.WithLabelValues(jobKind, status).Inc()
}

// ObservePollOutcome records the final outcome of a poll wait.
func ObservePollOutcome(jobKind, outcome string, durationSeconds float64) {
	PollOutcomesTotal.WithLabelValues(jobKind, outcome).Inc()
	PollWaitDuration.WithLabelValues(jobKind).Observe(durationSeconds)
}

// ObservePageFetch records a result page fetch.
func ObservePageFetch(source, result string, durationSeconds float64) {
	PageFetchesTotal.WithLabelValues(source, result).Inc()
	PageFetchDuration.WithLabelValues(source).Observe(durationSeconds)
}

// ObserveTransition records a pipeline stage transition.
func ObserveTransition(from, to string) {
	PipelineTransitionsTotal.WithLabelValues(from, to).Inc()
}

// ObserveRun records a finished pipeline run.
func ObserveRun(outcome string) {
	PipelineRunsTotal.WithLabelValues(outcome).Inc()
}

// Timer is a helper for measuring operation duration
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer starting now
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Seconds returns the elapsed time since the timer was created in seconds.
func (t *Timer) Seconds() float64 {
	return time.Since(t.start).Seconds()
}

// ObserveDuration records the elapsed time since the timer was created
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(time.Since(t.start).Seconds())
}
