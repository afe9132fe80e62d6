// Package poller implements bounded, cancellable polling of async jobs.
package poller

import (
	"context"
	"log/slog"
	"time"

	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/domain"
	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/logger"
	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/metrics"
)

const (
	// DefaultInterval is the pause between status queries.
	DefaultInterval = 2 * time.Second
	// DefaultMaxAttempts caps consecutive non-terminal observations.
	DefaultMaxAttempts = 100
)

// StatusFunc observes a job's current state. It must not mutate the job.
type StatusFunc func(ctx context.Context) (domain.JobState, error)

// Poller waits for async jobs to reach a terminal status. Both bounds are
// mandatory: a zero value is normalized to the defaults, never to an
// unbounded wait.
type Poller struct {
	interval    time.Duration
	maxAttempts int
}

// New builds a poller. Non-positive arguments fall back to the defaults.
func New(interval time.Duration, maxAttempts int) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Poller{interval: interval, maxAttempts: maxAttempts}
}

// Await polls status until the job reaches a terminal state.
//
// It returns nil on success, a JobFailureError carrying the server detail on
// failure, and a TimeoutError once maxAttempts consecutive observations were
// all non-terminal; no further query is issued after the last one. A
// transport error from status is returned as-is. Cancelling ctx stops the
// wait between queries and aborts any in-flight query.
func (p *Poller) Await(ctx context.Context, jobID string, kind domain.JobKind, status StatusFunc) error {
	log := logger.WithJobID(jobID)
	timer := metrics.NewTimer()

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		state, err := status(ctx)
		if err != nil {
			metrics.ObservePollOutcome(string(kind), "error", timer.Seconds())
			return err
		}
		metrics.ObservePoll(string(kind), string(state.Status))

		switch state.Status {
		case domain.JobStatusSuccess:
			log.Debug("job reached success", slog.Int("attempts", attempt))
			metrics.ObservePollOutcome(string(kind), "success", timer.Seconds())
			return nil
		case domain.JobStatusFailure:
			metrics.ObservePollOutcome(string(kind), "failure", timer.Seconds())
			return &domain.JobFailureError{JobID: jobID, Kind: kind, Detail: state.Error}
		}

		if attempt == p.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			metrics.ObservePollOutcome(string(kind), "canceled", timer.Seconds())
			return ctx.Err()
		case <-time.After(p.interval):
		}
	}

	log.Warn("job polling exhausted attempts",
		slog.Int("max_attempts", p.maxAttempts),
		slog.Duration("interval", p.interval))
	metrics.ObservePollOutcome(string(kind), "timeout", timer.Seconds())
	return &domain.TimeoutError{JobID: jobID, Attempts: p.maxAttempts, Interval: p.interval}
}

// Interval returns the configured pause between queries.
func (p *Poller) Interval() time.Duration { return p.interval }

// MaxAttempts returns the configured attempt cap.
func (p *Poller) MaxAttempts() int { return p.maxAttempts }
