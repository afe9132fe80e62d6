// Package cacherefresh triggers and tracks the long-running group-cache
// refresh job over a set of repositories.
package cacherefresh

import (
	"context"
	"fmt"
	"sync"

	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/client"
	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/domain"
	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/poller"
)

// Refresher drives one cache refresh run. Progress is observed only through
// polling; the refresh itself runs server-side.
type Refresher struct {
	api  client.DirectoryAPI
	poll *poller.Poller

	mu   sync.Mutex
	last domain.CacheTask
}

// New creates a refresher.
func New(api client.DirectoryAPI, poll *poller.Poller) *Refresher {
	return &Refresher{api: api, poll: poll}
}

// Trigger starts a refresh for the given repository FQDNs.
func (r *Refresher) Trigger(ctx context.Context, fqdns []string) error {
	if len(fqdns) == 0 {
		return fmt.Errorf("no repositories to refresh")
	}
	return r.api.TriggerCacheRefresh(ctx, fqdns)
}

// Await polls the refresh task until every repository has been processed.
// The task is a progress snapshot rather than a status record, so it maps
// onto the job contract as: finished -> success, anything else -> pending.
// The server never reports failure for the task as a whole; per-repository
// outcomes are in the results.
func (r *Refresher) Await(ctx context.Context) (domain.CacheTask, error) {
	err := r.poll.Await(ctx, "cache-refresh", domain.JobKind("cache"), func(ctx context.Context) (domain.JobState, error) {
		task, err := r.api.GetCacheTask(ctx)
		if err != nil {
			return domain.JobState{}, err
		}
		r.mu.Lock()
		r.last = task
		r.mu.Unlock()
		if task.Finished() {
			return domain.JobState{Status: domain.JobStatusSuccess}, nil
		}
		return domain.JobState{Status: domain.JobStatusPending}, nil
	})
	if err != nil {
		return r.Progress(), err
	}
	return r.Progress(), nil
}

// Progress returns the most recently observed task snapshot.
func (r *Refresher) Progress() domain.CacheTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
