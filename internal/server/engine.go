package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/domain"
	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/logger"
)

const (
	// DefaultWorkerCount is the size of the job worker pool.
	DefaultWorkerCount = 2

	// jobTimeout bounds one job's processing time.
	jobTimeout = 5 * time.Minute
)

// ErrJobNotReady is returned when results are requested for a job that has
// not reached a successful terminal state.
var ErrJobNotReady = errors.New("job not complete")

// HistoryStore persists execution results beyond the life of the engine.
type HistoryStore interface {
	Save(ctx context.Context, historyID string, info domain.FileInfo, rows []domain.DiffRow) error
	Page(ctx context.Context, historyID string, page, size int, filter domain.CategorySet) (domain.HistoryResult, error)
}

type jobRecord struct {
	kind  domain.JobKind
	state domain.JobState
}

// validation is the outcome of one validate job, held until the engine is
// reset or the upload is superseded by an execute.
type validation struct {
	uploadTaskID string
	repositoryID string
	fileName     string
	operator     string
	startedAt    time.Time
	outcome      diffOutcome
}

type task struct {
	kind    string
	jobID   string
	data    []byte
	exec    executeParams
	fqdns   []string
	started time.Time
}

type executeParams struct {
	validateJobID string
	historyID     string
	deleteUserIDs []string
}

// Engine runs validate, execute and cache-refresh jobs on a small worker
// pool and serves their results.
type Engine struct {
	dir     *Directory
	history HistoryStore

	queue    chan task
	stopChan chan struct{}
	wg       sync.WaitGroup

	mu          sync.RWMutex
	closed      bool
	jobs        map[string]*jobRecord
	validations map[string]*validation
	cacheTask   *domain.CacheTask
}

// NewEngine starts an engine with the given worker pool size.
func NewEngine(dir *Directory, history HistoryStore, workerCount int) *Engine {
	if workerCount < 1 {
		workerCount = DefaultWorkerCount
	}
	e := &Engine{
		dir:         dir,
		history:     history,
		queue:       make(chan task, workerCount*2),
		stopChan:    make(chan struct{}),
		jobs:        make(map[string]*jobRecord),
		validations: make(map[string]*validation),
	}
	for i := 0; i < workerCount; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	return e
}

func (e *Engine) worker() {
	defer e.wg.Done()

	for {
		select {
		case t, ok := <-e.queue:
			if !ok {
				return
			}
			e.process(t)
		case <-e.stopChan:
			return
		}
	}
}

// Close shuts the worker pool down. Queued jobs are abandoned.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	close(e.stopChan)
	close(e.queue)
	e.wg.Wait()
}

func (e *Engine) enqueue(t task) error {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return errors.New("engine is shutting down")
	}
	e.mu.RUnlock()

	select {
	case e.queue <- t:
		return nil
	case <-e.stopChan:
		return errors.New("engine is shutting down")
	}
}

// SubmitUpload registers an upload and queues its validate job.
func (e *Engine) SubmitUpload(operator, fileName, repositoryID string, data []byte) (domain.UploadReceipt, error) {
	jobID := uuid.New().String()
	uploadTaskID := uuid.New().String()
	started := time.Now()

	e.mu.Lock()
	e.jobs[jobID] = &jobRecord{kind: domain.JobKindValidate, state: domain.JobState{Status: domain.JobStatusPending}}
	e.validations[jobID] = &validation{
		uploadTaskID: uploadTaskID,
		repositoryID: repositoryID,
		fileName:     fileName,
		operator:     operator,
		startedAt:    started,
	}
	e.mu.Unlock()

	if err := e.enqueue(task{kind: "validate", jobID: jobID, data: data, started: started}); err != nil {
		return domain.UploadReceipt{}, err
	}

	logger.WithJobID(jobID).Info("validate job queued",
		slog.String("file_name", fileName),
		slog.String("repository_id", repositoryID))
	return domain.UploadReceipt{JobID: jobID, UploadTaskID: uploadTaskID}, nil
}

// JobState returns one observation of a job.
func (e *Engine) JobState(jobID string) (domain.JobState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rec, ok := e.jobs[jobID]
	if !ok {
		return domain.JobState{}, &domain.NotFoundError{Resource: "job", ID: jobID}
	}
	return rec.state, nil
}

// ValidationPage serves one page of a successful validate job's result.
// The summary and missing users cover the whole job regardless of paging.
func (e *Engine) ValidationPage(jobID string, page, size int, filter domain.CategorySet) (domain.ResultPage, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rec, ok := e.jobs[jobID]
	if !ok || rec.kind != domain.JobKindValidate {
		return domain.ResultPage{}, &domain.NotFoundError{Resource: "job", ID: jobID}
	}
	if rec.state.Status != domain.JobStatusSuccess {
		return domain.ResultPage{}, ErrJobNotReady
	}

	v := e.validations[jobID]
	return domain.ResultPage{
		Rows:         pageRows(v.outcome.rows, page, size, filter),
		Summary:      v.outcome.summary,
		MissingUsers: v.outcome.missing,
	}, nil
}

// SubmitExecute queues an execute job for a successfully validated upload.
// Deletion ids must be a subset of the validate job's missing users.
func (e *Engine) SubmitExecute(jobID, uploadTaskID string, deleteUserIDs []string) (domain.ExecuteReceipt, error) {
	e.mu.Lock()

	rec, ok := e.jobs[jobID]
	v := e.validations[jobID]
	if !ok || v == nil || rec.kind != domain.JobKindValidate || v.uploadTaskID != uploadTaskID {
		e.mu.Unlock()
		return domain.ExecuteReceipt{}, &domain.NotFoundError{Resource: "upload", ID: jobID}
	}
	if rec.state.Status != domain.JobStatusSuccess {
		e.mu.Unlock()
		return domain.ExecuteReceipt{}, ErrJobNotReady
	}

	known := make(map[string]struct{}, len(v.outcome.missing))
	for _, m := range v.outcome.missing {
		known[m.ID] = struct{}{}
	}
	for _, id := range deleteUserIDs {
		if _, ok := known[id]; !ok {
			e.mu.Unlock()
			return domain.ExecuteReceipt{}, fmt.Errorf("delete target %q is not a missing user", id)
		}
	}

	execJobID := uuid.New().String()
	historyID := uuid.New().String()
	e.jobs[execJobID] = &jobRecord{kind: domain.JobKindExecute, state: domain.JobState{Status: domain.JobStatusPending}}
	e.mu.Unlock()

	err := e.enqueue(task{
		kind:  "execute",
		jobID: execJobID,
		exec: executeParams{
			validateJobID: jobID,
			historyID:     historyID,
			deleteUserIDs: deleteUserIDs,
		},
	})
	if err != nil {
		return domain.ExecuteReceipt{}, err
	}

	logger.WithJobID(execJobID).Info("execute job queued",
		slog.String("history_id", historyID),
		slog.Int("deletions", len(deleteUserIDs)))
	return domain.ExecuteReceipt{ExecuteJobID: execJobID, HistoryID: historyID}, nil
}

// TriggerCacheRefresh starts a group-cache refresh over the given
// repositories. Only one refresh runs at a time.
func (e *Engine) TriggerCacheRefresh(fqdns []string) error {
	if len(fqdns) == 0 {
		return errors.New("at least one fqdn is required")
	}

	e.mu.Lock()
	if e.cacheTask != nil && !e.cacheTask.Finished() {
		e.mu.Unlock()
		return errors.New("cache refresh already running")
	}
	e.cacheTask = &domain.CacheTask{Total: len(fqdns)}
	e.mu.Unlock()

	return e.enqueue(task{kind: "cache", fqdns: fqdns})
}

// CacheTask returns the refresh progress snapshot. A finished snapshot is
// cleared once it has been observed, so the next refresh starts clean.
func (e *Engine) CacheTask() domain.CacheTask {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cacheTask == nil {
		return domain.CacheTask{}
	}
	out := *e.cacheTask
	if out.Finished() {
		e.cacheTask = nil
	}
	return out
}

func (e *Engine) process(t task) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	switch t.kind {
	case "validate":
		e.processValidate(t)
	case "execute":
		e.processExecute(ctx, t)
	case "cache":
		e.processCacheRefresh(t.fqdns)
	}
}

func (e *Engine) processValidate(t task) {
	log := logger.WithJobID(t.jobID)

	e.mu.RLock()
	v := e.validations[t.jobID]
	e.mu.RUnlock()
	if v == nil {
		return
	}

	records, err := parseUserFile(v.fileName, t.data)
	if err != nil {
		log.Warn("validate job failed", slog.String("error", err.Error()))
		e.finishJob(t.jobID, domain.JobState{Status: domain.JobStatusFailure, Error: err.Error()})
		return
	}

	outcome := computeDiff(records, e.dir.snapshot(v.repositoryID))

	e.mu.Lock()
	v.outcome = outcome
	e.mu.Unlock()

	log.Info("validate job complete",
		slog.Int("rows", len(outcome.rows)),
		slog.Int("missing_users", len(outcome.missing)))
	e.finishJob(t.jobID, domain.JobState{Status: domain.JobStatusSuccess})
}

func (e *Engine) processExecute(ctx context.Context, t task) {
	log := logger.WithJobID(t.jobID)

	e.mu.RLock()
	v := e.validations[t.exec.validateJobID]
	e.mu.RUnlock()
	if v == nil {
		e.finishJob(t.jobID, domain.JobState{Status: domain.JobStatusFailure, Error: "validation result is gone"})
		return
	}

	if err := e.dir.Apply(v.repositoryID, v.outcome.plan.upserts, t.exec.deleteUserIDs); err != nil {
		log.Warn("execute job failed", slog.String("error", err.Error()))
		e.finishJob(t.jobID, domain.JobState{Status: domain.JobStatusFailure, Error: err.Error()})
		return
	}

	rows, _ := executionRows(v.outcome, t.exec.deleteUserIDs)
	info := domain.FileInfo{
		FileName:   v.fileName,
		Operator:   v.operator,
		StartedAt:  v.startedAt,
		FinishedAt: time.Now(),
	}
	if err := e.history.Save(ctx, t.exec.historyID, info, rows); err != nil {
		log.Error("persist history failed", slog.String("error", err.Error()))
		e.finishJob(t.jobID, domain.JobState{Status: domain.JobStatusFailure, Error: "persist history: " + err.Error()})
		return
	}

	log.Info("execute job complete", slog.String("history_id", t.exec.historyID))
	e.finishJob(t.jobID, domain.JobState{Status: domain.JobStatusSuccess})
}

// executionRows is the persisted result: every reviewed row plus one delete
// row per selected missing user.
func executionRows(outcome diffOutcome, deleteUserIDs []string) ([]domain.DiffRow, domain.Summary) {
	rows := make([]domain.DiffRow, 0, len(outcome.rows)+len(deleteUserIDs))
	var summary domain.Summary

	for _, r := range outcome.rows {
		rows = append(rows, r)
		summary.Add(r.Category)
	}

	selected := make(map[string]struct{}, len(deleteUserIDs))
	for _, id := range deleteUserIDs {
		selected[id] = struct{}{}
	}
	for _, m := range outcome.missing {
		if _, ok := selected[m.ID]; !ok {
			continue
		}
		u := User{ID: m.ID, Name: m.Name, Groups: m.Groups}
		if m.EPPN != "" {
			u.EPPNs = []string{m.EPPN}
		}
		rows = append(rows, diffRow(u, domain.CategoryDelete, ""))
		summary.Add(domain.CategoryDelete)
	}
	return rows, summary
}

func (e *Engine) processCacheRefresh(fqdns []string) {
	for i, fqdn := range fqdns {
		e.mu.Lock()
		e.cacheTask.Current = fqdn
		e.mu.Unlock()

		result := domain.CacheResult{FQDN: fqdn, Status: "success", Updated: time.Now().Format(time.RFC3339)}
		if len(e.dir.Users(fqdn)) == 0 {
			result.Status = "failed"
			result.Code = "E404"
		} else {
			result.Repository = fqdn
		}

		e.mu.Lock()
		e.cacheTask.Results = append(e.cacheTask.Results, result)
		e.cacheTask.Done = i + 1
		if e.cacheTask.Done == e.cacheTask.Total {
			e.cacheTask.Current = ""
		}
		e.mu.Unlock()
	}
	logger.Info("cache refresh complete", slog.Int("repositories", len(fqdns)))
}

func (e *Engine) finishJob(jobID string, state domain.JobState) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if rec, ok := e.jobs[jobID]; ok {
		rec.state = state
	}
}

// pageRows applies the category filter then slices out the requested
// 0-based page. Out-of-range pages yield an empty slice, not an error.
func pageRows(rows []domain.DiffRow, page, size int, filter domain.CategorySet) []domain.DiffRow {
	filtered := rows
	if !filter.IsEmpty() {
		filtered = make([]domain.DiffRow, 0, len(rows))
		for _, r := range rows {
			if filter.Has(r.Category) {
				filtered = append(filtered, r)
			}
		}
	}

	start := page * size
	if start < 0 || start >= len(filtered) {
		return []domain.DiffRow{}
	}
	end := start + size
	if end > len(filtered) {
		end = len(filtered)
	}
	return filtered[start:end]
}
