// Package pipeline drives one bulk user sync run: upload, server-side
// validation, operator review, execution, and durable result retrieval.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/client"
	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/diffstore"
	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/domain"
	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/logger"
	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/metrics"
	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/poller"
	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/selection"
	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/validator"
)

// Stage is the pipeline's current position in the sync workflow.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageUploading  Stage = "uploading"
	StageValidating Stage = "validating"
	StageReviewing  Stage = "reviewing"
	StageExecuting  Stage = "executing"
	StageCompleted  Stage = "completed"
	StageFailed     Stage = "failed"
)

// Pipeline owns all state of one sync run: the upload task, the async job
// handles, the orphan-user selection, and the review/result stores. No two
// pipelines may drive the same job; commands are strictly sequential.
type Pipeline struct {
	api       client.DirectoryAPI
	validator *validator.Validator
	poll      *poller.Poller
	pageSize  int

	mu            sync.Mutex
	busy          bool
	stage         Stage
	lastErr       error
	task          *domain.UploadTask
	validateJobID string
	executeJobID  string
	historyID     string
	fileInfo      domain.FileInfo
	diff          *diffstore.Store
	results       *diffstore.Store
	missing       *selection.Selector
}

// New creates an idle pipeline.
func New(api client.DirectoryAPI, v *validator.Validator, poll *poller.Poller, pageSize int) *Pipeline {
	return &Pipeline{
		api:       api,
		validator: v,
		poll:      poll,
		pageSize:  pageSize,
		stage:     StageIdle,
		missing:   selection.New(),
	}
}

// Submit validates the file format locally, uploads the file, and obtains
// the validate job. Allowed from Idle, or from Failed as a retry. On return
// the pipeline is Validating (accepted) or Failed (rejected).
func (p *Pipeline) Submit(ctx context.Context, file io.Reader, fileName, contentType, repositoryID string) error {
	if err := p.begin(StageIdle, StageFailed); err != nil {
		return err
	}
	defer p.finish()

	p.discardRunState()

	req := &validator.UploadRequest{
		FileName:     fileName,
		ContentType:  contentType,
		RepositoryID: repositoryID,
	}
	if err := p.validator.ValidateUpload(req); err != nil {
		// Local rejection: no request was issued.
		p.fail(err)
		return err
	}

	p.transition(StageUploading)

	receipt, err := p.api.SubmitUpload(ctx, file, fileName, repositoryID)
	if err != nil {
		p.fail(fmt.Errorf("upload rejected: %w", err))
		return err
	}

	p.mu.Lock()
	p.task = &domain.UploadTask{
		ID:           receipt.UploadTaskID,
		FileName:     fileName,
		RepositoryID: repositoryID,
	}
	p.validateJobID = receipt.JobID
	jobID := receipt.JobID
	p.diff = diffstore.New("validation", p.validationFetcher(jobID), p.pageSize)
	p.mu.Unlock()

	logger.WithJobID(receipt.JobID).Info("upload accepted",
		slog.String("upload_task_id", receipt.UploadTaskID),
		slog.String("repository_id", repositoryID))
	p.transition(StageValidating)
	return nil
}

// AwaitValidation polls the validate job to completion, then loads the
// first diff page and the orphan-user collection. On return the pipeline is
// Reviewing or Failed.
func (p *Pipeline) AwaitValidation(ctx context.Context) error {
	if err := p.begin(StageValidating); err != nil {
		return err
	}
	defer p.finish()

	p.mu.Lock()
	jobID := p.validateJobID
	diff := p.diff
	p.mu.Unlock()

	err := p.poll.Await(ctx, jobID, domain.JobKindValidate, func(ctx context.Context) (domain.JobState, error) {
		return p.api.GetJobStatus(ctx, jobID)
	})
	if err != nil {
		p.fail(err)
		return err
	}

	if err := diff.Refresh(ctx); err != nil {
		p.fail(err)
		return err
	}

	p.mu.Lock()
	p.missing.SetUsers(diff.MissingUsers())
	summary := diff.Summary()
	p.mu.Unlock()

	logger.WithJobID(jobID).Info("validation finished",
		slog.Int("total", summary.Total()),
		slog.Int("errors", summary.Error),
		slog.Int("missing_users", len(diff.MissingUsers())))
	p.transition(StageReviewing)
	return nil
}

// Execute commits the reviewed change set, including the selected orphan
// deletions. Refused locally while the unfiltered error count is nonzero.
// On return the pipeline is Executing, Failed, or still Reviewing after a
// local refusal.
func (p *Pipeline) Execute(ctx context.Context) error {
	if err := p.begin(StageReviewing); err != nil {
		return err
	}
	defer p.finish()

	p.mu.Lock()
	summary := p.diff.Summary()
	task := *p.task
	jobID := p.validateJobID
	deletions := p.missing.Selected()
	p.mu.Unlock()

	if summary.Error > 0 {
		// A diff with unresolved errors is not executable; no request is
		// issued and the run stays reviewable.
		return fmt.Errorf("%w: %d error rows", domain.ErrDiffHasErrors, summary.Error)
	}

	req := &validator.ExecuteRequest{
		JobID:         jobID,
		UploadTaskID:  task.ID,
		RepositoryID:  task.RepositoryID,
		DeleteUserIDs: deletions,
	}
	if err := p.validator.ValidateExecute(req); err != nil {
		return err
	}

	receipt, err := p.api.SubmitExecute(ctx, jobID, task.ID, task.RepositoryID, deletions)
	if err != nil {
		p.fail(err)
		return err
	}

	p.mu.Lock()
	p.executeJobID = receipt.ExecuteJobID
	p.historyID = receipt.HistoryID
	p.mu.Unlock()

	logger.WithJobID(receipt.ExecuteJobID).Info("execute accepted",
		slog.String("history_id", receipt.HistoryID),
		slog.Int("deletions", len(deletions)))
	p.transition(StageExecuting)
	return nil
}

// AwaitExecution polls the execute job to completion, then loads the first
// page of the persisted result. On return the pipeline is Completed or
// Failed.
func (p *Pipeline) AwaitExecution(ctx context.Context) error {
	if err := p.begin(StageExecuting); err != nil {
		return err
	}
	defer p.finish()

	p.mu.Lock()
	jobID := p.executeJobID
	historyID := p.historyID
	p.mu.Unlock()

	err := p.poll.Await(ctx, jobID, domain.JobKindExecute, func(ctx context.Context) (domain.JobState, error) {
		return p.api.GetJobStatus(ctx, jobID)
	})
	if err != nil {
		p.fail(err)
		return err
	}

	results := diffstore.New("execution", p.executionFetcher(historyID), p.pageSize)
	if err := results.Refresh(ctx); err != nil {
		p.fail(err)
		return err
	}

	p.mu.Lock()
	p.results = results
	p.mu.Unlock()

	logger.WithHistoryID(historyID).Info("execution finished",
		slog.Int("total", results.Summary().Total()))
	p.transition(StageCompleted)
	metrics.ObserveRun("completed")
	return nil
}

// Reset discards all pipeline-owned state and returns to Idle.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	from := p.stage
	p.discardRunStateLocked()
	p.stage = StageIdle
	p.lastErr = nil
	metrics.ObserveTransition(string(from), string(StageIdle))
}

// Stage returns the current stage.
func (p *Pipeline) Stage() Stage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stage
}

// Err returns the error that moved the pipeline to Failed, if any.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Task returns the active upload task, or nil before a successful upload.
func (p *Pipeline) Task() *domain.UploadTask {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.task == nil {
		return nil
	}
	t := *p.task
	return &t
}

// Diff returns the review store. Valid from Reviewing onward.
func (p *Pipeline) Diff() *diffstore.Store {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.diff
}

// Missing returns the orphan-user selector. The pipeline clears it whenever
// the orphan collection is replaced by a new validation run.
func (p *Pipeline) Missing() *selection.Selector {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.missing
}

// Results returns the execution result store. Valid once Completed.
func (p *Pipeline) Results() *diffstore.Store {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.results
}

// HistoryID returns the durable identifier of the execution result, or ""
// before execute was accepted.
func (p *Pipeline) HistoryID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.historyID
}

// FileInfo returns the file metadata of the persisted result. Valid once
// Completed.
func (p *Pipeline) FileInfo() domain.FileInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fileInfo
}

// begin checks the stage and claims the pipeline for one command. Commands
// are strictly sequential: a second command while one is in flight is
// rejected.
func (p *Pipeline) begin(allowed ...Stage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.busy {
		return fmt.Errorf("%w: another command is in progress", domain.ErrInvalidStage)
	}
	for _, s := range allowed {
		if p.stage == s {
			p.busy = true
			return nil
		}
	}
	return fmt.Errorf("%w: stage is %s", domain.ErrInvalidStage, p.stage)
}

func (p *Pipeline) finish() {
	p.mu.Lock()
	p.busy = false
	p.mu.Unlock()
}

func (p *Pipeline) transition(to Stage) {
	p.mu.Lock()
	from := p.stage
	p.stage = to
	p.mu.Unlock()
	metrics.ObserveTransition(string(from), string(to))
}

func (p *Pipeline) fail(err error) {
	p.mu.Lock()
	from := p.stage
	p.stage = StageFailed
	p.lastErr = err
	p.mu.Unlock()
	logger.WithStage(string(from)).Error("sync run failed", slog.String("error", err.Error()))
	metrics.ObserveTransition(string(from), string(StageFailed))
	metrics.ObserveRun("failed")
}

func (p *Pipeline) discardRunState() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.discardRunStateLocked()
}

func (p *Pipeline) discardRunStateLocked() {
	p.task = nil
	p.validateJobID = ""
	p.executeJobID = ""
	p.historyID = ""
	p.fileInfo = domain.FileInfo{}
	p.diff = nil
	p.results = nil
	p.missing.SetUsers(nil)
}

func (p *Pipeline) validationFetcher(jobID string) diffstore.PageFetcher {
	return func(ctx context.Context, page, size int, filter domain.CategorySet) (domain.ResultPage, error) {
		return p.api.GetValidationPage(ctx, jobID, page, size, filter)
	}
}

func (p *Pipeline) executionFetcher(historyID string) diffstore.PageFetcher {
	return func(ctx context.Context, page, size int, filter domain.CategorySet) (domain.ResultPage, error) {
		result, err := p.api.GetExecutionPage(ctx, historyID, page, size, filter)
		if err != nil {
			return domain.ResultPage{}, err
		}
		p.mu.Lock()
		p.fileInfo = result.FileInfo
		p.mu.Unlock()
		return domain.ResultPage{Rows: result.Rows, Summary: result.Summary}, nil
	}
}
