// Package client implements the HTTP client for the directory sync service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/domain"
)

// DirectoryAPI is the surface of the directory sync service consumed by the
// pipeline, the history repository, and the cache refresher.
type DirectoryAPI interface {
	// SubmitUpload sends a user file for validation against a repository.
	SubmitUpload(ctx context.Context, file io.Reader, fileName, repositoryID string) (domain.UploadReceipt, error)
	// GetJobStatus observes the status of an async job. Never mutates it.
	GetJobStatus(ctx context.Context, jobID string) (domain.JobState, error)
	// GetValidationPage fetches one page of a validate job's diff rows plus
	// the whole-job summary and discovered orphan users.
	GetValidationPage(ctx context.Context, jobID string, page, size int, filter domain.CategorySet) (domain.ResultPage, error)
	// SubmitExecute commits a reviewed diff, including selected deletions.
	SubmitExecute(ctx context.Context, jobID, uploadTaskID, repositoryID string, deleteUserIDs []string) (domain.ExecuteReceipt, error)
	// GetExecutionPage fetches one page of a persisted execution result by
	// its durable history identifier.
	GetExecutionPage(ctx context.Context, historyID string, page, size int, filter domain.CategorySet) (domain.HistoryResult, error)
	// TriggerCacheRefresh starts a group-cache refresh for the given FQDNs.
	TriggerCacheRefresh(ctx context.Context, fqdns []string) error
	// GetCacheTask observes the progress of the running cache refresh.
	GetCacheTask(ctx context.Context) (domain.CacheTask, error)
}

// Config configures the HTTP client.
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	Operator string
}

// Client performs directory sync RPCs over HTTP.
type Client struct {
	cfg Config
	hc  *http.Client
}

var _ DirectoryAPI = (*Client)(nil)

// NewClient builds a client with optional timeout override.
func NewClient(cfg Config) *Client {
	to := cfg.Timeout
	if to == 0 {
		to = 30 * time.Second
	}
	return &Client{
		cfg: cfg,
		hc:  &http.Client{Timeout: to},
	}
}

// OperatorHeader carries the acting administrator's identifier.
const OperatorHeader = "X-Sync-Operator"

// SubmitUpload uploads the file as multipart form data.
func (c *Client) SubmitUpload(ctx context.Context, file io.Reader, fileName, repositoryID string) (domain.UploadReceipt, error) {
	const op = "submit upload"

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return domain.UploadReceipt{}, fmt.Errorf("%s: %w", op, err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return domain.UploadReceipt{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := mw.WriteField("repository_id", repositoryID); err != nil {
		return domain.UploadReceipt{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := mw.Close(); err != nil {
		return domain.UploadReceipt{}, fmt.Errorf("%s: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/v1/uploads", &body)
	if err != nil {
		return domain.UploadReceipt{}, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(OperatorHeader, c.cfg.Operator)

	var out domain.UploadReceipt
	if err := c.do(req, op, http.StatusAccepted, &out); err != nil {
		return domain.UploadReceipt{}, err
	}
	return out, nil
}

// GetJobStatus queries a job's current state.
func (c *Client) GetJobStatus(ctx context.Context, jobID string) (domain.JobState, error) {
	const op = "job status"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.BaseURL+"/api/v1/jobs/"+url.PathEscape(jobID), nil)
	if err != nil {
		return domain.JobState{}, fmt.Errorf("%s: %w", op, err)
	}

	var out domain.JobState
	if err := c.do(req, op, http.StatusOK, &out); err != nil {
		return domain.JobState{}, err
	}
	return out, nil
}

// GetValidationPage fetches one diff page for a validate job.
func (c *Client) GetValidationPage(ctx context.Context, jobID string, page, size int, filter domain.CategorySet) (domain.ResultPage, error) {
	const op = "validation page"

	u := fmt.Sprintf("%s/api/v1/jobs/%s/diff?%s",
		c.cfg.BaseURL, url.PathEscape(jobID), pageQuery(page, size, filter))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.ResultPage{}, fmt.Errorf("%s: %w", op, err)
	}

	var out domain.ResultPage
	if err := c.do(req, op, http.StatusOK, &out); err != nil {
		return domain.ResultPage{}, err
	}
	return out, nil
}

type executePayload struct {
	JobID         string   `json:"job_id"`
	UploadTaskID  string   `json:"upload_task_id"`
	RepositoryID  string   `json:"repository_id"`
	DeleteUserIDs []string `json:"delete_user_ids"`
}

// SubmitExecute commits the reviewed change set.
func (c *Client) SubmitExecute(ctx context.Context, jobID, uploadTaskID, repositoryID string, deleteUserIDs []string) (domain.ExecuteReceipt, error) {
	const op = "submit execute"

	if deleteUserIDs == nil {
		deleteUserIDs = []string{}
	}
	payload, err := json.Marshal(executePayload{
		JobID:         jobID,
		UploadTaskID:  uploadTaskID,
		RepositoryID:  repositoryID,
		DeleteUserIDs: deleteUserIDs,
	})
	if err != nil {
		return domain.ExecuteReceipt{}, fmt.Errorf("%s: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/api/v1/executions", bytes.NewReader(payload))
	if err != nil {
		return domain.ExecuteReceipt{}, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(OperatorHeader, c.cfg.Operator)

	var out domain.ExecuteReceipt
	if err := c.do(req, op, http.StatusAccepted, &out); err != nil {
		return domain.ExecuteReceipt{}, err
	}
	return out, nil
}

// GetExecutionPage fetches one page of a persisted result.
func (c *Client) GetExecutionPage(ctx context.Context, historyID string, page, size int, filter domain.CategorySet) (domain.HistoryResult, error) {
	const op = "history page"

	u := fmt.Sprintf("%s/api/v1/history/%s?%s",
		c.cfg.BaseURL, url.PathEscape(historyID), pageQuery(page, size, filter))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.HistoryResult{}, fmt.Errorf("%s: %w", op, err)
	}

	var out domain.HistoryResult
	if err := c.doWithNotFound(req, op, http.StatusOK, &out, "history", historyID); err != nil {
		return domain.HistoryResult{}, err
	}
	return out, nil
}

type cacheRefreshPayload struct {
	FQDNs []string `json:"fqdns"`
}

// TriggerCacheRefresh starts a group-cache refresh job.
func (c *Client) TriggerCacheRefresh(ctx context.Context, fqdns []string) error {
	const op = "cache refresh"

	payload, err := json.Marshal(cacheRefreshPayload{FQDNs: fqdns})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/api/v1/cache-refresh", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(OperatorHeader, c.cfg.Operator)

	return c.do(req, op, http.StatusAccepted, nil)
}

// GetCacheTask fetches the cache refresh progress snapshot.
func (c *Client) GetCacheTask(ctx context.Context) (domain.CacheTask, error) {
	const op = "cache task"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.BaseURL+"/api/v1/cache-refresh/task", nil)
	if err != nil {
		return domain.CacheTask{}, fmt.Errorf("%s: %w", op, err)
	}

	var out domain.CacheTask
	if err := c.do(req, op, http.StatusOK, &out); err != nil {
		return domain.CacheTask{}, err
	}
	return out, nil
}

// do issues the request and decodes a JSON response into out when the status
// matches want. Transport failures map to NetworkError, other statuses to
// ServerError.
func (c *Client) do(req *http.Request, op string, want int, out any) error {
	resp, err := c.hc.Do(req)
	if err != nil {
		return &domain.NetworkError{Op: op, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != want {
		return &domain.ServerError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// doWithNotFound is do with 404 mapped to a typed not-found error.
func (c *Client) doWithNotFound(req *http.Request, op string, want int, out any, resource, id string) error {
	resp, err := c.hc.Do(req)
	if err != nil {
		return &domain.NetworkError{Op: op, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return &domain.NotFoundError{Resource: resource, ID: id}
	}
	if resp.StatusCode != want {
		return &domain.ServerError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// pageQuery renders the shared paging query string. Page indices are
// 0-based on the wire.
func pageQuery(page, size int, filter domain.CategorySet) string {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	if !filter.IsEmpty() {
		q.Set("categories", filter.QueryValue())
	}
	return q.Encode()
}

func errorMessage(r io.Reader) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(r, 4096)).Decode(&body); err != nil {
		return ""
	}
	return body.Error
}
