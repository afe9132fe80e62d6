package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) (*gin.Engine, *Engine) {
	t.Helper()
	dir := NewDirectory()
	dir.Seed("repo-1", User{ID: "u1", Name: "Alice"})
	engine := NewEngine(dir, newMemoryHistory(), 1)
	t.Cleanup(engine.Close)
	return NewRouter(NewHandler(engine)), engine
}

func multipartUpload(t *testing.T, fileName, repositoryID, content string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.WriteField("repository_id", repositoryID))
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestHandler_CreateUpload(t *testing.T) {
	t.Run("accepts a csv upload", func(t *testing.T) {
		router, _ := newTestRouter(t)

		body, contentType := multipartUpload(t, "users.csv", "repo-1", "id,name\nu1,Alice\n")
		req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("X-Sync-Operator", "admin@example.org")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusAccepted, w.Code)

		var receipt domain.UploadReceipt
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &receipt))
		assert.NotEmpty(t, receipt.JobID)
		assert.NotEmpty(t, receipt.UploadTaskID)
	})

	t.Run("rejects an unsupported format", func(t *testing.T) {
		router, _ := newTestRouter(t)

		body, contentType := multipartUpload(t, "users.pdf", "repo-1", "%PDF")
		req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	})

	t.Run("rejects a missing repository id", func(t *testing.T) {
		router, _ := newTestRouter(t)

		body, contentType := multipartUpload(t, "users.csv", "", "id,name\n")
		req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects a request without a file", func(t *testing.T) {
		router, _ := newTestRouter(t)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", bytes.NewBufferString(""))
		req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandler_GetJob(t *testing.T) {
	router, engine := newTestRouter(t)

	t.Run("unknown job", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/nope", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("known job", func(t *testing.T) {
		receipt, err := engine.SubmitUpload("admin", "users.csv", "repo-1", []byte("id,name\nu1,Alice\n"))
		require.NoError(t, err)
		waitJob(t, engine, receipt.JobID)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+receipt.JobID, nil))
		require.Equal(t, http.StatusOK, w.Code)

		var state domain.JobState
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
		assert.Equal(t, domain.JobStatusSuccess, state.Status)
	})
}

func TestHandler_GetDiff(t *testing.T) {
	router, engine := newTestRouter(t)

	receipt, err := engine.SubmitUpload("admin", "users.csv", "repo-1", []byte("id,name\nu1,Alice\nu2,Bob\n"))
	require.NoError(t, err)
	waitJob(t, engine, receipt.JobID)

	t.Run("serves the diff page", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
			"/api/v1/jobs/"+receipt.JobID+"/diff?page=0&size=25", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var page domain.ResultPage
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
		assert.Equal(t, domain.Summary{Create: 1, Skip: 1}, page.Summary)
	})

	t.Run("rejects bad paging parameters", func(t *testing.T) {
		for _, query := range []string{"page=-1", "size=0", "categories=9", "categories=create"} {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
				"/api/v1/jobs/"+receipt.JobID+"/diff?"+query, nil))
			assert.Equal(t, http.StatusBadRequest, w.Code, query)
		}
	})

	t.Run("conflict while the job is pending", func(t *testing.T) {
		engine.mu.Lock()
		engine.jobs["pending"] = &jobRecord{kind: domain.JobKindValidate, state: domain.JobState{Status: domain.JobStatusPending}}
		engine.validations["pending"] = &validation{}
		engine.mu.Unlock()

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/pending/diff", nil))
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestHandler_CreateExecution(t *testing.T) {
	router, engine := newTestRouter(t)

	receipt, err := engine.SubmitUpload("admin", "users.csv", "repo-1", []byte("id,name\nu1,Alice\n"))
	require.NoError(t, err)
	waitJob(t, engine, receipt.JobID)

	post := func(body any) *httptest.ResponseRecorder {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/executions", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("accepts a valid request", func(t *testing.T) {
		w := post(gin.H{
			"job_id":          receipt.JobID,
			"upload_task_id":  receipt.UploadTaskID,
			"repository_id":   "repo-1",
			"delete_user_ids": []string{},
		})
		require.Equal(t, http.StatusAccepted, w.Code)

		var exec domain.ExecuteReceipt
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &exec))
		assert.NotEmpty(t, exec.HistoryID)
	})

	t.Run("rejects malformed ids", func(t *testing.T) {
		w := post(gin.H{
			"job_id":         "not-a-uuid",
			"upload_task_id": receipt.UploadTaskID,
			"repository_id":  "repo-1",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown upload", func(t *testing.T) {
		w := post(gin.H{
			"job_id":         "0b9a2f11-64e2-41d9-8df4-3a4c8df2b901",
			"upload_task_id": receipt.UploadTaskID,
			"repository_id":  "repo-1",
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHandler_History(t *testing.T) {
	router, engine := newTestRouter(t)

	t.Run("unknown id is 404", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/history/nope", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("serves a stored result", func(t *testing.T) {
		receipt, err := engine.SubmitUpload("admin", "users.csv", "repo-1", []byte("id,name\nu1,Alice2\n"))
		require.NoError(t, err)
		waitJob(t, engine, receipt.JobID)
		exec, err := engine.SubmitExecute(receipt.JobID, receipt.UploadTaskID, nil)
		require.NoError(t, err)
		waitJob(t, engine, exec.ExecuteJobID)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/history/"+exec.HistoryID, nil))
		require.Equal(t, http.StatusOK, w.Code)

		var result domain.HistoryResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		assert.Equal(t, "users.csv", result.FileInfo.FileName)
		assert.Equal(t, domain.Summary{Update: 1}, result.Summary)
	})
}

func TestHandler_CacheRefresh(t *testing.T) {
	router, _ := newTestRouter(t)

	t.Run("rejects an empty target list", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/cache-refresh", bytes.NewBufferString(`{"fqdns":[]}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("accepts and reports progress", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/cache-refresh", bytes.NewBufferString(`{"fqdns":["repo-1"]}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusAccepted, w.Code)

		w = httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/cache-refresh/task", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var task domain.CacheTask
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &task))
		assert.Equal(t, 1, task.Total)
	})
}
