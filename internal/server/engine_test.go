package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/domain"
)

// memoryHistory is an in-process HistoryStore for engine tests.
type memoryHistory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	info domain.FileInfo
	rows []domain.DiffRow
}

func newMemoryHistory() *memoryHistory {
	return &memoryHistory{entries: make(map[string]memoryEntry)}
}

func (m *memoryHistory) Save(ctx context.Context, historyID string, info domain.FileInfo, rows []domain.DiffRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[historyID] = memoryEntry{info: info, rows: rows}
	return nil
}

func (m *memoryHistory) Page(ctx context.Context, historyID string, page, size int, filter domain.CategorySet) (domain.HistoryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[historyID]
	if !ok {
		return domain.HistoryResult{}, &domain.NotFoundError{Resource: "history", ID: historyID}
	}
	var summary domain.Summary
	for _, r := range entry.rows {
		summary.Add(r.Category)
	}
	return domain.HistoryResult{
		Rows:     pageRows(entry.rows, page, size, filter),
		Summary:  summary,
		FileInfo: entry.info,
	}, nil
}

func waitJob(t *testing.T, e *Engine, jobID string) domain.JobState {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		state, err := e.JobState(jobID)
		require.NoError(t, err)
		if state.Status.Terminal() {
			return state
		}
		select {
		case <-deadline:
			t.Fatalf("job %s did not finish", jobID)
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func seededEngine(t *testing.T) (*Engine, *Directory, *memoryHistory) {
	t.Helper()
	dir := NewDirectory()
	dir.Seed("repo-1",
		User{ID: "u1", Name: "Alice", Groups: []string{"staff"}},
		User{ID: "u2", Name: "Bob"},
		User{ID: "u9", Name: "Zoe"},
	)
	history := newMemoryHistory()
	e := NewEngine(dir, history, 1)
	t.Cleanup(e.Close)
	return e, dir, history
}

func TestEngine_ValidateLifecycle(t *testing.T) {
	e, _, _ := seededEngine(t)

	file := []byte("id,name,eppn,email,group\n" +
		"u1,Alice,,,staff\n" + // unchanged
		"u2,Robert,,,\n" + // renamed
		"u3,Carol,,,\n") // new

	receipt, err := e.SubmitUpload("admin@example.org", "users.csv", "repo-1", file)
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.UploadTaskID)

	state := waitJob(t, e, receipt.JobID)
	require.Equal(t, domain.JobStatusSuccess, state.Status)

	page, err := e.ValidationPage(receipt.JobID, 0, 25, domain.NewCategorySet())
	require.NoError(t, err)
	assert.Equal(t, domain.Summary{Create: 1, Update: 1, Skip: 1}, page.Summary)
	require.Len(t, page.Rows, 3)
	require.Len(t, page.MissingUsers, 1)
	assert.Equal(t, "u9", page.MissingUsers[0].ID)
}

func TestEngine_ValidationPagingAndFilter(t *testing.T) {
	e, _, _ := seededEngine(t)

	// 6 creates against an untouched repository.
	file := []byte("id,name\nn1,A\nn2,B\nn3,C\nn4,D\nn5,E\nn6,F\n")
	receipt, err := e.SubmitUpload("admin@example.org", "users.csv", "repo-2", file)
	require.NoError(t, err)
	waitJob(t, e, receipt.JobID)

	page, err := e.ValidationPage(receipt.JobID, 1, 4, domain.NewCategorySet())
	require.NoError(t, err)
	require.Len(t, page.Rows, 2)
	assert.Equal(t, "n5", page.Rows[0].UserID)
	// The summary covers the whole job, not the page.
	assert.Equal(t, 6, page.Summary.Total())

	filtered, err := e.ValidationPage(receipt.JobID, 0, 25, domain.NewCategorySet(domain.CategorySkip))
	require.NoError(t, err)
	assert.Empty(t, filtered.Rows)
	assert.Equal(t, 6, filtered.Summary.Total())
}

func TestEngine_ValidationPageBeforeCompletion(t *testing.T) {
	e, _, _ := seededEngine(t)

	e.mu.Lock()
	e.jobs["pending-job"] = &jobRecord{kind: domain.JobKindValidate, state: domain.JobState{Status: domain.JobStatusPending}}
	e.validations["pending-job"] = &validation{}
	e.mu.Unlock()

	_, err := e.ValidationPage("pending-job", 0, 25, domain.NewCategorySet())
	assert.ErrorIs(t, err, ErrJobNotReady)
}

func TestEngine_XlsxUploadFailsValidation(t *testing.T) {
	e, _, _ := seededEngine(t)

	receipt, err := e.SubmitUpload("admin@example.org", "book.xlsx", "repo-1", []byte{0x50, 0x4b})
	require.NoError(t, err)

	state := waitJob(t, e, receipt.JobID)
	assert.Equal(t, domain.JobStatusFailure, state.Status)
	assert.NotEmpty(t, state.Error)
}

func TestEngine_ExecuteAppliesAndPersists(t *testing.T) {
	e, dir, history := seededEngine(t)

	file := []byte("id,name\nu1,Alice2\nu2,Bob\nnew1,Nina\n")
	receipt, err := e.SubmitUpload("admin@example.org", "users.csv", "repo-1", file)
	require.NoError(t, err)
	waitJob(t, e, receipt.JobID)

	exec, err := e.SubmitExecute(receipt.JobID, receipt.UploadTaskID, []string{"u9"})
	require.NoError(t, err)
	require.NotEmpty(t, exec.HistoryID)

	state := waitJob(t, e, exec.ExecuteJobID)
	require.Equal(t, domain.JobStatusSuccess, state.Status)

	// Directory mutated: update applied, create applied, u9 gone.
	u1, ok := dir.Lookup("repo-1", "u1")
	require.True(t, ok)
	assert.Equal(t, "Alice2", u1.Name)
	_, ok = dir.Lookup("repo-1", "new1")
	assert.True(t, ok)
	_, ok = dir.Lookup("repo-1", "u9")
	assert.False(t, ok)

	// Result persisted with a delete row for the selected missing user.
	result, err := history.Page(context.Background(), exec.HistoryID, 0, 25, domain.NewCategorySet())
	require.NoError(t, err)
	assert.Equal(t, domain.Summary{Create: 1, Update: 1, Skip: 1, Delete: 1}, result.Summary)
	assert.Equal(t, "users.csv", result.FileInfo.FileName)
	assert.Equal(t, "admin@example.org", result.FileInfo.Operator)
	assert.False(t, result.FileInfo.FinishedAt.Before(result.FileInfo.StartedAt))
}

func TestEngine_ExecuteGuards(t *testing.T) {
	e, _, _ := seededEngine(t)

	file := []byte("id,name\nu1,Alice\n")
	receipt, err := e.SubmitUpload("admin@example.org", "users.csv", "repo-1", file)
	require.NoError(t, err)
	waitJob(t, e, receipt.JobID)

	t.Run("wrong upload task id", func(t *testing.T) {
		_, err := e.SubmitExecute(receipt.JobID, "other-task", nil)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("unknown job", func(t *testing.T) {
		_, err := e.SubmitExecute("nope", receipt.UploadTaskID, nil)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("deletion target must be a missing user", func(t *testing.T) {
		_, err := e.SubmitExecute(receipt.JobID, receipt.UploadTaskID, []string{"u1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not a missing user")
	})
}

func TestEngine_CacheRefresh(t *testing.T) {
	e, _, _ := seededEngine(t)

	require.NoError(t, e.TriggerCacheRefresh([]string{"repo-1", "repo-missing"}))

	var task domain.CacheTask
	deadline := time.After(2 * time.Second)
	for !task.Finished() {
		select {
		case <-deadline:
			t.Fatal("cache refresh did not finish")
		case <-time.After(2 * time.Millisecond):
		}
		task = e.CacheTask()
	}

	require.Len(t, task.Results, 2)
	assert.Equal(t, "success", task.Results[0].Status)
	assert.Equal(t, "failed", task.Results[1].Status)
	assert.Equal(t, "E404", task.Results[1].Code)

	// A finished snapshot is cleared once observed.
	assert.Equal(t, domain.CacheTask{}, e.CacheTask())

	t.Run("requires targets", func(t *testing.T) {
		assert.Error(t, e.TriggerCacheRefresh(nil))
	})
}
