package history_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/domain"
	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/history"
)

// fakeAPI serves a fixed 23-row execution result with server-side paging
// and category filtering.
type fakeAPI struct {
	rows     []domain.DiffRow
	fileInfo domain.FileInfo
	known    string
}

func (f *fakeAPI) GetExecutionPage(ctx context.Context, historyID string, page, size int, filter domain.CategorySet) (domain.HistoryResult, error) {
	if historyID != f.known {
		return domain.HistoryResult{}, &domain.NotFoundError{Resource: "history", ID: historyID}
	}

	var summary domain.Summary
	var filtered []domain.DiffRow
	for _, row := range f.rows {
		summary.Add(row.Category)
		if filter.IsEmpty() || filter.Has(row.Category) {
			filtered = append(filtered, row)
		}
	}

	start := page * size
	if start > len(filtered) {
		start = len(filtered)
	}
	end := start + size
	if end > len(filtered) {
		end = len(filtered)
	}
	return domain.HistoryResult{
		Rows:     filtered[start:end],
		Summary:  summary,
		FileInfo: f.fileInfo,
	}, nil
}

func (f *fakeAPI) SubmitUpload(ctx context.Context, file io.Reader, fileName, repositoryID string) (domain.UploadReceipt, error) {
	return domain.UploadReceipt{}, nil
}

func (f *fakeAPI) GetJobStatus(ctx context.Context, jobID string) (domain.JobState, error) {
	return domain.JobState{}, nil
}

func (f *fakeAPI) GetValidationPage(ctx context.Context, jobID string, page, size int, filter domain.CategorySet) (domain.ResultPage, error) {
	return domain.ResultPage{}, nil
}

func (f *fakeAPI) SubmitExecute(ctx context.Context, jobID, uploadTaskID, repositoryID string, deleteUserIDs []string) (domain.ExecuteReceipt, error) {
	return domain.ExecuteReceipt{}, nil
}

func (f *fakeAPI) TriggerCacheRefresh(ctx context.Context, fqdns []string) error { return nil }

func (f *fakeAPI) GetCacheTask(ctx context.Context) (domain.CacheTask, error) {
	return domain.CacheTask{}, nil
}

func newFakeAPI() *fakeAPI {
	rows := make([]domain.DiffRow, 23)
	for i := range rows {
		cat := domain.CategoryCreate
		if i%5 == 0 {
			cat = domain.CategorySkip
		}
		rows[i] = domain.DiffRow{UserID: "u", Category: cat}
	}
	return &fakeAPI{
		rows:  rows,
		known: "hist-1",
		fileInfo: domain.FileInfo{
			FileName:   "users.csv",
			Operator:   "admin@example.org",
			StartedAt:  time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
			FinishedAt: time.Date(2025, 6, 1, 9, 2, 30, 0, time.UTC),
		},
	}
}

func TestRepository_FetchResult(t *testing.T) {
	ctx := context.Background()
	repo := history.NewRepository(newFakeAPI(), 10)

	t.Run("pages carry contiguous row numbers", func(t *testing.T) {
		page0, err := repo.FetchResult(ctx, "hist-1", 0, domain.NewCategorySet())
		require.NoError(t, err)
		require.Len(t, page0.Rows, 10)
		assert.Equal(t, 1, page0.Rows[0].Row)
		assert.Equal(t, 10, page0.Rows[9].Row)

		page1, err := repo.FetchResult(ctx, "hist-1", 1, domain.NewCategorySet())
		require.NoError(t, err)
		require.Len(t, page1.Rows, 10)
		assert.Equal(t, 11, page1.Rows[0].Row)
		assert.Equal(t, 20, page1.Rows[9].Row)

		page2, err := repo.FetchResult(ctx, "hist-1", 2, domain.NewCategorySet())
		require.NoError(t, err)
		assert.Len(t, page2.Rows, 3)
	})

	t.Run("summary stays whole-job under filters", func(t *testing.T) {
		result, err := repo.FetchResult(ctx, "hist-1", 0, domain.NewCategorySet(domain.CategorySkip))
		require.NoError(t, err)
		assert.Len(t, result.Rows, 5)
		assert.Equal(t, 23, result.Summary.Total())
	})

	t.Run("file metadata is returned on every page", func(t *testing.T) {
		result, err := repo.FetchResult(ctx, "hist-1", 1, domain.NewCategorySet())
		require.NoError(t, err)
		assert.Equal(t, "users.csv", result.FileInfo.FileName)
		assert.Equal(t, "admin@example.org", result.FileInfo.Operator)
		assert.True(t, result.FileInfo.FinishedAt.After(result.FileInfo.StartedAt))
	})

	t.Run("unknown id yields not found", func(t *testing.T) {
		_, err := repo.FetchResult(ctx, "no-such-history", 0, domain.NewCategorySet())
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestRepository_Open(t *testing.T) {
	ctx := context.Background()
	repo := history.NewRepository(newFakeAPI(), 10)

	store := repo.Open("hist-1")
	require.NoError(t, store.Refresh(ctx))
	assert.Len(t, store.Rows(), 10)
	assert.Equal(t, 23, store.Summary().Total())

	store.NextPage()
	require.NoError(t, store.Refresh(ctx))
	assert.Equal(t, 11, store.Rows()[0].Row)
}
