package cacherefresh_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/cacherefresh"
	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/domain"
	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/poller"
)

type fakeAPI struct {
	triggered []string
	snapshots []domain.CacheTask
	calls     int
}

func (f *fakeAPI) TriggerCacheRefresh(ctx context.Context, fqdns []string) error {
	f.triggered = fqdns
	return nil
}

func (f *fakeAPI) GetCacheTask(ctx context.Context) (domain.CacheTask, error) {
	i := f.calls
	if i >= len(f.snapshots) {
		i = len(f.snapshots) - 1
	}
	f.calls++
	return f.snapshots[i], nil
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

func (f *fakeAPI) GetExecutionPage(ctx context.Context, historyID string, page, size int, filter domain.CategorySet) (domain.HistoryResult, error) {
	return domain.HistoryResult{}, nil
}

func TestRefresher_TriggerAndAwait(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{
		snapshots: []domain.CacheTask{
			{Current: "repo-a.example.org", Done: 0, Total: 2},
			{Current: "repo-b.example.org", Done: 1, Total: 2},
			{
				Done:  2,
				Total: 2,
				Results: []domain.CacheResult{
					{FQDN: "repo-a.example.org", Status: "success"},
					{FQDN: "repo-b.example.org", Status: "failed", Code: "E503"},
				},
			},
		},
	}
	r := cacherefresh.New(api, poller.New(time.Millisecond, 10))

	require.NoError(t, r.Trigger(ctx, []string{"repo-a.example.org", "repo-b.example.org"}))
	assert.Equal(t, []string{"repo-a.example.org", "repo-b.example.org"}, api.triggered)

	task, err := r.Await(ctx)
	require.NoError(t, err)
	assert.True(t, task.Finished())
	assert.Equal(t, 3, api.calls)
	require.Len(t, task.Results, 2)
	assert.Equal(t, "failed", task.Results[1].Status)
}

func TestRefresher_AwaitTimesOut(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{
		// A snapshot that never finishes, e.g. a stalled worker.
		snapshots: []domain.CacheTask{{Current: "repo-a.example.org", Done: 0, Total: 3}},
	}
	r := cacherefresh.New(api, poller.New(time.Millisecond, 3))

	task, err := r.Await(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPollTimeout)
	assert.Equal(t, 3, api.calls)
	// The last observed progress is still available for display.
	assert.Equal(t, 3, task.Total)
}

func TestRefresher_TriggerRequiresTargets(t *testing.T) {
	r := cacherefresh.New(&fakeAPI{snapshots: []domain.CacheTask{{}}}, poller.New(time.Millisecond, 3))
	err := r.Trigger(context.Background(), nil)
	require.Error(t, err)
}

func TestRefresher_EmptySnapshotIsNotFinished(t *testing.T) {
	// An empty task hash (total 0) means the refresh has not started yet;
	// it must not be mistaken for completion.
	assert.False(t, domain.CacheTask{}.Finished())
	assert.False(t, domain.CacheTask{Done: 0, Total: 2}.Finished())
	assert.True(t, domain.CacheTask{Done: 2, Total: 2}.Finished())
}
