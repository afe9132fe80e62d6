// Package history retrieves persisted sync results by their durable
// identifier, independent of any pipeline's lifetime.
package history

import (
	"context"
	"fmt"

	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/client"
	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/diffstore"
	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/domain"
)

// Repository fetches pages of a completed execution's result set. Paging
// and filtering behave exactly like the live diff view; the records
// themselves are immutable.
type Repository struct {
	api      client.DirectoryAPI
	pageSize int
}

// NewRepository creates a repository with the given page size.
func NewRepository(api client.DirectoryAPI, pageSize int) *Repository {
	if pageSize < 1 {
		pageSize = 25
	}
	return &Repository{api: api, pageSize: pageSize}
}

// FetchResult retrieves one page of the result identified by historyID,
// with display row numbers assigned. An unknown or expired identifier
// yields an error matching domain.ErrNotFound.
func (r *Repository) FetchResult(ctx context.Context, historyID string, page int, filter domain.CategorySet) (domain.HistoryResult, error) {
	if page < 0 {
		page = 0
	}
	result, err := r.api.GetExecutionPage(ctx, historyID, page, r.pageSize, filter)
	if err != nil {
		return domain.HistoryResult{}, fmt.Errorf("fetch history result: %w", err)
	}
	for i := range result.Rows {
		result.Rows[i].Row = page*r.pageSize + i + 1
	}
	return result, nil
}

// Open returns a store over the persisted result for interactive paging and
// filtering.
func (r *Repository) Open(historyID string) *diffstore.Store {
	fetch := func(ctx context.Context, page, size int, filter domain.CategorySet) (domain.ResultPage, error) {
		result, err := r.api.GetExecutionPage(ctx, historyID, page, size, filter)
		if err != nil {
			return domain.ResultPage{}, err
		}
		return domain.ResultPage{Rows: result.Rows, Summary: result.Summary}, nil
	}
	return diffstore.New("history", fetch, r.pageSize)
}

// PageSize returns the configured page size.
func (r *Repository) PageSize() int { return r.pageSize }
