// Package diffstore maintains a paged, filterable view over a categorized
// result set whose aggregate counts always describe the whole job.
package diffstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/domain"
	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/metrics"
)

// PageFetcher retrieves one page of rows together with the whole-job
// summary. The page index is 0-based.
type PageFetcher func(ctx context.Context, page, size int, filter domain.CategorySet) (domain.ResultPage, error)

// Store holds the page of rows currently on display. It owns only that
// page; each refresh discards it and fetches anew. On a fetch failure the
// last successfully fetched rows and summary are kept so a transient error
// never blanks a rendered page.
type Store struct {
	source   string
	fetch    PageFetcher
	pageSize int

	mu           sync.Mutex
	page         int
	filter       domain.CategorySet
	rows         []domain.DiffRow
	summary      domain.Summary
	missingUsers []domain.OrphanUser
	loaded       bool
	gen          uint64 // bumped by every page/filter change and refresh
}

// New creates a store over the given fetcher. source labels metrics only.
func New(source string, fetch PageFetcher, pageSize int) *Store {
	if pageSize < 1 {
		pageSize = 25
	}
	return &Store{
		source:   source,
		fetch:    fetch,
		pageSize: pageSize,
		filter:   domain.NewCategorySet(),
	}
}

// Refresh fetches the current page/filter combination and applies it.
//
// If the page or filter changes while the fetch is in flight, the stale
// result is discarded: only the most recently requested combination may be
// rendered (last writer wins).
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	page := s.page
	filter := s.filter.Clone()
	s.mu.Unlock()

	timer := metrics.NewTimer()
	result, err := s.fetch(ctx, page, s.pageSize, filter)
	if err != nil {
		metrics.ObservePageFetch(s.source, "error", timer.Seconds())
		return fmt.Errorf("fetch page %d: %w", page, err)
	}
	metrics.ObservePageFetch(s.source, "success", timer.Seconds())

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		// A newer page/filter was requested meanwhile.
		return nil
	}

	rows := make([]domain.DiffRow, len(result.Rows))
	for i, row := range result.Rows {
		row.Row = page*s.pageSize + i + 1
		rows[i] = row
	}
	s.rows = rows
	s.summary = result.Summary
	if result.MissingUsers != nil {
		s.missingUsers = result.MissingUsers
	}
	s.loaded = true
	return nil
}

// SetPage moves to the given 0-based page index. Negative values clamp to 0.
func (s *Store) SetPage(page int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if page < 0 {
		page = 0
	}
	if page != s.page {
		s.page = page
		s.gen++
	}
}

// NextPage advances one page.
func (s *Store) NextPage() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.page++
	s.gen++
}

// PrevPage moves back one page, stopping at the first.
func (s *Store) PrevPage() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page > 0 {
		s.page--
		s.gen++
	}
}

// ToggleCategory flips one category in or out of the filter and resets the
// page index to the first page. Showing page N of an old filter after the
// filter changed is never correct.
func (s *Store) ToggleCategory(c domain.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.filter.Has(c) {
		delete(s.filter, c)
	} else {
		s.filter[c] = struct{}{}
	}
	s.page = 0
	s.gen++
}

// SetFilter replaces the whole filter and resets the page index.
func (s *Store) SetFilter(filter domain.CategorySet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = filter.Clone()
	s.page = 0
	s.gen++
}

// Rows returns the rows of the most recently applied page, display row
// numbers assigned.
func (s *Store) Rows() []domain.DiffRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.DiffRow, len(s.rows))
	copy(out, s.rows)
	return out
}

// Summary returns the whole-job category counts, regardless of the current
// page or filter.
func (s *Store) Summary() domain.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary
}

// MissingUsers returns the orphan users reported by the job.
func (s *Store) MissingUsers() []domain.OrphanUser {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.OrphanUser, len(s.missingUsers))
	copy(out, s.missingUsers)
	return out
}

// PageIndex returns the current 0-based page index.
func (s *Store) PageIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// PageSize returns the configured page size.
func (s *Store) PageSize() int { return s.pageSize }

// Filter returns a copy of the current category filter.
func (s *Store) Filter() domain.CategorySet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter.Clone()
}

// Loaded reports whether at least one page has been applied.
func (s *Store) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}
