// Package selection tracks which orphan users are marked for deletion.
package selection

import (
	"sort"
	"sync"

	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/domain"
)

// Selector is a pure in-memory selection set over the current orphan-user
// collection. Invariant: every selected id belongs to the collection.
// Replacing the collection clears the selection; the owner decides when
// that happens.
type Selector struct {
	mu       sync.Mutex
	users    []domain.OrphanUser
	ids      map[string]bool
	selected map[string]bool
}

// New creates an empty selector.
func New() *Selector {
	return &Selector{
		ids:      make(map[string]bool),
		selected: make(map[string]bool),
	}
}

// SetUsers replaces the orphan-user collection and clears the selection.
func (s *Selector) SetUsers(users []domain.OrphanUser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = make([]domain.OrphanUser, len(users))
	copy(s.users, users)
	s.ids = make(map[string]bool, len(users))
	for _, u := range users {
		s.ids[u.ID] = true
	}
	s.selected = make(map[string]bool)
}

// Toggle flips membership of exactly one identifier. Unknown ids are
// ignored, preserving the subset invariant.
func (s *Selector) Toggle(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ids[userID] {
		return
	}
	if s.selected[userID] {
		delete(s.selected, userID)
	} else {
		s.selected[userID] = true
	}
}

// SelectAll marks every user in the current collection.
func (s *Selector) SelectAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.ids {
		s.selected[id] = true
	}
}

// DeselectAll clears the selection without touching the collection.
func (s *Selector) DeselectAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = make(map[string]bool)
}

// Selected returns the selected identifiers in stable order.
func (s *Selector) Selected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.selected))
	for id := range s.selected {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// IsSelected reports whether one identifier is selected.
func (s *Selector) IsSelected(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected[userID]
}

// Users returns the current orphan-user collection.
func (s *Selector) Users() []domain.OrphanUser {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.OrphanUser, len(s.users))
	copy(out, s.users)
	return out
}

// Count returns the number of selected users.
func (s *Selector) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.selected)
}
