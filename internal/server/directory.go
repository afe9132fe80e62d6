// Package server implements an in-memory reference implementation of the
// directory sync service: a Gin HTTP surface, an async validate/execute job
// engine, and a durable history store. It exists for local development and
// integration tests of the client-side pipeline.
package server

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/domain"
)

// User is one directory account as the server stores it.
type User struct {
	ID     string
	Name   string
	EPPNs  []string
	Emails []string
	Groups []string
}

// Directory is the in-memory user store, keyed by repository then user id.
type Directory struct {
	mu    sync.RWMutex
	repos map[string]map[string]User
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{repos: make(map[string]map[string]User)}
}

// Seed inserts or replaces users in a repository.
func (d *Directory) Seed(repositoryID string, users ...User) {
	d.mu.Lock()
	defer d.mu.Unlock()

	repo, ok := d.repos[repositoryID]
	if !ok {
		repo = make(map[string]User)
		d.repos[repositoryID] = repo
	}
	for _, u := range users {
		repo[u.ID] = u
	}
}

// Users returns the repository's users ordered by id.
func (d *Directory) Users(repositoryID string) []User {
	d.mu.RLock()
	defer d.mu.RUnlock()

	repo := d.repos[repositoryID]
	out := make([]User, 0, len(repo))
	for _, u := range repo {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Lookup returns one user by id.
func (d *Directory) Lookup(repositoryID, userID string) (User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.repos[repositoryID][userID]
	return u, ok
}

// snapshot copies the repository map for lock-free diffing.
func (d *Directory) snapshot(repositoryID string) map[string]User {
	d.mu.RLock()
	defer d.mu.RUnlock()

	repo := d.repos[repositoryID]
	out := make(map[string]User, len(repo))
	for id, u := range repo {
		out[id] = u
	}
	return out
}

// Apply commits a change plan: upserts then deletions. Deleting an unknown
// user is an error so a stale execute request cannot silently no-op.
func (d *Directory) Apply(repositoryID string, upserts []User, deleteIDs []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	repo, ok := d.repos[repositoryID]
	if !ok {
		repo = make(map[string]User)
		d.repos[repositoryID] = repo
	}
	for _, id := range deleteIDs {
		if _, ok := repo[id]; !ok {
			return fmt.Errorf("delete unknown user %q", id)
		}
	}
	for _, u := range upserts {
		repo[u.ID] = u
	}
	for _, id := range deleteIDs {
		delete(repo, id)
	}
	return nil
}

// diffRow renders a user as a result row for the given category.
func diffRow(u User, category domain.Category, diagnostic string) domain.DiffRow {
	return domain.DiffRow{
		UserID:     u.ID,
		Name:       u.Name,
		EPPNs:      u.EPPNs,
		Emails:     u.Emails,
		Groups:     u.Groups,
		Category:   category,
		Diagnostic: diagnostic,
	}
}
