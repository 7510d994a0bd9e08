// Package runindex keeps an append-only, size-bounded record of agent runs.
package runindex

import (
	"strings"
	"sync"

	"github.com/opspilot/overseer/internal/store"
	"github.com/opspilot/overseer/pkg/models"
)

// DefaultMaxEntries is the number of run records retained on disk.
const DefaultMaxEntries = 200

// Index records every agent run and truncates to the most recent entries on
// each write. Records are ordered oldest first.
type Index struct {
	mu      sync.RWMutex
	path    string
	max     int
	entries []models.RunRecord
}

// New creates an Index persisted at path, loading any existing snapshot.
// A max of zero or less uses DefaultMaxEntries.
func New(path string, max int) (*Index, error) {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	idx := &Index{path: path, max: max}
	if _, err := store.Load(path, &idx.entries); err != nil {
		return nil, err
	}
	if len(idx.entries) > max {
		idx.entries = idx.entries[len(idx.entries)-max:]
	}
	return idx, nil
}

// Append adds a record and rewrites the snapshot, dropping the oldest
// entries beyond the retention bound.
func (i *Index) Append(rec models.RunRecord) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.entries = append(i.entries, rec)
	if len(i.entries) > i.max {
		i.entries = i.entries[len(i.entries)-i.max:]
	}
	return store.Save(i.path, i.entries)
}

// Recent returns up to n records, newest first.
func (i *Index) Recent(n int) []models.RunRecord {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if n <= 0 || n > len(i.entries) {
		n = len(i.entries)
	}
	out := make([]models.RunRecord, 0, n)
	for j := len(i.entries) - 1; j >= len(i.entries)-n; j-- {
		out = append(out, i.entries[j])
	}
	return out
}

// Search returns records whose description, project or summary contains the
// query, case-insensitively, newest first.
func (i *Index) Search(query string) []models.RunRecord {
	i.mu.RLock()
	defer i.mu.RUnlock()

	q := strings.ToLower(query)
	var out []models.RunRecord
	for j := len(i.entries) - 1; j >= 0; j-- {
		e := i.entries[j]
		if strings.Contains(strings.ToLower(e.Description), q) ||
			strings.Contains(strings.ToLower(e.Project), q) ||
			strings.Contains(strings.ToLower(e.Summary), q) {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of retained records.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}
