// Package backlog implements the persistent continuous backlog: a
// priority-ordered list of tasks drained through the process supervisor as
// capacity frees up.
package backlog

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opspilot/overseer/internal/store"
	"github.com/opspilot/overseer/pkg/models"
)

// ErrItemNotFound indicates no backlog item matches the lookup.
var ErrItemNotFound = errors.New("backlog item not found")

// DefaultSessionLogCap bounds the session log when none is configured.
const DefaultSessionLogCap = 50

// Backlog owns the item list and its snapshot. Every mutation persists.
type Backlog struct {
	mu         sync.Mutex
	path       string
	items      []*models.BacklogItem
	sessionLog []string
	logCap     int
}

// New creates a Backlog persisted at path, loading any existing snapshot.
// Items left running by a previous run are reset to pending: their agents
// are gone after a restart.
func New(path string, sessionLogCap int) (*Backlog, error) {
	if sessionLogCap <= 0 {
		sessionLogCap = DefaultSessionLogCap
	}
	b := &Backlog{path: path, logCap: sessionLogCap}

	found, err := store.Load(path, &b.items)
	if err != nil {
		return nil, err
	}
	if found {
		reset := 0
		for _, item := range b.items {
			if item.Status == models.BacklogStatusRunning {
				item.Status = models.BacklogStatusPending
				item.AgentID = ""
				reset++
			}
		}
		if reset > 0 {
			log.Printf("[backlog] reset %d item(s) left running by a previous run", reset)
			if err := b.persist(); err != nil {
				return nil, err
			}
		}
	}
	return b, nil
}

// Add inserts a pending item, preserving descending-priority ordering among
// pending items: equal priorities stay oldest first.
func (b *Backlog) Add(description, project string, priority int) (*models.BacklogItem, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	item := &models.BacklogItem{
		ID:          uuid.New().String()[:8],
		Description: description,
		Project:     project,
		Priority:    priority,
		Status:      models.BacklogStatusPending,
		CreatedAt:   time.Now(),
	}

	inserted := false
	for i, existing := range b.items {
		if existing.Status == models.BacklogStatusPending && existing.Priority < priority {
			b.items = append(b.items[:i], append([]*models.BacklogItem{item}, b.items[i:]...)...)
			inserted = true
			break
		}
	}
	if !inserted {
		b.items = append(b.items, item)
	}

	if err := b.persist(); err != nil {
		return nil, err
	}
	return item, nil
}

// TakePending returns up to n pending items in dispatch order, skipping
// items whose project is in the exclude set. Items are not mutated.
func (b *Backlog) TakePending(n int, exclude map[string]bool) []*models.BacklogItem {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []*models.BacklogItem
	for _, item := range b.items {
		if len(out) >= n {
			break
		}
		if item.Status != models.BacklogStatusPending {
			continue
		}
		if exclude[item.Project] {
			continue
		}
		out = append(out, item)
	}
	return out
}

// MarkRunning links an item to its agent and persists the transition.
func (b *Backlog) MarkRunning(itemID, agentID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	item := b.find(itemID)
	if item == nil {
		return fmt.Errorf("mark running %s: %w", itemID, ErrItemNotFound)
	}
	item.Status = models.BacklogStatusRunning
	item.AgentID = agentID
	b.logf("dispatched %q as agent %s", item.Description, agentID)
	return b.persist()
}

// MarkCompleted records a successful finish for the item linked to agentID.
func (b *Backlog) MarkCompleted(agentID, result string) error {
	return b.finish(agentID, models.BacklogStatusCompleted, result)
}

// MarkFailed records a failure for the item linked to agentID.
func (b *Backlog) MarkFailed(agentID, reason string) error {
	return b.finish(agentID, models.BacklogStatusFailed, reason)
}

func (b *Backlog) finish(agentID string, status models.BacklogStatus, result string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	item := b.findByAgent(agentID)
	if item == nil {
		return fmt.Errorf("finish agent %s: %w", agentID, ErrItemNotFound)
	}
	now := time.Now()
	item.Status = status
	item.Result = result
	item.CompletedAt = &now
	b.logf("%s: %q", status, item.Description)
	return b.persist()
}

// RemapAgent re-points a running item at a replacement agent ID.
func (b *Backlog) RemapAgent(oldID, newID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if item := b.findByAgent(oldID); item != nil {
		item.AgentID = newID
		if err := b.persist(); err != nil {
			log.Printf("[backlog] warning: persist after remap: %v", err)
		}
	}
}

// ItemByAgent returns the running item linked to agentID, or nil.
func (b *Backlog) ItemByAgent(agentID string) *models.BacklogItem {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.findByAgent(agentID)
}

// RunningProjects returns the projects with a running item. Feeders use this
// to keep at most one running item per project.
func (b *Backlog) RunningProjects() map[string]bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]bool)
	for _, item := range b.items {
		if item.Status == models.BacklogStatusRunning {
			out[item.Project] = true
		}
	}
	return out
}

// Items returns a copy of the full item list.
func (b *Backlog) Items() []*models.BacklogItem {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*models.BacklogItem, len(b.items))
	copy(out, b.items)
	return out
}

// SessionLog returns the bounded dispatch/completion log.
func (b *Backlog) SessionLog() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, len(b.sessionLog))
	copy(out, b.sessionLog)
	return out
}

// find returns the item with the given ID. Callers must hold b.mu.
func (b *Backlog) find(itemID string) *models.BacklogItem {
	for _, item := range b.items {
		if item.ID == itemID {
			return item
		}
	}
	return nil
}

// findByAgent returns the item linked to agentID. Callers must hold b.mu.
func (b *Backlog) findByAgent(agentID string) *models.BacklogItem {
	for _, item := range b.items {
		if item.AgentID == agentID {
			return item
		}
	}
	return nil
}

// logf appends to the bounded session log. Callers must hold b.mu.
func (b *Backlog) logf(format string, args ...interface{}) {
	entry := time.Now().Format("15:04:05") + " " + fmt.Sprintf(format, args...)
	b.sessionLog = append(b.sessionLog, entry)
	if len(b.sessionLog) > b.logCap {
		b.sessionLog = b.sessionLog[len(b.sessionLog)-b.logCap:]
	}
}

// persist writes the snapshot. Callers must hold b.mu.
func (b *Backlog) persist() error {
	items := b.items
	if items == nil {
		items = []*models.BacklogItem{}
	}
	return store.Save(b.path, items)
}
