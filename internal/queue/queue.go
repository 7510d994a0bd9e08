// Package queue implements the admission-controlled task queue.
//
// Tasks are admitted immediately to the active set while capacity remains and
// FIFO-queued otherwise. Every mutation ends in an atomic snapshot write, and
// a restart reclassifies any active task back to queued: its supervising
// process is gone, so no task is ever reported active across a restart.
package queue

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

// ErrTaskNotFound indicates no queued or active task matches the lookup.
var ErrTaskNotFound = errors.New("task not found")

// DefaultArchiveCap bounds the terminal-task archive when none is configured.
const DefaultArchiveCap = 100

// snapshot is the persisted form of the queue.
type snapshot struct {
	Pending []*models.Task `json:"pending"`
	Active  []*models.Task `json:"active"`
	Archive []*models.Task `json:"archive"`
}

// Summary reports queue counts and live task lists for observability.
type Summary struct {
	Pending  int            `json:"pending"`
	Active   int            `json:"active"`
	Archived int            `json:"archived"`
	Tasks    []*models.Task `json:"tasks"`
}

// Queue is the admission-controlled FIFO task queue.
type Queue struct {
	mu            sync.Mutex
	path          string
	maxConcurrent int
	archiveCap    int

	pending []*models.Task
	active  []*models.Task
	archive []*models.Task
}

// New creates a Queue persisted at path. An existing snapshot is loaded and
// any task found active is moved to the front of the pending list as queued.
func New(path string, maxConcurrent, archiveCap int) (*Queue, error) {
	if maxConcurrent < 1 {
		return nil, fmt.Errorf("maxConcurrent must be at least 1, got %d", maxConcurrent)
	}
	if archiveCap <= 0 {
		archiveCap = DefaultArchiveCap
	}

	q := &Queue{path: path, maxConcurrent: maxConcurrent, archiveCap: archiveCap}

	var snap snapshot
	found, err := store.Load(path, &snap)
	if err != nil {
		return nil, err
	}
	if found {
		q.pending = snap.Pending
		q.archive = snap.Archive
		// Active tasks cannot survive a restart; their supervising
		// processes are gone. Requeue them at the head.
		for i := len(snap.Active) - 1; i >= 0; i-- {
			t := snap.Active[i]
			t.Status = models.TaskStatusQueued
			t.AgentID = ""
			q.pending = append([]*models.Task{t}, q.pending...)
		}
		if len(snap.Active) > 0 {
			log.Printf("[queue] requeued %d task(s) left active by a previous run", len(snap.Active))
			if err := q.persist(); err != nil {
				return nil, err
			}
		}
	}
	return q, nil
}

// Admit accepts a task unconditionally. It becomes active immediately when a
// slot is free and is appended to the pending queue otherwise. The pending
// queue has no upper bound: backlog growth is preferred over rejection.
func (q *Queue) Admit(description, project string, priority int) (*models.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	task := &models.Task{
		ID:          uuid.New().String()[:8],
		Description: description,
		Project:     project,
		Priority:    priority,
		Status:      models.TaskStatusQueued,
		CreatedAt:   time.Now(),
	}

	if len(q.active) < q.maxConcurrent {
		task.Status = models.TaskStatusActive
		q.active = append(q.active, task)
	} else {
		q.pending = append(q.pending, task)
	}

	if err := q.persist(); err != nil {
		return nil, err
	}
	return task, nil
}

// Attach links an active task to the agent executing it.
func (q *Queue) Attach(taskID, agentID, briefRef string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, t := range q.active {
		if t.ID == taskID {
			t.AgentID = agentID
			t.BriefRef = briefRef
			return q.persist()
		}
	}
	return fmt.Errorf("attach %s: %w", taskID, ErrTaskNotFound)
}

// Complete archives the active task linked to agentID as completed and
// promotes the pending head, returning the promoted task if there is one.
func (q *Queue) Complete(agentID string) (*models.Task, error) {
	return q.finish(agentID, models.TaskStatusCompleted, "")
}

// Fail archives the active task linked to agentID as failed and promotes the
// pending head, returning the promoted task if there is one.
func (q *Queue) Fail(agentID, reason string) (*models.Task, error) {
	return q.finish(agentID, models.TaskStatusFailed, reason)
}

// FailTask archives the active task by its own ID rather than its agent ID.
// Used when a task never got as far as a spawned agent.
func (q *Queue) FailTask(taskID, reason string) (*models.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, t := range q.active {
		if t.ID == taskID {
			return q.finishLocked(i, models.TaskStatusFailed, reason)
		}
	}
	return nil, fmt.Errorf("fail task %s: %w", taskID, ErrTaskNotFound)
}

func (q *Queue) finish(agentID string, status models.TaskStatus, reason string) (*models.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := -1
	for i, t := range q.active {
		if t.AgentID == agentID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("finish agent %s: %w", agentID, ErrTaskNotFound)
	}
	return q.finishLocked(idx, status, reason)
}

// finishLocked archives q.active[idx] and promotes the pending head.
// Callers must hold q.mu.
func (q *Queue) finishLocked(idx int, status models.TaskStatus, reason string) (*models.Task, error) {
	task := q.active[idx]
	q.active = append(q.active[:idx], q.active[idx+1:]...)

	now := time.Now()
	task.Status = status
	task.CompletedAt = &now
	task.FailureReason = truncate(reason, 500)
	q.archive = append(q.archive, task)
	if len(q.archive) > q.archiveCap {
		q.archive = q.archive[len(q.archive)-q.archiveCap:]
	}

	// FIFO promotion: priority is honored only at insertion time by callers.
	var promoted *models.Task
	if len(q.pending) > 0 {
		promoted = q.pending[0]
		q.pending = q.pending[1:]
		promoted.Status = models.TaskStatusActive
		q.active = append(q.active, promoted)
	}

	if err := q.persist(); err != nil {
		return nil, err
	}
	return promoted, nil
}

// RemapAgent re-points the active task tracking oldID at newID. Supervisor
// retries change agent identity, so callers must follow the indirection.
func (q *Queue) RemapAgent(oldID, newID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, t := range q.active {
		if t.AgentID == oldID {
			t.AgentID = newID
			if err := q.persist(); err != nil {
				log.Printf("[queue] warning: persist after remap: %v", err)
			}
			return
		}
	}
}

// TaskByAgent returns the active task linked to agentID, or nil.
func (q *Queue) TaskByAgent(agentID string) *models.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, t := range q.active {
		if t.AgentID == agentID {
			return t
		}
	}
	return nil
}

// ActiveProjects returns the set of projects represented among active and
// pending tasks. Feeders use this to keep one running task per project.
func (q *Queue) ActiveProjects() map[string]bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make(map[string]bool)
	for _, t := range q.active {
		out[t.Project] = true
	}
	for _, t := range q.pending {
		out[t.Project] = true
	}
	return out
}

// StatusSummary returns counts and the live task lists.
func (q *Queue) StatusSummary() Summary {
	q.mu.Lock()
	defer q.mu.Unlock()

	tasks := make([]*models.Task, 0, len(q.active)+len(q.pending))
	tasks = append(tasks, q.active...)
	tasks = append(tasks, q.pending...)
	return Summary{
		Pending:  len(q.pending),
		Active:   len(q.active),
		Archived: len(q.archive),
		Tasks:    tasks,
	}
}

// Archived returns the terminal-task archive, oldest first.
func (q *Queue) Archived() []*models.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*models.Task, len(q.archive))
	copy(out, q.archive)
	return out
}

// persist writes the snapshot. Callers must hold q.mu.
func (q *Queue) persist() error {
	snap := snapshot{Pending: q.pending, Active: q.active, Archive: q.archive}
	if snap.Pending == nil {
		snap.Pending = []*models.Task{}
	}
	if snap.Active == nil {
		snap.Active = []*models.Task{}
	}
	if snap.Archive == nil {
		snap.Archive = []*models.Task{}
	}
	return store.Save(q.path, snap)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
