// Package models defines the shared domain types for overseer.
package models

import "time"

// TaskStatus represents the current state of a queued task.
type TaskStatus string

const (
	// TaskStatusQueued indicates the task is waiting for a free slot.
	TaskStatusQueued TaskStatus = "queued"
	// TaskStatusActive indicates the task has an agent working on it.
	TaskStatusActive TaskStatus = "active"
	// TaskStatusCompleted indicates the task finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed.
	TaskStatusFailed TaskStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusQueued, TaskStatusActive, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is completed or failed.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Task represents one unit of work admitted to the task queue.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Description is the natural-language description of the work.
	Description string `json:"description"`
	// Project identifies the project directory the task runs against.
	Project string `json:"project"`
	// Priority orders tasks at insertion time; higher runs earlier.
	Priority int `json:"priority"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// AgentID is the agent currently executing the task, if active.
	AgentID string `json:"agent_id,omitempty"`
	// BriefRef points at the brief handed to the worker process.
	BriefRef string `json:"brief_ref,omitempty"`
	// CreatedAt is when the task was admitted.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is when the task reached a terminal state, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// FailureReason holds the truncated failure text for failed tasks.
	FailureReason string `json:"failure_reason,omitempty"`
}
