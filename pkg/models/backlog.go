package models

import "time"

// BacklogStatus represents the current state of a backlog item.
type BacklogStatus string

const (
	// BacklogStatusPending indicates the item is waiting to be dispatched.
	BacklogStatusPending BacklogStatus = "pending"
	// BacklogStatusRunning indicates an agent is working on the item.
	BacklogStatusRunning BacklogStatus = "running"
	// BacklogStatusCompleted indicates the item finished successfully.
	BacklogStatusCompleted BacklogStatus = "completed"
	// BacklogStatusFailed indicates the item failed.
	BacklogStatusFailed BacklogStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s BacklogStatus) Valid() bool {
	switch s {
	case BacklogStatusPending, BacklogStatusRunning, BacklogStatusCompleted, BacklogStatusFailed:
		return true
	default:
		return false
	}
}

// BacklogItem is one entry in the continuous backlog.
type BacklogItem struct {
	// ID is the unique identifier for this item.
	ID string `json:"id"`
	// Description is the natural-language description of the work.
	Description string `json:"description"`
	// Project identifies the project the item runs against.
	Project string `json:"project"`
	// Priority orders pending items; higher dispatches earlier.
	Priority int `json:"priority"`
	// Status is the current state of the item.
	Status BacklogStatus `json:"status"`
	// AgentID links a running item to its supervised agent.
	AgentID string `json:"agent_id,omitempty"`
	// Result holds the completion summary or failure reason.
	Result string `json:"result,omitempty"`
	// CreatedAt is when the item was added.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is when the item reached a terminal state, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
