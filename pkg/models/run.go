package models

import "time"

// RunRecord is one entry in the run index: a single agent run from spawn to
// completion or failure.
type RunRecord struct {
	// AgentID identifies the agent that performed the run.
	AgentID string `json:"agent_id"`
	// Description is the task description the agent worked on.
	Description string `json:"description"`
	// Project identifies the project the run executed against.
	Project string `json:"project"`
	// Status is the terminal agent status of the run.
	Status AgentStatus `json:"status"`
	// StartedAt is when the agent was spawned.
	StartedAt time.Time `json:"started_at"`
	// FinishedAt is when the run reached a terminal state.
	FinishedAt time.Time `json:"finished_at"`
	// DurationSeconds is the run length in whole seconds.
	DurationSeconds int64 `json:"duration_seconds"`
	// Summary is the mined output summary.
	Summary string `json:"summary,omitempty"`
	// ModifiedFiles lists files the worker announced editing.
	ModifiedFiles []string `json:"modified_files,omitempty"`
}
