package models

import "time"

// AgentStatus represents the current state of a supervised worker process.
type AgentStatus string

const (
	// AgentStatusRunning indicates the process is still executing.
	AgentStatusRunning AgentStatus = "running"
	// AgentStatusCompleted indicates the process exited successfully with output.
	AgentStatusCompleted AgentStatus = "completed"
	// AgentStatusFailed indicates the process exited non-zero, produced no
	// output, or exceeded its timeout with no retries left.
	AgentStatusFailed AgentStatus = "failed"
	// AgentStatusRetrying indicates the process failed and a replacement was
	// spawned under a new agent ID.
	AgentStatusRetrying AgentStatus = "retrying"
	// AgentStatusTerminated indicates the process was killed on request.
	AgentStatusTerminated AgentStatus = "terminated"
)

// Valid returns true if the status is a known value.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentStatusRunning, AgentStatusCompleted, AgentStatusFailed,
		AgentStatusRetrying, AgentStatusTerminated:
		return true
	default:
		return false
	}
}

// Terminal returns true if the agent has permanently stopped.
func (s AgentStatus) Terminal() bool {
	return s == AgentStatusCompleted || s == AgentStatusFailed || s == AgentStatusTerminated
}

// AgentCheck is the result of polling a supervised agent.
type AgentCheck struct {
	// Status is the agent's state at poll time.
	Status AgentStatus
	// NewAgentID is set when Status is AgentStatusRetrying: the replacement
	// agent's ID. Callers must re-point their task-to-agent mappings to it.
	NewAgentID string
	// Reason holds the failure text for failed checks.
	Reason string
}

// AgentResult holds the mined outcome of a finished agent run.
type AgentResult struct {
	// Summary is the extracted completion summary.
	Summary string `json:"summary"`
	// ModifiedFiles lists files the worker announced editing.
	ModifiedFiles []string `json:"modified_files,omitempty"`
	// Success is true when the run completed cleanly.
	Success bool `json:"success"`
	// Duration is how long the run took, spawn to exit.
	Duration time.Duration `json:"duration"`
}
