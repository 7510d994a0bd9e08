package models

import "testing"

func TestTaskStatus_Valid(t *testing.T) {
	tests := []struct {
		name   string
		status TaskStatus
		want   bool
	}{
		{"queued is valid", TaskStatusQueued, true},
		{"active is valid", TaskStatusActive, true},
		{"completed is valid", TaskStatusCompleted, true},
		{"failed is valid", TaskStatusFailed, true},
		{"empty string is invalid", TaskStatus(""), false},
		{"unknown status is invalid", TaskStatus("paused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.Valid(); got != tt.want {
				t.Errorf("TaskStatus(%q).Valid() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestTaskStatus_Terminal(t *testing.T) {
	tests := []struct {
		status TaskStatus
		want   bool
	}{
		{TaskStatusQueued, false},
		{TaskStatusActive, false},
		{TaskStatusCompleted, true},
		{TaskStatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Terminal(); got != tt.want {
				t.Errorf("TaskStatus(%q).Terminal() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestAgentStatus_Terminal(t *testing.T) {
	tests := []struct {
		status AgentStatus
		want   bool
	}{
		{AgentStatusRunning, false},
		{AgentStatusRetrying, false},
		{AgentStatusCompleted, true},
		{AgentStatusFailed, true},
		{AgentStatusTerminated, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Terminal(); got != tt.want {
				t.Errorf("AgentStatus(%q).Terminal() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestPlan_Task(t *testing.T) {
	plan := &Plan{
		Phases: []*Phase{
			{Index: 0, Tasks: []*PlanTask{{ID: "t1"}, {ID: "t2"}}},
			{Index: 1, Tasks: []*PlanTask{{ID: "t3"}}},
		},
	}

	if got := plan.Task("t3"); got == nil || got.ID != "t3" {
		t.Errorf("Task(t3) = %v, want task t3", got)
	}
	if got := plan.Task("missing"); got != nil {
		t.Errorf("Task(missing) = %v, want nil", got)
	}
}
