package models

import "time"

// PlanStatus represents the lifecycle state of a phased plan.
type PlanStatus string

const (
	// PlanStatusPlanning indicates the plan is being computed.
	PlanStatusPlanning PlanStatus = "planning"
	// PlanStatusExecuting indicates phases are running.
	PlanStatusExecuting PlanStatus = "executing"
	// PlanStatusDone indicates all phases finished.
	PlanStatusDone PlanStatus = "done"
	// PlanStatusCancelled indicates the plan was cancelled before finishing.
	PlanStatusCancelled PlanStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s PlanStatus) Valid() bool {
	switch s {
	case PlanStatusPlanning, PlanStatusExecuting, PlanStatusDone, PlanStatusCancelled:
		return true
	default:
		return false
	}
}

// PlanTaskStatus represents the state of a single task within a plan.
type PlanTaskStatus string

const (
	// PlanTaskPending indicates the task has not been spawned.
	PlanTaskPending PlanTaskStatus = "pending"
	// PlanTaskRunning indicates an agent is executing the task.
	PlanTaskRunning PlanTaskStatus = "running"
	// PlanTaskCompleted indicates the task finished successfully.
	PlanTaskCompleted PlanTaskStatus = "completed"
	// PlanTaskFailed indicates the task failed.
	PlanTaskFailed PlanTaskStatus = "failed"
)

// Terminal returns true if the task will not run again.
func (s PlanTaskStatus) Terminal() bool {
	return s == PlanTaskCompleted || s == PlanTaskFailed
}

// PlanTask is one unit of work inside a phase, with explicit file ownership.
type PlanTask struct {
	// ID is the unique identifier for this task within the plan.
	ID string `json:"id"`
	// Title is the short name of the task.
	Title string `json:"title"`
	// Brief is the task's own instructions.
	Brief string `json:"brief"`
	// FilesOwned lists the paths this task may modify. Within a phase no two
	// tasks' owned sets may intersect, and ownership is unique plan-wide.
	FilesOwned []string `json:"files_owned"`
	// FilesRead lists paths the task may read but not modify.
	FilesRead []string `json:"files_read,omitempty"`
	// AcceptanceCriteria lists the conditions that define done for this task.
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
	// Status is the current state of the task.
	Status PlanTaskStatus `json:"status"`
	// AgentID links a running task to its supervised agent.
	AgentID string `json:"agent_id,omitempty"`
	// Result holds the completion summary or failure reason.
	Result string `json:"result,omitempty"`
}

// Phase is one ordered stage of a plan. Phases run strictly in order; tasks
// inside a phase run in parallel when Parallel is set.
type Phase struct {
	// Index is the zero-based position of the phase in the plan.
	Index int `json:"index"`
	// Name is the human-readable phase description.
	Name string `json:"name"`
	// Parallel indicates tasks in this phase may run concurrently.
	Parallel bool `json:"parallel"`
	// Tasks are the units of work in this phase.
	Tasks []*PlanTask `json:"tasks"`
}

// Plan is a goal decomposed into ordered phases of file-owning tasks.
type Plan struct {
	// ID is the unique identifier for this plan.
	ID string `json:"id"`
	// Goal is the overall objective the plan works toward.
	Goal string `json:"goal"`
	// Project identifies the project the plan runs against.
	Project string `json:"project"`
	// Status is the current lifecycle state.
	Status PlanStatus `json:"status"`
	// Phases are executed strictly in order.
	Phases []*Phase `json:"phases"`
	// CreatedAt is when the plan was proposed.
	CreatedAt time.Time `json:"created_at"`
}

// Task returns the plan task with the given ID, or nil.
func (p *Plan) Task(id string) *PlanTask {
	for _, ph := range p.Phases {
		for _, t := range ph.Tasks {
			if t.ID == id {
				return t
			}
		}
	}
	return nil
}
