package plan

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opspilot/overseer/internal/store"
	"github.com/opspilot/overseer/pkg/models"
)

// Supervisor is the slice of the process supervisor the executor needs.
type Supervisor interface {
	Spawn(brief, workingDir string) (string, error)
	CheckStatus(agentID string) (models.AgentCheck, error)
	GetResults(agentID string) (models.AgentResult, error)
	Cleanup(agentID string) error
}

// Proposer computes a plan from a goal. The decomposition itself is opaque
// to the executor.
type Proposer interface {
	ProposePlan(ctx context.Context, goal, projectFileListing string) (*models.Plan, error)
}

// TaskOutcome notifies interested parties of one finished plan task.
type TaskOutcome struct {
	Plan    *models.Plan
	Task    *models.PlanTask
	AgentID string
	Result  models.AgentResult
}

// Executor runs one plan at a time: phases strictly in order, tasks within a
// phase in parallel or sequentially, the whole plan snapshotted after every
// state change.
type Executor struct {
	sup          Supervisor
	path         string
	pollInterval time.Duration

	// onOutcome, if set, is called for every terminal plan task.
	onOutcome func(TaskOutcome)

	mu        sync.Mutex
	plan      *models.Plan
	cancelled bool
}

// NewExecutor creates an Executor persisting plan snapshots at path.
func NewExecutor(sup Supervisor, path string, pollInterval time.Duration) *Executor {
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	return &Executor{sup: sup, path: path, pollInterval: pollInterval}
}

// SetOnOutcome registers the per-task outcome callback.
func (e *Executor) SetOnOutcome(fn func(TaskOutcome)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onOutcome = fn
}

// Plan returns the plan currently held by the executor, or nil.
func (e *Executor) Plan() *models.Plan {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.plan
}

// Cancel stops scheduling of not-yet-started tasks. Already-spawned agents
// are left running to completion.
func (e *Executor) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelled = true
	log.Printf("[plan] cancel requested")
}

// Run proposes a plan for the goal, validates it and executes it to a
// terminal status.
func (e *Executor) Run(ctx context.Context, proposer Proposer, goal, project, workingDir, fileListing string) (*models.Plan, error) {
	p, err := proposer.ProposePlan(ctx, goal, fileListing)
	if err != nil {
		return nil, fmt.Errorf("propose plan: %w", err)
	}
	if p.ID == "" {
		p.ID = uuid.New().String()[:8]
	}
	p.Goal = goal
	p.Project = project
	p.Status = models.PlanStatusPlanning
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	for _, phase := range p.Phases {
		for _, task := range phase.Tasks {
			if task.Status == "" {
				task.Status = models.PlanTaskPending
			}
		}
	}

	if err := Validate(p); err != nil {
		return nil, fmt.Errorf("plan validation: %w", err)
	}

	e.mu.Lock()
	e.plan = p
	e.cancelled = false
	e.mu.Unlock()
	if err := e.persist(); err != nil {
		return nil, err
	}

	return p, e.Execute(p, workingDir)
}

// Resume reloads the last plan snapshot and continues it. Tasks already in
// a terminal state are skipped.
func (e *Executor) Resume(workingDir string) (*models.Plan, error) {
	var p models.Plan
	found, err := store.Load(e.path, &p)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("no plan snapshot to resume")
	}
	if p.Status.Valid() && p.Status != models.PlanStatusExecuting && p.Status != models.PlanStatusPlanning {
		return &p, nil // already terminal
	}
	// Whatever was running when the process died is gone.
	for _, phase := range p.Phases {
		for _, task := range phase.Tasks {
			if task.Status == models.PlanTaskRunning {
				task.Status = models.PlanTaskPending
				task.AgentID = ""
			}
		}
	}

	e.mu.Lock()
	e.plan = &p
	e.cancelled = false
	e.mu.Unlock()
	return &p, e.Execute(&p, workingDir)
}

// Execute drives the plan to a terminal status.
func (e *Executor) Execute(p *models.Plan, workingDir string) error {
	e.mu.Lock()
	e.plan = p
	e.mu.Unlock()

	p.Status = models.PlanStatusExecuting
	if err := e.persist(); err != nil {
		return err
	}
	log.Printf("[plan] executing plan %s: %d phase(s)", p.ID, len(p.Phases))

	var outcomes []outcome
	for _, phase := range p.Phases {
		if e.isCancelled() {
			break
		}
		if err := e.runPhase(p, phase, workingDir, outcomes); err != nil {
			return err
		}
		// Thread this phase's outcomes into subsequent briefs.
		for _, task := range phase.Tasks {
			if task.Status.Terminal() {
				outcomes = append(outcomes, outcome{title: task.Title, result: task.Result})
			}
		}
	}

	if e.isCancelled() {
		p.Status = models.PlanStatusCancelled
	} else {
		p.Status = models.PlanStatusDone
	}
	log.Printf("[plan] plan %s finished: %s", p.ID, p.Status)
	return e.persist()
}

// runPhase executes one phase to completion. The next phase never starts
// until this one's outstanding set is empty; a failed task does not halt
// the phase.
func (e *Executor) runPhase(p *models.Plan, phase *models.Phase, workingDir string, outcomes []outcome) error {
	log.Printf("[plan] phase %d (%s), parallel=%v", phase.Index, phase.Name, phase.Parallel)

	if phase.Parallel {
		outstanding := make(map[string]string) // taskID -> agentID
		for _, task := range phase.Tasks {
			if task.Status.Terminal() {
				continue // resumed plan: already done
			}
			if e.isCancelled() {
				continue
			}
			if err := e.spawnTask(p, phase, task, workingDir, outcomes); err != nil {
				return err
			}
			// A spawn failure leaves the task terminal with no agent to poll.
			if task.Status.Terminal() {
				continue
			}
			outstanding[task.ID] = task.AgentID
		}
		return e.pollOutstanding(p, outstanding)
	}

	for _, task := range phase.Tasks {
		if task.Status.Terminal() {
			continue
		}
		if e.isCancelled() {
			continue
		}
		if err := e.spawnTask(p, phase, task, workingDir, outcomes); err != nil {
			return err
		}
		if task.Status.Terminal() {
			continue
		}
		if err := e.pollOutstanding(p, map[string]string{task.ID: task.AgentID}); err != nil {
			return err
		}
	}
	return nil
}

// spawnTask builds the brief, spawns the agent and persists the linkage.
func (e *Executor) spawnTask(p *models.Plan, phase *models.Phase, task *models.PlanTask, workingDir string, outcomes []outcome) error {
	brief := buildBrief(p, phase, task, outcomes)
	agentID, err := e.sup.Spawn(brief, workingDir)
	if err != nil {
		// Spawn failure is a task failure, not a plan failure.
		task.Status = models.PlanTaskFailed
		task.Result = fmt.Sprintf("spawn failed: %v", err)
		log.Printf("[plan] warning: spawn for task %s: %v", task.ID, err)
		return e.persist()
	}
	task.Status = models.PlanTaskRunning
	task.AgentID = agentID
	log.Printf("[plan] task %s (%s) running as agent %s", task.ID, task.Title, agentID)
	return e.persist()
}

// pollOutstanding polls every (task, agent) pair on the fixed interval until
// the outstanding set is empty, following retry indirection as it goes.
func (e *Executor) pollOutstanding(p *models.Plan, outstanding map[string]string) error {
	for len(outstanding) > 0 {
		time.Sleep(e.pollInterval)

		for taskID, agentID := range outstanding {
			task := p.Task(taskID)
			check, err := e.sup.CheckStatus(agentID)
			if err != nil {
				// The agent vanished; record a failure and move on.
				task.Status = models.PlanTaskFailed
				task.Result = fmt.Sprintf("agent lost: %v", err)
				delete(outstanding, taskID)
				if err := e.persist(); err != nil {
					return err
				}
				continue
			}

			switch check.Status {
			case models.AgentStatusRunning:
				// keep polling
			case models.AgentStatusRetrying:
				task.AgentID = check.NewAgentID
				outstanding[taskID] = check.NewAgentID
				_ = e.sup.Cleanup(agentID)
				if err := e.persist(); err != nil {
					return err
				}
			case models.AgentStatusCompleted, models.AgentStatusFailed, models.AgentStatusTerminated:
				e.recordOutcome(p, task, agentID, check)
				delete(outstanding, taskID)
				if err := e.persist(); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// recordOutcome stores the terminal result and releases the agent.
func (e *Executor) recordOutcome(p *models.Plan, task *models.PlanTask, agentID string, check models.AgentCheck) {
	result, err := e.sup.GetResults(agentID)
	if err != nil {
		result = models.AgentResult{}
	}

	if check.Status == models.AgentStatusCompleted {
		task.Status = models.PlanTaskCompleted
		task.Result = result.Summary
	} else {
		task.Status = models.PlanTaskFailed
		if check.Reason != "" {
			task.Result = check.Reason
		} else {
			task.Result = string(check.Status)
		}
	}
	log.Printf("[plan] task %s finished: %s", task.ID, task.Status)

	if err := e.sup.Cleanup(agentID); err != nil {
		log.Printf("[plan] warning: cleanup agent %s: %v", agentID, err)
	}

	e.mu.Lock()
	onOutcome := e.onOutcome
	e.mu.Unlock()
	if onOutcome != nil {
		onOutcome(TaskOutcome{Plan: p, Task: task, AgentID: agentID, Result: result})
	}
}

func (e *Executor) isCancelled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled
}

// persist snapshots the whole plan.
func (e *Executor) persist() error {
	e.mu.Lock()
	p := e.plan
	e.mu.Unlock()
	if p == nil {
		return nil
	}
	return store.Save(e.path, p)
}
