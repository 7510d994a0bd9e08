package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/opspilot/overseer/internal/queue"
	"github.com/opspilot/overseer/pkg/models"
)

// briefTimeout bounds the collaborator call for one brief.
const briefTimeout = 2 * time.Minute

// Submit routes new work. A task for a project that already has a running
// task is parked in the backlog instead of admitted, keeping one running
// task per project. Everything else goes through the queue and, if admitted
// straight to active, is launched immediately.
func (o *Orchestrator) Submit(description, project string, priority int) error {
	if project != "" && o.deps.Backlog != nil && o.projectBusy(project) {
		_, err := o.deps.Backlog.Add(description, project, priority)
		if err != nil {
			return fmt.Errorf("parking task in backlog: %w", err)
		}
		log.Printf("[orchestrator] project %s busy, task parked in backlog", project)
		return nil
	}

	task, err := o.deps.Queue.Admit(description, project, priority)
	if err != nil {
		return fmt.Errorf("admitting task: %w", err)
	}
	if task.Status == models.TaskStatusActive {
		o.Launch(task)
	}
	return nil
}

// projectBusy reports whether project already has a running or active task.
func (o *Orchestrator) projectBusy(project string) bool {
	if o.deps.Queue.ActiveProjects()[project] {
		return true
	}
	if o.deps.Backlog != nil && o.deps.Backlog.RunningProjects()[project] {
		return true
	}
	return false
}

// Launch turns an active queue task into a running agent. The remote worker
// node gets first refusal when the bridge is up; rejection or silence falls
// back to a local spawn. A failed spawn fails the task and launches whatever
// the queue promotes in its place.
func (o *Orchestrator) Launch(task *models.Task) {
	brief := o.buildBrief(task)

	if o.deps.Remote != nil && o.deps.Remote.Connected() {
		agentID, ok, reason := o.deps.Remote.Dispatch(task.Description, task.Project, brief)
		if ok {
			o.mu.Lock()
			o.remote[agentID] = remoteRun{
				description: task.Description,
				project:     task.Project,
				dispatched:  time.Now(),
			}
			o.mu.Unlock()
			if err := o.deps.Queue.Attach(task.ID, agentID, "remote"); err != nil {
				log.Printf("[orchestrator] attaching remote agent: %v", err)
			}
			log.Printf("[orchestrator] task %s dispatched to remote agent %s", task.ID, agentID)
			return
		}
		log.Printf("[orchestrator] warning: remote rejected task %s (%s), running locally", task.ID, reason)
	}

	workingDir := ""
	if o.deps.Resolver != nil {
		if dir, ok := o.deps.Resolver.ResolveProject(task.Project, task.Description); ok {
			workingDir = dir
		}
	}

	agentID, err := o.deps.Sup.Spawn(brief, workingDir)
	if err != nil {
		log.Printf("[orchestrator] spawn for task %s failed: %v", task.ID, err)
		promoted, ferr := o.deps.Queue.FailTask(task.ID, fmt.Sprintf("spawn failed: %v", err))
		if ferr != nil {
			log.Printf("[orchestrator] failing unspawnable task: %v", ferr)
		}
		if promoted != nil {
			o.Launch(promoted)
		}
		return
	}

	if err := o.deps.Queue.Attach(task.ID, agentID, "local"); err != nil {
		log.Printf("[orchestrator] attaching agent %s: %v", agentID, err)
	}
	log.Printf("[orchestrator] task %s running as agent %s", task.ID, agentID)
}

// buildBrief asks the brief collaborator to expand the task description,
// falling back to the raw description when no collaborator is configured or
// the call fails.
func (o *Orchestrator) buildBrief(task *models.Task) string {
	if o.deps.Briefs == nil {
		return task.Description
	}
	ctx, cancel := context.WithTimeout(context.Background(), briefTimeout)
	defer cancel()
	brief, err := o.deps.Briefs.GenerateBrief(ctx, task.Description, task.Project)
	if err != nil {
		log.Printf("[orchestrator] warning: brief generation failed, using raw description: %v", err)
		return task.Description
	}
	return brief
}

// Status aggregates a node-level view for reporting.
type Status struct {
	Queue          queue.Summary
	AgentsRunning  int
	RemoteLinked   bool
	BacklogPending int
	BacklogRunning int
}

// CurrentStatus snapshots the node's workload.
func (o *Orchestrator) CurrentStatus() Status {
	st := Status{
		Queue:         o.deps.Queue.StatusSummary(),
		AgentsRunning: o.deps.Sup.ActiveCount(),
	}
	if o.deps.Remote != nil {
		st.RemoteLinked = o.deps.Remote.Connected()
	}
	if o.deps.Backlog != nil {
		for _, item := range o.deps.Backlog.Items() {
			switch item.Status {
			case models.BacklogStatusPending:
				st.BacklogPending++
			case models.BacklogStatusRunning:
				st.BacklogRunning++
			}
		}
	}
	return st
}
