// Package orchestrator is the awareness layer tying the subsystems together.
// It feeds admitted tasks to the supervisor (or a remote worker node over the
// bridge), follows agent identity through retries, settles finished runs into
// the queue, backlog, run index and archive, and emits completion
// notifications.
package orchestrator

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/opspilot/overseer/internal/backlog"
	"github.com/opspilot/overseer/internal/queue"
	"github.com/opspilot/overseer/internal/supervisor"
	"github.com/opspilot/overseer/pkg/models"
)

// Supervisor is the slice of the process supervisor the orchestrator drives.
type Supervisor interface {
	Spawn(brief, workingDir string) (string, error)
	CheckStatus(agentID string) (models.AgentCheck, error)
	GetResults(agentID string) (models.AgentResult, error)
	Cleanup(agentID string) error
	ActiveCount() int
	AgentIDs() []string
	StartedAt(agentID string) (time.Time, error)
	SetOnExit(fn func(agentID string))
}

var _ Supervisor = (*supervisor.Supervisor)(nil)

// RunArchive stores finished runs durably. Satisfied by history.DB.
type RunArchive interface {
	RecordRun(rec models.RunRecord) error
}

// RunIndex keeps the bounded recent-run index. Satisfied by runindex.Index.
type RunIndex interface {
	Append(rec models.RunRecord) error
}

// Remote offers delegation of a task to a remote worker node. Dispatch
// returns ok=false both for explicit rejection and for no response; the
// caller falls back to local execution either way.
type Remote interface {
	Connected() bool
	Dispatch(description, project, brief string) (agentID string, ok bool, reason string)
}

// Notification carries a finished run's outcome to notification layers.
type Notification struct {
	AgentID         string
	Description     string
	Project         string
	Success         bool
	Summary         string
	Error           string
	ModifiedFiles   []string
	DurationSeconds int64
}

// Notifier consumes run outcome notifications.
type Notifier func(n Notification)

// Deps are the subsystems the orchestrator coordinates. Queue and Sup are
// required; the rest are optional.
type Deps struct {
	Queue    *queue.Queue
	Sup      Supervisor
	Backlog  *backlog.Backlog
	Briefs   backlog.BriefGenerator
	Resolver backlog.ProjectResolver
	RunIndex RunIndex
	Archive  RunArchive
	Remote   Remote
}

// Options tune the orchestrator's event loop.
type Options struct {
	// TickInterval is how often every tracked agent is polled. Polling is
	// what surfaces timeouts; exits arrive event-driven via the
	// supervisor's exit callback.
	TickInterval time.Duration
}

// Orchestrator owns the coordination event loop for one node.
type Orchestrator struct {
	deps Deps
	tick time.Duration

	mu        sync.Mutex
	notifiers []Notifier
	remote    map[string]remoteRun
	onSettled func()

	stop chan struct{}
	wg   sync.WaitGroup
}

// remoteRun tracks a task delegated to the remote worker node.
type remoteRun struct {
	description string
	project     string
	dispatched  time.Time
}

// New creates an orchestrator over the given subsystems.
func New(deps Deps, opts Options) (*Orchestrator, error) {
	if deps.Queue == nil || deps.Sup == nil {
		return nil, fmt.Errorf("orchestrator requires a queue and a supervisor")
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = 30 * time.Second
	}
	return &Orchestrator{
		deps:   deps,
		tick:   opts.TickInterval,
		remote: make(map[string]remoteRun),
		stop:   make(chan struct{}),
	}, nil
}

// AddNotifier registers a consumer of run outcome notifications.
func (o *Orchestrator) AddNotifier(n Notifier) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notifiers = append(o.notifiers, n)
}

// SetOnSettled registers a callback fired after every settled run. The serve
// loop uses it to retrigger backlog dispatch the moment a slot frees up.
func (o *Orchestrator) SetOnSettled(fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onSettled = fn
}

// Start wires the supervisor exit callback and begins the poll loop.
func (o *Orchestrator) Start() {
	o.deps.Sup.SetOnExit(func(agentID string) {
		// The callback fires on the waiter goroutine; settle elsewhere
		// so a slow settle never blocks process reaping.
		go o.Poll(agentID)
	})

	o.wg.Add(1)
	go o.loop()
}

// Stop halts the poll loop. Running worker processes are left to the
// supervisor's own shutdown.
func (o *Orchestrator) Stop() {
	close(o.stop)
	o.wg.Wait()
}

func (o *Orchestrator) loop() {
	defer o.wg.Done()
	ticker := time.NewTicker(o.tick)
	defer ticker.Stop()
	for {
		select {
		case <-o.stop:
			return
		case <-ticker.C:
			o.PollAll()
		}
	}
}

// PollAll checks every tracked agent once. This is the path that catches
// timeouts, which never fire an exit callback by themselves.
func (o *Orchestrator) PollAll() {
	for _, id := range o.deps.Sup.AgentIDs() {
		o.Poll(id)
	}
}

// Poll checks one agent and settles it if it has reached a terminal state.
// On a retry every subsystem reference is re-pointed to the replacement
// agent before the old handle is released, so no dangling agent ID survives
// the poll.
func (o *Orchestrator) Poll(agentID string) {
	check, err := o.deps.Sup.CheckStatus(agentID)
	if err != nil {
		// Already cleaned up by a competing poll.
		return
	}

	switch {
	case check.Status == models.AgentStatusRunning:
	case check.Status == models.AgentStatusRetrying:
		o.Remap(agentID, check.NewAgentID)
		if err := o.deps.Sup.Cleanup(agentID); err != nil {
			log.Printf("[orchestrator] cleanup of retried agent %s: %v", agentID, err)
		}
	case check.Status.Terminal():
		o.settle(agentID, check)
	}
}

// Remap re-points every subsystem holding agentID at newID. The queue, the
// backlog and any remote tracking all follow the same indirection in one
// step.
func (o *Orchestrator) Remap(oldID, newID string) {
	o.mu.Lock()
	if run, ok := o.remote[oldID]; ok {
		delete(o.remote, oldID)
		o.remote[newID] = run
	}
	o.mu.Unlock()

	o.deps.Queue.RemapAgent(oldID, newID)
	if o.deps.Backlog != nil {
		o.deps.Backlog.RemapAgent(oldID, newID)
	}
	log.Printf("[orchestrator] agent %s retried as %s", oldID, newID)
}

// settle consumes a terminal agent: results are mined, the owning queue task
// or backlog item is finished, the run is recorded, notifiers fire, and the
// supervisor handle is released.
func (o *Orchestrator) settle(agentID string, check models.AgentCheck) {
	res, err := o.deps.Sup.GetResults(agentID)
	if err != nil {
		return
	}

	startedAt, _ := o.deps.Sup.StartedAt(agentID)
	if err := o.deps.Sup.Cleanup(agentID); err != nil {
		// Competing poll won the race; it owns the settle.
		return
	}

	success := check.Status == models.AgentStatusCompleted
	reason := check.Reason
	if reason == "" && !success {
		reason = fmt.Sprintf("agent %s", check.Status)
	}

	o.finish(agentID, models.RunRecord{
		AgentID:         agentID,
		Status:          check.Status,
		StartedAt:       startedAt,
		FinishedAt:      time.Now(),
		DurationSeconds: int64(res.Duration.Seconds()),
		Summary:         res.Summary,
		ModifiedFiles:   res.ModifiedFiles,
	}, success, reason)
}

// finish settles a run whose terminal outcome is already known, locally or
// reported by the remote worker node. rec carries everything but the task
// description and project, which are recovered from the owning subsystem.
func (o *Orchestrator) finish(agentID string, rec models.RunRecord, success bool, reason string) {
	if task := o.deps.Queue.TaskByAgent(agentID); task != nil {
		rec.Description = task.Description
		rec.Project = task.Project
		var promoted *models.Task
		var err error
		if success {
			promoted, err = o.deps.Queue.Complete(agentID)
		} else {
			promoted, err = o.deps.Queue.Fail(agentID, reason)
		}
		if err != nil {
			log.Printf("[orchestrator] finishing task for agent %s: %v", agentID, err)
		}
		if promoted != nil {
			o.Launch(promoted)
		}
	} else if o.deps.Backlog != nil {
		if item := o.deps.Backlog.ItemByAgent(agentID); item != nil {
			rec.Description = item.Description
			rec.Project = item.Project
			if success {
				if err := o.deps.Backlog.MarkCompleted(agentID, rec.Summary); err != nil {
					log.Printf("[orchestrator] marking backlog item complete: %v", err)
				}
			} else {
				if err := o.deps.Backlog.MarkFailed(agentID, reason); err != nil {
					log.Printf("[orchestrator] marking backlog item failed: %v", err)
				}
			}
		}
	}

	o.record(rec)
	o.notify(Notification{
		AgentID:         agentID,
		Description:     rec.Description,
		Project:         rec.Project,
		Success:         success,
		Summary:         rec.Summary,
		Error:           reason,
		ModifiedFiles:   rec.ModifiedFiles,
		DurationSeconds: rec.DurationSeconds,
	})

	o.mu.Lock()
	settled := o.onSettled
	o.mu.Unlock()
	if settled != nil {
		settled()
	}
}

func (o *Orchestrator) record(rec models.RunRecord) {
	if o.deps.RunIndex != nil {
		if err := o.deps.RunIndex.Append(rec); err != nil {
			log.Printf("[orchestrator] appending run index: %v", err)
		}
	}
	if o.deps.Archive != nil {
		if err := o.deps.Archive.RecordRun(rec); err != nil {
			log.Printf("[orchestrator] archiving run: %v", err)
		}
	}
}

func (o *Orchestrator) notify(n Notification) {
	o.mu.Lock()
	notifiers := make([]Notifier, len(o.notifiers))
	copy(notifiers, o.notifiers)
	o.mu.Unlock()
	for _, fn := range notifiers {
		fn(n)
	}
}
