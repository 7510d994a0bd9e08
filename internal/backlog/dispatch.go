package backlog

import (
	"context"
	"log"
	"sync"
	"time"
)

// Spawner is the slice of the process supervisor the dispatcher needs.
type Spawner interface {
	// Spawn launches a worker for the brief and returns its agent ID.
	Spawn(brief, workingDir string) (string, error)
	// ActiveCount returns the number of agents currently running.
	ActiveCount() int
}

// BriefGenerator produces a worker brief from a task description. Brief
// content is opaque to the backlog.
type BriefGenerator interface {
	GenerateBrief(ctx context.Context, taskDescription, projectContext string) (string, error)
}

// ProjectResolver maps a project hint to a working directory.
type ProjectResolver interface {
	// ResolveProject returns the project's directory, or ok=false when the
	// hint matches nothing.
	ResolveProject(hint, freeText string) (dir string, ok bool)
}

// Dispatcher drains the backlog through the supervisor: a fixed-interval
// tick and an event-driven TryDispatch share one dispatch routine.
type Dispatcher struct {
	backlog  *Backlog
	spawner  Spawner
	briefs   BriefGenerator
	resolver ProjectResolver

	maxConcurrent int
	tickInterval  time.Duration

	// busyProjects reports projects that already have work elsewhere in the
	// system (active queue tasks, running plan tasks). May be nil.
	busyProjects func() map[string]bool

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// DispatcherConfig wires a Dispatcher.
type DispatcherConfig struct {
	Backlog       *Backlog
	Spawner       Spawner
	Briefs        BriefGenerator
	Resolver      ProjectResolver
	MaxConcurrent int
	TickInterval  time.Duration
	// BusyProjects, if set, adds externally-busy projects to the per-project
	// exclusion applied on each dispatch.
	BusyProjects func() map[string]bool
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	tick := cfg.TickInterval
	if tick <= 0 {
		tick = 60 * time.Second
	}
	return &Dispatcher{
		backlog:       cfg.Backlog,
		spawner:       cfg.Spawner,
		briefs:        cfg.Briefs,
		resolver:      cfg.Resolver,
		maxConcurrent: cfg.MaxConcurrent,
		tickInterval:  tick,
		busyProjects:  cfg.BusyProjects,
		stop:          make(chan struct{}),
	}
}

// Start launches the background tick loop.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-d.stop:
				return
			case <-ticker.C:
				d.TryDispatch()
			}
		}
	}()
}

// Stop halts the tick loop. Already-running agents are unaffected.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	d.started = false
	close(d.stop)
	d.mu.Unlock()
	d.wg.Wait()
}

// TryDispatch fills free capacity with pending items. It is called by the
// tick loop and whenever a supervised process finishes.
func (d *Dispatcher) TryDispatch() {
	free := d.maxConcurrent - d.spawner.ActiveCount()
	if free <= 0 {
		return
	}

	exclude := d.backlog.RunningProjects()
	if d.busyProjects != nil {
		for project := range d.busyProjects() {
			exclude[project] = true
		}
	}

	for _, item := range d.backlog.TakePending(free, exclude) {
		// The batch may carry two items for one project; only the first runs.
		if exclude[item.Project] {
			continue
		}
		dir, ok := d.resolver.ResolveProject(item.Project, item.Description)
		if !ok {
			log.Printf("[backlog] warning: cannot resolve project %q for item %s", item.Project, item.ID)
			continue
		}

		brief, err := d.briefs.GenerateBrief(context.Background(), item.Description, item.Project)
		if err != nil {
			log.Printf("[backlog] warning: brief generation for item %s: %v", item.ID, err)
			continue
		}

		agentID, err := d.spawner.Spawn(brief, dir)
		if err != nil {
			log.Printf("[backlog] warning: spawn for item %s: %v", item.ID, err)
			continue
		}
		if err := d.backlog.MarkRunning(item.ID, agentID); err != nil {
			log.Printf("[backlog] warning: mark running %s: %v", item.ID, err)
		}
		// One dispatch per project per pass.
		exclude[item.Project] = true
	}
}
