package orchestrator

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/opspilot/overseer/internal/backlog"
	"github.com/opspilot/overseer/internal/bridge"
	"github.com/opspilot/overseer/pkg/models"
)

// Worker is the worker-node counterpart of the dispatch conversation: it
// accepts task dispatches from the coordinator, runs them on its local
// supervisor, and pushes retry remaps and terminal results back over the
// bridge.
type Worker struct {
	peer     Peer
	sup      Supervisor
	resolver backlog.ProjectResolver
	max      int
	tick     time.Duration

	mu     sync.Mutex
	runs   map[string]bool
	memory []string

	stop chan struct{}
	wg   sync.WaitGroup
}

// WorkerConfig configures a worker-node agent.
type WorkerConfig struct {
	Peer          Peer
	Sup           Supervisor
	Resolver      backlog.ProjectResolver
	MaxConcurrent int
	TickInterval  time.Duration
}

// memoryCap bounds the shared-context log received via memory-sync.
const memoryCap = 100

// NewWorker creates a worker-node agent over the given bridge endpoint and
// supervisor.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Peer == nil || cfg.Sup == nil {
		return nil, fmt.Errorf("worker requires a bridge peer and a supervisor")
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 30 * time.Second
	}
	return &Worker{
		peer:     cfg.Peer,
		sup:      cfg.Sup,
		resolver: cfg.Resolver,
		max:      cfg.MaxConcurrent,
		tick:     cfg.TickInterval,
		runs:     make(map[string]bool),
		stop:     make(chan struct{}),
	}, nil
}

// Start registers the bridge handlers and begins the poll loop.
func (w *Worker) Start() {
	w.peer.OnMessage(bridge.TypeTaskDispatch, w.handleDispatch)
	w.peer.OnMessage(bridge.TypeStatusRequest, w.handleStatusRequest)
	w.peer.OnMessage(bridge.TypeMemorySync, w.handleMemorySync)

	w.sup.SetOnExit(func(agentID string) {
		go w.poll(agentID)
	})

	w.wg.Add(1)
	go w.loop()
}

// Stop halts the poll loop.
func (w *Worker) Stop() {
	close(w.stop)
	w.wg.Wait()
}

func (w *Worker) loop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.mu.Lock()
			ids := make([]string, 0, len(w.runs))
			for id := range w.runs {
				ids = append(ids, id)
			}
			w.mu.Unlock()
			for _, id := range ids {
				w.poll(id)
			}
		}
	}
}

// handleDispatch answers a task dispatch with acceptance or an explicit
// capacity rejection. Rejection is a first-class outcome here, not an error:
// the coordinator falls back to running the task itself.
func (w *Worker) handleDispatch(msg *bridge.Message) {
	if w.sup.ActiveCount() >= w.max {
		w.reject(msg, "at capacity")
		return
	}

	brief := msg.Payload[keyBrief]
	if strings.TrimSpace(brief) == "" {
		brief = msg.Payload[keyDescription]
	}
	if strings.TrimSpace(brief) == "" {
		w.reject(msg, "empty brief")
		return
	}

	workingDir := ""
	if w.resolver != nil {
		if dir, ok := w.resolver.ResolveProject(msg.Payload[keyProject], msg.Payload[keyDescription]); ok {
			workingDir = dir
		}
	}

	agentID, err := w.sup.Spawn(brief, workingDir)
	if err != nil {
		w.reject(msg, fmt.Sprintf("spawn failed: %v", err))
		return
	}

	w.mu.Lock()
	w.runs[agentID] = true
	w.mu.Unlock()

	w.send(msg.Reply(bridge.TypeTaskStatus, map[string]string{
		keyStatus:  statusAccepted,
		keyAgentID: agentID,
	}))
	log.Printf("[worker] accepted dispatch as agent %s", agentID)
}

func (w *Worker) reject(msg *bridge.Message, reason string) {
	log.Printf("[worker] warning: rejecting dispatch: %s", reason)
	w.send(msg.Reply(bridge.TypeTaskStatus, map[string]string{
		keyStatus: bridge.StatusRejected,
		keyReason: reason,
	}))
}

// poll checks one dispatched agent, pushing retries and terminal outcomes
// back to the coordinator.
func (w *Worker) poll(agentID string) {
	w.mu.Lock()
	tracked := w.runs[agentID]
	w.mu.Unlock()
	if !tracked {
		return
	}

	check, err := w.sup.CheckStatus(agentID)
	if err != nil {
		w.mu.Lock()
		delete(w.runs, agentID)
		w.mu.Unlock()
		return
	}

	switch {
	case check.Status == models.AgentStatusRunning:
	case check.Status == models.AgentStatusRetrying:
		w.mu.Lock()
		delete(w.runs, agentID)
		w.runs[check.NewAgentID] = true
		w.mu.Unlock()
		if err := w.sup.Cleanup(agentID); err != nil {
			log.Printf("[worker] cleanup of retried agent %s: %v", agentID, err)
		}
		w.send(bridge.NewMessage(bridge.TypeTaskStatus, map[string]string{
			keyStatus:     statusRetrying,
			keyAgentID:    agentID,
			keyNewAgentID: check.NewAgentID,
		}))
	case check.Status.Terminal():
		w.report(agentID, check)
	}
}

// report pushes a terminal agent's outcome to the coordinator and releases
// the local handle.
func (w *Worker) report(agentID string, check models.AgentCheck) {
	res, err := w.sup.GetResults(agentID)
	if err != nil {
		return
	}
	if err := w.sup.Cleanup(agentID); err != nil {
		// A competing poll already reported this agent.
		return
	}
	w.mu.Lock()
	delete(w.runs, agentID)
	w.mu.Unlock()

	w.send(bridge.NewMessage(bridge.TypeTaskResult, map[string]string{
		keyAgentID:  agentID,
		keyStatus:   string(check.Status),
		keySummary:  res.Summary,
		keyReason:   check.Reason,
		keyFiles:    strings.Join(res.ModifiedFiles, "\n"),
		keyDuration: strconv.FormatInt(int64(res.Duration.Seconds()), 10),
	}))
	log.Printf("[worker] agent %s finished %s", agentID, check.Status)
}

func (w *Worker) handleStatusRequest(msg *bridge.Message) {
	w.send(msg.Reply(bridge.TypeStatusResponse, map[string]string{
		keyRunning: strconv.Itoa(w.sup.ActiveCount()),
	}))
}

// handleMemorySync appends shared coordinator context to the bounded local
// memory log.
func (w *Worker) handleMemorySync(msg *bridge.Message) {
	line := msg.Payload[keyDescription] + ": " + msg.Payload[keySummary]
	w.mu.Lock()
	w.memory = append(w.memory, line)
	if len(w.memory) > memoryCap {
		w.memory = w.memory[len(w.memory)-memoryCap:]
	}
	w.mu.Unlock()
}

// Memory returns the shared-context lines received from the coordinator.
func (w *Worker) Memory() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.memory))
	copy(out, w.memory)
	return out
}

func (w *Worker) send(msg *bridge.Message) {
	if err := w.peer.Send(msg); err != nil {
		log.Printf("[worker] warning: message not delivered: %v", err)
	}
}
