// Package supervisor spawns and monitors the external worker processes.
//
// Each task gets one OS process. The brief is fed over stdin (never argv, to
// avoid argument-length limits and injection) and stdout/stderr are redirected
// to per-agent log files. Callers poll CheckStatus; completion, failure,
// timeout and bounded retry are all resolved there.
package supervisor

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/opspilot/overseer/pkg/models"
)

// Common errors for agent lookups and lifecycle misuse.
var (
	// ErrAgentNotFound indicates the requested agent does not exist.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrStillRunning indicates results were requested before a terminal state.
	ErrStillRunning = errors.New("agent still running")
)

// Options configures a Supervisor.
type Options struct {
	// Command is the worker executable.
	Command string
	// Args are extra arguments passed to every worker invocation.
	Args []string
	// Timeout force-terminates workers running longer than this.
	Timeout time.Duration
	// MaxRetries bounds automatic respawns after a failure.
	MaxRetries int
	// GracePeriod separates SIGTERM from SIGKILL during Terminate.
	GracePeriod time.Duration
	// LogDir receives the per-agent stdout/stderr log files.
	LogDir string
	// Extractor mines summaries and modified files from worker output.
	// Defaults to the marker-based extractor.
	Extractor ResultExtractor
}

// agentProc tracks one spawned worker process.
type agentProc struct {
	id         string
	brief      string
	workingDir string

	cmd        *exec.Cmd
	stdoutPath string
	stderrPath string
	stdoutFile *os.File
	stderrFile *os.File
	closeOnce  sync.Once

	startTime   time.Time
	exitTime    time.Time
	lastChecked time.Time
	retryCount  int

	// resolving marks the attempt as claimed by one CheckStatus caller while
	// it classifies the exit and possibly respawns. Guarded by Supervisor.mu.
	resolving bool

	done     chan struct{}
	exitCode int

	status     models.AgentStatus
	newAgentID string
	reason     string
}

// closeStreams releases the agent's log file handles. Safe to call from the
// wait goroutine and Cleanup; the handles are closed exactly once.
func (a *agentProc) closeStreams() {
	a.closeOnce.Do(func() {
		if a.stdoutFile != nil {
			a.stdoutFile.Close()
		}
		if a.stderrFile != nil {
			a.stderrFile.Close()
		}
	})
}

// Supervisor manages the pool of worker processes.
type Supervisor struct {
	opts Options

	mu     sync.Mutex
	agents map[string]*agentProc

	// onExit, if set, is called from the wait goroutine when any worker
	// process exits. Used to trigger event-driven dispatch.
	onExit func(agentID string)
}

// New creates a Supervisor.
func New(opts Options) (*Supervisor, error) {
	if opts.Command == "" {
		return nil, fmt.Errorf("worker command must not be empty")
	}
	if opts.LogDir == "" {
		return nil, fmt.Errorf("log directory must not be empty")
	}
	if err := os.MkdirAll(opts.LogDir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = 10 * time.Second
	}
	if opts.Extractor == nil {
		opts.Extractor = NewMarkerExtractor()
	}
	return &Supervisor{
		opts:   opts,
		agents: make(map[string]*agentProc),
	}, nil
}

// SetOnExit registers a callback invoked whenever a worker process exits.
// The callback runs on the wait goroutine and must not block.
func (s *Supervisor) SetOnExit(fn func(agentID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExit = fn
}

// Spawn launches one worker process for the given brief and working
// directory and returns its agent ID. The process runs asynchronously.
func (s *Supervisor) Spawn(brief, workingDir string) (string, error) {
	return s.spawn(brief, workingDir, 0)
}

func (s *Supervisor) spawn(brief, workingDir string, retryCount int) (string, error) {
	agentID := uuid.New().String()[:8]

	stdoutPath := filepath.Join(s.opts.LogDir, agentID+".out.log")
	stderrPath := filepath.Join(s.opts.LogDir, agentID+".err.log")

	stdoutFile, err := os.Create(stdoutPath)
	if err != nil {
		return "", fmt.Errorf("create stdout log: %w", err)
	}
	stderrFile, err := os.Create(stderrPath)
	if err != nil {
		stdoutFile.Close()
		return "", fmt.Errorf("create stderr log: %w", err)
	}

	cmd := exec.Command(s.opts.Command, s.opts.Args...)
	cmd.Dir = workingDir
	cmd.Stdin = strings.NewReader(brief)
	cmd.Stdout = stdoutFile
	cmd.Stderr = stderrFile

	proc := &agentProc{
		id:         agentID,
		brief:      brief,
		workingDir: workingDir,
		cmd:        cmd,
		stdoutPath: stdoutPath,
		stderrPath: stderrPath,
		stdoutFile: stdoutFile,
		stderrFile: stderrFile,
		startTime:  time.Now(),
		retryCount: retryCount,
		done:       make(chan struct{}),
		status:     models.AgentStatusRunning,
	}

	if err := cmd.Start(); err != nil {
		proc.closeStreams()
		os.Remove(stdoutPath)
		os.Remove(stderrPath)
		return "", fmt.Errorf("start worker: %w", err)
	}

	s.mu.Lock()
	s.agents[agentID] = proc
	s.mu.Unlock()

	go s.wait(proc)

	log.Printf("[supervisor] spawned agent %s in %s (attempt %d)", agentID, workingDir, retryCount+1)
	return agentID, nil
}

// wait blocks on the process and records its exit.
func (s *Supervisor) wait(proc *agentProc) {
	err := proc.cmd.Wait()

	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}

	proc.closeStreams()

	s.mu.Lock()
	proc.exitCode = code
	proc.exitTime = time.Now()
	close(proc.done)
	onExit := s.onExit
	s.mu.Unlock()

	if onExit != nil {
		onExit(proc.id)
	}
}

// exited reports whether the process has finished, without blocking.
func (proc *agentProc) exited() bool {
	select {
	case <-proc.done:
		return true
	default:
		return false
	}
}

// CheckStatus polls the agent. A finished process is classified completed or
// failed; a failed attempt with retries remaining is respawned under a new
// agent ID and reported as retrying. A process past its timeout is
// force-terminated and then follows the failure path.
//
// Concurrent callers are safe: exactly one claims a finished attempt and
// resolves it, others see running until the winner's result is recorded.
func (s *Supervisor) CheckStatus(agentID string) (models.AgentCheck, error) {
	s.mu.Lock()
	proc, ok := s.agents[agentID]
	if !ok {
		s.mu.Unlock()
		return models.AgentCheck{}, fmt.Errorf("check %s: %w", agentID, ErrAgentNotFound)
	}
	proc.lastChecked = time.Now()

	// A previously-resolved terminal or retrying state is stable.
	if proc.status != models.AgentStatusRunning {
		out := models.AgentCheck{Status: proc.status, NewAgentID: proc.newAgentID, Reason: proc.reason}
		s.mu.Unlock()
		return out, nil
	}
	// Another caller is already classifying this exit.
	if proc.resolving {
		s.mu.Unlock()
		return models.AgentCheck{Status: models.AgentStatusRunning}, nil
	}

	exited := proc.exited()
	timedOut := !exited && s.opts.Timeout > 0 && time.Since(proc.startTime) > s.opts.Timeout
	if !exited && !timedOut {
		s.mu.Unlock()
		return models.AgentCheck{Status: models.AgentStatusRunning}, nil
	}
	proc.resolving = true
	s.mu.Unlock()

	if timedOut {
		log.Printf("[supervisor] agent %s exceeded %v timeout, terminating", agentID, s.opts.Timeout)
		s.kill(proc)
		<-proc.done
		return s.resolveFailure(proc, fmt.Sprintf("timed out after %v", s.opts.Timeout))
	}

	ok, reason := classifyExit(proc.exitCode, s.stdoutNonEmpty(proc))
	if ok {
		s.mu.Lock()
		proc.status = models.AgentStatusCompleted
		s.mu.Unlock()
		return models.AgentCheck{Status: models.AgentStatusCompleted}, nil
	}
	return s.resolveFailure(proc, reason)
}

// classifyExit decides success for a finished attempt. Exit 0 with empty
// output counts as a failure: workers are required to emit at least a summary
// line, so silence indicates a wedged or misconfigured worker. A no-op task
// still prints a summary. Kept as one predicate so the policy can change in
// one place.
func classifyExit(exitCode int, hasOutput bool) (ok bool, reason string) {
	switch {
	case exitCode != 0:
		return false, fmt.Sprintf("worker exited with code %d", exitCode)
	case !hasOutput:
		return false, "worker exited 0 but produced no output"
	default:
		return true, ""
	}
}

// resolveFailure applies the retry policy to a failed attempt.
func (s *Supervisor) resolveFailure(proc *agentProc, reason string) (models.AgentCheck, error) {
	if proc.retryCount < s.opts.MaxRetries {
		newID, err := s.spawn(proc.brief, proc.workingDir, proc.retryCount+1)
		if err != nil {
			s.mu.Lock()
			proc.status = models.AgentStatusFailed
			proc.reason = fmt.Sprintf("%s; respawn failed: %v", reason, err)
			out := models.AgentCheck{Status: proc.status, Reason: proc.reason}
			s.mu.Unlock()
			return out, nil
		}
		s.mu.Lock()
		proc.status = models.AgentStatusRetrying
		proc.newAgentID = newID
		proc.reason = reason
		s.mu.Unlock()
		log.Printf("[supervisor] agent %s failed (%s), retrying as %s", proc.id, reason, newID)
		return models.AgentCheck{Status: models.AgentStatusRetrying, NewAgentID: newID, Reason: reason}, nil
	}

	s.mu.Lock()
	proc.status = models.AgentStatusFailed
	proc.reason = reason
	s.mu.Unlock()
	log.Printf("[supervisor] agent %s failed permanently: %s", proc.id, reason)
	return models.AgentCheck{Status: models.AgentStatusFailed, Reason: reason}, nil
}

// stdoutNonEmpty reports whether the agent wrote anything beyond whitespace.
func (s *Supervisor) stdoutNonEmpty(proc *agentProc) bool {
	data, err := os.ReadFile(proc.stdoutPath)
	if err != nil {
		return false
	}
	return len(strings.TrimSpace(string(data))) > 0
}

// GetResults mines the captured output of a finished agent. This is
// best-effort text mining, not a parser; see ResultExtractor.
func (s *Supervisor) GetResults(agentID string) (models.AgentResult, error) {
	s.mu.Lock()
	proc, ok := s.agents[agentID]
	s.mu.Unlock()
	if !ok {
		return models.AgentResult{}, fmt.Errorf("results %s: %w", agentID, ErrAgentNotFound)
	}
	if !proc.exited() {
		return models.AgentResult{}, fmt.Errorf("results %s: %w", agentID, ErrStillRunning)
	}

	output, err := os.ReadFile(proc.stdoutPath)
	if err != nil {
		return models.AgentResult{}, fmt.Errorf("read output log: %w", err)
	}

	summary, files := s.opts.Extractor.Extract(string(output))
	return models.AgentResult{
		Summary:       summary,
		ModifiedFiles: files,
		Success:       proc.status == models.AgentStatusCompleted,
		Duration:      proc.exitTime.Sub(proc.startTime),
	}, nil
}

// Terminate stops the agent's process: SIGTERM, a bounded grace period, then
// SIGKILL. The agent is marked terminated once the process is gone.
func (s *Supervisor) Terminate(agentID string) error {
	s.mu.Lock()
	proc, ok := s.agents[agentID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("terminate %s: %w", agentID, ErrAgentNotFound)
	}

	if !proc.exited() {
		if err := proc.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			log.Printf("[supervisor] SIGTERM agent %s: %v", agentID, err)
		}
		select {
		case <-proc.done:
		case <-time.After(s.opts.GracePeriod):
			s.kill(proc)
			<-proc.done
		}
	}

	s.mu.Lock()
	if !proc.status.Terminal() {
		proc.status = models.AgentStatusTerminated
	}
	s.mu.Unlock()
	return nil
}

// kill force-kills the process without waiting.
func (s *Supervisor) kill(proc *agentProc) {
	if proc.cmd.Process != nil {
		_ = proc.cmd.Process.Kill()
	}
}

// Cleanup releases the agent's handles and removes it from the tracking
// table. It must be called exactly once after a terminal status has been
// consumed.
func (s *Supervisor) Cleanup(agentID string) error {
	s.mu.Lock()
	proc, ok := s.agents[agentID]
	if ok {
		delete(s.agents, agentID)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("cleanup %s: %w", agentID, ErrAgentNotFound)
	}
	proc.closeStreams()
	return nil
}

// ActiveCount returns the number of agents still running.
func (s *Supervisor) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, proc := range s.agents {
		if proc.status == models.AgentStatusRunning && !proc.exited() {
			n++
		}
	}
	return n
}

// AgentIDs returns the IDs of every tracked agent, running or not.
func (s *Supervisor) AgentIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.agents))
	for id := range s.agents {
		ids = append(ids, id)
	}
	return ids
}

// StartedAt returns the spawn time of the given agent.
func (s *Supervisor) StartedAt(agentID string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	proc, ok := s.agents[agentID]
	if !ok {
		return time.Time{}, fmt.Errorf("started %s: %w", agentID, ErrAgentNotFound)
	}
	return proc.startTime, nil
}

// Shutdown terminates every tracked agent and releases all handles.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.agents))
	for id := range s.agents {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		if err := s.Terminate(id); err != nil && !errors.Is(err, ErrAgentNotFound) {
			log.Printf("[supervisor] shutdown terminate %s: %v", id, err)
		}
		_ = s.Cleanup(id)
	}
}
