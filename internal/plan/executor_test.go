package plan

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/opspilot/overseer/internal/store"
	"github.com/opspilot/overseer/pkg/models"
)

// fakeSup scripts supervisor behavior per spawned agent. By default every
// agent completes on its first status check; briefs containing "FAIL" fail,
// briefs containing "RETRY" fail once and then complete under a new ID, and
// briefs containing "NOSPAWN" refuse to spawn at all.
type fakeSup struct {
	mu      sync.Mutex
	nextID  int
	events  []string          // ordered spawn/check log
	briefs  map[string]string // agentID -> brief
	retried map[string]bool   // agentID already replaced once
	cleaned map[string]int
}

func newFakeSup() *fakeSup {
	return &fakeSup{
		briefs:  make(map[string]string),
		retried: make(map[string]bool),
		cleaned: make(map[string]int),
	}
}

func (f *fakeSup) Spawn(brief, dir string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.Contains(brief, "NOSPAWN") {
		f.events = append(f.events, "spawn-error")
		return "", fmt.Errorf("fork/exec worker: no such file or directory")
	}
	f.nextID++
	id := fmt.Sprintf("agent-%d", f.nextID)
	f.briefs[id] = brief
	f.events = append(f.events, "spawn "+id)
	return id, nil
}

func (f *fakeSup) CheckStatus(agentID string) (models.AgentCheck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	brief := f.briefs[agentID]
	f.events = append(f.events, "check "+agentID)

	if strings.Contains(brief, "RETRY") && !f.retried[agentID] {
		f.nextID++
		newID := fmt.Sprintf("agent-%d", f.nextID)
		// The replacement completes: strip the marker.
		f.briefs[newID] = strings.ReplaceAll(brief, "RETRY", "")
		f.retried[agentID] = true
		f.events = append(f.events, "retry "+agentID+" -> "+newID)
		return models.AgentCheck{Status: models.AgentStatusRetrying, NewAgentID: newID, Reason: "transient"}, nil
	}
	if strings.Contains(brief, "FAIL") {
		return models.AgentCheck{Status: models.AgentStatusFailed, Reason: "worker exited with code 1"}, nil
	}
	return models.AgentCheck{Status: models.AgentStatusCompleted}, nil
}

func (f *fakeSup) GetResults(agentID string) (models.AgentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return models.AgentResult{Summary: "done " + agentID, Success: true}, nil
}

func (f *fakeSup) Cleanup(agentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleaned[agentID]++
	return nil
}

func newExecutor(t *testing.T, sup Supervisor) *Executor {
	t.Helper()
	return NewExecutor(sup, filepath.Join(t.TempDir(), "plan.json"), time.Millisecond)
}

// twoPhasePlan builds a plan whose first phase is parallel. Task briefs are
// seeded through the Brief field so the fake can key behavior off them.
func twoPhasePlan(firstPhaseBriefs ...string) *models.Plan {
	phase1 := &models.Phase{Index: 0, Name: "build", Parallel: true}
	for i, b := range firstPhaseBriefs {
		phase1.Tasks = append(phase1.Tasks, &models.PlanTask{
			ID:         fmt.Sprintf("p1t%d", i),
			Title:      fmt.Sprintf("task %d", i),
			Brief:      b,
			FilesOwned: []string{fmt.Sprintf("pkg/a%d.go", i)},
			Status:     models.PlanTaskPending,
		})
	}
	phase2 := &models.Phase{Index: 1, Name: "wire", Tasks: []*models.PlanTask{{
		ID: "p2t0", Title: "final", Brief: "wire it up",
		FilesOwned: []string{"cmd/main.go"},
		Status:     models.PlanTaskPending,
	}}}
	return &models.Plan{
		ID: "plan-1", Goal: "the goal", Project: "demo",
		Phases: []*models.Phase{phase1, phase2},
	}
}

func TestExecute_PhaseOrderingDespiteFailure(t *testing.T) {
	sup := newFakeSup()
	e := newExecutor(t, sup)

	p := twoPhasePlan("ok work", "FAIL this one")
	if err := e.Execute(p, t.TempDir()); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if p.Status != models.PlanStatusDone {
		t.Errorf("plan status = %s, want done", p.Status)
	}
	if p.Phases[0].Tasks[0].Status != models.PlanTaskCompleted {
		t.Errorf("phase-1 task 0 status = %s, want completed", p.Phases[0].Tasks[0].Status)
	}
	if p.Phases[0].Tasks[1].Status != models.PlanTaskFailed {
		t.Errorf("phase-1 task 1 status = %s, want failed", p.Phases[0].Tasks[1].Status)
	}
	// A failed task never halts the plan.
	if p.Phases[1].Tasks[0].Status != models.PlanTaskCompleted {
		t.Errorf("phase-2 task status = %s, want completed", p.Phases[1].Tasks[0].Status)
	}

	// Phase 2 spawns only after every phase-1 check resolved.
	var phase2Spawn int
	var lastPhase1Check int
	for i, ev := range sup.events {
		if ev == "spawn agent-3" {
			phase2Spawn = i
		}
		if strings.HasPrefix(ev, "check agent-1") || strings.HasPrefix(ev, "check agent-2") {
			lastPhase1Check = i
		}
	}
	if phase2Spawn < lastPhase1Check {
		t.Errorf("phase-2 spawned at event %d, before phase-1 settled at %d:\n%v",
			phase2Spawn, lastPhase1Check, sup.events)
	}
}

func TestExecute_ParallelPhaseSpawnsAllBeforePolling(t *testing.T) {
	sup := newFakeSup()
	e := newExecutor(t, sup)

	p := twoPhasePlan("one", "two", "three")
	if err := e.Execute(p, t.TempDir()); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	firstCheck := -1
	spawns := 0
	for i, ev := range sup.events {
		if strings.HasPrefix(ev, "check") && firstCheck < 0 {
			firstCheck = i
		}
		if strings.HasPrefix(ev, "spawn") && firstCheck < 0 {
			spawns++
		}
	}
	if spawns != 3 {
		t.Errorf("%d parallel tasks spawned before first poll, want 3:\n%v", spawns, sup.events)
	}
}

func TestExecute_RetryRemapsAgentID(t *testing.T) {
	sup := newFakeSup()
	e := newExecutor(t, sup)

	p := twoPhasePlan("RETRY flaky work")
	if err := e.Execute(p, t.TempDir()); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	task := p.Phases[0].Tasks[0]
	if task.Status != models.PlanTaskCompleted {
		t.Fatalf("task status = %s, want completed after retry", task.Status)
	}
	if task.AgentID == "agent-1" {
		t.Error("task still tracks the replaced agent ID")
	}
	if sup.cleaned["agent-1"] != 1 {
		t.Errorf("replaced agent cleaned %d times, want 1", sup.cleaned["agent-1"])
	}
}

func TestExecute_SpawnFailureIsNotPolled(t *testing.T) {
	sup := newFakeSup()
	e := newExecutor(t, sup)

	p := twoPhasePlan("NOSPAWN broken", "ok work")
	if err := e.Execute(p, t.TempDir()); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	broken := p.Phases[0].Tasks[0]
	if broken.Status != models.PlanTaskFailed {
		t.Fatalf("unspawnable task status = %s, want failed", broken.Status)
	}
	if !strings.HasPrefix(broken.Result, "spawn failed:") {
		t.Errorf("result = %q, want the spawn failure reason preserved", broken.Result)
	}
	if p.Phases[0].Tasks[1].Status != models.PlanTaskCompleted {
		t.Errorf("sibling task status = %s, want completed", p.Phases[0].Tasks[1].Status)
	}
	if p.Status != models.PlanStatusDone {
		t.Errorf("plan status = %s, want done", p.Status)
	}
	// The task never got an agent, so nothing should poll for one.
	for _, ev := range sup.events {
		if ev == "check " {
			t.Errorf("polled an agentless task: %v", sup.events)
		}
	}
}

func TestExecute_PersistsSnapshots(t *testing.T) {
	sup := newFakeSup()
	path := filepath.Join(t.TempDir(), "plan.json")
	e := NewExecutor(sup, path, time.Millisecond)

	p := twoPhasePlan("work")
	if err := e.Execute(p, t.TempDir()); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	var snap models.Plan
	found, err := store.Load(path, &snap)
	if err != nil || !found {
		t.Fatalf("Load() = %v, %v", found, err)
	}
	if snap.Status != models.PlanStatusDone {
		t.Errorf("snapshot status = %s, want done", snap.Status)
	}
}

func TestResume_SkipsTerminalTasks(t *testing.T) {
	sup := newFakeSup()
	path := filepath.Join(t.TempDir(), "plan.json")
	e := NewExecutor(sup, path, time.Millisecond)

	p := twoPhasePlan("already finished", "still to do")
	p.Status = models.PlanStatusExecuting
	p.Phases[0].Tasks[0].Status = models.PlanTaskCompleted
	p.Phases[0].Tasks[0].Result = "was done before the crash"
	if err := store.Save(path, p); err != nil {
		t.Fatal(err)
	}

	resumed, err := e.Resume(t.TempDir())
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if resumed.Status != models.PlanStatusDone {
		t.Errorf("resumed status = %s, want done", resumed.Status)
	}
	// Two pending tasks remained (one in each phase); the completed one
	// must not respawn.
	spawns := 0
	for _, ev := range sup.events {
		if strings.HasPrefix(ev, "spawn") {
			spawns++
		}
	}
	if spawns != 2 {
		t.Errorf("%d spawns on resume, want 2:\n%v", spawns, sup.events)
	}
	if resumed.Phases[0].Tasks[0].Result != "was done before the crash" {
		t.Error("completed task's result was overwritten on resume")
	}
}

func TestCancel_StopsFutureScheduling(t *testing.T) {
	sup := newFakeSup()
	e := newExecutor(t, sup)
	e.Cancel()

	p := twoPhasePlan("never runs")
	if err := e.Execute(p, t.TempDir()); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if p.Status != models.PlanStatusCancelled {
		t.Errorf("plan status = %s, want cancelled", p.Status)
	}
	for _, ev := range sup.events {
		if strings.HasPrefix(ev, "spawn") {
			t.Errorf("cancelled plan spawned an agent: %v", sup.events)
		}
	}
}

func TestExecute_OutcomeCallback(t *testing.T) {
	sup := newFakeSup()
	e := newExecutor(t, sup)

	var mu sync.Mutex
	var outcomes []TaskOutcome
	e.SetOnOutcome(func(o TaskOutcome) {
		mu.Lock()
		outcomes = append(outcomes, o)
		mu.Unlock()
	})

	p := twoPhasePlan("work")
	if err := e.Execute(p, t.TempDir()); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(outcomes) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(outcomes))
	}
}
