package backlog

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/opspilot/overseer/pkg/models"
)

func newBacklog(t *testing.T) *Backlog {
	t.Helper()
	b, err := New(filepath.Join(t.TempDir(), "backlog.json"), 10)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return b
}

func TestAdd_PriorityOrdering(t *testing.T) {
	b := newBacklog(t)

	b.Add("low one", "p1", 1)
	b.Add("high", "p2", 5)
	b.Add("low two", "p3", 1)
	b.Add("mid", "p4", 3)

	pending := b.TakePending(10, nil)
	got := make([]string, len(pending))
	for i, item := range pending {
		got[i] = item.Description
	}
	want := []string{"high", "mid", "low one", "low two"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pending order = %v, want %v", got, want)
		}
	}
}

func TestTakePending_ExcludesProjects(t *testing.T) {
	b := newBacklog(t)
	b.Add("a", "busy", 0)
	b.Add("b", "free", 0)

	got := b.TakePending(10, map[string]bool{"busy": true})
	if len(got) != 1 || got[0].Project != "free" {
		t.Fatalf("TakePending() = %v, want only the free project", got)
	}
}

func TestLifecycle_MarkRunningThenCompleted(t *testing.T) {
	b := newBacklog(t)
	item, _ := b.Add("work", "proj", 0)

	if err := b.MarkRunning(item.ID, "agent-1"); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}
	if got := b.RunningProjects(); !got["proj"] {
		t.Error("RunningProjects() missing proj")
	}

	if err := b.MarkCompleted("agent-1", "summary text"); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}

	items := b.Items()
	if items[0].Status != models.BacklogStatusCompleted {
		t.Errorf("status = %s, want completed", items[0].Status)
	}
	if items[0].Result != "summary text" {
		t.Errorf("result = %q", items[0].Result)
	}
	if items[0].CompletedAt == nil {
		t.Error("CompletedAt is nil")
	}
	if len(b.SessionLog()) == 0 {
		t.Error("session log is empty after dispatch and completion")
	}
}

func TestRestart_ResetsRunningItems(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backlog.json")
	b, err := New(path, 10)
	if err != nil {
		t.Fatal(err)
	}
	item, _ := b.Add("work", "proj", 0)
	b.MarkRunning(item.ID, "agent-1")

	reloaded, err := New(path, 10)
	if err != nil {
		t.Fatal(err)
	}
	items := reloaded.Items()
	if items[0].Status != models.BacklogStatusPending {
		t.Errorf("reloaded status = %s, want pending", items[0].Status)
	}
	if items[0].AgentID != "" {
		t.Errorf("reloaded item still linked to agent %q", items[0].AgentID)
	}
}

func TestRemapAgent(t *testing.T) {
	b := newBacklog(t)
	item, _ := b.Add("work", "proj", 0)
	b.MarkRunning(item.ID, "agent-1")

	b.RemapAgent("agent-1", "agent-2")

	if got := b.ItemByAgent("agent-2"); got == nil || got.ID != item.ID {
		t.Errorf("ItemByAgent(agent-2) = %v, want the remapped item", got)
	}
	if err := b.MarkCompleted("agent-2", "done"); err != nil {
		t.Errorf("MarkCompleted() after remap error = %v", err)
	}
}

// fakeSpawner counts spawns up to a fixed concurrency.
type fakeSpawner struct {
	mu      sync.Mutex
	active  int
	spawned []string
}

func (f *fakeSpawner) Spawn(brief, dir string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active++
	id := fmt.Sprintf("agent-%d", len(f.spawned))
	f.spawned = append(f.spawned, dir)
	return id, nil
}

func (f *fakeSpawner) ActiveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

type staticBriefs struct{}

func (staticBriefs) GenerateBrief(_ context.Context, desc, project string) (string, error) {
	return "brief: " + desc, nil
}

type staticResolver struct{ dir string }

func (r staticResolver) ResolveProject(hint, freeText string) (string, bool) {
	if hint == "unknown" {
		return "", false
	}
	return r.dir, true
}

func TestDispatcher_RespectsCapacity(t *testing.T) {
	b := newBacklog(t)
	for i := 0; i < 5; i++ {
		b.Add(fmt.Sprintf("task %d", i), fmt.Sprintf("proj-%d", i), 0)
	}

	spawner := &fakeSpawner{}
	d := NewDispatcher(DispatcherConfig{
		Backlog:       b,
		Spawner:       spawner,
		Briefs:        staticBriefs{},
		Resolver:      staticResolver{dir: t.TempDir()},
		MaxConcurrent: 2,
		TickInterval:  time.Hour,
	})

	d.TryDispatch()
	if got := spawner.ActiveCount(); got != 2 {
		t.Fatalf("spawned %d agents, want 2 (capacity)", got)
	}

	// Capacity full: nothing further dispatches.
	d.TryDispatch()
	if got := spawner.ActiveCount(); got != 2 {
		t.Fatalf("spawned %d agents after second pass, want still 2", got)
	}
}

func TestDispatcher_OneRunningItemPerProject(t *testing.T) {
	b := newBacklog(t)
	b.Add("first", "same", 0)
	b.Add("second", "same", 0)

	spawner := &fakeSpawner{}
	d := NewDispatcher(DispatcherConfig{
		Backlog:       b,
		Spawner:       spawner,
		Briefs:        staticBriefs{},
		Resolver:      staticResolver{dir: t.TempDir()},
		MaxConcurrent: 5,
		TickInterval:  time.Hour,
	})

	d.TryDispatch()
	if got := spawner.ActiveCount(); got != 1 {
		t.Fatalf("spawned %d agents for one project, want 1", got)
	}
}

func TestDispatcher_UnresolvedProjectSkipped(t *testing.T) {
	b := newBacklog(t)
	b.Add("mystery", "unknown", 0)

	spawner := &fakeSpawner{}
	d := NewDispatcher(DispatcherConfig{
		Backlog:       b,
		Spawner:       spawner,
		Briefs:        staticBriefs{},
		Resolver:      staticResolver{dir: t.TempDir()},
		MaxConcurrent: 5,
		TickInterval:  time.Hour,
	})

	d.TryDispatch()
	if got := spawner.ActiveCount(); got != 0 {
		t.Errorf("spawned %d agents for unresolvable project, want 0", got)
	}
}

func TestMorningReport_FiltersByWindow(t *testing.T) {
	b := newBacklog(t)
	recent, _ := b.Add("recent work", "proj", 0)
	old, _ := b.Add("old work", "proj2", 0)

	b.MarkRunning(recent.ID, "agent-r")
	b.MarkCompleted("agent-r", "shipped it")

	b.MarkRunning(old.ID, "agent-o")
	b.MarkCompleted("agent-o", "ancient")
	// Push the old item outside the window.
	past := time.Now().Add(-48 * time.Hour)
	b.mu.Lock()
	b.items[1].CompletedAt = &past
	b.mu.Unlock()

	report := b.MorningReport(16 * time.Hour)
	if !strings.Contains(report, "recent work") {
		t.Errorf("report missing recent work:\n%s", report)
	}
	if strings.Contains(report, "old work") {
		t.Errorf("report includes out-of-window item:\n%s", report)
	}
}
