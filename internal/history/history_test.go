package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/opspilot/overseer/pkg/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleRun(agentID, description, project string, finished time.Time) models.RunRecord {
	return models.RunRecord{
		AgentID:         agentID,
		Description:     description,
		Project:         project,
		Status:          models.AgentStatusCompleted,
		StartedAt:       finished.Add(-2 * time.Minute),
		FinishedAt:      finished,
		DurationSeconds: 120,
		Summary:         "did the work",
		ModifiedFiles:   []string{"a.go", "b.go"},
	}
}

func TestRecordAndSearch(t *testing.T) {
	db := openTestDB(t)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	runs := []models.RunRecord{
		sampleRun("agent-1", "fix login redirect", "website", base),
		sampleRun("agent-2", "add cache layer", "overseer", base.Add(time.Hour)),
		sampleRun("agent-3", "tune cache eviction", "overseer", base.Add(2*time.Hour)),
	}
	for _, r := range runs {
		if err := db.RecordRun(r); err != nil {
			t.Fatalf("RecordRun(%s): %v", r.AgentID, err)
		}
	}

	got, err := db.SearchRuns("CACHE", 10)
	if err != nil {
		t.Fatalf("SearchRuns: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(got))
	}
	// Newest first.
	if got[0].AgentID != "agent-3" || got[1].AgentID != "agent-2" {
		t.Errorf("wrong order: %s, %s", got[0].AgentID, got[1].AgentID)
	}
	if len(got[0].ModifiedFiles) != 2 || got[0].ModifiedFiles[0] != "a.go" {
		t.Errorf("modified files not round-tripped: %v", got[0].ModifiedFiles)
	}
	if got[0].Status != models.AgentStatusCompleted {
		t.Errorf("status not round-tripped: %s", got[0].Status)
	}

	all, err := db.SearchRuns("", 10)
	if err != nil {
		t.Fatalf("SearchRuns(empty): %v", err)
	}
	if len(all) != 3 {
		t.Errorf("empty query should match all runs, got %d", len(all))
	}

	limited, err := db.SearchRuns("", 1)
	if err != nil {
		t.Fatalf("SearchRuns(limit): %v", err)
	}
	if len(limited) != 1 || limited[0].AgentID != "agent-3" {
		t.Errorf("limit should keep newest run, got %v", limited)
	}
}

func TestRecordRun_Overwrite(t *testing.T) {
	db := openTestDB(t)

	finished := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rec := sampleRun("agent-1", "first attempt", "overseer", finished)
	if err := db.RecordRun(rec); err != nil {
		t.Fatal(err)
	}
	rec.Description = "second attempt"
	if err := db.RecordRun(rec); err != nil {
		t.Fatal(err)
	}

	n, err := db.Count()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row after overwrite, got %d", n)
	}
	got, err := db.SearchRuns("attempt", 10)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Description != "second attempt" {
		t.Errorf("description = %q", got[0].Description)
	}
}

func TestPruneOlderThan(t *testing.T) {
	db := openTestDB(t)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"agent-1", "agent-2", "agent-3"} {
		run := sampleRun(id, "work", "overseer", base.Add(time.Duration(i)*24*time.Hour))
		if err := db.RecordRun(run); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := db.PruneOlderThan(base.Add(36 * time.Hour))
	if err != nil {
		t.Fatalf("PruneOlderThan: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 pruned, got %d", removed)
	}
	n, err := db.Count()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 remaining, got %d", n)
	}
}

func TestReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	rec := sampleRun("agent-1", "durable work", "overseer", time.Now().UTC())
	if err := db.RecordRun(rec); err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	n, err := reopened.Count()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 run after reopen, got %d", n)
	}
}
