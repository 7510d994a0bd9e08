package store

import (
	"os"
	"path/filepath"
	"testing"
)

type testDoc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "doc.json")

	want := testDoc{Name: "alpha", Count: 3}
	if err := Save(path, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	var got testDoc
	found, err := Load(path, &got)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !found {
		t.Fatal("Load() found = false, want true")
	}
	if got != want {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	var got testDoc
	found, err := Load(filepath.Join(t.TempDir(), "absent.json"), &got)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if found {
		t.Error("Load() found = true for missing file, want false")
	}
}

func TestLoad_CorruptFileResets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	var got testDoc
	found, err := Load(path, &got)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil for corrupt file", err)
	}
	if found {
		t.Error("Load() found = true for corrupt file, want false")
	}
}

func TestSave_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")

	if err := Save(path, testDoc{Name: "a"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := Save(path, testDoc{Name: "b"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("dir has %d entries after two saves, want 1", len(entries))
	}
}
