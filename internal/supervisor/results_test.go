package supervisor

import (
	"reflect"
	"testing"
)

func TestMarkerExtractor_Extract(t *testing.T) {
	e := NewMarkerExtractor()

	tests := []struct {
		name        string
		output      string
		wantSummary string
		wantFiles   []string
	}{
		{
			name:        "summary marker",
			output:      "working...\nsummary: refactored the parser\n",
			wantSummary: "refactored the parser",
		},
		{
			name:        "done marker",
			output:      "done: added tests\n",
			wantSummary: "added tests",
		},
		{
			name:        "last marker wins",
			output:      "summary: partial\nmore work\nsummary: final state\n",
			wantSummary: "final state",
		},
		{
			name:        "fallback to trailing lines",
			output:      "line one\nline two\nline three\nline four\n",
			wantSummary: "line two line three line four",
		},
		{
			name:        "modified file announcements",
			output:      "Modified internal/queue/queue.go\nsummary: fixed promotion\nupdated pkg/models/task.go again",
			wantSummary: "fixed promotion",
			wantFiles:   []string{"internal/queue/queue.go", "pkg/models/task.go"},
		},
		{
			name:        "duplicate files collapsed",
			output:      "edited a/b.go\nedited a/b.go\nsummary: ok",
			wantSummary: "ok",
			wantFiles:   []string{"a/b.go"},
		},
		{
			name:        "empty output",
			output:      "\n\n",
			wantSummary: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary, files := e.Extract(tt.output)
			if summary != tt.wantSummary {
				t.Errorf("summary = %q, want %q", summary, tt.wantSummary)
			}
			if !reflect.DeepEqual(files, tt.wantFiles) {
				t.Errorf("files = %v, want %v", files, tt.wantFiles)
			}
		})
	}
}
