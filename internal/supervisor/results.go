package supervisor

import (
	"regexp"
	"strings"
)

// ResultExtractor mines a completion summary and a modified-file list from
// raw worker output. Implementations are heuristics over free text, not
// parsers; the seam exists so a structured-output protocol (a worker emitting
// a final JSON block) can replace the mining without touching the
// supervisor's control flow.
type ResultExtractor interface {
	// Extract returns the best-effort summary and modified files.
	Extract(output string) (summary string, modifiedFiles []string)
}

// markerExtractor scans for summary markers and file-edit announcements.
type markerExtractor struct {
	summaryPrefixes []string
	filePatterns    []*regexp.Regexp
}

// NewMarkerExtractor returns the default ResultExtractor. It prefers lines
// prefixed "summary:" or "done:", falls back to the last few non-empty lines,
// and collects file paths from edit/create/update announcements.
func NewMarkerExtractor() ResultExtractor {
	return &markerExtractor{
		summaryPrefixes: []string{"summary:", "done:"},
		filePatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:modified|edited|created|updated|wrote)\s+([\w./-]+\.\w+)`),
			regexp.MustCompile(`(?i)(?:file|path):\s*([\w./-]+\.\w+)`),
		},
	}
}

// fallbackLines is how many trailing non-empty lines stand in for a missing
// summary marker.
const fallbackLines = 3

func (e *markerExtractor) Extract(output string) (string, []string) {
	lines := strings.Split(output, "\n")

	var summary string
	var nonEmpty []string
	seen := make(map[string]bool)
	var files []string

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		nonEmpty = append(nonEmpty, trimmed)

		lower := strings.ToLower(trimmed)
		for _, prefix := range e.summaryPrefixes {
			if strings.HasPrefix(lower, prefix) {
				// Later markers win: the final summary reflects the run.
				summary = strings.TrimSpace(trimmed[len(prefix):])
			}
		}

		for _, pat := range e.filePatterns {
			for _, m := range pat.FindAllStringSubmatch(trimmed, -1) {
				path := m[1]
				if !seen[path] {
					seen[path] = true
					files = append(files, path)
				}
			}
		}
	}

	if summary == "" && len(nonEmpty) > 0 {
		start := len(nonEmpty) - fallbackLines
		if start < 0 {
			start = 0
		}
		summary = strings.Join(nonEmpty[start:], " ")
	}

	return summary, files
}

var _ ResultExtractor = (*markerExtractor)(nil)
