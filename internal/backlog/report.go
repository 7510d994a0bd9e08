package backlog

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/opspilot/overseer/pkg/models"
)

// MorningReport renders a human summary of backlog activity inside the
// lookback window. It is a read-only projection; nothing is mutated.
func (b *Backlog) MorningReport(lookback time.Duration) string {
	return Report(b.Items(), lookback)
}

// Report renders the morning report for an item list. Split out so a CLI can
// report straight from a snapshot file without constructing a Backlog.
func Report(items []*models.BacklogItem, lookback time.Duration) string {
	cutoff := time.Now().Add(-lookback)

	var completed, failed []*models.BacklogItem
	pending := 0
	for _, item := range items {
		switch item.Status {
		case models.BacklogStatusPending:
			pending++
		case models.BacklogStatusCompleted:
			if item.CompletedAt != nil && item.CompletedAt.After(cutoff) {
				completed = append(completed, item)
			}
		case models.BacklogStatusFailed:
			if item.CompletedAt != nil && item.CompletedAt.After(cutoff) {
				failed = append(failed, item)
			}
		}
	}

	bold := color.New(color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (last %s)\n\n", bold("Backlog report"), lookback)

	if len(completed) == 0 && len(failed) == 0 {
		sb.WriteString("Nothing finished in this window.\n")
	}
	if len(completed) > 0 {
		fmt.Fprintf(&sb, "%s\n", green(fmt.Sprintf("Completed (%d)", len(completed))))
		for _, item := range completed {
			fmt.Fprintf(&sb, "  - [%s] %s\n", item.Project, item.Description)
			if item.Result != "" {
				fmt.Fprintf(&sb, "    %s\n", firstLine(item.Result))
			}
		}
	}
	if len(failed) > 0 {
		fmt.Fprintf(&sb, "%s\n", red(fmt.Sprintf("Failed (%d)", len(failed))))
		for _, item := range failed {
			fmt.Fprintf(&sb, "  - [%s] %s: %s\n", item.Project, item.Description, firstLine(item.Result))
		}
	}
	fmt.Fprintf(&sb, "\n%d item(s) still pending.\n", pending)
	return sb.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
