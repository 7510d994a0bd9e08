package plan

import (
	"fmt"
	"strings"

	"github.com/opspilot/overseer/pkg/models"
)

// buildBrief assembles the worker brief for one plan task: the plan goal,
// the current phase, the task's own instructions and file lists, the
// off-limits list (every file owned by any other task in the whole plan),
// and a digest of prior-phase outcomes so later phases build on earlier ones
// without re-reading full diffs.
func buildBrief(p *models.Plan, phase *models.Phase, task *models.PlanTask, outcomes []outcome) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Goal: %s\n\n", p.Goal)
	fmt.Fprintf(&sb, "Current phase: %s\n\n", phase.Name)
	fmt.Fprintf(&sb, "Your task: %s\n%s\n", task.Title, task.Brief)
	if len(task.AcceptanceCriteria) > 0 {
		fmt.Fprintf(&sb, "\nAcceptance criteria:\n")
		for _, c := range task.AcceptanceCriteria {
			fmt.Fprintf(&sb, "  - %s\n", c)
		}
	}

	if len(task.FilesOwned) > 0 {
		fmt.Fprintf(&sb, "\nFiles you own and may modify:\n")
		for _, f := range task.FilesOwned {
			fmt.Fprintf(&sb, "  - %s\n", f)
		}
	}
	if len(task.FilesRead) > 0 {
		fmt.Fprintf(&sb, "\nFiles you may read but not modify:\n")
		for _, f := range task.FilesRead {
			fmt.Fprintf(&sb, "  - %s\n", f)
		}
	}

	offLimits := offLimitsFor(p, task)
	if len(offLimits) > 0 {
		fmt.Fprintf(&sb, "\nOff-limits files (owned by other tasks, do not touch):\n")
		for _, f := range offLimits {
			fmt.Fprintf(&sb, "  - %s\n", f)
		}
	}

	if len(outcomes) > 0 {
		fmt.Fprintf(&sb, "\nOutcomes from earlier phases:\n")
		for _, o := range outcomes {
			fmt.Fprintf(&sb, "  - %s: %s\n", o.title, o.result)
		}
	}

	sb.WriteString("\nWhen finished, print a line starting with \"summary:\" describing what you did.\n")
	return sb.String()
}

// outcome is one prior task's rendered result.
type outcome struct {
	title  string
	result string
}

// offLimitsFor returns every file owned by any task other than the given
// one, in plan order.
func offLimitsFor(p *models.Plan, task *models.PlanTask) []string {
	var out []string
	for _, phase := range p.Phases {
		for _, other := range phase.Tasks {
			if other.ID == task.ID {
				continue
			}
			out = append(out, other.FilesOwned...)
		}
	}
	return out
}
