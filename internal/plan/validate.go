// Package plan implements phased multi-agent plan execution with explicit
// file ownership.
package plan

import (
	"fmt"

	"github.com/opspilot/overseer/pkg/models"
)

// Validate checks a proposed plan before execution. File ownership is the
// mechanism that makes same-phase parallelism safe, so every owned path must
// be owned by exactly one task across the entire plan.
func Validate(p *models.Plan) error {
	if p.Goal == "" {
		return fmt.Errorf("plan has no goal")
	}
	if len(p.Phases) == 0 {
		return fmt.Errorf("plan has no phases")
	}

	type owner struct {
		phase int
		task  string
	}
	owners := make(map[string]owner)

	for pi, phase := range p.Phases {
		if len(phase.Tasks) == 0 {
			return fmt.Errorf("phase %d (%s) has no tasks", pi, phase.Name)
		}
		for _, task := range phase.Tasks {
			if task.ID == "" {
				return fmt.Errorf("phase %d (%s) contains a task with no ID", pi, phase.Name)
			}
			for _, path := range task.FilesOwned {
				if prev, taken := owners[path]; taken {
					if prev.phase == pi {
						return fmt.Errorf("phase %d (%s): tasks %s and %s both own %s",
							pi, phase.Name, prev.task, task.ID, path)
					}
					return fmt.Errorf("file %s owned by task %s (phase %d) and task %s (phase %d)",
						path, prev.task, prev.phase, task.ID, pi)
				}
				owners[path] = owner{phase: pi, task: task.ID}
			}
		}
	}
	return nil
}
