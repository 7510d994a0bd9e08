package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/opspilot/overseer/pkg/models"
)

const planSystemPrompt = `You decompose engineering goals into phased execution
plans for parallel coding agents. Respond with JSON only, no prose, matching:
{
  "goal": "...",
  "phases": [
    {
      "name": "...",
      "parallel": true,
      "tasks": [
        {
          "title": "...",
          "brief": "...",
          "files_owned": ["path/one.go"],
          "files_read": ["path/other.go"],
          "acceptance_criteria": ["..."]
        }
      ]
    }
  ]
}
Tasks in a parallel phase run simultaneously, so no two tasks in the same
phase may own the same file, and no file may be owned by more than one task
anywhere in the plan. Put dependent work in later phases.`

// ModelPlanner proposes phased plans by asking the configured model to
// decompose a goal against a listing of the project's files.
type ModelPlanner struct {
	client *Client
}

// NewModelPlanner creates a plan proposer backed by the given client.
func NewModelPlanner(client *Client) *ModelPlanner {
	return &ModelPlanner{client: client}
}

// ProposePlan asks the model for a phased decomposition of goal.
func (p *ModelPlanner) ProposePlan(ctx context.Context, goal, fileListing string) (*models.Plan, error) {
	prompt := fmt.Sprintf("Goal: %s\n\nProject files:\n%s\n\nProduce the plan JSON.", goal, fileListing)
	raw, err := p.client.complete(ctx, planSystemPrompt, prompt, 8192)
	if err != nil {
		return nil, fmt.Errorf("proposing plan: %w", err)
	}
	plan, err := ParsePlan(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing proposed plan: %w", err)
	}
	if plan.Goal == "" {
		plan.Goal = goal
	}
	return plan, nil
}

// planDoc mirrors the JSON shape the planner prompt requests.
type planDoc struct {
	Goal   string `json:"goal"`
	Phases []struct {
		Name     string `json:"name"`
		Parallel bool   `json:"parallel"`
		Tasks    []struct {
			Title              string   `json:"title"`
			Brief              string   `json:"brief"`
			FilesOwned         []string `json:"files_owned"`
			FilesRead          []string `json:"files_read"`
			AcceptanceCriteria []string `json:"acceptance_criteria"`
		} `json:"tasks"`
	} `json:"phases"`
}

// ParsePlan extracts and decodes a plan from raw model output. Models often
// wrap JSON in markdown fences or preamble text, so parsing starts at the
// first opening brace and ends at the last closing one.
func ParsePlan(raw string) (*models.Plan, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object found in output")
	}

	var doc planDoc
	if err := json.Unmarshal([]byte(raw[start:end+1]), &doc); err != nil {
		return nil, fmt.Errorf("decoding plan JSON: %w", err)
	}
	if len(doc.Phases) == 0 {
		return nil, fmt.Errorf("plan has no phases")
	}

	plan := &models.Plan{Goal: doc.Goal}
	for i, ph := range doc.Phases {
		phase := &models.Phase{
			Index:    i,
			Name:     ph.Name,
			Parallel: ph.Parallel,
		}
		for _, t := range ph.Tasks {
			phase.Tasks = append(phase.Tasks, &models.PlanTask{
				Title:              t.Title,
				Brief:              t.Brief,
				FilesOwned:         t.FilesOwned,
				FilesRead:          t.FilesRead,
				AcceptanceCriteria: t.AcceptanceCriteria,
			})
		}
		plan.Phases = append(plan.Phases, phase)
	}
	return plan, nil
}

// StaticPlanner is the deterministic fallback used without API credentials.
// It wraps the whole goal into a single serial phase with one task.
type StaticPlanner struct{}

// ProposePlan returns a one-phase, one-task plan for goal.
func (StaticPlanner) ProposePlan(_ context.Context, goal, _ string) (*models.Plan, error) {
	return &models.Plan{
		Goal: goal,
		Phases: []*models.Phase{
			{
				Index:    0,
				Name:     "execute",
				Parallel: false,
				Tasks: []*models.PlanTask{
					{
						Title: goal,
						Brief: goal,
					},
				},
			},
		},
	}, nil
}
