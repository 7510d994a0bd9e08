package plan

import (
	"strings"
	"testing"

	"github.com/opspilot/overseer/pkg/models"
)

func validPlan() *models.Plan {
	return &models.Plan{
		ID:   "p1",
		Goal: "ship the feature",
		Phases: []*models.Phase{
			{
				Index:    0,
				Name:     "foundations",
				Parallel: true,
				Tasks: []*models.PlanTask{
					{ID: "t1", Title: "models", FilesOwned: []string{"pkg/models/a.go"}},
					{ID: "t2", Title: "store", FilesOwned: []string{"internal/store/b.go"}},
				},
			},
			{
				Index: 1,
				Name:  "wiring",
				Tasks: []*models.PlanTask{
					{ID: "t3", Title: "cli", FilesOwned: []string{"cmd/main.go"}},
				},
			},
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*models.Plan)
		wantErr string
	}{
		{"valid plan", func(p *models.Plan) {}, ""},
		{
			"same-phase ownership overlap",
			func(p *models.Plan) {
				p.Phases[0].Tasks[1].FilesOwned = []string{"pkg/models/a.go"}
			},
			"both own",
		},
		{
			"cross-phase ownership overlap",
			func(p *models.Plan) {
				p.Phases[1].Tasks[0].FilesOwned = []string{"pkg/models/a.go"}
			},
			"owned by task",
		},
		{"no goal", func(p *models.Plan) { p.Goal = "" }, "no goal"},
		{"no phases", func(p *models.Plan) { p.Phases = nil }, "no phases"},
		{
			"empty phase",
			func(p *models.Plan) { p.Phases[1].Tasks = nil },
			"no tasks",
		},
		{
			"task without ID",
			func(p *models.Plan) { p.Phases[0].Tasks[0].ID = "" },
			"no ID",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPlan()
			tt.mutate(p)
			err := Validate(p)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestBuildBrief_OffLimitsAndOutcomes(t *testing.T) {
	p := validPlan()
	phase := p.Phases[1]
	task := phase.Tasks[0]

	brief := buildBrief(p, phase, task, []outcome{
		{title: "models", result: "added the task model"},
	})

	if !strings.Contains(brief, "ship the feature") {
		t.Error("brief missing the plan goal")
	}
	if !strings.Contains(brief, "cmd/main.go") {
		t.Error("brief missing the task's owned file")
	}
	for _, offLimits := range []string{"pkg/models/a.go", "internal/store/b.go"} {
		if !strings.Contains(brief, offLimits) {
			t.Errorf("brief missing off-limits file %s", offLimits)
		}
	}
	if !strings.Contains(brief, "added the task model") {
		t.Error("brief missing the prior-phase outcome digest")
	}
	if !strings.Contains(brief, "summary:") {
		t.Error("brief missing the summary-line instruction")
	}
}
