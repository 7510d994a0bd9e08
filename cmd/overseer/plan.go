package main

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/opspilot/overseer/internal/plan"
	"github.com/opspilot/overseer/internal/supervisor"
	"github.com/opspilot/overseer/pkg/models"
)

var (
	planProject string
	planResume  bool
)

var planCmd = &cobra.Command{
	Use:   "plan <goal>",
	Short: "Decompose a goal into phases and execute it",
	Long: `Propose a phased plan for the goal, validate its file ownership, and
execute it phase by phase: parallel phases spawn every task at once, serial
phases one at a time. A failed task never halts the plan; partial progress
is kept. The plan snapshot survives crashes; use --resume to pick up where
a previous run stopped.`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&planProject, "project", "p", "", "project to plan against")
	planCmd.Flags().BoolVar(&planResume, "resume", false, "resume the persisted plan snapshot")
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := CheckWorkerCLI(cfg); err != nil {
		return err
	}
	if !planResume && len(args) == 0 {
		return fmt.Errorf("a goal is required unless --resume is given")
	}

	sup, err := supervisor.New(supervisor.Options{
		Command:     cfg.Worker.Command,
		Args:        cfg.Worker.Args,
		Timeout:     cfg.Worker.Timeout,
		MaxRetries:  cfg.Worker.MaxRetries,
		GracePeriod: cfg.Worker.GracePeriod,
		LogDir:      cfg.Paths.LogDir(),
	})
	if err != nil {
		return fmt.Errorf("start supervisor: %w", err)
	}
	defer sup.Shutdown()

	_, resolver, proposer := buildCollaborators(cfg)
	workingDir := ""
	if planProject != "" {
		if dir, ok := resolver.ResolveProject(planProject, ""); ok {
			workingDir = dir
		} else {
			return fmt.Errorf("unknown project %q", planProject)
		}
	}

	exec := plan.NewExecutor(sup, cfg.Paths.PlanPath(), cfg.Plan.PollInterval)
	exec.SetOnOutcome(printOutcome)

	var p *models.Plan
	if planResume {
		p, err = exec.Resume(workingDir)
	} else {
		goal := strings.Join(args, " ")
		p, err = exec.Run(context.Background(), proposer, goal, planProject, workingDir, fileListing(workingDir))
	}
	if err != nil {
		return err
	}

	printPlanSummary(p)
	return nil
}

func printOutcome(out plan.TaskOutcome) {
	if out.Task.Status == models.PlanTaskCompleted {
		fmt.Printf("%s %s: %s\n", color.GreenString("done"), out.Task.Title, firstLine(out.Task.Result))
		return
	}
	fmt.Printf("%s %s: %s\n", color.RedString("failed"), out.Task.Title, firstLine(out.Task.Result))
}

func printPlanSummary(p *models.Plan) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Printf("\n%s [%s] %s\n", bold("Plan"), p.Status, p.Goal)
	for _, phase := range p.Phases {
		mode := "serial"
		if phase.Parallel {
			mode = "parallel"
		}
		fmt.Printf("  phase %d %s (%s)\n", phase.Index+1, phase.Name, mode)
		for _, task := range phase.Tasks {
			fmt.Printf("    [%s] %s\n", task.Status, task.Title)
		}
	}
}

// fileListing renders a bounded relative-path listing of the working
// directory for the plan proposer. Vendored and VCS trees are skipped.
func fileListing(dir string) string {
	if dir == "" {
		return ""
	}
	const maxFiles = 500
	var files []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if name == ".git" || name == "node_modules" || name == "vendor" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, rerr := filepath.Rel(dir, path)
		if rerr != nil {
			return nil
		}
		files = append(files, rel)
		if len(files) >= maxFiles {
			return fs.SkipAll
		}
		return nil
	})
	return strings.Join(files, "\n")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
