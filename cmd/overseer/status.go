package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/opspilot/overseer/internal/store"
	"github.com/opspilot/overseer/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue, backlog and plan state",
	Long: `Display the persisted state of this node: queued and active tasks, backlog
items, and the current plan if one exists. Reads the snapshot files directly,
so it works whether or not the daemon is running.`,
	RunE: runStatus,
}

// queueSnapshot mirrors the task queue's persisted form.
type queueSnapshot struct {
	Pending []*models.Task `json:"pending"`
	Active  []*models.Task `json:"active"`
	Archive []*models.Task `json:"archive"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	bold := color.New(color.Bold).SprintFunc()

	var qs queueSnapshot
	found, err := store.Load(cfg.Paths.QueuePath(), &qs)
	if err != nil {
		return fmt.Errorf("read queue snapshot: %w", err)
	}
	fmt.Printf("%s  active %d, pending %d, archived %d\n",
		bold("Queue"), len(qs.Active), len(qs.Pending), len(qs.Archive))
	if found {
		for _, t := range qs.Active {
			fmt.Printf("  %s [%s] %s (agent %s)\n", color.YellowString("active"), t.Project, t.Description, t.AgentID)
		}
		for _, t := range qs.Pending {
			fmt.Printf("  queued [%s] %s\n", t.Project, t.Description)
		}
	}

	var items []*models.BacklogItem
	if _, err := store.Load(cfg.Paths.BacklogPath(), &items); err != nil {
		return fmt.Errorf("read backlog snapshot: %w", err)
	}
	var pending, running int
	for _, item := range items {
		switch item.Status {
		case models.BacklogStatusPending:
			pending++
		case models.BacklogStatusRunning:
			running++
		}
	}
	fmt.Printf("%s  running %d, pending %d\n", bold("Backlog"), running, pending)

	var p models.Plan
	if found, err := store.Load(cfg.Paths.PlanPath(), &p); err == nil && found {
		done, failed, total := 0, 0, 0
		for _, phase := range p.Phases {
			for _, task := range phase.Tasks {
				total++
				switch task.Status {
				case models.PlanTaskCompleted:
					done++
				case models.PlanTaskFailed:
					failed++
				}
			}
		}
		fmt.Printf("%s  [%s] %s: %d/%d done, %d failed\n",
			bold("Plan"), p.Status, p.Goal, done, total, failed)
	}
	return nil
}
