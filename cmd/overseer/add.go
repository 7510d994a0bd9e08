package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/opspilot/overseer/internal/inbox"
	"github.com/opspilot/overseer/internal/store"
)

var (
	addProject  string
	addPriority int
)

var addCmd = &cobra.Command{
	Use:   "add <description>",
	Short: "Queue a task for the running daemon",
	Long: `Drop a task file into the inbox directory. The serve daemon picks it up,
admits it to the queue or parks it in the backlog, and runs it when a slot
is free. Works whether or not the daemon is currently running: pending
drops are drained on its next start.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAdd,
}

func init() {
	addCmd.Flags().StringVarP(&addProject, "project", "p", "", "project the task belongs to")
	addCmd.Flags().IntVar(&addPriority, "priority", 0, "dispatch priority (higher first)")
}

func runAdd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	task := inbox.DroppedTask{
		Description: strings.Join(args, " "),
		Project:     addProject,
		Priority:    addPriority,
	}
	path := filepath.Join(inboxDir(cfg), uuid.New().String()[:8]+".task.json")
	if err := store.Save(path, task); err != nil {
		return fmt.Errorf("drop task file: %w", err)
	}
	fmt.Printf("queued: %s\n", task.Description)
	return nil
}
