package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/opspilot/overseer/internal/config"
)

// CheckWorkerCLI verifies that the configured worker command is available in
// PATH. Returns an error with installation instructions if not found.
func CheckWorkerCLI(cfg *config.Config) error {
	_, err := exec.LookPath(cfg.Worker.Command)
	if err != nil {
		return fmt.Errorf("worker command %q not found in PATH\n\n"+
			"Overseer drives an external coding-agent CLI for every task.\n\n"+
			"If you use Claude Code, install it with:\n"+
			"  npm install -g @anthropic-ai/claude-code\n\n"+
			"or point worker.command at another agent CLI in your config",
			cfg.Worker.Command)
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:   "overseer",
	Short: "Autonomous coding-agent pool orchestrator",
	Long: `Overseer runs pools of external coding-agent worker processes against a
persistent task queue, a continuous backlog, and phased execution plans.

A coordinator node admits and supervises tasks; an optional worker node
accepts overflow work over an authenticated bridge. All state survives
restarts: queued tasks are requeued, running work is never reported
active across a restart.

Core capabilities:
- Admission-controlled task queue with FIFO promotion
- Supervised worker processes with bounded automatic retry
- Priority-ordered backlog drained one task per project
- Phased plans with explicit file ownership for safe parallelism
- Remote task delegation with explicit capacity rejection`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads configuration against the current working directory so a
// project-local .overseer.yaml is honored.
func loadConfig() (*config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	cfg, err := config.Load(cwd)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
