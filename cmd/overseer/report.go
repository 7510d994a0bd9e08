package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/opspilot/overseer/internal/backlog"
	"github.com/opspilot/overseer/internal/store"
	"github.com/opspilot/overseer/pkg/models"
)

var reportLookback time.Duration

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the morning report",
	Long: `Summarize backlog activity inside the lookback window: what finished, what
failed, and what is still waiting. Reads the snapshot file directly.`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().DurationVar(&reportLookback, "lookback", 0, "reporting window (defaults to backlog.report_lookback)")
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	lookback := reportLookback
	if lookback <= 0 {
		lookback = cfg.Backlog.ReportLookback
	}

	var items []*models.BacklogItem
	if _, err := store.Load(cfg.Paths.BacklogPath(), &items); err != nil {
		return fmt.Errorf("read backlog snapshot: %w", err)
	}
	fmt.Print(backlog.Report(items, lookback))
	return nil
}
