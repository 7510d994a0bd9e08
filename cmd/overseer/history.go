package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/opspilot/overseer/internal/history"
	"github.com/opspilot/overseer/internal/runindex"
	"github.com/opspilot/overseer/pkg/models"
)

var (
	historyLimit int
	historyPrune time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history [query]",
	Short: "Search past runs",
	Long: `Search the run archive by description, project or summary. Without a
query, the most recent runs are listed. The archive keeps every run; the
bounded run index only keeps the newest entries.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum rows to print")
	historyCmd.Flags().DurationVar(&historyPrune, "prune-older-than", 0, "delete runs older than this and exit")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := history.Open(cfg.Paths.HistoryDBPath())
	if err != nil {
		// No archive yet; fall back to the bounded index.
		return printRunIndex(cfg.Paths.RunIndexPath(), strings.Join(args, " "))
	}
	defer db.Close()

	if historyPrune > 0 {
		removed, err := db.PruneOlderThan(time.Now().Add(-historyPrune))
		if err != nil {
			return err
		}
		fmt.Printf("pruned %d run(s)\n", removed)
		return nil
	}

	runs, err := db.SearchRuns(strings.Join(args, " "), historyLimit)
	if err != nil {
		return err
	}
	printRuns(runs)
	return nil
}

func printRunIndex(path, query string) error {
	idx, err := runindex.New(path, runindex.DefaultMaxEntries)
	if err != nil {
		return err
	}
	if query == "" {
		printRuns(idx.Recent(historyLimit))
		return nil
	}
	printRuns(idx.Search(query))
	return nil
}

func printRuns(runs []models.RunRecord) {
	if len(runs) == 0 {
		fmt.Println("no matching runs")
		return
	}
	for _, r := range runs {
		line := r.Summary
		if line == "" {
			line = "(no summary)"
		}
		fmt.Printf("%s  %-9s [%s] %s\n    %s\n",
			r.FinishedAt.Format("2006-01-02 15:04"), r.Status, r.Project, r.Description, line)
	}
}
