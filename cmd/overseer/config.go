package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opspilot/overseer/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show effective configuration",
	Long: `Print the effective configuration after defaults, the user config file,
any project-local .overseer.yaml, and OVERSEER_* environment overrides.

Configuration is stored at ` + "`" + `~/.config/overseer/config.yaml` + "`" + `.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		displayConfig(cfg)
		return nil
	},
}

func displayConfig(cfg *config.Config) {
	apiKey := "(not set)"
	if cfg.Collaborators.APIKey != "" {
		apiKey = "****"
	}
	token := "(not set)"
	if cfg.Bridge.Token != "" {
		token = "****"
	}

	fmt.Printf("worker.command: %s\n", cfg.Worker.Command)
	fmt.Printf("worker.args: %s\n", strings.Join(cfg.Worker.Args, " "))
	fmt.Printf("worker.timeout: %s\n", cfg.Worker.Timeout)
	fmt.Printf("worker.max_retries: %d\n", cfg.Worker.MaxRetries)
	fmt.Printf("worker.grace_period: %s\n", cfg.Worker.GracePeriod)
	fmt.Printf("queue.max_concurrent: %d\n", cfg.Queue.MaxConcurrent)
	fmt.Printf("queue.archive_cap: %d\n", cfg.Queue.ArchiveCap)
	fmt.Printf("backlog.tick_interval: %s\n", cfg.Backlog.TickInterval)
	fmt.Printf("backlog.report_lookback: %s\n", cfg.Backlog.ReportLookback)
	fmt.Printf("plan.poll_interval: %s\n", cfg.Plan.PollInterval)
	fmt.Printf("bridge.enabled: %t\n", cfg.Bridge.Enabled)
	fmt.Printf("bridge.listen_addr: %s\n", cfg.Bridge.ListenAddr)
	fmt.Printf("bridge.connect_addr: %s\n", cfg.Bridge.ConnectAddr)
	fmt.Printf("bridge.token: %s\n", token)
	fmt.Printf("bridge.heartbeat_interval: %s\n", cfg.Bridge.HeartbeatInterval)
	fmt.Printf("collaborators.api_key: %s\n", apiKey)
	fmt.Printf("collaborators.model: %s\n", cfg.Collaborators.Model)
	fmt.Printf("collaborators.use_aws_bedrock: %t\n", cfg.Collaborators.UseAWSBedrock)
	fmt.Printf("paths.data_dir: %s\n", cfg.Paths.DataDir)
	fmt.Printf("paths.inbox_dir: %s\n", inboxDir(cfg))
}
