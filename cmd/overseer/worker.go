package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opspilot/overseer/internal/bridge"
	"github.com/opspilot/overseer/internal/orchestrator"
	"github.com/opspilot/overseer/internal/supervisor"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a worker node",
	Long: `Connect to a coordinator's bridge and accept overflow task dispatches,
running them on a local process supervisor. Reconnects automatically with
backoff when the coordinator goes away.`,
	RunE: runWorker,
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := CheckWorkerCLI(cfg); err != nil {
		return err
	}
	if cfg.Bridge.ConnectAddr == "" {
		return fmt.Errorf("bridge.connect_addr is required for worker mode")
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

	cli, err := bridge.NewClient(bridge.ClientConfig{
		ConnectAddr:       cfg.Bridge.ConnectAddr,
		Token:             cfg.Bridge.Token,
		AuthTimeout:       cfg.Bridge.AuthTimeout,
		HeartbeatInterval: cfg.Bridge.HeartbeatInterval,
	})
	if err != nil {
		return fmt.Errorf("configure bridge client: %w", err)
	}

	_, resolver, _ := buildCollaborators(cfg)
	worker, err := orchestrator.NewWorker(orchestrator.WorkerConfig{
		Peer:          cli,
		Sup:           sup,
		Resolver:      resolver,
		MaxConcurrent: cfg.Queue.MaxConcurrent,
	})
	if err != nil {
		return err
	}

	worker.Start()
	defer worker.Stop()
	cli.Start()
	defer cli.Stop()

	log.Printf("[cli] worker node linked to %s", cfg.Bridge.ConnectAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("[cli] received %s, shutting down", sig)
	return nil
}
