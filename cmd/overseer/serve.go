package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/opspilot/overseer/internal/backlog"
	"github.com/opspilot/overseer/internal/bridge"
	"github.com/opspilot/overseer/internal/config"
	"github.com/opspilot/overseer/internal/history"
	"github.com/opspilot/overseer/internal/inbox"
	"github.com/opspilot/overseer/internal/orchestrator"
	"github.com/opspilot/overseer/internal/queue"
	"github.com/opspilot/overseer/internal/runindex"
	"github.com/opspilot/overseer/internal/supervisor"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the coordinator daemon",
	Long: `Run the coordinator node: the task queue, the process supervisor, the
continuous backlog and the inbox watcher, plus the bridge listener when one
is configured. Stops cleanly on SIGINT/SIGTERM.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := CheckWorkerCLI(cfg); err != nil {
		return err
	}

	q, err := queue.New(cfg.Paths.QueuePath(), cfg.Queue.MaxConcurrent, cfg.Queue.ArchiveCap)
	if err != nil {
		return fmt.Errorf("open task queue: %w", err)
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
	bl, err := backlog.New(cfg.Paths.BacklogPath(), cfg.Backlog.SessionLogCap)
	if err != nil {
		return fmt.Errorf("open backlog: %w", err)
	}
	idx, err := runindex.New(cfg.Paths.RunIndexPath(), runindex.DefaultMaxEntries)
	if err != nil {
		return fmt.Errorf("open run index: %w", err)
	}

	var archive orchestrator.RunArchive
	hist, err := history.Open(cfg.Paths.HistoryDBPath())
	if err != nil {
		log.Printf("[cli] warning: run archive unavailable: %v", err)
	} else {
		archive = hist
		defer hist.Close()
	}

	briefs, resolver, _ := buildCollaborators(cfg)

	var srv *bridge.Server
	var remote orchestrator.Remote
	if cfg.Bridge.Enabled && cfg.Bridge.ListenAddr != "" {
		srv, err = bridge.NewServer(bridge.ServerConfig{
			ListenAddr:        cfg.Bridge.ListenAddr,
			Token:             cfg.Bridge.Token,
			AuthTimeout:       cfg.Bridge.AuthTimeout,
			HeartbeatInterval: cfg.Bridge.HeartbeatInterval,
		})
		if err != nil {
			return fmt.Errorf("configure bridge: %w", err)
		}
		if err := srv.Start(); err != nil {
			return fmt.Errorf("start bridge listener: %w", err)
		}
		defer srv.Stop()
		remote = orchestrator.NewBridgeRemote(srv, 10*time.Second)
		log.Printf("[cli] bridge listening on %s", srv.Addr())
	}

	orch, err := orchestrator.New(orchestrator.Deps{
		Queue:    q,
		Sup:      sup,
		Backlog:  bl,
		Briefs:   briefs,
		Resolver: resolver,
		RunIndex: idx,
		Archive:  archive,
		Remote:   remote,
	}, orchestrator.Options{})
	if err != nil {
		return err
	}
	if srv != nil {
		orch.BindRemoteEvents(srv)
		orch.AddNotifier(orchestrator.MemorySyncNotifier(srv))
	}
	orch.AddNotifier(consoleNotifier)

	dispatcher := backlog.NewDispatcher(backlog.DispatcherConfig{
		Backlog:       bl,
		Spawner:       sup,
		Briefs:        briefs,
		Resolver:      resolver,
		MaxConcurrent: cfg.Queue.MaxConcurrent,
		TickInterval:  cfg.Backlog.TickInterval,
		BusyProjects:  q.ActiveProjects,
	})
	orch.SetOnSettled(dispatcher.TryDispatch)

	orch.Start()
	defer orch.Stop()
	dispatcher.Start()
	defer dispatcher.Stop()
	defer sup.Shutdown()

	watcher, err := inbox.NewWatcher(inboxDir(cfg), func(task inbox.DroppedTask) {
		if err := orch.Submit(task.Description, task.Project, task.Priority); err != nil {
			log.Printf("[cli] submitting inbox task: %v", err)
		}
	})
	if err != nil {
		log.Printf("[cli] warning: inbox disabled: %v", err)
	} else {
		defer watcher.Stop()
	}

	log.Printf("[cli] overseer serving, data in %s", cfg.Paths.DataDir)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("[cli] received %s, shutting down", sig)
	return nil
}

// inboxDir resolves the drop directory, defaulting under the data dir.
func inboxDir(cfg *config.Config) string {
	if cfg.Paths.InboxDir != "" {
		return cfg.Paths.InboxDir
	}
	return filepath.Join(cfg.Paths.DataDir, "inbox")
}

// consoleNotifier prints settled runs to the daemon log with color.
func consoleNotifier(n orchestrator.Notification) {
	if n.Success {
		fmt.Printf("%s %s (%s, %ds): %s\n",
			color.GreenString("done"), n.Description, n.AgentID, n.DurationSeconds, n.Summary)
		return
	}
	fmt.Printf("%s %s (%s): %s\n",
		color.RedString("failed"), n.Description, n.AgentID, n.Error)
}
