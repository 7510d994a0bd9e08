// Package config handles configuration loading for overseer.
// It supports XDG config paths, project-level overrides, and environment
// variables with the OVERSEER_ prefix.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for overseer.
type Config struct {
	Worker        WorkerConfig        `mapstructure:"worker"`
	Queue         QueueConfig         `mapstructure:"queue"`
	Backlog       BacklogConfig       `mapstructure:"backlog"`
	Plan          PlanConfig          `mapstructure:"plan"`
	Bridge        BridgeConfig        `mapstructure:"bridge"`
	Collaborators CollaboratorsConfig `mapstructure:"collaborators"`
	Paths         PathsConfig         `mapstructure:"paths"`
}

// WorkerConfig holds settings for the spawned worker processes.
type WorkerConfig struct {
	// Command is the worker executable, looked up on PATH.
	Command string `mapstructure:"command"`
	// Args are extra arguments passed to every worker invocation.
	Args []string `mapstructure:"args"`
	// Timeout force-terminates a worker running longer than this.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxRetries bounds automatic respawns after a failure.
	MaxRetries int `mapstructure:"max_retries"`
	// GracePeriod is how long Terminate waits between SIGTERM and SIGKILL.
	GracePeriod time.Duration `mapstructure:"grace_period"`
}

// QueueConfig holds task-queue settings.
type QueueConfig struct {
	// MaxConcurrent is the number of tasks allowed to be active at once.
	MaxConcurrent int `mapstructure:"max_concurrent"`
	// ArchiveCap bounds the completed/failed archive length.
	ArchiveCap int `mapstructure:"archive_cap"`
}

// BacklogConfig holds continuous-backlog settings.
type BacklogConfig struct {
	// TickInterval is how often the dispatcher checks for free capacity.
	TickInterval time.Duration `mapstructure:"tick_interval"`
	// SessionLogCap bounds the in-memory session log length.
	SessionLogCap int `mapstructure:"session_log_cap"`
	// ReportLookback is the morning-report window.
	ReportLookback time.Duration `mapstructure:"report_lookback"`
}

// PlanConfig holds phased-plan settings.
type PlanConfig struct {
	// PollInterval is how often outstanding plan tasks are checked.
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// BridgeConfig holds coordinator/worker channel settings.
type BridgeConfig struct {
	// Enabled turns the bridge on.
	Enabled bool `mapstructure:"enabled"`
	// ListenAddr is the coordinator's accept address.
	ListenAddr string `mapstructure:"listen_addr"`
	// ConnectAddr is the address a worker node dials.
	ConnectAddr string `mapstructure:"connect_addr"`
	// Token is the shared bearer token for the auth handshake.
	Token string `mapstructure:"token"`
	// HeartbeatInterval is the fixed liveness-message interval.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	// AuthTimeout bounds how long the server waits for the auth message.
	AuthTimeout time.Duration `mapstructure:"auth_timeout"`
}

// CollaboratorsConfig holds settings for the external brief/plan collaborators.
type CollaboratorsConfig struct {
	// APIKey is the Anthropic API key. If empty, ANTHROPIC_API_KEY is used.
	APIKey string `mapstructure:"api_key"`
	// Model is the model used for brief generation and plan proposals.
	Model string `mapstructure:"model"`
	// UseAWSBedrock routes API calls through AWS Bedrock.
	UseAWSBedrock bool `mapstructure:"use_aws_bedrock"`
	// AWSRegion is the Bedrock region.
	AWSRegion string `mapstructure:"aws_region"`
	// AWSProfile is the optional AWS profile name.
	AWSProfile string `mapstructure:"aws_profile"`
	// Registry is the path to the projects.yaml registry file.
	Registry string `mapstructure:"registry"`
}

// PathsConfig holds durable-state file locations.
type PathsConfig struct {
	// DataDir is the root directory for all overseer state.
	DataDir string `mapstructure:"data_dir"`
	// InboxDir is the watched drop directory for task files.
	InboxDir string `mapstructure:"inbox_dir"`
}

// QueuePath returns the task-queue snapshot location.
func (p PathsConfig) QueuePath() string { return filepath.Join(p.DataDir, "queue.json") }

// BacklogPath returns the backlog snapshot location.
func (p PathsConfig) BacklogPath() string { return filepath.Join(p.DataDir, "backlog.json") }

// PlanPath returns the current-plan snapshot location.
func (p PathsConfig) PlanPath() string { return filepath.Join(p.DataDir, "plan.json") }

// RunIndexPath returns the run-index snapshot location.
func (p PathsConfig) RunIndexPath() string { return filepath.Join(p.DataDir, "runs.json") }

// HistoryDBPath returns the sqlite run-history location.
func (p PathsConfig) HistoryDBPath() string { return filepath.Join(p.DataDir, "history.db") }

// LogDir returns the per-agent output log directory.
func (p PathsConfig) LogDir() string { return filepath.Join(p.DataDir, "logs") }

// DefaultDataDir returns the XDG data directory for overseer state.
func DefaultDataDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "overseer")
}

// DefaultConfigDir returns the XDG config directory for overseer.
func DefaultConfigDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "overseer")
}

// setDefaults registers default values on the given viper instance.
func setDefaults(v *viper.Viper) {
	v.SetDefault("worker.command", "claude")
	v.SetDefault("worker.timeout", 30*time.Minute)
	v.SetDefault("worker.max_retries", 2)
	v.SetDefault("worker.grace_period", 10*time.Second)

	v.SetDefault("queue.max_concurrent", 3)
	v.SetDefault("queue.archive_cap", 100)

	v.SetDefault("backlog.tick_interval", 60*time.Second)
	v.SetDefault("backlog.session_log_cap", 50)
	v.SetDefault("backlog.report_lookback", 16*time.Hour)

	v.SetDefault("plan.poll_interval", 30*time.Second)

	v.SetDefault("bridge.enabled", false)
	v.SetDefault("bridge.listen_addr", "127.0.0.1:7433")
	v.SetDefault("bridge.connect_addr", "127.0.0.1:7433")
	v.SetDefault("bridge.heartbeat_interval", 15*time.Second)
	v.SetDefault("bridge.auth_timeout", 5*time.Second)

	v.SetDefault("collaborators.model", "claude-sonnet-4-20250514")

	v.SetDefault("paths.data_dir", DefaultDataDir())
}

// Load reads configuration from the XDG config file, an optional
// project-level .overseer.yaml override, and OVERSEER_-prefixed environment
// variables, in increasing precedence.
func Load(projectRoot string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(DefaultConfigDir())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if projectRoot != "" {
		override := filepath.Join(projectRoot, ".overseer.yaml")
		if _, err := os.Stat(override); err == nil {
			v.SetConfigFile(override)
			if err := v.MergeInConfig(); err != nil {
				return nil, fmt.Errorf("merge project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("OVERSEER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks invariants the rest of the system relies on.
func (c *Config) Validate() error {
	if c.Queue.MaxConcurrent < 1 {
		return fmt.Errorf("queue.max_concurrent must be at least 1, got %d", c.Queue.MaxConcurrent)
	}
	if c.Worker.Command == "" {
		return fmt.Errorf("worker.command must not be empty")
	}
	if c.Worker.MaxRetries < 0 {
		return fmt.Errorf("worker.max_retries must not be negative, got %d", c.Worker.MaxRetries)
	}
	if c.Bridge.Enabled && c.Bridge.Token == "" {
		return fmt.Errorf("bridge.token is required when the bridge is enabled")
	}
	return nil
}
