package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Queue.MaxConcurrent != 3 {
		t.Errorf("Queue.MaxConcurrent = %d, want 3", cfg.Queue.MaxConcurrent)
	}
	if cfg.Worker.Command != "claude" {
		t.Errorf("Worker.Command = %q, want claude", cfg.Worker.Command)
	}
	if cfg.Worker.Timeout != 30*time.Minute {
		t.Errorf("Worker.Timeout = %v, want 30m", cfg.Worker.Timeout)
	}
	if cfg.Backlog.TickInterval != 60*time.Second {
		t.Errorf("Backlog.TickInterval = %v, want 60s", cfg.Backlog.TickInterval)
	}
	if cfg.Bridge.Enabled {
		t.Error("Bridge.Enabled = true by default, want false")
	}
}

func TestLoad_ProjectOverride(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	projectRoot := t.TempDir()
	override := filepath.Join(projectRoot, ".overseer.yaml")
	content := "queue:\n  max_concurrent: 7\nworker:\n  command: codex\n"
	if err := os.WriteFile(override, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(projectRoot)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Queue.MaxConcurrent != 7 {
		t.Errorf("Queue.MaxConcurrent = %d, want 7 from override", cfg.Queue.MaxConcurrent)
	}
	if cfg.Worker.Command != "codex" {
		t.Errorf("Worker.Command = %q, want codex from override", cfg.Worker.Command)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Worker: WorkerConfig{Command: "claude"},
			Queue:  QueueConfig{MaxConcurrent: 1},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"zero max concurrent", func(c *Config) { c.Queue.MaxConcurrent = 0 }, true},
		{"empty worker command", func(c *Config) { c.Worker.Command = "" }, true},
		{"negative retries", func(c *Config) { c.Worker.MaxRetries = -1 }, true},
		{"bridge enabled without token", func(c *Config) { c.Bridge.Enabled = true }, true},
		{"bridge enabled with token", func(c *Config) {
			c.Bridge.Enabled = true
			c.Bridge.Token = "secret"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
