// Package config loads and validates braid workspace configuration from
// .braid/config.json, with environment variable overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds all braid configuration.
type Config struct {
	// Git driver settings.
	Git GitConfig `json:"git"`

	// Execution settings for staged runs.
	Execution ExecutionConfig `json:"execution"`

	// Logging (read separately by internal/logging; kept here so the file
	// round-trips).
	Logging LoggingConfig `json:"logging"`
}

// GitConfig configures the version-control driver.
type GitConfig struct {
	// Backends is the driver chain, tried in order. Valid entries: "gogit",
	// "cli".
	Backends []string `json:"backends"`
}

// ExecutionConfig configures how staged experiments run.
type ExecutionConfig struct {
	// ReproCommand is the external reproduction command run by each worker
	// inside its isolated workspace.
	ReproCommand []string `json:"repro_command"`

	// Parallelism caps concurrent worker processes. 1 means serial.
	Parallelism int `json:"parallelism"`

	// KeepStash keeps failed entries queued after a batch.
	KeepStash bool `json:"keep_stash"`

	// LockFile is the base name of pipeline lock files that must be
	// normalized back to index state during staging.
	LockFile string `json:"lock_file"`

	// WorkerBinary overrides the binary spawned for workers. Defaults to
	// the current executable.
	WorkerBinary string `json:"worker_binary"`
}

// LoggingConfig configures debug logging.
type LoggingConfig struct {
	DebugMode  bool            `json:"debug_mode"`
	Categories map[string]bool `json:"categories"`
	Level      string          `json:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Git: GitConfig{
			Backends: []string{"gogit", "cli"},
		},
		Execution: ExecutionConfig{
			ReproCommand: []string{"make", "repro"},
			Parallelism:  1,
			KeepStash:    true,
			LockFile:     "braid.lock",
		},
		Logging: LoggingConfig{
			Level: "debug",
		},
	}
}

// Load reads .braid/config.json under workspace, falling back to defaults
// when the file is absent, then applies environment overrides.
func Load(workspace string) (*Config, error) {
	cfg := Default()
	path := filepath.Join(workspace, ".braid", "config.json")
	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv applies BRAID_* environment overrides. Only settings that make
// sense to flip per-invocation are exposed.
func (c *Config) applyEnv() {
	if v := os.Getenv("BRAID_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Execution.Parallelism = n
		}
	}
	if v := os.Getenv("BRAID_REPRO_COMMAND"); v != "" {
		c.Execution.ReproCommand = strings.Fields(v)
	}
	if v := os.Getenv("BRAID_GIT_BACKENDS"); v != "" {
		c.Git.Backends = strings.Split(v, ",")
	}
	if v := os.Getenv("BRAID_DEBUG"); v != "" {
		c.Logging.DebugMode = v == "1" || strings.EqualFold(v, "true")
	}
}

func (c *Config) validate() error {
	if len(c.Execution.ReproCommand) == 0 {
		return fmt.Errorf("execution.repro_command must not be empty")
	}
	if c.Execution.Parallelism < 1 {
		return fmt.Errorf("execution.parallelism must be >= 1, got %d", c.Execution.Parallelism)
	}
	for _, b := range c.Git.Backends {
		if b != "gogit" && b != "cli" {
			return fmt.Errorf("unknown git backend %q", b)
		}
	}
	return nil
}

// Save writes the configuration to .braid/config.json under workspace.
func (c *Config) Save(workspace string) error {
	dir := filepath.Join(workspace, ".braid")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), append(data, '\n'), 0o644)
}
