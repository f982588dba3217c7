// Package config loads the jobrunr server configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/akuafrica/jobrunr/internal/logging"
	"github.com/akuafrica/jobrunr/internal/scheduler"
	"github.com/akuafrica/jobrunr/internal/update"
	yaml "go.yaml.in/yaml/v3"
)

// Config is the full server configuration.
type Config struct {
	Listen       string             `yaml:"listen"`
	DB           string             `yaml:"db"`
	Log          logging.Config     `yaml:"log"`
	Scheduler    scheduler.Config   `yaml:"scheduler"`
	VersionCheck VersionCheckConfig `yaml:"version_check"`
	Connectors   ConnectorsConfig   `yaml:"connectors"`
}

// VersionCheckConfig controls the recurring new-version check.
type VersionCheckConfig struct {
	Enabled bool `yaml:"enabled"`
	// Schedule is a cron spec or descriptor such as "@every 8h".
	Schedule string `yaml:"schedule"`
	// AllowAnonymousDataUsage opts in to sending the cluster id and the
	// succeeded job count with each check. Off unless set.
	AllowAnonymousDataUsage bool   `yaml:"allow_anonymous_data_usage"`
	BaseURL                 string `yaml:"base_url"`
}

// ConnectorsConfig configures job connectors.
type ConnectorsConfig struct {
	LocalExec LocalExecConfig `yaml:"localexec"`
}

// LocalExecConfig maps allowed commands to their allowed subcommands.
type LocalExecConfig struct {
	WorkDir string              `yaml:"work_dir"`
	Allow   map[string][]string `yaml:"allow"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Listen:    "127.0.0.1:8000",
		DB:        filepath.Join(homeDir, ".jobrunr", "jobrunr.db"),
		Log:       logging.Config{Level: "info", Format: "console"},
		Scheduler: *scheduler.DefaultConfig(),
		VersionCheck: VersionCheckConfig{
			Enabled:                 true,
			Schedule:                "@every 8h",
			AllowAnonymousDataUsage: false,
			BaseURL:                 update.DefaultBaseURL,
		},
	}
}

// Load reads path on top of the defaults. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := decode(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Listen) == "" {
		problems = append(problems, "listen must not be empty")
	}
	if strings.TrimSpace(c.DB) == "" {
		problems = append(problems, "db must not be empty")
	}
	if err := c.Log.Validate(); err != nil {
		problems = append(problems, "log: "+err.Error())
	}
	if c.Scheduler.GlobalMax <= 0 {
		problems = append(problems, "scheduler.global_max must be positive")
	}
	if c.Scheduler.PollInterval < 0 {
		problems = append(problems, "scheduler.poll_interval must not be negative")
	}
	if c.Scheduler.DispatchPerSec < 0 {
		problems = append(problems, "scheduler.dispatch_per_sec must not be negative")
	}
	if c.VersionCheck.Enabled && strings.TrimSpace(c.VersionCheck.Schedule) == "" {
		problems = append(problems, "version_check.schedule must be set when the check is enabled")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
