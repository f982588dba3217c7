package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.VersionCheck.Enabled {
		t.Error("Expected version check to be enabled by default")
	}
	if cfg.VersionCheck.Schedule != "@every 8h" {
		t.Errorf("Unexpected default schedule %q", cfg.VersionCheck.Schedule)
	}
	if cfg.Scheduler.GlobalMax <= 0 {
		t.Errorf("Expected positive default global max, got %d", cfg.Scheduler.GlobalMax)
	}
	if cfg.VersionCheck.AllowAnonymousDataUsage {
		t.Error("Expected anonymous data usage to be off unless opted in")
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
listen: 0.0.0.0:9000
log:
  level: debug
  format: json
scheduler:
  global_max: 4
  poll_interval: 250ms
  dispatch_per_sec: 5
  by_connector:
    localexec: 2
version_check:
  schedule: "0 3 * * *"
  allow_anonymous_data_usage: true
connectors:
  localexec:
    allow:
      echo: ["hello"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Listen != "0.0.0.0:9000" {
		t.Errorf("Unexpected listen %q", cfg.Listen)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Unexpected log config %+v", cfg.Log)
	}
	if cfg.Scheduler.GlobalMax != 4 || cfg.Scheduler.GetConnectorLimit("localexec") != 2 {
		t.Errorf("Unexpected scheduler config %+v", cfg.Scheduler)
	}
	if cfg.Scheduler.PollInterval != 250*time.Millisecond {
		t.Errorf("Unexpected poll interval %v", cfg.Scheduler.PollInterval)
	}
	if cfg.Scheduler.DispatchPerSec != 5 {
		t.Errorf("Unexpected dispatch rate %d", cfg.Scheduler.DispatchPerSec)
	}
	if !cfg.VersionCheck.AllowAnonymousDataUsage {
		t.Error("Expected anonymous data usage to be opted in")
	}
	if !cfg.VersionCheck.Enabled {
		t.Error("Expected unspecified fields to keep their defaults")
	}
	if cfg.VersionCheck.Schedule != "0 3 * * *" {
		t.Errorf("Unexpected schedule %q", cfg.VersionCheck.Schedule)
	}
	if got := cfg.Connectors.LocalExec.Allow["echo"]; len(got) != 1 || got[0] != "hello" {
		t.Errorf("Unexpected localexec allowlist %v", cfg.Connectors.LocalExec.Allow)
	}
}

func TestLoad_UnknownField(t *testing.T) {
	path := writeConfig(t, "listen: 127.0.0.1:1\nbogus: true\n")
	if _, err := Load(path); err == nil {
		t.Fatal("Expected unknown field to be rejected")
	}
}

func TestLoad_Invalid(t *testing.T) {
	path := writeConfig(t, "scheduler:\n  global_max: 0\nversion_check:\n  schedule: \"\"\n")
	_, err := Load(path)
	if err == nil {
		t.Fatal("Expected validation error")
	}
	if !strings.Contains(err.Error(), "global_max") || !strings.Contains(err.Error(), "version_check.schedule") {
		t.Errorf("Expected both problems to be reported, got %v", err)
	}
}

func TestValidate_AfterOverrides(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected defaults to validate, got %v", err)
	}

	cfg.Listen = ""
	cfg.Log.Level = "verbose"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Expected validation error")
	}
	if !strings.Contains(err.Error(), "listen") || !strings.Contains(err.Error(), "log level") {
		t.Errorf("Expected listen and log level problems, got %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Expected error for missing file")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobrunr.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
