// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "./windlass.db"

fetch:
  timeout: "45s"
  github_api_base: "https://github.internal/api/v3"

subscriptions:
  refresh_interval: "6h"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "./windlass.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./windlass.db")
	}
	if cfg.Fetch.Timeout != 45*time.Second {
		t.Errorf("Fetch.Timeout = %v, want %v", cfg.Fetch.Timeout, 45*time.Second)
	}
	if cfg.Fetch.GitHubAPIBase != "https://github.internal/api/v3" {
		t.Errorf("Fetch.GitHubAPIBase = %q", cfg.Fetch.GitHubAPIBase)
	}
	if cfg.Subscriptions.RefreshInterval != 6*time.Hour {
		t.Errorf("Subscriptions.RefreshInterval = %v, want %v", cfg.Subscriptions.RefreshInterval, 6*time.Hour)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("WINDLASS_DB_PATH", "/var/lib/windlass/store.db")

	configPath := writeConfig(t, `
database:
  path: "${WINDLASS_DB_PATH}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/var/lib/windlass/store.db" {
		t.Errorf("Database.Path = %q, want expanded env value", cfg.Database.Path)
	}
}

func TestLoad_DefaultFetchTimeout(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "./windlass.db"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Fetch.Timeout != DefaultFetchTimeout {
		t.Errorf("Fetch.Timeout = %v, want default %v", cfg.Fetch.Timeout, DefaultFetchTimeout)
	}
}

func TestLoad_MissingDatabasePath(t *testing.T) {
	configPath := writeConfig(t, `
logging:
  level: "info"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for missing database.path")
	}
	if !strings.Contains(err.Error(), "database.path") {
		t.Errorf("error = %v, want mention of database.path", err)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "./windlass.db"

fetch:
  timeout: "not-a-duration"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "fetch.timeout") {
		t.Errorf("error = %v, want mention of fetch.timeout", err)
	}
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "./windlass.db"

logging:
  level: "verbose"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for invalid logging.level")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}
