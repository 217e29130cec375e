package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := loadFromDir(t, "")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}

	if cfg.Lanes.Critical.MaxConcurrent != 1 ||
		cfg.Lanes.Standard.MaxConcurrent != 3 ||
		cfg.Lanes.Background.MaxConcurrent != 2 {
		t.Errorf("lane defaults = %+v", cfg.Lanes)
	}
	if cfg.Cache.TTLDuration() != 10*time.Minute {
		t.Errorf("cache ttl = %v", cfg.Cache.TTLDuration())
	}
	if cfg.Recovery.MaxAttempts != 3 {
		t.Errorf("max attempts = %d", cfg.Recovery.MaxAttempts)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "auto" {
		t.Errorf("log defaults = %+v", cfg.Log)
	}
}

func TestLoadFromFile(t *testing.T) {
	cfg, err := loadFromDir(t, `
lanes:
  standard:
    max_concurrent: 8
cache:
  ttl: 30s
recovery:
  max_attempts: 5
log:
  level: debug
`)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Lanes.Standard.MaxConcurrent != 8 {
		t.Errorf("standard capacity = %d", cfg.Lanes.Standard.MaxConcurrent)
	}
	// Unset keys keep their defaults.
	if cfg.Lanes.Critical.MaxConcurrent != 1 {
		t.Errorf("critical capacity = %d", cfg.Lanes.Critical.MaxConcurrent)
	}
	if cfg.Cache.TTLDuration() != 30*time.Second {
		t.Errorf("ttl = %v", cfg.Cache.TTLDuration())
	}
	if cfg.Recovery.MaxAttempts != 5 {
		t.Errorf("max attempts = %d", cfg.Recovery.MaxAttempts)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %s", cfg.Log.Level)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("AGENTFLOW_LOG_LEVEL", "warn")

	cfg, err := loadFromDir(t, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("log level = %s, want env override warn", cfg.Log.Level)
	}
}

func TestValidator(t *testing.T) {
	cfg, err := loadFromDir(t, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := NewValidator().Validate(cfg); err != nil {
		t.Errorf("default config should validate: %v", err)
	}

	cfg.Lanes.Critical.MaxConcurrent = 0
	cfg.Log.Level = "verbose"
	cfg.Cache.TTL = "banana"

	err = NewValidator().Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	verrs, ok := err.(ValidationErrors)
	if !ok || len(verrs) != 3 {
		t.Errorf("errors = %v", err)
	}
}

func TestWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".agentflow.yaml")
	writeFile(t, path, "lanes:\n  standard:\n    max_concurrent: 3\n")

	got := make(chan *Config, 1)
	w, err := NewWatcher(path, nil, func(cfg *Config) {
		select {
		case got <- cfg:
		default:
		}
	})
	if err != nil {
		t.Fatalf("watcher: %v", err)
	}
	defer w.Close()

	writeFile(t, path, "lanes:\n  standard:\n    max_concurrent: 7\n")

	select {
	case cfg := <-got:
		if cfg.Lanes.Standard.MaxConcurrent != 7 {
			t.Errorf("reloaded capacity = %d", cfg.Lanes.Standard.MaxConcurrent)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("reload callback never fired")
	}
}

func TestWatcherRejectsInvalidEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".agentflow.yaml")
	writeFile(t, path, "")

	got := make(chan *Config, 1)
	w, err := NewWatcher(path, nil, func(cfg *Config) { got <- cfg })
	if err != nil {
		t.Fatalf("watcher: %v", err)
	}
	defer w.Close()

	writeFile(t, path, "lanes:\n  standard:\n    max_concurrent: 0\n")

	select {
	case cfg := <-got:
		t.Errorf("invalid config applied: %+v", cfg.Lanes.Standard)
	case <-time.After(time.Second):
		// Rejected, previous config stays in effect.
	}
}

func loadFromDir(t *testing.T, content string) (*Config, error) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, ".agentflow.yaml")
	writeFile(t, path, content)
	return NewLoader().WithConfigFile(path).Load()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
