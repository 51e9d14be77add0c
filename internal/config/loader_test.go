package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWithNoFile(t *testing.T) {
	dir := t.TempDir()
	cwd, _ := os.Getwd()
	t.Cleanup(func() { os.Chdir(cwd) })
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := DefaultConfig()
	if cfg.Collection.Concurrency != want.Collection.Concurrency {
		t.Errorf("got concurrency %d, want %d", cfg.Collection.Concurrency, want.Collection.Concurrency)
	}
	if cfg.Logging.Level != want.Logging.Level {
		t.Errorf("got log level %q, want %q", cfg.Logging.Level, want.Logging.Level)
	}
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "marketscout.yaml")
	content := `
collection:
  concurrency: 42
  user_agent: "custom-agent/1.0"
logging:
  level: "debug"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Collection.Concurrency != 42 {
		t.Errorf("got concurrency %d, want 42", cfg.Collection.Concurrency)
	}
	if cfg.Collection.UserAgent != "custom-agent/1.0" {
		t.Errorf("got user agent %q", cfg.Collection.UserAgent)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("got log level %q", cfg.Logging.Level)
	}
}

func TestLoadMissingExplicitFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err == nil {
		t.Fatal("expected an error for a missing explicit config file")
	}
}

func TestLoadEnvOverridesConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "marketscout.yaml")
	content := "collection:\n  concurrency: 5\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("MARKETSCOUT_COLLECTION_CONCURRENCY", "99")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Collection.Concurrency != 99 {
		t.Errorf("expected env var to override file value, got concurrency %d", cfg.Collection.Concurrency)
	}
}

func TestLoadUserAgentEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "marketscout.yaml")
	content := "collection:\n  user_agent: \"file-agent/1.0\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("USER_AGENT", "env-agent/2.0")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Collection.UserAgent != "env-agent/2.0" {
		t.Errorf("expected USER_AGENT env var to take precedence, got %q", cfg.Collection.UserAgent)
	}
}

func TestLoadParsesDurationFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "marketscout.yaml")
	content := "collection:\n  request_timeout: 15s\n  base_delay: 250ms\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Collection.RequestTimeout != 15*time.Second {
		t.Errorf("got request timeout %v, want 15s", cfg.Collection.RequestTimeout)
	}
	if cfg.Collection.BaseDelay != 250*time.Millisecond {
		t.Errorf("got base delay %v, want 250ms", cfg.Collection.BaseDelay)
	}
}
