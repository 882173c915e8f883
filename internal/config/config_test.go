package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blackbird-ai/blackbird-mcp/pkg/compass"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.BaseURL != compass.DefaultBaseURL {
		t.Errorf("base URL: got %q, want %q", cfg.BaseURL, compass.DefaultBaseURL)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("retry.max_attempts: got %d, want 3", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BaseDelay != 500*time.Millisecond {
		t.Errorf("retry.base_delay: got %s", cfg.Retry.BaseDelay)
	}
	if cfg.Poll.Interval != 10*time.Second {
		t.Errorf("poll.interval: got %s", cfg.Poll.Interval)
	}
	if cfg.Poll.MaxChecks != 60 {
		t.Errorf("poll.max_checks: got %d", cfg.Poll.MaxChecks)
	}
	if cfg.TokenMargin != 30*time.Second {
		t.Errorf("token.margin: got %s", cfg.TokenMargin)
	}
	if cfg.OpsAddr != "" {
		t.Errorf("ops listener should be disabled by default, got %q", cfg.OpsAddr)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BLACKBIRD_BASE_URL", "https://staging.blackbird.ai")
	t.Setenv("RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("POLL_INTERVAL", "2s")
	t.Setenv("OPS_ADDR", "127.0.0.1:9090")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseURL != "https://staging.blackbird.ai" {
		t.Errorf("base URL: got %q", cfg.BaseURL)
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Errorf("retry.max_attempts: got %d, want 5", cfg.Retry.MaxAttempts)
	}
	if cfg.Poll.Interval != 2*time.Second {
		t.Errorf("poll.interval: got %s", cfg.Poll.Interval)
	}
	if cfg.OpsAddr != "127.0.0.1:9090" {
		t.Errorf("ops.addr: got %q", cfg.OpsAddr)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "blackbird:\n  base_url: https://eu.blackbird.ai\nretry:\n  max_attempts: 7\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseURL != "https://eu.blackbird.ai" {
		t.Errorf("base URL: got %q", cfg.BaseURL)
	}
	if cfg.Retry.MaxAttempts != 7 {
		t.Errorf("retry.max_attempts: got %d, want 7", cfg.Retry.MaxAttempts)
	}
	// Untouched keys keep their defaults.
	if cfg.Poll.MaxChecks != 60 {
		t.Errorf("poll.max_checks: got %d, want 60", cfg.Poll.MaxChecks)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load("/does/not/exist.yaml"); err == nil {
		t.Fatal("expected an error for a missing explicit config file")
	}
}

func TestLoad_RejectsInvalidRetry(t *testing.T) {
	t.Setenv("RETRY_MAX_ATTEMPTS", "0")
	if _, err := Load(""); err == nil {
		t.Fatal("expected an error for retry.max_attempts = 0")
	}
}
