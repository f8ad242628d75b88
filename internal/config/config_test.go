package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadExpandsEnvAndDefaults(t *testing.T) {
	t.Setenv("TEST_DB_PATH", "/tmp/test-inkwell.db")
	path := writeConfig(t, `
database:
  path: ${TEST_DB_PATH}
secrets:
  key: aabbcc
llm:
  provider: openai
  api_key: sk-test
quota:
  limit: 3
  window: 30m
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Path != "/tmp/test-inkwell.db" {
		t.Errorf("database path = %q, env not expanded", cfg.Database.Path)
	}
	if cfg.LLM.Provider != "openai" {
		t.Errorf("provider = %q", cfg.LLM.Provider)
	}
	if cfg.Quota.Limit != 3 || cfg.Quota.Window != 30*time.Minute {
		t.Errorf("quota = %d/%s", cfg.Quota.Limit, cfg.Quota.Window)
	}
	// Defaults fill unset sections.
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging defaults = %q/%q", cfg.Logging.Level, cfg.Logging.Format)
	}
	if cfg.Sessions.FailureThreshold != 4 {
		t.Errorf("failure threshold = %d", cfg.Sessions.FailureThreshold)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "logging: [not a map")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestDefaultQuota(t *testing.T) {
	cfg := Default()
	if cfg.Quota.Limit != 6 || cfg.Quota.Window != time.Hour {
		t.Errorf("default quota = %d/%s, want 6/1h", cfg.Quota.Limit, cfg.Quota.Window)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) { c.Secrets.Key = "aa" }, false},
		{"missing key", func(c *Config) { c.Secrets.Key = "" }, true},
		{"bad provider", func(c *Config) { c.Secrets.Key = "aa"; c.LLM.Provider = "cohere" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
