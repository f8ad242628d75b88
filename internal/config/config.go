// Package config loads the service configuration from YAML with
// environment variable expansion.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root service configuration.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Database DatabaseConfig `yaml:"database"`
	Secrets  SecretsConfig  `yaml:"secrets"`
	LLM      LLMConfig      `yaml:"llm"`
	Quota    QuotaConfig    `yaml:"quota"`
	Sessions SessionsConfig `yaml:"sessions"`
	Assets   AssetsConfig   `yaml:"assets"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type DatabaseConfig struct {
	// Path is the SQLite database file.
	Path string `yaml:"path"`
}

type SecretsConfig struct {
	// Key is the hex-encoded 32-byte master key for tenant credential
	// encryption. Usually set as ${INKWELL_SECRET_KEY}.
	Key string `yaml:"key"`
}

type LLMConfig struct {
	// Provider selects the default stage runner: "anthropic" or "openai".
	Provider string `yaml:"provider"`

	// APIKey is the service-level fallback used when a tenant has no key
	// of its own.
	APIKey string `yaml:"api_key"`

	FastModel    string `yaml:"fast_model"`
	QualityModel string `yaml:"quality_model"`

	// WebSearch augments the research stage with live search results.
	WebSearch bool `yaml:"web_search"`
}

type QuotaConfig struct {
	// Limit is pipeline runs per tenant per window.
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

type SessionsConfig struct {
	// FailureThreshold retires a session after this many consecutive
	// delivery failures.
	FailureThreshold int `yaml:"failure_threshold"`
}

type AssetsConfig struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
	PublicBaseURL   string `yaml:"public_base_url"`

	// RenderEndpoint overrides the image generation endpoint.
	RenderEndpoint string `yaml:"render_endpoint"`
}

type MetricsConfig struct {
	// Addr is the Prometheus listen address, e.g. ":9090". Empty
	// disables the metrics server.
	Addr string `yaml:"addr"`
}

// Load reads and parses the configuration file. Environment variables
// in the file are expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a runnable configuration for when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "inkwell.db"
	}
	if cfg.Secrets.Key == "" {
		cfg.Secrets.Key = os.Getenv("INKWELL_SECRET_KEY")
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "anthropic"
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.Quota.Limit == 0 {
		cfg.Quota.Limit = 6
	}
	if cfg.Quota.Window == 0 {
		cfg.Quota.Window = time.Hour
	}
	if cfg.Sessions.FailureThreshold == 0 {
		cfg.Sessions.FailureThreshold = 4
	}
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.Secrets.Key == "" {
		return fmt.Errorf("secrets.key is required (or set INKWELL_SECRET_KEY)")
	}
	switch c.LLM.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("llm.provider must be \"anthropic\" or \"openai\", got %q", c.LLM.Provider)
	}
	if c.Quota.Limit < 0 {
		return fmt.Errorf("quota.limit must be positive")
	}
	return nil
}
