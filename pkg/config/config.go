// Package config loads MOVI's runtime configuration from an optional
// movi.yaml plus environment overrides. Secrets (API keys, database
// credentials) come from the environment only; main loads a .env file
// before calling Load.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the umbrella configuration object returned by Load and used
// throughout the application.
type Config struct {
	LLM     LLMConfig     `yaml:"llm"`
	Session SessionConfig `yaml:"session"`
	Agent   AgentConfig   `yaml:"agent"`
}

// LLMConfig configures the intent-parsing LLM client.
type LLMConfig struct {
	// BaseURL of an OpenAI-compatible chat completions endpoint.
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	// Retry ladder: per-attempt timeout, attempt count, base backoff.
	// Backoff doubles per attempt (1s -> 2s -> 4s with the defaults).
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	BackoffBase    time.Duration `yaml:"backoff_base"`
}

// SessionConfig configures durable session lifecycle.
type SessionConfig struct {
	// TTL is how long a pending confirmation or wizard survives.
	TTL time.Duration `yaml:"ttl"`
	// ReapInterval is how often the reaper marks overdue sessions EXPIRED.
	ReapInterval time.Duration `yaml:"reap_interval"`
	// PurgeAfter is how long EXPIRED rows are kept before deletion.
	PurgeAfter time.Duration `yaml:"purge_after"`
}

// AgentConfig configures graph-level behavior.
type AgentConfig struct {
	// HistoryLimit bounds the conversation history carried into the parser
	// prompt and persisted on sessions (most recent K messages).
	HistoryLimit int `yaml:"history_limit"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		LLM: LLMConfig{
			Model:          "gpt-4o-mini",
			AttemptTimeout: 30 * time.Second,
			MaxAttempts:    3,
			BackoffBase:    1 * time.Second,
		},
		Session: SessionConfig{
			TTL:          1 * time.Hour,
			ReapInterval: 5 * time.Minute,
			PurgeAfter:   24 * time.Hour,
		},
		Agent: AgentConfig{
			HistoryLimit: 20,
		},
	}
}

// Load reads movi.yaml from path (if it exists) over the defaults, then
// applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		slog.Info("Loaded configuration file", "path", path)
	case os.IsNotExist(err):
		slog.Info("No configuration file, using defaults", "path", path)
	default:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.LLM.MaxAttempts < 1 {
		return fmt.Errorf("llm.max_attempts must be at least 1, got %d", c.LLM.MaxAttempts)
	}
	if c.LLM.AttemptTimeout <= 0 {
		return fmt.Errorf("llm.attempt_timeout must be positive")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive")
	}
	if c.Agent.HistoryLimit <= 0 {
		return fmt.Errorf("agent.history_limit must be positive")
	}
	return nil
}
