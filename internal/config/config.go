// Package config loads storyguard configuration from YAML with
// environment variable overrides layered on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"storyguard/internal/guard"
)

// Config holds all storyguard configuration.
type Config struct {
	// Core settings
	Project string `yaml:"project"`
	Base    string `yaml:"base"`

	// Persistence backend: "file" or "sqlite"
	Storage StorageConfig `yaml:"storage"`

	// Guard thresholds
	Guards GuardsConfig `yaml:"guards"`

	// Retry protocol
	Retry RetryConfig `yaml:"retry"`

	// LLM critique scorer
	LLM LLMConfig `yaml:"llm"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Backend string `yaml:"backend"` // file, sqlite
	DBPath  string `yaml:"db_path"` // sqlite only
}

// GuardsConfig holds guard thresholds.
type GuardsConfig struct {
	PacingTolerance   float64 `yaml:"pacing_tolerance"`
	PacingWindow      int     `yaml:"pacing_window"`
	RelationTolerance int     `yaml:"relation_tolerance"`
	CritiqueMinScore  float64 `yaml:"critique_min_score"`
	TotalEpisodes     int     `yaml:"total_episodes"`
}

// RetryConfig configures the bounded-retry protocol.
type RetryConfig struct {
	MaxRetry int    `yaml:"max_retry"`
	Backoff  string `yaml:"backoff"`
	Fast     bool   `yaml:"fast"`
}

// LLMConfig configures the critique scorer.
type LLMConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	Timeout string `yaml:"timeout"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	File   string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Project: "default",
		Base:    "projects",

		Storage: StorageConfig{
			Backend: "file",
			DBPath:  "data/storyguard.db",
		},

		Guards: GuardsConfig{
			PacingTolerance:   0.25,
			PacingWindow:      10,
			RelationTolerance: 3,
			CritiqueMinScore:  7.0,
			TotalEpisodes:     250,
		},

		Retry: RetryConfig{
			MaxRetry: 2,
			Backoff:  "500ms",
		},

		LLM: LLMConfig{
			Model:   "gemini-2.5-pro",
			Timeout: "60s",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if model := os.Getenv("STORYGUARD_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if base := os.Getenv("STORYGUARD_BASE"); base != "" {
		c.Base = base
	}
	if project := os.Getenv("STORYGUARD_PROJECT"); project != "" {
		c.Project = project
	}
	if db := os.Getenv("STORYGUARD_DB"); db != "" {
		c.Storage.Backend = "sqlite"
		c.Storage.DBPath = db
	}
	if fast := os.Getenv("STORYGUARD_FAST"); fast == "1" || fast == "true" {
		c.Retry.Fast = true
	}
	if min := os.Getenv("MIN_CRITIQUE_SCORE"); min != "" {
		if v, err := strconv.ParseFloat(min, 64); err == nil {
			c.Guards.CritiqueMinScore = v
		}
	}
}

// GuardSettings converts the guard thresholds to guard.Settings.
func (c *Config) GuardSettings() guard.Settings {
	return guard.Settings{
		PacingTolerance:   c.Guards.PacingTolerance,
		PacingWindow:      c.Guards.PacingWindow,
		RelationTolerance: c.Guards.RelationTolerance,
		CritiqueMinScore:  c.Guards.CritiqueMinScore,
		TotalEpisodes:     c.Guards.TotalEpisodes,
	}.Normalize()
}

// RetryOptions converts the retry section to guard.RetryOptions.
// A malformed backoff falls back to the retry default.
func (c *Config) RetryOptions() guard.RetryOptions {
	opts := guard.RetryOptions{MaxRetry: c.Retry.MaxRetry, Fast: c.Retry.Fast}
	if d, err := time.ParseDuration(c.Retry.Backoff); err == nil {
		opts.Backoff = d
	}
	return opts
}
