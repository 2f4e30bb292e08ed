package config

import (
	"fmt"
	"os"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// GeminiConfig holds upstream provider settings.
type GeminiConfig struct {
	APIKey string `yaml:"api_key,omitempty"` // overridden by GEMINI_API_KEY
	Model  string `yaml:"model,omitempty"`   // default model identifier
}

// GenerationConfig holds the adapter's resilience defaults. Per-call
// options override these.
type GenerationConfig struct {
	MaxRetries       int               `yaml:"max_retries"`
	RetryBaseDelayMS int               `yaml:"retry_base_delay_ms,omitempty"`
	TimeoutSeconds   int               `yaml:"timeout_seconds,omitempty"`
	Temperature      *float64          `yaml:"temperature,omitempty"`
	MaxOutputTokens  int32             `yaml:"max_output_tokens,omitempty"`
	SafetyThresholds map[string]string `yaml:"safety_thresholds,omitempty"` // harm category -> block threshold
}

// HealthConfig configures the periodic health monitor.
type HealthConfig struct {
	// Schedule is a cron expression or a Go duration string (e.g. "5m").
	Schedule string `yaml:"schedule,omitempty"`
}

// Config is the process-wide configuration. It is read-only after Load.
type Config struct {
	Gemini     GeminiConfig     `yaml:"gemini,omitempty"`
	Generation GenerationConfig `yaml:"generation,omitempty"`
	Health     HealthConfig     `yaml:"health,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Gemini: GeminiConfig{
			Model: "gemini-2.0-flash",
		},
		Generation: GenerationConfig{
			MaxRetries:       3,
			RetryBaseDelayMS: 1000,
			TimeoutSeconds:   60,
		},
		Health: HealthConfig{
			Schedule: "5m",
		},
	}
}

// Load reads the YAML config at path (if it exists), merges it over the
// defaults, and applies environment overrides. A missing file is not an
// error; a malformed one is.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // G304: user-specified config path is intentional
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// Fall through to defaults.
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if err := mergo.Merge(cfg, Default()); err != nil {
		return nil, fmt.Errorf("failed to merge default config: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides lets the environment win over file and defaults.
func applyEnvOverrides(cfg *Config) {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.Gemini.APIKey = key
	}
	if model := os.Getenv("GENWIRE_MODEL"); model != "" {
		cfg.Gemini.Model = model
	}
}

// RetryBaseDelay returns the configured retry seed delay.
func (c *GenerationConfig) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMS) * time.Millisecond
}

// Timeout returns the configured per-attempt deadline.
func (c *GenerationConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
