// Package config holds all deskpilot configuration: model backend
// selection, automation loop tuning, live-watch tuning, and capture scope.
// Config is loaded from a YAML file, overlaid with DESKPILOT_* environment
// variables, and clamped into valid ranges by Validate.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	LLM        LLMConfig        `yaml:"llm"`
	Automation AutomationConfig `yaml:"automation"`
	LiveWatch  LiveWatchConfig  `yaml:"livewatch"`
	Capture    CaptureConfig    `yaml:"capture"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LLMConfig selects and configures the model backend.
type LLMConfig struct {
	Provider string        `yaml:"provider"` // anthropic, gemini, claude-cli
	APIKey   string        `yaml:"api_key"`
	Model    string        `yaml:"model"`
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"timeout"`
}

// CaptureConfig tunes screen capture.
type CaptureConfig struct {
	Scope string `yaml:"scope"` // full or window
}

// LoggingConfig tunes logging.
type LoggingConfig struct {
	Debug bool `yaml:"debug"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider: "anthropic",
			Model:    "claude-sonnet-4-20250514",
			Timeout:  120 * time.Second,
		},
		Automation: DefaultAutomationConfig(),
		LiveWatch:  DefaultLiveWatchConfig(),
		Capture: CaptureConfig{
			Scope: "full",
		},
	}
}

// Load reads the YAML config at path over the defaults. A missing file is
// not an error; defaults plus env overrides apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DESKPILOT_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("DESKPILOT_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("DESKPILOT_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("DESKPILOT_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("DESKPILOT_DEBUG"); v == "1" || v == "true" {
		c.Logging.Debug = true
	}
}

// Validate clamps every tunable into its allowed range and rejects the
// few settings that have no sensible clamp.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "anthropic", "gemini", "claude-cli":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = 120 * time.Second
	}
	switch c.Capture.Scope {
	case "full", "window":
	case "":
		c.Capture.Scope = "full"
	default:
		return fmt.Errorf("unknown capture scope %q", c.Capture.Scope)
	}
	c.Automation.clamp()
	c.LiveWatch.clamp()
	return nil
}
