package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the mim-platform agent configuration.
type Config struct {
	// SelfEmails are the operator's own addresses; mail sent from one of
	// them is recorded as outbound.
	SelfEmails []string `yaml:"self_emails"`

	Anthropic      AnthropicConfig      `yaml:"anthropic"`
	Gmail          GmailConfig          `yaml:"gmail"`
	Agents         AgentsConfig         `yaml:"agents"`
	Classification ClassificationConfig `yaml:"classification"`
	Watch          WatchConfig          `yaml:"watch"`
}

// AnthropicConfig configures the language-model client. An empty API
// key falls back to the ANTHROPIC_API_KEY environment variable.
type AnthropicConfig struct {
	APIKey    string `yaml:"api_key,omitempty"`
	Model     string `yaml:"model,omitempty"`
	MaxTokens int    `yaml:"max_tokens,omitempty"`
}

// GmailConfig configures the message-source connector.
type GmailConfig struct {
	Account     string `yaml:"account"`
	WindowHours int    `yaml:"window_hours,omitempty"`
	MaxResults  int    `yaml:"max_results,omitempty"`
}

// AgentsConfig holds per-agent thresholds.
type AgentsConfig struct {
	StaleDays           int `yaml:"stale_days,omitempty"`
	MinPlayersHighValue int `yaml:"min_players_high_value,omitempty"`
	MaxEnrichments      int `yaml:"max_enrichments,omitempty"`
}

// ClassificationConfig holds classifier policy.
type ClassificationConfig struct {
	// SiloPreference is the fallback primary-silo preference order.
	SiloPreference []string `yaml:"silo_preference,omitempty"`
}

// WatchConfig configures the spool-directory live mode.
type WatchConfig struct {
	SpoolDir        string `yaml:"spool_dir,omitempty"`
	DebounceSeconds int    `yaml:"debounce_seconds,omitempty"`
}

func (c *Config) applyDefaults() {
	if c.Gmail.WindowHours <= 0 {
		c.Gmail.WindowHours = 24
	}
	if c.Gmail.MaxResults <= 0 {
		c.Gmail.MaxResults = 50
	}
	if c.Agents.StaleDays <= 0 {
		c.Agents.StaleDays = 30
	}
	if c.Agents.MinPlayersHighValue <= 0 {
		c.Agents.MinPlayersHighValue = 300
	}
	if c.Agents.MaxEnrichments <= 0 {
		c.Agents.MaxEnrichments = 20
	}
	if c.Watch.DebounceSeconds <= 0 {
		c.Watch.DebounceSeconds = 5
	}
}

// GetConfigDir returns the XDG-compliant config directory.
func GetConfigDir() (string, error) {
	// Explicit override (useful for tests and portable installs)
	if override := os.Getenv("MIM_CONFIG_DIR"); override != "" {
		return override, nil
	}

	var base string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		base = xdg
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "mim"), nil
}

// GetDataDir returns the platform-specific data directory.
func GetDataDir() (string, error) {
	// Explicit override (useful for tests and portable installs)
	if override := os.Getenv("MIM_DATA_DIR"); override != "" {
		return override, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "MiM"), nil
	}

	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "mim"), nil
	}

	return filepath.Join(home, ".local", "share", "mim"), nil
}

// Load loads config from the config file. A missing file yields the
// default config.
func Load() (*Config, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return nil, err
	}

	configPath := filepath.Join(configDir, "config.yaml")

	var cfg Config
	data, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Save saves the config to the config file.
func (c *Config) Save() error {
	configDir, err := GetConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
