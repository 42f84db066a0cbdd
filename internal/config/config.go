package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all modeldeck client configuration.
type Config struct {
	ProxyURL            string `toml:"proxy_url"`
	APIBaseURL          string `toml:"api_base_url"`
	ModelsURL           string `toml:"models_url"`
	StateDir            string `toml:"state_dir"`
	RetentionDays       int    `toml:"retention_days"`
	SlowDownStepSeconds int    `toml:"slow_down_step_seconds"`
}

const (
	defaultProxyURL        = "http://localhost:8080"
	defaultAPIBaseURL      = "https://api.github.com"
	defaultModelsURL       = "https://models.github.ai"
	defaultRetentionDays   = 30
	defaultSlowDownSeconds = 5
)

// ProxyURLOrDefault returns ProxyURL if set, otherwise the local proxy address.
func (c Config) ProxyURLOrDefault() string {
	if c.ProxyURL != "" {
		return c.ProxyURL
	}
	return defaultProxyURL
}

// APIBaseURLOrDefault returns APIBaseURL if set, otherwise the public GitHub API.
func (c Config) APIBaseURLOrDefault() string {
	if c.APIBaseURL != "" {
		return c.APIBaseURL
	}
	return defaultAPIBaseURL
}

// ModelsURLOrDefault returns ModelsURL if set, otherwise the GitHub Models endpoint.
func (c Config) ModelsURLOrDefault() string {
	if c.ModelsURL != "" {
		return c.ModelsURL
	}
	return defaultModelsURL
}

// StateDirOrDefault returns StateDir if set, otherwise ~/.local/state/modeldeck.
func (c Config) StateDirOrDefault() string {
	if c.StateDir != "" {
		return c.StateDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "state", "modeldeck")
}

// Retention returns how long a persisted session is trusted.
func (c Config) Retention() time.Duration {
	days := c.RetentionDays
	if days <= 0 {
		days = defaultRetentionDays
	}
	return time.Duration(days) * 24 * time.Hour
}

// SlowDownStep returns how much the poll interval grows after a slow_down signal.
func (c Config) SlowDownStep() time.Duration {
	secs := c.SlowDownStepSeconds
	if secs <= 0 {
		secs = defaultSlowDownSeconds
	}
	return time.Duration(secs) * time.Second
}

// LoadFrom reads configuration from the given TOML file path.
// If the file does not exist, it returns an empty config without error.
// Environment variables always take precedence over file values:
//   - MODELDECK_PROXY_URL overrides proxy_url
//   - MODELDECK_STATE_DIR overrides state_dir
func LoadFrom(path string) (Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// LoadFile reads only the TOML file at path, ignoring environment overrides.
// A missing file yields an empty config.
func LoadFile(path string) (Config, error) {
	var cfg Config
	if _, err := os.Stat(path); err != nil {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Keys lists the settings accepted by Set, in file order.
var Keys = []string{
	"proxy_url",
	"api_base_url",
	"models_url",
	"state_dir",
	"retention_days",
	"slow_down_step_seconds",
}

// Set assigns value to the setting named by its TOML key.
func (c *Config) Set(key, value string) error {
	switch key {
	case "proxy_url":
		c.ProxyURL = value
	case "api_base_url":
		c.APIBaseURL = value
	case "models_url":
		c.ModelsURL = value
	case "state_dir":
		c.StateDir = value
	case "retention_days", "slow_down_step_seconds":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("%s must be a non-negative integer, got %q", key, value)
		}
		if key == "retention_days" {
			c.RetentionDays = n
		} else {
			c.SlowDownStepSeconds = n
		}
	default:
		return fmt.Errorf("unknown config key %q (valid keys: %s)", key, strings.Join(Keys, ", "))
	}
	return nil
}

// DefaultConfigPath returns the default path for the modeldeck config file.
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return home + "/.config/modeldeck/config.toml"
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MODELDECK_PROXY_URL"); v != "" {
		cfg.ProxyURL = v
	}
	if v := os.Getenv("MODELDECK_STATE_DIR"); v != "" {
		cfg.StateDir = v
	}
}

// Save writes cfg to the given TOML file path, creating parent directories as needed.
// Existing file contents are overwritten. Permissions on the written file are 0600.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	if encErr := toml.NewEncoder(f).Encode(cfg); encErr != nil {
		f.Close()
		return encErr
	}
	return f.Close()
}
