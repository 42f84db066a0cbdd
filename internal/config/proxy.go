package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ProxyConfig holds the auth proxy settings, read from the environment.
// There is deliberately no client secret: the proxy only runs the device flow.
type ProxyConfig struct {
	Addr            string        `env:"MODELDECK_PROXY_ADDR" envDefault:":8080"`
	GitHubClientID  string        `env:"MODELDECK_GITHUB_CLIENT_ID"`
	GitHubScopes    []string      `env:"MODELDECK_GITHUB_SCOPES" envDefault:"read:user,user:email"`
	GitHubBaseURL   string        `env:"MODELDECK_GITHUB_BASE_URL" envDefault:"https://github.com"`
	SweepInterval   time.Duration `env:"MODELDECK_SWEEP_INTERVAL" envDefault:"5m"`
	MaxSessions     uint64        `env:"MODELDECK_MAX_SESSIONS" envDefault:"10000"`
	UpstreamTimeout time.Duration `env:"MODELDECK_UPSTREAM_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"MODELDECK_LOG_LEVEL" envDefault:"info"`
	LogPretty       bool          `env:"MODELDECK_LOG_PRETTY" envDefault:"false"`
	AllowedOrigins  []string      `env:"MODELDECK_ALLOWED_ORIGINS"`
}

// ParseProxyEnv parses the proxy configuration from the current environment.
func ParseProxyEnv() (ProxyConfig, error) {
	var cfg ProxyConfig
	if err := env.Parse(&cfg); err != nil {
		return ProxyConfig{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return ProxyConfig{}, err
	}
	return cfg, nil
}

// LoadProxy loads an optional .env file and then parses the environment.
// It returns the path of the .env file used, or "" when none was found.
func LoadProxy() (ProxyConfig, string, error) {
	envPath := loadEnvFile()
	cfg, err := ParseProxyEnv()
	return cfg, envPath, err
}

// Validate checks settings that have no usable default.
func (c ProxyConfig) Validate() error {
	if strings.TrimSpace(c.GitHubClientID) == "" {
		return errors.New("MODELDECK_GITHUB_CLIENT_ID is required")
	}
	if c.SweepInterval <= 0 {
		return errors.New("MODELDECK_SWEEP_INTERVAL must be positive")
	}
	return nil
}

// ScopeString returns the configured scopes in the space-delimited OAuth form.
func (c ProxyConfig) ScopeString() string {
	return strings.Join(c.GitHubScopes, " ")
}

// AllowsScope reports whether every scope in requested is configured.
func (c ProxyConfig) AllowsScope(requested string) bool {
	allowed := make(map[string]bool, len(c.GitHubScopes))
	for _, s := range c.GitHubScopes {
		allowed[strings.TrimSpace(s)] = true
	}
	for _, s := range strings.FieldsFunc(requested, func(r rune) bool { return r == ' ' || r == ',' }) {
		if !allowed[s] {
			return false
		}
	}
	return true
}

// loadEnvFile loads variables from a .env file in the working directory or the
// closest parent that has one. Variables already set in the environment win.
func loadEnvFile() string {
	workDir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for dir := workDir; ; dir = filepath.Dir(dir) {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err == nil {
				return envPath
			}
		}
		if parent := filepath.Dir(dir); parent == dir {
			return ""
		}
	}
}
