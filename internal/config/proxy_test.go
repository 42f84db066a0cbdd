package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/waabox/modeldeck/internal/config"
)

func TestParseProxyEnv_Defaults(t *testing.T) {
	t.Setenv("MODELDECK_GITHUB_CLIENT_ID", "Iv1.test")

	cfg, err := config.ParseProxyEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("addr: want ':8080', got '%s'", cfg.Addr)
	}
	if cfg.SweepInterval != 5*time.Minute {
		t.Errorf("sweep interval: want 5m, got %v", cfg.SweepInterval)
	}
	if cfg.ScopeString() != "read:user user:email" {
		t.Errorf("scopes: got '%s'", cfg.ScopeString())
	}
	if cfg.MaxSessions != 10000 {
		t.Errorf("max sessions: want 10000, got %d", cfg.MaxSessions)
	}
}

func TestParseProxyEnv_RequiresClientID(t *testing.T) {
	t.Setenv("MODELDECK_GITHUB_CLIENT_ID", "")

	_, err := config.ParseProxyEnv()
	if err == nil {
		t.Fatal("expected error when client ID is missing")
	}
	if !strings.Contains(err.Error(), "MODELDECK_GITHUB_CLIENT_ID") {
		t.Errorf("error should name the missing variable, got %v", err)
	}
}

func TestParseProxyEnv_InvalidDuration(t *testing.T) {
	t.Setenv("MODELDECK_GITHUB_CLIENT_ID", "Iv1.test")
	t.Setenv("MODELDECK_SWEEP_INTERVAL", "soon")

	_, err := config.ParseProxyEnv()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestProxyConfig_AllowsScope(t *testing.T) {
	cfg := config.ProxyConfig{GitHubScopes: []string{"read:user", "user:email"}}

	if !cfg.AllowsScope("read:user") {
		t.Error("read:user should be allowed")
	}
	if !cfg.AllowsScope("read:user user:email") {
		t.Error("both configured scopes should be allowed")
	}
	if cfg.AllowsScope("repo") {
		t.Error("unconfigured scope must be rejected")
	}
}
