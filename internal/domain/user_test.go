package domain_test

import (
	"testing"
	"time"

	"github.com/waabox/modeldeck/internal/domain"
)

func TestNewAuthSession_RejectsMissingToken(t *testing.T) {
	_, err := domain.NewAuthSession(domain.User{Login: "octocat"}, "", time.Now())
	if err == nil {
		t.Fatal("expected error for empty token, got nil")
	}
}

func TestNewAuthSession_RejectsMissingProfile(t *testing.T) {
	_, err := domain.NewAuthSession(domain.User{}, "ghu_token", time.Now())
	if err == nil {
		t.Fatal("expected error for empty profile, got nil")
	}
}

func TestNewAuthSession_IsValid(t *testing.T) {
	s, err := domain.NewAuthSession(domain.User{ID: 1, Login: "octocat"}, "ghu_token", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.Valid() {
		t.Errorf("expected valid session, got %+v", s)
	}
}

func TestAuthSession_Stale(t *testing.T) {
	captured := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := domain.AuthSession{CapturedAt: captured}
	retention := 30 * 24 * time.Hour

	if s.Stale(captured.Add(10*24*time.Hour), retention) {
		t.Error("10 days old session should not be stale")
	}
	if !s.Stale(captured.Add(31*24*time.Hour), retention) {
		t.Error("31 days old session should be stale")
	}
}

func TestDeviceFlowSession_Expired(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := domain.DeviceFlowSession{ExpiresIn: 900, CreatedAt: created}

	if s.Expired(created.Add(900 * time.Second)) {
		t.Error("session at exactly expires_in should not be expired")
	}
	if !s.Expired(created.Add(950 * time.Second)) {
		t.Error("session polled at t+950 should be expired")
	}
}
