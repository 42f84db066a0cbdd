package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/waabox/modeldeck/internal/config"
	"github.com/waabox/modeldeck/internal/domain"
	"github.com/waabox/modeldeck/internal/session"
	"github.com/waabox/modeldeck/internal/signin"
)

type stubProxy struct {
	mu      sync.Mutex
	initErr error
	polls   int
}

func (p *stubProxy) Initiate(_ context.Context) (domain.Grant, error) {
	if p.initErr != nil {
		return domain.Grant{}, p.initErr
	}
	return domain.Grant{
		SessionID:               "abc123",
		UserCode:                "WXYZ-1234",
		VerificationURI:         "https://github.com/login/device",
		VerificationURIComplete: "https://github.com/login/device?user_code=WXYZ-1234",
		ExpiresIn:               900,
		Interval:                5,
	}, nil
}

func (p *stubProxy) Poll(_ context.Context, _ string) (domain.PollResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.polls++
	return domain.PollResult{Status: domain.PollComplete, AccessToken: "ghu_xxx"}, nil
}

func (p *stubProxy) pollCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.polls
}

type stubProfiles struct{}

func (stubProfiles) FetchProfile(_ context.Context, _ string) (domain.User, error) {
	return domain.User{ID: 42, Login: "octocat", DisplayName: "The Octocat"}, nil
}

func newTestApp(t *testing.T, proxy signin.ProxyAPI, retention time.Duration) *app {
	t.Helper()
	store := session.NewStore(session.NewFileStorage(t.TempDir()), retention, nil)
	return &app{
		configPath: filepath.Join(t.TempDir(), "config.toml"),
		log:        zerolog.Nop(),
		store:      store,
		auth:       signin.New(proxy, stubProfiles{}, store),
	}
}

func newTestCommand(t *testing.T, stdin string) (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	var stdout, stderr bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetContext(ctx)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	return cmd, &stdout, &stderr
}

func TestRunPlainSignIn_PromptsThenPollsAfterEnter(t *testing.T) {
	proxy := &stubProxy{}
	a := newTestApp(t, proxy, 0)
	cmd, stdout, stderr := newTestCommand(t, "\n")

	snap, err := runPlainSignIn(cmd, a.auth)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.State != domain.StateSucceeded {
		t.Fatalf("state: want succeeded, got %s (%s)", snap.State, snap.Error)
	}
	if !snap.IsAuthenticated || snap.User.Login != "octocat" {
		t.Errorf("expected authenticated octocat, got %+v", snap)
	}
	if proxy.pollCount() != 1 {
		t.Errorf("expected one poll after enter, got %d", proxy.pollCount())
	}
	for _, want := range []string{"https://github.com/login/device?user_code=WXYZ-1234", "WXYZ-1234", "Press enter"} {
		if !strings.Contains(stderr.String(), want) {
			t.Errorf("stderr missing %q:\n%s", want, stderr.String())
		}
	}
	if stdout.Len() != 0 {
		t.Errorf("prompts must not go to stdout, got %q", stdout.String())
	}
}

func TestRunPlainSignIn_InitiationFailureSkipsPrompt(t *testing.T) {
	proxy := &stubProxy{initErr: errors.New("proxy unavailable")}
	a := newTestApp(t, proxy, 0)
	cmd, _, stderr := newTestCommand(t, "")

	snap, err := runPlainSignIn(cmd, a.auth)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.State != domain.StateFailed || snap.Reason != domain.ReasonInitiation {
		t.Errorf("want failed/initiation, got %s/%s", snap.State, snap.Reason)
	}
	if strings.Contains(stderr.String(), "Enter code") {
		t.Errorf("no prompt expected after a failed initiation, got:\n%s", stderr.String())
	}
	if proxy.pollCount() != 0 {
		t.Errorf("expected no polls, got %d", proxy.pollCount())
	}
}

func TestStatusCmd_ShowsValidUntil(t *testing.T) {
	a := newTestApp(t, &stubProxy{}, 7*24*time.Hour)
	captured := time.Now().Add(-24 * time.Hour).Truncate(time.Second)
	auth, err := domain.NewAuthSession(domain.User{ID: 42, Login: "octocat", DisplayName: "The Octocat"}, "ghu_xxx", captured)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.store.Save(auth); err != nil {
		t.Fatal(err)
	}
	if err := a.auth.Load(); err != nil {
		t.Fatal(err)
	}

	cmd := newStatusCmd(a)
	var out bytes.Buffer
	cmd.SetOut(&out)
	if err := cmd.RunE(cmd, nil); err != nil {
		t.Fatal(err)
	}

	want := "Valid until: " + captured.Add(7*24*time.Hour).Local().Format("2006-01-02 15:04")
	if !strings.Contains(out.String(), "Signed in as octocat (The Octocat)") || !strings.Contains(out.String(), want) {
		t.Errorf("expected login and %q, got:\n%s", want, out.String())
	}
}

func TestConfigSetCmd_PersistsFileValue(t *testing.T) {
	a := newTestApp(t, &stubProxy{}, 0)
	t.Setenv("MODELDECK_PROXY_URL", "https://env.example.com")

	cmd := newConfigCmd(a)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"set", "retention_days", "14"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg, err := config.LoadFile(a.configPath)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RetentionDays != 14 {
		t.Errorf("retention_days: want 14, got %d", cfg.RetentionDays)
	}
	if cfg.ProxyURL != "" {
		t.Errorf("environment override leaked into the file: %q", cfg.ProxyURL)
	}
	if !strings.Contains(out.String(), "Set retention_days") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestConfigSetCmd_RejectsUnknownKey(t *testing.T) {
	a := newTestApp(t, &stubProxy{}, 0)
	cmd := newConfigCmd(a)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"set", "client_secret", "shh"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for unknown key")
	}
}
