package session_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/waabox/modeldeck/internal/domain"
	"github.com/waabox/modeldeck/internal/session"
)

var capturedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestSession(t *testing.T) domain.AuthSession {
	t.Helper()
	s, err := domain.NewAuthSession(domain.User{ID: 1, Login: "octocat", DisplayName: "The Octocat"}, "ghu_xxx", capturedAt)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestStore_RoundTripWithinRetention(t *testing.T) {
	dir := t.TempDir()
	now := capturedAt
	store := session.NewStore(session.NewFileStorage(dir), 0, func() time.Time { return now })

	if err := store.Save(newTestSession(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// a fresh store simulates a reload 10 days later
	now = capturedAt.Add(10 * 24 * time.Hour)
	reloaded := session.NewStore(session.NewFileStorage(dir), 0, func() time.Time { return now })
	got, err := reloaded.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.IsAuthenticated {
		t.Fatal("expected session to be authenticated after reload")
	}
	if got.AccessToken != "ghu_xxx" {
		t.Errorf("token: want 'ghu_xxx', got '%s'", got.AccessToken)
	}
	if got.User == nil || got.User.Login != "octocat" || got.User.DisplayName != "The Octocat" {
		t.Errorf("unexpected user: %+v", got.User)
	}
	if !got.CapturedAt.Equal(capturedAt) {
		t.Errorf("capturedAt: want %v, got %v", capturedAt, got.CapturedAt)
	}
}

func TestStore_StaleSessionIsCleared(t *testing.T) {
	dir := t.TempDir()
	now := capturedAt
	store := session.NewStore(session.NewFileStorage(dir), 0, func() time.Time { return now })
	if err := store.Save(newTestSession(t)); err != nil {
		t.Fatal(err)
	}

	now = capturedAt.Add(31 * 24 * time.Hour)
	got, err := store.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.IsAuthenticated || got.User != nil || got.AccessToken != "" {
		t.Fatalf("expected cleared session, got %+v", got)
	}
	if _, err := os.Stat(filepath.Join(dir, session.AuthSessionKey+".json")); !os.IsNotExist(err) {
		t.Errorf("expected stale record to be removed from disk, stat err: %v", err)
	}
}

func TestStore_PartialRecordIsNeverAuthenticated(t *testing.T) {
	dir := t.TempDir()
	storage := session.NewFileStorage(dir)
	// isAuthenticated without a token violates the invariant
	raw := `{"isAuthenticated": true, "user": {"login": "octocat"}, "capturedAt": "2026-03-01T12:00:00Z"}`
	if err := storage.Set(session.AuthSessionKey, []byte(raw)); err != nil {
		t.Fatal(err)
	}

	store := session.NewStore(storage, 0, func() time.Time { return capturedAt })
	got, err := store.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.IsAuthenticated {
		t.Fatalf("partial record must not be treated as authenticated: %+v", got)
	}
}

func TestStore_CorruptRecordIsDiscarded(t *testing.T) {
	dir := t.TempDir()
	storage := session.NewFileStorage(dir)
	if err := storage.Set(session.AuthSessionKey, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	store := session.NewStore(storage, 0, nil)
	got, err := store.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.IsAuthenticated {
		t.Fatal("corrupt record must not authenticate")
	}
}

func TestStore_SaveRejectsUnauthenticatedSession(t *testing.T) {
	store := session.NewStore(session.NewFileStorage(t.TempDir()), 0, nil)
	if err := store.Save(domain.AuthSession{IsAuthenticated: true}); err == nil {
		t.Fatal("expected error saving a session without user and token")
	}
}

func TestStore_ClearRemovesSession(t *testing.T) {
	store := session.NewStore(session.NewFileStorage(t.TempDir()), 0, func() time.Time { return capturedAt })
	if err := store.Save(newTestSession(t)); err != nil {
		t.Fatal(err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got.IsAuthenticated {
		t.Fatal("expected no session after Clear")
	}
}

func TestFileStorage_WritesPrivateFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	storage := session.NewFileStorage(dir)
	if err := storage.Set("theme", []byte(`"dark"`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	info, err := os.Stat(filepath.Join(dir, "theme.json"))
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions: want 0600, got %o", perm)
	}
}

func TestFileStorage_RejectsPathKeys(t *testing.T) {
	storage := session.NewFileStorage(t.TempDir())
	if err := storage.Set("../escape", []byte("x")); err == nil {
		t.Fatal("expected error for key containing a path separator")
	}
}

func TestFileStorage_GetMissingKey(t *testing.T) {
	storage := session.NewFileStorage(t.TempDir())
	if _, err := storage.Get("missing"); err != session.ErrNotFound {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestStore_Retention(t *testing.T) {
	storage := session.NewFileStorage(t.TempDir())
	if got := session.NewStore(storage, 0, nil).Retention(); got != session.DefaultRetention {
		t.Errorf("zero retention: want default %v, got %v", session.DefaultRetention, got)
	}
	if got := session.NewStore(storage, 7*24*time.Hour, nil).Retention(); got != 7*24*time.Hour {
		t.Errorf("want 7 days, got %v", got)
	}
}
