package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/waabox/modeldeck/internal/domain"
)

// AuthSessionKey is the storage key of the persisted AuthSession. It is kept
// apart from any chat, theme or tier records sharing the same storage.
const AuthSessionKey = "modeldeck.auth_session"

// DefaultRetention is how long a persisted session is trusted without re-verification.
const DefaultRetention = 30 * 24 * time.Hour

// Store persists the AuthSession and applies the retention window on load.
// It is the only writer of the persisted session.
type Store struct {
	storage   Storage
	retention time.Duration
	now       func() time.Time
	mu        sync.Mutex
}

// NewStore creates a Store. A zero retention uses DefaultRetention; a nil now uses time.Now.
func NewStore(storage Storage, retention time.Duration, now func() time.Time) *Store {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if now == nil {
		now = time.Now
	}
	return &Store{
		storage:   storage,
		retention: retention,
		now:       now,
	}
}

// Retention returns the configured retention window.
func (s *Store) Retention() time.Duration {
	return s.retention
}

// Load returns the persisted session if it is present, well-formed and within the
// retention window. Stale, malformed or partial records are removed and an
// unauthenticated session is returned. No network access happens here.
func (s *Store) Load() (domain.AuthSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.storage.Get(AuthSessionKey)
	if errors.Is(err, ErrNotFound) {
		return domain.AuthSession{}, nil
	}
	if err != nil {
		return domain.AuthSession{}, fmt.Errorf("loading auth session: %w", err)
	}

	var stored domain.AuthSession
	if jsonErr := json.Unmarshal(data, &stored); jsonErr != nil || !stored.Valid() || stored.Stale(s.now(), s.retention) {
		if rmErr := s.storage.Remove(AuthSessionKey); rmErr != nil {
			return domain.AuthSession{}, fmt.Errorf("discarding auth session: %w", rmErr)
		}
		return domain.AuthSession{}, nil
	}
	return stored, nil
}

// Save persists an authenticated session. Sessions violating the
// authenticated invariant are rejected.
func (s *Store) Save(session domain.AuthSession) error {
	if !session.Valid() {
		return fmt.Errorf("saving auth session: session is not authenticated")
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encoding auth session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.storage.Set(AuthSessionKey, data); err != nil {
		return fmt.Errorf("saving auth session: %w", err)
	}
	return nil
}

// Clear removes the persisted session.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.storage.Remove(AuthSessionKey); err != nil {
		return fmt.Errorf("clearing auth session: %w", err)
	}
	return nil
}
