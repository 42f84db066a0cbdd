package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/waabox/modeldeck/internal/domain"
)

// SessionRevokedError is returned when the provider rejected the stored token.
// The persisted session has been cleared and the user must sign in again.
type SessionRevokedError struct {
	Cause error
}

func (e *SessionRevokedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("session revoked: sign in again (clearing session: %v)", e.Cause)
	}
	return "session revoked: sign in again"
}

// TokenSource exposes the current bearer token and a way to drop it.
type TokenSource interface {
	Token() (string, bool)
	SignOut() error
}

// Guarded lists models with the token from a TokenSource and signs out when
// the provider answers 401, so a revoked token is never reused.
type Guarded struct {
	inner  Lister
	tokens TokenSource
}

// NewGuarded creates a Guarded lister.
func NewGuarded(inner Lister, tokens TokenSource) *Guarded {
	return &Guarded{inner: inner, tokens: tokens}
}

// ErrNotSignedIn is returned when there is no token to use.
var ErrNotSignedIn = errors.New("not signed in")

// ListModels lists models for the current session.
func (g *Guarded) ListModels(ctx context.Context) ([]Model, error) {
	token, ok := g.tokens.Token()
	if !ok {
		return nil, ErrNotSignedIn
	}
	models, err := g.inner.ListModels(ctx, token)
	if err != nil && errors.Is(err, domain.ErrUnauthorized) {
		return nil, &SessionRevokedError{Cause: g.tokens.SignOut()}
	}
	return models, err
}
