// Package proxy implements the device-flow auth proxy: it starts grants with
// the identity provider, keeps the device code server-side, and answers client
// polls with a small status vocabulary.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/waabox/modeldeck/internal/auth"
	"github.com/waabox/modeldeck/internal/domain"
)

// Upstream is the identity provider's device-flow surface.
type Upstream interface {
	RequestCode(ctx context.Context, scope string) (auth.DeviceCodeResponse, error)
	PollToken(ctx context.Context, deviceCode string) (auth.TokenResponse, error)
}

// Service owns the session table and the upstream mapping.
type Service struct {
	upstream Upstream
	store    *Store
	metrics  *Metrics
	log      zerolog.Logger
	now      func() time.Time
	newID    func() (string, error)
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now. Tests pass a fake clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator replaces NewSessionID.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(s *Service) { s.newID = gen }
}

// WithLogger sets the service logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithMetrics sets the collectors updated by Initiate and Poll.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a Service backed by upstream and store.
func NewService(upstream Upstream, store *Store, opts ...Option) *Service {
	s := &Service{
		upstream: upstream,
		store:    store,
		log:      zerolog.Nop(),
		now:      time.Now,
		newID:    NewSessionID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the session table.
func (s *Service) Store() *Store {
	return s.store
}

// Initiate starts a device authorization with the upstream and records it.
// Any failure is reported as domain.ErrInitiationFailed and nothing is stored.
func (s *Service) Initiate(ctx context.Context, scope string) (domain.Grant, error) {
	code, err := s.upstream.RequestCode(ctx, scope)
	if err != nil {
		s.metrics.initiated(false)
		s.log.Error().Err(err).Msg("device flow initiation failed")
		return domain.Grant{}, fmt.Errorf("%w: %w", domain.ErrInitiationFailed, err)
	}
	id, err := s.newID()
	if err != nil {
		s.metrics.initiated(false)
		return domain.Grant{}, fmt.Errorf("%w: %w", domain.ErrInitiationFailed, err)
	}

	sess := domain.DeviceFlowSession{
		SessionID:               id,
		DeviceCode:              code.DeviceCode,
		UserCode:                code.UserCode,
		VerificationURI:         code.VerificationURI,
		VerificationURIComplete: code.VerificationURIComplete,
		ExpiresIn:               code.ExpiresIn,
		Interval:                code.Interval,
		CreatedAt:               s.now(),
	}
	s.store.Put(sess)
	s.metrics.initiated(true)
	s.log.Info().Str("session_id", id).Int("expires_in", sess.ExpiresIn).Msg("device flow initiated")

	return domain.Grant{
		SessionID:               sess.SessionID,
		UserCode:                sess.UserCode,
		VerificationURI:         sess.VerificationURI,
		VerificationURIComplete: sess.VerificationURIComplete,
		ExpiresIn:               sess.ExpiresIn,
		Interval:                sess.Interval,
	}, nil
}

// Poll issues one upstream token request for the session.
//
// Pending and slow_down are returned as results and leave the session untouched.
// A token completes and removes the session. Expiry (local or upstream) and denial
// remove the session and return domain.ErrSessionExpired or domain.ErrAccessDenied.
// Any other upstream failure returns domain.ErrUpstream and keeps the session.
func (s *Service) Poll(ctx context.Context, sessionID string) (res domain.PollResult, err error) {
	defer func() { s.metrics.pollResult(res, err) }()

	sess, ok := s.store.Get(sessionID)
	if !ok {
		return domain.PollResult{}, domain.ErrSessionNotFound
	}
	if sess.Expired(s.now()) {
		s.store.Delete(sessionID)
		s.log.Info().Str("session_id", sessionID).Msg("device session expired")
		return domain.PollResult{}, domain.ErrSessionExpired
	}

	tok, err := s.upstream.PollToken(ctx, sess.DeviceCode)
	switch {
	case err == nil:
		s.store.Delete(sessionID)
		s.log.Info().Str("session_id", sessionID).Msg("device flow completed")
		return domain.PollResult{
			Status:      domain.PollComplete,
			AccessToken: tok.AccessToken,
			TokenType:   tok.TokenType,
			Scope:       tok.Scope,
		}, nil
	case errors.Is(err, auth.ErrAuthorizationPending):
		return domain.PollResult{Status: domain.PollPending}, nil
	case errors.Is(err, auth.ErrSlowDown):
		return domain.PollResult{Status: domain.PollSlowDown}, nil
	case errors.Is(err, auth.ErrExpiredToken):
		s.store.Delete(sessionID)
		return domain.PollResult{}, domain.ErrSessionExpired
	case errors.Is(err, auth.ErrAccessDenied):
		s.store.Delete(sessionID)
		s.log.Info().Str("session_id", sessionID).Msg("device flow denied by user")
		return domain.PollResult{}, domain.ErrAccessDenied
	default:
		s.log.Warn().Err(err).Str("session_id", sessionID).Msg("upstream poll failed")
		return domain.PollResult{}, fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	}
}

// Sweep removes expired sessions as of the service clock.
func (s *Service) Sweep() int {
	return s.store.Sweep(s.now())
}

// RunSweeper sweeps on interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	s.store.RunSweeper(ctx, interval, s.now)
}
