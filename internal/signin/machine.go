// Package signin drives a device-flow sign-in against the auth proxy and owns
// the client's authenticated session.
package signin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/waabox/modeldeck/internal/domain"
	"github.com/waabox/modeldeck/internal/session"
)

// DefaultSlowDownStep is added to the poll interval after each slow_down.
const DefaultSlowDownStep = 5 * time.Second

const defaultPollInterval = 5 * time.Second

// ErrNotAwaitingVerification is returned by Confirm outside the awaiting_verification state.
var ErrNotAwaitingVerification = errors.New("no sign-in is waiting for verification")

// ProxyAPI is the auth proxy as seen by the client.
type ProxyAPI interface {
	Initiate(ctx context.Context) (domain.Grant, error)
	Poll(ctx context.Context, sessionID string) (domain.PollResult, error)
}

// ProfileFetcher resolves a bearer token into a user profile.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, accessToken string) (domain.User, error)
}

// Prompt is what the user needs to complete verification out of band.
type Prompt struct {
	UserCode                string
	VerificationURI         string
	VerificationURIComplete string
	Deadline                time.Time
}

// Snapshot is an immutable view of the authenticator.
// IsAuthenticated is only ever true together with a User and an AccessToken.
type Snapshot struct {
	State           domain.FlowState
	IsAuthenticated bool
	User            *domain.User
	AccessToken     string
	CapturedAt      time.Time
	IsLoading       bool
	Error           string
	Reason          domain.FailureReason
	Prompt          *Prompt
	Interval        time.Duration
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) { a.now = now }
}

// WithWait replaces the sleep between polls. wait must return ctx.Err() when ctx is done.
func WithWait(wait func(ctx context.Context, d time.Duration) error) Option {
	return func(a *Authenticator) { a.wait = wait }
}

// WithAfter replaces time.After for the verification countdown.
func WithAfter(after func(d time.Duration) <-chan time.Time) Option {
	return func(a *Authenticator) { a.after = after }
}

// WithSlowDownStep sets how much the poll interval grows after a slow_down.
func WithSlowDownStep(step time.Duration) Option {
	return func(a *Authenticator) {
		if step > 0 {
			a.step = step
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(a *Authenticator) { a.log = log }
}

// Authenticator is the client authentication state machine:
//
//	idle -> initiating -> awaiting_verification -> polling -> succeeded | failed | cancelled
//
// At most one attempt is in flight. Starting a new one cancels the previous.
type Authenticator struct {
	proxy    ProxyAPI
	profiles ProfileFetcher
	sessions *session.Store
	now      func() time.Time
	wait     func(ctx context.Context, d time.Duration) error
	after    func(d time.Duration) <-chan time.Time
	step     time.Duration
	log      zerolog.Logger

	mu       sync.Mutex
	state    domain.FlowState
	auth     domain.AuthSession
	err      error
	prompt   *Prompt
	interval time.Duration
	attempt  uint64
	cancel   context.CancelFunc
	confirm  chan struct{}
	done     chan struct{}
	subs     map[int]chan Snapshot
	nextSub  int
}

// New creates an Authenticator in the idle state. Call Load to restore a persisted session.
func New(proxy ProxyAPI, profiles ProfileFetcher, sessions *session.Store, opts ...Option) *Authenticator {
	a := &Authenticator{
		proxy:    proxy,
		profiles: profiles,
		sessions: sessions,
		now:      time.Now,
		wait:     sleep,
		after:    time.After,
		step:     DefaultSlowDownStep,
		log:      zerolog.Nop(),
		state:    domain.StateIdle,
		subs:     make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Load restores the persisted session without any network call.
// Stale or malformed records are discarded by the store.
func (a *Authenticator) Load() error {
	auth, err := a.sessions.Load()
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.auth = auth
	a.notifyLocked()
	return nil
}

// SignIn starts a new device-flow attempt and returns immediately.
// Any attempt already in flight is cancelled first.
func (a *Authenticator) SignIn(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopLocked()
	attemptCtx, cancel := context.WithCancel(ctx)
	a.attempt++
	a.cancel = cancel
	a.done = make(chan struct{})
	a.confirm = make(chan struct{})
	a.state = domain.StateInitiating
	a.err = nil
	a.prompt = nil
	a.interval = 0
	a.notifyLocked()

	go a.run(attemptCtx, a.attempt, a.confirm, a.done)
}

// Confirm tells the authenticator the user has opened the verification link,
// which starts polling.
func (a *Authenticator) Confirm() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != domain.StateAwaitingVerification || a.confirm == nil {
		return ErrNotAwaitingVerification
	}
	close(a.confirm)
	a.confirm = nil
	return nil
}

// Cancel stops the in-flight attempt, if any. The proxy session is left to expire.
func (a *Authenticator) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.state.InFlight() {
		return
	}
	a.stopLocked()
	a.attempt++
	a.state = domain.StateCancelled
	a.err = nil
	a.notifyLocked()
	a.log.Debug().Msg("sign-in cancelled")
}

// SignOut cancels any attempt and clears the persisted session.
func (a *Authenticator) SignOut() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked()
	a.attempt++
	a.state = domain.StateIdle
	a.err = nil
	a.prompt = nil
	a.auth = domain.AuthSession{}
	err := a.sessions.Clear()
	a.notifyLocked()
	if err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

// Wait blocks until the current attempt ends or ctx is done and returns the final snapshot.
// A failed attempt is also reported as an error.
func (a *Authenticator) Wait(ctx context.Context) (Snapshot, error) {
	a.mu.Lock()
	done := a.done
	a.mu.Unlock()
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return a.Snapshot(), ctx.Err()
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	snap := a.snapshotLocked()
	if a.state == domain.StateFailed {
		return snap, a.err
	}
	return snap, nil
}

// Snapshot returns the current state.
func (a *Authenticator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// Token returns the bearer token when authenticated.
func (a *Authenticator) Token() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.auth.Valid() {
		return "", false
	}
	return a.auth.AccessToken, true
}

// Subscribe returns a channel receiving the latest snapshot after every change,
// starting with the current one. Slow readers only see the most recent snapshot.
// The returned func unsubscribes and closes the channel.
func (a *Authenticator) Subscribe() (<-chan Snapshot, func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextSub
	a.nextSub++
	ch := make(chan Snapshot, 1)
	ch <- a.snapshotLocked()
	a.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			delete(a.subs, id)
			close(ch)
		})
	}
}

func (a *Authenticator) run(ctx context.Context, attempt uint64, confirm <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	grant, err := a.proxy.Initiate(ctx)
	if ctx.Err() != nil {
		a.abort(attempt)
		return
	}
	if err != nil {
		if !errors.Is(err, domain.ErrInitiationFailed) {
			err = fmt.Errorf("%w: %w", domain.ErrInitiationFailed, err)
		}
		a.fail(attempt, err)
		return
	}

	interval := time.Duration(grant.Interval) * time.Second
	if interval <= 0 {
		interval = defaultPollInterval
	}
	deadline := a.now().Add(time.Duration(grant.ExpiresIn) * time.Second)
	if !a.transition(attempt, func() {
		a.state = domain.StateAwaitingVerification
		a.interval = interval
		a.prompt = &Prompt{
			UserCode:                grant.UserCode,
			VerificationURI:         grant.VerificationURI,
			VerificationURIComplete: grant.VerificationURIComplete,
			Deadline:                deadline,
		}
	}) {
		return
	}

	select {
	case <-confirm:
	case <-a.after(deadline.Sub(a.now())):
		a.fail(attempt, domain.ErrTimeout)
		return
	case <-ctx.Done():
		a.abort(attempt)
		return
	}

	if !a.transition(attempt, func() { a.state = domain.StatePolling }) {
		return
	}
	a.poll(ctx, attempt, grant.SessionID, interval, deadline)
}

func (a *Authenticator) poll(ctx context.Context, attempt uint64, sessionID string, interval time.Duration, deadline time.Time) {
	for polls := 1; ; polls++ {
		if !a.now().Before(deadline) {
			a.fail(attempt, domain.ErrTimeout)
			return
		}

		res, err := a.proxy.Poll(ctx, sessionID)
		if ctx.Err() != nil {
			a.abort(attempt)
			return
		}
		if err != nil {
			a.fail(attempt, err)
			return
		}
		a.log.Debug().Int("attempt", polls).Str("status", string(res.Status)).Msg("poll")

		switch res.Status {
		case domain.PollComplete:
			a.complete(ctx, attempt, res.AccessToken)
			return
		case domain.PollSlowDown:
			interval += a.step
			a.transition(attempt, func() { a.interval = interval })
		}

		next := interval
		if remaining := deadline.Sub(a.now()); remaining < next {
			next = remaining
		}
		if next > 0 {
			if err := a.wait(ctx, next); err != nil {
				a.abort(attempt)
				return
			}
		}
	}
}

// complete resolves the token into a profile and persists the session.
// The session only becomes visible once both succeed.
func (a *Authenticator) complete(ctx context.Context, attempt uint64, token string) {
	user, err := a.profiles.FetchProfile(ctx, token)
	if ctx.Err() != nil {
		a.abort(attempt)
		return
	}
	if err != nil {
		if !errors.Is(err, domain.ErrProfileUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrProfileUnavailable, err)
		}
		a.fail(attempt, err)
		return
	}
	auth, err := domain.NewAuthSession(user, token, a.now())
	if err != nil {
		a.fail(attempt, err)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.attempt != attempt {
		return
	}
	if err := a.sessions.Save(auth); err != nil {
		a.setFailedLocked(fmt.Errorf("persisting session: %w", err))
		return
	}
	a.auth = auth
	a.state = domain.StateSucceeded
	a.err = nil
	a.prompt = nil
	a.stopLocked()
	a.notifyLocked()
	a.log.Info().Str("login", user.Login).Msg("signed in")
}

// transition applies fn under the lock if attempt is still current and notifies subscribers.
func (a *Authenticator) transition(attempt uint64, fn func()) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.attempt != attempt {
		return false
	}
	fn()
	a.notifyLocked()
	return true
}

func (a *Authenticator) fail(attempt uint64, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.attempt != attempt {
		return
	}
	a.setFailedLocked(err)
}

func (a *Authenticator) setFailedLocked(err error) {
	a.state = domain.StateFailed
	a.err = err
	a.stopLocked()
	a.notifyLocked()
	a.log.Warn().Err(err).Str("reason", string(domain.Reason(err))).Msg("sign-in failed")
}

// abort marks the attempt cancelled when its context ended without a Cancel call.
func (a *Authenticator) abort(attempt uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.attempt != attempt {
		return
	}
	a.state = domain.StateCancelled
	a.err = nil
	a.stopLocked()
	a.notifyLocked()
}

func (a *Authenticator) stopLocked() {
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.confirm = nil
}

func (a *Authenticator) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:     a.state,
		IsLoading: a.state == domain.StateInitiating || a.state == domain.StatePolling,
		Interval:  a.interval,
	}
	if a.auth.Valid() {
		u := *a.auth.User
		snap.IsAuthenticated = true
		snap.User = &u
		snap.AccessToken = a.auth.AccessToken
		snap.CapturedAt = a.auth.CapturedAt
	}
	if a.state == domain.StateFailed && a.err != nil {
		snap.Error = a.err.Error()
		snap.Reason = domain.Reason(a.err)
	}
	if a.prompt != nil && a.state.InFlight() {
		p := *a.prompt
		snap.Prompt = &p
	}
	return snap
}

func (a *Authenticator) notifyLocked() {
	snap := a.snapshotLocked()
	for _, ch := range a.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
