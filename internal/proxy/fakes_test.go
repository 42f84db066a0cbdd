package proxy_test

import (
	"context"
	"sync"
	"time"

	"github.com/waabox/modeldeck/internal/auth"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type pollReply struct {
	tok auth.TokenResponse
	err error
}

// fakeUpstream returns queued poll replies in order and repeats the last one.
type fakeUpstream struct {
	mu         sync.Mutex
	code       auth.DeviceCodeResponse
	codeErr    error
	replies    []pollReply
	polls      int
	lastScope  string
	lastDevice string
}

func (f *fakeUpstream) RequestCode(_ context.Context, scope string) (auth.DeviceCodeResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastScope = scope
	return f.code, f.codeErr
}

func (f *fakeUpstream) PollToken(_ context.Context, deviceCode string) (auth.TokenResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastDevice = deviceCode
	f.polls++
	if len(f.replies) == 0 {
		return auth.TokenResponse{}, auth.ErrAuthorizationPending
	}
	r := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return r.tok, r.err
}

func (f *fakeUpstream) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

func defaultCode() auth.DeviceCodeResponse {
	return auth.DeviceCodeResponse{
		DeviceCode:              "dev_secret",
		UserCode:                "WXYZ-1234",
		VerificationURI:         "https://github.com/login/device",
		VerificationURIComplete: "https://github.com/login/device?user_code=WXYZ-1234",
		ExpiresIn:               900,
		Interval:                5,
	}
}

func fixedID(id string) func() (string, error) {
	return func() (string, error) { return id, nil }
}
