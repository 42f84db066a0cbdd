// internal/domain/errors.go
package domain

import "errors"

// ErrUnauthorized is returned by API consumers when the upstream responds with HTTP 401.
// Callers can check for it using errors.Is to clear the persisted session.
var ErrUnauthorized = errors.New("unauthorized")

// Device-flow failures shared by the proxy and the client.
var (
	ErrSessionNotFound    = errors.New("device flow session not found")
	ErrSessionExpired     = errors.New("device code expired")
	ErrAccessDenied       = errors.New("access denied by user")
	ErrInitiationFailed   = errors.New("could not start sign-in")
	ErrUpstream           = errors.New("identity provider error")
	ErrProfileUnavailable = errors.New("authenticated but profile unavailable")
	ErrTimeout            = errors.New("sign-in timed out")
	ErrCancelled          = errors.New("sign-in cancelled")
)

// Reason maps an error onto the failure reason shown to the user.
func Reason(err error) FailureReason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, ErrInitiationFailed):
		return ReasonInitiation
	case errors.Is(err, ErrSessionExpired), errors.Is(err, ErrSessionNotFound):
		return ReasonExpired
	case errors.Is(err, ErrAccessDenied):
		return ReasonDenied
	case errors.Is(err, ErrTimeout):
		return ReasonTimeout
	case errors.Is(err, ErrProfileUnavailable):
		return ReasonProfile
	case errors.Is(err, ErrUpstream):
		return ReasonOther
	default:
		return ReasonNetwork
	}
}
