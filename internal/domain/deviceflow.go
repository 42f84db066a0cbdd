package domain

import "time"

// DeviceFlowSession is the proxy's bookkeeping record for one in-flight
// device authorization. DeviceCode never leaves the proxy.
type DeviceFlowSession struct {
	SessionID               string
	DeviceCode              string
	UserCode                string
	VerificationURI         string
	VerificationURIComplete string
	ExpiresIn               int // seconds, dictated by the upstream
	Interval                int // minimum poll spacing in seconds
	CreatedAt               time.Time
}

// Age returns how long ago the session was created.
func (s DeviceFlowSession) Age(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}

// Expired reports whether the session outlived its upstream lifetime.
func (s DeviceFlowSession) Expired(now time.Time) bool {
	return s.Age(now) > time.Duration(s.ExpiresIn)*time.Second
}

// PollStatus is the non-terminal or successful outcome of a single /poll call.
type PollStatus string

const (
	PollComplete PollStatus = "complete"
	PollPending  PollStatus = "pending"
	PollSlowDown PollStatus = "slow_down"
)

// PollResult is what the proxy reports back for a /poll call that did not fail.
type PollResult struct {
	Status      PollStatus `json:"status"`
	AccessToken string     `json:"access_token,omitempty"`
	TokenType   string     `json:"token_type,omitempty"`
	Scope       string     `json:"scope,omitempty"`
}

// Grant is the data handed to the client after a successful /initiate.
type Grant struct {
	SessionID               string `json:"session_id"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete"`
	ExpiresIn               int    `json:"expires_in"`
	Interval                int    `json:"interval"`
}

// FlowState is a state of the client authentication state machine.
type FlowState string

const (
	StateIdle                 FlowState = "idle"
	StateInitiating           FlowState = "initiating"
	StateAwaitingVerification FlowState = "awaiting_verification"
	StatePolling              FlowState = "polling"
	StateSucceeded            FlowState = "succeeded"
	StateFailed               FlowState = "failed"
	StateCancelled            FlowState = "cancelled"
)

// Terminal reports whether no further transitions happen without a new sign-in.
func (s FlowState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// InFlight reports whether a device-flow attempt currently owns the client.
func (s FlowState) InFlight() bool {
	return s == StateInitiating || s == StateAwaitingVerification || s == StatePolling
}

// FailureReason distinguishes terminal failures for display.
type FailureReason string

const (
	ReasonNone       FailureReason = ""
	ReasonInitiation FailureReason = "initiation"
	ReasonExpired    FailureReason = "expired"
	ReasonDenied     FailureReason = "denied"
	ReasonTimeout    FailureReason = "timeout"
	ReasonProfile    FailureReason = "profile"
	ReasonNetwork    FailureReason = "network"
	ReasonOther      FailureReason = "other"
)
