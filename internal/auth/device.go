package auth

import (
	"errors"
	"fmt"
)

// DeviceCodeResponse holds the initial response from a device authorization request.
// It contains the code to show the user and the parameters needed for polling.
type DeviceCodeResponse struct {
	DeviceCode              string
	UserCode                string
	VerificationURI         string
	VerificationURIComplete string
	ExpiresIn               int // seconds until the device code expires
	Interval                int // minimum polling interval in seconds
}

// TokenResponse holds the token returned after the user authorized the device.
type TokenResponse struct {
	AccessToken string
	TokenType   string
	Scope       string
}

// Device-flow error codes returned by the token endpoint while a grant is not complete.
var (
	ErrAuthorizationPending = errors.New("authorization_pending")
	ErrSlowDown             = errors.New("slow_down")
	ErrExpiredToken         = errors.New("expired_token")
	ErrAccessDenied         = errors.New("access_denied")
)

// UpstreamError is any other error code reported by the identity provider.
type UpstreamError struct {
	Code        string
	Description string
}

func (e *UpstreamError) Error() string {
	code := e.Code
	if len(code) > 100 {
		code = code[:100]
	}
	if e.Description == "" {
		return fmt.Sprintf("unexpected error from GitHub: %s", code)
	}
	return fmt.Sprintf("unexpected error from GitHub: %s: %s", code, e.Description)
}
