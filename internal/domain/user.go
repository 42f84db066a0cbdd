package domain

import (
	"fmt"
	"time"
)

// User is the provider profile snapshot captured when a sign-in completes.
// Optional fields absent from the provider response are left at their zero value.
type User struct {
	ID              int64  `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"displayName"`
	Email           string `json:"email"`
	AvatarURL       string `json:"avatarUrl"`
	Bio             string `json:"bio"`
	Company         string `json:"company"`
	Location        string `json:"location"`
	PublicRepoCount int    `json:"publicRepoCount"`
	FollowerCount   int    `json:"followerCount"`
	FollowingCount  int    `json:"followingCount"`
}

// AuthSession is the durable record of a completed authentication.
// IsAuthenticated implies User and AccessToken are both set.
type AuthSession struct {
	IsAuthenticated bool      `json:"isAuthenticated"`
	User            *User     `json:"user"`
	AccessToken     string    `json:"accessToken,omitempty"`
	CapturedAt      time.Time `json:"capturedAt"`
}

// NewAuthSession builds an authenticated session. It refuses to build one
// without a login or a token so that no partial session can ever be persisted.
func NewAuthSession(user User, accessToken string, capturedAt time.Time) (AuthSession, error) {
	if accessToken == "" {
		return AuthSession{}, fmt.Errorf("building auth session: empty access token")
	}
	if user.Login == "" {
		return AuthSession{}, fmt.Errorf("building auth session: %w", ErrProfileUnavailable)
	}
	u := user
	return AuthSession{
		IsAuthenticated: true,
		User:            &u,
		AccessToken:     accessToken,
		CapturedAt:      capturedAt,
	}, nil
}

// Valid reports whether the session satisfies the authenticated invariant.
func (s AuthSession) Valid() bool {
	return s.IsAuthenticated && s.User != nil && s.AccessToken != ""
}

// Stale reports whether the session was captured longer than retention ago.
func (s AuthSession) Stale(now time.Time, retention time.Duration) bool {
	return now.Sub(s.CapturedAt) > retention
}
