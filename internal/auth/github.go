package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	githubOAuth2 "golang.org/x/oauth2/github"
)

const githubDefaultBaseURL = "https://github.com"

const (
	defaultExpiresIn = 900
	defaultInterval  = 5
)

// GitHubDeviceFlow talks to GitHub's OAuth 2.0 Device Authorization endpoints on
// behalf of the proxy. It only needs the public client ID; no client secret is used.
// See https://docs.github.com/en/apps/oauth-apps/building-oauth-apps/authorizing-oauth-apps#device-flow
type GitHubDeviceFlow struct {
	clientID string
	tokenURL string
	oauth    *oauth2.Config
	client   *http.Client
}

// NewGitHubDeviceFlow creates a GitHubDeviceFlow.
// Pass an empty baseURL to use the real GitHub endpoints. Pass a test server URL in tests.
func NewGitHubDeviceFlow(clientID string, scopes []string, baseURL string, timeout time.Duration) *GitHubDeviceFlow {
	endpoint := githubOAuth2.Endpoint
	if baseURL != "" && baseURL != githubDefaultBaseURL {
		base := strings.TrimRight(baseURL, "/")
		endpoint = oauth2.Endpoint{
			AuthURL:       base + "/login/oauth/authorize",
			DeviceAuthURL: base + "/login/device/code",
			TokenURL:      base + "/login/oauth/access_token",
		}
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &GitHubDeviceFlow{
		clientID: clientID,
		tokenURL: endpoint.TokenURL,
		oauth: &oauth2.Config{
			ClientID: clientID,
			Scopes:   scopes,
			Endpoint: endpoint,
		},
		client: &http.Client{Timeout: timeout},
	}
}

// RequestCode requests a device code and user code from GitHub.
// A non-empty scope overrides the configured scopes for this grant.
func (f *GitHubDeviceFlow) RequestCode(ctx context.Context, scope string) (DeviceCodeResponse, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.client)

	var opts []oauth2.AuthCodeOption
	if scope != "" {
		opts = append(opts, oauth2.SetAuthURLParam("scope", scope))
	}
	resp, err := f.oauth.DeviceAuth(ctx, opts...)
	if err != nil {
		return DeviceCodeResponse{}, fmt.Errorf("requesting device code: %w", err)
	}
	if resp.DeviceCode == "" || resp.UserCode == "" {
		return DeviceCodeResponse{}, fmt.Errorf("requesting device code: incomplete response from GitHub")
	}

	expiresIn := defaultExpiresIn
	if !resp.Expiry.IsZero() {
		expiresIn = int(time.Until(resp.Expiry).Round(time.Second) / time.Second)
	}
	interval := int(resp.Interval)
	if interval <= 0 {
		interval = defaultInterval
	}
	complete := resp.VerificationURIComplete
	if complete == "" {
		complete = resp.VerificationURI
	}
	return DeviceCodeResponse{
		DeviceCode:              resp.DeviceCode,
		UserCode:                resp.UserCode,
		VerificationURI:         resp.VerificationURI,
		VerificationURIComplete: complete,
		ExpiresIn:               expiresIn,
		Interval:                interval,
	}, nil
}

// PollToken performs exactly one request against the GitHub token endpoint.
// A grant that is not complete yet is reported through the Err* sentinels
// (authorization_pending, slow_down, expired_token, access_denied) or an *UpstreamError.
// Transport and decoding failures are returned wrapped.
func (f *GitHubDeviceFlow) PollToken(ctx context.Context, deviceCode string) (TokenResponse, error) {
	data := url.Values{}
	data.Set("client_id", f.clientID)
	data.Set("device_code", deviceCode)
	data.Set("grant_type", "urn:ietf:params:oauth:grant-type:device_code")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return TokenResponse{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.client.Do(req)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("polling token: %w", err)
	}
	defer resp.Body.Close()

	var raw struct {
		AccessToken      string `json:"access_token"`
		TokenType        string `json:"token_type"`
		Scope            string `json:"scope"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return TokenResponse{}, fmt.Errorf("decoding token response (%s): %w", resp.Status, err)
	}

	switch raw.Error {
	case "":
		if raw.AccessToken == "" {
			return TokenResponse{}, &UpstreamError{Code: "empty_response", Description: resp.Status}
		}
		return TokenResponse{
			AccessToken: raw.AccessToken,
			TokenType:   raw.TokenType,
			Scope:       raw.Scope,
		}, nil
	case "authorization_pending":
		return TokenResponse{}, ErrAuthorizationPending
	case "slow_down":
		return TokenResponse{}, ErrSlowDown
	case "expired_token":
		return TokenResponse{}, ErrExpiredToken
	case "access_denied":
		return TokenResponse{}, ErrAccessDenied
	default:
		return TokenResponse{}, &UpstreamError{Code: raw.Error, Description: raw.ErrorDescription}
	}
}
