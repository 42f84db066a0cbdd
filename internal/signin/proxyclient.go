package signin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/waabox/modeldeck/internal/domain"
)

// ProxyClient calls the auth proxy's device-flow endpoints.
type ProxyClient struct {
	baseURL string
	client  *http.Client
}

// NewProxyClient creates a ProxyClient for the proxy at baseURL.
func NewProxyClient(baseURL string) *ProxyClient {
	return &ProxyClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Initiate starts a device flow. Any failure wraps domain.ErrInitiationFailed.
func (p *ProxyClient) Initiate(ctx context.Context) (domain.Grant, error) {
	var grant domain.Grant
	status, err := p.post(ctx, "/auth/device-flow/initiate", struct{}{}, &grant)
	if err != nil {
		return domain.Grant{}, fmt.Errorf("%w: %w", domain.ErrInitiationFailed, err)
	}
	if status != http.StatusOK {
		return domain.Grant{}, fmt.Errorf("%w: proxy responded %d", domain.ErrInitiationFailed, status)
	}
	if grant.SessionID == "" || grant.UserCode == "" {
		return domain.Grant{}, fmt.Errorf("%w: incomplete response from proxy", domain.ErrInitiationFailed)
	}
	if grant.VerificationURIComplete == "" {
		grant.VerificationURIComplete = grant.VerificationURI
	}
	return grant, nil
}

// Poll asks the proxy for the current state of a session.
// 404 maps to domain.ErrSessionNotFound, 410 to domain.ErrSessionExpired,
// 403 to domain.ErrAccessDenied and any other failure status to domain.ErrUpstream.
func (p *ProxyClient) Poll(ctx context.Context, sessionID string) (domain.PollResult, error) {
	var res domain.PollResult
	status, err := p.post(ctx, "/auth/device-flow/poll", map[string]string{"session_id": sessionID}, &res)
	if err != nil {
		return domain.PollResult{}, err
	}
	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return domain.PollResult{}, domain.ErrSessionNotFound
	case http.StatusGone:
		return domain.PollResult{}, domain.ErrSessionExpired
	case http.StatusForbidden:
		return domain.PollResult{}, domain.ErrAccessDenied
	default:
		return domain.PollResult{}, fmt.Errorf("%w: proxy responded %d", domain.ErrUpstream, status)
	}
	switch res.Status {
	case domain.PollComplete:
		if res.AccessToken == "" {
			return domain.PollResult{}, fmt.Errorf("%w: complete without access token", domain.ErrUpstream)
		}
	case domain.PollPending, domain.PollSlowDown:
	default:
		return domain.PollResult{}, fmt.Errorf("%w: unknown poll status %q", domain.ErrUpstream, res.Status)
	}
	return res, nil
}

// post sends body as JSON and decodes a 200 response into target.
// Non-200 bodies are drained and only the status is returned.
func (p *ProxyClient) post(ctx context.Context, path string, body, target interface{}) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return resp.StatusCode, fmt.Errorf("decoding response: %w", err)
	}
	return resp.StatusCode, nil
}
