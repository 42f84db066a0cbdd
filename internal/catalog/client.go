// Package catalog lists the models available to the signed-in user.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/waabox/modeldeck/internal/domain"
)

const defaultBaseURL = "https://models.github.ai"

// Model is one entry of the model catalog.
type Model struct {
	ID            string
	Name          string
	Publisher     string
	Summary       string
	RateLimitTier string
	Capabilities  []string
}

// Lister lists models using a bearer token.
type Lister interface {
	ListModels(ctx context.Context, token string) ([]Model, error)
}

// Client calls the GitHub Models catalog API.
type Client struct {
	baseURL string
	client  *http.Client
}

var _ Lister = (*Client)(nil)

// NewClient creates a catalog client.
// baseURL is used for testing; pass empty string to use the real endpoint.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// ListModels returns the catalog. A 401 is reported as domain.ErrUnauthorized.
func (c *Client) ListModels(ctx context.Context, token string) ([]Model, error) {
	var raw []catalogModel
	if err := c.get(ctx, c.baseURL+"/catalog/models", token, &raw); err != nil {
		return nil, err
	}
	models := make([]Model, len(raw))
	for i, m := range raw {
		models[i] = m.toModel()
	}
	return models, nil
}

func (c *Client) get(ctx context.Context, url, token string, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return domain.ErrUnauthorized
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("models API error: %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// catalogModel is the raw catalog response shape.
type catalogModel struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Publisher     string   `json:"publisher"`
	Summary       string   `json:"summary"`
	RateLimitTier string   `json:"rate_limit_tier"`
	Capabilities  []string `json:"capabilities"`
}

func (m catalogModel) toModel() Model {
	name := m.Name
	if name == "" {
		name = m.ID
	}
	return Model{
		ID:            m.ID,
		Name:          name,
		Publisher:     m.Publisher,
		Summary:       m.Summary,
		RateLimitTier: m.RateLimitTier,
		Capabilities:  m.Capabilities,
	}
}
