package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/waabox/modeldeck/internal/domain"
	"golang.org/x/oauth2"
)

const githubAPIDefaultBaseURL = "https://api.github.com"

// ProfileClient resolves a bearer token into the GitHub user profile.
type ProfileClient struct {
	baseURL string
	client  *http.Client
}

// NewProfileClient creates a ProfileClient.
// Pass an empty baseURL to use the real GitHub API. Pass a test server URL in tests.
func NewProfileClient(baseURL string) *ProfileClient {
	if baseURL == "" {
		baseURL = githubAPIDefaultBaseURL
	}
	return &ProfileClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// FetchProfile fetches /user with the token attached as a bearer credential.
// Every failure wraps domain.ErrProfileUnavailable; a 401 also wraps domain.ErrUnauthorized.
func (p *ProfileClient) FetchProfile(ctx context.Context, accessToken string) (domain.User, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/user", nil)
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: creating request: %v", domain.ErrProfileUnavailable, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: fetching profile: %v", domain.ErrProfileUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return domain.User{}, fmt.Errorf("%w: %w", domain.ErrProfileUnavailable, domain.ErrUnauthorized)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.User{}, fmt.Errorf("%w: github API error: %s %s", domain.ErrProfileUnavailable, resp.Status, strings.TrimSpace(string(body)))
	}

	var raw githubUser
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return domain.User{}, fmt.Errorf("%w: decoding profile: %v", domain.ErrProfileUnavailable, err)
	}
	if raw.Login == "" {
		return domain.User{}, fmt.Errorf("%w: profile without login", domain.ErrProfileUnavailable)
	}
	return raw.toUser(), nil
}

// githubUser is the raw GitHub API response shape for /user.
// Nullable fields decode to their zero value.
type githubUser struct {
	ID          int64  `json:"id"`
	Login       string `json:"login"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	AvatarURL   string `json:"avatar_url"`
	Bio         string `json:"bio"`
	Company     string `json:"company"`
	Location    string `json:"location"`
	PublicRepos int    `json:"public_repos"`
	Followers   int    `json:"followers"`
	Following   int    `json:"following"`
}

func (u githubUser) toUser() domain.User {
	display := u.Name
	if display == "" {
		display = u.Login
	}
	return domain.User{
		ID:              u.ID,
		Login:           u.Login,
		DisplayName:     display,
		Email:           u.Email,
		AvatarURL:       u.AvatarURL,
		Bio:             u.Bio,
		Company:         u.Company,
		Location:        u.Location,
		PublicRepoCount: u.PublicRepos,
		FollowerCount:   u.Followers,
		FollowingCount:  u.Following,
	}
}
