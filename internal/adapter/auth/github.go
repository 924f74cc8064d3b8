package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/arturoeanton/repo-sync/internal/domain"
	"github.com/arturoeanton/repo-sync/internal/port"
)

const defaultGitHubAPI = "https://api.github.com"

// Option customizes a provider. Tests use it to point at fake servers.
type Option func(*options)

type options struct {
	endpoint   *oauth2.Endpoint
	apiBaseURL string
	httpClient *http.Client
	scopes     []string
}

// WithEndpoint overrides the OAuth2 authorize/token endpoints.
func WithEndpoint(ep oauth2.Endpoint) Option {
	return func(o *options) { o.endpoint = &ep }
}

// WithAPIBaseURL overrides the base URL used for profile requests.
func WithAPIBaseURL(u string) Option {
	return func(o *options) { o.apiBaseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets the client used for both the exchange and profile calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithScopes replaces the default scopes.
func WithScopes(scopes ...string) Option {
	return func(o *options) { o.scopes = scopes }
}

func applyOptions(opts []Option) options {
	o := options{httpClient: http.DefaultClient}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// GitHubProvider implements port.AuthProvider for GitHub OAuth.
type GitHubProvider struct {
	config     *oauth2.Config
	apiBaseURL string
	httpClient *http.Client
}

// NewGitHubProvider creates a new GitHub OAuth provider.
func NewGitHubProvider(clientID, clientSecret, redirectURL string, opts ...Option) *GitHubProvider {
	o := applyOptions(opts)
	endpoint := github.Endpoint
	if o.endpoint != nil {
		endpoint = *o.endpoint
	}
	scopes := o.scopes
	if len(scopes) == 0 {
		scopes = []string{"user:email", "read:user", "repo", "admin:repo_hook"}
	}
	base := o.apiBaseURL
	if base == "" {
		base = defaultGitHubAPI
	}
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		apiBaseURL: base,
		httpClient: o.httpClient,
	}
}

// ProviderName returns "github".
func (g *GitHubProvider) ProviderName() string {
	return domain.ProviderGitHub
}

// AuthURL returns the GitHub OAuth consent screen URL.
func (g *GitHubProvider) AuthURL(state string) string {
	return g.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// ExchangeCode exchanges an authorization code for an access token.
func (g *GitHubProvider) ExchangeCode(ctx context.Context, code string) (*domain.TokenPair, error) {
	return exchange(ctx, g.config, g.httpClient, "github", code)
}

// GetUserProfile fetches the GitHub user profile using an access token.
func (g *GitHubProvider) GetUserProfile(ctx context.Context, accessToken string) (*domain.Identity, error) {
	var profile struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
		HTMLURL   string `json:"html_url"`
		Bio       string `json:"bio"`
		Location  string `json:"location"`
	}
	if err := getJSON(ctx, g.httpClient, g.apiBaseURL+"/user", accessToken, &profile); err != nil {
		return nil, fmt.Errorf("github: fetch profile: %w", err)
	}

	// The primary verified address wins over the public profile email.
	email, err := g.fetchPrimaryEmail(ctx, accessToken)
	if err != nil || email == "" {
		email = profile.Email
	}

	name := profile.Name
	if name == "" {
		name = profile.Login
	}

	return &domain.Identity{
		Provider:   domain.ProviderGitHub,
		ProviderID: profile.ID,
		Login:      profile.Login,
		Name:       name,
		Email:      email,
		AvatarURL:  profile.AvatarURL,
		ProfileURL: profile.HTMLURL,
		Bio:        profile.Bio,
		Location:   profile.Location,
	}, nil
}

// fetchPrimaryEmail gets the user's primary verified email from /user/emails.
func (g *GitHubProvider) fetchPrimaryEmail(ctx context.Context, accessToken string) (string, error) {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := getJSON(ctx, g.httpClient, g.apiBaseURL+"/user/emails", accessToken, &emails); err != nil {
		return "", err
	}

	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	return "", fmt.Errorf("no primary verified email")
}

func exchange(ctx context.Context, cfg *oauth2.Config, client *http.Client, name, code string) (*domain.TokenPair, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, client)
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		if strings.Contains(err.Error(), "missing access_token") {
			return nil, fmt.Errorf("%s: token exchange: %w", name, port.ErrNoAccessToken)
		}
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.ErrorCode != "" {
			return nil, fmt.Errorf("%s: %s: %s", name, rerr.ErrorCode, rerr.ErrorDescription)
		}
		return nil, fmt.Errorf("%s: token exchange: %w", name, err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%s: token exchange: %w", name, port.ErrNoAccessToken)
	}
	return &domain.TokenPair{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}, nil
}

func getJSON(ctx context.Context, client *http.Client, url, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request failed (%d): %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
