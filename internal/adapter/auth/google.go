package auth

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/arturoeanton/repo-sync/internal/domain"
)

const defaultGoogleProfileURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// GoogleProvider implements port.AuthProvider for Google OAuth2.
type GoogleProvider struct {
	config     *oauth2.Config
	profileURL string
	httpClient *http.Client
}

// NewGoogleProvider creates a new Google OAuth2 provider.
func NewGoogleProvider(clientID, clientSecret, redirectURL string, opts ...Option) *GoogleProvider {
	o := applyOptions(opts)
	endpoint := google.Endpoint
	if o.endpoint != nil {
		endpoint = *o.endpoint
	}
	scopes := o.scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "profile"}
	}
	profileURL := defaultGoogleProfileURL
	if o.apiBaseURL != "" {
		profileURL = o.apiBaseURL + "/oauth2/v2/userinfo"
	}
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		profileURL: profileURL,
		httpClient: o.httpClient,
	}
}

// ProviderName returns "google".
func (g *GoogleProvider) ProviderName() string {
	return domain.ProviderGoogle
}

// AuthURL returns the Google OAuth2 consent screen URL.
func (g *GoogleProvider) AuthURL(state string) string {
	return g.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

// ExchangeCode exchanges an authorization code for tokens.
func (g *GoogleProvider) ExchangeCode(ctx context.Context, code string) (*domain.TokenPair, error) {
	return exchange(ctx, g.config, g.httpClient, "google", code)
}

// GetUserProfile fetches the Google user profile using an access token.
func (g *GoogleProvider) GetUserProfile(ctx context.Context, accessToken string) (*domain.Identity, error) {
	var profile struct {
		ID      string `json:"id"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := getJSON(ctx, g.httpClient, g.profileURL, accessToken, &profile); err != nil {
		return nil, fmt.Errorf("google: fetch profile: %w", err)
	}

	return &domain.Identity{
		Provider:  domain.ProviderGoogle,
		Login:     profile.Email,
		Name:      profile.Name,
		Email:     profile.Email,
		AvatarURL: profile.Picture,
	}, nil
}
