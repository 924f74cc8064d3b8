package port

import (
	"context"

	"github.com/arturoeanton/repo-sync/internal/domain"
)

// AuthProvider abstracts the OAuth2 identity provider.
// Implementations handle token exchange and user profile retrieval
// for a specific provider (Google, GitHub).
type AuthProvider interface {
	// ProviderName returns the name of this provider (e.g. "google", "github").
	ProviderName() string

	// AuthURL returns the full OAuth2 authorization URL for redirecting the user.
	AuthURL(state string) string

	// ExchangeCode exchanges an authorization code for an access token.
	// A response without a token yields ErrNoAccessToken.
	ExchangeCode(ctx context.Context, code string) (*domain.TokenPair, error)

	// GetUserProfile fetches the authenticated user's identity from the provider.
	GetUserProfile(ctx context.Context, accessToken string) (*domain.Identity, error)
}

// AuthProviderRegistry holds multiple AuthProvider implementations keyed by name.
type AuthProviderRegistry map[string]AuthProvider

// TokenIssuer signs and verifies the server's bearer tokens.
type TokenIssuer interface {
	Issue(userID string) (string, error)
	Verify(token string) (string, error)
}
