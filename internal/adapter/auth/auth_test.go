package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"

	"github.com/arturoeanton/repo-sync/internal/domain"
	"github.com/arturoeanton/repo-sync/internal/port"
)

func newGitHubServer(t *testing.T, tokenBody string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/login/oauth/access_token":
			fmt.Fprint(w, tokenBody)
		case "/user":
			assert.Equal(t, "Bearer gho_test", r.Header.Get("Authorization"))
			fmt.Fprint(w, `{"id":7,"login":"octo","name":"","email":"public@example.com","avatar_url":"https://a/octo.png","html_url":"https://github.com/octo"}`)
		case "/user/emails":
			fmt.Fprint(w, `[{"email":"other@example.com","primary":false,"verified":true},{"email":"octo@example.com","primary":true,"verified":true}]`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestGitHubProvider(srv *httptest.Server) *GitHubProvider {
	return NewGitHubProvider("client", "secret", "http://localhost/callback",
		WithEndpoint(oauth2.Endpoint{
			AuthURL:  srv.URL + "/login/oauth/authorize",
			TokenURL: srv.URL + "/login/oauth/access_token",
		}),
		WithAPIBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
	)
}

func TestGitHubAuthURL(t *testing.T) {
	p := NewGitHubProvider("client", "secret", "http://localhost/callback")

	u, err := url.Parse(p.AuthURL("state-1"))
	require.NoError(t, err)
	assert.Equal(t, "github.com", u.Host)
	assert.Equal(t, "state-1", u.Query().Get("state"))
	assert.Equal(t, "client", u.Query().Get("client_id"))
	assert.Contains(t, u.Query().Get("scope"), "admin:repo_hook")
	assert.Equal(t, domain.ProviderGitHub, p.ProviderName())
}

func TestGitHubExchangeAndProfile(t *testing.T) {
	srv := newGitHubServer(t, `{"access_token":"gho_test","token_type":"bearer","scope":"repo"}`)
	p := newTestGitHubProvider(srv)
	ctx := context.Background()

	tok, err := p.ExchangeCode(ctx, "code-1")
	require.NoError(t, err)
	assert.Equal(t, "gho_test", tok.AccessToken)

	id, err := p.GetUserProfile(ctx, tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id.ProviderID)
	assert.Equal(t, "octo@example.com", id.Email, "primary verified email wins")
	assert.Equal(t, "octo", id.Name, "login stands in for an empty name")
	assert.Equal(t, "https://github.com/octo", id.ProfileURL)
}

func TestGitHubExchangeWithoutToken(t *testing.T) {
	srv := newGitHubServer(t, `{"token_type":"bearer"}`)

	_, err := newTestGitHubProvider(srv).ExchangeCode(context.Background(), "code-1")
	assert.ErrorIs(t, err, port.ErrNoAccessToken)
}

func TestGitHubExchangeErrorCode(t *testing.T) {
	srv := newGitHubServer(t, `{"error":"bad_verification_code","error_description":"The code passed is incorrect or expired."}`)

	_, err := newTestGitHubProvider(srv).ExchangeCode(context.Background(), "stale")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "bad_verification_code"), err.Error())
}

func TestPasswordService(t *testing.T) {
	p := NewPasswordService(bcrypt.MinCost)

	hash, err := p.Hash("hunter22")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22", hash)

	assert.NoError(t, p.Verify(hash, "hunter22"))
	assert.ErrorIs(t, p.Verify(hash, "wrong"), ErrInvalidPassword)

	_, err = p.Hash(strings.Repeat("x", maxPasswordBytes+1))
	assert.Error(t, err)
}
