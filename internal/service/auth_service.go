package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arturoeanton/repo-sync/internal/domain"
	"github.com/arturoeanton/repo-sync/internal/port"
)

// StateSigner issues and checks the signed OAuth state of the
// repository-connect flow.
type StateSigner interface {
	IssueState(userID string) (string, error)
	VerifyState(state string) (string, error)
}

// PasswordHasher hashes local account passwords.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(hash, plaintext string) error
}

// AuthDeps are the collaborators of AuthService.
type AuthDeps struct {
	Providers port.AuthProviderRegistry
	// Connect is the GitHub provider whose redirect URI points at the
	// repository-connect callback.
	Connect   port.AuthProvider
	Repos     port.RepoProvider
	Users     port.UserStore
	Tokens    port.TokenIssuer
	States    StateSigner
	Passwords PasswordHasher
}

// AuthService handles login, registration and the repository-connect flow.
type AuthService struct {
	providers port.AuthProviderRegistry
	connect   port.AuthProvider
	repos     port.RepoProvider
	users     port.UserStore
	tokens    port.TokenIssuer
	states    StateSigner
	passwords PasswordHasher
	now       func() time.Time
}

// NewAuthService creates a new authentication service.
func NewAuthService(deps AuthDeps) *AuthService {
	return &AuthService{
		providers: deps.Providers,
		connect:   deps.Connect,
		repos:     deps.Repos,
		users:     deps.Users,
		tokens:    deps.Tokens,
		states:    deps.States,
		passwords: deps.Passwords,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// GetAuthURL returns the consent URL for a login provider with a fresh random state.
func (s *AuthService) GetAuthURL(providerName string) (string, string, error) {
	provider, ok := s.providers[providerName]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", port.ErrUnknownProvider, providerName)
	}
	state := uuid.NewString()
	return provider.AuthURL(state), state, nil
}

// HandleCallback processes a login OAuth callback: exchanges the code,
// finds or creates the user by email, replaces the provider sub-record and
// returns a bearer token.
func (s *AuthService) HandleCallback(ctx context.Context, providerName, code string) (string, *domain.User, error) {
	provider, ok := s.providers[providerName]
	if !ok {
		return "", nil, fmt.Errorf("%w: %s", port.ErrUnknownProvider, providerName)
	}

	tokens, err := provider.ExchangeCode(ctx, code)
	if err != nil {
		return "", nil, fmt.Errorf("exchange code: %w", err)
	}

	identity, err := provider.GetUserProfile(ctx, tokens.AccessToken)
	if err != nil {
		return "", nil, fmt.Errorf("get profile: %w", err)
	}
	email := normalizeEmail(identity.Email)
	if email == "" {
		return "", nil, port.Invalid("email", "provider returned no email")
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	isNew := errors.Is(err, port.ErrNotFound)
	if err != nil && !isNew {
		return "", nil, fmt.Errorf("find user: %w", err)
	}
	if isNew {
		name := identity.Name
		if name == "" {
			name = identity.Login
		}
		user = &domain.User{Name: name, Email: email}
	}

	user.Provider = providerName
	switch providerName {
	case domain.ProviderGitHub:
		user.GitHub = &domain.GitHubAccount{
			AccessToken: tokens.AccessToken,
			Username:    identity.Login,
			AvatarURL:   identity.AvatarURL,
			Repos:       []domain.ShadowRepo{},
		}
	case domain.ProviderGoogle:
		user.Google = &domain.GoogleAccount{
			AccessToken: tokens.AccessToken,
			Username:    identity.Email,
			AvatarURL:   identity.AvatarURL,
		}
	}

	if isNew {
		err = s.users.CreateUser(ctx, user)
	} else {
		err = s.users.UpdateUser(ctx, user)
	}
	if err != nil {
		return "", nil, fmt.Errorf("save user: %w", err)
	}

	jwt, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", nil, fmt.Errorf("generate jwt: %w", err)
	}

	slog.Info("user authenticated", "user_id", user.ID, "provider", providerName, "new", isNew)
	return jwt, user, nil
}

// Register creates a local account.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (string, *domain.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return "", nil, port.Invalid("", "Email and password required")
	}
	hash, err := s.passwords.Hash(password)
	if err != nil {
		return "", nil, port.Invalid("password", err.Error())
	}

	user := &domain.User{
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: hash,
		Provider:     domain.ProviderLocal,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return "", nil, err
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", nil, fmt.Errorf("generate jwt: %w", err)
	}
	slog.Info("user registered", "user_id", user.ID)
	return token, user, nil
}

// Login checks local credentials. Unknown emails and wrong passwords are
// indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *domain.User, error) {
	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, port.ErrNotFound) {
		return "", nil, port.ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}
	if user.PasswordHash == "" || s.passwords.Verify(user.PasswordHash, password) != nil {
		return "", nil, port.ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", nil, fmt.Errorf("generate jwt: %w", err)
	}
	return token, user, nil
}

// ConnectURL starts the repository-connect flow for userID.
func (s *AuthService) ConnectURL(userID string) (string, string, error) {
	state, err := s.states.IssueState(userID)
	if err != nil {
		return "", "", fmt.Errorf("issue state: %w", err)
	}
	return s.connect.AuthURL(state), state, nil
}

// ConnectCallback carries everything the repository-connect callback may
// use to identify the user.
type ConnectCallback struct {
	Code       string
	State      string
	Bearer     string
	QueryToken string
}

// ConnectResult is the outcome of a repository-connect callback.
type ConnectResult struct {
	// User is nil when no account could be bound.
	User         *domain.User
	Identity     *domain.Identity
	AccessToken  string
	Repositories []domain.RepoSummary
}

// CompleteConnect exchanges the code, loads the GitHub user and repositories
// and replaces the bound user's GitHub sub-record. The user is resolved from
// the signed state, then the bearer token, then the token query parameter,
// then the GitHub email.
func (s *AuthService) CompleteConnect(ctx context.Context, cb ConnectCallback) (*ConnectResult, error) {
	tokens, err := s.connect.ExchangeCode(ctx, cb.Code)
	if err != nil {
		return nil, err
	}

	identity, err := s.repos.GetAuthenticatedUser(ctx, tokens.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("get github user: %w", err)
	}
	repos, err := s.repos.ListRepositories(ctx, tokens.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}

	res := &ConnectResult{Identity: identity, AccessToken: tokens.AccessToken, Repositories: repos}

	user, err := s.bindConnectUser(ctx, cb, identity)
	if err != nil {
		return nil, err
	}
	if user == nil {
		slog.Warn("github connect: no user bound", "login", identity.Login)
		return res, nil
	}

	now := s.now()
	shadows := make([]domain.ShadowRepo, 0, len(repos))
	for _, r := range repos {
		shadows = append(shadows, domain.ShadowRepo{
			RepoSummary: r,
			Status:      domain.IntegrationStatusActive,
			LastSynced:  now,
		})
	}
	user.GitHub = &domain.GitHubAccount{
		AccessToken: tokens.AccessToken,
		Username:    identity.Login,
		AvatarURL:   identity.AvatarURL,
		ProfileURL:  identity.ProfileURL,
		Bio:         identity.Bio,
		Location:    identity.Location,
		Repos:       shadows,
	}
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("save user: %w", err)
	}
	slog.Info("github connected", "user_id", user.ID, "login", identity.Login, "repos", len(repos))
	res.User = user
	return res, nil
}

func (s *AuthService) bindConnectUser(ctx context.Context, cb ConnectCallback, identity *domain.Identity) (*domain.User, error) {
	var userID string
	if cb.State != "" {
		if id, err := s.states.VerifyState(cb.State); err == nil {
			userID = id
		}
	}
	for _, tok := range []string{cb.Bearer, cb.QueryToken} {
		if userID != "" || tok == "" {
			continue
		}
		if id, err := s.tokens.Verify(tok); err == nil {
			userID = id
		}
	}

	var (
		user *domain.User
		err  error
	)
	switch {
	case userID != "":
		user, err = s.users.GetUserByID(ctx, userID)
	case identity.Email != "":
		user, err = s.users.GetUserByEmail(ctx, normalizeEmail(identity.Email))
	default:
		return nil, nil
	}
	if errors.Is(err, port.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
