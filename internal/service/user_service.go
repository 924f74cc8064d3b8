package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/arturoeanton/repo-sync/internal/domain"
	"github.com/arturoeanton/repo-sync/internal/port"
)

// ProfileUpdate is the editable subset of a user. Nil fields are left alone.
type ProfileUpdate struct {
	Name    *string         `json:"name"`
	Profile *domain.Profile `json:"profile"`
}

// UserService serves profile and GitHub-status reads for the current user.
type UserService struct {
	users port.UserStore
	repos port.RepoProvider
}

// NewUserService creates a user service.
func NewUserService(users port.UserStore, repos port.RepoProvider) *UserService {
	return &UserService{users: users, repos: repos}
}

// Profile returns the user.
func (s *UserService) Profile(ctx context.Context, userID string) (*domain.User, error) {
	return s.users.GetUserByID(ctx, userID)
}

// UpdateProfile applies name and profile changes. Email, provider and
// provider sub-records are never writable here.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*domain.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, port.Invalid("name", "must not be empty")
		}
		user.Name = name
	}
	if upd.Profile != nil {
		user.Profile = *upd.Profile
	}
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return user, nil
}

// GitHubStatus describes the user's GitHub connection.
type GitHubStatus struct {
	Connected   bool                  `json:"connected"`
	AccessToken *string               `json:"accessToken"`
	GitHubUser  *domain.GitHubAccount `json:"githubUser"`
}

// GitHubStatus reports whether the user holds a GitHub token.
func (s *UserService) GitHubStatus(ctx context.Context, userID string) (*GitHubStatus, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	st := &GitHubStatus{}
	if gh := user.GitHub; gh != nil && gh.AccessToken != "" {
		token := gh.AccessToken
		st.Connected = true
		st.AccessToken = &token
		st.GitHubUser = gh
	}
	return st, nil
}

// StoredRepositories returns the user's shadow list. A user without a
// GitHub sub-record yields ErrNotFound.
func (s *UserService) StoredRepositories(ctx context.Context, userID string) ([]domain.ShadowRepo, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.GitHub == nil || user.GitHub.Repos == nil {
		return nil, fmt.Errorf("stored repositories: %w", port.ErrNotFound)
	}
	return user.GitHub.Repos, nil
}

// Repositories lists the GitHub repositories visible to token. An empty
// token falls back to the one stored on the user.
func (s *UserService) Repositories(ctx context.Context, userID, token string) ([]domain.RepoSummary, error) {
	if token == "" && userID != "" {
		user, err := s.users.GetUserByID(ctx, userID)
		if err != nil && !errors.Is(err, port.ErrNotFound) {
			return nil, err
		}
		if user != nil && user.GitHub != nil {
			token = user.GitHub.AccessToken
		}
	}
	if token == "" {
		return nil, port.Invalid("accessToken", "Access token required")
	}
	return s.repos.ListRepositories(ctx, token)
}
