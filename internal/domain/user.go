package domain

import "time"

// Auth provider tags. The last OAuth login wins.
const (
	ProviderLocal  = "local"
	ProviderGitHub = "github"
	ProviderGoogle = "google"
)

// User represents an account in the system.
type User struct {
	ID           string         `json:"id"                bson:"_id"`
	Name         string         `json:"name"              bson:"name"`
	Email        string         `json:"email"             bson:"email"`
	PasswordHash string         `json:"-"                 bson:"password,omitempty"`
	Provider     string         `json:"provider"          bson:"provider"`
	GitHub       *GitHubAccount `json:"github,omitempty"  bson:"github,omitempty"`
	Google       *GoogleAccount `json:"google,omitempty"  bson:"google,omitempty"`
	Profile      Profile        `json:"profile"           bson:"profile"`
	CreatedAt    time.Time      `json:"createdAt"         bson:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"         bson:"updatedAt"`
}

// GitHubAccount is the GitHub sub-record embedded in a User.
// It is replaced wholesale on every GitHub OAuth callback.
type GitHubAccount struct {
	AccessToken string       `json:"accessToken,omitempty" bson:"accessToken,omitempty"`
	Username    string       `json:"username,omitempty"    bson:"username,omitempty"`
	AvatarURL   string       `json:"avatarUrl,omitempty"   bson:"avatarUrl,omitempty"`
	ProfileURL  string       `json:"profileUrl,omitempty"  bson:"profileUrl,omitempty"`
	Bio         string       `json:"bio,omitempty"         bson:"bio,omitempty"`
	Location    string       `json:"location,omitempty"    bson:"location,omitempty"`
	Repos       []ShadowRepo `json:"repos"                 bson:"repos"`
}

// GoogleAccount is the Google sub-record embedded in a User.
type GoogleAccount struct {
	AccessToken string `json:"accessToken,omitempty" bson:"accessToken,omitempty"`
	Username    string `json:"username,omitempty"    bson:"username,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"   bson:"avatarUrl,omitempty"`
	ProfileURL  string `json:"profileUrl,omitempty"  bson:"profileUrl,omitempty"`
	Bio         string `json:"bio,omitempty"         bson:"bio,omitempty"`
	Location    string `json:"location,omitempty"    bson:"location,omitempty"`
}

// Profile holds user-editable profile fields.
type Profile struct {
	AvatarURL string `json:"avatarUrl,omitempty" bson:"avatarUrl,omitempty"`
	Bio       string `json:"bio,omitempty"       bson:"bio,omitempty"`
	Location  string `json:"location,omitempty"  bson:"location,omitempty"`
	Website   string `json:"website,omitempty"   bson:"website,omitempty"`
	Company   string `json:"company,omitempty"   bson:"company,omitempty"`
	Social    Social `json:"social"              bson:"social"`
}

// Social links shown on a profile.
type Social struct {
	GitHub   string `json:"github,omitempty"   bson:"github,omitempty"`
	Twitter  string `json:"twitter,omitempty"  bson:"twitter,omitempty"`
	LinkedIn string `json:"linkedin,omitempty" bson:"linkedin,omitempty"`
	Website  string `json:"website,omitempty"  bson:"website,omitempty"`
}

// ShadowRepo is the per-user denormalized copy of a connected repository.
// It is a read cache: the canonical record is always RepositoryIntegration.
type ShadowRepo struct {
	RepoSummary          `bson:",inline"`
	IntegrationSettings  Settings  `json:"integrationSettings,omitempty"  bson:"integrationSettings,omitempty"`
	NotificationSettings Settings  `json:"notificationSettings,omitempty" bson:"notificationSettings,omitempty"`
	Status               string    `json:"status,omitempty"               bson:"status,omitempty"`
	LastSynced           time.Time `json:"lastSynced"                     bson:"lastSynced"`
}

// ReplaceRepo removes any shadow entry with the same GitHub id and appends entry.
func (a *GitHubAccount) ReplaceRepo(entry ShadowRepo) {
	a.RemoveRepo(entry.ID)
	a.Repos = append(a.Repos, entry)
}

// RemoveRepo drops every shadow entry for the given GitHub id.
// It reports whether anything was removed.
func (a *GitHubAccount) RemoveRepo(githubID int64) bool {
	kept := a.Repos[:0]
	removed := false
	for _, r := range a.Repos {
		if r.ID == githubID {
			removed = true
			continue
		}
		kept = append(kept, r)
	}
	a.Repos = kept
	return removed
}

// EnsureGitHub returns the GitHub sub-record, creating an empty one if needed.
func (u *User) EnsureGitHub() *GitHubAccount {
	if u.GitHub == nil {
		u.GitHub = &GitHubAccount{}
	}
	if u.GitHub.Repos == nil {
		u.GitHub.Repos = []ShadowRepo{}
	}
	return u.GitHub
}

// UserContext is the authenticated user context injected into request handlers.
type UserContext struct {
	UserID string `json:"userId"`
}

// TokenPair holds the OAuth2 tokens returned after code exchange.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
}

// Identity is the provider-side profile returned after an OAuth exchange.
type Identity struct {
	Provider   string `json:"provider"`
	ProviderID int64  `json:"id"`
	Login      string `json:"login"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	AvatarURL  string `json:"avatarUrl"`
	ProfileURL string `json:"profileUrl,omitempty"`
	Bio        string `json:"bio,omitempty"`
	Location   string `json:"location,omitempty"`
}
