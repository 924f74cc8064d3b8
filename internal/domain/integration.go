package domain

import (
	"sort"
	"time"
)

// Integration status constants.
const (
	IntegrationStatusActive   = "active"
	IntegrationStatusInactive = "inactive"
	IntegrationStatusError    = "error"
)

// Settings is an open key/value settings object. Keeping it open lets a
// shallow merge retain keys the server does not model explicitly.
type Settings map[string]any

// Merge returns a copy of s with every key of patch written over it.
// Keys absent from patch are retained.
func (s Settings) Merge(patch Settings) Settings {
	out := make(Settings, len(s)+len(patch))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// DefaultIntegrationSettings are applied when a new integration is created
// without caller-supplied settings.
func DefaultIntegrationSettings() Settings {
	return Settings{
		"autoCreateIssues": true,
		"assignToUsers":    []any{},
		"issueLabels":      []any{"ai-mentor", "improvement"},
		"issuePriority":    "medium",
		"createPRComments": true,
	}
}

// DefaultNotificationSettings are applied when a new integration is created
// without caller-supplied notification settings.
func DefaultNotificationSettings() Settings {
	return Settings{"emailNotifications": true}
}

// Owner summarizes the account owning a repository.
type Owner struct {
	Login     string `json:"login"     bson:"login"`
	ID        int64  `json:"id"        bson:"id"`
	AvatarURL string `json:"avatarUrl" bson:"avatarUrl"`
	HTMLURL   string `json:"htmlUrl"   bson:"htmlUrl"`
}

// RepoSummary is the repository description exchanged with the frontend.
// ID is the GitHub repository id.
type RepoSummary struct {
	ID              int64  `json:"id"              bson:"id"`
	Name            string `json:"name"            bson:"name"`
	FullName        string `json:"fullName"        bson:"fullName"`
	Description     string `json:"description"     bson:"description"`
	HTMLURL         string `json:"htmlUrl"         bson:"htmlUrl"`
	Language        string `json:"language"        bson:"language"`
	Size            int64  `json:"size"            bson:"size"`
	StargazersCount int    `json:"stargazersCount" bson:"stargazersCount"`
	ForksCount      int    `json:"forksCount"      bson:"forksCount"`
	OpenIssuesCount int    `json:"openIssuesCount" bson:"openIssuesCount"`
	IsPrivate       bool   `json:"isPrivate"       bson:"isPrivate"`
	Owner           Owner  `json:"owner"           bson:"owner"`
}

// AnalysisRecord is an append-only analysis history entry.
type AnalysisRecord struct {
	AnalysisID    string    `json:"analysisId"    bson:"analysisId"`
	Timestamp     time.Time `json:"timestamp"     bson:"timestamp"`
	OverallScore  float64   `json:"overallScore"  bson:"overallScore"`
	IssuesFound   int       `json:"issuesFound"   bson:"issuesFound"`
	IssuesCreated int       `json:"issuesCreated" bson:"issuesCreated"`
}

// Integration is the canonical record of one connected GitHub repository.
// There is at most one per GitHubID.
type Integration struct {
	ID                   string           `json:"id"                   bson:"_id"`
	GitHubID             int64            `json:"githubId"             bson:"githubId"`
	Name                 string           `json:"name"                 bson:"name"`
	FullName             string           `json:"fullName"             bson:"fullName"`
	Description          string           `json:"description"          bson:"description"`
	HTMLURL              string           `json:"htmlUrl"              bson:"htmlUrl"`
	Language             string           `json:"language"             bson:"language"`
	Size                 int64            `json:"size"                 bson:"size"`
	StargazersCount      int              `json:"stargazersCount"      bson:"stargazersCount"`
	ForksCount           int              `json:"forksCount"           bson:"forksCount"`
	OpenIssuesCount      int              `json:"openIssuesCount"      bson:"openIssuesCount"`
	IsPrivate            bool             `json:"isPrivate"            bson:"isPrivate"`
	Owner                Owner            `json:"owner"                bson:"owner"`
	IntegrationSettings  Settings         `json:"integrationSettings"  bson:"integrationSettings"`
	NotificationSettings Settings         `json:"notificationSettings" bson:"notificationSettings"`
	AccessToken          string           `json:"-"                    bson:"accessToken"`
	AnalysisHistory      []AnalysisRecord `json:"analysisHistory"      bson:"analysisHistory"`
	Status               string           `json:"status"               bson:"status"`
	LastSynced           time.Time        `json:"lastSynced"           bson:"lastSynced"`
	CreatedAt            time.Time        `json:"createdAt"            bson:"createdAt"`
	UpdatedAt            time.Time        `json:"updatedAt"            bson:"updatedAt"`
}

// NewIntegration builds a fresh active integration from a repository summary.
// Supplied settings are merged over the defaults.
func NewIntegration(repo RepoSummary, token string, settings, notifications Settings, now time.Time) *Integration {
	return &Integration{
		GitHubID:             repo.ID,
		Name:                 repo.Name,
		FullName:             repo.FullName,
		Description:          repo.Description,
		HTMLURL:              repo.HTMLURL,
		Language:             repo.Language,
		Size:                 repo.Size,
		StargazersCount:      repo.StargazersCount,
		ForksCount:           repo.ForksCount,
		OpenIssuesCount:      repo.OpenIssuesCount,
		IsPrivate:            repo.IsPrivate,
		Owner:                repo.Owner,
		IntegrationSettings:  DefaultIntegrationSettings().Merge(settings),
		NotificationSettings: DefaultNotificationSettings().Merge(notifications),
		AccessToken:          token,
		AnalysisHistory:      []AnalysisRecord{},
		Status:               IntegrationStatusActive,
		LastSynced:           now,
	}
}

// Refresh merges settings into an existing integration and marks it active
// with the new token. Nil notification settings leave the stored ones alone.
func (i *Integration) Refresh(token string, settings, notifications Settings, now time.Time) {
	i.IntegrationSettings = i.IntegrationSettings.Merge(settings)
	if notifications != nil {
		i.NotificationSettings = i.NotificationSettings.Merge(notifications)
	}
	i.AccessToken = token
	i.Status = IntegrationStatusActive
	i.LastSynced = now
}

// Summary projects the integration back into a RepoSummary.
func (i *Integration) Summary() RepoSummary {
	return RepoSummary{
		ID:              i.GitHubID,
		Name:            i.Name,
		FullName:        i.FullName,
		Description:     i.Description,
		HTMLURL:         i.HTMLURL,
		Language:        i.Language,
		Size:            i.Size,
		StargazersCount: i.StargazersCount,
		ForksCount:      i.ForksCount,
		OpenIssuesCount: i.OpenIssuesCount,
		IsPrivate:       i.IsPrivate,
		Owner:           i.Owner,
	}
}

// Shadow projects the canonical record into a per-user shadow entry.
func (i *Integration) Shadow() ShadowRepo {
	return ShadowRepo{
		RepoSummary:          i.Summary(),
		IntegrationSettings:  i.IntegrationSettings,
		NotificationSettings: i.NotificationSettings,
		Status:               i.Status,
		LastSynced:           i.LastSynced,
	}
}

// SortedHistory returns the analysis history newest first.
func (i *Integration) SortedHistory() []AnalysisRecord {
	out := make([]AnalysisRecord, len(i.AnalysisHistory))
	copy(out, i.AnalysisHistory)
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Timestamp.After(out[b].Timestamp)
	})
	return out
}
