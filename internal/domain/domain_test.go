package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsMerge(t *testing.T) {
	base := Settings{"autoCreateIssues": true, "issuePriority": "medium"}
	merged := base.Merge(Settings{"issuePriority": "high", "custom": 1})

	assert.Equal(t, Settings{"autoCreateIssues": true, "issuePriority": "high", "custom": 1}, merged)
	assert.Equal(t, "medium", base["issuePriority"], "receiver must not change")
	assert.Equal(t, base, base.Merge(nil))
}

func TestNewIntegrationMergesDefaults(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	repo := RepoSummary{ID: 42, Name: "demo", FullName: "octo/demo", Language: "Go"}

	in := NewIntegration(repo, "tok", Settings{"issuePriority": "low"}, nil, now)

	assert.Equal(t, int64(42), in.GitHubID)
	assert.Equal(t, IntegrationStatusActive, in.Status)
	assert.Equal(t, "low", in.IntegrationSettings["issuePriority"])
	assert.Equal(t, true, in.IntegrationSettings["autoCreateIssues"])
	assert.Equal(t, true, in.NotificationSettings["emailNotifications"])
	assert.Empty(t, in.AnalysisHistory)
	assert.NotNil(t, in.AnalysisHistory)
	assert.Equal(t, now, in.LastSynced)
	assert.Equal(t, repo, in.Summary())
}

func TestIntegrationRefresh(t *testing.T) {
	now := time.Now()
	in := NewIntegration(RepoSummary{ID: 1}, "old", nil, nil, now)
	in.Status = IntegrationStatusInactive

	later := now.Add(time.Hour)
	in.Refresh("new", Settings{"createPRComments": false}, nil, later)

	assert.Equal(t, "new", in.AccessToken)
	assert.Equal(t, IntegrationStatusActive, in.Status)
	assert.Equal(t, false, in.IntegrationSettings["createPRComments"])
	assert.Equal(t, true, in.IntegrationSettings["autoCreateIssues"])
	assert.Equal(t, DefaultNotificationSettings(), in.NotificationSettings)
	assert.Equal(t, later, in.LastSynced)
}

func TestSortedHistory(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	in := &Integration{AnalysisHistory: []AnalysisRecord{
		{AnalysisID: "a", Timestamp: t0},
		{AnalysisID: "c", Timestamp: t0.Add(2 * time.Hour)},
		{AnalysisID: "b", Timestamp: t0.Add(time.Hour)},
	}}

	sorted := in.SortedHistory()

	require.Len(t, sorted, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{sorted[0].AnalysisID, sorted[1].AnalysisID, sorted[2].AnalysisID})
	assert.Equal(t, "a", in.AnalysisHistory[0].AnalysisID, "stored order is untouched")
}

func TestShadowRepos(t *testing.T) {
	u := &User{}
	gh := u.EnsureGitHub()
	require.NotNil(t, gh.Repos)

	gh.ReplaceRepo(ShadowRepo{RepoSummary: RepoSummary{ID: 1, Name: "one"}})
	gh.ReplaceRepo(ShadowRepo{RepoSummary: RepoSummary{ID: 2, Name: "two"}})
	gh.ReplaceRepo(ShadowRepo{RepoSummary: RepoSummary{ID: 1, Name: "one-again"}})

	require.Len(t, gh.Repos, 2)
	assert.Equal(t, "two", gh.Repos[0].Name)
	assert.Equal(t, "one-again", gh.Repos[1].Name)

	assert.True(t, gh.RemoveRepo(2))
	assert.False(t, gh.RemoveRepo(2))
	require.Len(t, gh.Repos, 1)
	assert.Equal(t, int64(1), gh.Repos[0].ID)
}

func TestChangedPaths(t *testing.T) {
	p := &WebhookPayload{Commits: []PushCommit{
		{Added: []string{"a.go"}, Modified: []string{"b.go"}, Removed: []string{"gone.go"}},
		{Added: []string{"c.go"}, Modified: []string{"a.go"}},
	}}

	assert.Equal(t, []string{"a.go", "b.go", "c.go"}, p.ChangedPaths())
	assert.Empty(t, (&WebhookPayload{}).ChangedPaths())
}
