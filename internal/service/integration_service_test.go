package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/repo-sync/internal/adapter/store"
	"github.com/arturoeanton/repo-sync/internal/domain"
	"github.com/arturoeanton/repo-sync/internal/port"
)

type integrationFixture struct {
	store  *store.MemoryStore
	repo   *fakeRepo
	index  *fakeIndexer
	events *recordingPublisher
	svc    *IntegrationService
	user   *domain.User
}

func newIntegrationFixture(t *testing.T, files map[string]string) *integrationFixture {
	t.Helper()
	st := store.NewMemoryStore()
	user := &domain.User{Name: "Ada", Email: "ada@example.com", Provider: domain.ProviderLocal}
	require.NoError(t, st.CreateUser(context.Background(), user))

	repo := newFakeRepo(files)
	idx := &fakeIndexer{}
	events := &recordingPublisher{}
	svc := NewIntegrationService(IntegrationDeps{
		Store:       st,
		Webhooks:    NewWebhookManager(repo, ""),
		Walker:      NewWalker(repo, 4),
		Forwarder:   NewForwarder(idx),
		Events:      events,
		CallbackURL: callbackURL,
	})
	return &integrationFixture{store: st, repo: repo, index: idx, events: events, svc: svc, user: user}
}

func demoSummary() *domain.RepoSummary {
	return &domain.RepoSummary{
		ID:       42,
		Name:     "demo",
		FullName: "octo/demo",
		Language: "Go",
		Owner:    domain.Owner{Login: "octo", ID: 1},
	}
}

func (f *integrationFixture) save(t *testing.T, settings domain.Settings) *SaveResult {
	t.Helper()
	res, err := f.svc.SaveIntegration(context.Background(), SaveInput{
		Repository:          demoSummary(),
		IntegrationSettings: settings,
		AccessToken:         "gh-token",
		UserID:              f.user.ID,
	})
	require.NoError(t, err)
	return res
}

func TestSaveIntegrationEndToEnd(t *testing.T) {
	f := newIntegrationFixture(t, map[string]string{
		"README.md":  "# demo",
		"src/app.js": "console.log(1)",
		"bin/app":    "\x7fELF",
	})

	res := f.save(t, nil)

	in := res.Integration
	assert.True(t, res.Created)
	assert.EqualValues(t, 42, in.GitHubID)
	assert.Equal(t, domain.IntegrationStatusActive, in.Status)
	assert.Equal(t, 2, res.RAGIndexed)
	assert.Equal(t, true, in.IntegrationSettings["autoCreateIssues"])
	assert.False(t, res.Report.Failed())

	require.Len(t, f.index.indexed, 1)
	batch := f.index.indexed[0]
	assert.Equal(t, in.ID, batch.RepoID)
	assert.Equal(t, []string{"README.md", "src/app.js"}, filenames(batch.Files))
	assert.Equal(t, domain.IndexMetadata{GitHubID: "42", Name: "demo"}, batch.Metadata)

	require.Len(t, f.repo.hooks, 1)
	assert.Equal(t, callbackURL, f.repo.hooks[0].Config.URL)

	user, err := f.store.GetUserByID(context.Background(), f.user.ID)
	require.NoError(t, err)
	require.NotNil(t, user.GitHub)
	assert.Equal(t, "gh-token", user.GitHub.AccessToken)
	require.Len(t, user.GitHub.Repos, 1)
	assert.EqualValues(t, 42, user.GitHub.Repos[0].ID)

	assert.Contains(t, f.events.types(), domain.IntegrationEventSaved)
}

func TestSaveIntegrationIsIdempotent(t *testing.T) {
	f := newIntegrationFixture(t, map[string]string{"main.go": "package main"})

	first := f.save(t, domain.Settings{"issuePriority": "high"})
	second := f.save(t, domain.Settings{"createPRComments": false})

	assert.False(t, second.Created)
	assert.Equal(t, first.Integration.ID, second.Integration.ID)

	stored, err := f.store.GetIntegrationByGitHubID(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "high", stored.IntegrationSettings["issuePriority"])
	assert.Equal(t, false, stored.IntegrationSettings["createPRComments"])
	assert.Equal(t, true, stored.IntegrationSettings["autoCreateIssues"])

	user, err := f.store.GetUserByID(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Len(t, user.GitHub.Repos, 1, "shadow entry is replaced, not duplicated")
	assert.Len(t, f.repo.hooks, 1, "webhook is registered once")
}

func TestSaveIntegrationValidation(t *testing.T) {
	f := newIntegrationFixture(t, nil)

	_, err := f.svc.SaveIntegration(context.Background(), SaveInput{AccessToken: "tok"})
	assert.ErrorIs(t, err, port.ErrValidation)

	_, err = f.svc.SaveIntegration(context.Background(), SaveInput{Repository: demoSummary()})
	assert.ErrorIs(t, err, port.ErrValidation)

	_, err = f.store.GetIntegrationByGitHubID(context.Background(), 42)
	assert.ErrorIs(t, err, port.ErrNotFound)
}

func TestSaveIntegrationSideEffectFailuresDoNotRollBack(t *testing.T) {
	f := newIntegrationFixture(t, map[string]string{"main.go": "package main"})
	f.repo.hooksErr = errBoom
	f.index.indexErr = errBoom

	res := f.save(t, nil)

	assert.True(t, res.Report.Failed())
	step, ok := res.Report.Step(StepWebhook)
	require.True(t, ok)
	assert.False(t, step.OK)

	_, err := f.store.GetIntegrationByGitHubID(context.Background(), 42)
	assert.NoError(t, err)
}

func TestDeleteIntegrationStepsAreIndependent(t *testing.T) {
	f := newIntegrationFixture(t, map[string]string{"main.go": "package main"})
	saved := f.save(t, nil)

	f.repo.hooksErr = errBoom
	report, err := f.svc.DeleteIntegration(context.Background(), saved.Integration.ID, f.user.ID)
	require.NoError(t, err)

	hookStep, _ := report.Step(StepWebhookClean)
	assert.False(t, hookStep.OK)
	indexStep, _ := report.Step(StepIndexDelete)
	assert.True(t, indexStep.OK)
	assert.Equal(t, []string{saved.Integration.ID}, f.index.deleted)

	_, err = f.store.GetIntegrationByID(context.Background(), saved.Integration.ID)
	assert.ErrorIs(t, err, port.ErrNotFound)

	user, err := f.store.GetUserByID(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, user.GitHub.Repos)
}

func TestDeleteIntegrationNotFound(t *testing.T) {
	f := newIntegrationFixture(t, nil)
	_, err := f.svc.DeleteIntegration(context.Background(), "missing", f.user.ID)
	assert.ErrorIs(t, err, port.ErrNotFound)
	assert.Empty(t, f.index.deleted)
}

func TestConnectAndReconnect(t *testing.T) {
	f := newIntegrationFixture(t, nil)
	ctx := context.Background()
	in := ConnectInput{GitHubID: 7, Name: "tool", FullName: "octo/tool", GitHubToken: "t1", UserID: f.user.ID}

	created, isNew, err := f.svc.Connect(ctx, in)
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, "Unknown", created.Language)

	user, err := f.store.GetUserByID(ctx, f.user.ID)
	require.NoError(t, err)
	require.NotNil(t, user.GitHub)
	require.Len(t, user.GitHub.Repos, 1)
	assert.Equal(t, int64(7), user.GitHub.Repos[0].ID)
	assert.Equal(t, "t1", user.GitHub.AccessToken)

	_, _, err = f.svc.Connect(ctx, in)
	assert.ErrorIs(t, err, ErrAlreadyConnected)
	assert.ErrorIs(t, err, port.ErrConflict)

	require.NoError(t, f.svc.Deactivate(ctx, created.ID))
	got, err := f.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IntegrationStatusInactive, got.Status)

	in.GitHubToken = "t2"
	in.IntegrationSettings = domain.Settings{"issuePriority": "low"}
	again, isNew, err := f.svc.Connect(ctx, in)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, created.ID, again.ID)
	assert.Equal(t, domain.IntegrationStatusActive, again.Status)
	assert.Equal(t, "low", again.IntegrationSettings["issuePriority"])
	assert.Equal(t, true, again.IntegrationSettings["autoCreateIssues"])
}

func TestUpdateSettingsMerges(t *testing.T) {
	f := newIntegrationFixture(t, nil)
	saved := f.save(t, domain.Settings{"custom": "kept"})

	got, err := f.svc.UpdateSettings(context.Background(), saved.Integration.ID, domain.Settings{"issuePriority": "high"})
	require.NoError(t, err)
	assert.Equal(t, "kept", got.IntegrationSettings["custom"])
	assert.Equal(t, "high", got.IntegrationSettings["issuePriority"])
}

func TestAnalysisHistoryNewestFirst(t *testing.T) {
	f := newIntegrationFixture(t, nil)
	saved := f.save(t, nil)
	ctx := context.Background()

	_, err := f.svc.AddAnalysis(ctx, saved.Integration.ID, AnalysisInput{AnalysisID: "first", OverallScore: 70})
	require.NoError(t, err)
	got, err := f.svc.AddAnalysis(ctx, saved.Integration.ID, AnalysisInput{OverallScore: 80, IssuesFound: 3})
	require.NoError(t, err)
	require.Len(t, got.AnalysisHistory, 2)
	assert.NotEmpty(t, got.AnalysisHistory[1].AnalysisID, "missing id defaults to a timestamp")
	assert.Zero(t, got.AnalysisHistory[1].IssuesCreated)

	_, history, err := f.svc.AnalysisHistory(ctx, saved.Integration.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.False(t, history[0].Timestamp.Before(history[1].Timestamp))

	_, err = f.svc.AddAnalysis(ctx, "missing", AnalysisInput{})
	assert.ErrorIs(t, err, port.ErrNotFound)
}

func TestSyncRewalksWithStoredToken(t *testing.T) {
	f := newIntegrationFixture(t, map[string]string{"a.go": "a", "b.md": "b"})
	saved := f.save(t, nil)

	_, indexed, report, err := f.svc.Sync(context.Background(), saved.Integration.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, indexed)
	assert.False(t, report.Failed())
	assert.Len(t, f.index.indexed, 2)
	assert.Contains(t, f.repo.tokens, "gh-token")
	assert.Contains(t, f.events.types(), domain.IntegrationEventSynced)
}

func TestSyncKeepsAnalysisAppendedDuringWalk(t *testing.T) {
	f := newIntegrationFixture(t, map[string]string{"a.go": "a"})
	saved := f.save(t, nil)
	id := saved.Integration.ID
	ctx := context.Background()

	var once sync.Once
	f.repo.onList = func(path string) {
		if path != "" {
			return
		}
		once.Do(func() {
			_, err := f.svc.AddAnalysis(ctx, id, AnalysisInput{AnalysisID: "mid-walk"})
			assert.NoError(t, err)
		})
	}

	got, indexed, report, err := f.svc.Sync(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, indexed)
	assert.False(t, report.Failed())
	require.Len(t, got.AnalysisHistory, 1)
	assert.Equal(t, "mid-walk", got.AnalysisHistory[0].AnalysisID)

	stored, err := f.store.GetIntegrationByID(ctx, id)
	require.NoError(t, err)
	require.Len(t, stored.AnalysisHistory, 1)
	assert.False(t, stored.LastSynced.Before(saved.Integration.LastSynced))
}

func TestSyncStopsWhenIntegrationDeletedDuringWalk(t *testing.T) {
	f := newIntegrationFixture(t, map[string]string{"a.go": "a"})
	saved := f.save(t, nil)
	id := saved.Integration.ID
	ctx := context.Background()
	forwardsBefore := len(f.index.indexed)

	var once sync.Once
	f.repo.onList = func(path string) {
		if path != "" {
			return
		}
		once.Do(func() {
			_, err := f.svc.DeleteIntegration(ctx, id, f.user.ID)
			assert.NoError(t, err)
		})
	}

	_, _, _, err := f.svc.Sync(ctx, id)
	assert.ErrorIs(t, err, port.ErrIntegrationNotFound)

	_, err = f.store.GetIntegrationByGitHubID(ctx, 42)
	assert.ErrorIs(t, err, port.ErrNotFound, "deleted integration must stay deleted")
	assert.Len(t, f.index.indexed, forwardsBefore, "nothing is forwarded after the delete")
	assert.Contains(t, f.index.deleted, id)
	assert.NotContains(t, f.events.types(), domain.IntegrationEventSynced)
}

func TestAuthorizeRequiresShadowEntry(t *testing.T) {
	f := newIntegrationFixture(t, map[string]string{"main.go": "package main"})
	saved := f.save(t, nil)
	ctx := context.Background()

	other := &domain.User{Name: "Eve", Email: "eve@example.com", Provider: domain.ProviderLocal}
	require.NoError(t, f.store.CreateUser(ctx, other))

	got, err := f.svc.Authorize(ctx, saved.Integration.ID, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, saved.Integration.ID, got.ID)

	_, err = f.svc.Authorize(ctx, saved.Integration.ID, other.ID)
	assert.ErrorIs(t, err, port.ErrForbidden)
	_, err = f.svc.AuthorizeGitHubID(ctx, 42, other.ID)
	assert.ErrorIs(t, err, port.ErrForbidden)
	_, err = f.svc.Authorize(ctx, saved.Integration.ID, "no-such-user")
	assert.ErrorIs(t, err, port.ErrForbidden)
	_, err = f.svc.Authorize(ctx, "missing", f.user.ID)
	assert.ErrorIs(t, err, port.ErrNotFound)

	_, err = f.svc.Query(ctx, saved.Integration.ID, other.ID, "what is this?")
	assert.ErrorIs(t, err, port.ErrForbidden)
	assert.Empty(t, f.index.queries)
}

func TestListConnected(t *testing.T) {
	f := newIntegrationFixture(t, nil)
	repos, err := f.svc.ListConnected(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, repos)

	f.save(t, nil)
	repos, err = f.svc.ListConnected(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Len(t, repos, 1)
}

func TestQueryWalksStoredRepository(t *testing.T) {
	f := newIntegrationFixture(t, map[string]string{"main.go": "package main"})
	saved := f.save(t, nil)
	f.index.answer = []byte(`{"answer":"42"}`)

	out, err := f.svc.Query(context.Background(), saved.Integration.ID, f.user.ID, "what is this?")
	require.NoError(t, err)
	assert.JSONEq(t, `{"answer":"42"}`, string(out))
	require.Len(t, f.index.queries, 1)
	q := f.index.queries[0]
	assert.Equal(t, "what is this?", q.Prompt)
	assert.Equal(t, saved.Integration.ID, q.Metadata.RepoID)
	assert.Len(t, q.Files, 1)

	_, err = f.svc.Query(context.Background(), "", f.user.ID, "x")
	assert.ErrorIs(t, err, port.ErrValidation)
}
