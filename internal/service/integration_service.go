package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/arturoeanton/repo-sync/internal/domain"
	"github.com/arturoeanton/repo-sync/internal/port"
)

// ErrAlreadyConnected is returned when connecting an already active repository.
var ErrAlreadyConnected = fmt.Errorf("repository already connected: %w", port.ErrConflict)

// IntegrationDeps are the collaborators of IntegrationService.
type IntegrationDeps struct {
	Store     port.Store
	Webhooks  *WebhookManager
	Walker    *Walker
	Forwarder *Forwarder
	Events    Publisher
	// CallbackURL is where GitHub delivers webhook events. Empty disables
	// webhook registration and removal.
	CallbackURL string
}

// IntegrationService orchestrates the repository integration workflows.
type IntegrationService struct {
	store       port.Store
	webhooks    *WebhookManager
	walker      *Walker
	forwarder   *Forwarder
	events      Publisher
	callbackURL string
	now         func() time.Time
}

// NewIntegrationService creates the orchestrator.
func NewIntegrationService(deps IntegrationDeps) *IntegrationService {
	events := deps.Events
	if events == nil {
		events = nopPublisher{}
	}
	return &IntegrationService{
		store:       deps.Store,
		webhooks:    deps.Webhooks,
		walker:      deps.Walker,
		forwarder:   deps.Forwarder,
		events:      events,
		callbackURL: deps.CallbackURL,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SaveInput is the body of a save-integration request.
type SaveInput struct {
	Repository           *domain.RepoSummary `json:"repository"`
	IntegrationSettings  domain.Settings     `json:"integrationSettings"`
	NotificationSettings domain.Settings     `json:"notificationSettings"`
	AccessToken          string              `json:"accessToken"`
	UserID               string              `json:"-"`
}

// SaveResult is the outcome of SaveIntegration.
type SaveResult struct {
	Integration *domain.Integration
	Created     bool
	RAGIndexed  int
	Report      *SyncReport
}

// SaveIntegration upserts the canonical record, projects it into the user's
// shadow list, then registers the webhook, walks the repository and forwards
// the files. The last three steps are best-effort and never undo the first two.
func (s *IntegrationService) SaveIntegration(ctx context.Context, in SaveInput) (*SaveResult, error) {
	if in.Repository == nil || in.Repository.ID == 0 || in.AccessToken == "" {
		return nil, port.Invalid("", "Repository data and access token are required")
	}
	repo := *in.Repository
	now := s.now()

	integration, err := s.store.GetIntegrationByGitHubID(ctx, repo.ID)
	created := errors.Is(err, port.ErrNotFound)
	switch {
	case created:
		integration = domain.NewIntegration(repo, in.AccessToken, in.IntegrationSettings, in.NotificationSettings, now)
	case err != nil:
		return nil, fmt.Errorf("save integration: lookup: %w", err)
	default:
		integration.Refresh(in.AccessToken, in.IntegrationSettings, in.NotificationSettings, now)
	}
	if err := s.store.UpsertIntegration(ctx, integration); err != nil {
		return nil, fmt.Errorf("save integration: upsert: %w", err)
	}

	report := newReport("save_integration", integration.ID)
	if err := s.projectShadow(ctx, in.UserID, in.AccessToken, integration, report); err != nil {
		return nil, err
	}

	s.registerWebhook(ctx, integration.FullName, in.AccessToken, report)
	indexed := s.walkAndForward(ctx, integration, in.AccessToken, report)

	s.events.Publish(publishFor(integration, domain.IntegrationEventSaved, ""))
	slog.Info("integration saved", "repo_id", integration.ID, "github_id", integration.GitHubID,
		"created", created, "rag_indexed", indexed)
	return &SaveResult{Integration: integration, Created: created, RAGIndexed: indexed, Report: report}, nil
}

// projectShadow replaces the user's shadow entry for the integration and
// records the user's GitHub token. A missing user is skipped.
func (s *IntegrationService) projectShadow(ctx context.Context, userID, token string, in *domain.Integration, report *SyncReport) error {
	if userID == "" {
		report.skip(StepShadow, "no user")
		return nil
	}
	start := time.Now()
	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, port.ErrNotFound) {
		report.skip(StepShadow, "user not found")
		return nil
	}
	if err != nil {
		return fmt.Errorf("project shadow: load user: %w", err)
	}
	gh := user.EnsureGitHub()
	if token != "" {
		gh.AccessToken = token
	}
	gh.ReplaceRepo(in.Shadow())
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("project shadow: update user: %w", err)
	}
	report.record(StepShadow, start, len(gh.Repos), nil)
	return nil
}

func (s *IntegrationService) registerWebhook(ctx context.Context, fullName, token string, report *SyncReport) {
	if s.callbackURL == "" {
		report.skip(StepWebhook, "no callback url configured")
		return
	}
	start := time.Now()
	_, _, err := s.webhooks.Register(ctx, fullName, token, s.callbackURL)
	report.record(StepWebhook, start, 0, err)
}

// walkAndForward runs a full scan and forwards the result, returning the
// number of files extracted.
func (s *IntegrationService) walkAndForward(ctx context.Context, in *domain.Integration, token string, report *SyncReport) int {
	files := s.walk(ctx, in, token, report)
	s.forward(ctx, in, files, report)
	return len(files)
}

func (s *IntegrationService) walk(ctx context.Context, in *domain.Integration, token string, report *SyncReport) []domain.RepoFile {
	start := time.Now()
	files, err := s.walker.Walk(ctx, in.FullName, token)
	report.record(StepWalk, start, len(files), err)
	return files
}

func (s *IntegrationService) forward(ctx context.Context, in *domain.Integration, files []domain.RepoFile, report *SyncReport) {
	start := time.Now()
	n, err := s.forwarder.Forward(ctx, in.ID, files, Metadata(in.GitHubID, in.Name))
	report.record(StepForward, start, n, err)
}

// DeleteIntegration hard-deletes an integration, then independently drops
// the user's shadow entry, the webhook and the indexed documents.
func (s *IntegrationService) DeleteIntegration(ctx context.Context, id, userID string) (*SyncReport, error) {
	in, err := s.store.GetIntegrationByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeleteIntegration(ctx, id); err != nil {
		return nil, fmt.Errorf("delete integration: %w", err)
	}
	report := newReport("delete_integration", id)

	s.dropShadow(ctx, userID, in.GitHubID, report)

	switch {
	case s.callbackURL == "":
		report.skip(StepWebhookClean, "no callback url configured")
	case in.FullName == "" || in.AccessToken == "":
		report.skip(StepWebhookClean, "missing full name or token")
	default:
		start := time.Now()
		n, err := s.webhooks.Remove(ctx, in.FullName, in.AccessToken, s.callbackURL)
		report.record(StepWebhookClean, start, n, err)
	}

	start := time.Now()
	report.record(StepIndexDelete, start, 0, s.forwarder.Delete(ctx, in.ID))

	in.Status = domain.IntegrationStatusInactive
	s.events.Publish(publishFor(in, domain.IntegrationEventDeleted, ""))
	return report, nil
}

func (s *IntegrationService) dropShadow(ctx context.Context, userID string, githubID int64, report *SyncReport) {
	if userID == "" {
		report.skip(StepShadow, "no user")
		return
	}
	start := time.Now()
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		report.record(StepShadow, start, 0, err)
		return
	}
	if user.GitHub == nil || !user.GitHub.RemoveRepo(githubID) {
		report.record(StepShadow, start, 0, nil)
		return
	}
	report.record(StepShadow, start, 1, s.store.UpdateUser(ctx, user))
}

// ConnectInput is the body of a repository connect request.
type ConnectInput struct {
	GitHubID             int64           `json:"githubId"`
	Name                 string          `json:"name"`
	FullName             string          `json:"fullName"`
	Description          string          `json:"description"`
	HTMLURL              string          `json:"htmlUrl"`
	Language             string          `json:"language"`
	IsPrivate            bool            `json:"isPrivate"`
	Owner                domain.Owner    `json:"owner"`
	GitHubToken          string          `json:"githubToken"`
	IntegrationSettings  domain.Settings `json:"integrationSettings"`
	NotificationSettings domain.Settings `json:"notificationSettings"`
	UserID               string          `json:"-"`
}

// Connect creates an integration or reactivates an inactive one and adds it
// to the caller's shadow list. An active integration yields
// ErrAlreadyConnected along with the record.
func (s *IntegrationService) Connect(ctx context.Context, in ConnectInput) (*domain.Integration, bool, error) {
	if in.GitHubID == 0 || in.FullName == "" {
		return nil, false, port.Invalid("githubId", "githubId and fullName are required")
	}
	now := s.now()

	existing, err := s.store.GetIntegrationByGitHubID(ctx, in.GitHubID)
	switch {
	case err == nil:
		if existing.Status == domain.IntegrationStatusActive {
			return existing, false, ErrAlreadyConnected
		}
		existing.Refresh(in.GitHubToken, in.IntegrationSettings, in.NotificationSettings, now)
		if err := s.store.UpsertIntegration(ctx, existing); err != nil {
			return nil, false, fmt.Errorf("reconnect repository: %w", err)
		}
		if err := s.projectShadow(ctx, in.UserID, in.GitHubToken, existing, newReport("connect", existing.ID)); err != nil {
			return nil, false, err
		}
		s.events.Publish(publishFor(existing, domain.IntegrationEventSaved, "reconnected"))
		return existing, false, nil
	case !errors.Is(err, port.ErrNotFound):
		return nil, false, fmt.Errorf("connect repository: lookup: %w", err)
	}

	language := in.Language
	if language == "" {
		language = "Unknown"
	}
	integration := domain.NewIntegration(domain.RepoSummary{
		ID:          in.GitHubID,
		Name:        in.Name,
		FullName:    in.FullName,
		Description: in.Description,
		HTMLURL:     in.HTMLURL,
		Language:    language,
		IsPrivate:   in.IsPrivate,
		Owner:       in.Owner,
	}, in.GitHubToken, in.IntegrationSettings, in.NotificationSettings, now)
	if err := s.store.UpsertIntegration(ctx, integration); err != nil {
		return nil, false, fmt.Errorf("connect repository: %w", err)
	}
	if err := s.projectShadow(ctx, in.UserID, in.GitHubToken, integration, newReport("connect", integration.ID)); err != nil {
		return nil, false, err
	}
	s.events.Publish(publishFor(integration, domain.IntegrationEventSaved, "connected"))
	return integration, true, nil
}

// Get returns an integration by ID.
func (s *IntegrationService) Get(ctx context.Context, id string) (*domain.Integration, error) {
	return s.store.GetIntegrationByID(ctx, id)
}

// Authorize returns the integration when userID has it in their shadow
// list, port.ErrForbidden when they do not.
func (s *IntegrationService) Authorize(ctx context.Context, id, userID string) (*domain.Integration, error) {
	in, err := s.store.GetIntegrationByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeGitHubID(ctx, in.GitHubID, userID); err != nil {
		return nil, err
	}
	return in, nil
}

// AuthorizeGitHubID is Authorize keyed by GitHub repository ID.
func (s *IntegrationService) AuthorizeGitHubID(ctx context.Context, githubID int64, userID string) (*domain.Integration, error) {
	in, err := s.store.GetIntegrationByGitHubID(ctx, githubID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeGitHubID(ctx, githubID, userID); err != nil {
		return nil, err
	}
	return in, nil
}

func (s *IntegrationService) authorizeGitHubID(ctx context.Context, githubID int64, userID string) error {
	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, port.ErrNotFound) {
		return fmt.Errorf("repository %d: %w", githubID, port.ErrForbidden)
	}
	if err != nil {
		return fmt.Errorf("authorize: load user: %w", err)
	}
	if user.GitHub != nil {
		for _, r := range user.GitHub.Repos {
			if r.ID == githubID {
				return nil
			}
		}
	}
	return fmt.Errorf("repository %d: %w", githubID, port.ErrForbidden)
}

// UpdateSettings shallow-merges settings into the integration.
func (s *IntegrationService) UpdateSettings(ctx context.Context, id string, settings domain.Settings) (*domain.Integration, error) {
	in, err := s.store.GetIntegrationByID(ctx, id)
	if err != nil {
		return nil, err
	}
	in.IntegrationSettings = in.IntegrationSettings.Merge(settings)
	if err := s.store.UpsertIntegration(ctx, in); err != nil {
		return nil, fmt.Errorf("update settings: %w", err)
	}
	return in, nil
}

// AnalysisInput is the body of an add-analysis request.
type AnalysisInput struct {
	AnalysisID    string  `json:"analysisId"`
	OverallScore  float64 `json:"overallScore"`
	IssuesFound   int     `json:"issuesFound"`
	IssuesCreated int     `json:"issuesCreated"`
}

// AddAnalysis appends an analysis record. A missing analysis ID defaults to
// the current Unix time in milliseconds.
func (s *IntegrationService) AddAnalysis(ctx context.Context, id string, a AnalysisInput) (*domain.Integration, error) {
	now := s.now()
	if a.AnalysisID == "" {
		a.AnalysisID = strconv.FormatInt(now.UnixMilli(), 10)
	}
	rec := domain.AnalysisRecord{
		AnalysisID:    a.AnalysisID,
		Timestamp:     now,
		OverallScore:  a.OverallScore,
		IssuesFound:   a.IssuesFound,
		IssuesCreated: a.IssuesCreated,
	}
	if err := s.store.AppendAnalysisRecord(ctx, id, rec); err != nil {
		return nil, err
	}
	return s.store.GetIntegrationByID(ctx, id)
}

// AnalysisHistory returns the integration and its history, newest first.
func (s *IntegrationService) AnalysisHistory(ctx context.Context, id string) (*domain.Integration, []domain.AnalysisRecord, error) {
	in, err := s.store.GetIntegrationByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return in, in.SortedHistory(), nil
}

// Deactivate soft-deletes an integration.
func (s *IntegrationService) Deactivate(ctx context.Context, id string) error {
	in, err := s.store.GetIntegrationByID(ctx, id)
	if err != nil {
		return err
	}
	in.Status = domain.IntegrationStatusInactive
	if err := s.store.UpsertIntegration(ctx, in); err != nil {
		return fmt.Errorf("deactivate: %w", err)
	}
	s.events.Publish(publishFor(in, domain.IntegrationEventInactive, ""))
	return nil
}

// Sync re-walks the repository with the stored token, forwards the files
// and refreshes lastSynced. An integration deleted during the walk yields
// ErrIntegrationNotFound and nothing is forwarded.
func (s *IntegrationService) Sync(ctx context.Context, id string) (*domain.Integration, int, *SyncReport, error) {
	in, err := s.store.GetIntegrationByID(ctx, id)
	if err != nil {
		return nil, 0, nil, err
	}
	report := newReport("sync", in.ID)

	var files []domain.RepoFile
	if in.AccessToken == "" {
		report.skip(StepWalk, "no stored access token")
	} else {
		files = s.walk(ctx, in, in.AccessToken, report)
	}

	// Only lastSynced is written back; the record may have changed during the walk.
	if err := s.store.TouchLastSynced(ctx, in.ID, s.now()); err != nil {
		if errors.Is(err, port.ErrNotFound) {
			slog.Warn("integration deleted during sync", "repo_id", in.ID)
			return nil, 0, nil, err
		}
		return nil, 0, nil, fmt.Errorf("sync: %w", err)
	}
	if in.AccessToken != "" {
		s.forward(ctx, in, files, report)
	}

	fresh, err := s.store.GetIntegrationByID(ctx, in.ID)
	if err != nil {
		return nil, 0, nil, err
	}
	s.events.Publish(publishFor(fresh, domain.IntegrationEventSynced, strconv.Itoa(len(files))))
	return fresh, len(files), report, nil
}

// ListConnected returns the user's shadow list, empty when none.
func (s *IntegrationService) ListConnected(ctx context.Context, userID string) ([]domain.ShadowRepo, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.GitHub == nil || user.GitHub.Repos == nil {
		return []domain.ShadowRepo{}, nil
	}
	return user.GitHub.Repos, nil
}

// RegisterWebhook registers the delivery hook for an arbitrary repository.
func (s *IntegrationService) RegisterWebhook(ctx context.Context, fullName, token string) (*domain.Webhook, bool, error) {
	if fullName == "" || token == "" {
		return nil, false, port.Invalid("", "repoFullName and accessToken required")
	}
	if s.callbackURL == "" {
		return nil, false, port.Invalid("", "webhook receiver url is not configured")
	}
	return s.webhooks.Register(ctx, fullName, token, s.callbackURL)
}

// Query walks the stored repository live and asks the retrieval service
// prompt over its files. The caller must have the repository connected.
func (s *IntegrationService) Query(ctx context.Context, id, userID, prompt string) ([]byte, error) {
	if id == "" || prompt == "" {
		return nil, port.Invalid("", "repoId and prompt required")
	}
	in, err := s.Authorize(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	files, err := s.walker.Walk(ctx, in.FullName, in.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("query: walk: %w", err)
	}
	meta := Metadata(in.GitHubID, in.Name)
	meta.RepoID = in.ID
	return s.forwarder.Query(ctx, files, prompt, meta)
}
