package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/arturoeanton/repo-sync/internal/domain"
	"github.com/arturoeanton/repo-sync/internal/port"
)

// ErrBadSignature is returned when a delivery's HMAC does not match.
var ErrBadSignature = fmt.Errorf("webhook signature mismatch: %w", port.ErrUnauthorized)

// Classify resolves the kind of a delivery. The X-GitHub-Event header wins;
// without it the payload shape decides. Anything unrecognized is ignored.
func Classify(header string, p *domain.WebhookPayload) domain.EventKind {
	switch strings.ToLower(strings.TrimSpace(header)) {
	case "push":
		return domain.EventPush
	case "pull_request":
		return domain.EventPullRequest
	case "ping":
		return domain.EventPing
	case "":
	default:
		return domain.EventIgnored
	}
	switch {
	case p == nil:
		return domain.EventIgnored
	case p.Commits != nil:
		return domain.EventPush
	case len(p.PullRequest) > 0 && string(p.PullRequest) != "null":
		return domain.EventPullRequest
	case p.Zen != "":
		return domain.EventPing
	}
	return domain.EventIgnored
}

// VerifySignature checks an X-Hub-Signature-256 header against body.
func VerifySignature(secret string, body []byte, header string) error {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return ErrBadSignature
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return ErrBadSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrBadSignature
	}
	return nil
}

// Delivery is one inbound webhook request.
type Delivery struct {
	Event     string
	Signature string
	Body      []byte
}

// EventResult is the acknowledgement returned to GitHub.
type EventResult struct {
	Kind         domain.EventKind
	Message      string
	IndexedFiles int
	Report       *SyncReport
}

// WebhookEventService handles inbound GitHub deliveries.
type WebhookEventService struct {
	store         port.IntegrationStore
	walker        *Walker
	forwarder     *Forwarder
	events        Publisher
	secret        string
	fallbackToken string
}

// NewWebhookEventService creates the handler. secret enables signature
// checks; fallbackToken is used when no stored integration matches a push.
func NewWebhookEventService(store port.IntegrationStore, walker *Walker, forwarder *Forwarder, events Publisher, secret, fallbackToken string) *WebhookEventService {
	if events == nil {
		events = nopPublisher{}
	}
	return &WebhookEventService{
		store:         store,
		walker:        walker,
		forwarder:     forwarder,
		events:        events,
		secret:        secret,
		fallbackToken: fallbackToken,
	}
}

// Handle verifies, classifies and dispatches a delivery. Errors are returned
// only for bad signatures and malformed JSON; downstream failures are logged.
func (s *WebhookEventService) Handle(ctx context.Context, d Delivery) (*EventResult, error) {
	if s.secret != "" {
		if err := VerifySignature(s.secret, d.Body, d.Signature); err != nil {
			return nil, err
		}
	}

	var payload domain.WebhookPayload
	if err := json.Unmarshal(d.Body, &payload); err != nil {
		return nil, port.Invalid("body", "malformed webhook payload")
	}

	kind := Classify(d.Event, &payload)
	slog.Info("webhook event received", "kind", kind, "header", d.Event)

	switch kind {
	case domain.EventPush:
		return s.handlePush(ctx, &payload), nil
	case domain.EventPullRequest:
		return &EventResult{Kind: kind, Message: "PR event received"}, nil
	case domain.EventPing:
		return &EventResult{Kind: kind, Message: "pong"}, nil
	default:
		return &EventResult{Kind: domain.EventIgnored, Message: "Event ignored (not push/PR)"}, nil
	}
}

func (s *WebhookEventService) handlePush(ctx context.Context, p *domain.WebhookPayload) *EventResult {
	res := &EventResult{Kind: domain.EventPush}
	if p.Repository == nil || p.Repository.FullName == "" {
		res.Message = "push without repository"
		return res
	}
	repo := p.Repository
	githubID := strconv.FormatInt(repo.ID, 10)
	repoID, token, name := githubID, s.fallbackToken, repo.Name

	stored, err := s.store.GetIntegrationByGitHubID(ctx, repo.ID)
	switch {
	case err == nil:
		repoID, name = stored.ID, stored.Name
		if stored.AccessToken != "" {
			token = stored.AccessToken
		}
	case !errors.Is(err, port.ErrNotFound):
		slog.Error("webhook: integration lookup failed", "github_id", repo.ID, "error", err)
	}

	report := newReport("push", repoID)
	res.Report = report

	paths := p.ChangedPaths()
	if len(paths) == 0 {
		report.skip(StepWalk, "no added or modified paths")
		return res
	}

	start := time.Now()
	files := s.walker.WalkPaths(ctx, repo.FullName, token, paths)
	report.record(StepWalk, start, len(files), nil)

	start = time.Now()
	n, err := s.forwarder.Forward(ctx, repoID, files, Metadata(repo.ID, name))
	report.record(StepForward, start, n, err)
	res.IndexedFiles = len(files)

	if stored != nil {
		s.events.Publish(publishFor(stored, domain.IntegrationEventIndexed, strconv.Itoa(len(files))))
	}
	return res
}
