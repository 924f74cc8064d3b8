package domain

import (
	"encoding/json"
	"time"
)

// EventKind is the classified type of an inbound webhook delivery.
type EventKind string

const (
	EventPush        EventKind = "push"
	EventPullRequest EventKind = "pull_request"
	EventPing        EventKind = "ping"
	EventIgnored     EventKind = "ignored"
)

// WebhookRepository is the repository block of a webhook payload.
type WebhookRepository struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
}

// PushCommit lists the paths touched by one pushed commit.
type PushCommit struct {
	ID       string   `json:"id"`
	Added    []string `json:"added"`
	Modified []string `json:"modified"`
	Removed  []string `json:"removed"`
}

// WebhookPayload is the subset of a GitHub webhook body the server reads.
type WebhookPayload struct {
	Zen         string             `json:"zen,omitempty"`
	HookID      int64              `json:"hook_id,omitempty"`
	Action      string             `json:"action,omitempty"`
	Ref         string             `json:"ref,omitempty"`
	Repository  *WebhookRepository `json:"repository,omitempty"`
	Commits     []PushCommit       `json:"commits,omitempty"`
	PullRequest json.RawMessage    `json:"pull_request,omitempty"`
}

// ChangedPaths returns the union of added and modified paths across all
// commits, in first-seen order.
func (p *WebhookPayload) ChangedPaths() []string {
	seen := make(map[string]struct{})
	var paths []string
	for _, c := range p.Commits {
		for _, group := range [][]string{c.Added, c.Modified} {
			for _, path := range group {
				if _, ok := seen[path]; ok {
					continue
				}
				seen[path] = struct{}{}
				paths = append(paths, path)
			}
		}
	}
	return paths
}

// IntegrationEvent is published whenever an integration changes state.
type IntegrationEvent struct {
	Type      string    `json:"type"`
	RepoID    string    `json:"repoId"`
	GitHubID  int64     `json:"githubId"`
	FullName  string    `json:"fullName"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Integration event types.
const (
	IntegrationEventSaved    = "integration.saved"
	IntegrationEventSynced   = "integration.synced"
	IntegrationEventDeleted  = "integration.deleted"
	IntegrationEventIndexed  = "integration.indexed"
	IntegrationEventInactive = "integration.inactive"
)
