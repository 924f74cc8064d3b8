package port

import (
	"context"

	"github.com/arturoeanton/repo-sync/internal/domain"
)

// ContentSource reads repository trees and file bodies from the provider.
type ContentSource interface {
	// ListDirectory lists one directory; an empty path is the repository root.
	ListDirectory(ctx context.Context, fullName, token, path string) ([]domain.ContentEntry, error)

	// GetContent fetches the entry for a single path.
	GetContent(ctx context.Context, fullName, token, path string) (*domain.ContentEntry, error)

	// FetchFileContent downloads the raw body behind an entry's download URL.
	FetchFileContent(ctx context.Context, downloadURL, token string) (string, error)
}

// HookClient manages repository webhooks at the provider.
type HookClient interface {
	ListWebhooks(ctx context.Context, fullName, token string) ([]domain.Webhook, error)
	CreateWebhook(ctx context.Context, fullName, token string, hook domain.Webhook) (*domain.Webhook, error)
	DeleteWebhook(ctx context.Context, fullName, token string, hookID int64) error
}

// RepoProvider is the full GitHub REST surface used by the server.
type RepoProvider interface {
	ContentSource
	HookClient

	// ListRepositories lists the repositories visible to the token's owner.
	ListRepositories(ctx context.Context, token string) ([]domain.RepoSummary, error)

	// GetAuthenticatedUser returns the identity owning token.
	GetAuthenticatedUser(ctx context.Context, token string) (*domain.Identity, error)
}

// Indexer is the external retrieval service.
type Indexer interface {
	Index(ctx context.Context, req domain.IndexRequest) error
	Delete(ctx context.Context, repoID string) error
	Query(ctx context.Context, req domain.QueryRequest) ([]byte, error)
}
