package port

import (
	"context"
	"time"

	"github.com/arturoeanton/repo-sync/internal/domain"
)

// UserStore persists user accounts.
type UserStore interface {
	// CreateUser inserts a new user and assigns its ID.
	// A duplicate email yields ErrEmailTaken.
	CreateUser(ctx context.Context, u *domain.User) error
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	// UpdateUser replaces the stored document for u.ID.
	UpdateUser(ctx context.Context, u *domain.User) error
}

// IntegrationStore persists canonical repository integrations.
type IntegrationStore interface {
	GetIntegrationByID(ctx context.Context, id string) (*domain.Integration, error)
	GetIntegrationByGitHubID(ctx context.Context, githubID int64) (*domain.Integration, error)
	// UpsertIntegration writes in by GitHubID. An existing record keeps its
	// ID and CreatedAt; a new one gets a fresh ID. in is updated in place.
	UpsertIntegration(ctx context.Context, in *domain.Integration) error
	DeleteIntegration(ctx context.Context, id string) error
	// AppendAnalysisRecord pushes rec onto the integration's history.
	AppendAnalysisRecord(ctx context.Context, id string, rec domain.AnalysisRecord) error
	// TouchLastSynced sets lastSynced without rewriting the rest of the
	// record. A deleted integration yields ErrIntegrationNotFound.
	TouchLastSynced(ctx context.Context, id string, at time.Time) error
}

// AuditStore persists audit log entries.
type AuditStore interface {
	WriteAudit(ctx context.Context, entry *domain.AuditLog) error
	// ListAuditLogs returns a user's entries newest first. An empty action
	// matches every action; limit <= 0 means no limit.
	ListAuditLogs(ctx context.Context, userID, action string, limit int) ([]domain.AuditLog, error)
}

// Store is the Credential Store: every persistence concern of the server.
type Store interface {
	UserStore
	IntegrationStore
	AuditStore
	Close() error
}
