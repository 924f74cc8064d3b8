package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/xid"

	"github.com/arturoeanton/repo-sync/internal/domain"
	"github.com/arturoeanton/repo-sync/internal/port"
)

const pgUniqueViolation = "23505"

// PostgresStore keeps documents in JSONB columns.
type PostgresStore struct {
	db *sql.DB
}

var _ port.Store = (*PostgresStore)(nil)

// NewPostgresStore opens a connection, applies the schema and returns a store instance.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL DEFAULT '',
			doc           JSONB NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS repository_integrations (
			id           TEXT PRIMARY KEY,
			github_id    BIGINT NOT NULL UNIQUE,
			access_token TEXT NOT NULL DEFAULT '',
			status       TEXT NOT NULL,
			doc          JSONB NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS audit_logs (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL,
			action      TEXT NOT NULL,
			resource    TEXT NOT NULL,
			resource_id TEXT NOT NULL DEFAULT '',
			details     JSONB,
			ip          TEXT NOT NULL DEFAULT '',
			user_agent  TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_user ON audit_logs(user_id, created_at DESC);`)
	return err
}

// --- Users ---

// CreateUser inserts a new user.
func (s *PostgresStore) CreateUser(ctx context.Context, u *domain.User) error {
	now := time.Now().UTC()
	u.ID = xid.New().String()
	u.CreatedAt, u.UpdatedAt = now, now

	doc, err := encodeDoc(u)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, doc, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Email, u.PasswordHash, string(doc), now, now,
	)
	if isUniqueViolation(err) {
		return port.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return s.getUser(ctx, `SELECT doc, password_hash FROM users WHERE id = $1`, id)
}

// GetUserByEmail retrieves a user by email.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.getUser(ctx, `SELECT doc, password_hash FROM users WHERE email = $1`, email)
}

func (s *PostgresStore) getUser(ctx context.Context, query string, arg any) (*domain.User, error) {
	var doc []byte
	var hash string
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&doc, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return decodeUser(doc, hash)
}

// UpdateUser replaces the stored user document.
func (s *PostgresStore) UpdateUser(ctx context.Context, u *domain.User) error {
	u.UpdatedAt = time.Now().UTC()
	doc, err := encodeDoc(u)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET email = $2, password_hash = $3, doc = $4, updated_at = $5 WHERE id = $1`,
		u.ID, u.Email, u.PasswordHash, string(doc), u.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return port.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return requireRow(res, port.ErrUserNotFound)
}

// --- Integrations ---

// GetIntegrationByID returns an integration by its ID.
func (s *PostgresStore) GetIntegrationByID(ctx context.Context, id string) (*domain.Integration, error) {
	return s.getIntegration(ctx, `SELECT doc, access_token FROM repository_integrations WHERE id = $1`, id)
}

// GetIntegrationByGitHubID returns an integration by its GitHub repository ID.
func (s *PostgresStore) GetIntegrationByGitHubID(ctx context.Context, githubID int64) (*domain.Integration, error) {
	return s.getIntegration(ctx, `SELECT doc, access_token FROM repository_integrations WHERE github_id = $1`, githubID)
}

func (s *PostgresStore) getIntegration(ctx context.Context, query string, arg any) (*domain.Integration, error) {
	var doc []byte
	var token string
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&doc, &token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrIntegrationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get integration: %w", err)
	}
	return decodeIntegration(doc, token)
}

// UpsertIntegration inserts or replaces an integration keyed by github_id.
func (s *PostgresStore) UpsertIntegration(ctx context.Context, in *domain.Integration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upsert integration: begin: %w", err)
	}
	defer tx.Rollback()

	var existingID string
	var createdAt time.Time
	err = tx.QueryRowContext(ctx,
		`SELECT id, created_at FROM repository_integrations WHERE github_id = $1 FOR UPDATE`, in.GitHubID,
	).Scan(&existingID, &createdAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("upsert integration: lookup: %w", err)
	}

	now := time.Now().UTC()
	prepareIntegration(in)
	in.UpdatedAt = now
	if existingID != "" {
		in.ID, in.CreatedAt = existingID, createdAt
	} else {
		in.ID, in.CreatedAt = xid.New().String(), now
	}

	doc, err := encodeDoc(in)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO repository_integrations (id, github_id, access_token, status, doc, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (github_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			status = EXCLUDED.status,
			doc = EXCLUDED.doc,
			updated_at = EXCLUDED.updated_at`,
		in.ID, in.GitHubID, in.AccessToken, in.Status, string(doc), in.CreatedAt, in.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert integration: %w", err)
	}
	return tx.Commit()
}

// DeleteIntegration removes an integration.
func (s *PostgresStore) DeleteIntegration(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM repository_integrations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete integration: %w", err)
	}
	return requireRow(res, port.ErrIntegrationNotFound)
}

// AppendAnalysisRecord pushes rec onto analysisHistory in a single statement.
func (s *PostgresStore) AppendAnalysisRecord(ctx context.Context, id string, rec domain.AnalysisRecord) error {
	item, err := encodeDoc([]domain.AnalysisRecord{rec})
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	stamp, _ := now.MarshalJSON()
	res, err := s.db.ExecContext(ctx,
		`UPDATE repository_integrations
		 SET doc = jsonb_set(
				jsonb_set(doc, '{analysisHistory}', COALESCE(doc->'analysisHistory', '[]'::jsonb) || $2::jsonb),
				'{updatedAt}', $3::jsonb),
			 updated_at = $4
		 WHERE id = $1`,
		id, string(item), string(stamp), now,
	)
	if err != nil {
		return fmt.Errorf("append analysis record: %w", err)
	}
	return requireRow(res, port.ErrIntegrationNotFound)
}

// TouchLastSynced rewrites only lastSynced inside the stored document.
func (s *PostgresStore) TouchLastSynced(ctx context.Context, id string, at time.Time) error {
	now := time.Now().UTC()
	synced, _ := at.UTC().MarshalJSON()
	stamp, _ := now.MarshalJSON()
	res, err := s.db.ExecContext(ctx,
		`UPDATE repository_integrations
		 SET doc = jsonb_set(jsonb_set(doc, '{lastSynced}', $2::jsonb), '{updatedAt}', $3::jsonb),
			 updated_at = $4
		 WHERE id = $1`,
		id, string(synced), string(stamp), now,
	)
	if err != nil {
		return fmt.Errorf("touch last synced: %w", err)
	}
	return requireRow(res, port.ErrIntegrationNotFound)
}

// --- Audit ---

// WriteAudit implements middleware.AuditWriter.
func (s *PostgresStore) WriteAudit(ctx context.Context, e *domain.AuditLog) error {
	if e.ID == "" {
		e.ID = xid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	details := sql.NullString{String: e.Details, Valid: e.Details != ""}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, user_id, action, resource, resource_id, details, ip, user_agent, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9)`,
		e.ID, e.UserID, e.Action, e.Resource, e.ResourceID, details, e.IP, e.UserAgent, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("write audit: %w", err)
	}
	return nil
}

// ListAuditLogs returns recent audit logs for a user with an optional action filter.
func (s *PostgresStore) ListAuditLogs(ctx context.Context, userID, action string, limit int) ([]domain.AuditLog, error) {
	query := `SELECT id, user_id, action, resource, resource_id, COALESCE(details::text, ''), ip, user_agent, created_at
	          FROM audit_logs WHERE user_id = $1`
	args := []any{userID}

	if action != "" {
		args = append(args, action)
		query += fmt.Sprintf(" AND action = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	logs := []domain.AuditLog{}
	for rows.Next() {
		var l domain.AuditLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.Action, &l.Resource, &l.ResourceID,
			&l.Details, &l.IP, &l.UserAgent, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
