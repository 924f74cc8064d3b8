package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	_ "modernc.org/sqlite"

	"github.com/arturoeanton/repo-sync/internal/domain"
	"github.com/arturoeanton/repo-sync/internal/port"
)

// sqliteTime is a fixed-width layout so stored timestamps sort as text.
const sqliteTime = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore is the embedded backend used for single-node deployments and tests.
type SQLiteStore struct {
	db *sql.DB
}

var _ port.Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	// One connection: an in-memory database exists per connection, and
	// SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}
	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL DEFAULT '',
			doc           TEXT NOT NULL,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS repository_integrations (
			id           TEXT PRIMARY KEY,
			github_id    INTEGER NOT NULL UNIQUE,
			access_token TEXT NOT NULL DEFAULT '',
			status       TEXT NOT NULL,
			doc          TEXT NOT NULL,
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS audit_logs (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL,
			action      TEXT NOT NULL,
			resource    TEXT NOT NULL,
			resource_id TEXT NOT NULL DEFAULT '',
			details     TEXT NOT NULL DEFAULT '',
			ip          TEXT NOT NULL DEFAULT '',
			user_agent  TEXT NOT NULL DEFAULT '',
			created_at  TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_user ON audit_logs(user_id, created_at);`)
	return err
}

// CreateUser inserts a new user.
func (s *SQLiteStore) CreateUser(ctx context.Context, u *domain.User) error {
	now := time.Now().UTC()
	u.ID = xid.New().String()
	u.CreatedAt, u.UpdatedAt = now, now

	doc, err := encodeDoc(u)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, doc, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, string(doc), now.Format(sqliteTime), now.Format(sqliteTime),
	)
	if isSQLiteUnique(err) {
		return port.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("sqlite: inserting user: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return s.getUser(ctx, `SELECT doc, password_hash FROM users WHERE id = ?`, id)
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.getUser(ctx, `SELECT doc, password_hash FROM users WHERE email = ?`, email)
}

func (s *SQLiteStore) getUser(ctx context.Context, query string, arg any) (*domain.User, error) {
	var doc, hash string
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&doc, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting user: %w", err)
	}
	return decodeUser([]byte(doc), hash)
}

// UpdateUser replaces the stored user document.
func (s *SQLiteStore) UpdateUser(ctx context.Context, u *domain.User) error {
	u.UpdatedAt = time.Now().UTC()
	doc, err := encodeDoc(u)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET email = ?, password_hash = ?, doc = ?, updated_at = ? WHERE id = ?`,
		u.Email, u.PasswordHash, string(doc), u.UpdatedAt.Format(sqliteTime), u.ID,
	)
	if isSQLiteUnique(err) {
		return port.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("sqlite: updating user %s: %w", u.ID, err)
	}
	return requireRow(res, port.ErrUserNotFound)
}

// GetIntegrationByID returns an integration by its ID.
func (s *SQLiteStore) GetIntegrationByID(ctx context.Context, id string) (*domain.Integration, error) {
	return s.getIntegration(ctx, `SELECT doc, access_token FROM repository_integrations WHERE id = ?`, id)
}

// GetIntegrationByGitHubID returns an integration by its GitHub repository ID.
func (s *SQLiteStore) GetIntegrationByGitHubID(ctx context.Context, githubID int64) (*domain.Integration, error) {
	return s.getIntegration(ctx, `SELECT doc, access_token FROM repository_integrations WHERE github_id = ?`, githubID)
}

func (s *SQLiteStore) getIntegration(ctx context.Context, query string, arg any) (*domain.Integration, error) {
	var doc, token string
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&doc, &token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrIntegrationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting integration: %w", err)
	}
	return decodeIntegration([]byte(doc), token)
}

// UpsertIntegration inserts or replaces an integration keyed by github_id,
// keeping the ID and creation time of an existing row.
func (s *SQLiteStore) UpsertIntegration(ctx context.Context, in *domain.Integration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	var existingID, createdAt string
	err = tx.QueryRowContext(ctx,
		`SELECT id, created_at FROM repository_integrations WHERE github_id = ?`, in.GitHubID,
	).Scan(&existingID, &createdAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlite: looking up integration by github_id %d: %w", in.GitHubID, err)
	}

	now := time.Now().UTC()
	prepareIntegration(in)
	in.UpdatedAt = now
	if existingID != "" {
		in.ID = existingID
		if t, perr := time.Parse(sqliteTime, createdAt); perr == nil {
			in.CreatedAt = t
		}
	} else {
		in.ID, in.CreatedAt = xid.New().String(), now
	}

	doc, err := encodeDoc(in)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO repository_integrations (id, github_id, access_token, status, doc, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (github_id) DO UPDATE SET
			access_token = excluded.access_token,
			status = excluded.status,
			doc = excluded.doc,
			updated_at = excluded.updated_at`,
		in.ID, in.GitHubID, in.AccessToken, in.Status, string(doc),
		in.CreatedAt.Format(sqliteTime), now.Format(sqliteTime),
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting integration (githubID=%d): %w", in.GitHubID, err)
	}
	return tx.Commit()
}

// DeleteIntegration removes an integration.
func (s *SQLiteStore) DeleteIntegration(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM repository_integrations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting integration %s: %w", id, err)
	}
	return requireRow(res, port.ErrIntegrationNotFound)
}

// AppendAnalysisRecord pushes rec onto analysisHistory in a single statement.
func (s *SQLiteStore) AppendAnalysisRecord(ctx context.Context, id string, rec domain.AnalysisRecord) error {
	item, err := encodeDoc(rec)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE repository_integrations
		 SET doc = json_set(json_insert(doc, '$.analysisHistory[#]', json(?)), '$.updatedAt', ?),
		     updated_at = ?
		 WHERE id = ?`,
		string(item), now.Format(time.RFC3339Nano), now.Format(sqliteTime), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: appending analysis record to %s: %w", id, err)
	}
	return requireRow(res, port.ErrIntegrationNotFound)
}

// TouchLastSynced rewrites only lastSynced inside the stored document.
func (s *SQLiteStore) TouchLastSynced(ctx context.Context, id string, at time.Time) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE repository_integrations
		 SET doc = json_set(doc, '$.lastSynced', ?, '$.updatedAt', ?),
		     updated_at = ?
		 WHERE id = ?`,
		at.UTC().Format(time.RFC3339Nano), now.Format(time.RFC3339Nano), now.Format(sqliteTime), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: touching last synced on %s: %w", id, err)
	}
	return requireRow(res, port.ErrIntegrationNotFound)
}

// WriteAudit stores one audit entry.
func (s *SQLiteStore) WriteAudit(ctx context.Context, e *domain.AuditLog) error {
	if e.ID == "" {
		e.ID = xid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, user_id, action, resource, resource_id, details, ip, user_agent, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Action, e.Resource, e.ResourceID, e.Details, e.IP, e.UserAgent,
		e.CreatedAt.UTC().Format(sqliteTime),
	)
	if err != nil {
		return fmt.Errorf("sqlite: writing audit log: %w", err)
	}
	return nil
}

// ListAuditLogs returns a user's audit entries newest first.
func (s *SQLiteStore) ListAuditLogs(ctx context.Context, userID, action string, limit int) ([]domain.AuditLog, error) {
	query := `SELECT id, user_id, action, resource, resource_id, details, ip, user_agent, created_at
	          FROM audit_logs WHERE user_id = ?`
	args := []any{userID}
	if action != "" {
		query += " AND action = ?"
		args = append(args, action)
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing audit logs: %w", err)
	}
	defer rows.Close()

	logs := []domain.AuditLog{}
	for rows.Next() {
		var l domain.AuditLog
		var created string
		if err := rows.Scan(&l.ID, &l.UserID, &l.Action, &l.Resource, &l.ResourceID,
			&l.Details, &l.IP, &l.UserAgent, &created); err != nil {
			return nil, fmt.Errorf("sqlite: scanning audit log: %w", err)
		}
		l.CreatedAt, _ = time.Parse(sqliteTime, created)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func isSQLiteUnique(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
