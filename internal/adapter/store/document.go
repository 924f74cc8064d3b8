// Package store implements port.Store on Postgres, MongoDB, SQLite and
// process memory. The SQL backends keep each user and integration as a
// JSON document next to the few columns they index or keep secret.
package store

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/arturoeanton/repo-sync/internal/domain"
	"github.com/arturoeanton/repo-sync/internal/port"
)

// Open selects a backend from the scheme of databaseURL.
//
//	postgres://... | postgresql://...  -> PostgresStore
//	mongodb://...  | mongodb+srv://... -> MongoStore (database from mongoDB)
//	sqlite://path  | sqlite://:memory: -> SQLiteStore
//	memory://                          -> MemoryStore
func Open(databaseURL, mongoDB string) (port.Store, error) {
	scheme, rest, ok := strings.Cut(databaseURL, "://")
	if !ok {
		return nil, fmt.Errorf("store: unsupported database url %q", databaseURL)
	}
	switch strings.ToLower(scheme) {
	case "postgres", "postgresql":
		return NewPostgresStore(databaseURL)
	case "mongodb", "mongodb+srv":
		return NewMongoStore(databaseURL, mongoDB)
	case "sqlite", "file":
		path, err := url.PathUnescape(rest)
		if err != nil {
			return nil, fmt.Errorf("store: sqlite path: %w", err)
		}
		return NewSQLiteStore(path)
	case "memory", "mem":
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("store: unsupported database scheme %q", scheme)
}

func encodeDoc(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}

func decodeUser(doc []byte, passwordHash string) (*domain.User, error) {
	var u domain.User
	if err := json.Unmarshal(doc, &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	u.PasswordHash = passwordHash
	return &u, nil
}

func decodeIntegration(doc []byte, accessToken string) (*domain.Integration, error) {
	var in domain.Integration
	if err := json.Unmarshal(doc, &in); err != nil {
		return nil, fmt.Errorf("decode integration: %w", err)
	}
	in.AccessToken = accessToken
	if in.AnalysisHistory == nil {
		in.AnalysisHistory = []domain.AnalysisRecord{}
	}
	return &in, nil
}

func prepareIntegration(in *domain.Integration) {
	if in.AnalysisHistory == nil {
		in.AnalysisHistory = []domain.AnalysisRecord{}
	}
	if in.Status == "" {
		in.Status = domain.IntegrationStatusActive
	}
}
