package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/arturoeanton/repo-sync/internal/domain"
	"github.com/arturoeanton/repo-sync/internal/port"
)

// MemoryStore keeps everything in process memory. Values are copied on the
// way in and out so callers never share state with the store.
type MemoryStore struct {
	mu           sync.RWMutex
	users        map[string]*domain.User
	integrations map[string]*domain.Integration
	audit        []domain.AuditLog
}

var _ port.Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        make(map[string]*domain.User),
		integrations: make(map[string]*domain.Integration),
	}
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) CreateUser(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return port.ErrEmailTaken
		}
	}
	now := time.Now().UTC()
	u.ID = xid.New().String()
	u.CreatedAt, u.UpdatedAt = now, now
	s.users[u.ID] = cloneUser(u)
	return nil
}

func (s *MemoryStore) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, port.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return nil, port.ErrUserNotFound
}

func (s *MemoryStore) UpdateUser(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return port.ErrUserNotFound
	}
	for id, existing := range s.users {
		if id != u.ID && strings.EqualFold(existing.Email, u.Email) {
			return port.ErrEmailTaken
		}
	}
	u.UpdatedAt = time.Now().UTC()
	s.users[u.ID] = cloneUser(u)
	return nil
}

func (s *MemoryStore) GetIntegrationByID(_ context.Context, id string) (*domain.Integration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in, ok := s.integrations[id]
	if !ok {
		return nil, port.ErrIntegrationNotFound
	}
	return cloneIntegration(in), nil
}

func (s *MemoryStore) GetIntegrationByGitHubID(_ context.Context, githubID int64) (*domain.Integration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if in := s.byGitHubID(githubID); in != nil {
		return cloneIntegration(in), nil
	}
	return nil, port.ErrIntegrationNotFound
}

func (s *MemoryStore) byGitHubID(githubID int64) *domain.Integration {
	for _, in := range s.integrations {
		if in.GitHubID == githubID {
			return in
		}
	}
	return nil
}

func (s *MemoryStore) UpsertIntegration(_ context.Context, in *domain.Integration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	prepareIntegration(in)
	in.UpdatedAt = now
	if existing := s.byGitHubID(in.GitHubID); existing != nil {
		in.ID, in.CreatedAt = existing.ID, existing.CreatedAt
	} else {
		in.ID, in.CreatedAt = xid.New().String(), now
	}
	s.integrations[in.ID] = cloneIntegration(in)
	return nil
}

func (s *MemoryStore) DeleteIntegration(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.integrations[id]; !ok {
		return port.ErrIntegrationNotFound
	}
	delete(s.integrations, id)
	return nil
}

func (s *MemoryStore) AppendAnalysisRecord(_ context.Context, id string, rec domain.AnalysisRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.integrations[id]
	if !ok {
		return port.ErrIntegrationNotFound
	}
	in.AnalysisHistory = append(in.AnalysisHistory, rec)
	in.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) TouchLastSynced(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.integrations[id]
	if !ok {
		return port.ErrIntegrationNotFound
	}
	in.LastSynced = at
	in.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) WriteAudit(_ context.Context, e *domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = xid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.audit = append(s.audit, *e)
	return nil
}

func (s *MemoryStore) ListAuditLogs(_ context.Context, userID, action string, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	logs := []domain.AuditLog{}
	for _, l := range s.audit {
		if l.UserID != userID || (action != "" && l.Action != action) {
			continue
		}
		logs = append(logs, l)
	}
	sort.SliceStable(logs, func(i, j int) bool { return logs[i].CreatedAt.After(logs[j].CreatedAt) })
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func cloneUser(u *domain.User) *domain.User {
	c := *u
	if u.GitHub != nil {
		gh := *u.GitHub
		if u.GitHub.Repos != nil {
			gh.Repos = append([]domain.ShadowRepo{}, u.GitHub.Repos...)
		}
		c.GitHub = &gh
	}
	if u.Google != nil {
		g := *u.Google
		c.Google = &g
	}
	return &c
}

func cloneIntegration(in *domain.Integration) *domain.Integration {
	c := *in
	c.IntegrationSettings = domain.Settings{}.Merge(in.IntegrationSettings)
	c.NotificationSettings = domain.Settings{}.Merge(in.NotificationSettings)
	c.AnalysisHistory = append([]domain.AnalysisRecord{}, in.AnalysisHistory...)
	return &c
}
