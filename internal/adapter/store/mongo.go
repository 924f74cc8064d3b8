package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/arturoeanton/repo-sync/internal/domain"
	"github.com/arturoeanton/repo-sync/internal/port"
)

const defaultMongoDatabase = "repo_sync"

// MongoStore keeps users, integrations and audit logs as MongoDB documents.
type MongoStore struct {
	client       *mongo.Client
	users        *mongo.Collection
	integrations *mongo.Collection
	audit        *mongo.Collection
}

var _ port.Store = (*MongoStore)(nil)

// NewMongoStore connects to uri and ensures the unique indexes exist.
func NewMongoStore(uri, database string) (*MongoStore, error) {
	if database == "" {
		database = defaultMongoDatabase
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client:       client,
		users:        db.Collection("users"),
		integrations: db.Collection("repositoryintegrations"),
		audit:        db.Collection("auditlogs"),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	if _, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "email", Value: 1}}, Options: unique,
	}); err != nil {
		return fmt.Errorf("mongo: users index: %w", err)
	}
	if _, err := s.integrations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "githubId", Value: 1}}, Options: unique,
	}); err != nil {
		return fmt.Errorf("mongo: integrations index: %w", err)
	}
	if _, err := s.audit.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
	}); err != nil {
		return fmt.Errorf("mongo: audit index: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) CreateUser(ctx context.Context, u *domain.User) error {
	now := time.Now().UTC()
	u.ID = xid.New().String()
	u.CreatedAt, u.UpdatedAt = now, now
	if _, err := s.users.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return port.ErrEmailTaken
		}
		return fmt.Errorf("mongo: insert user: %w", err)
	}
	return nil
}

func (s *MongoStore) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return s.findUser(ctx, bson.D{{Key: "_id", Value: id}})
}

func (s *MongoStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.findUser(ctx, bson.D{{Key: "email", Value: email}})
}

func (s *MongoStore) findUser(ctx context.Context, filter bson.D) (*domain.User, error) {
	var u domain.User
	err := s.users.FindOne(ctx, filter).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, port.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo: find user: %w", err)
	}
	if u.GitHub != nil {
		for i := range u.GitHub.Repos {
			r := &u.GitHub.Repos[i]
			r.IntegrationSettings = normalizeSettings(r.IntegrationSettings)
			r.NotificationSettings = normalizeSettings(r.NotificationSettings)
		}
	}
	return &u, nil
}

func (s *MongoStore) UpdateUser(ctx context.Context, u *domain.User) error {
	u.UpdatedAt = time.Now().UTC()
	res, err := s.users.ReplaceOne(ctx, bson.D{{Key: "_id", Value: u.ID}}, u)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return port.ErrEmailTaken
		}
		return fmt.Errorf("mongo: replace user: %w", err)
	}
	if res.MatchedCount == 0 {
		return port.ErrUserNotFound
	}
	return nil
}

func (s *MongoStore) GetIntegrationByID(ctx context.Context, id string) (*domain.Integration, error) {
	return s.findIntegration(ctx, bson.D{{Key: "_id", Value: id}})
}

func (s *MongoStore) GetIntegrationByGitHubID(ctx context.Context, githubID int64) (*domain.Integration, error) {
	return s.findIntegration(ctx, bson.D{{Key: "githubId", Value: githubID}})
}

func (s *MongoStore) findIntegration(ctx context.Context, filter bson.D) (*domain.Integration, error) {
	var in domain.Integration
	err := s.integrations.FindOne(ctx, filter).Decode(&in)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, port.ErrIntegrationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo: find integration: %w", err)
	}
	in.IntegrationSettings = normalizeSettings(in.IntegrationSettings)
	in.NotificationSettings = normalizeSettings(in.NotificationSettings)
	if in.AnalysisHistory == nil {
		in.AnalysisHistory = []domain.AnalysisRecord{}
	}
	return &in, nil
}

// UpsertIntegration replaces the document matching githubId, inserting it when absent.
func (s *MongoStore) UpsertIntegration(ctx context.Context, in *domain.Integration) error {
	now := time.Now().UTC()
	prepareIntegration(in)
	in.UpdatedAt = now

	existing, err := s.GetIntegrationByGitHubID(ctx, in.GitHubID)
	switch {
	case err == nil:
		in.ID, in.CreatedAt = existing.ID, existing.CreatedAt
	case errors.Is(err, port.ErrNotFound):
		in.ID, in.CreatedAt = xid.New().String(), now
	default:
		return err
	}

	_, err = s.integrations.ReplaceOne(ctx,
		bson.D{{Key: "githubId", Value: in.GitHubID}}, in,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongo: upsert integration: %w", err)
	}
	return nil
}

func (s *MongoStore) DeleteIntegration(ctx context.Context, id string) error {
	res, err := s.integrations.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return fmt.Errorf("mongo: delete integration: %w", err)
	}
	if res.DeletedCount == 0 {
		return port.ErrIntegrationNotFound
	}
	return nil
}

func (s *MongoStore) AppendAnalysisRecord(ctx context.Context, id string, rec domain.AnalysisRecord) error {
	res, err := s.integrations.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{
			{Key: "$push", Value: bson.D{{Key: "analysisHistory", Value: rec}}},
			{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: time.Now().UTC()}}},
		},
	)
	if err != nil {
		return fmt.Errorf("mongo: append analysis record: %w", err)
	}
	if res.MatchedCount == 0 {
		return port.ErrIntegrationNotFound
	}
	return nil
}

func (s *MongoStore) TouchLastSynced(ctx context.Context, id string, at time.Time) error {
	res, err := s.integrations.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "lastSynced", Value: at.UTC()},
			{Key: "updatedAt", Value: time.Now().UTC()},
		}}},
	)
	if err != nil {
		return fmt.Errorf("mongo: touch last synced: %w", err)
	}
	if res.MatchedCount == 0 {
		return port.ErrIntegrationNotFound
	}
	return nil
}

func (s *MongoStore) WriteAudit(ctx context.Context, e *domain.AuditLog) error {
	if e.ID == "" {
		e.ID = xid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if _, err := s.audit.InsertOne(ctx, e); err != nil {
		return fmt.Errorf("mongo: write audit: %w", err)
	}
	return nil
}

func (s *MongoStore) ListAuditLogs(ctx context.Context, userID, action string, limit int) ([]domain.AuditLog, error) {
	filter := bson.D{{Key: "userId", Value: userID}}
	if action != "" {
		filter = append(filter, bson.E{Key: "action", Value: action})
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.audit.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: list audit logs: %w", err)
	}
	logs := []domain.AuditLog{}
	if err := cur.All(ctx, &logs); err != nil {
		return nil, fmt.Errorf("mongo: decode audit logs: %w", err)
	}
	return logs, nil
}

// normalizeSettings turns the driver's bson.D / bson.A values decoded into
// an open map back into plain maps and slices.
func normalizeSettings(s domain.Settings) domain.Settings {
	if s == nil {
		return nil
	}
	out := make(domain.Settings, len(s))
	for k, v := range s {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = normalizeValue(e.Value)
		}
		return m
	case bson.M:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = normalizeValue(e)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = normalizeValue(e)
		}
		return m
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	}
	return v
}
