package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/repo-sync/internal/domain"
)

const callbackURL = "https://sync.example.com/api/github/webhook/event"

func hookTo(id int64, url string) domain.Webhook {
	return domain.Webhook{ID: id, Name: "web", Active: true, Config: domain.WebhookConfig{URL: url}}
}

func TestRegisterCreatesHook(t *testing.T) {
	repo := newFakeRepo(nil)
	m := NewWebhookManager(repo, "s3cret")

	hook, created, err := m.Register(context.Background(), "octo/demo", "tok", callbackURL)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, callbackURL, hook.Config.URL)
	assert.Equal(t, "json", hook.Config.ContentType)
	assert.Equal(t, "s3cret", hook.Config.Secret)
	assert.ElementsMatch(t, []string{"push", "pull_request"}, hook.Events)
	assert.Len(t, repo.hooks, 1)
}

func TestRegisterDoesNotDuplicate(t *testing.T) {
	repo := newFakeRepo(nil)
	repo.hooks = []domain.Webhook{hookTo(7, "https://other.example.com"), hookTo(8, callbackURL)}
	m := NewWebhookManager(repo, "")

	hook, created, err := m.Register(context.Background(), "octo/demo", "tok", callbackURL)
	require.NoError(t, err)
	assert.False(t, created)
	assert.EqualValues(t, 8, hook.ID)
	assert.Len(t, repo.hooks, 2)
}

func TestRemoveWithNoMatches(t *testing.T) {
	repo := newFakeRepo(nil)
	repo.hooks = []domain.Webhook{hookTo(1, "https://other.example.com")}

	n, err := NewWebhookManager(repo, "").Remove(context.Background(), "octo/demo", "tok", callbackURL)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, repo.deleted)
}

func TestRemoveDeletesEveryMatch(t *testing.T) {
	repo := newFakeRepo(nil)
	repo.hooks = []domain.Webhook{
		hookTo(1, callbackURL),
		hookTo(2, "https://other.example.com"),
		hookTo(3, callbackURL),
		hookTo(4, callbackURL),
	}

	n, err := NewWebhookManager(repo, "").Remove(context.Background(), "octo/demo", "tok", callbackURL)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []int64{1, 3, 4}, repo.deleted)
	require.Len(t, repo.hooks, 1)
	assert.EqualValues(t, 2, repo.hooks[0].ID)

	// A second pass finds nothing left to do.
	n, err = NewWebhookManager(repo, "").Remove(context.Background(), "octo/demo", "tok", callbackURL)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRemoveContinuesPastFailedDelete(t *testing.T) {
	repo := newFakeRepo(nil)
	repo.hooks = []domain.Webhook{
		hookTo(1, callbackURL),
		hookTo(2, callbackURL),
		hookTo(3, callbackURL),
	}
	repo.hookErrs = map[int64]error{1: errBoom}

	n, err := NewWebhookManager(repo, "").Remove(context.Background(), "octo/demo", "tok", callbackURL)
	assert.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), "remove webhook 1")
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{2, 3}, repo.deleted)
	require.Len(t, repo.hooks, 1)
	assert.EqualValues(t, 1, repo.hooks[0].ID)
}

func TestRemoveListFailure(t *testing.T) {
	repo := newFakeRepo(nil)
	repo.hooksErr = errBoom

	_, err := NewWebhookManager(repo, "").Remove(context.Background(), "octo/demo", "tok", callbackURL)
	assert.ErrorIs(t, err, errBoom)
}
