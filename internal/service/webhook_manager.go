package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/arturoeanton/repo-sync/internal/domain"
	"github.com/arturoeanton/repo-sync/internal/port"
)

// WebhookEvents are the deliveries every registered hook subscribes to.
var WebhookEvents = []string{"push", "pull_request"}

// WebhookManager keeps at most one hook per (repository, callback URL).
type WebhookManager struct {
	hooks  port.HookClient
	secret string
}

// NewWebhookManager creates a manager. A non-empty secret is set on new hooks.
func NewWebhookManager(hooks port.HookClient, secret string) *WebhookManager {
	return &WebhookManager{hooks: hooks, secret: secret}
}

// Register ensures a hook delivering to callbackURL exists. An existing
// hook with the same URL is returned as is; otherwise one is created.
func (m *WebhookManager) Register(ctx context.Context, fullName, token, callbackURL string) (*domain.Webhook, bool, error) {
	existing, err := m.hooks.ListWebhooks(ctx, fullName, token)
	if err != nil {
		return nil, false, fmt.Errorf("register webhook: list: %w", err)
	}
	for _, h := range existing {
		if h.Config.URL == callbackURL {
			slog.Info("webhook already registered", "repo", fullName, "hook_id", h.ID)
			return &h, false, nil
		}
	}

	created, err := m.hooks.CreateWebhook(ctx, fullName, token, domain.Webhook{
		Name:   "web",
		Active: true,
		Events: WebhookEvents,
		Config: domain.WebhookConfig{
			URL:         callbackURL,
			ContentType: "json",
			InsecureSSL: "0",
			Secret:      m.secret,
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("register webhook: create: %w", err)
	}
	slog.Info("webhook registered", "repo", fullName, "hook_id", created.ID)
	return created, true, nil
}

// Remove deletes every hook on the repository delivering to callbackURL and
// returns how many were removed. Zero matches is success. A failed delete
// does not stop the others; the failures are joined into the error.
func (m *WebhookManager) Remove(ctx context.Context, fullName, token, callbackURL string) (int, error) {
	hooks, err := m.hooks.ListWebhooks(ctx, fullName, token)
	if err != nil {
		return 0, fmt.Errorf("remove webhook: list: %w", err)
	}
	removed := 0
	var errs []error
	for _, h := range hooks {
		if h.Config.URL != callbackURL {
			continue
		}
		if err := m.hooks.DeleteWebhook(ctx, fullName, token, h.ID); err != nil {
			errs = append(errs, fmt.Errorf("remove webhook %d: %w", h.ID, err))
			continue
		}
		removed++
	}
	slog.Info("webhooks removed", "repo", fullName, "count", removed, "failed", len(errs))
	return removed, errors.Join(errs...)
}
