package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/repo-sync/internal/domain"
	"github.com/arturoeanton/repo-sync/internal/middleware"
	"github.com/arturoeanton/repo-sync/internal/port"
	"github.com/arturoeanton/repo-sync/internal/service"
)

// GitHubHandler serves the GitHub integration endpoints.
type GitHubHandler struct {
	auth         *service.AuthService
	users        *service.UserService
	integrations *service.IntegrationService
	webhooks     *service.WebhookEventService
	frontendURL  string
}

// NewGitHubHandler creates a GitHub handler.
func NewGitHubHandler(auth *service.AuthService, users *service.UserService, integrations *service.IntegrationService, webhooks *service.WebhookEventService, frontendURL string) *GitHubHandler {
	return &GitHubHandler{
		auth:         auth,
		users:        users,
		integrations: integrations,
		webhooks:     webhooks,
		frontendURL:  strings.TrimRight(frontendURL, "/"),
	}
}

// Register sets up GitHub routes. protect guards the authenticated ones;
// the OAuth callback and the webhook receiver stay public.
func (h *GitHubHandler) Register(router fiber.Router, protect fiber.Handler) {
	gh := router.Group("/github")
	gh.Get("/oauth/callback", h.OAuthCallback)
	gh.Post("/webhook/event", h.WebhookEvent)

	gh.Get("/status", protect, h.Status)
	gh.Get("/stored-repositories", protect, h.StoredRepositories)
	gh.Delete("/repository/:id", protect, h.DeleteRepository)
	gh.Get("/oauth/init", protect, h.OAuthInit)
	gh.Post("/repositories", protect, h.Repositories)
	gh.Post("/save-integration", protect, h.SaveIntegration)
	gh.Post("/webhook/register", protect, h.RegisterWebhook)
}

// Status reports the caller's GitHub connection.
func (h *GitHubHandler) Status(c fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	st, err := h.users.GitHubStatus(c.Context(), userID)
	if err != nil {
		return respondError(c, err, "User not found", "Failed to fetch GitHub status")
	}
	return c.JSON(st)
}

// StoredRepositories returns the caller's shadow repository list.
func (h *GitHubHandler) StoredRepositories(c fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	repos, err := h.users.StoredRepositories(c.Context(), userID)
	if err != nil {
		return respondError(c, err, "No stored repositories found", "Failed to fetch stored repositories")
	}
	return c.JSON(fiber.Map{"repositories": repos})
}

// DeleteRepository hard-deletes an integration and tears down its hook
// and index.
func (h *GitHubHandler) DeleteRepository(c fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	if _, err := h.integrations.Authorize(c.Context(), c.Params("id"), userID); err != nil {
		return respondError(c, err, "Repository not found", "Failed to delete repository")
	}
	report, err := h.integrations.DeleteIntegration(c.Context(), c.Params("id"), userID)
	if err != nil {
		return respondError(c, err, "Repository not found", "Failed to delete repository")
	}
	return c.JSON(fiber.Map{"success": true, "report": report})
}

// OAuthInit starts the repository-connect flow.
func (h *GitHubHandler) OAuthInit(c fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	authURL, state, err := h.auth.ConnectURL(userID)
	if err != nil {
		return respondError(c, err, "", "Failed to start GitHub authorization")
	}
	return c.JSON(fiber.Map{"success": true, "authUrl": authURL, "state": state})
}

// OAuthCallback completes the repository-connect flow and redirects to the
// frontend.
func (h *GitHubHandler) OAuthCallback(c fiber.Ctx) error {
	code := c.Query("code")
	if code == "" {
		return c.Redirect().To(h.frontendURL + "?error=no_code")
	}

	res, err := h.auth.CompleteConnect(c.Context(), service.ConnectCallback{
		Code:       code,
		State:      c.Query("state"),
		Bearer:     middleware.BearerToken(c),
		QueryToken: c.Query("token"),
	})
	if errors.Is(err, port.ErrNoAccessToken) {
		return c.Redirect().To(h.frontendURL + "?error=no_token")
	}
	if err != nil {
		slog.Error("github connect callback failed", "error", err)
		return c.Redirect().To(h.frontendURL + "?error=oauth_failed")
	}

	user, _ := json.Marshal(fiber.Map{
		"id":        res.Identity.ProviderID,
		"login":     res.Identity.Login,
		"name":      res.Identity.Name,
		"avatarUrl": res.Identity.AvatarURL,
	})
	return c.Redirect().To(h.frontendURL + "/analysis?github_connected=true&user=" +
		url.QueryEscape(string(user)) + "&token=" + url.QueryEscape(res.AccessToken))
}

// Repositories lists the GitHub repositories visible to a token.
func (h *GitHubHandler) Repositories(c fiber.Ctx) error {
	userID, _ := currentUser(c)
	var body struct {
		AccessToken string `json:"accessToken"`
	}
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
	}

	repos, err := h.users.Repositories(c.Context(), userID, body.AccessToken)
	if err != nil {
		var ve *port.ValidationError
		if errors.As(err, &ve) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Access token is required"})
		}
		return respondError(c, err, "", "Failed to fetch repositories")
	}
	return c.JSON(fiber.Map{"success": true, "repositories": repos})
}

// SaveIntegration runs the save workflow.
func (h *GitHubHandler) SaveIntegration(c fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	var in service.SaveInput
	if err := c.Bind().JSON(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	in.UserID = userID

	res, err := h.integrations.SaveIntegration(c.Context(), in)
	if err != nil {
		return respondError(c, err, "", "Failed to save integration")
	}

	msg := "Repository integration updated successfully"
	if res.Created {
		msg = "Repository integration created successfully"
	}
	return c.JSON(fiber.Map{
		"success":    true,
		"message":    msg,
		"repository": res.Integration,
		"ragIndexed": res.RAGIndexed,
		"report":     res.Report,
	})
}

// RegisterWebhook registers the delivery hook on a repository.
func (h *GitHubHandler) RegisterWebhook(c fiber.Ctx) error {
	var body struct {
		RepoFullName string `json:"repoFullName"`
		AccessToken  string `json:"accessToken"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	hook, created, err := h.integrations.RegisterWebhook(c.Context(), body.RepoFullName, body.AccessToken)
	if err != nil {
		return respondError(c, err, "", "Failed to register webhook")
	}
	return c.JSON(fiber.Map{"success": true, "webhook": hook, "created": created})
}

// WebhookEvent receives GitHub deliveries.
func (h *GitHubHandler) WebhookEvent(c fiber.Ctx) error {
	res, err := h.webhooks.Handle(c.Context(), service.Delivery{
		Event:     c.Get("X-GitHub-Event"),
		Signature: c.Get("X-Hub-Signature-256"),
		Body:      c.Body(),
	})
	if err != nil {
		return respondError(c, err, "", "Failed to process webhook event")
	}
	if res.Kind == domain.EventPush {
		return c.JSON(fiber.Map{"success": true, "indexedFiles": res.IndexedFiles})
	}
	return c.JSON(fiber.Map{"success": true, "message": res.Message})
}
