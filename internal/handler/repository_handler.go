package handler

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/repo-sync/internal/domain"
	"github.com/arturoeanton/repo-sync/internal/service"
)

const repoNotFound = "Repository not found"

// RepositoryHandler manages connected repositories.
type RepositoryHandler struct {
	integrations *service.IntegrationService
}

// NewRepositoryHandler creates a repository handler.
func NewRepositoryHandler(integrations *service.IntegrationService) *RepositoryHandler {
	return &RepositoryHandler{integrations: integrations}
}

// Register sets up repository routes behind protect.
func (h *RepositoryHandler) Register(router fiber.Router, protect fiber.Handler) {
	repos := router.Group("/repositories", protect)
	repos.Get("/", h.List)
	repos.Post("/", h.Connect)
	repos.Get("/github/:githubId", h.GetByGitHubID)
	repos.Get("/:id", h.owned, h.Get)
	repos.Put("/:id/settings", h.owned, h.UpdateSettings)
	repos.Post("/:id/analysis", h.owned, h.AddAnalysis)
	repos.Get("/:id/analysis-history", h.owned, h.AnalysisHistory)
	repos.Delete("/:id", h.owned, h.Disconnect)
	repos.Post("/:id/sync", h.owned, h.Sync)
}

// owned lets the request through only when the caller has the :id
// integration in their connected repositories.
func (h *RepositoryHandler) owned(c fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	if _, err := h.integrations.Authorize(c.Context(), c.Params("id"), userID); err != nil {
		return respondError(c, err, repoNotFound, "Failed to fetch repository")
	}
	return c.Next()
}

// List returns the caller's connected repositories.
func (h *RepositoryHandler) List(c fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	repos, err := h.integrations.ListConnected(c.Context(), userID)
	if err != nil {
		return respondError(c, err, "User not found", "Failed to fetch repositories")
	}
	return c.JSON(fiber.Map{"success": true, "repositories": repos, "count": len(repos)})
}

// Connect creates or reactivates an integration.
func (h *RepositoryHandler) Connect(c fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	var in service.ConnectInput
	if err := c.Bind().JSON(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	in.UserID = userID

	repo, created, err := h.integrations.Connect(c.Context(), in)
	switch {
	case errors.Is(err, service.ErrAlreadyConnected):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":      "Repository already connected",
			"repository": repo,
		})
	case err != nil:
		return respondError(c, err, "", "Failed to connect repository")
	case created:
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"success":    true,
			"message":    "Repository connected successfully",
			"repository": repo,
		})
	}
	return c.JSON(fiber.Map{
		"success":    true,
		"message":    "Repository reconnected successfully",
		"repository": repo,
	})
}

// Get returns one integration.
func (h *RepositoryHandler) Get(c fiber.Ctx) error {
	repo, err := h.integrations.Get(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err, repoNotFound, "Failed to fetch repository")
	}
	return c.JSON(fiber.Map{"success": true, "repository": repo})
}

// GetByGitHubID returns the integration for a GitHub repository id.
func (h *RepositoryHandler) GetByGitHubID(c fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	githubID, err := strconv.ParseInt(c.Params("githubId"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": repoNotFound})
	}
	repo, err := h.integrations.AuthorizeGitHubID(c.Context(), githubID, userID)
	if err != nil {
		return respondError(c, err, repoNotFound, "Failed to fetch repository")
	}
	return c.JSON(fiber.Map{"success": true, "repository": repo})
}

// UpdateSettings merges integration settings.
func (h *RepositoryHandler) UpdateSettings(c fiber.Ctx) error {
	var body struct {
		IntegrationSettings domain.Settings `json:"integrationSettings"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	repo, err := h.integrations.UpdateSettings(c.Context(), c.Params("id"), body.IntegrationSettings)
	if err != nil {
		return respondError(c, err, repoNotFound, "Failed to update repository settings")
	}
	return c.JSON(fiber.Map{
		"success":    true,
		"message":    "Repository settings updated successfully",
		"repository": repo,
	})
}

// AddAnalysis appends an analysis record.
func (h *RepositoryHandler) AddAnalysis(c fiber.Ctx) error {
	var in service.AnalysisInput
	if err := c.Bind().JSON(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	repo, err := h.integrations.AddAnalysis(c.Context(), c.Params("id"), in)
	if err != nil {
		return respondError(c, err, repoNotFound, "Failed to add analysis record")
	}
	return c.JSON(fiber.Map{
		"success":    true,
		"message":    "Analysis record added successfully",
		"repository": repo,
	})
}

// AnalysisHistory lists analysis records newest first.
func (h *RepositoryHandler) AnalysisHistory(c fiber.Ctx) error {
	repo, history, err := h.integrations.AnalysisHistory(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err, repoNotFound, "Failed to fetch analysis history")
	}
	return c.JSON(fiber.Map{
		"success": true,
		"repository": fiber.Map{
			"name":            repo.Name,
			"fullName":        repo.FullName,
			"analysisHistory": history,
		},
	})
}

// Disconnect soft-deletes an integration.
func (h *RepositoryHandler) Disconnect(c fiber.Ctx) error {
	if err := h.integrations.Deactivate(c.Context(), c.Params("id")); err != nil {
		return respondError(c, err, repoNotFound, "Failed to disconnect repository")
	}
	return c.JSON(fiber.Map{"success": true, "message": "Repository disconnected successfully"})
}

// Sync re-walks and re-indexes a repository.
func (h *RepositoryHandler) Sync(c fiber.Ctx) error {
	repo, indexed, report, err := h.integrations.Sync(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err, repoNotFound, "Failed to sync repository")
	}
	return c.JSON(fiber.Map{
		"success":    true,
		"message":    "Repository synced successfully",
		"repository": repo,
		"ragIndexed": indexed,
		"report":     report,
	})
}
