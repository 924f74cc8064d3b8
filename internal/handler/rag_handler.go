package handler

import (
	"encoding/json"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/repo-sync/internal/service"
)

// RAGHandler proxies questions to the retrieval service.
type RAGHandler struct {
	integrations *service.IntegrationService
}

// NewRAGHandler creates a new RAG handler.
func NewRAGHandler(integrations *service.IntegrationService) *RAGHandler {
	return &RAGHandler{integrations: integrations}
}

// Register sets up RAG routes behind protect.
func (h *RAGHandler) Register(router fiber.Router, protect fiber.Handler) {
	rag := router.Group("/rag", protect)
	rag.Post("/query", h.Query)
}

// Query walks the stored repository and asks the retrieval service the prompt.
func (h *RAGHandler) Query(c fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	var body struct {
		RepoID string `json:"repoId"`
		Prompt string `json:"prompt"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	raw, err := h.integrations.Query(c.Context(), body.RepoID, userID, body.Prompt)
	if err != nil {
		return respondError(c, err, "Repository or files not found", "Failed to query repository")
	}

	var answer any = string(raw)
	if json.Valid(raw) {
		answer = json.RawMessage(raw)
	}
	return c.JSON(fiber.Map{"success": true, "rag": answer})
}
