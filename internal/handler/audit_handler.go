package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/repo-sync/internal/port"
)

// AuditHandler handles audit log endpoints.
type AuditHandler struct {
	store port.AuditStore
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(store port.AuditStore) *AuditHandler {
	return &AuditHandler{store: store}
}

// Register sets up audit routes behind protect.
func (h *AuditHandler) Register(router fiber.Router, protect fiber.Handler) {
	audit := router.Group("/audit", protect)
	audit.Get("/logs", h.ListLogs)
}

// ListLogs returns the caller's audit logs, optionally filtered by action.
func (h *AuditHandler) ListLogs(c fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	limit, err := strconv.Atoi(c.Query("limit", "100"))
	if err != nil || limit <= 0 {
		limit = 100
	}

	logs, err := h.store.ListAuditLogs(c.Context(), userID, c.Query("action"), limit)
	if err != nil {
		return respondError(c, err, "", "Failed to fetch audit logs")
	}
	return c.JSON(fiber.Map{"logs": logs, "count": len(logs)})
}
