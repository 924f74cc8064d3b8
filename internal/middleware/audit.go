package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/repo-sync/internal/domain"
)

// AuditWriter defines how audit records are persisted.
type AuditWriter interface {
	WriteAudit(ctx context.Context, entry *domain.AuditLog) error
}

// AuditMiddleware records every request made by an authenticated user.
func AuditMiddleware(writer AuditWriter) fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()

		// Fiber reuses context objects, so capture everything before c.Next.
		method := c.Method()
		path := strings.Clone(c.Path())
		ip := strings.Clone(c.IP())
		userAgent := strings.Clone(c.Get("User-Agent"))

		err := c.Next()

		uc := GetUserContext(c)
		if uc == nil {
			return err
		}
		route := strings.Clone(c.Route().Path)

		details, _ := json.Marshal(map[string]any{
			"method":      method,
			"path":        path,
			"status":      c.Response().StatusCode(),
			"duration_ms": time.Since(start).Milliseconds(),
		})

		entry := &domain.AuditLog{
			UserID:     uc.UserID,
			Action:     AuditAction(method, route),
			Resource:   "api",
			ResourceID: path,
			Details:    string(details),
			IP:         ip,
			UserAgent:  userAgent,
			CreatedAt:  time.Now().UTC(),
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if writeErr := writer.WriteAudit(ctx, entry); writeErr != nil {
				slog.Error("failed to write audit log", "error", writeErr)
			}
		}()

		return err
	}
}

// AuditAction names the audited operation for a method and route pattern.
func AuditAction(method, route string) string {
	switch {
	case strings.HasSuffix(route, "/save-integration"),
		method == fiber.MethodPost && strings.HasSuffix(strings.TrimSuffix(route, "/"), "/repositories") && !strings.Contains(route, "/github/"):
		return domain.AuditActionRepoConnect
	case method == fiber.MethodDelete && strings.Contains(route, "repositor"):
		return domain.AuditActionRepoDelete
	case strings.HasSuffix(route, "/sync"):
		return domain.AuditActionRepoSync
	case strings.HasSuffix(route, "/settings"):
		return domain.AuditActionSettingsUpdate
	case strings.HasSuffix(route, "/webhook/register"):
		return domain.AuditActionWebhookRegister
	case strings.HasSuffix(route, "/rag/query"):
		return domain.AuditActionRAGQuery
	}
	return "http_request"
}
