package handler

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/repo-sync/internal/middleware"
	"github.com/arturoeanton/repo-sync/internal/port"
)

// respondError maps err onto a status code. notFound replaces the message
// of not-found errors when set; failure is the 500 summary.
func respondError(c fiber.Ctx, err error, notFound, failure string) error {
	var ve *port.ValidationError
	switch {
	case errors.As(err, &ve):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ve.Message})
	case errors.Is(err, port.ErrNotFound):
		msg := notFound
		if msg == "" {
			msg = err.Error()
		}
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": msg})
	case errors.Is(err, port.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Access denied"})
	case errors.Is(err, port.ErrUnauthorized):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, port.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
	slog.Error(failure, "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":   failure,
		"message": err.Error(),
	})
}

func currentUser(c fiber.Ctx) (string, bool) {
	uc := middleware.GetUserContext(c)
	if uc == nil || uc.UserID == "" {
		return "", false
	}
	return uc.UserID, true
}

func unauthorized(c fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
}
