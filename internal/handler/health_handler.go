package handler

import (
	"time"

	"github.com/gofiber/fiber/v3"
)

// Health reports liveness.
func Health(appName string) fiber.Handler {
	return func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "OK",
			"message":   appName + " is running",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}
