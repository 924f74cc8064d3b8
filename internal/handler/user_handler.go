package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/repo-sync/internal/service"
)

// UserHandler serves the current user's profile.
type UserHandler struct {
	users *service.UserService
}

// NewUserHandler creates a user handler.
func NewUserHandler(users *service.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// Register sets up user routes behind protect.
func (h *UserHandler) Register(router fiber.Router, protect fiber.Handler) {
	user := router.Group("/user", protect)
	user.Get("/profile", h.Profile)
	user.Put("/profile", h.UpdateProfile)
	user.Get("/github-status", h.GitHubStatus)
}

func (h *UserHandler) Profile(c fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	user, err := h.users.Profile(c.Context(), userID)
	if err != nil {
		return respondError(c, err, "User not found", "Failed to fetch profile")
	}
	return c.JSON(fiber.Map{"success": true, "user": user})
}

func (h *UserHandler) UpdateProfile(c fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	var upd service.ProfileUpdate
	if err := c.Bind().JSON(&upd); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	user, err := h.users.UpdateProfile(c.Context(), userID, upd)
	if err != nil {
		return respondError(c, err, "User not found", "Failed to update profile")
	}
	return c.JSON(fiber.Map{"success": true, "user": user})
}

// GitHubStatus returns the GitHub connection with the cached repositories.
func (h *UserHandler) GitHubStatus(c fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	user, err := h.users.Profile(c.Context(), userID)
	if err != nil {
		return respondError(c, err, "User not found", "Failed to fetch GitHub status")
	}

	res := fiber.Map{
		"success":   true,
		"connected": false,
		"username":  nil,
		"avatarUrl": nil,
		"repos":     []any{},
	}
	if gh := user.GitHub; gh != nil {
		res["connected"] = gh.AccessToken != ""
		if gh.Username != "" {
			res["username"] = gh.Username
		}
		if gh.AvatarURL != "" {
			res["avatarUrl"] = gh.AvatarURL
		}
		if gh.Repos != nil {
			res["repos"] = gh.Repos
		}
	}
	return c.JSON(res)
}
