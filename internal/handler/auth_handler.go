package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/repo-sync/internal/domain"
	"github.com/arturoeanton/repo-sync/internal/middleware"
	"github.com/arturoeanton/repo-sync/internal/port"
	"github.com/arturoeanton/repo-sync/internal/service"
)

// AuthHandler handles login, registration and the OAuth redirects.
type AuthHandler struct {
	authService *service.AuthService
	audit       middleware.AuditWriter
	frontendURL string
}

// NewAuthHandler creates a new auth handler. audit may be nil.
func NewAuthHandler(authService *service.AuthService, audit middleware.AuditWriter, frontendURL string) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		audit:       audit,
		frontendURL: strings.TrimRight(frontendURL, "/"),
	}
}

// Register sets up auth routes.
func (h *AuthHandler) Register(router fiber.Router) {
	auth := router.Group("/auth")
	auth.Post("/register", h.SignUp)
	auth.Post("/login", h.Login)
	auth.Get("/:provider/init", h.Init)
	auth.Get("/:provider/callback", h.Callback)
}

// Init redirects to the provider's consent screen.
func (h *AuthHandler) Init(c fiber.Ctx) error {
	authURL, _, err := h.authService.GetAuthURL(c.Params("provider"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Redirect().To(authURL)
}

// Callback finishes a login flow and redirects to the frontend with a JWT.
func (h *AuthHandler) Callback(c fiber.Ctx) error {
	code := c.Query("code")
	if code == "" {
		return c.Redirect().To(h.frontendURL + "/auth/login?error=oauth_failed")
	}

	token, user, err := h.authService.HandleCallback(c.Context(), c.Params("provider"), code)
	if err != nil {
		slog.Error("oauth callback failed", "provider", c.Params("provider"), "error", err)
		reason := "oauth_failed"
		if errors.Is(err, port.ErrNoAccessToken) {
			reason = "no_token"
		}
		return c.Redirect().To(h.frontendURL + "/auth/login?error=" + reason)
	}

	h.recordLogin(c, user.ID, user.Provider)
	return c.Redirect().To(h.frontendURL + "/auth/login?token=" + url.QueryEscape(token))
}

type credentials struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUp creates a local account.
func (h *AuthHandler) SignUp(c fiber.Ctx) error {
	var body credentials
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	token, user, err := h.authService.Register(c.Context(), body.Name, body.Email, body.Password)
	if errors.Is(err, port.ErrConflict) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Email already registered"})
	}
	if err != nil {
		return respondError(c, err, "", "Registration failed")
	}
	return c.JSON(authResponse(token, user))
}

// Login authenticates a local account.
func (h *AuthHandler) Login(c fiber.Ctx) error {
	var body credentials
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	token, user, err := h.authService.Login(c.Context(), body.Email, body.Password)
	if errors.Is(err, port.ErrUnauthorized) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid credentials"})
	}
	if err != nil {
		return respondError(c, err, "", "Login failed")
	}

	h.recordLogin(c, user.ID, domain.ProviderLocal)
	return c.JSON(authResponse(token, user))
}

func authResponse(token string, user *domain.User) fiber.Map {
	return fiber.Map{
		"success": true,
		"token":   token,
		"user": fiber.Map{
			"id":    user.ID,
			"name":  user.Name,
			"email": user.Email,
		},
	}
}

// recordLogin writes a login audit entry. The audit middleware only sees
// requests that already carry a bearer token.
func (h *AuthHandler) recordLogin(c fiber.Ctx, userID, provider string) {
	if h.audit == nil {
		return
	}
	entry := &domain.AuditLog{
		UserID:    userID,
		Action:    domain.AuditActionLogin,
		Resource:  "auth",
		Details:   `{"provider":"` + provider + `"}`,
		IP:        strings.Clone(c.IP()),
		UserAgent: strings.Clone(c.Get("User-Agent")),
		CreatedAt: time.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.audit.WriteAudit(ctx, entry); err != nil {
			slog.Error("failed to write login audit", "error", err)
		}
	}()
}
