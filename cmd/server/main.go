package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/arturoeanton/repo-sync/internal/adapter/auth"
	"github.com/arturoeanton/repo-sync/internal/adapter/github"
	"github.com/arturoeanton/repo-sync/internal/adapter/rag"
	"github.com/arturoeanton/repo-sync/internal/adapter/store"
	"github.com/arturoeanton/repo-sync/internal/domain"
	"github.com/arturoeanton/repo-sync/internal/handler"
	"github.com/arturoeanton/repo-sync/internal/middleware"
	"github.com/arturoeanton/repo-sync/internal/port"
	"github.com/arturoeanton/repo-sync/internal/service"
	"github.com/arturoeanton/repo-sync/pkg/config"
)

func main() {
	// ── Load .env file ───────────────────────────────────────────────────
	_ = godotenv.Load() // silently ignore if .env doesn't exist

	// ── Configuration ────────────────────────────────────────────────────
	cfg := config.Load()

	slog.Info("Starting repo-sync",
		"port", cfg.Port,
		"database", cfg.DSN(),
		"rag_index", cfg.RAGPath,
		"rag_query", cfg.RAGAPIURL,
		"webhook_receiver", cfg.WebhookReceiverURL,
	)

	// ── Database ─────────────────────────────────────────────────────────
	db, err := store.Open(cfg.DatabaseURL, cfg.MongoDatabase)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// ── Adapters ─────────────────────────────────────────────────────────
	githubAPI := auth.WithAPIBaseURL(cfg.GitHubAPIURL)
	providers := port.AuthProviderRegistry{
		domain.ProviderGoogle: auth.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL),
		domain.ProviderGitHub: auth.NewGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubRedirectURL, githubAPI),
	}
	connectProvider := auth.NewGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubConnectRedirectURL, githubAPI)

	githubClient := github.NewClient(github.Config{
		BaseURL:   cfg.GitHubAPIURL,
		Timeout:   cfg.HTTPTimeout,
		RateLimit: cfg.GitHubRateLimit,
	})
	ragClient := rag.NewClient(cfg.RAGPath, cfg.RAGAPIURL, cfg.HTTPTimeout)

	tokens := middleware.NewTokenService(middleware.JWTConfig{
		Secret:    cfg.JWTSecret,
		Issuer:    cfg.JWTIssuer,
		ExpiresIn: time.Duration(cfg.JWTExpiration) * time.Hour,
	})

	// ── Services ─────────────────────────────────────────────────────────
	events := service.NewEventBus()
	walker := service.NewWalker(githubClient, cfg.WalkerConcurrency)
	forwarder := service.NewForwarder(ragClient)

	authService := service.NewAuthService(service.AuthDeps{
		Providers: providers,
		Connect:   connectProvider,
		Repos:     githubClient,
		Users:     db,
		Tokens:    tokens,
		States:    tokens,
		Passwords: auth.NewPasswordService(0),
	})
	userService := service.NewUserService(db, githubClient)
	integrationService := service.NewIntegrationService(service.IntegrationDeps{
		Store:       db,
		Webhooks:    service.NewWebhookManager(githubClient, cfg.GitHubWebhookSecret),
		Walker:      walker,
		Forwarder:   forwarder,
		Events:      events,
		CallbackURL: cfg.WebhookReceiverURL,
	})
	webhookService := service.NewWebhookEventService(db, walker, forwarder, events,
		cfg.GitHubWebhookSecret, cfg.GitHubAccessToken)

	// ── Fiber App ────────────────────────────────────────────────────────
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.CORSOrigin},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowCredentials: true,
	}))

	app.Get("/health", handler.Health(cfg.AppName))
	app.Get("/api/health", handler.Health(cfg.AppName))

	jwtMiddleware := middleware.JWTMiddleware(tokens)
	audit := middleware.AuditMiddleware(db)

	handler.Mount(app, handler.Routes{
		Auth:         handler.NewAuthHandler(authService, db, cfg.CORSOrigin),
		GitHub:       handler.NewGitHubHandler(authService, userService, integrationService, webhookService, cfg.CORSOrigin),
		Repositories: handler.NewRepositoryHandler(integrationService),
		Users:        handler.NewUserHandler(userService),
		RAG:          handler.NewRAGHandler(integrationService),
		Audit:        handler.NewAuditHandler(db),
		Events:       handler.NewEventsHandler(events),
	}, jwtMiddleware, audit)

	// ── Start ────────────────────────────────────────────────────────────
	slog.Info("Fiber listening", "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
