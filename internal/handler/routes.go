package handler

import "github.com/gofiber/fiber/v3"

// Routes groups every HTTP handler of the server.
type Routes struct {
	Auth         *AuthHandler
	GitHub       *GitHubHandler
	Repositories *RepositoryHandler
	Users        *UserHandler
	RAG          *RAGHandler
	Audit        *AuditHandler
	Events       *EventsHandler
}

// Mount registers every route both at the root and under /api.
// Auth, the connect callback and the webhook receiver are public;
// everything else runs behind protect.
func Mount(app *fiber.App, r Routes, protect, audit fiber.Handler) {
	if audit != nil {
		app.Use(audit)
	}
	for _, base := range []fiber.Router{app, app.Group("/api")} {
		r.Auth.Register(base)
		r.Events.Register(base, protect)
		r.GitHub.Register(base, protect)
		r.Repositories.Register(base, protect)
		r.Users.Register(base, protect)
		r.RAG.Register(base, protect)
		r.Audit.Register(base, protect)
	}
}
