package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sshconsole/sshconsole/internal/config"
	"github.com/sshconsole/sshconsole/internal/handlers"
	"github.com/sshconsole/sshconsole/internal/middleware"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	serverHandler *handlers.ServerHandler,
	credentialHandler *handlers.CredentialHandler,
	sessionHandler *handlers.SessionHandler,
	consoleHandler *handlers.ConsoleHandler,
	systemHandler *handlers.SystemHandler,
) {
	// ─── Public ──────────────────────────────────────────────────────────
	app.Get("/api/health", systemHandler.Health)

	// ─── Auth ────────────────────────────────────────────────────────────
	app.Post("/api/auth/login", authHandler.Login)
	app.Post("/api/auth/refresh", authHandler.Refresh)

	// ─── Terminal (WebSocket) ───────────────────────────────────────────
	// Not behind the JWT middleware: identity comes from the cookie and is
	// advisory, and direct-mode connections carry no session at all.
	app.Use("/ws/ssh", consoleHandler.UpgradeCheck())
	app.Get("/ws/ssh", consoleHandler.HandleConsole())

	// ─── Protected routes ────────────────────────────────────────────────
	api := app.Group("/api", middleware.JWTProtected(cfg.JWTSecret))

	// Auth (protected)
	api.Get("/auth/me", authHandler.Me)

	// Stats
	api.Get("/stats", systemHandler.Stats)

	// Servers
	api.Get("/servers", serverHandler.ListServers)
	api.Post("/servers", serverHandler.CreateServer)
	api.Get("/servers/:id", serverHandler.GetServer)
	api.Put("/servers/:id", serverHandler.UpdateServer)
	api.Delete("/servers/:id", serverHandler.DeleteServer)

	// Credentials
	api.Get("/credentials", credentialHandler.ListCredentials)
	api.Post("/credentials", credentialHandler.CreateCredential)
	api.Post("/credentials/util/generate", credentialHandler.GenerateMaterial)
	api.Get("/credentials/:id", credentialHandler.GetCredential)
	api.Put("/credentials/:id", credentialHandler.UpdateCredential)
	api.Delete("/credentials/:id", credentialHandler.DeleteCredential)

	// Sessions
	api.Get("/sessions", sessionHandler.ListSessions)
	api.Post("/sessions", sessionHandler.CreateSession)
	api.Get("/sessions/:id", sessionHandler.GetSession)
	api.Post("/sessions/:id/end", sessionHandler.EndSession)
}
