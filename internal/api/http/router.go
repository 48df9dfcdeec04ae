package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/youcloud/sla-engine/internal/api/http/handlers"
	"github.com/youcloud/sla-engine/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Escalation     *handlers.EscalationHandler
	Engine         *handlers.EngineHandler
	AuthMiddleware *auth.Middleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/auth/login", cfg.Auth.Login)

	api := app.Group("/api", cfg.AuthMiddleware.Handle)

	api.Post("/escalation/force/:ticketID", cfg.Escalation.ForceEscalate)
	api.Post("/escalation/check/:ticketID", cfg.Escalation.CheckTicket)
	api.Post("/escalation/resolve/:ticketID", cfg.Escalation.Resolve)
	api.Get("/escalation/tickets/:ticketID", cfg.Escalation.Detail)

	api.Get("/sla/statistics", cfg.Escalation.Statistics)
	api.Get("/sla/overview", cfg.Escalation.Overview)

	api.Get("/engine/status", cfg.Engine.Status)
}
