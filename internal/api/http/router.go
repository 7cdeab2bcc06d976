package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/loyalty-scanner/internal/api/http/handlers"
	"github.com/spec-kit/loyalty-scanner/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Operators      *handlers.OperatorsHandler
	Scan           *handlers.ScanHandler
	AuthMiddleware *auth.AuthMiddleware
	MerchantID     string
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/operators/login", cfg.Operators.Login)

	scan := app.Group("/scan", cfg.AuthMiddleware.Handle, auth.RequireOperator(cfg.MerchantID))
	scan.Get("/session", cfg.Scan.Session)
	scan.Post("/confirm/punch", cfg.Scan.ConfirmPunch)
	scan.Post("/confirm/redemption", cfg.Scan.ConfirmRedemption)
	scan.Post("/confirm/bundle", cfg.Scan.ConfirmBundle)
	scan.Post("/reset", cfg.Scan.Reset)
	scan.Post("/camera/retry", cfg.Scan.RetryCamera)
	scan.Get("/stats", cfg.Scan.Stats)
}
