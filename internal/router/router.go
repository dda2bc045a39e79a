package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-progression-api/internal/config"
	"github.com/noah-isme/gema-progression-api/internal/handler"
	"github.com/noah-isme/gema-progression-api/internal/middleware"
	"github.com/noah-isme/gema-progression-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	HealthHandler      *handler.HealthHandler
	ProgressionHandler *handler.ProgressionHandler
	PathHandler        *handler.PathHandler
	ProfileHandler     *handler.ProfileHandler
	TelemetryHandler   *handler.TelemetryHandler
	JWTMiddleware      fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	if deps.HealthHandler != nil {
		api.Get("/health", deps.HealthHandler.Live)
		api.Get("/ready", deps.HealthHandler.Ready)
	}
	api.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.ProgressionHandler != nil {
		progression := app.Group("/api/v1/progression", jwtMiddleware)
		deps.ProgressionHandler.Register(progression)
	}

	if deps.PathHandler != nil {
		paths := app.Group("/api/v1/paths", jwtMiddleware)
		// Template generation scans the whole catalog; keep it off the hot
		// path.
		paths.Use("/generate", middleware.RateLimit("path-generate", 2, time.Minute))
		deps.PathHandler.Register(paths)
	}

	if deps.ProfileHandler != nil {
		profile := app.Group("/api/v1/profile", jwtMiddleware)
		deps.ProfileHandler.Register(profile)
	}

	if deps.TelemetryHandler != nil {
		telemetry := app.Group("/api/v1/telemetry", jwtMiddleware)
		deps.TelemetryHandler.Register(telemetry)
	}
}
