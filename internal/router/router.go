package router

import (
	"github.com/anonto42/nano-midea/fanout/internal/events"
	"github.com/anonto42/nano-midea/fanout/internal/handlers"
	"github.com/anonto42/nano-midea/fanout/internal/repositories"
	"github.com/anonto42/nano-midea/fanout/internal/transport"
	"github.com/felixgeelhaar/bolt/v3"
	"github.com/labstack/echo/v4"
)

// Dependencies are the collaborators the routes are built from.
type Dependencies struct {
	Engine        *events.Engine
	Subscriptions repositories.SubscriptionRepository
	Events        repositories.EventRepository
	Notifications repositories.NotificationRepository
	Hub           *transport.Hub
	// Auth authenticates every /api/v1 route.
	Auth   echo.MiddlewareFunc
	Logger *bolt.Logger
}

// SetupRoutes configures all application routes and injects dependencies
func SetupRoutes(e *echo.Echo, deps Dependencies) {
	// Health check - always accessible
	e.GET("/health", handlers.HealthCheck(deps.Hub))

	api := e.Group("/api/v1")
	api.Use(deps.Auth)

	handlers.NewSubscriptionHandler(deps.Engine, deps.Subscriptions).RegisterSubscriptionRoutes(api)
	handlers.NewPublishHandler(deps.Engine, deps.Events).RegisterPublishRoutes(api)
	handlers.NewNotificationHandler(deps.Engine, deps.Notifications, deps.Events).RegisterNotificationRoutes(api)
	handlers.NewSocketHandler(deps.Hub).RegisterSocketRoutes(api)

	deps.Logger.Info().Int("routes", len(e.Routes())).Msg("All routes configured.")
}
