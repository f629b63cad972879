package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/nodeledger/nodeledger/internal/config"
	"github.com/nodeledger/nodeledger/internal/handlers"
	"github.com/nodeledger/nodeledger/internal/logging"
	"github.com/nodeledger/nodeledger/internal/middleware"
	"github.com/nodeledger/nodeledger/internal/objects"
)

// Setup configures all routes and middlewares
func Setup(app *fiber.App, logger *logging.Logger, nodes *objects.Nodes, services handlers.ServiceDirectory, cfg config.Config) *handlers.Handler {
	h := handlers.New(logger, nodes, services)

	// Global middlewares
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-API-Key,X-Request-ID",
	}))
	app.Use(logging.FiberMiddleware(logger, "/health"))

	// Health check (no auth required)
	app.Get("/health", h.Health)

	v1 := app.Group("/v1", middleware.APIKeyAuth(logger, cfg.Auth))

	// Compute nodes
	v1.Get("/compute-nodes", h.ListComputeNodes)
	v1.Post("/compute-nodes", h.CreateComputeNode)
	v1.Get("/compute-nodes/:id", h.GetComputeNode)
	v1.Patch("/compute-nodes/:id", h.UpdateComputeNodeResources)
	v1.Delete("/compute-nodes/:id", h.DeleteComputeNode)

	// Services
	v1.Get("/services", h.ListServices)
	v1.Get("/services/:service_id", h.GetService)
	v1.Get("/services/:service_id/compute-nodes", h.GetServiceComputeNodes)

	// Host resolution
	v1.Get("/hosts/:host/compute-nodes", h.GetHostComputeNodes)
	v1.Get("/hosts/:host/compute-nodes/first", h.GetFirstHostComputeNode)
	v1.Get("/hosts/:host/nodes/:nodename", h.GetHostNode)

	// 404 handler
	app.Use(h.NotFound)

	return h
}

// New creates a new Fiber app with configuration
func New(logger *logging.Logger, nodes *objects.Nodes, services handlers.ServiceDirectory, cfg config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "nodeledger",
		DisableStartupMessage: true,
		ErrorHandler:          middleware.ErrorHandler(logger),
	})

	Setup(app, logger, nodes, services, cfg)

	return app
}
