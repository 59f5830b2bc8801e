package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

// NewApp builds the fiber application with all routes registered. Shared by
// the API binary and the handler tests.
func NewApp(handlers *APIHandlers) *fiber.App {
	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Arion API")
	})

	e := app.Group("/executions")
	e.Post("/", handlers.StartExecution)
	e.Get("/", handlers.ListExecutions)
	e.Get("/:id", handlers.GetExecution)
	e.Post("/:id/cancel", handlers.CancelExecution)

	a := app.Group("/approvals")
	a.Get("/pending", handlers.GetPendingApprovals)
	a.Post("/:id/decision", handlers.DecideApproval)

	d := app.Group("/definitions")
	d.Get("/", handlers.ListDefinitions)
	d.Post("/", handlers.CreateDefinition)
	d.Get("/:id", handlers.GetDefinition)
	d.Patch("/:id", handlers.UpdateDefinition)
	d.Post("/:id/publish", handlers.PublishDefinition)
	d.Post("/groups/:groupId/create-draft", handlers.CreateDraftVersion)

	app.Post("/webhooks/:definitionId", handlers.Webhook)

	app.Get("/health", handlers.HealthCheck)

	return app
}
