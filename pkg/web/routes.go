package web

import (
	"github.com/gofiber/fiber/v3"
)

// RegisterRoutes mounts the REST API on app.
func RegisterRoutes(app fiber.Router, handlers *APIHandlers) {
	app.Get("/health", handlers.HealthCheck)
	app.Get("/actions", handlers.GetActionTypes)

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Put("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/publish", handlers.PublishWorkflow)
	w.Post("/:id/enable", handlers.EnableWorkflow)
	w.Post("/:id/disable", handlers.DisableWorkflow)
	w.Post("/:id/validate", handlers.ValidateWorkflow)
	w.Get("/:id/dot", handlers.GetWorkflowDOT)
	w.Get("/:id/runs", handlers.GetWorkflowRuns)

	app.Get("/runs/:correlationId", handlers.GetRun)

	conn := app.Group("/connections")
	conn.Get("/", handlers.GetConnections)
	conn.Post("/", handlers.CreateConnection)
	conn.Delete("/:id", handlers.DeleteConnection)

	app.Post("/telemetry", handlers.IngestTelemetry)
}
