// Package main provides the automation REST API server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/iotlinker/automation/pkg/condition"
	"github.com/iotlinker/automation/pkg/dispatch"
	"github.com/iotlinker/automation/pkg/persistence"
	"github.com/iotlinker/automation/pkg/services"
	"github.com/iotlinker/automation/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *dispatch.Registry
	validate    *validator.Validate
	options     []web.Option
}

// NewAPI builds the server. options select how POST /telemetry is served.
func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *dispatch.Registry,
	options ...web.Option,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		registry:    registry,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		options:     options,
	}
}

func (a *API) App() *fiber.App {
	workflows := services.NewWorkflows(a.persistence.WorkflowRepository(), a.registry.ValidateConfig, condition.Check)
	handlers := web.NewAPIHandlers(a.persistence, workflows, a.registry, a.validate, a.options...)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Automation API")
	})

	web.RegisterRoutes(app, handlers)

	return app
}

func (a *API) Start(port int) error {
	return a.App().Listen(":" + strconv.Itoa(port))
}
