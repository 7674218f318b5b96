package web

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/iotlinker/automation/pkg/dispatch"
	"github.com/iotlinker/automation/pkg/eventbus"
	"github.com/iotlinker/automation/pkg/events"
	"github.com/iotlinker/automation/pkg/graph"
	"github.com/iotlinker/automation/pkg/models"
	"github.com/iotlinker/automation/pkg/persistence"
	"github.com/iotlinker/automation/pkg/services"
)

const defaultRunsLimit = 50

// TelemetryRunner runs the engine inline when no event bus is configured.
type TelemetryRunner interface {
	HandleTelemetry(ctx context.Context, telemetry models.TelemetryEvent) ([]*models.RunRecord, error)
}

type APIHandlers struct {
	persistence persistence.Persistence
	workflows   *services.Workflows
	registry    *dispatch.Registry
	validator   *validator.Validate
	publisher   eventbus.EventPublisher
	runner      TelemetryRunner
	now         func() time.Time
}

type Option func(*APIHandlers)

// WithPublisher makes POST /telemetry publish to the event bus.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(h *APIHandlers) {
		h.publisher = publisher
	}
}

// WithRunner makes POST /telemetry execute runs inline. A publisher takes precedence.
func WithRunner(runner TelemetryRunner) Option {
	return func(h *APIHandlers) {
		h.runner = runner
	}
}

func NewAPIHandlers(
	persistence persistence.Persistence,
	workflows *services.Workflows,
	registry *dispatch.Registry,
	validator *validator.Validate,
	opts ...Option,
) *APIHandlers {
	h := &APIHandlers{
		persistence: persistence,
		workflows:   workflows,
		registry:    registry,
		validator:   validator,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status":  "unhealthy",
			"message": err.Error(),
		})
	}

	return c.JSON(fiber.Map{"status": "healthy"})
}

func (h *APIHandlers) GetActionTypes(c fiber.Ctx) error {
	return c.JSON(h.registry.Schemas())
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.workflows.List(c.Context(), c.Query("tenant_id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflows)
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")

	if version := c.Query("version"); version != "" {
		number, err := strconv.Atoi(version)
		if err != nil {
			return badRequest(c, "version must be an integer")
		}

		workflow, err := h.workflows.GetVersion(c.Context(), id, number)
		if err != nil {
			return handleServiceError(c, err)
		}

		return c.JSON(workflow)
	}

	workflow, err := h.workflows.Get(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON body: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.workflows.Create(c.Context(), &models.Workflow{
		ID:          req.ID,
		TenantID:    req.TenantID,
		Name:        req.Name,
		Description: req.Description,
		Nodes:       req.Nodes,
		Edges:       req.Edges,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	var req UpdateWorkflowRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON body: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.workflows.Update(c.Context(), c.Params("id"), services.UpdateRequest{
		Name:        req.Name,
		Description: req.Description,
		Version:     req.Version,
		Nodes:       req.Nodes,
		Edges:       req.Edges,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	if err := h.workflows.Delete(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) PublishWorkflow(c fiber.Ctx) error {
	return h.transition(c, h.workflows.Publish)
}

func (h *APIHandlers) EnableWorkflow(c fiber.Ctx) error {
	return h.transition(c, h.workflows.Enable)
}

func (h *APIHandlers) DisableWorkflow(c fiber.Ctx) error {
	return h.transition(c, h.workflows.Disable)
}

func (h *APIHandlers) transition(c fiber.Ctx, apply func(context.Context, string) (*models.Workflow, error)) error {
	workflow, err := apply(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) ValidateWorkflow(c fiber.Ctx) error {
	violations, err := h.workflows.Validate(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	if violations == nil {
		violations = []graph.Violation{}
	}

	return c.JSON(ValidationResponse{Valid: len(violations) == 0, Violations: violations})
}

func (h *APIHandlers) GetWorkflowDOT(c fiber.Ctx) error {
	workflow, err := h.workflows.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	dot, err := graph.ToDOT(workflow)
	if err != nil {
		return internalError(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/vnd.graphviz; charset=utf-8")

	return c.SendString(dot)
}

func (h *APIHandlers) GetWorkflowRuns(c fiber.Ctx) error {
	limit := defaultRunsLimit

	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return badRequest(c, "limit must be a positive integer")
		}

		limit = parsed
	}

	id := c.Params("id")
	if _, err := h.workflows.Get(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	runs, err := h.persistence.RunLedger().ListByWorkflow(c.Context(), id, limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(runs)
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	record, err := h.persistence.RunLedger().Lookup(c.Context(), c.Params("correlationId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(record)
}

func (h *APIHandlers) CreateConnection(c fiber.Ctx) error {
	var req CreateConnectionRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON body: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	now := h.now().UTC()
	connection := &models.Connection{
		ID:         uuid.NewString(),
		TenantID:   req.TenantID,
		Name:       req.Name,
		Provider:   req.Provider,
		WebhookURL: req.WebhookURL,
		ChannelID:  req.ChannelID,
		Headers:    req.Headers,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := h.persistence.ConnectionRepository().Save(c.Context(), connection); err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(connection)
}

func (h *APIHandlers) GetConnections(c fiber.Ctx) error {
	connections, err := h.persistence.ConnectionRepository().List(c.Context(), c.Query("tenant_id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(connections)
}

func (h *APIHandlers) DeleteConnection(c fiber.Ctx) error {
	if err := h.persistence.ConnectionRepository().Delete(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// IngestTelemetry accepts a reading or a device batch. With an event bus the readings
// are published and 202 is returned; otherwise runs execute inline and their records
// are returned.
func (h *APIHandlers) IngestTelemetry(c fiber.Ctx) error {
	var req TelemetryRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON body: "+err.Error())
	}

	readings, err := h.readings(req)
	if err != nil {
		return badRequest(c, err.Error())
	}

	response := TelemetryResponse{EventIDs: make([]string, 0, len(readings))}
	for _, reading := range readings {
		response.EventIDs = append(response.EventIDs, reading.EventID)
	}

	switch {
	case h.publisher != nil:
		for _, reading := range readings {
			event := events.NewTelemetryReceived(reading, h.now())
			if err := h.publisher.Publish(c.Context(), reading.DeviceID, event); err != nil {
				return internalError(c, err)
			}
		}

		return c.Status(fiber.StatusAccepted).JSON(response)

	case h.runner != nil:
		for _, reading := range readings {
			records, err := h.runner.HandleTelemetry(c.Context(), reading)
			if err != nil {
				return internalError(c, err)
			}

			response.Runs = append(response.Runs, records...)
		}

		return c.JSON(response)

	default:
		return internalError(c, errors.New("telemetry ingestion is not configured"))
	}
}

func (h *APIHandlers) readings(req TelemetryRequest) ([]models.TelemetryEvent, error) {
	now := h.now().UTC()

	if len(req.Data) > 0 {
		batch := models.TelemetryBatch{
			TenantID:     req.TenantID,
			DeviceID:     req.DeviceID,
			DeviceTypeID: req.DeviceTypeID,
			ChannelID:    req.ChannelID,
			Timestamp:    req.Timestamp,
			Data:         req.Data,
		}

		if err := h.validator.Struct(batch); err != nil {
			return nil, err
		}

		return batch.Events()
	}

	if err := h.validator.Struct(req.TelemetryEvent); err != nil {
		return nil, err
	}

	reading, err := req.TelemetryEvent.Normalize(now)
	if err != nil {
		return nil, err
	}

	return []models.TelemetryEvent{reading}, nil
}
