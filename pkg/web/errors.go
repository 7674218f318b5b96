package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/iotlinker/automation/pkg/graph"
	"github.com/iotlinker/automation/pkg/persistence"
	"github.com/iotlinker/automation/pkg/services"
	"github.com/moogar0880/problems"
)

// WorkflowViolations is the extension member of a workflow_invalid problem.
type WorkflowViolations struct {
	Violations []graph.Violation `json:"violations"`
}

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, problemType, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps service and persistence errors to problem documents.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsValidationError(err), persistence.IsInvalidID(err):
		return badRequest(c, err.Error())

	case services.IsWorkflowInvalid(err):
		problem := problems.NewStatusProblem(422).
			WithInstance(c.Path()).
			WithType("workflow_invalid").
			WithDetail(err.Error())

		return c.Status(fiber.StatusUnprocessableEntity).
			JSON(problems.Extend(problem, WorkflowViolations{Violations: services.Violations(err)}))

	case services.IsConflictError(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("conflict").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case persistence.IsWorkflowNotFound(err):
		return notFound(c, "workflow_not_found", "workflow not found")

	case persistence.IsRunRecordNotFound(err):
		return notFound(c, "run_not_found", "run record not found")

	case persistence.IsConnectionNotFound(err):
		return notFound(c, "connection_not_found", "connection not found")

	default:
		return internalError(c, err)
	}
}
