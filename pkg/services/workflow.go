package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/iotlinker/automation/pkg/graph"
	"github.com/iotlinker/automation/pkg/models"
	"github.com/iotlinker/automation/pkg/persistence"
)

var (
	// ErrWorkflowNotFound is returned when a workflow is not found.
	ErrWorkflowNotFound = persistence.ErrWorkflowNotFound
)

// Workflows is the authoring service. Every structural edit produces a new version;
// publishing and enabling are gated on graph.Validate.
type Workflows struct {
	repository persistence.WorkflowRepository
	checks     []graph.NodeCheck
	validate   *validator.Validate
	now        func() time.Time
}

// NewWorkflows creates a workflow service. checks run on every node during validation,
// typically the dispatch registry schema check and the expression compiler.
func NewWorkflows(repository persistence.WorkflowRepository, checks ...graph.NodeCheck) *Workflows {
	return &Workflows{
		repository: repository,
		checks:     checks,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the latest version of a workflow.
func (w *Workflows) Get(ctx context.Context, id string) (*models.Workflow, error) {
	return w.repository.GetByID(ctx, id)
}

// GetVersion returns a specific version of a workflow.
func (w *Workflows) GetVersion(ctx context.Context, id string, version int) (*models.Workflow, error) {
	return w.repository.GetVersion(ctx, id, version)
}

// List returns the latest version of each workflow of tenantID.
func (w *Workflows) List(ctx context.Context, tenantID string) ([]*models.Workflow, error) {
	workflows, err := w.repository.List(ctx, strings.TrimSpace(tenantID))
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return workflows, nil
}

// Create stores version 1 of a new, disabled workflow. Drafts may be structurally
// incomplete; only the shape of the document is checked here.
func (w *Workflows) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	now := w.now()

	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}

	workflow.Version = 1
	workflow.Enabled = false
	workflow.PublishedAt = nil
	workflow.CreatedAt = now
	workflow.UpdatedAt = now
	normalize(workflow)

	if err := w.checkDocument("Create", workflow); err != nil {
		return nil, err
	}

	if err := w.repository.Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	return workflow, nil
}

// UpdateRequest replaces the editable parts of a workflow. A non-zero Version must match
// the latest stored version.
type UpdateRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Version     int            `json:"version"`
	Nodes       []*models.Node `json:"nodes"`
	Edges       []*models.Edge `json:"edges"`
}

// Update stores a new version with the edited graph. The new version is unpublished.
// An enabled workflow stays enabled only if the new graph validates; otherwise the
// edit is rejected so that the engine never picks up an invalid latest version.
func (w *Workflows) Update(ctx context.Context, id string, req UpdateRequest) (*models.Workflow, error) {
	existing, err := w.repository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Version != 0 && req.Version != existing.Version {
		return nil, &ServiceError{
			Op:      "Update",
			Code:    "VERSION_CONFLICT",
			Message: fmt.Sprintf("expected version %d, latest is %d", req.Version, existing.Version),
			Err:     ErrVersionConflict,
		}
	}

	updated := existing.Clone()
	updated.Version = existing.Version + 1
	updated.Nodes = req.Nodes
	updated.Edges = req.Edges
	updated.PublishedAt = nil
	updated.UpdatedAt = w.now()

	if req.Name != "" {
		updated.Name = req.Name
	}

	if req.Description != "" {
		updated.Description = req.Description
	}

	normalize(updated)

	if err := w.checkDocument("Update", updated); err != nil {
		return nil, err
	}

	if updated.Enabled {
		if violations := graph.Validate(updated, w.checks...); len(violations) > 0 {
			return nil, newInvalidWorkflowError("Update", violations)
		}
	}

	if err := w.repository.Save(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	return updated, nil
}

// Validate returns the publish-rule violations of the latest version.
func (w *Workflows) Validate(ctx context.Context, id string) ([]graph.Violation, error) {
	workflow, err := w.repository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return graph.Validate(workflow, w.checks...), nil
}

// Publish marks the latest version as published once it passes graph.Validate.
func (w *Workflows) Publish(ctx context.Context, id string) (*models.Workflow, error) {
	return w.transition(ctx, "Publish", id, true, func(workflow *models.Workflow, now time.Time) {
		workflow.PublishedAt = &now
	})
}

// Enable makes the latest version eligible for triggering. It is refused unless the
// version validates.
func (w *Workflows) Enable(ctx context.Context, id string) (*models.Workflow, error) {
	return w.transition(ctx, "Enable", id, true, func(workflow *models.Workflow, _ time.Time) {
		workflow.Enabled = true
	})
}

func (w *Workflows) Disable(ctx context.Context, id string) (*models.Workflow, error) {
	return w.transition(ctx, "Disable", id, false, func(workflow *models.Workflow, _ time.Time) {
		workflow.Enabled = false
	})
}

// Delete removes a workflow and all its versions.
func (w *Workflows) Delete(ctx context.Context, id string) error {
	return w.repository.Delete(ctx, id)
}

// transition rewrites the latest version in place; it does not create a new version.
func (w *Workflows) transition(
	ctx context.Context,
	op, id string,
	mustValidate bool,
	apply func(workflow *models.Workflow, now time.Time),
) (*models.Workflow, error) {
	workflow, err := w.repository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if mustValidate {
		if violations := graph.Validate(workflow, w.checks...); len(violations) > 0 {
			return nil, newInvalidWorkflowError(op, violations)
		}
	}

	now := w.now()
	apply(workflow, now)
	workflow.UpdatedAt = now

	if err := w.repository.Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to %s workflow: %w", strings.ToLower(op), err)
	}

	return workflow, nil
}

func (w *Workflows) checkDocument(op string, workflow *models.Workflow) error {
	if strings.TrimSpace(workflow.TenantID) == "" {
		return NewValidationError(op, "TENANT_REQUIRED", "tenant_id is required", ErrTenantRequired)
	}

	if strings.TrimSpace(workflow.Name) == "" {
		return NewValidationError(op, "NAME_REQUIRED", "name is required", ErrWorkflowNameRequired)
	}

	if err := w.validate.Struct(workflow); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			fields := make([]string, 0, len(validationErrors))
			for _, fieldErr := range validationErrors {
				fields = append(fields, fmt.Sprintf("%s failed on %s", fieldErr.Namespace(), fieldErr.Tag()))
			}

			return NewValidationError(op, "INVALID_REQUEST", strings.Join(fields, "; "), ErrInvalidRequest)
		}

		return NewValidationError(op, "INVALID_REQUEST", err.Error(), ErrInvalidRequest)
	}

	return nil
}

// normalize fills node categories from their type prefix.
func normalize(workflow *models.Workflow) {
	for _, node := range workflow.Nodes {
		if node != nil && node.Category == "" {
			node.Category = node.TypeCategory()
		}
	}
}
