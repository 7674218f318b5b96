// Package persistence provides the storage abstraction for workflows, run records and
// third-party connections.
package persistence

import (
	"context"

	"github.com/iotlinker/automation/pkg/models"
)

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	RunLedger() RunLedger
	ConnectionRepository() ConnectionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores every version of a workflow keyed by (tenant, id, version).
// Reads by id return the latest version.
type WorkflowRepository interface {
	Save(ctx context.Context, workflow *models.Workflow) error
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	GetVersion(ctx context.Context, id string, version int) (*models.Workflow, error)
	// List returns the latest version of each workflow of a tenant; an empty tenant lists all.
	List(ctx context.Context, tenantID string) ([]*models.Workflow, error)
	// ListEnabled returns the latest version of every enabled workflow.
	ListEnabled(ctx context.Context) ([]*models.Workflow, error)
	Delete(ctx context.Context, id string) error
}

// RunLedger is the durable record of run outcomes keyed by correlation id.
// Record is an upsert; concurrent writers of the same key resolve last-writer-wins.
type RunLedger interface {
	Lookup(ctx context.Context, correlationID string) (*models.RunRecord, error)
	Record(ctx context.Context, record *models.RunRecord) error
	// ListByWorkflow returns the records of a workflow, newest first. limit <= 0 means all.
	ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.RunRecord, error)
}

type ConnectionRepository interface {
	Save(ctx context.Context, connection *models.Connection) error
	GetByID(ctx context.Context, id string) (*models.Connection, error)
	List(ctx context.Context, tenantID string) ([]*models.Connection, error)
	Delete(ctx context.Context, id string) error
}
