// Package web provides HTTP request and response types for the automation API.
package web

import (
	"github.com/iotlinker/automation/pkg/graph"
	"github.com/iotlinker/automation/pkg/models"
)

// CreateWorkflowRequest represents the request body for creating a new workflow.
type CreateWorkflowRequest struct {
	ID          string         `json:"id,omitempty"`
	TenantID    string         `json:"tenant_id"              validate:"required"`
	Name        string         `json:"name"                   validate:"required,min=3"`
	Description string         `json:"description"`
	Nodes       []*models.Node `json:"nodes"                  validate:"dive"`
	Edges       []*models.Edge `json:"edges"                  validate:"dive"`
}

// UpdateWorkflowRequest replaces the graph of a workflow. Version, when set, must be the
// latest stored version.
type UpdateWorkflowRequest struct {
	Name        string         `json:"name,omitempty"         validate:"omitempty,min=3"`
	Description string         `json:"description,omitempty"`
	Version     int            `json:"version,omitempty"      validate:"min=0"`
	Nodes       []*models.Node `json:"nodes"                  validate:"required,dive"`
	Edges       []*models.Edge `json:"edges"                  validate:"dive"`
}

// ValidationResponse is returned by the validate endpoint.
type ValidationResponse struct {
	Valid      bool              `json:"valid"`
	Violations []graph.Violation `json:"violations"`
}

// CreateConnectionRequest represents the request body for storing a connection.
type CreateConnectionRequest struct {
	TenantID   string            `json:"tenant_id"            validate:"required"`
	Name       string            `json:"name"                 validate:"required"`
	Provider   string            `json:"provider"             validate:"required,oneof=n8n webhook"`
	WebhookURL string            `json:"webhook_url"          validate:"required,url"`
	ChannelID  string            `json:"channel_id,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// TelemetryRequest accepts either a single reading or a device batch (when data is set).
type TelemetryRequest struct {
	models.TelemetryEvent

	Data []models.Metric `json:"data,omitempty" validate:"omitempty,dive"`
}

// TelemetryResponse lists the accepted event ids and, when runs executed inline, their
// records.
type TelemetryResponse struct {
	EventIDs []string            `json:"event_ids"`
	Runs     []*models.RunRecord `json:"runs,omitempty"`
}
