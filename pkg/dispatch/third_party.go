package dispatch

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"

	"github.com/iotlinker/automation/pkg/models"
	"github.com/iotlinker/automation/pkg/template"
)

// ErrConnectionMismatch is returned when a node references another tenant's connection.
var ErrConnectionMismatch = errors.New("connection belongs to another tenant")

// ConnectionSource resolves stored third-party connections.
type ConnectionSource interface {
	GetByID(ctx context.Context, id string) (*models.Connection, error)
}

// ThirdPartyWorkflowAdapter handles action:call_third_party_workflow. The target is
// either an inline url or a stored connection (e.g. an n8n webhook).
type ThirdPartyWorkflowAdapter struct {
	client      *http.Client
	connections ConnectionSource
}

func NewThirdPartyWorkflowAdapter(client *http.Client, connections ConnectionSource) *ThirdPartyWorkflowAdapter {
	if client == nil {
		client = http.DefaultClient
	}

	return &ThirdPartyWorkflowAdapter{client: client, connections: connections}
}

func (a *ThirdPartyWorkflowAdapter) Type() string {
	return models.NodeTypeActionCallThirdParty
}

func (a *ThirdPartyWorkflowAdapter) Schema() map[string]any {
	return map[string]any{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type":    "object",
		"anyOf": []any{
			map[string]any{"required": []any{"url"}},
			map[string]any{"required": []any{"connection_id"}},
		},
		"properties": map[string]any{
			"url":           map[string]any{"type": "string", "minLength": 1},
			"connection_id": map[string]any{"type": "string", "minLength": 1},
			"payload": map[string]any{
				"type":        "object",
				"description": "Static payload; string values may contain templates",
			},
		},
	}
}

func (a *ThirdPartyWorkflowAdapter) Dispatch(ctx context.Context, node *models.Node, ectx *models.ExecutionContext) error {
	url, headers, err := a.target(ctx, node, ectx)
	if err != nil {
		return err
	}

	var payload map[string]any

	if static := node.ConfigMap("payload"); static != nil {
		payload, err = template.RenderPayload(static, ectx)
		if err != nil {
			return fmt.Errorf("failed to render payload: %w", err)
		}
	}

	return post(ctx, a.client, url, headers, newPayload(ectx, payload))
}

func (a *ThirdPartyWorkflowAdapter) target(
	ctx context.Context,
	node *models.Node,
	ectx *models.ExecutionContext,
) (string, map[string]string, error) {
	connectionID := node.ConfigString("connection_id")
	if connectionID == "" {
		url, err := template.RenderString(node.ConfigString("url"), ectx)
		if err != nil {
			return "", nil, fmt.Errorf("failed to render url: %w", err)
		}

		return url, map[string]string{}, nil
	}

	if a.connections == nil {
		return "", nil, fmt.Errorf("connection %s: no connection store configured", connectionID)
	}

	connection, err := a.connections.GetByID(ctx, connectionID)
	if err != nil {
		return "", nil, fmt.Errorf("connection %s: %w", connectionID, err)
	}

	if connection.TenantID != ectx.TenantID {
		return "", nil, fmt.Errorf("connection %s: %w", connectionID, ErrConnectionMismatch)
	}

	return connection.WebhookURL, maps.Clone(connection.Headers), nil
}
