// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/google/uuid"
	"github.com/iotlinker/automation/pkg/models"
)

// CreateTestNode creates a webhook action node with default values that can be overridden.
func CreateTestNode(overrides ...func(*models.Node)) *models.Node {
	node := &models.Node{
		ID:        uuid.New().String(),
		Type:      models.NodeTypeActionSendWebhook,
		Category:  models.CategoryTypeAction,
		Name:      "Test Node",
		Config:    map[string]any{"url": "http://localhost/hook"},
		PositionX: 100,
		PositionY: 200,
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithID sets the node id.
func WithID(id string) func(*models.Node) {
	return func(n *models.Node) {
		n.ID = id
	}
}

// WithConfig sets the node configuration.
func WithConfig(config map[string]any) func(*models.Node) {
	return func(n *models.Node) {
		n.Config = config
	}
}

// WithName sets the node name.
func WithName(name string) func(*models.Node) {
	return func(n *models.Node) {
		n.Name = name
	}
}

// WithType sets the node type and derives the category from its prefix.
func WithType(nodeType string) func(*models.Node) {
	return func(n *models.Node) {
		n.Type = nodeType
		n.Category = n.TypeCategory()
	}
}

// DeviceTrigger builds a trigger:device_data node filtering on device and metric.
func DeviceTrigger(id, deviceID, metric string) *models.Node {
	return CreateTestNode(
		WithID(id),
		WithType(models.NodeTypeTriggerDeviceData),
		WithName("Device "+deviceID),
		WithConfig(map[string]any{"device_id": deviceID, "metric_name": metric}),
	)
}

// ScheduleTrigger builds a trigger:schedule node.
func ScheduleTrigger(id, cron string) *models.Node {
	return CreateTestNode(
		WithID(id),
		WithType(models.NodeTypeTriggerSchedule),
		WithName("Schedule"),
		WithConfig(map[string]any{"cron": cron}),
	)
}

// Conditional builds a single-threshold logic node.
func Conditional(id, field string, operator models.Operator, threshold float64) *models.Node {
	return CreateTestNode(
		WithID(id),
		WithType(models.NodeTypeLogicConditional),
		WithName(string(operator)),
		WithConfig(map[string]any{"field": field, "operator": string(operator), "threshold": threshold}),
	)
}

// Between builds an inclusive range logic node.
func Between(id, field string, low, high float64) *models.Node {
	return CreateTestNode(
		WithID(id),
		WithType(models.NodeTypeLogicConditional),
		WithName("between"),
		WithConfig(map[string]any{"field": field, "operator": string(models.OperatorBetween), "low": low, "high": high}),
	)
}

// Webhook builds an action:send_webhook node posting to url.
func Webhook(id, url string) *models.Node {
	return CreateTestNode(
		WithID(id),
		WithName("Webhook "+id),
		WithConfig(map[string]any{"url": url}),
	)
}

// Email builds an action:send_email node.
func Email(id string, to ...string) *models.Node {
	recipients := make([]any, 0, len(to))
	for _, r := range to {
		recipients = append(recipients, r)
	}

	return CreateTestNode(
		WithID(id),
		WithType(models.NodeTypeActionSendEmail),
		WithName("Email "+id),
		WithConfig(map[string]any{"to": recipients, "subject": "Alert", "body": "value is {{ .event.value }}"}),
	)
}

// SMS builds an SMS action with a templated message.
func SMS(id string, to ...string) *models.Node {
	recipients := make([]any, 0, len(to))
	for _, r := range to {
		recipients = append(recipients, r)
	}

	return CreateTestNode(
		WithID(id),
		WithType(models.NodeTypeActionSendSMS),
		WithName("SMS "+id),
		WithConfig(map[string]any{"to": recipients, "message": "{{ .event.device_id }} at {{ .event.value }}"}),
	)
}

// Edge links source to target. Label may be empty.
func Edge(source, target, label string) *models.Edge {
	id := source + "->" + target
	if label != "" {
		id += ":" + label
	}

	return &models.Edge{ID: id, Source: source, Target: target, Label: label}
}

// CreateTestWorkflow creates an enabled, empty workflow that can be overridden.
func CreateTestWorkflow(overrides ...func(*models.Workflow)) *models.Workflow {
	now := time.Now().UTC()
	workflow := &models.Workflow{
		ID:          uuid.New().String(),
		TenantID:    "tenant-1",
		Name:        "Test Workflow",
		Description: "Workflow used in tests",
		Version:     1,
		Enabled:     true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	for _, override := range overrides {
		override(workflow)
	}

	return workflow
}

// WithWorkflowID sets the workflow id.
func WithWorkflowID(id string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.ID = id
	}
}

// WithNodes appends nodes.
func WithNodes(nodes ...*models.Node) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Nodes = append(w.Nodes, nodes...)
	}
}

// WithEdges appends edges.
func WithEdges(edges ...*models.Edge) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Edges = append(w.Edges, edges...)
	}
}

// WithEnabled sets the workflow enabled flag.
func WithEnabled(enabled bool) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Enabled = enabled
	}
}

// ThresholdWorkflow is the canonical alert: device metric > threshold sends a webhook
// on the true branch and an email on the false branch.
func ThresholdWorkflow(deviceID, metric string, threshold float64, webhookURL string) *models.Workflow {
	return CreateTestWorkflow(
		WithNodes(
			DeviceTrigger("trigger", deviceID, metric),
			Conditional("logic", metric, models.OperatorGreaterThan, threshold),
			Webhook("alert", webhookURL),
			Email("report", "ops@example.com"),
		),
		WithEdges(
			Edge("trigger", "logic", ""),
			Edge("logic", "alert", models.OutputPortTrue),
			Edge("logic", "report", models.OutputPortFalse),
		),
	)
}

// TelemetryEvent builds a telemetry event with a fixed id and timestamp.
func TelemetryEvent(eventID, deviceID, metric string, value float64) models.TelemetryEvent {
	return models.TelemetryEvent{
		EventID:    eventID,
		TenantID:   "tenant-1",
		DeviceID:   deviceID,
		MetricName: metric,
		Value:      models.Float(value),
		Unit:       "C",
		Timestamp:  time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}
