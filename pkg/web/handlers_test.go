package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/iotlinker/automation/pkg/condition"
	"github.com/iotlinker/automation/pkg/dispatch"
	"github.com/iotlinker/automation/pkg/events"
	"github.com/iotlinker/automation/pkg/graph"
	"github.com/iotlinker/automation/pkg/mocks"
	"github.com/iotlinker/automation/pkg/models"
	"github.com/iotlinker/automation/pkg/persistence/memory"
	"github.com/iotlinker/automation/pkg/services"
	"github.com/iotlinker/automation/pkg/testutil"
	"github.com/iotlinker/automation/pkg/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	app         *fiber.App
	persistence *memory.Persistence
}

func setupTestApp(t *testing.T, opts ...web.Option) *testAPI {
	t.Helper()

	persistence := memory.NewPersistence()
	registry := dispatch.NewRegistry(slog.Default())
	registry.Register(dispatch.NewWebhookAdapter(nil))
	registry.Register(dispatch.NewEmailAdapter(dispatch.NewLogNotifier(slog.Default())))

	workflows := services.NewWorkflows(persistence.WorkflowRepository(), registry.ValidateConfig, condition.Check)
	handlers := web.NewAPIHandlers(persistence, workflows, registry, validator.New(validator.WithRequiredStructEnabled()), opts...)

	app := fiber.New()
	web.RegisterRoutes(app, handlers)

	return &testAPI{app: app, persistence: persistence}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader

	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)

		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, data
}

func (a *testAPI) createWorkflow(t *testing.T, wf *models.Workflow) *models.Workflow {
	t.Helper()

	status, body := a.do(t, http.MethodPost, "/workflows", web.CreateWorkflowRequest{
		TenantID: wf.TenantID,
		Name:     wf.Name,
		Nodes:    wf.Nodes,
		Edges:    wf.Edges,
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	var created models.Workflow
	require.NoError(t, json.Unmarshal(body, &created))

	return &created
}

func TestAPIHandlers_CreateWorkflow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
		expectedError  string
	}{
		{
			name: "successful creation",
			requestBody: web.CreateWorkflowRequest{
				TenantID: "tenant-1",
				Name:     "Cold room",
				Nodes:    []*models.Node{testutil.DeviceTrigger("t", "D1", "temp")},
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "validation error - missing tenant",
			requestBody:    web.CreateWorkflowRequest{Name: "Cold room"},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "TenantID",
		},
		{
			name:           "validation error - name too short",
			requestBody:    web.CreateWorkflowRequest{TenantID: "tenant-1", Name: "Co"},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Name",
		},
		{
			name:           "invalid JSON",
			requestBody:    "invalid-json",
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Invalid JSON body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			api := setupTestApp(t)

			status, body := api.do(t, http.MethodPost, "/workflows", tt.requestBody)
			assert.Equal(t, tt.expectedStatus, status)

			if tt.expectedError != "" {
				assert.Contains(t, string(body), tt.expectedError)

				return
			}

			var workflow models.Workflow
			require.NoError(t, json.Unmarshal(body, &workflow))
			assert.NotEmpty(t, workflow.ID)
			assert.Equal(t, 1, workflow.Version)
			assert.False(t, workflow.Enabled)
		})
	}
}

func TestAPIHandlers_WorkflowLifecycle(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)
	created := api.createWorkflow(t, testutil.ThresholdWorkflow("D1", "temp", 30, "https://example.com/hook"))

	status, body := api.do(t, http.MethodPost, "/workflows/"+created.ID+"/validate", nil)
	require.Equal(t, http.StatusOK, status)

	var validation web.ValidationResponse
	require.NoError(t, json.Unmarshal(body, &validation))
	assert.True(t, validation.Valid)
	assert.Empty(t, validation.Violations)

	status, body = api.do(t, http.MethodPost, "/workflows/"+created.ID+"/publish", nil)
	require.Equal(t, http.StatusOK, status, string(body))

	var published models.Workflow
	require.NoError(t, json.Unmarshal(body, &published))
	assert.NotNil(t, published.PublishedAt)

	status, _ = api.do(t, http.MethodPost, "/workflows/"+created.ID+"/enable", nil)
	require.Equal(t, http.StatusOK, status)

	status, body = api.do(t, http.MethodPut, "/workflows/"+created.ID, web.UpdateWorkflowRequest{
		Version: 1,
		Nodes:   created.Nodes,
		Edges:   created.Edges[:2],
	})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, string(body), "logic_branches")

	status, body = api.do(t, http.MethodPut, "/workflows/"+created.ID, web.UpdateWorkflowRequest{
		Name:    "Renamed",
		Version: 1,
		Nodes:   created.Nodes,
		Edges:   created.Edges,
	})
	require.Equal(t, http.StatusOK, status, string(body))

	var updated models.Workflow
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, 2, updated.Version)
	assert.True(t, updated.Enabled)

	status, _ = api.do(t, http.MethodPut, "/workflows/"+created.ID, web.UpdateWorkflowRequest{
		Version: 1,
		Nodes:   created.Nodes,
		Edges:   created.Edges,
	})
	assert.Equal(t, http.StatusConflict, status)

	status, body = api.do(t, http.MethodGet, "/workflows/"+created.ID+"?version=1", nil)
	require.Equal(t, http.StatusOK, status)

	var first models.Workflow
	require.NoError(t, json.Unmarshal(body, &first))
	assert.Equal(t, "Test Workflow", first.Name)

	status, _ = api.do(t, http.MethodPost, "/workflows/"+created.ID+"/disable", nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = api.do(t, http.MethodDelete, "/workflows/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, body = api.do(t, http.MethodGet, "/workflows/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), "workflow_not_found")
}

func TestAPIHandlers_PublishInvalidWorkflow(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)
	created := api.createWorkflow(t, testutil.CreateTestWorkflow(
		testutil.WithNodes(testutil.DeviceTrigger("t", "D1", "temp"), testutil.Webhook("hook", "https://example.com")),
	))

	status, body := api.do(t, http.MethodPost, "/workflows/"+created.ID+"/publish", nil)
	require.Equal(t, http.StatusUnprocessableEntity, status)

	var problem struct {
		Type       string                 `json:"type"`
		Status     int                    `json:"status"`
		Instance   string                 `json:"instance"`
		Extensions web.WorkflowViolations `json:"extensions"`
	}
	require.NoError(t, json.Unmarshal(body, &problem))
	assert.Equal(t, "workflow_invalid", problem.Type)
	assert.Equal(t, http.StatusUnprocessableEntity, problem.Status)
	assert.Equal(t, "/workflows/"+created.ID+"/publish", problem.Instance)

	violations := problem.Extensions.Violations
	require.Len(t, violations, 2)
	assert.Equal(t, graph.ViolationTriggerNoOutbound, violations[0].Code)
	assert.Equal(t, graph.ViolationMissingInbound, violations[1].Code)
	assert.Equal(t, "hook", violations[1].NodeID)
}

func TestAPIHandlers_ListWorkflowsByTenant(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)

	for _, tenant := range []string{"tenant-a", "tenant-b"} {
		wf := testutil.CreateTestWorkflow()
		wf.TenantID = tenant
		api.createWorkflow(t, wf)
	}

	status, body := api.do(t, http.MethodGet, "/workflows?tenant_id=tenant-a", nil)
	require.Equal(t, http.StatusOK, status)

	var workflows []models.Workflow
	require.NoError(t, json.Unmarshal(body, &workflows))
	require.Len(t, workflows, 1)
	assert.Equal(t, "tenant-a", workflows[0].TenantID)
}

func TestAPIHandlers_GetWorkflowDOT(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)
	created := api.createWorkflow(t, testutil.ThresholdWorkflow("D1", "temp", 30, "https://example.com/hook"))

	status, body := api.do(t, http.MethodGet, "/workflows/"+created.ID+"/dot", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "digraph")
	assert.Contains(t, string(body), "logic")
}

func TestAPIHandlers_Runs(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)
	created := api.createWorkflow(t, testutil.ThresholdWorkflow("D1", "temp", 30, "https://example.com/hook"))

	record := &models.RunRecord{
		CorrelationID: "cid-1",
		WorkflowID:    created.ID,
		State:         models.RunStateCompleted,
		Outcome:       models.RunOutcomeSucceeded,
		Actions:       []models.DispatchOutcome{},
	}
	require.NoError(t, api.persistence.RunLedger().Record(context.Background(), record))

	status, body := api.do(t, http.MethodGet, "/runs/cid-1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"outcome":"succeeded"`)

	status, body = api.do(t, http.MethodGet, "/workflows/"+created.ID+"/runs?limit=10", nil)
	require.Equal(t, http.StatusOK, status)

	var runs []models.RunRecord
	require.NoError(t, json.Unmarshal(body, &runs))
	require.Len(t, runs, 1)

	status, _ = api.do(t, http.MethodGet, "/runs/unknown", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = api.do(t, http.MethodGet, "/workflows/"+created.ID+"/runs?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_Connections(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)

	status, body := api.do(t, http.MethodPost, "/connections", web.CreateConnectionRequest{
		TenantID:   "tenant-1",
		Name:       "n8n prod",
		Provider:   models.ConnectionProviderN8N,
		WebhookURL: "https://n8n.example.com/webhook/abc",
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	var connection models.Connection
	require.NoError(t, json.Unmarshal(body, &connection))
	assert.NotEmpty(t, connection.ID)

	status, body = api.do(t, http.MethodGet, "/connections?tenant_id=tenant-1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), connection.ID)

	status, _ = api.do(t, http.MethodPost, "/connections", web.CreateConnectionRequest{
		TenantID: "tenant-1", Name: "bad", Provider: "zapier", WebhookURL: "https://x.example.com",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = api.do(t, http.MethodDelete, "/connections/"+connection.ID, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = api.do(t, http.MethodDelete, "/connections/"+connection.ID, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

type fakeRunner struct {
	mu       sync.Mutex
	received []models.TelemetryEvent
}

func (r *fakeRunner) HandleTelemetry(_ context.Context, telemetry models.TelemetryEvent) ([]*models.RunRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.received = append(r.received, telemetry)

	return []*models.RunRecord{{CorrelationID: "cid-" + telemetry.MetricName, EventID: telemetry.EventID}}, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	keys   []string
	events []events.Event
}

func (p *fakePublisher) Publish(_ context.Context, key string, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.keys = append(p.keys, key)
	p.events = append(p.events, event)

	return nil
}

func TestAPIHandlers_IngestTelemetryInline(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	api := setupTestApp(t, web.WithRunner(runner))

	status, body := api.do(t, http.MethodPost, "/telemetry", map[string]any{
		"event_id":    "evt-1",
		"device_id":   "D1",
		"metric_name": "temp",
		"value":       35,
	})
	require.Equal(t, http.StatusOK, status, string(body))

	var response web.TelemetryResponse
	require.NoError(t, json.Unmarshal(body, &response))
	assert.Equal(t, []string{"evt-1"}, response.EventIDs)
	require.Len(t, response.Runs, 1)
	assert.Equal(t, "cid-temp", response.Runs[0].CorrelationID)

	require.Len(t, runner.received, 1)
	require.NotNil(t, runner.received[0].Value)
	assert.InDelta(t, 35.0, *runner.received[0].Value, 0)
	assert.False(t, runner.received[0].Timestamp.IsZero())
}

func TestAPIHandlers_IngestTelemetryBatchPublishes(t *testing.T) {
	t.Parallel()

	publisher := &fakePublisher{}
	api := setupTestApp(t, web.WithPublisher(publisher))

	batch := map[string]any{
		"device_id": "D1",
		"timestamp": "2026-05-01T12:00:00Z",
		"data": []map[string]any{
			{"metric_name": "temp", "value": 21.5, "unit": "C"},
			{"metric_name": "humidity", "value": 40},
		},
	}

	status, body := api.do(t, http.MethodPost, "/telemetry", batch)
	require.Equal(t, http.StatusAccepted, status, string(body))

	var response web.TelemetryResponse
	require.NoError(t, json.Unmarshal(body, &response))
	require.Len(t, response.EventIDs, 2)
	assert.Empty(t, response.Runs)

	require.Len(t, publisher.events, 2)
	assert.Equal(t, []string{"D1", "D1"}, publisher.keys)

	received, ok := publisher.events[1].(events.TelemetryReceived)
	require.True(t, ok)
	assert.Equal(t, "humidity", received.Telemetry.MetricName)
	assert.Equal(t, response.EventIDs[1], received.Telemetry.EventID)

	status, body2 := api.do(t, http.MethodPost, "/telemetry", batch)
	require.Equal(t, http.StatusAccepted, status)

	var again web.TelemetryResponse
	require.NoError(t, json.Unmarshal(body2, &again))
	assert.Equal(t, response.EventIDs, again.EventIDs, "redelivered batch derives the same ids")
}

func TestAPIHandlers_IngestTelemetryPublishFailure(t *testing.T) {
	t.Parallel()

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "D1", mock.AnythingOfType("events.TelemetryReceived")).Return(errors.New("broker unavailable"))

	api := setupTestApp(t, web.WithPublisher(bus))

	status, body := api.do(t, http.MethodPost, "/telemetry", map[string]any{
		"device_id":   "D1",
		"metric_name": "temp",
		"value":       35,
		"timestamp":   "2026-05-01T12:00:00Z",
	})
	assert.Equal(t, http.StatusInternalServerError, status, string(body))
	assert.Contains(t, string(body), "broker unavailable")
	bus.AssertExpectations(t)
	bus.AssertNumberOfCalls(t, "Publish", 1)
}

func TestAPIHandlers_IngestTelemetryRejectsInvalid(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	api := setupTestApp(t, web.WithRunner(runner))

	status, _ := api.do(t, http.MethodPost, "/telemetry", map[string]any{"metric_name": "temp", "value": 1})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = api.do(t, http.MethodPost, "/telemetry", map[string]any{
		"event_id": "e1", "device_id": "D1", "metric_name": "temp",
	})
	assert.Equal(t, http.StatusBadRequest, status, "a reading without a value must not run as 0")

	status, _ = api.do(t, http.MethodPost, "/telemetry", map[string]any{
		"device_id": "D1", "metric_name": "temp", "value": 12,
	})
	assert.Equal(t, http.StatusBadRequest, status, "no event_id and no timestamp")

	status, _ = api.do(t, http.MethodPost, "/telemetry", map[string]any{
		"device_id": "D1",
		"data":      []map[string]any{{"metric_name": "temp", "value": 1}},
	})
	assert.Equal(t, http.StatusBadRequest, status, "batch without timestamp")

	status, _ = api.do(t, http.MethodPost, "/telemetry", map[string]any{
		"device_id": "D1",
		"data":      []map[string]any{{"value": 1}},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	runner.mu.Lock()
	defer runner.mu.Unlock()

	assert.Empty(t, runner.received)
}

func TestAPIHandlers_HealthAndActions(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)

	status, body := api.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "healthy")

	status, body = api.do(t, http.MethodGet, "/actions", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), models.NodeTypeActionSendWebhook)
	assert.Contains(t, string(body), models.NodeTypeActionSendEmail)
}
