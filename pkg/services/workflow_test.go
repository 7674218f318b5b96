package services_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/iotlinker/automation/pkg/condition"
	"github.com/iotlinker/automation/pkg/dispatch"
	"github.com/iotlinker/automation/pkg/graph"
	"github.com/iotlinker/automation/pkg/models"
	"github.com/iotlinker/automation/pkg/persistence"
	"github.com/iotlinker/automation/pkg/persistence/memory"
	"github.com/iotlinker/automation/pkg/services"
	"github.com/iotlinker/automation/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) (*services.Workflows, persistence.WorkflowRepository) {
	t.Helper()

	registry := dispatch.NewRegistry(slog.Default())
	registry.Register(dispatch.NewWebhookAdapter(nil))
	registry.Register(dispatch.NewEmailAdapter(dispatch.NewLogNotifier(slog.Default())))

	repository := memory.NewWorkflowRepository()

	return services.NewWorkflows(repository, registry.ValidateConfig, condition.Check), repository
}

func TestWorkflows_CreateStartsDisabledAtVersionOne(t *testing.T) {
	service, _ := newService(t)

	draft := testutil.ThresholdWorkflow("D1", "temp", 30, "https://example.com/hook")
	draft.ID = ""

	created, err := service.Create(context.Background(), draft)
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, 1, created.Version)
	assert.False(t, created.Enabled)
	assert.Nil(t, created.PublishedAt)

	fetched, err := service.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, fetched.Name)
	assert.Equal(t, models.CategoryTypeLogic, fetched.Nodes[1].Category)
}

func TestWorkflows_CreateRejectsIncompleteDocument(t *testing.T) {
	service, _ := newService(t)

	_, err := service.Create(context.Background(), nil)
	require.ErrorIs(t, err, services.ErrWorkflowNil)

	noTenant := testutil.CreateTestWorkflow()
	noTenant.TenantID = ""
	_, err = service.Create(context.Background(), noTenant)
	require.ErrorIs(t, err, services.ErrTenantRequired)
	assert.True(t, services.IsValidationError(err))

	noName := testutil.CreateTestWorkflow()
	noName.Name = " "
	_, err = service.Create(context.Background(), noName)
	require.ErrorIs(t, err, services.ErrWorkflowNameRequired)

	badEdge := testutil.CreateTestWorkflow(testutil.WithEdges(&models.Edge{ID: "e1", Source: "a"}))
	_, err = service.Create(context.Background(), badEdge)
	require.ErrorIs(t, err, services.ErrInvalidRequest)
}

func TestWorkflows_CreateAcceptsIncompleteGraph(t *testing.T) {
	service, _ := newService(t)

	draft := testutil.CreateTestWorkflow(testutil.WithNodes(testutil.DeviceTrigger("t", "D1", "temp")))

	created, err := service.Create(context.Background(), draft)
	require.NoError(t, err)

	violations, err := service.Validate(context.Background(), created.ID)
	require.NoError(t, err)
	require.NotEmpty(t, violations)
	assert.Equal(t, graph.ViolationTriggerNoOutbound, violations[0].Code)
}

func TestWorkflows_PublishValidates(t *testing.T) {
	service, _ := newService(t)

	invalid := testutil.CreateTestWorkflow(testutil.WithNodes(
		testutil.DeviceTrigger("t", "D1", "temp"),
		testutil.Webhook("hook", ""),
	), testutil.WithEdges(testutil.Edge("t", "hook", "")))

	created, err := service.Create(context.Background(), invalid)
	require.NoError(t, err)

	_, err = service.Publish(context.Background(), created.ID)
	require.Error(t, err)
	assert.True(t, services.IsWorkflowInvalid(err))

	violations := services.Violations(err)
	require.Len(t, violations, 1)
	assert.Equal(t, graph.ViolationInvalidConfig, violations[0].Code)
	assert.Equal(t, "hook", violations[0].NodeID)

	valid, err := service.Create(context.Background(), testutil.ThresholdWorkflow("D1", "temp", 30, "https://example.com/hook"))
	require.NoError(t, err)

	published, err := service.Publish(context.Background(), valid.ID)
	require.NoError(t, err)
	require.NotNil(t, published.PublishedAt)
	assert.Equal(t, 1, published.Version, "publishing does not create a version")
}

func TestWorkflows_UpdateBumpsVersionAndKeepsHistory(t *testing.T) {
	service, repository := newService(t)

	created, err := service.Create(context.Background(), testutil.ThresholdWorkflow("D1", "temp", 30, "https://example.com/hook"))
	require.NoError(t, err)

	_, err = service.Publish(context.Background(), created.ID)
	require.NoError(t, err)

	nodes := testutil.ThresholdWorkflow("D1", "temp", 40, "https://example.com/hook").Nodes

	updated, err := service.Update(context.Background(), created.ID, services.UpdateRequest{
		Name:    "Hotter",
		Version: 1,
		Nodes:   nodes,
		Edges:   created.Edges,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, "Hotter", updated.Name)
	assert.Nil(t, updated.PublishedAt)
	assert.Equal(t, created.TenantID, updated.TenantID)

	first, err := repository.GetVersion(context.Background(), created.ID, 1)
	require.NoError(t, err)
	assert.NotNil(t, first.PublishedAt)
	assert.InDelta(t, 30.0, first.Nodes[1].Config["threshold"], 0)

	_, err = service.Update(context.Background(), created.ID, services.UpdateRequest{Version: 1, Nodes: nodes})
	require.ErrorIs(t, err, services.ErrVersionConflict)
	assert.True(t, services.IsConflictError(err))
}

func TestWorkflows_EnableRequiresValidGraph(t *testing.T) {
	service, repository := newService(t)

	draft, err := service.Create(context.Background(), testutil.CreateTestWorkflow(
		testutil.WithNodes(testutil.DeviceTrigger("t", "D1", "temp")),
	))
	require.NoError(t, err)

	_, err = service.Enable(context.Background(), draft.ID)
	require.ErrorIs(t, err, services.ErrWorkflowInvalid)

	valid, err := service.Create(context.Background(), testutil.ThresholdWorkflow("D1", "temp", 30, "https://example.com/hook"))
	require.NoError(t, err)

	enabled, err := service.Enable(context.Background(), valid.ID)
	require.NoError(t, err)
	assert.True(t, enabled.Enabled)

	listed, err := repository.ListEnabled(context.Background())
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, valid.ID, listed[0].ID)

	_, err = service.Update(context.Background(), valid.ID, services.UpdateRequest{
		Nodes: []*models.Node{testutil.DeviceTrigger("t", "D1", "temp")},
	})
	require.ErrorIs(t, err, services.ErrWorkflowInvalid, "an enabled workflow cannot take an invalid version")

	disabled, err := service.Disable(context.Background(), valid.ID)
	require.NoError(t, err)
	assert.False(t, disabled.Enabled)

	listed, err = repository.ListEnabled(context.Background())
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestWorkflows_NotFound(t *testing.T) {
	service, _ := newService(t)

	_, err := service.Get(context.Background(), "missing")
	require.ErrorIs(t, err, services.ErrWorkflowNotFound)

	_, err = service.Publish(context.Background(), "missing")
	require.ErrorIs(t, err, services.ErrWorkflowNotFound)

	err = service.Delete(context.Background(), "missing")
	require.ErrorIs(t, err, services.ErrWorkflowNotFound)
}

func TestWorkflows_ListByTenant(t *testing.T) {
	service, _ := newService(t)

	for _, tenant := range []string{"tenant-a", "tenant-a", "tenant-b"} {
		wf := testutil.CreateTestWorkflow()
		wf.ID = ""
		wf.TenantID = tenant

		_, err := service.Create(context.Background(), wf)
		require.NoError(t, err)
	}

	workflows, err := service.List(context.Background(), "tenant-a")
	require.NoError(t, err)
	assert.Len(t, workflows, 2)

	all, err := service.List(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
