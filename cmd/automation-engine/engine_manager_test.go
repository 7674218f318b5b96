package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/iotlinker/automation/pkg/cmd"
	"github.com/iotlinker/automation/pkg/dispatch"
	"github.com/iotlinker/automation/pkg/engine"
	"github.com/iotlinker/automation/pkg/events"
	"github.com/iotlinker/automation/pkg/mocks"
	"github.com/iotlinker/automation/pkg/models"
	"github.com/iotlinker/automation/pkg/persistence/memory"
	"github.com/iotlinker/automation/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestEngineManager_ConsumesTelemetryAndTicks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := memory.NewPersistence()

	adapter := &mocks.MockAdapter{ActionType: models.NodeTypeActionSendWebhook}
	adapter.On("Dispatch", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	registry := dispatch.NewRegistry(slog.Default())
	registry.Register(adapter)

	bus, err := cmd.NewEventBus("gochannel", slog.Default(), "test")
	require.NoError(t, err)

	defer func() { _ = bus.Close() }()

	telemetryWorkflow := testutil.CreateTestWorkflow(
		testutil.WithWorkflowID("wf-telemetry"),
		testutil.WithNodes(testutil.DeviceTrigger("trigger", "D1", "temp"), testutil.Webhook("hook", "https://example.com")),
		testutil.WithEdges(testutil.Edge("trigger", "hook", "")),
	)
	scheduleWorkflow := testutil.CreateTestWorkflow(
		testutil.WithWorkflowID("wf-schedule"),
		testutil.WithNodes(testutil.ScheduleTrigger("every-minute", "* * * * *"), testutil.Webhook("hook", "https://example.com")),
		testutil.WithEdges(testutil.Edge("every-minute", "hook", "")),
	)

	for _, wf := range []*models.Workflow{telemetryWorkflow, scheduleWorkflow} {
		require.NoError(t, store.WorkflowRepository().Save(ctx, wf))
	}

	eng := engine.New(store.WorkflowRepository(), store.RunLedger(), registry, slog.Default())
	manager := NewEngineManager(eng, bus, slog.Default(), 20*time.Millisecond)

	require.NoError(t, manager.start(ctx))

	defer func() { require.NoError(t, manager.stop(ctx)) }()

	telemetry := testutil.TelemetryEvent("evt-1", "D1", "temp", 12)
	require.NoError(t, bus.Publish(ctx, "D1", events.NewTelemetryReceived(telemetry, time.Now())))

	correlationID := engine.CorrelationID("wf-telemetry", "evt-1", "trigger")

	assert.Eventually(t, func() bool {
		record, err := store.RunLedger().Lookup(ctx, correlationID)

		return err == nil && record.Outcome == models.RunOutcomeSucceeded
	}, 5*time.Second, 20*time.Millisecond)

	tick := models.ScheduleTick{
		Previous: time.Date(2026, 5, 1, 11, 59, 30, 0, time.UTC),
		Now:      time.Date(2026, 5, 1, 12, 0, 30, 0, time.UTC),
	}
	require.NoError(t, bus.Publish(ctx, "scheduler", events.NewScheduleTicked(tick)))

	assert.Eventually(t, func() bool {
		records, err := store.RunLedger().ListByWorkflow(ctx, "wf-schedule", 0)

		return err == nil && len(records) > 0
	}, 5*time.Second, 20*time.Millisecond)
}

func TestValidateWorkflow(t *testing.T) {
	valid := testutil.ThresholdWorkflow("D1", "temp", 30, "https://example.com/hook")

	var out bytes.Buffer
	require.NoError(t, validateWorkflow(context.Background(), &out, valid))
	assert.Contains(t, out.String(), "is valid")

	invalid := testutil.CreateTestWorkflow(testutil.WithNodes(testutil.DeviceTrigger("t", "D1", "temp")))

	out.Reset()
	require.ErrorIs(t, validateWorkflow(context.Background(), &out, invalid), ErrInvalidWorkflow)
	assert.Contains(t, out.String(), "trigger_no_outbound")
}

func TestReadWorkflow(t *testing.T) {
	wf := testutil.ThresholdWorkflow("D1", "temp", 30, "https://example.com/hook")
	for _, node := range wf.Nodes {
		node.Category = ""
	}

	data, err := json.Marshal(wf)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "workflow.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	read, err := readWorkflow(path)
	require.NoError(t, err)
	assert.Equal(t, models.CategoryTypeTrigger, read.Nodes[0].Category)

	_, err = readWorkflow("")
	require.Error(t, err)
}
