package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateOutcome(t *testing.T) {
	ok := DispatchOutcome{Status: DispatchStatusSuccess}
	failed := DispatchOutcome{Status: DispatchStatusFailure}
	timedOut := DispatchOutcome{Status: DispatchStatusTimedOut}

	assert.Equal(t, RunOutcomeSucceeded, AggregateOutcome(nil))
	assert.Equal(t, RunOutcomeSucceeded, AggregateOutcome([]DispatchOutcome{ok, ok}))
	assert.Equal(t, RunOutcomePartiallyFailed, AggregateOutcome([]DispatchOutcome{ok, timedOut}))
	assert.Equal(t, RunOutcomeFailed, AggregateOutcome([]DispatchOutcome{failed, timedOut}))
}

func TestTelemetryEvent_Normalize(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sent := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)

	event, err := TelemetryEvent{DeviceID: "dev-1", MetricName: "temperature", Value: Float(3), Timestamp: sent}.Normalize(now)
	require.NoError(t, err)
	assert.Equal(t, sent, event.Timestamp)
	assert.NotEmpty(t, event.EventID)

	again, err := TelemetryEvent{DeviceID: "dev-1", MetricName: "temperature", Value: Float(9), Timestamp: sent}.Normalize(now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, event.EventID, again.EventID, "id derives from device, metric and timestamp only")

	kept, err := TelemetryEvent{EventID: "evt-1", DeviceID: "dev-1", MetricName: "t", Value: Float(0)}.Normalize(now)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", kept.EventID)
	assert.Equal(t, now, kept.Timestamp)

	_, err = TelemetryEvent{MetricName: "t", Value: Float(1)}.Normalize(now)
	require.ErrorIs(t, err, ErrInvalidTelemetry)
}

func TestTelemetryEvent_NormalizeRejectsMissingValue(t *testing.T) {
	_, err := TelemetryEvent{EventID: "evt-1", DeviceID: "dev-1", MetricName: "temperature"}.Normalize(time.Now())
	require.ErrorIs(t, err, ErrInvalidTelemetry)
	assert.Contains(t, err.Error(), "value is required")
}

func TestTelemetryEvent_NormalizeNeedsTimestampWithoutEventID(t *testing.T) {
	_, err := TelemetryEvent{DeviceID: "dev-1", MetricName: "temperature", Value: Float(21)}.Normalize(time.Now())
	require.ErrorIs(t, err, ErrInvalidTelemetry)
	assert.Contains(t, err.Error(), "timestamp is required")
}

func TestTelemetryEvent_TriggerEventKeepsMissingValueNil(t *testing.T) {
	assert.Nil(t, TelemetryEvent{EventID: "e", DeviceID: "d", MetricName: "m"}.TriggerEvent().Value)

	event := TelemetryEvent{EventID: "e", DeviceID: "d", MetricName: "m", Value: Float(0)}.TriggerEvent()
	require.NotNil(t, event.Value)
	assert.InDelta(t, 0.0, *event.Value, 0)
}

func TestTelemetryBatch_Events(t *testing.T) {
	sent := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	batch := TelemetryBatch{
		DeviceID:  "dev-1",
		Timestamp: sent,
		Data: []Metric{
			{MetricName: "temperature", Value: Float(25), Unit: "C"},
			{MetricName: "humidity", Value: Float(60), Unit: "%"},
		},
	}

	events, err := batch.Events()
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "temperature", events[0].MetricName)
	assert.Equal(t, "humidity", events[1].MetricName)
	assert.NotEqual(t, events[0].EventID, events[1].EventID)
	assert.Equal(t, sent, events[1].Timestamp)
	assert.InDelta(t, 60.0, *events[1].Value, 0)

	again, err := batch.Events()
	require.NoError(t, err)
	assert.Equal(t, events[0].EventID, again[0].EventID)
}

func TestTelemetryBatch_EventsRejectsIncompleteReadings(t *testing.T) {
	_, err := TelemetryBatch{DeviceID: "dev-1", Data: []Metric{{MetricName: "t", Value: Float(1)}}}.Events()
	require.ErrorIs(t, err, ErrInvalidTelemetry)

	_, err = TelemetryBatch{
		DeviceID:  "dev-1",
		Timestamp: time.Now(),
		Data:      []Metric{{MetricName: "t"}},
	}.Events()
	require.ErrorIs(t, err, ErrInvalidTelemetry)
}

func TestWorkflow_CloneIsIndependent(t *testing.T) {
	wf := &Workflow{
		ID: "wf-1",
		Nodes: []*Node{
			{ID: "n1", Type: NodeTypeLogicConditional, Category: CategoryTypeLogic, Config: map[string]any{"threshold": 1.0}},
		},
		Edges: []*Edge{{ID: "e1", Source: "t", Target: "n1"}},
	}

	clone := wf.Clone()
	clone.Nodes[0].Config["threshold"] = 2.0
	clone.Edges[0].Label = OutputPortFalse

	assert.InDelta(t, 1.0, wf.Nodes[0].Config["threshold"], 0)
	assert.Equal(t, OutputPortTrue, wf.Edges[0].Branch())
	assert.Equal(t, OutputPortFalse, clone.Edges[0].Branch())
}

func TestExecutionContext_Memoization(t *testing.T) {
	ectx := NewExecutionContext("cid", &Workflow{ID: "wf", Version: 3}, "t", TriggerEvent{ID: "e"}, time.Now())

	assert.Equal(t, 3, ectx.WorkflowVersion)
	assert.True(t, ectx.SetOutput(NodeOutput{NodeID: "n1", Branch: OutputPortTrue}))
	assert.False(t, ectx.SetOutput(NodeOutput{NodeID: "n1", Branch: OutputPortFalse}))

	out, ok := ectx.Output("n1")
	require.True(t, ok)
	assert.Equal(t, OutputPortTrue, out.Branch)

	assert.True(t, ectx.Transition(RunStateAborted))
	assert.False(t, ectx.Transition(RunStateDispatching))
	assert.Equal(t, RunStateAborted, ectx.CurrentState())
}
