package condition_test

import (
	"testing"
	"time"

	"github.com/iotlinker/automation/pkg/condition"
	"github.com/iotlinker/automation/pkg/models"
	"github.com/iotlinker/automation/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contextFor(t *testing.T, wf *models.Workflow, metric string, value float64) *models.ExecutionContext {
	t.Helper()

	event := testutil.TelemetryEvent("evt-1", "dev-1", metric, value).TriggerEvent()
	ectx := models.NewExecutionContext("cid", wf, "trigger", event, time.Now())
	ectx.SetOutput(models.NodeOutput{NodeID: "trigger", Metric: metric, Value: event.Value})

	return ectx
}

func singleLogic(logic *models.Node) *models.Workflow {
	return testutil.CreateTestWorkflow(
		testutil.WithNodes(
			testutil.DeviceTrigger("trigger", "dev-1", "temperature"),
			logic,
			testutil.Webhook("yes", "http://x"),
			testutil.Webhook("no", "http://x"),
		),
		testutil.WithEdges(
			testutil.Edge("trigger", logic.ID, ""),
			testutil.Edge(logic.ID, "yes", models.OutputPortTrue),
			testutil.Edge(logic.ID, "no", models.OutputPortFalse),
		),
	)
}

func TestEvaluator_Operators(t *testing.T) {
	tests := []struct {
		name    string
		node    *models.Node
		value   float64
		matched bool
	}{
		{"greater than is strict at the threshold", testutil.Conditional("logic", "temperature", models.OperatorGreaterThan, 30), 30, false},
		{"greater than above", testutil.Conditional("logic", "temperature", models.OperatorGreaterThan, 30), 30.1, true},
		{"less than is strict at the threshold", testutil.Conditional("logic", "temperature", models.OperatorLessThan, 30), 30, false},
		{"less than below", testutil.Conditional("logic", "temperature", models.OperatorLessThan, 30), 29.9, true},
		{"greater or equal at the threshold", testutil.Conditional("logic", "temperature", models.OperatorGreaterOrEqual, 30), 30, true},
		{"less or equal at the threshold", testutil.Conditional("logic", "temperature", models.OperatorLessOrEqual, 30), 30, true},
		{"between includes low", testutil.Between("logic", "temperature", 10, 20), 10, true},
		{"between includes high", testutil.Between("logic", "temperature", 10, 20), 20, true},
		{"between excludes outside", testutil.Between("logic", "temperature", 10, 20), 20.0001, false},
		{"equals exact", testutil.Conditional("logic", "temperature", models.OperatorEquals, 21.5), 21.5, true},
		{"equals without tolerance is exact", testutil.Conditional("logic", "temperature", models.OperatorEquals, 21.5), 21.5000001, false},
		{"not equals", testutil.Conditional("logic", "temperature", models.OperatorNotEquals, 21.5), 22, true},
	}

	evaluator := condition.NewEvaluator()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := singleLogic(tt.node)
			result := evaluator.Evaluate(tt.node, contextFor(t, wf, "temperature", tt.value))

			assert.Equal(t, tt.matched, result.Matched)
			assert.Nil(t, result.Diagnostic)
			require.NotNil(t, result.Operand)
			assert.InDelta(t, tt.value, *result.Operand, 0)
		})
	}
}

func TestEvaluator_EqualsTolerance(t *testing.T) {
	node := testutil.Conditional("logic", "temperature", models.OperatorEquals, 21.5)
	wf := singleLogic(node)

	lenient := condition.NewEvaluator(condition.WithEqualsTolerance(0.01))
	assert.True(t, lenient.Evaluate(node, contextFor(t, wf, "temperature", 21.505)).Matched)

	node.Config["tolerance"] = 0.0
	assert.False(t, lenient.Evaluate(node, contextFor(t, wf, "temperature", 21.505)).Matched,
		"node tolerance overrides the evaluator default")
}

func TestEvaluator_MissingOperandIsSkipped(t *testing.T) {
	node := testutil.Conditional("logic", "humidity", models.OperatorGreaterThan, 50)
	wf := singleLogic(node)

	result := condition.NewEvaluator().Evaluate(node, contextFor(t, wf, "temperature", 99))

	assert.False(t, result.Matched)
	assert.Equal(t, models.OutputPortFalse, result.Branch())
	require.NotNil(t, result.Diagnostic)
	assert.Equal(t, models.DiagnosticSkippedNode, result.Diagnostic.Code)
	assert.Equal(t, "logic", result.Diagnostic.NodeID)
}

func TestEvaluator_ScheduleEventHasNoOperand(t *testing.T) {
	node := testutil.Conditional("logic", "temperature", models.OperatorGreaterThan, 1)
	wf := singleLogic(node)

	event := models.ScheduleEvent("tenant-1", "trigger", time.Now())
	ectx := models.NewExecutionContext("cid", wf, "trigger", event, time.Now())
	ectx.SetOutput(models.NodeOutput{NodeID: "trigger"})

	result := condition.NewEvaluator().Evaluate(node, ectx)
	assert.False(t, result.Matched)
	assert.NotNil(t, result.Diagnostic)
}

func TestEvaluator_ChainedLogicUsesPredecessorOutput(t *testing.T) {
	first := testutil.Conditional("first", "temperature", models.OperatorGreaterThan, 10)
	second := testutil.CreateTestNode(
		testutil.WithID("second"),
		testutil.WithType(models.NodeTypeLogicConditional),
		testutil.WithConfig(map[string]any{"operator": "less_than", "threshold": 20}),
	)
	wf := testutil.CreateTestWorkflow(
		testutil.WithNodes(testutil.DeviceTrigger("trigger", "dev-1", "temperature"), first, second),
		testutil.WithEdges(testutil.Edge("trigger", "first", ""), testutil.Edge("first", "second", models.OutputPortTrue)),
	)

	ectx := contextFor(t, wf, "temperature", 15)
	operand := 15.0
	ectx.SetOutput(models.NodeOutput{NodeID: "first", Metric: "temperature", Value: &operand, Branch: models.OutputPortTrue})

	result := condition.NewEvaluator().Evaluate(second, ectx)
	assert.True(t, result.Matched)
	assert.Equal(t, "temperature", result.Metric)
}

func TestEvaluator_Expression(t *testing.T) {
	node := testutil.CreateTestNode(
		testutil.WithID("logic"),
		testutil.WithType(models.NodeTypeLogicConditional),
		testutil.WithConfig(map[string]any{
			"field":      "temperature",
			"operator":   "expression",
			"expression": `value > 30 && event.device_id == "dev-1"`,
		}),
	)
	wf := singleLogic(node)
	evaluator := condition.NewEvaluator()

	assert.True(t, evaluator.Evaluate(node, contextFor(t, wf, "temperature", 31)).Matched)
	assert.False(t, evaluator.Evaluate(node, contextFor(t, wf, "temperature", 29)).Matched)
}

func TestCheck(t *testing.T) {
	valid := testutil.CreateTestNode(
		testutil.WithType(models.NodeTypeLogicConditional),
		testutil.WithConfig(map[string]any{"operator": "expression", "expression": "value >= 1"}),
	)
	require.NoError(t, condition.Check(valid))

	broken := testutil.CreateTestNode(
		testutil.WithType(models.NodeTypeLogicConditional),
		testutil.WithConfig(map[string]any{"operator": "expression", "expression": "value >>> ("}),
	)
	require.ErrorIs(t, condition.Check(broken), condition.ErrExpression)

	require.NoError(t, condition.Check(testutil.Webhook("a", "http://x")))
}
