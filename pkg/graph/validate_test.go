package graph_test

import (
	"errors"
	"testing"

	"github.com/iotlinker/automation/pkg/graph"
	"github.com/iotlinker/automation/pkg/models"
	"github.com/iotlinker/automation/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func codes(violations []graph.Violation) []graph.ViolationCode {
	out := make([]graph.ViolationCode, 0, len(violations))
	for _, v := range violations {
		out = append(out, v.Code)
	}

	return out
}

func TestValidate_ValidWorkflow(t *testing.T) {
	wf := testutil.ThresholdWorkflow("dev-1", "temperature", 30, "http://example.com/hook")

	assert.Empty(t, graph.Validate(wf))
	assert.NoError(t, graph.AsError(graph.Validate(wf)))
}

func TestValidate_CycleThroughTrigger(t *testing.T) {
	wf := testutil.CreateTestWorkflow(
		testutil.WithNodes(
			testutil.DeviceTrigger("trigger", "dev-1", "temperature"),
			testutil.Conditional("logic", "temperature", models.OperatorGreaterThan, 10),
			testutil.Webhook("action", "http://example.com"),
		),
		testutil.WithEdges(
			testutil.Edge("trigger", "logic", ""),
			testutil.Edge("logic", "trigger", models.OutputPortTrue),
			testutil.Edge("logic", "action", models.OutputPortFalse),
		),
	)

	violations := graph.Validate(wf)
	require.NotEmpty(t, violations)
	assert.Contains(t, codes(violations), graph.ViolationCycle)

	cycleEdges := map[string]bool{"trigger->logic": true, "logic->trigger:true": true}

	found := false
	for _, v := range violations {
		if v.Code == graph.ViolationCycle {
			found = found || cycleEdges[v.EdgeID]
		}
	}

	assert.True(t, found, "cycle violation should reference an edge on the cycle")
}

func TestValidate_Cardinality(t *testing.T) {
	tests := []struct {
		name     string
		workflow *models.Workflow
		expected graph.ViolationCode
	}{
		{
			name:     "no trigger",
			workflow: testutil.CreateTestWorkflow(testutil.WithNodes(testutil.Webhook("a", "http://x"))),
			expected: graph.ViolationNoTrigger,
		},
		{
			name: "trigger without outbound",
			workflow: testutil.CreateTestWorkflow(
				testutil.WithNodes(testutil.DeviceTrigger("t", "d", "m")),
			),
			expected: graph.ViolationTriggerNoOutbound,
		},
		{
			name: "logic with a single branch",
			workflow: testutil.CreateTestWorkflow(
				testutil.WithNodes(
					testutil.DeviceTrigger("t", "d", "m"),
					testutil.Conditional("l", "m", models.OperatorLessThan, 1),
					testutil.Webhook("a", "http://x"),
				),
				testutil.WithEdges(testutil.Edge("t", "l", ""), testutil.Edge("l", "a", "")),
			),
			expected: graph.ViolationLogicBranches,
		},
		{
			name: "logic with two inbound edges",
			workflow: testutil.CreateTestWorkflow(
				testutil.WithNodes(
					testutil.DeviceTrigger("t1", "d", "m"),
					testutil.DeviceTrigger("t2", "d", "m"),
					testutil.Conditional("l", "m", models.OperatorLessThan, 1),
					testutil.Webhook("a", "http://x"),
					testutil.Webhook("b", "http://x"),
				),
				testutil.WithEdges(
					testutil.Edge("t1", "l", ""),
					testutil.Edge("t2", "l", ""),
					testutil.Edge("l", "a", models.OutputPortTrue),
					testutil.Edge("l", "b", models.OutputPortFalse),
				),
			),
			expected: graph.ViolationLogicInbound,
		},
		{
			name: "unknown branch label",
			workflow: testutil.CreateTestWorkflow(
				testutil.WithNodes(
					testutil.DeviceTrigger("t", "d", "m"),
					testutil.Conditional("l", "m", models.OperatorLessThan, 1),
					testutil.Webhook("a", "http://x"),
					testutil.Webhook("b", "http://x"),
				),
				testutil.WithEdges(
					testutil.Edge("t", "l", ""),
					testutil.Edge("l", "a", "maybe"),
					testutil.Edge("l", "b", models.OutputPortFalse),
				),
			),
			expected: graph.ViolationInvalidLabel,
		},
		{
			name: "action with outbound edge",
			workflow: testutil.CreateTestWorkflow(
				testutil.WithNodes(
					testutil.DeviceTrigger("t", "d", "m"),
					testutil.Webhook("a", "http://x"),
					testutil.Webhook("b", "http://x"),
				),
				testutil.WithEdges(testutil.Edge("t", "a", ""), testutil.Edge("a", "b", "")),
			),
			expected: graph.ViolationActionOutbound,
		},
		{
			name: "unreachable action",
			workflow: testutil.CreateTestWorkflow(
				testutil.WithNodes(
					testutil.DeviceTrigger("t", "d", "m"),
					testutil.Webhook("a", "http://x"),
					testutil.Webhook("orphan", "http://x"),
				),
				testutil.WithEdges(testutil.Edge("t", "a", "")),
			),
			expected: graph.ViolationMissingInbound,
		},
		{
			name: "dangling edge",
			workflow: testutil.CreateTestWorkflow(
				testutil.WithNodes(testutil.DeviceTrigger("t", "d", "m"), testutil.Webhook("a", "http://x")),
				testutil.WithEdges(testutil.Edge("t", "a", ""), testutil.Edge("t", "ghost", "")),
			),
			expected: graph.ViolationDanglingEdge,
		},
		{
			name: "duplicate node",
			workflow: testutil.CreateTestWorkflow(
				testutil.WithNodes(
					testutil.DeviceTrigger("t", "d", "m"),
					testutil.Webhook("a", "http://x"),
					testutil.Webhook("a", "http://y"),
				),
				testutil.WithEdges(testutil.Edge("t", "a", "")),
			),
			expected: graph.ViolationDuplicateNode,
		},
		{
			name: "invalid logic config",
			workflow: testutil.CreateTestWorkflow(
				testutil.WithNodes(
					testutil.DeviceTrigger("t", "d", "m"),
					testutil.Between("l", "m", 10, 1),
					testutil.Webhook("a", "http://x"),
					testutil.Webhook("b", "http://x"),
				),
				testutil.WithEdges(
					testutil.Edge("t", "l", ""),
					testutil.Edge("l", "a", models.OutputPortTrue),
					testutil.Edge("l", "b", models.OutputPortFalse),
				),
			),
			expected: graph.ViolationInvalidConfig,
		},
		{
			name: "category does not match type",
			workflow: testutil.CreateTestWorkflow(
				testutil.WithNodes(
					testutil.DeviceTrigger("t", "d", "m"),
					testutil.CreateTestNode(testutil.WithID("a"), func(n *models.Node) { n.Category = models.CategoryTypeLogic }),
				),
				testutil.WithEdges(testutil.Edge("t", "a", "")),
			),
			expected: graph.ViolationUnknownNodeType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			violations := graph.Validate(tt.workflow)
			assert.Contains(t, codes(violations), tt.expected, "violations: %v", violations)
		})
	}
}

func TestValidate_SharedActionFanIn(t *testing.T) {
	wf := testutil.CreateTestWorkflow(
		testutil.WithNodes(
			testutil.DeviceTrigger("t", "d", "temperature"),
			testutil.Conditional("hot", "temperature", models.OperatorGreaterThan, 30),
			testutil.Conditional("cold", "temperature", models.OperatorLessThan, 0),
			testutil.Webhook("alert", "http://x"),
			testutil.Webhook("noop", "http://x"),
		),
		testutil.WithEdges(
			testutil.Edge("t", "hot", ""),
			testutil.Edge("hot", "alert", models.OutputPortTrue),
			testutil.Edge("hot", "cold", models.OutputPortFalse),
			testutil.Edge("cold", "alert", models.OutputPortTrue),
			testutil.Edge("cold", "noop", models.OutputPortFalse),
		),
	)

	assert.Empty(t, graph.Validate(wf))
}

func TestValidate_ExtraChecksAndErrorWrapping(t *testing.T) {
	wf := testutil.ThresholdWorkflow("dev-1", "temperature", 30, "http://example.com/hook")

	rejectEmail := func(node *models.Node) error {
		if node.Type == models.NodeTypeActionSendEmail {
			return errors.New("email disabled")
		}

		return nil
	}

	violations := graph.Validate(wf, rejectEmail)
	require.Len(t, violations, 1)
	assert.Equal(t, "report", violations[0].NodeID)

	err := graph.AsError(violations)
	require.Error(t, err)
	assert.True(t, graph.IsValidationError(err))
	assert.Contains(t, err.Error(), "email disabled")
}

func TestIntegrity_IgnoresPublishOnlyRules(t *testing.T) {
	wf := testutil.CreateTestWorkflow(
		testutil.WithNodes(
			testutil.DeviceTrigger("trigger", "dev-1", "temperature"),
			testutil.Conditional("logic", "temperature", models.OperatorGreaterThan, 30),
			testutil.Webhook("alert", "http://example.com"),
		),
		testutil.WithEdges(
			testutil.Edge("trigger", "logic", ""),
			testutil.Edge("logic", "alert", models.OutputPortTrue),
		),
	)

	assert.Contains(t, codes(graph.Validate(wf)), graph.ViolationLogicBranches)
	assert.Empty(t, graph.Integrity(wf))

	wf.Edges = append(wf.Edges, testutil.Edge("alert", "ghost", ""))
	assert.Equal(t, []graph.ViolationCode{graph.ViolationDanglingEdge}, codes(graph.Integrity(wf)))
}
