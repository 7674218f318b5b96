// Package condition evaluates the predicate of Logic nodes against a run's context.
package condition

import (
	"fmt"
	"math"
	"sync"

	"github.com/iotlinker/automation/pkg/models"
)

// Result is the outcome of evaluating one Logic node. Operand is the value the
// predicate was applied to; Diagnostic is set when the node was skipped.
type Result struct {
	Matched    bool
	Metric     string
	Operand    *float64
	Diagnostic *models.Diagnostic
}

// Branch returns the output label selected by the result.
func (r Result) Branch() string {
	if r.Matched {
		return models.OutputPortTrue
	}

	return models.OutputPortFalse
}

// Evaluator applies conditional configs. It never mutates the execution context.
type Evaluator struct {
	equalsTolerance float64
	programs        sync.Map
}

type Option func(*Evaluator)

// WithEqualsTolerance sets the tolerance used by equals/not_equals when a node does not
// configure its own. Zero means exact comparison.
func WithEqualsTolerance(tolerance float64) Option {
	return func(e *Evaluator) {
		e.equalsTolerance = math.Abs(tolerance)
	}
}

func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Evaluate resolves the node's operand and applies its operator. A missing operand, a
// broken config or a failing expression evaluates to false with a skipped_node
// diagnostic.
func (e *Evaluator) Evaluate(node *models.Node, ectx *models.ExecutionContext) Result {
	config, err := models.ParseConditionalConfig(node)
	if err != nil {
		return skipped(node, err.Error())
	}

	metric, operand, ok := ResolveOperand(node, config, ectx)
	if !ok {
		return skipped(node, fmt.Sprintf("no numeric value for field %q", config.Field))
	}

	result := Result{Metric: metric, Operand: &operand}

	switch config.Operator {
	case models.OperatorGreaterThan:
		result.Matched = operand > config.Threshold
	case models.OperatorLessThan:
		result.Matched = operand < config.Threshold
	case models.OperatorGreaterOrEqual:
		result.Matched = operand >= config.Threshold
	case models.OperatorLessOrEqual:
		result.Matched = operand <= config.Threshold
	case models.OperatorBetween:
		result.Matched = operand >= config.Low && operand <= config.High
	case models.OperatorEquals:
		result.Matched = e.equal(operand, config)
	case models.OperatorNotEquals:
		result.Matched = !e.equal(operand, config)
	case models.OperatorExpression:
		matched, err := e.runExpression(config.Expression, operand, ectx)
		if err != nil {
			skip := skipped(node, err.Error())
			skip.Metric, skip.Operand = metric, &operand

			return skip
		}

		result.Matched = matched
	}

	return result
}

func (e *Evaluator) equal(operand float64, config models.ConditionalConfig) bool {
	tolerance := e.equalsTolerance
	if config.Tolerance != nil {
		tolerance = *config.Tolerance
	}

	return math.Abs(operand-config.Threshold) <= tolerance
}

// ResolveOperand picks the value a Logic node compares. The triggering reading is used
// when its metric is the node's field; otherwise the memoized output of the single
// predecessor is used when it carries the same metric (or the node names no field).
func ResolveOperand(node *models.Node, config models.ConditionalConfig, ectx *models.ExecutionContext) (string, float64, bool) {
	event := ectx.Event
	if event.Value != nil && config.Field != "" && config.Field == event.MetricName {
		return event.MetricName, *event.Value, true
	}

	if ectx.Workflow == nil {
		return "", 0, false
	}

	incoming := ectx.Workflow.Incoming(node.ID)
	if len(incoming) != 1 {
		return "", 0, false
	}

	output, ok := ectx.Output(incoming[0].Source)
	if !ok || output.Value == nil {
		return "", 0, false
	}

	if config.Field != "" && output.Metric != config.Field {
		return "", 0, false
	}

	return output.Metric, *output.Value, true
}

func skipped(node *models.Node, reason string) Result {
	return Result{
		Diagnostic: &models.Diagnostic{
			Code:    models.DiagnosticSkippedNode,
			NodeID:  node.ID,
			Message: reason,
		},
	}
}
