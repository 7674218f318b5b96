package condition

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/iotlinker/automation/pkg/models"
)

// ErrExpression is returned when an expression does not compile or run.
var ErrExpression = errors.New("invalid expression")

// expressionEnv is the environment expressions are compiled and run against:
// value (the operand), event (the triggering event) and values (resolved node outputs).
func expressionEnv(operand float64, ectx *models.ExecutionContext) map[string]any {
	env := map[string]any{
		"value":  operand,
		"event":  map[string]any{},
		"values": map[string]any{},
	}

	if ectx == nil {
		return env
	}

	env["values"] = ectx.ResolvedValues()

	raw, err := json.Marshal(ectx.Event)
	if err == nil {
		event := map[string]any{}
		if json.Unmarshal(raw, &event) == nil {
			env["event"] = event
		}
	}

	return env
}

func compile(code string) (*vm.Program, error) {
	program, err := expr.Compile(code, expr.Env(expressionEnv(0, nil)), expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExpression, err)
	}

	return program, nil
}

func (e *Evaluator) program(code string) (*vm.Program, error) {
	if cached, ok := e.programs.Load(code); ok {
		return cached.(*vm.Program), nil
	}

	program, err := compile(code)
	if err != nil {
		return nil, err
	}

	e.programs.Store(code, program)

	return program, nil
}

func (e *Evaluator) runExpression(code string, operand float64, ectx *models.ExecutionContext) (bool, error) {
	program, err := e.program(code)
	if err != nil {
		return false, err
	}

	out, err := expr.Run(program, expressionEnv(operand, ectx))
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrExpression, err)
	}

	matched, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("%w: result is %T, not bool", ErrExpression, out)
	}

	return matched, nil
}

// Check compiles the expression of an expression-operator Logic node. It is meant to be
// passed to graph.Validate so broken expressions are rejected at publish time.
func Check(node *models.Node) error {
	if node.Type != models.NodeTypeLogicConditional {
		return nil
	}

	config, err := models.ParseConditionalConfig(node)
	if err != nil || config.Operator != models.OperatorExpression {
		return nil
	}

	_, err = compile(config.Expression)

	return err
}
