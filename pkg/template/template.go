// Package template renders payload templates of action nodes against a run's context.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/iotlinker/automation/pkg/models"
)

// Data exposes the run to templates as .event, .values, .workflow_id, .correlation_id
// and .tenant_id. The event is exposed with its JSON field names.
func Data(executionCtx *models.ExecutionContext) map[string]any {
	event := map[string]any{}

	if raw, err := json.Marshal(executionCtx.Event); err == nil {
		_ = json.Unmarshal(raw, &event)
	}

	return map[string]any{
		"event":          event,
		"values":         executionCtx.ResolvedValues(),
		"workflow_id":    executionCtx.WorkflowID,
		"correlation_id": executionCtx.CorrelationID,
		"tenant_id":      executionCtx.TenantID,
	}
}

// RenderWithContext renders a single template string against the run.
func RenderWithContext(input string, executionCtx *models.ExecutionContext) (any, error) {
	return Render(input, Data(executionCtx))
}

// RenderString renders input and formats non-string results back to text.
func RenderString(input string, executionCtx *models.ExecutionContext) (string, error) {
	if !NeedsTemplating(input) {
		return input, nil
	}

	out, err := RenderWithContext(input, executionCtx)
	if err != nil {
		return "", err
	}

	if s, ok := out.(string); ok {
		return s, nil
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return "", err
	}

	return string(raw), nil
}

// RenderPayload walks a static payload and renders every string leaf.
func RenderPayload(payload map[string]any, executionCtx *models.ExecutionContext) (map[string]any, error) {
	data := Data(executionCtx)

	rendered, err := renderValue(payload, data)
	if err != nil {
		return nil, err
	}

	out, _ := rendered.(map[string]any)

	return out, nil
}

func renderValue(value any, data map[string]any) (any, error) {
	switch v := value.(type) {
	case string:
		if !NeedsTemplating(v) {
			return v, nil
		}

		return Render(v, data)
	case map[string]any:
		out := make(map[string]any, len(v))

		for key, item := range v {
			rendered, err := renderValue(item, data)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}

			out[key] = rendered
		}

		return out, nil
	case []any:
		out := make([]any, 0, len(v))

		for i, item := range v {
			rendered, err := renderValue(item, data)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}

			out = append(out, rendered)
		}

		return out, nil
	default:
		return v, nil
	}
}

// NeedsTemplating reports whether input contains template actions.
func NeedsTemplating(input string) bool {
	return strings.Contains(input, "{{")
}

// Render executes templateStr and converts the output to JSON values, numbers or
// booleans when it looks like one.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("payload").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"rand": func(max int) int {
				if max <= 0 {
					return 0
				}
				num := make([]byte, 1)
				_, err := rand.Read(num)
				if err != nil {
					return 0
				}

				return int(num[0]) % max
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())
	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err == nil {
			return jsonResult, nil
		}

		return jsonResult, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}
