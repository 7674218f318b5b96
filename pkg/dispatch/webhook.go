package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/iotlinker/automation/pkg/models"
	"github.com/iotlinker/automation/pkg/template"
)

// maxErrorBody bounds how much of a failed response ends up in the dispatch reason.
const maxErrorBody = 512

// WebhookPayload is the JSON body POSTed by the webhook adapters.
type WebhookPayload struct {
	Event          models.TriggerEvent `json:"event"`
	ResolvedValues map[string]any      `json:"resolved_values"`
	WorkflowID     string              `json:"workflow_id"`
	CorrelationID  string              `json:"correlation_id"`
	Payload        map[string]any      `json:"payload,omitempty"`
}

// HTTPError is a non-2xx webhook response.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsHTTPError reports whether err is a non-2xx response.
func IsHTTPError(err error) bool {
	var httpErr *HTTPError

	return errors.As(err, &httpErr)
}

// NewHTTPClient returns the client used by webhook adapters. Per-dispatch deadlines
// come from the context; timeout is only an upper bound.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// WebhookAdapter handles action:send_webhook.
type WebhookAdapter struct {
	client *http.Client
}

func NewWebhookAdapter(client *http.Client) *WebhookAdapter {
	if client == nil {
		client = http.DefaultClient
	}

	return &WebhookAdapter{client: client}
}

func (a *WebhookAdapter) Type() string {
	return models.NodeTypeActionSendWebhook
}

func (a *WebhookAdapter) Schema() map[string]any {
	return map[string]any{
		"$schema":  "http://json-schema.org/draft-07/schema#",
		"type":     "object",
		"required": []any{"url"},
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Endpoint receiving the POST; may contain templates",
			},
			"headers": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "string"},
			},
		},
	}
}

func (a *WebhookAdapter) Dispatch(ctx context.Context, node *models.Node, ectx *models.ExecutionContext) error {
	url, err := template.RenderString(node.ConfigString("url"), ectx)
	if err != nil {
		return fmt.Errorf("failed to render url: %w", err)
	}

	headers, err := renderHeaders(stringMap(node.ConfigMap("headers")), ectx)
	if err != nil {
		return err
	}

	return post(ctx, a.client, url, headers, newPayload(ectx, nil))
}

func newPayload(ectx *models.ExecutionContext, payload map[string]any) WebhookPayload {
	return WebhookPayload{
		Event:          ectx.Event,
		ResolvedValues: ectx.ResolvedValues(),
		WorkflowID:     ectx.WorkflowID,
		CorrelationID:  ectx.CorrelationID,
		Payload:        payload,
	}
}

func renderHeaders(headers map[string]string, ectx *models.ExecutionContext) (map[string]string, error) {
	rendered := make(map[string]string, len(headers))

	for key, value := range headers {
		v, err := template.RenderString(value, ectx)
		if err != nil {
			return nil, fmt.Errorf("failed to render header %s: %w", key, err)
		}

		rendered[key] = v
	}

	return rendered, nil
}

func stringMap(raw map[string]any) map[string]string {
	out := make(map[string]string, len(raw))

	for key, value := range raw {
		if s, ok := value.(string); ok {
			out[key] = s
		}
	}

	return out
}

// post issues a single POST. Any transport error or non-2xx status is a failure.
func post(ctx context.Context, client *http.Client, url string, headers map[string]string, payload WebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	req.Header.Set("X-Correlation-ID", payload.CorrelationID)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		return &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}

	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}
