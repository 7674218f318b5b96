package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/iotlinker/automation/pkg/models"
	"github.com/iotlinker/automation/pkg/template"
)

// SMSAdapter handles action:send_sms. Messages go through the same Notifier as email on
// the sms channel.
type SMSAdapter struct {
	notifier Notifier
}

func NewSMSAdapter(notifier Notifier) *SMSAdapter {
	return &SMSAdapter{notifier: notifier}
}

func (a *SMSAdapter) Type() string {
	return models.NodeTypeActionSendSMS
}

func (a *SMSAdapter) Schema() map[string]any {
	phone := map[string]any{"type": "string", "pattern": `^\+?[0-9 ()-]{6,20}$`}

	return map[string]any{
		"$schema":  "http://json-schema.org/draft-07/schema#",
		"type":     "object",
		"required": []any{"to", "message"},
		"properties": map[string]any{
			"to": map[string]any{
				"oneOf": []any{
					phone,
					map[string]any{"type": "array", "minItems": 1, "items": phone},
				},
			},
			"message": map[string]any{"type": "string", "minLength": 1},
		},
	}
}

func (a *SMSAdapter) Dispatch(ctx context.Context, node *models.Node, ectx *models.ExecutionContext) error {
	recipients := recipients(node.Config["to"])
	if len(recipients) == 0 {
		return fmt.Errorf("%w: no recipients", ErrInvalidActionConfig)
	}

	message, err := template.RenderString(node.ConfigString("message"), ectx)
	if err != nil {
		return fmt.Errorf("failed to render message: %w", err)
	}

	return a.notifier.Enqueue(ctx, Notification{
		ID:            ectx.CorrelationID + ":" + node.ID,
		Channel:       ChannelSMS,
		TenantID:      ectx.TenantID,
		WorkflowID:    ectx.WorkflowID,
		CorrelationID: ectx.CorrelationID,
		NodeID:        node.ID,
		To:            recipients,
		Body:          message,
		CreatedAt:     time.Now().UTC(),
	})
}
