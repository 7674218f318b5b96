package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/iotlinker/automation/pkg/models"
	"github.com/iotlinker/automation/pkg/template"
	"github.com/redis/go-redis/v9"
)

// DefaultNotificationQueue prefixes the Redis lists notifications are pushed to, one
// list per channel (automation:notifications:email, automation:notifications:sms).
const DefaultNotificationQueue = "automation:notifications"

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Notification is the message handed to the notification sink. Subject is empty for SMS.
type Notification struct {
	ID            string    `json:"id"`
	Channel       string    `json:"channel"`
	TenantID      string    `json:"tenant_id"`
	WorkflowID    string    `json:"workflow_id"`
	CorrelationID string    `json:"correlation_id"`
	NodeID        string    `json:"node_id"`
	To            []string  `json:"to"`
	Subject       string    `json:"subject"`
	Body          string    `json:"body"`
	CreatedAt     time.Time `json:"created_at"`
}

// Notifier enqueues notifications for delivery.
type Notifier interface {
	Enqueue(ctx context.Context, notification Notification) error
}

// EmailAdapter handles action:send_email by enqueueing a notification.
type EmailAdapter struct {
	notifier Notifier
}

func NewEmailAdapter(notifier Notifier) *EmailAdapter {
	return &EmailAdapter{notifier: notifier}
}

func (a *EmailAdapter) Type() string {
	return models.NodeTypeActionSendEmail
}

func (a *EmailAdapter) Schema() map[string]any {
	return map[string]any{
		"$schema":  "http://json-schema.org/draft-07/schema#",
		"type":     "object",
		"required": []any{"to"},
		"properties": map[string]any{
			"to": map[string]any{
				"oneOf": []any{
					map[string]any{"type": "string", "minLength": 1},
					map[string]any{
						"type":     "array",
						"minItems": 1,
						"items":    map[string]any{"type": "string", "minLength": 1},
					},
				},
			},
			"subject": map[string]any{"type": "string"},
			"body":    map[string]any{"type": "string"},
		},
	}
}

func (a *EmailAdapter) Dispatch(ctx context.Context, node *models.Node, ectx *models.ExecutionContext) error {
	recipients := recipients(node.Config["to"])
	if len(recipients) == 0 {
		return fmt.Errorf("%w: no recipients", ErrInvalidActionConfig)
	}

	subject, err := template.RenderString(node.ConfigString("subject"), ectx)
	if err != nil {
		return fmt.Errorf("failed to render subject: %w", err)
	}

	body, err := template.RenderString(node.ConfigString("body"), ectx)
	if err != nil {
		return fmt.Errorf("failed to render body: %w", err)
	}

	return a.notifier.Enqueue(ctx, Notification{
		ID:            ectx.CorrelationID + ":" + node.ID,
		Channel:       ChannelEmail,
		TenantID:      ectx.TenantID,
		WorkflowID:    ectx.WorkflowID,
		CorrelationID: ectx.CorrelationID,
		NodeID:        node.ID,
		To:            recipients,
		Subject:       subject,
		Body:          body,
		CreatedAt:     time.Now().UTC(),
	})
}

// recipients accepts a single address, a comma separated list or an array.
func recipients(raw any) []string {
	var out []string

	switch v := raw.(type) {
	case string:
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case []string:
		for _, s := range v {
			if strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	}

	return out
}

// RedisNotifier pushes notifications as JSON onto the Redis list of their channel, where
// the mailer and the SMS gateway consume them.
type RedisNotifier struct {
	client redis.UniversalClient
	queue  string
}

func NewRedisNotifier(client redis.UniversalClient, queue string) *RedisNotifier {
	if queue == "" {
		queue = DefaultNotificationQueue
	}

	return &RedisNotifier{client: client, queue: queue}
}

func (n *RedisNotifier) Enqueue(ctx context.Context, notification Notification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	if err := n.client.LPush(ctx, n.Queue(notification.Channel), payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}

	return nil
}

// Queue is the list name of a channel. Notifications without a channel go to email.
func (n *RedisNotifier) Queue(channel string) string {
	if channel == "" {
		channel = ChannelEmail
	}

	return n.queue + ":" + channel
}

// LogNotifier only logs notifications. It is used when no notification sink is set up.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("module", "log_notifier")}
}

func (n *LogNotifier) Enqueue(ctx context.Context, notification Notification) error {
	n.logger.InfoContext(ctx, "Notification enqueued",
		"id", notification.ID,
		"channel", notification.Channel,
		"to", strings.Join(notification.To, ","),
		"subject", notification.Subject)

	return nil
}
