package models

import "time"

// ConnectionProviderN8N is the only third-party workflow provider shipped today.
const ConnectionProviderN8N = "n8n"

// Connection stores the endpoint and credentials of a third-party workflow so that
// action nodes can reference it by id instead of embedding secrets.
type Connection struct {
	ID         string            `json:"id"`
	TenantID   string            `json:"tenant_id"            validate:"required"`
	Name       string            `json:"name"                 validate:"required"`
	Provider   string            `json:"provider"             validate:"required,oneof=n8n webhook"`
	WebhookURL string            `json:"webhook_url"          validate:"required,url"`
	ChannelID  string            `json:"channel_id,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}
