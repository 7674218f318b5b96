package mocks

import (
	"context"

	"github.com/iotlinker/automation/pkg/dispatch"
	"github.com/iotlinker/automation/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockAdapter is a mock implementation of dispatch.Adapter interface.
type MockAdapter struct {
	mock.Mock

	ActionType string
}

func (m *MockAdapter) Type() string {
	return m.ActionType
}

func (m *MockAdapter) Schema() map[string]any {
	return map[string]any{"type": "object"}
}

func (m *MockAdapter) Dispatch(ctx context.Context, node *models.Node, ectx *models.ExecutionContext) error {
	args := m.Called(ctx, node, ectx)

	return args.Error(0)
}

// MockNotifier is a mock implementation of dispatch.Notifier interface.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Enqueue(ctx context.Context, notification dispatch.Notification) error {
	args := m.Called(ctx, notification)

	return args.Error(0)
}
