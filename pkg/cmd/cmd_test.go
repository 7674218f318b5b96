package cmd

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/iotlinker/automation/pkg/models"
	"github.com/iotlinker/automation/pkg/persistence/file"
	"github.com/iotlinker/automation/pkg/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePersistenceProvider(t *testing.T) {
	tests := map[string]string{
		"file://./data":                   "file",
		"./data":                          "file",
		"postgres://u:p@localhost/db":     "postgres",
		"postgresql://u:p@localhost/db":   "postgresql",
		"mongodb://localhost:27017/store": "file",
	}

	for url, expected := range tests {
		assert.Equal(t, expected, parsePersistenceProvider(url), url)
	}
}

func TestNewPersistence_File(t *testing.T) {
	p, err := NewPersistence(context.Background(), slog.Default(), "file://"+t.TempDir())
	require.NoError(t, err)

	assert.IsType(t, &file.Persistence{}, p)
	require.NoError(t, p.HealthCheck(context.Background()))
}

func TestWithRedisLedger_EmptyURLKeepsBase(t *testing.T) {
	base := memory.NewPersistence()

	p, err := WithRedisLedger(context.Background(), slog.Default(), base, "")
	require.NoError(t, err)
	assert.Same(t, base, p)
}

func TestNewEventBus(t *testing.T) {
	bus, err := NewEventBus("gochannel", slog.Default(), "test")
	require.NoError(t, err)
	require.NoError(t, bus.Close())

	_, err = NewEventBus("nats", slog.Default(), "test")
	require.Error(t, err)
}

func TestNewRegistry_NativeAdapters(t *testing.T) {
	reg, err := NewRegistry(context.Background(), slog.Default(), memory.NewConnectionRepository(), RegistryConfig{
		PluginsPath: t.TempDir(),
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		models.NodeTypeActionSendWebhook,
		models.NodeTypeActionCallThirdParty,
		models.NodeTypeActionSendEmail,
		models.NodeTypeActionSendSMS,
	}, reg.Types())
}

func TestSchedulerOptions(t *testing.T) {
	opts, client, err := SchedulerOptions(context.Background(), slog.Default(), time.Minute, "")
	require.NoError(t, err)
	assert.Nil(t, client)
	assert.Len(t, opts, 1, "no lease without a redis url")

	_, _, err = SchedulerOptions(context.Background(), slog.Default(), time.Minute, "://bad")
	require.Error(t, err)
}
