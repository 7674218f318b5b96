// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/iotlinker/automation/pkg/dispatch"
	"github.com/iotlinker/automation/pkg/persistence"
	redisledger "github.com/iotlinker/automation/pkg/persistence/redis"
)

// RegistryConfig selects the optional parts of the dispatch registry.
type RegistryConfig struct {
	// PluginsPath holds <path>/adapters/**/*.so adapter plugins; ignored when missing.
	PluginsPath string
	// NotificationRedisURL routes email notifications to a Redis list; empty logs them.
	NotificationRedisURL string
	NotificationQueue    string
	HTTPTimeout          time.Duration
}

func registerAdapterPlugins(reg *dispatch.Registry, pluginsPath string) error {
	if pluginsPath == "" {
		return nil
	}

	if _, err := os.Stat(pluginsPath + "/adapters"); os.IsNotExist(err) {
		return nil
	}

	_, err := reg.LoadAdapterPlugins(pluginsPath)

	return err
}

func registerNativeAdapters(
	ctx context.Context,
	reg *dispatch.Registry,
	logger *slog.Logger,
	connections persistence.ConnectionRepository,
	config RegistryConfig,
) error {
	client := dispatch.NewHTTPClient(config.HTTPTimeout)

	reg.Register(dispatch.NewWebhookAdapter(client))
	reg.Register(dispatch.NewThirdPartyWorkflowAdapter(client, connections))

	var notifier dispatch.Notifier = dispatch.NewLogNotifier(logger)

	if config.NotificationRedisURL != "" {
		redisClient, err := redisledger.Connect(ctx, config.NotificationRedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect notification queue: %w", err)
		}

		notifier = dispatch.NewRedisNotifier(redisClient, config.NotificationQueue)
	}

	reg.Register(dispatch.NewEmailAdapter(notifier))
	reg.Register(dispatch.NewSMSAdapter(notifier))

	return nil
}

// NewRegistry builds the dispatch registry with the native adapters and any plugins.
func NewRegistry(
	ctx context.Context,
	logger *slog.Logger,
	connections persistence.ConnectionRepository,
	config RegistryConfig,
) (*dispatch.Registry, error) {
	reg := dispatch.NewRegistry(logger)

	if err := registerAdapterPlugins(reg, config.PluginsPath); err != nil {
		return nil, err
	}

	if err := registerNativeAdapters(ctx, reg, logger, connections, config); err != nil {
		return nil, err
	}

	return reg, nil
}
