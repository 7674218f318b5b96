package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	redisledger "github.com/iotlinker/automation/pkg/persistence/redis"
	"github.com/iotlinker/automation/pkg/scheduler"
	"github.com/redis/go-redis/v9"
)

// SchedulerOptions returns the options of the engine scheduler. With a Redis URL only
// the replica holding the lease publishes ticks; the lease outlives three intervals.
// The returned client is nil without a URL.
func SchedulerOptions(
	ctx context.Context,
	logger *slog.Logger,
	interval time.Duration,
	leaseURL string,
) ([]scheduler.Option, *redis.Client, error) {
	opts := []scheduler.Option{scheduler.WithInterval(interval)}

	if leaseURL == "" {
		return opts, nil, nil
	}

	client, err := redisledger.Connect(ctx, leaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect scheduler lease: %w", err)
	}

	lease := scheduler.NewRedisLease(client, "", 3*interval)

	logger.InfoContext(ctx, "Scheduler lease stored in Redis", "instance", lease.Instance())

	return append(opts, scheduler.WithLease(lease)), client, nil
}
