package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/iotlinker/automation/pkg/persistence"
	"github.com/iotlinker/automation/pkg/persistence/file"
	"github.com/iotlinker/automation/pkg/persistence/postgresql"
	redisledger "github.com/iotlinker/automation/pkg/persistence/redis"
	"github.com/redis/go-redis/v9"
)

var supportedPersistenceProviders = []string{"file", "postgres", "postgresql"}

// NewPersistence picks the backend from the URL scheme. URLs without a known scheme
// are treated as file paths.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		return file.NewPersistence(databaseURL), nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}

// ledgerOverride serves the run ledger from a separate store.
type ledgerOverride struct {
	persistence.Persistence

	ledger *redisledger.RunLedger
	client *redis.Client
}

func (p *ledgerOverride) RunLedger() persistence.RunLedger {
	return p.ledger
}

func (p *ledgerOverride) HealthCheck(ctx context.Context) error {
	if err := p.Persistence.HealthCheck(ctx); err != nil {
		return err
	}

	return p.client.Ping(ctx).Err()
}

func (p *ledgerOverride) Close(ctx context.Context) error {
	if err := p.client.Close(); err != nil {
		return err
	}

	return p.Persistence.Close(ctx)
}

// WithRedisLedger moves the run ledger of base to Redis when ledgerURL is set.
func WithRedisLedger(
	ctx context.Context,
	logger *slog.Logger,
	base persistence.Persistence,
	ledgerURL string,
) (persistence.Persistence, error) {
	if ledgerURL == "" {
		return base, nil
	}

	client, err := redisledger.Connect(ctx, ledgerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect run ledger: %w", err)
	}

	logger.InfoContext(ctx, "Run ledger stored in Redis")

	return &ledgerOverride{
		Persistence: base,
		ledger:      redisledger.NewRunLedger(client, logger),
		client:      client,
	}, nil
}
