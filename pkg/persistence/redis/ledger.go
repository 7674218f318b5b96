// Package redis provides a Redis-backed run ledger shared by engine replicas.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iotlinker/automation/pkg/models"
	"github.com/iotlinker/automation/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

const (
	recordKeyPrefix   = "automation:run:"
	workflowKeyPrefix = "automation:workflow-runs:"
)

// RunLedger stores each record as JSON under automation:run:<correlation id> and indexes
// it in a sorted set per workflow scored by start time.
type RunLedger struct {
	client redis.UniversalClient
	logger *slog.Logger
	ttl    time.Duration
}

// Option configures a RunLedger.
type Option func(*RunLedger)

// WithTTL expires records after ttl. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(l *RunLedger) {
		l.ttl = ttl
	}
}

func NewRunLedger(client redis.UniversalClient, logger *slog.Logger, opts ...Option) *RunLedger {
	ledger := &RunLedger{client: client, logger: logger.With("module", "redis_ledger")}

	for _, opt := range opts {
		opt(ledger)
	}

	return ledger
}

// Connect parses a redis:// url and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

func (l *RunLedger) Lookup(ctx context.Context, correlationID string) (*models.RunRecord, error) {
	raw, err := l.client.Get(ctx, recordKeyPrefix+correlationID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, persistence.NewRunRecordError("Lookup", correlationID, persistence.ErrRunRecordNotFound)
	}

	if err != nil {
		return nil, persistence.NewRunRecordError("Lookup", correlationID, err)
	}

	var record models.RunRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, persistence.NewRunRecordError("Lookup", correlationID, fmt.Errorf("failed to decode record: %w", err))
	}

	return &record, nil
}

// Record writes the record and its index entry in one MULTI/EXEC.
func (l *RunLedger) Record(ctx context.Context, record *models.RunRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return persistence.NewRunRecordError("Record", record.CorrelationID, err)
	}

	pipe := l.client.TxPipeline()
	pipe.Set(ctx, recordKeyPrefix+record.CorrelationID, payload, l.ttl)
	pipe.ZAdd(ctx, workflowKeyPrefix+record.WorkflowID, redis.Z{
		Score:  float64(record.StartedAt.UnixMilli()),
		Member: record.CorrelationID,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.NewRunRecordError("Record", record.CorrelationID, fmt.Errorf("failed to write record: %w", err))
	}

	return nil
}

func (l *RunLedger) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.RunRecord, error) {
	ids, err := l.client.ZRevRange(ctx, workflowKeyPrefix+workflowID, 0, -1).Result()
	if err != nil {
		return nil, persistence.NewWorkflowError("ListByWorkflow", workflowID, err)
	}

	records := make([]*models.RunRecord, 0, len(ids))
	if len(ids) == 0 {
		return records, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = recordKeyPrefix + id
	}

	values, err := l.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, persistence.NewWorkflowError("ListByWorkflow", workflowID, err)
	}

	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			// expired; the index entry is stale
			l.logger.DebugContext(ctx, "Dropping stale ledger index entry", "correlation_id", ids[i])
			l.client.ZRem(ctx, workflowKeyPrefix+workflowID, ids[i])

			continue
		}

		var record models.RunRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return nil, persistence.NewRunRecordError("ListByWorkflow", ids[i], err)
		}

		records = append(records, &record)
	}

	persistence.SortNewestFirst(records)

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	return records, nil
}
