package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/iotlinker/automation/pkg/models"
	"github.com/iotlinker/automation/pkg/persistence"
)

const runRecordColumns = `
	correlation_id, workflow_id, workflow_version, tenant_id, trigger_node_id, event_id,
	state, outcome, actions, diagnostics, error, started_at, completed_at
`

// RunLedger keeps one row per correlation id.
type RunLedger struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewRunLedger(db *sql.DB, logger *slog.Logger) *RunLedger {
	return &RunLedger{db: db, logger: logger}
}

func (l *RunLedger) Lookup(ctx context.Context, correlationID string) (*models.RunRecord, error) {
	query := `SELECT ` + runRecordColumns + ` FROM run_records WHERE correlation_id = $1`

	record, err := scanRunRecord(l.db.QueryRowContext(ctx, query, correlationID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewRunRecordError("Lookup", correlationID, persistence.ErrRunRecordNotFound)
	}

	if err != nil {
		return nil, persistence.NewRunRecordError("Lookup", correlationID, err)
	}

	return record, nil
}

// Record upserts by correlation id; the last writer wins.
func (l *RunLedger) Record(ctx context.Context, record *models.RunRecord) error {
	actions := record.Actions
	if actions == nil {
		actions = []models.DispatchOutcome{}
	}

	actionsJSON, err := json.Marshal(actions)
	if err != nil {
		return persistence.NewRunRecordError("Record", record.CorrelationID, err)
	}

	diagnostics := record.Diagnostics
	if diagnostics == nil {
		diagnostics = []models.Diagnostic{}
	}

	diagnosticsJSON, err := json.Marshal(diagnostics)
	if err != nil {
		return persistence.NewRunRecordError("Record", record.CorrelationID, err)
	}

	query := `
		INSERT INTO run_records (` + runRecordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (correlation_id) DO UPDATE SET
			workflow_id = EXCLUDED.workflow_id,
			workflow_version = EXCLUDED.workflow_version,
			tenant_id = EXCLUDED.tenant_id,
			trigger_node_id = EXCLUDED.trigger_node_id,
			event_id = EXCLUDED.event_id,
			state = EXCLUDED.state,
			outcome = EXCLUDED.outcome,
			actions = EXCLUDED.actions,
			diagnostics = EXCLUDED.diagnostics,
			error = EXCLUDED.error,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at
	`

	_, err = l.db.ExecContext(ctx, query,
		record.CorrelationID,
		record.WorkflowID,
		record.WorkflowVersion,
		record.TenantID,
		record.TriggerNodeID,
		record.EventID,
		record.State,
		record.Outcome,
		actionsJSON,
		diagnosticsJSON,
		record.Error,
		record.StartedAt,
		record.CompletedAt,
	)
	if err != nil {
		return persistence.NewRunRecordError("Record", record.CorrelationID, fmt.Errorf("failed to save run record: %w", err))
	}

	return nil
}

func (l *RunLedger) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.RunRecord, error) {
	query := `
		SELECT ` + runRecordColumns + `
		FROM run_records
		WHERE workflow_id = $1
		ORDER BY started_at DESC, correlation_id
	`
	args := []any{workflowID}

	if limit > 0 {
		query += " LIMIT $2"

		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query run records: %w", err)
	}

	defer closeRows(ctx, l.logger, rows)

	records := make([]*models.RunRecord, 0)

	for rows.Next() {
		record, err := scanRunRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run record: %w", err)
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run records: %w", err)
	}

	return records, nil
}

func scanRunRecord(row scanner) (*models.RunRecord, error) {
	var (
		record          models.RunRecord
		actionsJSON     []byte
		diagnosticsJSON []byte
	)

	err := row.Scan(
		&record.CorrelationID,
		&record.WorkflowID,
		&record.WorkflowVersion,
		&record.TenantID,
		&record.TriggerNodeID,
		&record.EventID,
		&record.State,
		&record.Outcome,
		&actionsJSON,
		&diagnosticsJSON,
		&record.Error,
		&record.StartedAt,
		&record.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(actionsJSON, &record.Actions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal actions: %w", err)
	}

	if err := json.Unmarshal(diagnosticsJSON, &record.Diagnostics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal diagnostics: %w", err)
	}

	return &record, nil
}
