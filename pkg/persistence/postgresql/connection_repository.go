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

const connectionColumns = `
	id, tenant_id, name, provider, webhook_url, channel_id, headers, created_at, updated_at
`

// ConnectionRepository handles third-party connection rows.
type ConnectionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewConnectionRepository(db *sql.DB, logger *slog.Logger) *ConnectionRepository {
	return &ConnectionRepository{db: db, logger: logger}
}

func (cr *ConnectionRepository) Save(ctx context.Context, connection *models.Connection) error {
	headers := connection.Headers
	if headers == nil {
		headers = map[string]string{}
	}

	headersJSON, err := json.Marshal(headers)
	if err != nil {
		return persistence.NewConnectionError("Save", connection.ID, err)
	}

	query := `
		INSERT INTO connections (` + connectionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			name = EXCLUDED.name,
			provider = EXCLUDED.provider,
			webhook_url = EXCLUDED.webhook_url,
			channel_id = EXCLUDED.channel_id,
			headers = EXCLUDED.headers,
			updated_at = EXCLUDED.updated_at
	`

	_, err = cr.db.ExecContext(ctx, query,
		connection.ID,
		connection.TenantID,
		connection.Name,
		connection.Provider,
		connection.WebhookURL,
		connection.ChannelID,
		headersJSON,
		connection.CreatedAt,
		connection.UpdatedAt,
	)
	if err != nil {
		return persistence.NewConnectionError("Save", connection.ID, fmt.Errorf("failed to save connection: %w", err))
	}

	return nil
}

func (cr *ConnectionRepository) GetByID(ctx context.Context, id string) (*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE id = $1`

	connection, err := scanConnection(cr.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewConnectionError("GetByID", id, persistence.ErrConnectionNotFound)
	}

	if err != nil {
		return nil, persistence.NewConnectionError("GetByID", id, err)
	}

	return connection, nil
}

func (cr *ConnectionRepository) List(ctx context.Context, tenantID string) ([]*models.Connection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM connections
		WHERE $1::text = '' OR tenant_id = $1::text
		ORDER BY created_at, id
	`

	rows, err := cr.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query connections: %w", err)
	}

	defer closeRows(ctx, cr.logger, rows)

	connections := make([]*models.Connection, 0)

	for rows.Next() {
		connection, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}

		connections = append(connections, connection)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating connections: %w", err)
	}

	return connections, nil
}

func (cr *ConnectionRepository) Delete(ctx context.Context, id string) error {
	result, err := cr.db.ExecContext(ctx, "DELETE FROM connections WHERE id = $1", id)
	if err != nil {
		return persistence.NewConnectionError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewConnectionError("Delete", id, err)
	}

	if affected == 0 {
		return persistence.NewConnectionError("Delete", id, persistence.ErrConnectionNotFound)
	}

	return nil
}

func scanConnection(row scanner) (*models.Connection, error) {
	var (
		connection  models.Connection
		headersJSON []byte
	)

	err := row.Scan(
		&connection.ID,
		&connection.TenantID,
		&connection.Name,
		&connection.Provider,
		&connection.WebhookURL,
		&connection.ChannelID,
		&headersJSON,
		&connection.CreatedAt,
		&connection.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(headersJSON, &connection.Headers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal headers: %w", err)
	}

	return &connection, nil
}
