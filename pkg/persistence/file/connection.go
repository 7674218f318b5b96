package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"

	"github.com/iotlinker/automation/pkg/models"
	"github.com/iotlinker/automation/pkg/persistence"
)

// ConnectionRepository stores <root>/connections/<id>.json.
type ConnectionRepository struct {
	root string
}

func NewConnectionRepository(root string) *ConnectionRepository {
	return &ConnectionRepository{root: root}
}

func (cr *ConnectionRepository) path(id string) string {
	return filepath.Join(cr.root, "connections", id+".json")
}

func (cr *ConnectionRepository) Save(_ context.Context, connection *models.Connection) error {
	if err := persistence.ValidateID(connection.ID); err != nil {
		return persistence.NewConnectionError("Save", connection.ID, err)
	}

	if err := writeJSON(cr.path(connection.ID), connection); err != nil {
		return persistence.NewConnectionError("Save", connection.ID, err)
	}

	return nil
}

func (cr *ConnectionRepository) GetByID(_ context.Context, id string) (*models.Connection, error) {
	if err := persistence.ValidateID(id); err != nil {
		return nil, persistence.NewConnectionError("GetByID", id, err)
	}

	var connection models.Connection

	err := readJSON(cr.path(id), &connection)
	if errors.Is(err, os.ErrNotExist) {
		return nil, persistence.NewConnectionError("GetByID", id, persistence.ErrConnectionNotFound)
	}

	if err != nil {
		return nil, persistence.NewConnectionError("GetByID", id, err)
	}

	return &connection, nil
}

func (cr *ConnectionRepository) List(_ context.Context, tenantID string) ([]*models.Connection, error) {
	files, err := jsonFiles(filepath.Join(cr.root, "connections"))
	if err != nil {
		return nil, err
	}

	connections := make([]*models.Connection, 0, len(files))

	for _, file := range files {
		var connection models.Connection
		if err := readJSON(file, &connection); err != nil {
			return nil, err
		}

		if tenantID == "" || connection.TenantID == tenantID {
			connections = append(connections, &connection)
		}
	}

	slices.SortFunc(connections, func(a, b *models.Connection) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return connections, nil
}

func (cr *ConnectionRepository) Delete(_ context.Context, id string) error {
	if err := persistence.ValidateID(id); err != nil {
		return persistence.NewConnectionError("Delete", id, err)
	}

	err := os.Remove(cr.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return persistence.NewConnectionError("Delete", id, persistence.ErrConnectionNotFound)
	}

	if err != nil {
		return persistence.NewConnectionError("Delete", id, err)
	}

	return nil
}
