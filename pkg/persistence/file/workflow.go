package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/iotlinker/automation/pkg/models"
	"github.com/iotlinker/automation/pkg/persistence"
)

// WorkflowRepository stores <root>/workflows/<id>/v<version>.json.
type WorkflowRepository struct {
	root string
}

func NewWorkflowRepository(root string) *WorkflowRepository {
	return &WorkflowRepository{root: root}
}

func (wr *WorkflowRepository) dir(id string) string {
	return filepath.Join(wr.root, "workflows", id)
}

func (wr *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	if err := persistence.ValidateID(workflow.ID); err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	path := filepath.Join(wr.dir(workflow.ID), "v"+strconv.Itoa(workflow.Version)+".json")
	if err := writeJSON(path, workflow); err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	return nil
}

func (wr *WorkflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	if err := persistence.ValidateID(id); err != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	versions, err := wr.versions(id)
	if err != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	if len(versions) == 0 {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	return wr.load("GetByID", id, versions[len(versions)-1])
}

func (wr *WorkflowRepository) GetVersion(_ context.Context, id string, version int) (*models.Workflow, error) {
	if err := persistence.ValidateID(id); err != nil {
		return nil, persistence.NewWorkflowError("GetVersion", id, err)
	}

	return wr.load("GetVersion", id, version)
}

func (wr *WorkflowRepository) load(op, id string, version int) (*models.Workflow, error) {
	var workflow models.Workflow

	err := readJSON(filepath.Join(wr.dir(id), "v"+strconv.Itoa(version)+".json"), &workflow)
	if errors.Is(err, os.ErrNotExist) {
		return nil, persistence.NewWorkflowError(op, id, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return nil, persistence.NewWorkflowError(op, id, err)
	}

	return &workflow, nil
}

// versions returns the stored version numbers of id in ascending order.
func (wr *WorkflowRepository) versions(id string) ([]int, error) {
	files, err := jsonFiles(wr.dir(id))
	if err != nil {
		return nil, err
	}

	versions := make([]int, 0, len(files))

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".json")

		version, err := strconv.Atoi(strings.TrimPrefix(name, "v"))
		if err != nil || !strings.HasPrefix(name, "v") {
			continue
		}

		versions = append(versions, version)
	}

	slices.Sort(versions)

	return versions, nil
}

func (wr *WorkflowRepository) List(ctx context.Context, tenantID string) ([]*models.Workflow, error) {
	return wr.filter(ctx, func(wf *models.Workflow) bool {
		return tenantID == "" || wf.TenantID == tenantID
	})
}

func (wr *WorkflowRepository) ListEnabled(ctx context.Context) ([]*models.Workflow, error) {
	return wr.filter(ctx, func(wf *models.Workflow) bool {
		return wf.Enabled
	})
}

func (wr *WorkflowRepository) filter(ctx context.Context, keep func(*models.Workflow) bool) ([]*models.Workflow, error) {
	entries, err := os.ReadDir(filepath.Join(wr.root, "workflows"))
	if errors.Is(err, os.ErrNotExist) {
		return []*models.Workflow{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read workflows directory: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(entries))

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		workflow, err := wr.GetByID(ctx, entry.Name())
		if persistence.IsWorkflowNotFound(err) {
			continue
		}

		if err != nil {
			return nil, err
		}

		if keep(workflow) {
			workflows = append(workflows, workflow)
		}
	}

	slices.SortFunc(workflows, func(a, b *models.Workflow) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return workflows, nil
}

func (wr *WorkflowRepository) Delete(_ context.Context, id string) error {
	if err := persistence.ValidateID(id); err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	if _, err := os.Stat(wr.dir(id)); errors.Is(err, os.ErrNotExist) {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	if err := os.RemoveAll(wr.dir(id)); err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	return nil
}
