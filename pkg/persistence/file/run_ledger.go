package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/iotlinker/automation/pkg/models"
	"github.com/iotlinker/automation/pkg/persistence"
)

// RunLedger stores <root>/runs/<correlation id>.json.
type RunLedger struct {
	root string
}

func NewRunLedger(root string) *RunLedger {
	return &RunLedger{root: root}
}

func (rl *RunLedger) path(correlationID string) string {
	return filepath.Join(rl.root, "runs", correlationID+".json")
}

func (rl *RunLedger) Lookup(_ context.Context, correlationID string) (*models.RunRecord, error) {
	if err := persistence.ValidateID(correlationID); err != nil {
		return nil, persistence.NewRunRecordError("Lookup", correlationID, err)
	}

	var record models.RunRecord

	err := readJSON(rl.path(correlationID), &record)
	if errors.Is(err, os.ErrNotExist) {
		return nil, persistence.NewRunRecordError("Lookup", correlationID, persistence.ErrRunRecordNotFound)
	}

	if err != nil {
		return nil, persistence.NewRunRecordError("Lookup", correlationID, err)
	}

	return &record, nil
}

func (rl *RunLedger) Record(_ context.Context, record *models.RunRecord) error {
	if err := persistence.ValidateID(record.CorrelationID); err != nil {
		return persistence.NewRunRecordError("Record", record.CorrelationID, err)
	}

	if err := writeJSON(rl.path(record.CorrelationID), record); err != nil {
		return persistence.NewRunRecordError("Record", record.CorrelationID, err)
	}

	return nil
}

func (rl *RunLedger) ListByWorkflow(_ context.Context, workflowID string, limit int) ([]*models.RunRecord, error) {
	files, err := jsonFiles(filepath.Join(rl.root, "runs"))
	if err != nil {
		return nil, persistence.NewWorkflowError("ListByWorkflow", workflowID, err)
	}

	records := make([]*models.RunRecord, 0)

	for _, file := range files {
		var record models.RunRecord
		if err := readJSON(file, &record); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}

			return nil, persistence.NewWorkflowError("ListByWorkflow", workflowID, err)
		}

		if record.WorkflowID == workflowID {
			records = append(records, &record)
		}
	}

	persistence.SortNewestFirst(records)

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	return records, nil
}
