package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/iotlinker/automation/pkg/models"
	"github.com/iotlinker/automation/pkg/persistence"
	"github.com/iotlinker/automation/pkg/persistence/file"
	"github.com/iotlinker/automation/pkg/persistence/persistencetest"
	"github.com/iotlinker/automation/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowRepository(t *testing.T) {
	persistencetest.RunWorkflowRepository(t, file.NewPersistence(t.TempDir()).WorkflowRepository())
}

func TestRunLedger(t *testing.T) {
	persistencetest.RunLedger(t, file.NewPersistence(t.TempDir()).RunLedger())
}

func TestRunLedger_ConcurrentUpsert(t *testing.T) {
	persistencetest.RunLedgerConcurrentUpsert(t, file.NewRunLedger(t.TempDir()))
}

func TestConnectionRepository(t *testing.T) {
	persistencetest.RunConnectionRepository(t, file.NewPersistence(t.TempDir()).ConnectionRepository())
}

func TestPersistence_Layout(t *testing.T) {
	root := t.TempDir()
	p := file.NewPersistence("file://" + root)
	ctx := context.Background()

	require.NoError(t, p.HealthCheck(ctx))

	wf := testutil.ThresholdWorkflow("dev-1", "temperature", 30, "http://x")
	wf.ID = "wf-layout"
	wf.Version = 3
	require.NoError(t, p.WorkflowRepository().Save(ctx, wf))

	info, err := os.Stat(filepath.Join(root, "workflows", "wf-layout", "v3.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	require.NoError(t, p.RunLedger().Record(ctx, &models.RunRecord{CorrelationID: "cid-1", WorkflowID: wf.ID}))
	_, err = os.Stat(filepath.Join(root, "runs", "cid-1.json"))
	require.NoError(t, err)

	require.NoError(t, p.Close(ctx))
}

func TestPersistence_RejectsPathTraversal(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	ctx := context.Background()

	_, err := p.WorkflowRepository().GetByID(ctx, "../etc")
	require.ErrorIs(t, err, persistence.ErrInvalidID)

	_, err = p.RunLedger().Lookup(ctx, "a/b")
	require.ErrorIs(t, err, persistence.ErrInvalidID)

	err = p.ConnectionRepository().Save(ctx, &models.Connection{ID: `..\x`})
	require.ErrorIs(t, err, persistence.ErrInvalidID)
}

func TestPersistence_HealthCheckMissingRoot(t *testing.T) {
	p := file.NewPersistence(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, p.HealthCheck(context.Background()))
}
