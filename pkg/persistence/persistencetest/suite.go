// Package persistencetest holds behaviour tests shared by every persistence backend.
package persistencetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/iotlinker/automation/pkg/models"
	"github.com/iotlinker/automation/pkg/persistence"
	"github.com/iotlinker/automation/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunWorkflowRepository exercises versioned storage and enabled listing.
func RunWorkflowRepository(t *testing.T, repo persistence.WorkflowRepository) {
	t.Helper()

	ctx := context.Background()

	wf := testutil.ThresholdWorkflow("dev-1", "temperature", 30, "http://example.com/hook")
	wf.ID = "wf-suite-1"
	wf.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Save(ctx, wf))

	v2 := wf.Clone()
	v2.Version = 2
	v2.Name = "Threshold v2"
	v2.Enabled = false
	require.NoError(t, repo.Save(ctx, v2))

	latest, err := repo.GetByID(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)
	assert.Equal(t, "Threshold v2", latest.Name)
	assert.Len(t, latest.Nodes, 4)
	assert.Len(t, latest.Edges, 3)

	first, err := repo.GetVersion(ctx, wf.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, wf.Name, first.Name)
	assert.True(t, first.Enabled)

	logic, ok := first.Node("logic")
	require.True(t, ok)
	assert.InDelta(t, 30.0, logic.Config["threshold"], 0)

	_, err = repo.GetVersion(ctx, wf.ID, 7)
	assert.True(t, persistence.IsWorkflowNotFound(err))

	other := testutil.ThresholdWorkflow("dev-2", "humidity", 80, "http://example.com/hook")
	other.ID = "wf-suite-2"
	other.TenantID = "tenant-2"
	other.CreatedAt = wf.CreatedAt.Add(time.Hour)
	require.NoError(t, repo.Save(ctx, other))

	all, err := repo.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 2, all[0].Version, "list returns the latest version only")

	tenant2, err := repo.List(ctx, "tenant-2")
	require.NoError(t, err)
	require.Len(t, tenant2, 1)
	assert.Equal(t, other.ID, tenant2[0].ID)

	enabled, err := repo.ListEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 1, "latest version of wf-suite-1 is disabled")
	assert.Equal(t, other.ID, enabled[0].ID)

	require.NoError(t, repo.Delete(ctx, wf.ID))

	_, err = repo.GetByID(ctx, wf.ID)
	assert.True(t, persistence.IsWorkflowNotFound(err))

	err = repo.Delete(ctx, wf.ID)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func record(correlationID, workflowID string, startedAt time.Time, outcome models.RunOutcome) *models.RunRecord {
	return &models.RunRecord{
		CorrelationID:   correlationID,
		WorkflowID:      workflowID,
		WorkflowVersion: 1,
		TenantID:        "tenant-1",
		TriggerNodeID:   "trigger",
		EventID:         "evt-" + correlationID,
		State:           models.RunStateCompleted,
		Outcome:         outcome,
		Actions: []models.DispatchOutcome{
			{NodeID: "alert", ActionType: models.NodeTypeActionSendWebhook, Status: models.DispatchStatusSuccess, DurationMs: 12},
		},
		Diagnostics: []models.Diagnostic{{Code: models.DiagnosticSkippedNode, NodeID: "logic", Message: "no value"}},
		StartedAt:   startedAt,
		CompletedAt: startedAt.Add(time.Second),
	}
}

// RunLedger exercises lookup, upsert and listing of run records.
func RunLedger(t *testing.T, ledger persistence.RunLedger) {
	t.Helper()

	ctx := context.Background()
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	_, err := ledger.Lookup(ctx, "missing")
	require.True(t, persistence.IsRunRecordNotFound(err))

	require.NoError(t, ledger.Record(ctx, record("cid-1", "wf-1", base, models.RunOutcomePartiallyFailed)))

	got, err := ledger.Lookup(ctx, "cid-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunOutcomePartiallyFailed, got.Outcome)
	require.Len(t, got.Actions, 1)
	assert.Equal(t, models.DispatchStatusSuccess, got.Actions[0].Status)
	require.Len(t, got.Diagnostics, 1)
	assert.True(t, base.Equal(got.StartedAt))

	require.NoError(t, ledger.Record(ctx, record("cid-1", "wf-1", base, models.RunOutcomeSucceeded)))

	got, err = ledger.Lookup(ctx, "cid-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunOutcomeSucceeded, got.Outcome, "record is an upsert")

	require.NoError(t, ledger.Record(ctx, record("cid-2", "wf-1", base.Add(time.Minute), models.RunOutcomeFailed)))
	require.NoError(t, ledger.Record(ctx, record("cid-3", "wf-2", base.Add(2*time.Minute), models.RunOutcomeSucceeded)))

	list, err := ledger.ListByWorkflow(ctx, "wf-1", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "cid-2", list[0].CorrelationID, "newest first")
	assert.Equal(t, "cid-1", list[1].CorrelationID)

	limited, err := ledger.ListByWorkflow(ctx, "wf-1", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)

	none, err := ledger.ListByWorkflow(ctx, "wf-none", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

// RunLedgerConcurrentUpsert writes the same correlation id from many goroutines.
func RunLedgerConcurrentUpsert(t *testing.T, ledger persistence.RunLedger) {
	t.Helper()

	ctx := context.Background()
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup

	for i := range 10 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			r := record("cid-concurrent", "wf-c", base, models.RunOutcomeSucceeded)
			r.EventID = fmt.Sprintf("evt-%d", i)
			assert.NoError(t, ledger.Record(ctx, r))
		}()
	}

	wg.Wait()

	got, err := ledger.Lookup(ctx, "cid-concurrent")
	require.NoError(t, err)
	assert.Equal(t, models.RunOutcomeSucceeded, got.Outcome)

	list, err := ledger.ListByWorkflow(ctx, "wf-c", 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

// RunConnectionRepository exercises connection CRUD.
func RunConnectionRepository(t *testing.T, repo persistence.ConnectionRepository) {
	t.Helper()

	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	conn := &models.Connection{
		ID:         "conn-1",
		TenantID:   "tenant-1",
		Name:       "n8n alerts",
		Provider:   models.ConnectionProviderN8N,
		WebhookURL: "https://n8n.example.com/webhook/abc",
		ChannelID:  "channel-1",
		Headers:    map[string]string{"Authorization": "Bearer x"},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, repo.Save(ctx, conn))

	other := *conn
	other.ID = "conn-2"
	other.TenantID = "tenant-2"
	other.CreatedAt = now.Add(time.Minute)
	require.NoError(t, repo.Save(ctx, &other))

	got, err := repo.GetByID(ctx, "conn-1")
	require.NoError(t, err)
	assert.Equal(t, conn.WebhookURL, got.WebhookURL)
	assert.Equal(t, "Bearer x", got.Headers["Authorization"])

	list, err := repo.List(ctx, "tenant-1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	all, err := repo.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, repo.Delete(ctx, "conn-1"))

	_, err = repo.GetByID(ctx, "conn-1")
	assert.True(t, persistence.IsConnectionNotFound(err))
	assert.True(t, persistence.IsConnectionNotFound(repo.Delete(ctx, "conn-1")))
}
