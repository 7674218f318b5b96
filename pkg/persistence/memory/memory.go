// Package memory provides an in-process persistence implementation used by tests and
// single-node development setups.
package memory

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	"github.com/iotlinker/automation/pkg/models"
	"github.com/iotlinker/automation/pkg/persistence"
)

type Persistence struct {
	workflows   *WorkflowRepository
	runs        *RunLedger
	connections *ConnectionRepository
}

func NewPersistence() *Persistence {
	return &Persistence{
		workflows:   NewWorkflowRepository(),
		runs:        NewRunLedger(),
		connections: NewConnectionRepository(),
	}
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflows
}

func (p *Persistence) RunLedger() persistence.RunLedger {
	return p.runs
}

func (p *Persistence) ConnectionRepository() persistence.ConnectionRepository {
	return p.connections
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// copyOf round-trips through JSON so callers never share memory with the store.
func copyOf[T any](in *T) *T {
	data, err := json.Marshal(in)
	if err != nil {
		panic(err)
	}

	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		panic(err)
	}

	return out
}

// WorkflowRepository keeps every saved version per workflow id.
type WorkflowRepository struct {
	mu       sync.RWMutex
	versions map[string]map[int]*models.Workflow
}

func NewWorkflowRepository() *WorkflowRepository {
	return &WorkflowRepository{versions: make(map[string]map[int]*models.Workflow)}
}

func (r *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.versions[workflow.ID] == nil {
		r.versions[workflow.ID] = make(map[int]*models.Workflow)
	}

	r.versions[workflow.ID][workflow.Version] = copyOf(workflow)

	return nil
}

func (r *WorkflowRepository) latest(id string) (*models.Workflow, bool) {
	var latest *models.Workflow

	for _, wf := range r.versions[id] {
		if latest == nil || wf.Version > latest.Version {
			latest = wf
		}
	}

	return latest, latest != nil
}

func (r *WorkflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wf, ok := r.latest(id)
	if !ok {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	return copyOf(wf), nil
}

func (r *WorkflowRepository) GetVersion(_ context.Context, id string, version int) (*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wf, ok := r.versions[id][version]
	if !ok {
		return nil, persistence.NewWorkflowError("GetVersion", id, persistence.ErrWorkflowNotFound)
	}

	return copyOf(wf), nil
}

func (r *WorkflowRepository) List(_ context.Context, tenantID string) ([]*models.Workflow, error) {
	return r.filter(func(wf *models.Workflow) bool {
		return tenantID == "" || wf.TenantID == tenantID
	}), nil
}

func (r *WorkflowRepository) ListEnabled(_ context.Context) ([]*models.Workflow, error) {
	return r.filter(func(wf *models.Workflow) bool {
		return wf.Enabled
	}), nil
}

func (r *WorkflowRepository) filter(keep func(*models.Workflow) bool) []*models.Workflow {
	r.mu.RLock()
	defer r.mu.RUnlock()

	workflows := make([]*models.Workflow, 0, len(r.versions))

	for id := range r.versions {
		if wf, ok := r.latest(id); ok && keep(wf) {
			workflows = append(workflows, copyOf(wf))
		}
	}

	slices.SortFunc(workflows, func(a, b *models.Workflow) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return workflows
}

func (r *WorkflowRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.versions[id]; !ok {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	delete(r.versions, id)

	return nil
}

type RunLedger struct {
	mu      sync.RWMutex
	records map[string]*models.RunRecord
}

func NewRunLedger() *RunLedger {
	return &RunLedger{records: make(map[string]*models.RunRecord)}
}

func (l *RunLedger) Lookup(_ context.Context, correlationID string) (*models.RunRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	record, ok := l.records[correlationID]
	if !ok {
		return nil, persistence.NewRunRecordError("Lookup", correlationID, persistence.ErrRunRecordNotFound)
	}

	return copyOf(record), nil
}

func (l *RunLedger) Record(_ context.Context, record *models.RunRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records[record.CorrelationID] = copyOf(record)

	return nil
}

func (l *RunLedger) ListByWorkflow(_ context.Context, workflowID string, limit int) ([]*models.RunRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var records []*models.RunRecord

	for _, record := range l.records {
		if record.WorkflowID == workflowID {
			records = append(records, copyOf(record))
		}
	}

	persistence.SortNewestFirst(records)

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	return records, nil
}

type ConnectionRepository struct {
	mu          sync.RWMutex
	connections map[string]*models.Connection
}

func NewConnectionRepository() *ConnectionRepository {
	return &ConnectionRepository{connections: make(map[string]*models.Connection)}
}

func (r *ConnectionRepository) Save(_ context.Context, connection *models.Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.connections[connection.ID] = copyOf(connection)

	return nil
}

func (r *ConnectionRepository) GetByID(_ context.Context, id string) (*models.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connection, ok := r.connections[id]
	if !ok {
		return nil, persistence.NewConnectionError("GetByID", id, persistence.ErrConnectionNotFound)
	}

	return copyOf(connection), nil
}

func (r *ConnectionRepository) List(_ context.Context, tenantID string) ([]*models.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var connections []*models.Connection

	for _, connection := range r.connections {
		if tenantID == "" || connection.TenantID == tenantID {
			connections = append(connections, copyOf(connection))
		}
	}

	slices.SortFunc(connections, func(a, b *models.Connection) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return connections, nil
}

func (r *ConnectionRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connections[id]; !ok {
		return persistence.NewConnectionError("Delete", id, persistence.ErrConnectionNotFound)
	}

	delete(r.connections, id)

	return nil
}
