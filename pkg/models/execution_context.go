package models

import (
	"sync"
	"time"
)

// RunState is the lifecycle state of a single run.
type RunState string

const (
	RunStateQueued      RunState = "queued"
	RunStateEvaluating  RunState = "evaluating"
	RunStateDispatching RunState = "dispatching"
	RunStateCompleted   RunState = "completed"
	RunStateAborted     RunState = "aborted"
)

// IsTerminal reports whether no further transition is possible.
func (s RunState) IsTerminal() bool {
	return s == RunStateCompleted || s == RunStateAborted
}

// DiagnosticCode classifies a Diagnostic.
type DiagnosticCode string

const (
	DiagnosticSkippedNode     DiagnosticCode = "skipped_node"
	DiagnosticReplayedRun     DiagnosticCode = "replayed_run"
	DiagnosticCarriedDispatch DiagnosticCode = "carried_dispatch"
	DiagnosticAborted         DiagnosticCode = "aborted"
)

// Diagnostic is a non-fatal note attached to a run.
type Diagnostic struct {
	Code    DiagnosticCode `json:"code"`
	NodeID  string         `json:"node_id,omitempty"`
	Message string         `json:"message"`
}

// NodeOutput is the memoized result of a node within one run. Value and Metric carry
// the reading a node saw so chained Logic nodes can reuse it.
type NodeOutput struct {
	NodeID string   `json:"node_id"`
	Metric string   `json:"metric,omitempty"`
	Value  *float64 `json:"value,omitempty"`
	Branch string   `json:"branch,omitempty"`
}

// ExecutionContext carries the per-run state between nodes. It is created when a run is
// queued and discarded once its RunRecord is written.
type ExecutionContext struct {
	CorrelationID   string                `json:"correlation_id"`
	WorkflowID      string                `json:"workflow_id"`
	WorkflowVersion int                   `json:"workflow_version"`
	TenantID        string                `json:"tenant_id"`
	TriggerNodeID   string                `json:"trigger_node_id"`
	Event           TriggerEvent          `json:"event"`
	Outputs         map[string]NodeOutput `json:"outputs"`
	Diagnostics     []Diagnostic          `json:"diagnostics,omitempty"`
	State           RunState              `json:"state"`
	StartedAt       time.Time             `json:"started_at"`

	// Workflow is the version snapshot pinned when the run was queued.
	Workflow *Workflow `json:"-"`

	mu sync.RWMutex
}

// NewExecutionContext pins a snapshot of workflow for the run.
func NewExecutionContext(
	correlationID string,
	workflow *Workflow,
	triggerNodeID string,
	event TriggerEvent,
	startedAt time.Time,
) *ExecutionContext {
	snapshot := workflow.Clone()

	return &ExecutionContext{
		CorrelationID:   correlationID,
		WorkflowID:      snapshot.ID,
		WorkflowVersion: snapshot.Version,
		TenantID:        snapshot.TenantID,
		TriggerNodeID:   triggerNodeID,
		Event:           event,
		Outputs:         make(map[string]NodeOutput),
		State:           RunStateQueued,
		StartedAt:       startedAt,
		Workflow:        snapshot,
	}
}

// Output returns the memoized output of nodeID.
func (c *ExecutionContext) Output(nodeID string) (NodeOutput, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	output, ok := c.Outputs[nodeID]

	return output, ok
}

// SetOutput memoizes a node output. It returns false when the node already has one.
func (c *ExecutionContext) SetOutput(output NodeOutput) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.Outputs[output.NodeID]; exists {
		return false
	}

	c.Outputs[output.NodeID] = output

	return true
}

func (c *ExecutionContext) AddDiagnostic(diagnostic Diagnostic) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Diagnostics = append(c.Diagnostics, diagnostic)
}

// ResolvedValues returns the numeric outputs of every evaluated node keyed by node id.
func (c *ExecutionContext) ResolvedValues() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	values := make(map[string]any, len(c.Outputs))

	for id, output := range c.Outputs {
		if output.Value != nil {
			values[id] = *output.Value
		}
	}

	return values
}

// Transition moves the run forward. Terminal states are never left.
func (c *ExecutionContext) Transition(state RunState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State.IsTerminal() {
		return false
	}

	c.State = state

	return true
}

func (c *ExecutionContext) CurrentState() RunState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.State
}

// DiagnosticsSnapshot returns a copy of the diagnostics gathered so far.
func (c *ExecutionContext) DiagnosticsSnapshot() []Diagnostic {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return append([]Diagnostic(nil), c.Diagnostics...)
}
