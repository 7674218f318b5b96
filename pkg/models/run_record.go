package models

import "time"

// RunOutcome is the aggregated result of a run.
type RunOutcome string

const (
	RunOutcomeSucceeded       RunOutcome = "succeeded"
	RunOutcomePartiallyFailed RunOutcome = "partially_failed"
	RunOutcomeFailed          RunOutcome = "failed"
	RunOutcomeAborted         RunOutcome = "aborted"
)

// DispatchStatus is the result of one action dispatch.
type DispatchStatus string

const (
	DispatchStatusSuccess  DispatchStatus = "success"
	DispatchStatusFailure  DispatchStatus = "failure"
	DispatchStatusTimedOut DispatchStatus = "timed_out"
)

// DispatchOutcome is returned by an adapter dispatch and stored per action in the record.
type DispatchOutcome struct {
	NodeID     string         `json:"node_id"`
	ActionType string         `json:"action_type"`
	Status     DispatchStatus `json:"status"`
	Reason     string         `json:"reason,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

func (o DispatchOutcome) Succeeded() bool {
	return o.Status == DispatchStatusSuccess
}

// RunRecord is the immutable ledger entry for one (workflow, event, trigger) run.
type RunRecord struct {
	CorrelationID   string            `json:"correlation_id"`
	WorkflowID      string            `json:"workflow_id"`
	WorkflowVersion int               `json:"workflow_version"`
	TenantID        string            `json:"tenant_id"`
	TriggerNodeID   string            `json:"trigger_node_id"`
	EventID         string            `json:"event_id"`
	State           RunState          `json:"state"`
	Outcome         RunOutcome        `json:"outcome"`
	Actions         []DispatchOutcome `json:"actions"`
	Diagnostics     []Diagnostic      `json:"diagnostics,omitempty"`
	Error           string            `json:"error,omitempty"`
	StartedAt       time.Time         `json:"started_at"`
	CompletedAt     time.Time         `json:"completed_at"`
}

// Action returns the recorded outcome of nodeID.
func (r *RunRecord) Action(nodeID string) (DispatchOutcome, bool) {
	for _, action := range r.Actions {
		if action.NodeID == nodeID {
			return action, true
		}
	}

	return DispatchOutcome{}, false
}

// AggregateOutcome derives the run outcome from its dispatches. A run that reached no
// action succeeded.
func AggregateOutcome(actions []DispatchOutcome) RunOutcome {
	if len(actions) == 0 {
		return RunOutcomeSucceeded
	}

	succeeded := 0

	for _, action := range actions {
		if action.Succeeded() {
			succeeded++
		}
	}

	switch succeeded {
	case len(actions):
		return RunOutcomeSucceeded
	case 0:
		return RunOutcomeFailed
	default:
		return RunOutcomePartiallyFailed
	}
}
