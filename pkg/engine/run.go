package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iotlinker/automation/pkg/events"
	"github.com/iotlinker/automation/pkg/graph"
	"github.com/iotlinker/automation/pkg/models"
	"github.com/iotlinker/automation/pkg/otelhelper"
	"github.com/iotlinker/automation/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
)

var (
	errRunTimeout       = errors.New("run timeout exceeded")
	errSnapshotRejected = errors.New("workflow snapshot failed integrity check")
)

func (e *Engine) run(
	ctx context.Context,
	correlationID string,
	workflow *models.Workflow,
	triggerNodeID string,
	event models.TriggerEvent,
) (*models.RunRecord, error) {
	logger := e.logger.With(
		"correlation_id", correlationID,
		"workflow_id", workflow.ID,
		"trigger_id", triggerNodeID,
		"event_id", event.ID,
	)

	previous, err := e.ledger.Lookup(ctx, correlationID)

	switch {
	case err == nil && previous.Outcome == models.RunOutcomeSucceeded:
		logger.InfoContext(ctx, "Run already succeeded, skipping")

		return previous, nil
	case err != nil && !persistence.IsRunRecordNotFound(err):
		return nil, fmt.Errorf("failed to look up run %s: %w", correlationID, err)
	case err != nil:
		previous = nil
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.run",
		attribute.String(otelhelper.CorrelationIDKey, correlationID),
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.Int(otelhelper.WorkflowVersionKey, workflow.Version),
		attribute.String(otelhelper.TenantIDKey, workflow.TenantID),
		attribute.String(otelhelper.TriggerIDKey, triggerNodeID),
		attribute.String(otelhelper.EventIDKey, event.ID),
	)
	defer span.End()

	runCtx, cancel := context.WithTimeout(ctx, e.runTimeout)
	defer cancel()

	ectx := models.NewExecutionContext(correlationID, workflow, triggerNodeID, event, e.now())

	if previous != nil {
		ectx.AddDiagnostic(models.Diagnostic{
			Code:    models.DiagnosticReplayedRun,
			Message: fmt.Sprintf("supersedes a %s run", previous.Outcome),
		})
	}

	record := e.execute(runCtx, ectx, previous)

	span.SetAttributes(attribute.String(otelhelper.RunOutcomeKey, string(record.Outcome)))

	if record.State == models.RunStateAborted {
		otelhelper.SetError(span, errors.New(record.Error))
	}

	// the run deadline may have passed; the outcome must still be stored
	if err := e.ledger.Record(context.WithoutCancel(ctx), record); err != nil {
		otelhelper.SetError(span, err)

		return record, fmt.Errorf("failed to record run %s: %w", correlationID, err)
	}

	logger.InfoContext(ctx, "Run finished",
		"state", record.State,
		"outcome", record.Outcome,
		"actions", len(record.Actions))

	e.publish(ctx, record)

	return record, nil
}

// execute drives the state machine of one run. It always returns a record in a
// terminal state.
func (e *Engine) execute(ctx context.Context, ectx *models.ExecutionContext, previous *models.RunRecord) *models.RunRecord {
	if err := e.checkSnapshot(ectx); err != nil {
		return e.finish(ectx, nil, err)
	}

	ectx.Transition(models.RunStateEvaluating)

	pending, err := e.evaluate(ctx, ectx)
	if err != nil {
		return e.finish(ectx, timedOut(pending, "run ended before dispatch"), err)
	}

	ectx.Transition(models.RunStateDispatching)

	actions, err := e.dispatchAll(ctx, ectx, pending, previous)

	return e.finish(ectx, actions, err)
}

func (e *Engine) checkSnapshot(ectx *models.ExecutionContext) error {
	violations := graph.Integrity(ectx.Workflow)

	trigger, ok := ectx.Workflow.Node(ectx.TriggerNodeID)
	if !ok || !trigger.IsTrigger() {
		violations = append(violations, graph.Violation{
			Code:    graph.ViolationNoTrigger,
			NodeID:  ectx.TriggerNodeID,
			Message: "trigger node is missing from the snapshot",
		})
	}

	for _, violation := range violations {
		ectx.AddDiagnostic(models.Diagnostic{
			Code:    models.DiagnosticAborted,
			NodeID:  violation.NodeID,
			Message: violation.String(),
		})
	}

	if len(violations) > 0 {
		return errSnapshotRejected
	}

	return nil
}

// evaluate walks the nodes reachable from the trigger in topological order and returns
// the Action nodes reached through active edges, each at most once.
func (e *Engine) evaluate(ctx context.Context, ectx *models.ExecutionContext) ([]*models.Node, error) {
	workflow := ectx.Workflow

	order, err := graph.TopologicalOrder(workflow, ectx.TriggerNodeID)
	if err != nil {
		return nil, err
	}

	var pending []*models.Node

	for _, id := range order {
		if ctx.Err() != nil {
			return pending, errRunTimeout
		}

		node, _ := workflow.Node(id)
		if !node.IsTrigger() && !e.activated(ectx, id) {
			continue
		}

		switch {
		case node.IsTrigger():
			ectx.SetOutput(models.NodeOutput{NodeID: id, Metric: ectx.Event.MetricName, Value: ectx.Event.Value})
		case node.IsLogic():
			result := e.evaluator.Evaluate(node, ectx)
			if result.Diagnostic != nil {
				ectx.AddDiagnostic(*result.Diagnostic)
			}

			ectx.SetOutput(models.NodeOutput{
				NodeID: id,
				Metric: result.Metric,
				Value:  result.Operand,
				Branch: result.Branch(),
			})
		case node.IsAction():
			if ectx.SetOutput(models.NodeOutput{NodeID: id}) {
				pending = append(pending, node)
			}
		}
	}

	return pending, nil
}

// activated reports whether any inbound edge of nodeID is live: its source was reached
// and, for a Logic source, the edge carries the branch the source selected.
func (e *Engine) activated(ectx *models.ExecutionContext, nodeID string) bool {
	for _, edge := range ectx.Workflow.Incoming(nodeID) {
		output, reached := ectx.Output(edge.Source)
		if !reached {
			continue
		}

		source, _ := ectx.Workflow.Node(edge.Source)
		if !source.IsLogic() || output.Branch == edge.Branch() {
			return true
		}
	}

	return false
}

type dispatchResult struct {
	index   int
	outcome models.DispatchOutcome
}

// dispatchAll runs the pending actions concurrently. Actions that already succeeded in
// the previous attempt of the same run are carried over instead of dispatched again.
// When ctx ends first, the actions not yet finished are marked timed_out and no longer
// awaited.
func (e *Engine) dispatchAll(
	ctx context.Context,
	ectx *models.ExecutionContext,
	pending []*models.Node,
	previous *models.RunRecord,
) ([]models.DispatchOutcome, error) {
	outcomes := make([]models.DispatchOutcome, len(pending))
	finished := make([]bool, len(pending))
	results := make(chan dispatchResult, len(pending))
	inflight := 0

	for i, node := range pending {
		if previous != nil {
			if prior, ok := previous.Action(node.ID); ok && prior.Succeeded() {
				outcomes[i], finished[i] = prior, true

				ectx.AddDiagnostic(models.Diagnostic{
					Code:    models.DiagnosticCarriedDispatch,
					NodeID:  node.ID,
					Message: "succeeded in a previous attempt",
				})

				continue
			}
		}

		inflight++

		go func() {
			results <- dispatchResult{index: i, outcome: e.dispatch(ctx, node, ectx)}
		}()
	}

	for inflight > 0 {
		select {
		case result := <-results:
			outcomes[result.index], finished[result.index] = result.outcome, true
			inflight--
		case <-ctx.Done():
			for i, node := range pending {
				if !finished[i] {
					outcomes[i] = timedOut([]*models.Node{node}, errRunTimeout.Error())[0]
				}
			}

			return outcomes, errRunTimeout
		}
	}

	return outcomes, nil
}

// dispatch calls the dispatcher under the per-dispatch timeout. A dispatcher that does
// not honour cancellation is abandoned once the timeout fires.
func (e *Engine) dispatch(ctx context.Context, node *models.Node, ectx *models.ExecutionContext) models.DispatchOutcome {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.dispatch",
		attribute.String(otelhelper.CorrelationIDKey, ectx.CorrelationID),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.ActionTypeKey, node.Type),
	)
	defer span.End()

	dispatchCtx, cancel := context.WithTimeout(ctx, e.dispatchTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan models.DispatchOutcome, 1)

	go func() {
		done <- e.dispatcher.Dispatch(dispatchCtx, node, ectx)
	}()

	var outcome models.DispatchOutcome

	select {
	case outcome = <-done:
	case <-dispatchCtx.Done():
		outcome = models.DispatchOutcome{
			NodeID:     node.ID,
			ActionType: node.Type,
			Status:     models.DispatchStatusTimedOut,
			Reason:     fmt.Sprintf("dispatch exceeded %s", e.dispatchTimeout),
			DurationMs: time.Since(start).Milliseconds(),
		}
	}

	span.SetAttributes(attribute.String(otelhelper.DispatchStatusKey, string(outcome.Status)))

	if !outcome.Succeeded() {
		otelhelper.SetError(span, errors.New(outcome.Reason))
	}

	return outcome
}

func timedOut(nodes []*models.Node, reason string) []models.DispatchOutcome {
	outcomes := make([]models.DispatchOutcome, 0, len(nodes))

	for _, node := range nodes {
		outcomes = append(outcomes, models.DispatchOutcome{
			NodeID:     node.ID,
			ActionType: node.Type,
			Status:     models.DispatchStatusTimedOut,
			Reason:     reason,
		})
	}

	return outcomes
}

// finish moves the run to its terminal state and builds the record. A non-nil cause
// aborts the run.
func (e *Engine) finish(ectx *models.ExecutionContext, actions []models.DispatchOutcome, cause error) *models.RunRecord {
	if actions == nil {
		actions = []models.DispatchOutcome{}
	}

	outcome := models.AggregateOutcome(actions)
	errorDetail := ""

	if cause != nil {
		ectx.Transition(models.RunStateAborted)
		ectx.AddDiagnostic(models.Diagnostic{Code: models.DiagnosticAborted, Message: cause.Error()})

		outcome = models.RunOutcomeAborted
		errorDetail = cause.Error()
	} else {
		ectx.Transition(models.RunStateCompleted)
	}

	return &models.RunRecord{
		CorrelationID:   ectx.CorrelationID,
		WorkflowID:      ectx.WorkflowID,
		WorkflowVersion: ectx.WorkflowVersion,
		TenantID:        ectx.TenantID,
		TriggerNodeID:   ectx.TriggerNodeID,
		EventID:         ectx.Event.ID,
		State:           ectx.CurrentState(),
		Outcome:         outcome,
		Actions:         actions,
		Diagnostics:     ectx.DiagnosticsSnapshot(),
		Error:           errorDetail,
		StartedAt:       ectx.StartedAt,
		CompletedAt:     e.now(),
	}
}

func (e *Engine) publish(ctx context.Context, record *models.RunRecord) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, record.WorkflowID, events.ForRun(record, e.now())); err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish run event",
			"correlation_id", record.CorrelationID, "error", err)
	}
}
