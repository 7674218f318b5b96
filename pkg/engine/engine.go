// Package engine runs workflows: it matches triggering events to triggers, walks the
// graph in topological order through Logic nodes, dispatches the reached Action nodes
// concurrently and records one RunRecord per run in the ledger.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/iotlinker/automation/pkg/condition"
	"github.com/iotlinker/automation/pkg/events"
	"github.com/iotlinker/automation/pkg/graph"
	"github.com/iotlinker/automation/pkg/models"
	"github.com/iotlinker/automation/pkg/otelhelper"
	"github.com/iotlinker/automation/pkg/persistence"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultRunTimeout        = 30 * time.Second
	DefaultDispatchTimeout   = 5 * time.Second
	DefaultMaxConcurrentRuns = 16
)

// WorkflowSource lists the workflows eligible for triggering.
type WorkflowSource interface {
	ListEnabled(ctx context.Context) ([]*models.Workflow, error)
}

// Dispatcher performs the side effect of an Action node. dispatch.Registry implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, node *models.Node, ectx *models.ExecutionContext) models.DispatchOutcome
}

// Publisher receives run lifecycle events. eventbus.EventBus implements it.
type Publisher interface {
	Publish(ctx context.Context, key string, event events.Event) error
}

type Engine struct {
	workflows  WorkflowSource
	ledger     persistence.RunLedger
	dispatcher Dispatcher
	evaluator  *condition.Evaluator
	matcher    *graph.TriggerMatcher
	publisher  Publisher
	tracer     trace.Tracer
	logger     *slog.Logger

	runTimeout        time.Duration
	dispatchTimeout   time.Duration
	maxConcurrentRuns int
	now               func() time.Time

	runs singleflight.Group
}

type Option func(*Engine)

// WithRunTimeout bounds the wall-clock time of a whole run.
func WithRunTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		if timeout > 0 {
			e.runTimeout = timeout
		}
	}
}

// WithDispatchTimeout bounds each individual dispatch.
func WithDispatchTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		if timeout > 0 {
			e.dispatchTimeout = timeout
		}
	}
}

// WithMaxConcurrentRuns limits the runs started in parallel for one event.
func WithMaxConcurrentRuns(limit int) Option {
	return func(e *Engine) {
		if limit > 0 {
			e.maxConcurrentRuns = limit
		}
	}
}

func WithEvaluator(evaluator *condition.Evaluator) Option {
	return func(e *Engine) {
		e.evaluator = evaluator
	}
}

func WithPublisher(publisher Publisher) Option {
	return func(e *Engine) {
		e.publisher = publisher
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func New(
	workflows WorkflowSource,
	ledger persistence.RunLedger,
	dispatcher Dispatcher,
	logger *slog.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		workflows:         workflows,
		ledger:            ledger,
		dispatcher:        dispatcher,
		evaluator:         condition.NewEvaluator(),
		matcher:           graph.NewTriggerMatcher(logger),
		tracer:            otelhelper.NoopTracer(),
		logger:            logger.With("module", "engine"),
		runTimeout:        DefaultRunTimeout,
		dispatchTimeout:   DefaultDispatchTimeout,
		maxConcurrentRuns: DefaultMaxConcurrentRuns,
		now:               time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// HandleTelemetry runs every enabled workflow whose DeviceData trigger matches the
// reading. Records are returned in match order; a run that could not be recorded
// leaves a nil entry and its error is returned.
func (e *Engine) HandleTelemetry(ctx context.Context, telemetry models.TelemetryEvent) ([]*models.RunRecord, error) {
	normalized, err := telemetry.Normalize(e.now())
	if err != nil {
		return nil, err
	}

	workflows, err := e.workflows.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled workflows: %w", err)
	}

	return e.runAll(ctx, e.matcher.ReachableTriggers(normalized.TriggerEvent(), workflows))
}

// HandleScheduleTick runs the Schedule triggers due in the tick window.
func (e *Engine) HandleScheduleTick(ctx context.Context, tick models.ScheduleTick) ([]*models.RunRecord, error) {
	workflows, err := e.workflows.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled workflows: %w", err)
	}

	return e.runAll(ctx, e.matcher.DueSchedules(tick, workflows))
}

func (e *Engine) runAll(ctx context.Context, matches []graph.TriggerMatch) ([]*models.RunRecord, error) {
	records := make([]*models.RunRecord, len(matches))

	var group errgroup.Group

	group.SetLimit(e.maxConcurrentRuns)

	for i, match := range matches {
		group.Go(func() error {
			record, err := e.Run(ctx, match.Workflow, match.Trigger.ID, match.Event)
			records[i] = record

			return err
		})
	}

	return records, group.Wait()
}

// Run executes workflow from triggerNodeID for event and returns its RunRecord.
// Concurrent calls for the same correlation id share one execution, and a run already
// recorded as succeeded is returned from the ledger without dispatching again.
// The error is non-nil only when the ledger could not be read or written.
func (e *Engine) Run(
	ctx context.Context,
	workflow *models.Workflow,
	triggerNodeID string,
	event models.TriggerEvent,
) (*models.RunRecord, error) {
	correlationID := CorrelationID(workflow.ID, event.ID, triggerNodeID)

	result, err, shared := e.runs.Do(correlationID, func() (any, error) {
		return e.run(ctx, correlationID, workflow, triggerNodeID, event)
	})
	if shared {
		e.logger.DebugContext(ctx, "Joined in-flight run", "correlation_id", correlationID)
	}

	record, _ := result.(*models.RunRecord)

	return record, err
}
