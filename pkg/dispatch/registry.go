// Package dispatch maps Action nodes to the side effects that carry them out.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"plugin"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/iotlinker/automation/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

var (
	// ErrAdapterNotRegistered is returned for an action type with no adapter.
	ErrAdapterNotRegistered = errors.New("dispatch adapter not registered")
	// ErrInvalidActionConfig is returned when an action config fails its adapter schema.
	ErrInvalidActionConfig = errors.New("invalid action configuration")
)

// Adapter performs the side effect of one action type. Adapters must not retry; a
// returned error marks the dispatch failed.
type Adapter interface {
	Type() string
	Schema() map[string]any
	Dispatch(ctx context.Context, node *models.Node, ectx *models.ExecutionContext) error
}

type Registry struct {
	logger   *slog.Logger
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:   log.With("module", "dispatch_registry"),
		adapters: make(map[string]Adapter),
	}
}

// Register adds or replaces the adapter for its action type.
func (r *Registry) Register(adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.adapters[adapter.Type()] = adapter
	r.logger.Debug("Registered dispatch adapter", "action_type", adapter.Type())
}

func (r *Registry) Get(actionType string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, ok := r.adapters[actionType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAdapterNotRegistered, actionType)
	}

	return adapter, nil
}

// Types returns the registered action types in ascending order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.adapters))
	for actionType := range r.adapters {
		types = append(types, actionType)
	}

	slices.Sort(types)

	return types
}

// Schemas returns the config schema of every registered adapter keyed by action type.
func (r *Registry) Schemas() map[string]map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make(map[string]map[string]any, len(r.adapters))
	for actionType, adapter := range r.adapters {
		schemas[actionType] = adapter.Schema()
	}

	return schemas
}

// ValidateConfig checks an action node's config against its adapter schema. Non-action
// nodes are ignored, so it can be passed to graph.Validate as a node check.
func (r *Registry) ValidateConfig(node *models.Node) error {
	if !node.IsAction() {
		return nil
	}

	adapter, err := r.Get(node.Type)
	if err != nil {
		return err
	}

	config := node.Config
	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(adapter.Schema()),
		gojsonschema.NewGoLoader(config),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidActionConfig, err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidActionConfig, strings.Join(details, "; "))
	}

	return nil
}

// Dispatch runs the adapter for node and reports the outcome. It never returns an
// error: failures are part of the outcome.
func (r *Registry) Dispatch(ctx context.Context, node *models.Node, ectx *models.ExecutionContext) models.DispatchOutcome {
	outcome := models.DispatchOutcome{
		NodeID:     node.ID,
		ActionType: node.Type,
	}

	start := time.Now()

	adapter, err := r.Get(node.Type)
	if err == nil {
		err = adapter.Dispatch(ctx, node, ectx)
	}

	outcome.DurationMs = time.Since(start).Milliseconds()

	switch {
	case err == nil:
		outcome.Status = models.DispatchStatusSuccess
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		outcome.Status = models.DispatchStatusTimedOut
		outcome.Reason = err.Error()
	default:
		outcome.Status = models.DispatchStatusFailure
		outcome.Reason = err.Error()
	}

	r.logger.DebugContext(ctx, "Dispatched action",
		"correlation_id", ectx.CorrelationID,
		"node_id", node.ID,
		"action_type", node.Type,
		"status", outcome.Status,
		"duration_ms", outcome.DurationMs)

	return outcome
}

// LoadAdapterPlugins opens every <pluginsPath>/adapters/**/*.so and looks up the
// exported "Adapter" symbol.
func (r *Registry) LoadAdapterPlugins(pluginsPath string) ([]Adapter, error) {
	rootPath := pluginsPath + "/adapters"

	pluginPathList, err := fs.Glob(os.DirFS(rootPath), "**/*.so")
	if err != nil {
		return nil, err
	}

	l := r.logger.With(slog.String("path", rootPath))
	l.Info("Loading adapter plugins", "count", len(pluginPathList))

	adapters := make([]Adapter, 0, len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(rootPath + "/" + p)
		if err != nil {
			return nil, fmt.Errorf("failed to open plugin %s: %w", p, err)
		}

		symbol, err := plg.Lookup("Adapter")
		if err != nil {
			return nil, fmt.Errorf("plugin %s: %w", p, err)
		}

		adapter, ok := symbol.(Adapter)
		if !ok {
			return nil, fmt.Errorf("plugin %s: symbol Adapter does not implement dispatch.Adapter", p)
		}

		r.Register(adapter)
		adapters = append(adapters, adapter)

		l.Info("Loaded adapter plugin", slog.String("plugin", p), slog.String("action_type", adapter.Type()))
	}

	return adapters, nil
}
