package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iotlinker/automation/pkg/engine"
	"github.com/iotlinker/automation/pkg/eventbus"
	"github.com/iotlinker/automation/pkg/scheduler"
)

type EngineManager struct {
	logger    *slog.Logger
	engine    *engine.Engine
	eventBus  eventbus.EventBus
	scheduler *scheduler.Scheduler
}

// NewEngineManager wires the engine to the bus. Schedule ticks are published on the
// bus too so that only one consumer of the group executes each window. Pass
// scheduler.WithLease to keep other replicas from publishing the same window.
func NewEngineManager(
	eng *engine.Engine,
	eventBus eventbus.EventBus,
	logger *slog.Logger,
	scheduleInterval time.Duration,
	opts ...scheduler.Option,
) *EngineManager {
	m := &EngineManager{
		logger:   logger.With("module", "engine_manager"),
		engine:   eng,
		eventBus: eventBus,
	}

	if scheduleInterval > 0 {
		opts = append([]scheduler.Option{scheduler.WithInterval(scheduleInterval)}, opts...)
		m.scheduler = scheduler.New(scheduler.PublishTicks(eventBus), logger, opts...)
	}

	return m
}

// Start runs until SIGINT or SIGTERM.
func (m *EngineManager) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := m.start(ctx); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	m.logger.InfoContext(ctx, "Shutting down engine...")

	return m.stop(ctx)
}

func (m *EngineManager) start(ctx context.Context) error {
	m.logger.InfoContext(ctx, "Starting engine manager")

	if err := m.engine.Subscribe(m.eventBus); err != nil {
		return err
	}

	if err := m.eventBus.Subscribe(ctx); err != nil {
		m.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	if m.scheduler != nil {
		if err := m.scheduler.Start(ctx); err != nil {
			return err
		}
	}

	m.logger.InfoContext(ctx, "Engine started successfully")

	return nil
}

func (m *EngineManager) stop(ctx context.Context) error {
	if m.scheduler == nil {
		return nil
	}

	return m.scheduler.Stop(ctx)
}
