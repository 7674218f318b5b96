package engine

import (
	"context"
	"errors"

	"github.com/iotlinker/automation/pkg/eventbus"
	"github.com/iotlinker/automation/pkg/events"
	"github.com/iotlinker/automation/pkg/models"
)

// Subscribe registers the engine's handlers for telemetry and schedule events.
func (e *Engine) Subscribe(subscriber eventbus.EventSubscriber) error {
	if err := subscriber.Handle(events.TelemetryReceivedEvent, e.handleTelemetryReceived); err != nil {
		return err
	}

	return subscriber.Handle(events.ScheduleTickedEvent, e.handleScheduleTicked)
}

func (e *Engine) handleTelemetryReceived(ctx context.Context, event any) error {
	received, ok := event.(*events.TelemetryReceived)
	if !ok {
		e.logger.ErrorContext(ctx, "Invalid event type for TelemetryReceived")

		return nil
	}

	_, err := e.HandleTelemetry(ctx, received.Telemetry)
	if errors.Is(err, models.ErrInvalidTelemetry) {
		e.logger.WarnContext(ctx, "Dropping invalid telemetry", "event_id", received.ID, "error", err)

		return nil
	}

	return err
}

func (e *Engine) handleScheduleTicked(ctx context.Context, event any) error {
	ticked, ok := event.(*events.ScheduleTicked)
	if !ok {
		e.logger.ErrorContext(ctx, "Invalid event type for ScheduleTicked")

		return nil
	}

	_, err := e.HandleScheduleTick(ctx, ticked.Tick)

	return err
}
