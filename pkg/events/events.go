// Package events defines the messages exchanged over the event bus: telemetry and
// schedule intake for the engine, and run lifecycle notifications it emits.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/iotlinker/automation/pkg/models"
)

type EventType string

// Topics.
const (
	TelemetryTopic = "automation.telemetry"
	RunTopic       = "automation.runs"
)

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	TelemetryReceivedEvent EventType = "telemetry.received"
	ScheduleTickedEvent    EventType = "schedule.ticked"
	RunCompletedEvent      EventType = "run.completed"
	RunAbortedEvent        EventType = "run.aborted"
)

// TopicFor returns the topic an event type is published on.
func TopicFor(eventType EventType) string {
	switch eventType {
	case RunCompletedEvent, RunAbortedEvent:
		return RunTopic
	default:
		return TelemetryTopic
	}
}

type BaseEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	TenantID   string    `json:"tenant_id,omitempty"`
	WorkflowID string    `json:"workflow_id,omitempty"`
}

func newBase(eventType EventType, tenantID, workflowID string, now time.Time) BaseEvent {
	return BaseEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		Timestamp:  now.UTC(),
		TenantID:   tenantID,
		WorkflowID: workflowID,
	}
}

// TelemetryReceived carries one device reading into the engine.
type TelemetryReceived struct {
	BaseEvent

	Telemetry models.TelemetryEvent `json:"telemetry"`
}

func NewTelemetryReceived(telemetry models.TelemetryEvent, now time.Time) TelemetryReceived {
	return TelemetryReceived{
		BaseEvent: newBase(TelemetryReceivedEvent, telemetry.TenantID, "", now),
		Telemetry: telemetry,
	}
}

func (e TelemetryReceived) GetType() EventType {
	return TelemetryReceivedEvent
}

// ScheduleTicked asks the engine to fire the schedule triggers due in the tick window.
type ScheduleTicked struct {
	BaseEvent

	Tick models.ScheduleTick `json:"tick"`
}

func NewScheduleTicked(tick models.ScheduleTick) ScheduleTicked {
	return ScheduleTicked{
		BaseEvent: newBase(ScheduleTickedEvent, "", "", tick.Now),
		Tick:      tick,
	}
}

func (e ScheduleTicked) GetType() EventType {
	return ScheduleTickedEvent
}

// RunCompleted is emitted once a run reached Completed.
type RunCompleted struct {
	BaseEvent

	Record models.RunRecord `json:"record"`
}

func (e RunCompleted) GetType() EventType {
	return RunCompletedEvent
}

// RunAborted is emitted once a run reached Aborted.
type RunAborted struct {
	BaseEvent

	Record models.RunRecord `json:"record"`
}

func (e RunAborted) GetType() EventType {
	return RunAbortedEvent
}

// Event is implemented by every message type of this package.
type Event interface {
	GetType() EventType
}

// ForRun builds the lifecycle event matching the record's terminal state.
func ForRun(record *models.RunRecord, now time.Time) Event {
	base := newBase(RunCompletedEvent, record.TenantID, record.WorkflowID, now)

	if record.State == models.RunStateAborted {
		base.Type = RunAbortedEvent

		return RunAborted{BaseEvent: base, Record: *record}
	}

	return RunCompleted{BaseEvent: base, Record: *record}
}

// New returns an empty value for eventType to decode a payload into.
func New(eventType EventType) (Event, bool) {
	switch eventType {
	case TelemetryReceivedEvent:
		return &TelemetryReceived{}, true
	case ScheduleTickedEvent:
		return &ScheduleTicked{}, true
	case RunCompletedEvent:
		return &RunCompleted{}, true
	case RunAbortedEvent:
		return &RunAborted{}, true
	default:
		return nil, false
	}
}
