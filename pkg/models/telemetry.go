package models

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"
)

// ErrInvalidTelemetry is returned for telemetry that cannot be turned into an event.
var ErrInvalidTelemetry = errors.New("invalid telemetry event")

// TelemetryEvent is a single device reading as received from the ingestion side.
type TelemetryEvent struct {
	EventID      string    `json:"event_id,omitempty"`
	TenantID     string    `json:"tenant_id,omitempty"`
	DeviceID     string    `json:"device_id"                validate:"required"`
	DeviceTypeID string    `json:"device_type_id,omitempty"`
	ChannelID    string    `json:"channel_id,omitempty"`
	MetricName   string    `json:"metric_name"              validate:"required"`
	Value        *float64  `json:"value"                    validate:"required"`
	Unit         string    `json:"unit,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Float returns a pointer to v, for building readings in code.
func Float(v float64) *float64 {
	return &v
}

// Metric is one entry of a TelemetryBatch.
type Metric struct {
	MetricName string   `json:"metric_name" validate:"required"`
	Value      *float64 `json:"value"       validate:"required"`
	Unit       string   `json:"unit,omitempty"`
}

// TelemetryBatch is the multi-metric form devices post; it expands to one event per metric.
type TelemetryBatch struct {
	TenantID     string    `json:"tenant_id,omitempty"`
	DeviceID     string    `json:"device_id"                validate:"required"`
	DeviceTypeID string    `json:"device_type_id,omitempty"`
	ChannelID    string    `json:"channel_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"                validate:"required"`
	Data         []Metric  `json:"data"                     validate:"required,min=1,dive"`
}

// Events expands the batch. Batch readings carry no event id, so the timestamp is
// required for their derived ids to survive redelivery.
func (b TelemetryBatch) Events() ([]TelemetryEvent, error) {
	if b.DeviceID == "" {
		return nil, errors.Join(ErrInvalidTelemetry, errors.New("device_id is required"))
	}

	if b.Timestamp.IsZero() {
		return nil, errors.Join(ErrInvalidTelemetry, errors.New("timestamp is required for a batch"))
	}

	events := make([]TelemetryEvent, 0, len(b.Data))

	for _, metric := range b.Data {
		if metric.MetricName == "" || metric.Value == nil {
			return nil, errors.Join(ErrInvalidTelemetry, errors.New("every reading needs metric_name and value"))
		}

		event := TelemetryEvent{
			TenantID:     b.TenantID,
			DeviceID:     b.DeviceID,
			DeviceTypeID: b.DeviceTypeID,
			ChannelID:    b.ChannelID,
			MetricName:   metric.MetricName,
			Value:        Float(*metric.Value),
			Unit:         metric.Unit,
			Timestamp:    b.Timestamp,
		}
		event.EventID = event.DerivedID()
		events = append(events, event)
	}

	return events, nil
}

// DerivedID is the stable id used when the producer did not assign one. Redelivery of
// the same reading always derives the same id.
func (e TelemetryEvent) DerivedID() string {
	sum := sha256.Sum256([]byte(e.DeviceID + "\x00" + e.MetricName + "\x00" +
		strconv.FormatInt(e.Timestamp.UTC().UnixNano(), 10)))

	return "tel-" + hex.EncodeToString(sum[:16])
}

// Normalize checks required fields and fills EventID and Timestamp. A reading without
// an event id must carry its timestamp, otherwise redelivery would derive a new id.
func (e TelemetryEvent) Normalize(now time.Time) (TelemetryEvent, error) {
	if e.DeviceID == "" {
		return e, errors.Join(ErrInvalidTelemetry, errors.New("device_id is required"))
	}

	if e.MetricName == "" {
		return e, errors.Join(ErrInvalidTelemetry, errors.New("metric_name is required"))
	}

	if e.Value == nil {
		return e, errors.Join(ErrInvalidTelemetry, errors.New("value is required"))
	}

	if e.EventID == "" && e.Timestamp.IsZero() {
		return e, errors.Join(ErrInvalidTelemetry, errors.New("timestamp is required when event_id is absent"))
	}

	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}

	if e.EventID == "" {
		e.EventID = e.DerivedID()
	}

	return e, nil
}

// TriggerEvent converts the reading into the engine's event form. A missing value stays
// nil so Logic nodes skip instead of comparing zero.
func (e TelemetryEvent) TriggerEvent() TriggerEvent {
	var value *float64
	if e.Value != nil {
		value = Float(*e.Value)
	}

	return TriggerEvent{
		ID:           e.EventID,
		Source:       EventSourceTelemetry,
		TenantID:     e.TenantID,
		DeviceID:     e.DeviceID,
		DeviceTypeID: e.DeviceTypeID,
		ChannelID:    e.ChannelID,
		MetricName:   e.MetricName,
		Value:        value,
		Unit:         e.Unit,
		Timestamp:    e.Timestamp,
	}
}

// EventSource tells what produced a TriggerEvent.
type EventSource string

const (
	EventSourceTelemetry EventSource = "telemetry"
	EventSourceSchedule  EventSource = "schedule"
)

// TriggerEvent is what a run was started from: a telemetry reading or a schedule fire.
// Value is nil for schedule fires.
type TriggerEvent struct {
	ID           string      `json:"id"`
	Source       EventSource `json:"source"`
	TenantID     string      `json:"tenant_id,omitempty"`
	DeviceID     string      `json:"device_id,omitempty"`
	DeviceTypeID string      `json:"device_type_id,omitempty"`
	ChannelID    string      `json:"channel_id,omitempty"`
	MetricName   string      `json:"metric_name,omitempty"`
	Value        *float64    `json:"value,omitempty"`
	Unit         string      `json:"unit,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
}

// ScheduleTick is emitted by the scheduler once per interval. Schedule triggers whose
// recurrence fires in (Previous, Now] are due.
type ScheduleTick struct {
	Previous time.Time `json:"previous"`
	Now      time.Time `json:"now"`
}

// ScheduleEvent builds the event for a schedule trigger firing at fireTime. The id only
// depends on the trigger and the fire instant, so replaying a tick is idempotent.
func ScheduleEvent(tenantID, triggerNodeID string, fireTime time.Time) TriggerEvent {
	return TriggerEvent{
		ID:        "sched-" + triggerNodeID + "-" + fireTime.UTC().Format(time.RFC3339),
		Source:    EventSourceSchedule,
		TenantID:  tenantID,
		Timestamp: fireTime,
	}
}
