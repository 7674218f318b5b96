package graph

import (
	"log/slog"
	"time"

	"github.com/iotlinker/automation/pkg/models"
)

// TriggerMatcher finds the trigger nodes an event starts.
type TriggerMatcher struct {
	logger *slog.Logger
}

// TriggerMatch is one trigger node to run for an event. Event is the event as seen by
// that trigger; schedule triggers each get their own fire event.
type TriggerMatch struct {
	Workflow *models.Workflow
	Trigger  *models.Node
	Event    models.TriggerEvent
}

func NewTriggerMatcher(logger *slog.Logger) *TriggerMatcher {
	return &TriggerMatcher{
		logger: logger.With("module", "trigger_matcher"),
	}
}

// ReachableTriggers returns the DeviceData triggers of the enabled workflows whose
// filter matches a telemetry event. When the event carries a tenant only that tenant's
// workflows are considered.
func (tm *TriggerMatcher) ReachableTriggers(event models.TriggerEvent, workflows []*models.Workflow) []TriggerMatch {
	var matches []TriggerMatch

	for _, workflow := range workflows {
		if !workflow.Enabled || (event.TenantID != "" && workflow.TenantID != event.TenantID) {
			continue
		}

		for _, trigger := range workflow.Triggers() {
			if trigger.Type != models.NodeTypeTriggerDeviceData {
				continue
			}

			filter, err := models.ParseDeviceDataConfig(trigger)
			if err != nil {
				tm.logger.Warn("Skipping trigger with invalid config",
					"workflow_id", workflow.ID, "node_id", trigger.ID, "error", err)

				continue
			}

			if filter.Matches(event) {
				matches = append(matches, TriggerMatch{Workflow: workflow, Trigger: trigger, Event: event})
			}
		}
	}

	tm.logger.Debug("Completed trigger matching",
		"event_id", event.ID,
		"device_id", event.DeviceID,
		"metric_name", event.MetricName,
		"matches_found", len(matches))

	return matches
}

// DueSchedules returns the Schedule triggers of the enabled workflows whose recurrence
// fires inside the tick window.
func (tm *TriggerMatcher) DueSchedules(tick models.ScheduleTick, workflows []*models.Workflow) []TriggerMatch {
	var matches []TriggerMatch

	previous := tick.Previous
	if previous.IsZero() {
		previous = tick.Now.Add(-time.Minute)
	}

	for _, workflow := range workflows {
		if !workflow.Enabled {
			continue
		}

		for _, trigger := range workflow.Triggers() {
			if trigger.Type != models.NodeTypeTriggerSchedule {
				continue
			}

			schedule, err := models.ParseScheduleConfig(trigger)
			if err != nil {
				tm.logger.Warn("Skipping schedule with invalid recurrence",
					"workflow_id", workflow.ID, "node_id", trigger.ID, "error", err)

				continue
			}

			fireTime, due := schedule.LastFireBetween(previous, tick.Now)
			if !due {
				continue
			}

			matches = append(matches, TriggerMatch{
				Workflow: workflow,
				Trigger:  trigger,
				Event:    models.ScheduleEvent(workflow.TenantID, trigger.ID, fireTime),
			})
		}
	}

	tm.logger.Debug("Completed schedule matching", "now", tick.Now, "matches_found", len(matches))

	return matches
}
