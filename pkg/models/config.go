package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	// ErrInvalidNodeConfig is returned when a node's config does not decode into its kind.
	ErrInvalidNodeConfig = errors.New("invalid node configuration")
	// ErrInvalidSchedule is returned when a recurrence expression cannot be parsed.
	ErrInvalidSchedule = errors.New("invalid schedule configuration")
)

// DeviceDataConfig filters telemetry by device (or device type) and metric.
// DeviceID takes precedence over DeviceTypeID when both are set.
type DeviceDataConfig struct {
	DeviceID     string `json:"device_id,omitempty"`
	DeviceTypeID string `json:"device_type_id,omitempty"`
	MetricName   string `json:"metric_name,omitempty"`
}

// Matches reports whether a telemetry event passes the filter. Comparisons are exact
// and case-sensitive.
func (c DeviceDataConfig) Matches(event TriggerEvent) bool {
	switch {
	case c.DeviceID != "":
		if event.DeviceID != c.DeviceID {
			return false
		}
	case c.DeviceTypeID != "":
		if event.DeviceTypeID != c.DeviceTypeID {
			return false
		}
	default:
		return false
	}

	return c.MetricName == "" || c.MetricName == event.MetricName
}

// ParseDeviceDataConfig decodes the config of a trigger:device_data node.
func ParseDeviceDataConfig(node *Node) (DeviceDataConfig, error) {
	config := DeviceDataConfig{
		DeviceID:     node.ConfigString("device_id"),
		DeviceTypeID: node.ConfigString("device_type_id"),
		MetricName:   node.ConfigString("metric_name"),
	}

	if config.DeviceID == "" && config.DeviceTypeID == "" {
		return config, fmt.Errorf("%w: device_id or device_type_id is required", ErrInvalidNodeConfig)
	}

	return config, nil
}

// ScheduleConfig is the recurrence of a trigger:schedule node, in standard 5-field
// cron format or a descriptor such as @hourly.
type ScheduleConfig struct {
	Cron     string `json:"cron"`
	Timezone string `json:"timezone,omitempty"`

	schedule cron.Schedule
}

var scheduleParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule parses a recurrence expression, optionally pinned to an IANA timezone.
func ParseSchedule(expression, timezone string) (cron.Schedule, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, fmt.Errorf("%w: cron expression is required", ErrInvalidSchedule)
	}

	spec := expression
	if timezone != "" {
		if _, err := time.LoadLocation(timezone); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
		}

		spec = "CRON_TZ=" + timezone + " " + expression
	}

	schedule, err := scheduleParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
	}

	return schedule, nil
}

// ParseScheduleConfig decodes the config of a trigger:schedule node.
func ParseScheduleConfig(node *Node) (ScheduleConfig, error) {
	config := ScheduleConfig{
		Cron:     node.ConfigString("cron"),
		Timezone: node.ConfigString("timezone"),
	}

	schedule, err := ParseSchedule(config.Cron, config.Timezone)
	if err != nil {
		return config, err
	}

	config.schedule = schedule

	return config, nil
}

// maxFireLookups bounds the walk over fire times inside a single tick window.
const maxFireLookups = 1440

// LastFireBetween returns the latest fire time in the window (after, until].
func (c ScheduleConfig) LastFireBetween(after, until time.Time) (time.Time, bool) {
	if c.schedule == nil || !until.After(after) {
		return time.Time{}, false
	}

	var last time.Time

	next := c.schedule.Next(after)
	for i := 0; i < maxFireLookups && !next.IsZero() && !next.After(until); i++ {
		last = next
		next = c.schedule.Next(next)
	}

	return last, !last.IsZero()
}

// Operator is a Logic node comparison.
type Operator string

const (
	OperatorGreaterThan    Operator = "greater_than"
	OperatorLessThan       Operator = "less_than"
	OperatorBetween        Operator = "between"
	OperatorEquals         Operator = "equals"
	OperatorNotEquals      Operator = "not_equals"
	OperatorGreaterOrEqual Operator = "greater_or_equal"
	OperatorLessOrEqual    Operator = "less_or_equal"
	OperatorExpression     Operator = "expression"
)

// ConditionalConfig is the predicate of a logic:conditional node.
//
// Field names the metric the predicate reads. Threshold is used by the single-bound
// operators, Low and High by between (inclusive), Tolerance by equals/not_equals and
// Expression by the expression operator.
type ConditionalConfig struct {
	Field      string   `json:"field"`
	Operator   Operator `json:"operator"`
	Threshold  float64  `json:"threshold"`
	Low        float64  `json:"low"`
	High       float64  `json:"high"`
	Tolerance  *float64 `json:"tolerance,omitempty"`
	Expression string   `json:"expression,omitempty"`
}

// ParseConditionalConfig decodes the config of a logic:conditional node.
func ParseConditionalConfig(node *Node) (ConditionalConfig, error) {
	config := ConditionalConfig{
		Field:      node.ConfigString("field"),
		Operator:   Operator(node.ConfigString("operator")),
		Expression: node.ConfigString("expression"),
	}

	var err error

	switch config.Operator {
	case OperatorGreaterThan, OperatorLessThan, OperatorEquals, OperatorNotEquals,
		OperatorGreaterOrEqual, OperatorLessOrEqual:
		config.Threshold, err = requiredNumber(node.Config, "threshold")
		if err != nil {
			return config, err
		}
	case OperatorBetween:
		if config.Low, err = requiredNumber(node.Config, "low"); err != nil {
			return config, err
		}

		if config.High, err = requiredNumber(node.Config, "high"); err != nil {
			return config, err
		}

		if config.Low > config.High {
			return config, fmt.Errorf("%w: low %v is greater than high %v", ErrInvalidNodeConfig, config.Low, config.High)
		}
	case OperatorExpression:
		if strings.TrimSpace(config.Expression) == "" {
			return config, fmt.Errorf("%w: expression is required", ErrInvalidNodeConfig)
		}
	case "":
		return config, fmt.Errorf("%w: operator is required", ErrInvalidNodeConfig)
	default:
		return config, fmt.Errorf("%w: unknown operator %q", ErrInvalidNodeConfig, config.Operator)
	}

	if raw, ok := node.Config["tolerance"]; ok && raw != nil {
		tolerance, ok := ToFloat(raw)
		if !ok || tolerance < 0 {
			return config, fmt.Errorf("%w: tolerance must be a non-negative number", ErrInvalidNodeConfig)
		}

		config.Tolerance = &tolerance
	}

	return config, nil
}

func requiredNumber(config map[string]any, key string) (float64, error) {
	raw, ok := config[key]
	if !ok || raw == nil {
		return 0, fmt.Errorf("%w: %s is required", ErrInvalidNodeConfig, key)
	}

	value, ok := ToFloat(raw)
	if !ok {
		return 0, fmt.Errorf("%w: %s must be a number", ErrInvalidNodeConfig, key)
	}

	return value, nil
}

// ToFloat converts JSON-decoded numbers and numeric strings to float64.
func ToFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()

		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)

		return f, err == nil
	default:
		return 0, false
	}
}
