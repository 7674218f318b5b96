package models

import (
	"maps"
	"strings"
)

// CategoryType is the kind family of a node.
type CategoryType string

const (
	CategoryTypeTrigger CategoryType = "trigger"
	CategoryTypeLogic   CategoryType = "logic"
	CategoryTypeAction  CategoryType = "action"
)

// Built-in node types. The prefix before ':' is always the node category.
const (
	NodeTypeTriggerDeviceData = "trigger:device_data"
	NodeTypeTriggerSchedule   = "trigger:schedule"

	NodeTypeLogicConditional = "logic:conditional"

	NodeTypeActionSendEmail      = "action:send_email"
	NodeTypeActionSendSMS        = "action:send_sms"
	NodeTypeActionSendWebhook    = "action:send_webhook"
	NodeTypeActionCallThirdParty = "action:call_third_party_workflow"
)

const (
	defaultNodeTypeSeparator       = ":"
	defaultConditionalTrueBranchID = OutputPortTrue
)

// Output branch labels of a Logic node.
const (
	OutputPortTrue  = "true"
	OutputPortFalse = "false"
)

// Node is a single step of a workflow graph. Config is decoded on demand into the
// typed config of its kind (see DeviceDataConfig, ScheduleConfig, ConditionalConfig).
type Node struct {
	ID        string         `json:"id"         validate:"required"`
	Type      string         `json:"type"       validate:"required"`
	Category  CategoryType   `json:"category"   validate:"required,oneof=trigger logic action"`
	Name      string         `json:"name"`
	Config    map[string]any `json:"config"`
	PositionX int            `json:"position_x"`
	PositionY int            `json:"position_y"`
}

func (n *Node) IsTrigger() bool {
	return n.Category == CategoryTypeTrigger
}

func (n *Node) IsLogic() bool {
	return n.Category == CategoryTypeLogic
}

func (n *Node) IsAction() bool {
	return n.Category == CategoryTypeAction
}

// TypeCategory returns the category encoded in the node type prefix.
func (n *Node) TypeCategory() CategoryType {
	prefix, _, found := strings.Cut(n.Type, defaultNodeTypeSeparator)
	if !found {
		return ""
	}

	return CategoryType(prefix)
}

func (n *Node) Clone() *Node {
	clone := *n
	clone.Config = cloneConfig(n.Config)

	return &clone
}

func cloneConfig(config map[string]any) map[string]any {
	if config == nil {
		return nil
	}

	clone := make(map[string]any, len(config))

	for key, value := range config {
		switch v := value.(type) {
		case map[string]any:
			clone[key] = cloneConfig(v)
		case []any:
			clone[key] = append([]any(nil), v...)
		default:
			clone[key] = v
		}
	}

	return clone
}

// ConfigString returns the string value of key, or "" when absent or not a string.
func (n *Node) ConfigString(key string) string {
	if n.Config == nil {
		return ""
	}

	value, _ := n.Config[key].(string)

	return value
}

// ConfigMap returns a shallow copy of a nested object under key.
func (n *Node) ConfigMap(key string) map[string]any {
	if n.Config == nil {
		return nil
	}

	value, ok := n.Config[key].(map[string]any)
	if !ok {
		return nil
	}

	return maps.Clone(value)
}

// Edge connects two nodes. Label selects the branch of a Logic source ("true" or
// "false"); an empty label means "true". Labels on other sources are ignored.
type Edge struct {
	ID     string `json:"id"     validate:"required"`
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required"`
	Label  string `json:"label,omitempty"`
}

// Branch returns the effective branch label of the edge.
func (e *Edge) Branch() string {
	if e.Label == "" {
		return defaultConditionalTrueBranchID
	}

	return e.Label
}
