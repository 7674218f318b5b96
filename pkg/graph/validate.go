// Package graph implements the structural rules of an automation workflow: publish-time
// validation, reachable topological ordering, trigger matching and DOT export.
package graph

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/iotlinker/automation/pkg/models"
)

// ViolationCode classifies a validation failure.
type ViolationCode string

const (
	ViolationNoTrigger         ViolationCode = "no_trigger"
	ViolationDuplicateNode     ViolationCode = "duplicate_node"
	ViolationDuplicateEdge     ViolationCode = "duplicate_edge"
	ViolationUnknownNodeType   ViolationCode = "unknown_node_type"
	ViolationInvalidConfig     ViolationCode = "invalid_config"
	ViolationDanglingEdge      ViolationCode = "dangling_edge"
	ViolationTriggerInbound    ViolationCode = "trigger_inbound"
	ViolationTriggerNoOutbound ViolationCode = "trigger_no_outbound"
	ViolationMissingInbound    ViolationCode = "missing_inbound"
	ViolationLogicInbound      ViolationCode = "logic_inbound"
	ViolationLogicBranches     ViolationCode = "logic_branches"
	ViolationInvalidLabel      ViolationCode = "invalid_label"
	ViolationActionOutbound    ViolationCode = "action_outbound"
	ViolationCycle             ViolationCode = "cycle"
)

// Violation is a single reason a workflow cannot be published.
type Violation struct {
	Code    ViolationCode `json:"code"`
	NodeID  string        `json:"node_id,omitempty"`
	EdgeID  string        `json:"edge_id,omitempty"`
	Message string        `json:"message"`
}

func (v Violation) String() string {
	var ref string

	switch {
	case v.EdgeID != "":
		ref = "edge " + v.EdgeID
	case v.NodeID != "":
		ref = "node " + v.NodeID
	default:
		ref = "workflow"
	}

	return fmt.Sprintf("%s (%s): %s", v.Code, ref, v.Message)
}

// ValidationError wraps the violations of a rejected workflow.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}

	return "workflow is invalid: " + strings.Join(parts, "; ")
}

// AsError returns nil for an empty list and a *ValidationError otherwise.
func AsError(violations []Violation) error {
	if len(violations) == 0 {
		return nil
	}

	return &ValidationError{Violations: violations}
}

// IsValidationError reports whether err carries graph violations.
func IsValidationError(err error) bool {
	var validationErr *ValidationError

	return errors.As(err, &validationErr)
}

// NodeCheck is an additional per-node config check, e.g. an action schema check.
type NodeCheck func(node *models.Node) error

var knownNodeTypes = map[string]models.CategoryType{
	models.NodeTypeTriggerDeviceData: models.CategoryTypeTrigger,
	models.NodeTypeTriggerSchedule:   models.CategoryTypeTrigger,
	models.NodeTypeLogicConditional:  models.CategoryTypeLogic,
}

// Validate checks a workflow against the publish rules and returns the violations in a
// stable order: node checks, edge checks, cardinality checks, cycles. A nil result
// means the workflow may be published.
func Validate(workflow *models.Workflow, checks ...NodeCheck) []Violation {
	var violations []Violation

	nodes := make(map[string]*models.Node, len(workflow.Nodes))
	triggers := 0

	for _, node := range workflow.Nodes {
		if _, exists := nodes[node.ID]; exists {
			violations = append(violations, Violation{
				Code: ViolationDuplicateNode, NodeID: node.ID, Message: "node id is used more than once",
			})

			continue
		}

		nodes[node.ID] = node

		if node.IsTrigger() {
			triggers++
		}

		violations = append(violations, checkNode(node, checks)...)
	}

	if triggers == 0 {
		violations = append(violations, Violation{
			Code: ViolationNoTrigger, Message: "workflow needs at least one trigger node",
		})
	}

	edgeIDs := make(map[string]struct{}, len(workflow.Edges))

	for _, edge := range workflow.Edges {
		if _, exists := edgeIDs[edge.ID]; exists {
			violations = append(violations, Violation{
				Code: ViolationDuplicateEdge, EdgeID: edge.ID, Message: "edge id is used more than once",
			})
		}

		edgeIDs[edge.ID] = struct{}{}

		for _, end := range []string{edge.Source, edge.Target} {
			if _, ok := nodes[end]; !ok {
				violations = append(violations, Violation{
					Code:    ViolationDanglingEdge,
					EdgeID:  edge.ID,
					Message: fmt.Sprintf("edge references unknown node %q", end),
				})
			}
		}

		if source, ok := nodes[edge.Source]; ok && source.IsLogic() {
			if branch := edge.Branch(); branch != models.OutputPortTrue && branch != models.OutputPortFalse {
				violations = append(violations, Violation{
					Code:    ViolationInvalidLabel,
					EdgeID:  edge.ID,
					Message: fmt.Sprintf("logic edge label must be %q or %q, got %q", models.OutputPortTrue, models.OutputPortFalse, edge.Label),
				})
			}
		}
	}

	for _, node := range workflow.Nodes {
		if nodes[node.ID] != node {
			continue
		}

		violations = append(violations, checkCardinality(workflow, node, nodes)...)
	}

	return append(violations, findCycles(workflow, nodes)...)
}

func checkNode(node *models.Node, checks []NodeCheck) []Violation {
	var violations []Violation

	typeCategory := node.TypeCategory()
	if typeCategory == "" || typeCategory != node.Category {
		return []Violation{{
			Code:    ViolationUnknownNodeType,
			NodeID:  node.ID,
			Message: fmt.Sprintf("node type %q does not belong to category %q", node.Type, node.Category),
		}}
	}

	if !node.IsAction() {
		if _, known := knownNodeTypes[node.Type]; !known {
			return []Violation{{
				Code:    ViolationUnknownNodeType,
				NodeID:  node.ID,
				Message: fmt.Sprintf("unknown node type %q", node.Type),
			}}
		}
	}

	var err error

	switch node.Type {
	case models.NodeTypeTriggerDeviceData:
		_, err = models.ParseDeviceDataConfig(node)
	case models.NodeTypeTriggerSchedule:
		_, err = models.ParseScheduleConfig(node)
	case models.NodeTypeLogicConditional:
		_, err = models.ParseConditionalConfig(node)
	}

	if err != nil {
		violations = append(violations, Violation{Code: ViolationInvalidConfig, NodeID: node.ID, Message: err.Error()})
	}

	for _, check := range checks {
		if err := check(node); err != nil {
			violations = append(violations, Violation{Code: ViolationInvalidConfig, NodeID: node.ID, Message: err.Error()})
		}
	}

	return violations
}

func checkCardinality(workflow *models.Workflow, node *models.Node, nodes map[string]*models.Node) []Violation {
	var (
		violations []Violation
		inbound    = knownEdges(workflow.Incoming(node.ID), nodes)
		outbound   = knownEdges(workflow.Outgoing(node.ID), nodes)
	)

	switch node.Category {
	case models.CategoryTypeTrigger:
		for _, edge := range inbound {
			violations = append(violations, Violation{
				Code:    ViolationTriggerInbound,
				NodeID:  node.ID,
				EdgeID:  edge.ID,
				Message: "trigger nodes cannot have inbound edges",
			})
		}

		if len(outbound) == 0 {
			violations = append(violations, Violation{
				Code: ViolationTriggerNoOutbound, NodeID: node.ID, Message: "trigger node has no outbound edge",
			})
		}
	case models.CategoryTypeLogic:
		if len(inbound) != 1 {
			violations = append(violations, Violation{
				Code:    ViolationLogicInbound,
				NodeID:  node.ID,
				Message: fmt.Sprintf("logic node needs exactly one inbound edge, has %d", len(inbound)),
			})
		}

		branches := make([]string, 0, len(outbound))
		for _, edge := range outbound {
			branches = append(branches, edge.Branch())
		}

		slices.Sort(branches)

		if !slices.Equal(branches, []string{models.OutputPortFalse, models.OutputPortTrue}) {
			violations = append(violations, Violation{
				Code:    ViolationLogicBranches,
				NodeID:  node.ID,
				Message: fmt.Sprintf("logic node needs exactly one %q and one %q edge, has %v", models.OutputPortTrue, models.OutputPortFalse, branches),
			})
		}
	case models.CategoryTypeAction:
		if len(inbound) == 0 {
			violations = append(violations, Violation{
				Code: ViolationMissingInbound, NodeID: node.ID, Message: "action node is unreachable",
			})
		}

		if len(outbound) > 0 {
			violations = append(violations, Violation{
				Code: ViolationActionOutbound, NodeID: node.ID, Message: "action nodes are terminal",
			})
		}
	}

	return violations
}

func knownEdges(edges []*models.Edge, nodes map[string]*models.Node) []*models.Edge {
	known := edges[:0:0]

	for _, edge := range edges {
		_, sourceOK := nodes[edge.Source]
		_, targetOK := nodes[edge.Target]

		if sourceOK && targetOK {
			known = append(known, edge)
		}
	}

	return known
}

type color int

const (
	white color = iota
	grey
	black
)

// findCycles runs a depth-first search and reports every edge that closes a cycle.
func findCycles(workflow *models.Workflow, nodes map[string]*models.Node) []Violation {
	var violations []Violation

	adjacency := make(map[string][]*models.Edge, len(nodes))
	for _, edge := range knownEdges(workflow.Edges, nodes) {
		adjacency[edge.Source] = append(adjacency[edge.Source], edge)
	}

	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	colors := make(map[string]color, len(nodes))

	var visit func(id string)
	visit = func(id string) {
		colors[id] = grey

		for _, edge := range adjacency[id] {
			switch colors[edge.Target] {
			case grey:
				violations = append(violations, Violation{
					Code:    ViolationCycle,
					NodeID:  edge.Target,
					EdgeID:  edge.ID,
					Message: fmt.Sprintf("edge %s -> %s closes a cycle", edge.Source, edge.Target),
				})
			case white:
				visit(edge.Target)
			case black:
			}
		}

		colors[id] = black
	}

	for _, id := range ids {
		if colors[id] == white {
			visit(id)
		}
	}

	return violations
}

// fatalCodes are the violations that make a snapshot impossible to execute. Cardinality
// and config problems are publish-time rules; the engine tolerates them at run time.
var fatalCodes = map[ViolationCode]struct{}{
	ViolationDuplicateNode:   {},
	ViolationUnknownNodeType: {},
	ViolationDanglingEdge:    {},
	ViolationTriggerInbound:  {},
	ViolationInvalidLabel:    {},
	ViolationCycle:           {},
}

// Integrity returns the violations that prevent executing a workflow snapshot.
func Integrity(workflow *models.Workflow) []Violation {
	var fatal []Violation

	for _, violation := range Validate(workflow) {
		if _, ok := fatalCodes[violation.Code]; ok {
			fatal = append(fatal, violation)
		}
	}

	return fatal
}
