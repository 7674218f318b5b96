// Package models defines the domain types shared by the automation graph,
// the execution engine and the run ledger.
package models

import (
	"slices"
	"time"
)

// Workflow is a directed graph of Trigger, Logic and Action nodes owned by a tenant.
// Every saved change produces a new Version; runs pin the version they started with.
type Workflow struct {
	ID          string     `json:"id"                     validate:"required"`
	TenantID    string     `json:"tenant_id"              validate:"required"`
	Name        string     `json:"name"                   validate:"required,min=3"`
	Description string     `json:"description"`
	Version     int        `json:"version"`
	Enabled     bool       `json:"enabled"`
	Nodes       []*Node    `json:"nodes"                  validate:"dive"`
	Edges       []*Edge    `json:"edges"                  validate:"dive"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// Node returns the node with the given id.
func (w *Workflow) Node(id string) (*Node, bool) {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node, true
		}
	}

	return nil, false
}

// Outgoing returns the edges leaving nodeID in declaration order.
func (w *Workflow) Outgoing(nodeID string) []*Edge {
	var edges []*Edge

	for _, edge := range w.Edges {
		if edge.Source == nodeID {
			edges = append(edges, edge)
		}
	}

	return edges
}

// Incoming returns the edges entering nodeID in declaration order.
func (w *Workflow) Incoming(nodeID string) []*Edge {
	var edges []*Edge

	for _, edge := range w.Edges {
		if edge.Target == nodeID {
			edges = append(edges, edge)
		}
	}

	return edges
}

// Triggers returns the trigger nodes of the workflow sorted by id.
func (w *Workflow) Triggers() []*Node {
	var triggers []*Node

	for _, node := range w.Nodes {
		if node.IsTrigger() {
			triggers = append(triggers, node)
		}
	}

	slices.SortFunc(triggers, func(a, b *Node) int {
		if a.ID < b.ID {
			return -1
		}

		if a.ID > b.ID {
			return 1
		}

		return 0
	})

	return triggers
}

// Clone returns a deep copy so that a run can hold a snapshot that later edits never touch.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}

	clone := *w
	clone.Nodes = make([]*Node, 0, len(w.Nodes))

	for _, node := range w.Nodes {
		clone.Nodes = append(clone.Nodes, node.Clone())
	}

	clone.Edges = make([]*Edge, 0, len(w.Edges))

	for _, edge := range w.Edges {
		e := *edge
		clone.Edges = append(clone.Edges, &e)
	}

	if w.PublishedAt != nil {
		published := *w.PublishedAt
		clone.PublishedAt = &published
	}

	return &clone
}
