package graph

import (
	"errors"
	"fmt"
	"slices"

	"github.com/iotlinker/automation/pkg/models"
)

var (
	ErrNodeNotFound = errors.New("node not found")
	ErrCycle        = errors.New("graph contains a cycle")
)

// Reachable returns the ids of every node reachable from start, start included.
func Reachable(workflow *models.Workflow, start string) map[string]struct{} {
	reachable := map[string]struct{}{start: {}}
	queue := []string{start}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		for _, edge := range workflow.Outgoing(id) {
			if _, ok := workflow.Node(edge.Target); !ok {
				continue
			}

			if _, seen := reachable[edge.Target]; !seen {
				reachable[edge.Target] = struct{}{}
				queue = append(queue, edge.Target)
			}
		}
	}

	return reachable
}

// TopologicalOrder orders the subgraph reachable from start with Kahn's algorithm.
// Ties between ready nodes break by ascending node id so the order is deterministic.
func TopologicalOrder(workflow *models.Workflow, start string) ([]string, error) {
	if _, ok := workflow.Node(start); !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, start)
	}

	reachable := Reachable(workflow, start)
	inDegree := make(map[string]int, len(reachable))
	successors := make(map[string][]string, len(reachable))

	for id := range reachable {
		inDegree[id] = 0
	}

	for _, edge := range workflow.Edges {
		_, sourceOK := reachable[edge.Source]
		_, targetOK := reachable[edge.Target]

		if !sourceOK || !targetOK {
			continue
		}

		inDegree[edge.Target]++
		successors[edge.Source] = append(successors[edge.Source], edge.Target)
	}

	var ready []string

	for id, degree := range inDegree {
		if degree == 0 {
			ready = append(ready, id)
		}
	}

	slices.Sort(ready)

	order := make([]string, 0, len(reachable))

	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		for _, next := range successors[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				pos, _ := slices.BinarySearch(ready, next)
				ready = slices.Insert(ready, pos, next)
			}
		}
	}

	if len(order) != len(reachable) {
		return order, fmt.Errorf("%w reachable from %s", ErrCycle, start)
	}

	return order, nil
}
