package graph

import (
	"fmt"
	"strconv"

	"github.com/awalterschulze/gographviz"
	"github.com/iotlinker/automation/pkg/models"
)

var categoryShapes = map[models.CategoryType]string{
	models.CategoryTypeTrigger: "invhouse",
	models.CategoryTypeLogic:   "diamond",
	models.CategoryTypeAction:  "box",
}

// ToDOT renders the workflow as a Graphviz digraph. Logic edges are labelled with
// their branch.
func ToDOT(workflow *models.Workflow) (string, error) {
	g := gographviz.NewGraph()

	if err := g.SetName(strconv.Quote(workflow.ID)); err != nil {
		return "", err
	}

	if err := g.SetDir(true); err != nil {
		return "", err
	}

	for _, node := range workflow.Nodes {
		label := node.Name
		if label == "" {
			label = node.ID
		}

		attrs := map[string]string{
			"label":   strconv.Quote(label),
			"shape":   categoryShapes[node.Category],
			"tooltip": strconv.Quote(node.Type),
		}
		if attrs["shape"] == "" {
			attrs["shape"] = "ellipse"
		}

		if err := g.AddNode(g.Name, strconv.Quote(node.ID), attrs); err != nil {
			return "", fmt.Errorf("failed to add node %s: %w", node.ID, err)
		}
	}

	for _, edge := range workflow.Edges {
		attrs := map[string]string{}

		if source, ok := workflow.Node(edge.Source); ok && source.IsLogic() {
			attrs["label"] = strconv.Quote(edge.Branch())
		}

		if err := g.AddEdge(strconv.Quote(edge.Source), strconv.Quote(edge.Target), true, attrs); err != nil {
			return "", fmt.Errorf("failed to add edge %s: %w", edge.ID, err)
		}
	}

	return g.String(), nil
}
