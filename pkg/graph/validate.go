package graph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dukex/agentgraph/pkg/models"
	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})

	return validate
}

// Validate checks the structural invariants of a graph: struct constraints, that every
// edge references existing nodes, that the start node exists and that conditional edges
// leave a route node. Cycles are reported by Sort.
func Validate(g *models.Graph) error {
	if g == nil {
		return &GraphConfigError{Reason: "graph is nil"}
	}

	// Nil entries are rejected before the struct validator and the checks below
	// dereference them.
	for id, node := range g.Nodes {
		if node == nil {
			return &GraphConfigError{NodeID: id, Field: fmt.Sprintf("nodes[%s]", id), Reason: "node is null"}
		}
	}

	for i, edge := range g.Edges {
		if edge == nil {
			return &GraphConfigError{Field: fmt.Sprintf("edges[%d]", i), Reason: "edge is null"}
		}
	}

	if err := structValidator().Struct(g); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			first := validationErrors[0]

			return &GraphConfigError{
				Field:  first.Namespace(),
				Reason: fmt.Sprintf("failed on the '%s' rule", first.Tag()),
				Err:    err,
			}
		}

		return &GraphConfigError{Reason: "invalid graph", Err: err}
	}

	for id, node := range g.Nodes {
		if node.ID != id {
			return &GraphConfigError{NodeID: id, Field: "id", Reason: fmt.Sprintf("node is registered under %q but declares id %q", id, node.ID)}
		}
	}

	if g.Node(g.StartNodeID) == nil {
		return &GraphConfigError{Field: "start_node_id", Reason: fmt.Sprintf("start node %q does not exist", g.StartNodeID)}
	}

	for i, edge := range g.Edges {
		if g.Node(edge.Source) == nil {
			return &GraphConfigError{Field: fmt.Sprintf("edges[%d].source", i), Reason: fmt.Sprintf("unknown node %q", edge.Source)}
		}

		if g.Node(edge.Target) == nil {
			return &GraphConfigError{Field: fmt.Sprintf("edges[%d].target", i), Reason: fmt.Sprintf("unknown node %q", edge.Target)}
		}

		if edge.Source == edge.Target && !edge.IsLoopBack() {
			return &GraphConfigError{NodeID: edge.Source, Field: fmt.Sprintf("edges[%d]", i), Reason: "self edge must be a loop_back edge"}
		}

		if edge.EffectiveKind() == models.EdgeKindConditional && g.Node(edge.Source).Type != models.NodeTypeRoute {
			return &GraphConfigError{NodeID: edge.Source, Field: fmt.Sprintf("edges[%d].kind", i), Reason: "conditional edges must leave a route node"}
		}
	}

	return nil
}
