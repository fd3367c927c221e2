// Package models defines the core domain models for agent workflow graphs and their executions.
package models

import "sort"

// NodeType is the step-type tag stored on every node spec.
type NodeType string

const (
	NodeTypePlan  NodeType = "plan"  // Produces a plan from the user input
	NodeTypeAct   NodeType = "act"   // Performs one step of work
	NodeTypeRoute NodeType = "route" // Selects one downstream branch
	NodeTypeHuman NodeType = "human" // Waits for a human decision
	NodeTypeReact NodeType = "react" // Reasoning/acting loop
)

// EdgeKind defines how an edge participates in scheduling.
type EdgeKind string

const (
	// EdgeKindDependency is an ordinary "runs after" edge.
	EdgeKindDependency EdgeKind = "dependency"
	// EdgeKindConditional connects a router to one of its candidate branches.
	EdgeKindConditional EdgeKind = "conditional"
	// EdgeKindLoopBack re-triggers an already completed node. It is never counted as a dependency.
	EdgeKindLoopBack EdgeKind = "loop_back"
)

// DefaultLoopIterations bounds a loop-back edge that does not set MaxIterations.
const DefaultLoopIterations = 3

// Edge connects two nodes of a graph.
type Edge struct {
	Source        string   `json:"source"                   yaml:"source"                   validate:"required"`
	Target        string   `json:"target"                   yaml:"target"                   validate:"required"`
	Kind          EdgeKind `json:"kind"                     yaml:"kind"                     validate:"omitempty,oneof=dependency conditional loop_back"`
	Condition     string   `json:"condition,omitempty"      yaml:"condition,omitempty"`
	MaxIterations int      `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty" validate:"gte=0"`
}

// IsLoopBack reports whether the edge is excluded from dependency counting.
func (e *Edge) IsLoopBack() bool {
	return e.Kind == EdgeKindLoopBack
}

// Iterations returns the effective iteration budget of a loop-back edge.
func (e *Edge) Iterations() int {
	if e.MaxIterations > 0 {
		return e.MaxIterations
	}

	return DefaultLoopIterations
}

// NodeSpec is the immutable definition of one workflow step.
type NodeSpec struct {
	ID     string         `json:"id"               yaml:"id"               validate:"required"`
	Name   string         `json:"name"             yaml:"name"`
	Type   NodeType       `json:"type"             yaml:"type"             validate:"required,oneof=plan act route human react"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// DisplayName returns the node name, falling back to its id.
func (n *NodeSpec) DisplayName() string {
	if n.Name != "" {
		return n.Name
	}

	return n.ID
}

// Graph is the immutable definition of a workflow.
type Graph struct {
	ID          string               `json:"id"            yaml:"id"`
	Name        string               `json:"name"          yaml:"name"`
	Nodes       map[string]*NodeSpec `json:"nodes"         yaml:"nodes"         validate:"required,min=1,dive"`
	Edges       []*Edge              `json:"edges"         yaml:"edges"         validate:"dive"`
	StartNodeID string               `json:"start_node_id" yaml:"start_node_id" validate:"required"`
}

// Node returns the spec of a node, or nil.
func (g *Graph) Node(id string) *NodeSpec {
	return g.Nodes[id]
}

// NodeIDs returns every node id in lexical order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// Outgoing returns the edges leaving a node, optionally restricted to the given kinds.
func (g *Graph) Outgoing(id string, kinds ...EdgeKind) []*Edge {
	return g.filterEdges(func(e *Edge) bool { return e.Source == id }, kinds)
}

// Incoming returns the edges entering a node, optionally restricted to the given kinds.
func (g *Graph) Incoming(id string, kinds ...EdgeKind) []*Edge {
	return g.filterEdges(func(e *Edge) bool { return e.Target == id }, kinds)
}

// Candidates returns the targets of a router's conditional edges in declaration order.
func (g *Graph) Candidates(routerID string) []string {
	var candidates []string

	for _, edge := range g.Outgoing(routerID, EdgeKindConditional) {
		candidates = append(candidates, edge.Target)
	}

	return candidates
}

func (g *Graph) filterEdges(match func(*Edge) bool, kinds []EdgeKind) []*Edge {
	var edges []*Edge

	for _, edge := range g.Edges {
		if !match(edge) {
			continue
		}

		if len(kinds) > 0 && !containsKind(kinds, edge.EffectiveKind()) {
			continue
		}

		edges = append(edges, edge)
	}

	return edges
}

// EffectiveKind treats an empty kind as a dependency edge.
func (e *Edge) EffectiveKind() EdgeKind {
	if e.Kind == "" {
		return EdgeKindDependency
	}

	return e.Kind
}

func containsKind(kinds []EdgeKind, kind EdgeKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}

	return false
}
