// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/dukex/agentgraph/pkg/models"
	"github.com/google/uuid"
)

// CreateTestNode creates a test NodeSpec with default values that can be overridden.
func CreateTestNode(id string, overrides ...func(*models.NodeSpec)) *models.NodeSpec {
	node := &models.NodeSpec{
		ID:     id,
		Name:   "Test Node " + id,
		Type:   models.NodeTypeAct,
		Config: map[string]any{"output": id + " done"},
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithType sets the node type.
func WithType(nodeType models.NodeType) func(*models.NodeSpec) {
	return func(n *models.NodeSpec) {
		n.Type = nodeType
	}
}

// WithConfig sets the node configuration.
func WithConfig(config map[string]any) func(*models.NodeSpec) {
	return func(n *models.NodeSpec) {
		n.Config = config
	}
}

// WithConfigValue sets a single configuration key.
func WithConfigValue(key string, value any) func(*models.NodeSpec) {
	return func(n *models.NodeSpec) {
		if n.Config == nil {
			n.Config = map[string]any{}
		}

		n.Config[key] = value
	}
}

// WithName sets the node name.
func WithName(name string) func(*models.NodeSpec) {
	return func(n *models.NodeSpec) {
		n.Name = name
	}
}

// GraphBuilder assembles graphs for tests.
type GraphBuilder struct {
	graph *models.Graph
}

// NewGraph starts a graph with a random id.
func NewGraph() *GraphBuilder {
	return &GraphBuilder{graph: &models.Graph{
		ID:    uuid.New().String(),
		Name:  "Test Graph",
		Nodes: map[string]*models.NodeSpec{},
	}}
}

// Node adds a node. The first node added is the start node.
func (b *GraphBuilder) Node(id string, overrides ...func(*models.NodeSpec)) *GraphBuilder {
	b.graph.Nodes[id] = CreateTestNode(id, overrides...)

	if b.graph.StartNodeID == "" {
		b.graph.StartNodeID = id
	}

	return b
}

// Nodes adds default act nodes.
func (b *GraphBuilder) Nodes(ids ...string) *GraphBuilder {
	for _, id := range ids {
		b.Node(id)
	}

	return b
}

// Edge adds a dependency edge.
func (b *GraphBuilder) Edge(source, target string) *GraphBuilder {
	b.graph.Edges = append(b.graph.Edges, &models.Edge{Source: source, Target: target, Kind: models.EdgeKindDependency})

	return b
}

// Conditional adds a router candidate edge.
func (b *GraphBuilder) Conditional(source, target string) *GraphBuilder {
	b.graph.Edges = append(b.graph.Edges, &models.Edge{Source: source, Target: target, Kind: models.EdgeKindConditional})

	return b
}

// LoopBack adds a loop-back edge with a condition and an iteration budget.
func (b *GraphBuilder) LoopBack(source, target, condition string, maxIterations int) *GraphBuilder {
	b.graph.Edges = append(b.graph.Edges, &models.Edge{
		Source:        source,
		Target:        target,
		Kind:          models.EdgeKindLoopBack,
		Condition:     condition,
		MaxIterations: maxIterations,
	})

	return b
}

// Start overrides the start node.
func (b *GraphBuilder) Start(id string) *GraphBuilder {
	b.graph.StartNodeID = id

	return b
}

// Build returns the graph.
func (b *GraphBuilder) Build() *models.Graph {
	return b.graph
}

// LinearGraph builds a chain of act nodes in the given order.
func LinearGraph(ids ...string) *models.Graph {
	b := NewGraph().Nodes(ids...)

	for i := 1; i < len(ids); i++ {
		b.Edge(ids[i-1], ids[i])
	}

	return b.Build()
}

// DiamondGraph builds A→B, A→C, B→D, C→D.
func DiamondGraph() *models.Graph {
	return NewGraph().
		Nodes("A", "B", "C", "D").
		Edge("A", "B").
		Edge("A", "C").
		Edge("B", "D").
		Edge("C", "D").
		Build()
}

// RouterGraph builds start→router with candidates X and Y, Y→Y2, and X, Y2 joining at end.
func RouterGraph() *models.Graph {
	return NewGraph().
		Node("start").
		Node("router", WithType(models.NodeTypeRoute), WithConfig(map[string]any{"prompt": "pick a branch"})).
		Nodes("X", "Y", "Y2", "end").
		Edge("start", "router").
		Conditional("router", "X").
		Conditional("router", "Y").
		Edge("Y", "Y2").
		Edge("X", "end").
		Edge("Y2", "end").
		Build()
}
