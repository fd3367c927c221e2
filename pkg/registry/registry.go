// Package registry maps node types to the factories that build them.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/dukex/agentgraph/pkg/graph"
	"github.com/dukex/agentgraph/pkg/models"
	"github.com/dukex/agentgraph/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

type Registry struct {
	logger    *slog.Logger
	factories map[models.NodeType]protocol.NodeFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}

	return &Registry{
		logger:    log,
		factories: make(map[models.NodeType]protocol.NodeFactory),
	}
}

func (r *Registry) RegisterNode(factory protocol.NodeFactory) {
	r.factories[factory.ID()] = factory
}

// Factory returns the factory registered for a node type.
func (r *Registry) Factory(nodeType models.NodeType) (protocol.NodeFactory, bool) {
	factory, ok := r.factories[nodeType]

	return factory, ok
}

// Types returns every registered node type in lexical order.
func (r *Registry) Types() []models.NodeType {
	types := make([]models.NodeType, 0, len(r.factories))
	for nodeType := range r.factories {
		types = append(types, nodeType)
	}

	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	return types
}

// ValidateConfig checks a node config against the schema of its factory.
func (r *Registry) ValidateConfig(spec *models.NodeSpec) error {
	factory, ok := r.factories[spec.Type]
	if !ok {
		return &graph.GraphConfigError{NodeID: spec.ID, Field: "type", Reason: fmt.Sprintf("node type '%s' not registered", spec.Type)}
	}

	config := spec.Config
	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(factory.Schema()), gojsonschema.NewGoLoader(config))
	if err != nil {
		return graph.NewGraphConfigError(spec.ID, "invalid config schema", err)
	}

	if !result.Valid() {
		var errors []string
		for _, resultErr := range result.Errors() {
			errors = append(errors, resultErr.String())
		}

		return &graph.GraphConfigError{
			NodeID: spec.ID,
			Field:  "config",
			Reason: "config validation failed: " + strings.Join(errors, "; "),
		}
	}

	return nil
}

// CreateNode validates the config of a node and builds it.
func (r *Registry) CreateNode(ctx context.Context, spec *models.NodeSpec, deps protocol.Dependencies) (protocol.Node, error) {
	if err := r.ValidateConfig(spec); err != nil {
		return nil, err
	}

	node, err := r.factories[spec.Type].Create(ctx, spec, deps)
	if err != nil {
		return nil, graph.NewGraphConfigError(spec.ID, "failed to create node", err)
	}

	return node, nil
}

// Build creates every node of a graph. The first failure in lexical node order is returned.
func (r *Registry) Build(ctx context.Context, g *models.Graph, deps protocol.Dependencies) (map[string]protocol.Node, error) {
	deps.Graph = g
	if deps.Logger == nil {
		deps.Logger = r.logger
	}

	built := make(map[string]protocol.Node, len(g.Nodes))

	for _, id := range g.NodeIDs() {
		node, err := r.CreateNode(ctx, g.Nodes[id], deps)
		if err != nil {
			return nil, err
		}

		built[id] = node
	}

	r.logger.DebugContext(ctx, "Built graph nodes", "graph_id", g.ID, "nodes", len(built))

	return built, nil
}
