package route

import (
	"context"

	"github.com/dukex/agentgraph/pkg/models"
	"github.com/dukex/agentgraph/pkg/protocol"
)

// RouteNodeFactory creates RouteNode instances.
type RouteNodeFactory struct{}

func NewRouteNodeFactory() protocol.NodeFactory {
	return &RouteNodeFactory{}
}

func (f *RouteNodeFactory) Create(_ context.Context, spec *models.NodeSpec, deps protocol.Dependencies) (protocol.Node, error) {
	return NewRouteNode(spec, deps.Graph, deps.Executor)
}

func (f *RouteNodeFactory) ID() models.NodeType {
	return models.NodeTypeRoute
}

func (f *RouteNodeFactory) Name() string {
	return "Route"
}

func (f *RouteNodeFactory) Description() string {
	return "Selects one downstream branch from rules, the executor answer or a default"
}

// Schema returns the JSON schema for Route node configuration.
func (f *RouteNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt": map[string]any{
				"type":        "string",
				"description": "Prompt asking the executor to answer with a candidate id, name or stop",
			},
			"default": map[string]any{
				"type":        "string",
				"description": "Candidate used when nothing else matches. Defaults to stop.",
			},
			"rules": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"when":   map[string]any{"type": "string"},
						"target": map[string]any{"type": "string"},
					},
					"required": []string{"target"},
				},
				"examples": []any{
					[]map[string]any{
						{"when": `{{ eq .results.classify.text "billing" }}`, "target": "billing"},
					},
				},
			},
		},
	}
}
