package react

import (
	"context"

	"github.com/dukex/agentgraph/pkg/models"
	"github.com/dukex/agentgraph/pkg/protocol"
)

// ReactNodeFactory creates ReactNode instances.
type ReactNodeFactory struct{}

func NewReactNodeFactory() protocol.NodeFactory {
	return &ReactNodeFactory{}
}

func (f *ReactNodeFactory) Create(_ context.Context, spec *models.NodeSpec, deps protocol.Dependencies) (protocol.Node, error) {
	return NewReactNode(spec, deps.Executor), nil
}

func (f *ReactNodeFactory) ID() models.NodeType {
	return models.NodeTypeReact
}

func (f *ReactNodeFactory) Name() string {
	return "React"
}

func (f *ReactNodeFactory) Description() string {
	return "Alternates reasoning and acting rounds until a final answer is produced"
}

// Schema returns the JSON schema for React node configuration.
func (f *ReactNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt": map[string]any{
				"type":        "string",
				"description": "Prompt template sent on every round",
			},
			"max_iterations": map[string]any{
				"type":        "integer",
				"minimum":     1,
				"default":     DefaultMaxIterations,
				"description": "Upper bound on reasoning rounds",
			},
		},
	}
}
