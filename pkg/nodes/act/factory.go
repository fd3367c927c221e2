package act

import (
	"context"

	"github.com/dukex/agentgraph/pkg/models"
	"github.com/dukex/agentgraph/pkg/protocol"
)

// ActNodeFactory creates ActNode instances.
type ActNodeFactory struct{}

func NewActNodeFactory() protocol.NodeFactory {
	return &ActNodeFactory{}
}

func (f *ActNodeFactory) Create(_ context.Context, spec *models.NodeSpec, deps protocol.Dependencies) (protocol.Node, error) {
	return NewActNode(spec, deps.Executor), nil
}

func (f *ActNodeFactory) ID() models.NodeType {
	return models.NodeTypeAct
}

func (f *ActNodeFactory) Name() string {
	return "Act"
}

func (f *ActNodeFactory) Description() string {
	return "Performs one step of work, optionally pausing for a review of its output"
}

// Schema returns the JSON schema for Act node configuration.
func (f *ActNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt": map[string]any{
				"type":        "string",
				"description": "Prompt template sent to the executor",
			},
			"review_output": map[string]any{
				"type":        "boolean",
				"description": "Pause after producing output until a reviewer resumes the run",
				"default":     false,
			},
			"allow_output_edit": map[string]any{
				"type":        "boolean",
				"description": "Let the reviewer replace the produced output on resume",
				"default":     false,
			},
			"review_message": map[string]any{
				"type":        "string",
				"description": "Message template shown to the reviewer",
			},
		},
	}
}
