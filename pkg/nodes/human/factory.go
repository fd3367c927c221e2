package human

import (
	"context"

	"github.com/dukex/agentgraph/pkg/models"
	"github.com/dukex/agentgraph/pkg/protocol"
)

// HumanNodeFactory creates HumanNode instances.
type HumanNodeFactory struct{}

func NewHumanNodeFactory() protocol.NodeFactory {
	return &HumanNodeFactory{}
}

func (f *HumanNodeFactory) Create(_ context.Context, spec *models.NodeSpec, _ protocol.Dependencies) (protocol.Node, error) {
	return NewHumanNode(spec), nil
}

func (f *HumanNodeFactory) ID() models.NodeType {
	return models.NodeTypeHuman
}

func (f *HumanNodeFactory) Name() string {
	return "Human"
}

func (f *HumanNodeFactory) Description() string {
	return "Waits for a human to approve or reject before downstream nodes run"
}

// Schema returns the JSON schema for Human node configuration.
func (f *HumanNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Message template shown to the reviewer",
				"examples": []string{
					"Approve the refund for {{ .input.raw }}?",
				},
			},
		},
	}
}
