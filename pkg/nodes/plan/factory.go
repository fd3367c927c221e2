package plan

import (
	"context"

	"github.com/dukex/agentgraph/pkg/models"
	"github.com/dukex/agentgraph/pkg/protocol"
)

// PlanNodeFactory creates PlanNode instances.
type PlanNodeFactory struct{}

func NewPlanNodeFactory() protocol.NodeFactory {
	return &PlanNodeFactory{}
}

func (f *PlanNodeFactory) Create(_ context.Context, spec *models.NodeSpec, deps protocol.Dependencies) (protocol.Node, error) {
	return NewPlanNode(spec, deps.Executor), nil
}

func (f *PlanNodeFactory) ID() models.NodeType {
	return models.NodeTypePlan
}

func (f *PlanNodeFactory) Name() string {
	return "Plan"
}

func (f *PlanNodeFactory) Description() string {
	return "Produces a step by step plan from the user input"
}

// Schema returns the JSON schema for Plan node configuration.
func (f *PlanNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt": map[string]any{
				"type":        "string",
				"description": "Prompt template. Has access to input, results, variables and history.",
				"examples": []string{
					"Plan how to answer: {{ .input.normalized }}",
				},
			},
		},
	}
}
