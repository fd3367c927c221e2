// Package plan provides the node that turns the user input into a plan.
package plan

import (
	"context"
	"strings"

	"github.com/dukex/agentgraph/pkg/models"
	"github.com/dukex/agentgraph/pkg/nodes"
	"github.com/dukex/agentgraph/pkg/protocol"
)

const defaultPrompt = "Create a step by step plan for: {{ .input.normalized }}"

// PlanNode asks the executor for a plan. Non-empty output lines become the plan steps.
type PlanNode struct {
	spec     *models.NodeSpec
	executor protocol.NodeExecutor
}

func NewPlanNode(spec *models.NodeSpec, executor protocol.NodeExecutor) *PlanNode {
	return &PlanNode{spec: spec, executor: executor}
}

func (n *PlanNode) ID() string {
	return n.spec.ID
}

func (n *PlanNode) Type() models.NodeType {
	return models.NodeTypePlan
}

func (n *PlanNode) Execute(ctx context.Context, in protocol.Input) (protocol.Outcome, error) {
	spec := n.spec
	if nodes.ConfigString(spec, nodes.PromptKey, "") == "" {
		spec = withPrompt(spec, defaultPrompt)
	}

	req, err := nodes.BuildRequest(spec, in.Context)
	if err != nil {
		return protocol.Outcome{}, err
	}

	output, err := nodes.Call(ctx, n.executor, spec, req, in.Stream)
	if err != nil {
		return protocol.Outcome{}, err
	}

	data := map[string]any{"steps": Steps(output.Content)}
	for k, v := range output.Data {
		data[k] = v
	}

	return protocol.Continue(output.Content, data), nil
}

// Steps splits plan text into its non-empty lines, dropping list markers.
func Steps(text string) []string {
	var steps []string

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789.) ")

		if line != "" {
			steps = append(steps, line)
		}
	}

	return steps
}

func withPrompt(spec *models.NodeSpec, prompt string) *models.NodeSpec {
	config := make(map[string]any, len(spec.Config)+1)
	for k, v := range spec.Config {
		config[k] = v
	}

	config[nodes.PromptKey] = prompt

	return &models.NodeSpec{ID: spec.ID, Name: spec.Name, Type: spec.Type, Config: config}
}
