// Package act provides the node that performs one unit of work through the executor.
package act

import (
	"context"

	"github.com/dukex/agentgraph/pkg/models"
	"github.com/dukex/agentgraph/pkg/nodes"
	"github.com/dukex/agentgraph/pkg/protocol"
)

// ActNode runs the executor once. With review_output set it pauses after producing its
// output so a reviewer can approve or edit it before downstream nodes run.
type ActNode struct {
	spec            *models.NodeSpec
	executor        protocol.NodeExecutor
	reviewOutput    bool
	allowOutputEdit bool
	reviewMessage   string
}

func NewActNode(spec *models.NodeSpec, executor protocol.NodeExecutor) *ActNode {
	return &ActNode{
		spec:            spec,
		executor:        executor,
		reviewOutput:    nodes.ConfigBool(spec, "review_output", false),
		allowOutputEdit: nodes.ConfigBool(spec, "allow_output_edit", false),
		reviewMessage:   nodes.ConfigString(spec, "review_message", ""),
	}
}

func (n *ActNode) ID() string {
	return n.spec.ID
}

func (n *ActNode) Type() models.NodeType {
	return models.NodeTypeAct
}

func (n *ActNode) Execute(ctx context.Context, in protocol.Input) (protocol.Outcome, error) {
	req, err := nodes.BuildRequest(n.spec, in.Context)
	if err != nil {
		return protocol.Outcome{}, err
	}

	output, err := nodes.Call(ctx, n.executor, n.spec, req, in.Stream)
	if err != nil {
		return protocol.Outcome{}, err
	}

	if !n.reviewOutput {
		return protocol.Continue(output.Content, output.Data), nil
	}

	message := n.reviewMessage
	if message == "" {
		message = "Review the output of " + n.spec.DisplayName()
	}

	request, err := nodes.NewInterventionRequest(n.spec, in.Context, message, models.PausePhaseAfterExecution, n.allowOutputEdit)
	if err != nil {
		return protocol.Outcome{}, err
	}

	outcome := protocol.Pause(request, models.PausePhaseAfterExecution)
	outcome.Content = output.Content
	outcome.Data = output.Data

	return outcome, nil
}
