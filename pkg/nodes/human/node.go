// Package human provides the approval gate node.
package human

import (
	"context"

	"github.com/dukex/agentgraph/pkg/models"
	"github.com/dukex/agentgraph/pkg/nodes"
	"github.com/dukex/agentgraph/pkg/protocol"
)

const (
	Approved = "approved"
	Rejected = "rejected"
)

// HumanNode pauses the run until a decision for it is present in the context. It does
// no work on its own, so the pause always happens before execution.
type HumanNode struct {
	spec    *models.NodeSpec
	message string
}

func NewHumanNode(spec *models.NodeSpec) *HumanNode {
	return &HumanNode{
		spec:    spec,
		message: nodes.ConfigString(spec, "message", "Approval required for "+spec.DisplayName()),
	}
}

func (n *HumanNode) ID() string {
	return n.spec.ID
}

func (n *HumanNode) Type() models.NodeType {
	return models.NodeTypeHuman
}

func (n *HumanNode) Execute(_ context.Context, in protocol.Input) (protocol.Outcome, error) {
	review := in.Context.Review()

	if review.Decided(n.spec.ID) {
		decision := Rejected
		if *review.Approved {
			decision = Approved
		}

		return protocol.Continue(decision, map[string]any{
			"approved": *review.Approved,
			"comments": review.Comments,
		}), nil
	}

	request, err := nodes.NewInterventionRequest(n.spec, in.Context, n.message, models.PausePhaseBeforeExecution, false)
	if err != nil {
		return protocol.Outcome{}, err
	}

	return protocol.Pause(request, models.PausePhaseBeforeExecution), nil
}
