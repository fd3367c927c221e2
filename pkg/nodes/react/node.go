// Package react provides the reasoning and acting loop node.
package react

import (
	"context"
	"strings"

	"github.com/dukex/agentgraph/pkg/models"
	"github.com/dukex/agentgraph/pkg/nodes"
	"github.com/dukex/agentgraph/pkg/protocol"
)

const (
	DefaultMaxIterations = 5
	FinalPrefix          = "FINAL:"
)

// ReactNode calls the executor in rounds, feeding back the previous rounds as history,
// until the executor reports done, answers with a FINAL: line or the round budget is spent.
type ReactNode struct {
	spec          *models.NodeSpec
	executor      protocol.NodeExecutor
	maxIterations int
}

func NewReactNode(spec *models.NodeSpec, executor protocol.NodeExecutor) *ReactNode {
	maxIterations := nodes.ConfigInt(spec, "max_iterations", DefaultMaxIterations)
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	return &ReactNode{spec: spec, executor: executor, maxIterations: maxIterations}
}

func (n *ReactNode) ID() string {
	return n.spec.ID
}

func (n *ReactNode) Type() models.NodeType {
	return models.NodeTypeReact
}

func (n *ReactNode) Execute(ctx context.Context, in protocol.Input) (protocol.Outcome, error) {
	req, err := nodes.BuildRequest(n.spec, in.Context)
	if err != nil {
		return protocol.Outcome{}, err
	}

	history := req.History
	steps := make([]string, 0, n.maxIterations)

	var last string

	for round := 1; round <= n.maxIterations; round++ {
		if err := ctx.Err(); err != nil {
			return protocol.Outcome{}, nodes.NewExecutionError(n.spec.ID, "react loop interrupted", err)
		}

		req.History = history
		req.Config = withRound(n.spec.Config, round)

		output, err := n.call(ctx, req, in.Stream)
		if err != nil {
			return protocol.Outcome{}, err
		}

		last = output.Content
		steps = append(steps, last)

		if answer, final := finalAnswer(output); final {
			return protocol.Continue(answer, map[string]any{
				"iterations": round,
				"steps":      steps,
				"final":      true,
			}), nil
		}

		history = append(history, models.Message{
			Role:    models.RoleAssistant,
			Content: last,
			NodeID:  n.spec.ID,
		})
	}

	in.Log().WarnContext(ctx, "React loop reached its iteration budget", "max_iterations", n.maxIterations)

	return protocol.Continue(last, map[string]any{
		"iterations": n.maxIterations,
		"steps":      steps,
		"final":      false,
	}), nil
}

// call runs one round. Only the last round's terminal signal reaches the stream, so
// rounds stream their chunks through a view that ignores completion.
func (n *ReactNode) call(ctx context.Context, req protocol.ExecutorRequest, stream protocol.StreamPublisher) (*protocol.ExecutorOutput, error) {
	if stream == nil {
		stream = protocol.DiscardStream{}
	}

	output, err := nodes.Call(ctx, n.executor, n.spec, req, roundStream{stream})
	if err != nil {
		_ = stream.Fail(ctx, err)

		return nil, err
	}

	if _, final := finalAnswer(output); final || req.Config["round"] == n.maxIterations {
		_ = stream.Complete(ctx)
	}

	return output, nil
}

func finalAnswer(output *protocol.ExecutorOutput) (string, bool) {
	for _, line := range strings.Split(output.Content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, FinalPrefix) {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, FinalPrefix)), true
		}
	}

	if output.Done {
		return strings.TrimSpace(output.Content), true
	}

	return "", false
}

func withRound(config map[string]any, round int) map[string]any {
	out := make(map[string]any, len(config)+1)
	for k, v := range config {
		out[k] = v
	}

	out["round"] = round

	return out
}

type roundStream struct {
	protocol.StreamPublisher
}

func (roundStream) Complete(context.Context) error    { return nil }
func (roundStream) Fail(context.Context, error) error { return nil }
