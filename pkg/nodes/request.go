package nodes

import (
	"context"
	"time"

	"github.com/dukex/agentgraph/pkg/execution"
	"github.com/dukex/agentgraph/pkg/models"
	"github.com/dukex/agentgraph/pkg/protocol"
	"github.com/dukex/agentgraph/pkg/template"
)

// PromptKey is the config key holding the prompt template of a node.
const PromptKey = "prompt"

// BuildRequest assembles the executor request of a node run. The prompt is rendered
// against the current context.
func BuildRequest(spec *models.NodeSpec, exec *execution.Context) (protocol.ExecutorRequest, error) {
	data := exec.TemplateData()

	prompt, err := template.RenderString(ConfigString(spec, PromptKey, ""), data)
	if err != nil {
		return protocol.ExecutorRequest{}, NewExecutionError(spec.ID, "failed to render prompt", err)
	}

	return protocol.ExecutorRequest{
		ExecutionID:    exec.ExecutionID,
		ConversationID: exec.ConversationID,
		NodeID:         spec.ID,
		NodeName:       spec.DisplayName(),
		NodeType:       spec.Type,
		Prompt:         prompt,
		Config:         spec.Config,
		Input:          exec.UserInput(),
		History:        exec.History(),
		Results:        exec.Results(),
		Variables:      exec.Variables(),
		Iteration:      Iteration(exec, spec.ID),
		TemplateData:   data,
	}, nil
}

// Iteration returns how many times a loop-back edge re-triggered the node.
func Iteration(exec *execution.Context, nodeID string) int {
	raw, ok := exec.System(execution.SystemKeyIteration)
	if !ok {
		return 0
	}

	iterations, ok := raw.(map[string]int)
	if !ok {
		return 0
	}

	return iterations[nodeID]
}

// Call runs the executor and closes the stream with the matching terminal signal.
func Call(ctx context.Context, executor protocol.NodeExecutor, spec *models.NodeSpec, req protocol.ExecutorRequest, stream protocol.StreamPublisher) (*protocol.ExecutorOutput, error) {
	if executor == nil {
		return nil, NewExecutionError(spec.ID, "no executor configured", nil)
	}

	if stream == nil {
		stream = protocol.DiscardStream{}
	}

	output, err := executor.Execute(ctx, req, stream)
	if err != nil {
		_ = stream.Fail(ctx, err)

		return nil, AsExecutionError(spec.ID, err)
	}

	if output == nil {
		output = &protocol.ExecutorOutput{}
	}

	_ = stream.Complete(ctx)

	return output, nil
}

// NewInterventionRequest builds the request a node pauses with. The message is rendered
// against the current context and the current results are captured for the reviewer.
func NewInterventionRequest(spec *models.NodeSpec, exec *execution.Context, message string, phase models.PausePhase, allowOutputEdit bool) (*models.HumanInterventionRequest, error) {
	rendered, err := template.RenderString(message, exec.TemplateData())
	if err != nil {
		return nil, NewExecutionError(spec.ID, "failed to render review message", err)
	}

	return &models.HumanInterventionRequest{
		ExecutionID:     exec.ExecutionID,
		NodeID:          spec.ID,
		ConversationID:  exec.ConversationID,
		Message:         rendered,
		ResultsSnapshot: exec.Results(),
		Phase:           phase,
		AllowOutputEdit: allowOutputEdit,
		CreatedAt:       time.Now().UTC(),
	}, nil
}
