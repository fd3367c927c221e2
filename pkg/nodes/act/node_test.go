package act

import (
	"context"
	"errors"
	"testing"

	"github.com/dukex/agentgraph/pkg/execution"
	"github.com/dukex/agentgraph/pkg/models"
	"github.com/dukex/agentgraph/pkg/nodes"
	"github.com/dukex/agentgraph/pkg/protocol"
	"github.com/dukex/agentgraph/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActNode_RendersPrompt(t *testing.T) {
	spec := testutil.CreateTestNode("write", testutil.WithConfig(map[string]any{
		"prompt": "Answer {{ .input.normalized }} using {{ .results.plan.text }}",
	}))

	exec := execution.NewContext("exec-1", "conv-1", models.UserInput{Raw: "  the   question "}, 2)
	exec.SetResult(models.NodeResult{NodeID: "plan", Content: "step one", Status: models.NodeStatusSucceeded})

	var got protocol.ExecutorRequest

	executor := protocol.NodeExecutorFunc(func(_ context.Context, req protocol.ExecutorRequest, _ protocol.StreamPublisher) (*protocol.ExecutorOutput, error) {
		got = req

		return &protocol.ExecutorOutput{Content: "answer", Data: map[string]any{"tokens": 3}}, nil
	})

	outcome, err := NewActNode(spec, executor).Execute(context.Background(), protocol.Input{Context: exec})
	require.NoError(t, err)

	assert.Equal(t, "Answer the question using step one", got.Prompt)
	assert.Equal(t, "write", got.NodeID)
	assert.Equal(t, models.NodeTypeAct, got.NodeType)
	assert.Contains(t, got.Results, "plan")

	assert.Equal(t, protocol.OutcomeContinue, outcome.Kind)
	assert.Equal(t, "answer", outcome.Content)
	assert.Equal(t, 3, outcome.Data["tokens"])
}

func TestActNode_ReviewOutput(t *testing.T) {
	spec := testutil.CreateTestNode("draft", testutil.WithConfig(map[string]any{
		"prompt":            "Draft a reply",
		"review_output":     true,
		"allow_output_edit": true,
	}))

	executor := protocol.NodeExecutorFunc(func(context.Context, protocol.ExecutorRequest, protocol.StreamPublisher) (*protocol.ExecutorOutput, error) {
		return &protocol.ExecutorOutput{Content: "Dear customer"}, nil
	})

	exec := execution.NewContext("exec-1", "conv-1", models.UserInput{}, 1)

	outcome, err := NewActNode(spec, executor).Execute(context.Background(), protocol.Input{Context: exec})
	require.NoError(t, err)

	assert.Equal(t, protocol.OutcomePause, outcome.Kind)
	assert.Equal(t, models.PausePhaseAfterExecution, outcome.Phase)
	assert.Equal(t, "Dear customer", outcome.Content)
	require.NotNil(t, outcome.Request)
	assert.True(t, outcome.Request.AllowOutputEdit)
	assert.Equal(t, models.PausePhaseAfterExecution, outcome.Request.Phase)
	assert.Equal(t, "Review the output of Test Node draft", outcome.Request.Message)
}

func TestActNode_ExecutorFailure(t *testing.T) {
	spec := testutil.CreateTestNode("write")

	executor := protocol.NodeExecutorFunc(func(context.Context, protocol.ExecutorRequest, protocol.StreamPublisher) (*protocol.ExecutorOutput, error) {
		return nil, nodes.NewRetryableError("", "rate limited", errors.New("429"))
	})

	_, err := NewActNode(spec, executor).Execute(context.Background(), protocol.Input{Context: execution.NewContext("e", "c", models.UserInput{}, 1)})
	require.Error(t, err)
	assert.True(t, nodes.IsRetryable(err))

	var nodeErr *nodes.NodeExecutionError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, "write", nodeErr.NodeID)
}

func TestActNode_NoExecutor(t *testing.T) {
	spec := testutil.CreateTestNode("write")

	_, err := NewActNode(spec, nil).Execute(context.Background(), protocol.Input{Context: execution.NewContext("e", "c", models.UserInput{}, 1)})
	require.Error(t, err)
	assert.ErrorIs(t, err, nodes.ErrNodeExecution)
}
