package plan

import (
	"context"
	"testing"

	"github.com/dukex/agentgraph/pkg/execution"
	"github.com/dukex/agentgraph/pkg/models"
	"github.com/dukex/agentgraph/pkg/protocol"
	"github.com/dukex/agentgraph/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanNode_DefaultPrompt(t *testing.T) {
	spec := testutil.CreateTestNode("plan", testutil.WithType(models.NodeTypePlan), testutil.WithConfig(nil))

	var prompt string

	executor := protocol.NodeExecutorFunc(func(_ context.Context, req protocol.ExecutorRequest, _ protocol.StreamPublisher) (*protocol.ExecutorOutput, error) {
		prompt = req.Prompt

		return &protocol.ExecutorOutput{Content: "1. read the ticket\n2. answer\n\n"}, nil
	})

	exec := execution.NewContext("e", "c", models.UserInput{Raw: "refund   my order"}, 1)

	outcome, err := NewPlanNode(spec, executor).Execute(context.Background(), protocol.Input{Context: exec})
	require.NoError(t, err)

	assert.Equal(t, "Create a step by step plan for: refund my order", prompt)
	assert.Equal(t, []string{"read the ticket", "answer"}, outcome.Data["steps"])
	assert.Nil(t, spec.Config[`prompt`])
}

func TestSteps(t *testing.T) {
	assert.Equal(t, []string{"first", "second", "third"}, Steps("- first\n* second\n3) third"))
	assert.Empty(t, Steps("  \n "))
}
