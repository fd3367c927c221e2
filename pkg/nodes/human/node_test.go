package human

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

func TestHumanNode_PausesWithoutDecision(t *testing.T) {
	spec := testutil.CreateTestNode("approve",
		testutil.WithType(models.NodeTypeHuman),
		testutil.WithConfig(map[string]any{"message": "Refund {{ .input.raw }}?"}))

	exec := execution.NewContext("exec-1", "conv-1", models.UserInput{Raw: "order 42"}, 2)
	exec.SetResult(models.NodeResult{NodeID: "classify", Content: "refund", Status: models.NodeStatusSucceeded})

	outcome, err := NewHumanNode(spec).Execute(context.Background(), protocol.Input{Context: exec})
	require.NoError(t, err)

	assert.Equal(t, protocol.OutcomePause, outcome.Kind)
	assert.Equal(t, models.PausePhaseBeforeExecution, outcome.Phase)
	require.NotNil(t, outcome.Request)
	assert.Equal(t, "Refund order 42?", outcome.Request.Message)
	assert.Equal(t, "exec-1", outcome.Request.ExecutionID)
	assert.Equal(t, "conv-1", outcome.Request.ConversationID)
	assert.Contains(t, outcome.Request.ResultsSnapshot, "classify")
	assert.False(t, outcome.Request.AllowOutputEdit)
}

func TestHumanNode_ContinuesWithDecision(t *testing.T) {
	tests := []struct {
		name     string
		approved bool
		content  string
	}{
		{name: "approved", approved: true, content: Approved},
		{name: "rejected", approved: false, content: Rejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := testutil.CreateTestNode("approve", testutil.WithType(models.NodeTypeHuman))
			exec := execution.NewContext("exec-1", "conv-1", models.UserInput{}, 1)

			approved := tt.approved
			exec.SetReview(models.HumanReview{NodeID: "approve", Approved: &approved, Comments: "checked"})

			outcome, err := NewHumanNode(spec).Execute(context.Background(), protocol.Input{Context: exec})
			require.NoError(t, err)

			assert.Equal(t, protocol.OutcomeContinue, outcome.Kind)
			assert.Equal(t, tt.content, outcome.Content)
			assert.Equal(t, tt.approved, outcome.Data["approved"])
			assert.Equal(t, "checked", outcome.Data["comments"])
		})
	}
}

func TestHumanNode_DecisionForOtherNodeIsIgnored(t *testing.T) {
	spec := testutil.CreateTestNode("second", testutil.WithType(models.NodeTypeHuman))
	exec := execution.NewContext("exec-1", "conv-1", models.UserInput{}, 2)

	approved := true
	exec.SetReview(models.HumanReview{NodeID: "first", Approved: &approved})

	outcome, err := NewHumanNode(spec).Execute(context.Background(), protocol.Input{Context: exec})
	require.NoError(t, err)
	assert.Equal(t, protocol.OutcomePause, outcome.Kind)
}
