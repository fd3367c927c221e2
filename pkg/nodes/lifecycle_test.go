package nodes_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dukex/agentgraph/pkg/events"
	"github.com/dukex/agentgraph/pkg/execution"
	"github.com/dukex/agentgraph/pkg/mocks"
	"github.com/dukex/agentgraph/pkg/models"
	"github.com/dukex/agentgraph/pkg/nodes"
	"github.com/dukex/agentgraph/pkg/protocol"
	"github.com/dukex/agentgraph/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type stubNode struct {
	spec    *models.NodeSpec
	outcome protocol.Outcome
	err     error
	panics  bool
}

func (n *stubNode) ID() string            { return n.spec.ID }
func (n *stubNode) Type() models.NodeType { return n.spec.Type }

func (n *stubNode) Execute(_ context.Context, _ protocol.Input) (protocol.Outcome, error) {
	if n.panics {
		panic("boom")
	}

	return n.outcome, n.err
}

type retryHint struct{}

func (retryHint) Error() string   { return "gateway unavailable" }
func (retryHint) Retryable() bool { return true }

func newContext() *execution.Context {
	return execution.NewContext("exec-1", "conv-1", models.UserInput{Raw: "hello"}, 3)
}

func TestLifecycle_Continue(t *testing.T) {
	sink := &mocks.RecordingSink{}
	logs := &mocks.MockNodeLogRepository{}
	logs.On("Start", mock.Anything, mock.Anything).Return(nil).Once()
	logs.On("Finish", mock.Anything, mock.MatchedBy(func(entry *models.NodeExecution) bool {
		return entry.Status == models.NodeStatusSucceeded && entry.Output == "done"
	})).Return(nil).Once()

	lifecycle := nodes.NewLifecycle(nil, nodes.WithEventSink(sink), nodes.WithAuditLog(logs))
	spec := testutil.CreateTestNode("A")
	exec := newContext()

	outcome, err := lifecycle.Run(context.Background(), spec, &stubNode{spec: spec, outcome: protocol.Continue("done", nil)}, exec)
	require.NoError(t, err)
	assert.Equal(t, protocol.OutcomeContinue, outcome.Kind)

	result, ok := exec.Result("A")
	require.True(t, ok)
	assert.Equal(t, "done", result.Content)
	assert.Equal(t, models.NodeStatusSucceeded, result.Status)
	assert.Equal(t, 1, exec.Progress().Current)
	assert.Equal(t, []string{"A"}, exec.ExecutedNodeIDs())
	assert.Equal(t, []events.EventType{events.NodeStartingEvent, events.NodeCompletedEvent}, sink.Types())

	logs.AssertExpectations(t)
}

func TestLifecycle_ProgressCountsNodeOnce(t *testing.T) {
	lifecycle := nodes.NewLifecycle(nil)
	spec := testutil.CreateTestNode("A")
	exec := newContext()
	node := &stubNode{spec: spec, outcome: protocol.Continue("done", nil)}

	for range 3 {
		_, err := lifecycle.Run(context.Background(), spec, node, exec)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, exec.Progress().Current)
}

func TestLifecycle_AuditFailuresAreSwallowed(t *testing.T) {
	logs := &mocks.MockNodeLogRepository{}
	logs.On("Start", mock.Anything, mock.Anything).Return(errors.New("disk full"))
	logs.On("Finish", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	lifecycle := nodes.NewLifecycle(nil, nodes.WithAuditLog(logs))
	spec := testutil.CreateTestNode("A")
	exec := newContext()

	outcome, err := lifecycle.Run(context.Background(), spec, &stubNode{spec: spec, outcome: protocol.Continue("ok", nil)}, exec)
	require.NoError(t, err)
	assert.Equal(t, "ok", outcome.Content)

	logs.AssertNumberOfCalls(t, "Start", 1)
	logs.AssertNumberOfCalls(t, "Finish", 1)
}

func TestLifecycle_AuditInput(t *testing.T) {
	logs := &mocks.MockNodeLogRepository{}

	var inputs []map[string]any

	logs.On("Start", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		inputs = append(inputs, args.Get(1).(*models.NodeExecution).Input)
	}).Return(nil)
	logs.On("Finish", mock.Anything, mock.Anything).Return(nil)

	lifecycle := nodes.NewLifecycle(nil, nodes.WithAuditLog(logs))
	exec := newContext()

	first := testutil.CreateTestNode("A")
	second := testutil.CreateTestNode("B")

	_, err := lifecycle.Run(context.Background(), first, &stubNode{spec: first, outcome: protocol.Continue("a", nil)}, exec)
	require.NoError(t, err)
	_, err = lifecycle.Run(context.Background(), second, &stubNode{spec: second, outcome: protocol.Continue("b", nil)}, exec)
	require.NoError(t, err)

	require.Len(t, inputs, 2)
	assert.Contains(t, inputs[0], "user_input")
	assert.Contains(t, inputs[1], "results")
}

func TestLifecycle_Failure(t *testing.T) {
	sink := &mocks.RecordingSink{}
	lifecycle := nodes.NewLifecycle(nil, nodes.WithEventSink(sink))
	spec := testutil.CreateTestNode("A")
	exec := newContext()

	_, err := lifecycle.Run(context.Background(), spec, &stubNode{spec: spec, err: retryHint{}}, exec)
	require.Error(t, err)

	var nodeErr *nodes.NodeExecutionError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, "A", nodeErr.NodeID)
	assert.True(t, nodeErr.Retryable)
	assert.ErrorIs(t, err, nodes.ErrNodeExecution)

	_, stored := exec.Result("A")
	assert.False(t, stored)
	assert.Equal(t, 0, exec.Progress().Current)

	failed := sink.NodeEvents(events.NodeFailedEvent)
	require.Len(t, failed, 1)
	assert.True(t, failed[0].Retryable)
}

func TestLifecycle_PanicBecomesNodeError(t *testing.T) {
	lifecycle := nodes.NewLifecycle(nil)
	spec := testutil.CreateTestNode("A")

	_, err := lifecycle.Run(context.Background(), spec, &stubNode{spec: spec, panics: true}, newContext())
	require.Error(t, err)
	assert.ErrorIs(t, err, nodes.ErrNodeExecution)
	assert.Contains(t, err.Error(), "boom")
}

func TestLifecycle_Route(t *testing.T) {
	lifecycle := nodes.NewLifecycle(nil)
	spec := testutil.CreateTestNode("router", testutil.WithType(models.NodeTypeRoute))
	exec := newContext()

	outcome, err := lifecycle.Run(context.Background(), spec, &stubNode{spec: spec, outcome: protocol.Route("X", nil)}, exec)
	require.NoError(t, err)
	assert.Equal(t, "X", outcome.Decision)

	result, ok := exec.Result("router")
	require.True(t, ok)
	assert.Equal(t, "X", result.Content)
	assert.Equal(t, "X", result.Data["decision"])
}

func TestLifecycle_Pause(t *testing.T) {
	tests := []struct {
		name        string
		phase       models.PausePhase
		content     any
		storeResult bool
	}{
		{name: "before execution", phase: models.PausePhaseBeforeExecution, storeResult: false},
		{name: "after execution", phase: models.PausePhaseAfterExecution, content: "draft", storeResult: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &mocks.RecordingSink{}
			lifecycle := nodes.NewLifecycle(nil, nodes.WithEventSink(sink))
			spec := testutil.CreateTestNode("H")
			exec := newContext()

			request := &models.HumanInterventionRequest{NodeID: "H", Message: "approve?", Phase: tt.phase}
			outcome := protocol.Pause(request, tt.phase)
			outcome.Content = tt.content

			got, err := lifecycle.Run(context.Background(), spec, &stubNode{spec: spec, outcome: outcome}, exec)
			require.NoError(t, err)
			assert.Equal(t, protocol.OutcomePause, got.Kind)
			assert.Same(t, request, exec.Review().PendingRequest)

			_, stored := exec.Result("H")
			assert.Equal(t, tt.storeResult, stored)

			paused := sink.NodeEvents(events.NodePausedEvent)
			require.Len(t, paused, 1)
			assert.Equal(t, string(tt.phase), paused[0].Metadata["phase"])
		})
	}
}

func TestEventStream_OrderedChunks(t *testing.T) {
	sink := &mocks.RecordingSink{}
	spec := testutil.CreateTestNode("A")
	stream := nodes.NewEventStream(sink, newContext(), spec)

	ctx := context.Background()
	require.NoError(t, stream.Chunk(ctx, "hel"))
	require.NoError(t, stream.Chunk(ctx, "lo"))
	require.NoError(t, stream.Complete(ctx))
	require.NoError(t, stream.Chunk(ctx, "late"))

	recorded := sink.Events()
	require.Len(t, recorded, 3)

	for i, event := range recorded {
		chunk, ok := event.(*events.OutputChunk)
		require.True(t, ok)
		assert.Equal(t, i, chunk.Sequence)
		assert.Equal(t, i == 2, chunk.Final)
	}
}
