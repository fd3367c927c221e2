package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dukex/agentgraph/pkg/events"
	"github.com/dukex/agentgraph/pkg/executors/static"
	"github.com/dukex/agentgraph/pkg/graph"
	"github.com/dukex/agentgraph/pkg/mocks"
	"github.com/dukex/agentgraph/pkg/models"
	"github.com/dukex/agentgraph/pkg/persistence"
	"github.com/dukex/agentgraph/pkg/persistence/file"
	"github.com/dukex/agentgraph/pkg/persistence/memory"
	"github.com/dukex/agentgraph/pkg/registry"
	"github.com/dukex/agentgraph/pkg/scheduler"
	"github.com/dukex/agentgraph/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	engine *Engine
	store  persistence.Persistence
	pauses *memory.PauseStore
	sink   *mocks.RecordingSink
}

func newFixture(t *testing.T, strategy scheduler.Strategy) *fixture {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	pauses := memory.NewPauseStore()
	sink := &mocks.RecordingSink{}

	e, err := New(nil, registry.NewDefaultRegistry(), store.Executions(), pauses,
		WithStrategy(strategy),
		WithExecutor(static.New(nil)),
		WithEventSink(sink),
		WithNodeLog(store.NodeLogs()),
	)
	require.NoError(t, err)

	return &fixture{engine: e, store: store, pauses: pauses, sink: sink}
}

// withEngine runs the test body once per scheduling strategy.
func withEngine(t *testing.T, body func(t *testing.T, f *fixture)) {
	t.Helper()

	for _, strategy := range []scheduler.Strategy{scheduler.StrategyLevel, scheduler.StrategyEvent} {
		t.Run(string(strategy), func(t *testing.T) {
			body(t, newFixture(t, strategy))
		})
	}
}

func (f *fixture) record(t *testing.T, conversationID string) *models.Execution {
	t.Helper()

	record, err := f.engine.Status(context.Background(), conversationID)
	require.NoError(t, err)

	return record
}

func (f *fixture) output(t *testing.T, nodeID string) any {
	t.Helper()

	var found []any

	for _, event := range f.sink.NodeEvents(events.NodeCompletedEvent) {
		if event.NodeID == nodeID {
			found = append(found, event.Output)
		}
	}

	require.NotEmpty(t, found, "node %s never completed", nodeID)

	return found[len(found)-1]
}

func reviewGraph() *models.Graph {
	return testutil.NewGraph().
		Node("plan", testutil.WithType(models.NodeTypePlan), testutil.WithConfig(map[string]any{
			"output": "plan for {{ .input.normalized }}",
		})).
		Node("gate", testutil.WithType(models.NodeTypeHuman), testutil.WithConfigValue("message", "Approve?")).
		Node("act", testutil.WithConfigValue("output", "acting on {{ .results.plan.text }}")).
		Edge("plan", "gate").
		Edge("gate", "act").
		Build()
}

func draftGraph() *models.Graph {
	return testutil.NewGraph().
		Node("draft", testutil.WithConfig(map[string]any{
			"output":            "draft text",
			"review_output":     true,
			"allow_output_edit": true,
		})).
		Node("final", testutil.WithConfigValue("output", "final: {{ .results.draft.text }}")).
		Edge("draft", "final").
		Build()
}

func TestNew_RequiresCollaborators(t *testing.T) {
	store := file.NewPersistence(t.TempDir())

	_, err := New(nil, nil, store.Executions(), memory.NewPauseStore())
	assert.Error(t, err)

	_, err = New(nil, registry.NewDefaultRegistry(), nil, memory.NewPauseStore())
	assert.Error(t, err)

	_, err = New(nil, registry.NewDefaultRegistry(), store.Executions(), nil)
	assert.Error(t, err)

	_, err = New(nil, registry.NewDefaultRegistry(), store.Executions(), memory.NewPauseStore(), WithStrategy("random"))
	assert.Error(t, err)
}

func TestWithConfig_KeepsDefaultsForZeroFields(t *testing.T) {
	store := file.NewPersistence(t.TempDir())

	e, err := New(nil, registry.NewDefaultRegistry(), store.Executions(), memory.NewPauseStore(),
		WithConfig(Config{Strategy: scheduler.StrategyEvent}))
	require.NoError(t, err)

	assert.Equal(t, scheduler.StrategyEvent, e.Config().Strategy)
	assert.Equal(t, scheduler.DefaultConcurrency, e.Config().Concurrency)
	assert.Equal(t, DefaultPauseTTL, e.Config().PauseTTL)
	assert.Equal(t, DefaultAuditTTL, e.Config().AuditTTL)
}

func TestExecute_Linear(t *testing.T) {
	withEngine(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()

		result, err := f.engine.Execute(ctx, testutil.LinearGraph("A", "B", "C"), Initial{
			ConversationID: "conv-linear",
			UserInput:      "  hello   there ",
		})
		require.NoError(t, err)

		assert.Equal(t, models.ResultStatusSuccess, result.Status)
		assert.Equal(t, "conv-linear", result.ConversationID)
		assert.Equal(t, 3, result.CompletedCount)
		assert.NoError(t, result.Err)

		record := f.record(t, "conv-linear")
		assert.Equal(t, models.ExecutionStatusSucceeded, record.Status)
		assert.Equal(t, int64(2), record.Version)
		assert.NotNil(t, record.CompletedAt)

		for _, id := range []string{"A", "B", "C"} {
			assert.Equal(t, models.NodeStatusSucceeded, record.NodeStatuses[id])
		}

		entries, err := f.store.NodeLogs().ListByExecution(ctx, result.ExecutionID)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, "A", entries[0].NodeID)
		assert.Equal(t, map[string]any{"raw": "  hello   there ", "normalized": "hello there"}, entries[0].Input["user_input"])

		types := f.sink.Types()
		require.NotEmpty(t, types)
		assert.Equal(t, events.DagStartEvent, types[0])
		assert.Equal(t, events.DagCompleteEvent, types[len(types)-1])
	})
}

func TestExecute_GeneratesConversationID(t *testing.T) {
	f := newFixture(t, scheduler.StrategyLevel)

	result, err := f.engine.Execute(context.Background(), testutil.LinearGraph("A"), Initial{UserInput: "hi"})
	require.NoError(t, err)

	assert.NotEmpty(t, result.ConversationID)
	assert.NotEmpty(t, result.ExecutionID)
}

func TestExecute_RouterSkipsBranch(t *testing.T) {
	withEngine(t, func(t *testing.T, f *fixture) {
		g := testutil.RouterGraph()
		g.Nodes["router"].Config = map[string]any{
			"rules": []any{
				map[string]any{"when": `{{ eq .input.normalized "go left" }}`, "target": "X"},
				map[string]any{"when": `{{ eq .input.normalized "go right" }}`, "target": "Y"},
			},
		}

		result, err := f.engine.Execute(context.Background(), g, Initial{ConversationID: "conv-route", UserInput: "go left"})
		require.NoError(t, err)
		require.Equal(t, models.ResultStatusSuccess, result.Status)

		record := f.record(t, "conv-route")
		assert.Equal(t, models.NodeStatusSucceeded, record.NodeStatuses["X"])
		assert.Equal(t, models.NodeStatusSkipped, record.NodeStatuses["Y"])
		assert.Equal(t, models.NodeStatusSkipped, record.NodeStatuses["Y2"])
		assert.Equal(t, models.NodeStatusSucceeded, record.NodeStatuses["end"])
		assert.Equal(t, "end done", f.output(t, "end"))
	})
}

func TestExecute_NodeFailure(t *testing.T) {
	withEngine(t, func(t *testing.T, f *fixture) {
		g := testutil.NewGraph().
			Node("A").
			Node("B", testutil.WithConfig(map[string]any{
				"fail":         true,
				"fail_message": "upstream timeout",
				"retryable":    true,
			})).
			Node("C").
			Edge("A", "B").
			Edge("B", "C").
			Build()

		result, err := f.engine.Execute(context.Background(), g, Initial{ConversationID: "conv-fail", UserInput: "hi"})
		require.NoError(t, err)

		assert.Equal(t, models.ResultStatusFailed, result.Status)
		assert.Equal(t, "B", result.FailedNodeID)
		assert.True(t, result.Retryable)
		assert.ErrorIs(t, result.Err, static.ErrSimulatedFailure)
		assert.Contains(t, result.Message, "upstream timeout")

		record := f.record(t, "conv-fail")
		assert.Equal(t, models.ExecutionStatusFailed, record.Status)
		assert.Equal(t, models.NodeStatusSucceeded, record.NodeStatuses["A"])
		assert.Equal(t, models.NodeStatusFailed, record.NodeStatuses["B"])
		assert.NotEqual(t, models.NodeStatusSucceeded, record.NodeStatuses["C"])
		assert.NotEmpty(t, record.ErrorMessage)
	})
}

func TestExecute_ConfigErrorsBeforeAnyNodeRuns(t *testing.T) {
	tests := []struct {
		name  string
		graph func() *models.Graph
		check func(t *testing.T, err error)
	}{
		{
			name: "missing start node",
			graph: func() *models.Graph {
				return testutil.NewGraph().Nodes("A", "B").Edge("A", "B").Start("missing").Build()
			},
			check: func(t *testing.T, err error) {
				assert.True(t, graph.IsGraphConfigError(err))
			},
		},
		{
			name: "unknown node type",
			graph: func() *models.Graph {
				return testutil.NewGraph().Node("A", testutil.WithType("teleport")).Build()
			},
			check: func(t *testing.T, err error) {
				assert.Error(t, err)
			},
		},
		{
			name: "cycle",
			graph: func() *models.Graph {
				return testutil.NewGraph().Nodes("A", "B", "C").Edge("A", "B").Edge("B", "C").Edge("C", "B").Build()
			},
			check: func(t *testing.T, err error) {
				assert.True(t, graph.IsCyclicDependency(err) || graph.IsGraphConfigError(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, scheduler.StrategyLevel)

			result, err := f.engine.Execute(context.Background(), tt.graph(), Initial{ConversationID: "conv-bad", UserInput: "hi"})
			require.Error(t, err)
			assert.Nil(t, result)
			tt.check(t, err)

			_, err = f.engine.Status(context.Background(), "conv-bad")
			assert.True(t, persistence.IsExecutionNotFound(err))
			assert.Empty(t, f.sink.Events())
		})
	}
}

func TestExecute_InterruptedRunIsFailed(t *testing.T) {
	withEngine(t, func(t *testing.T, f *fixture) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		result, err := f.engine.Execute(ctx, testutil.LinearGraph("A", "B"), Initial{ConversationID: "conv-cancel", UserInput: "hi"})
		require.NoError(t, err)

		assert.Equal(t, models.ResultStatusFailed, result.Status)
		assert.True(t, IsInterrupted(result.Err))
		assert.ErrorIs(t, result.Err, context.Canceled)

		// The record is written even though the caller's context is gone.
		assert.Equal(t, models.ExecutionStatusFailed, f.record(t, "conv-cancel").Status)
	})
}

func TestExecute_StreamsChunks(t *testing.T) {
	f := newFixture(t, scheduler.StrategyEvent)

	g := testutil.NewGraph().
		Node("speak", testutil.WithConfig(map[string]any{"output": "abcdef", "chunk_size": 2})).
		Build()

	result, err := f.engine.Execute(context.Background(), g, Initial{ConversationID: "conv-stream", UserInput: "hi"})
	require.NoError(t, err)
	require.Equal(t, models.ResultStatusSuccess, result.Status)

	chunks := 0

	for _, eventType := range f.sink.Types() {
		if eventType == events.NodeOutputChunkEvent {
			chunks++
		}
	}

	assert.Equal(t, 3, chunks)
	assert.Equal(t, "abcdef", f.output(t, "speak"))
}

func TestHumanGate_ResumeApproved(t *testing.T) {
	withEngine(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()

		result, err := f.engine.Execute(ctx, reviewGraph(), Initial{ConversationID: "conv-gate", UserInput: "refund order 42"})
		require.NoError(t, err)
		require.Equal(t, models.ResultStatusPaused, result.Status)
		assert.Equal(t, "gate", result.PausedNodeID)
		assert.Equal(t, "Approve?", result.Message)
		assert.Equal(t, 1, result.CompletedCount)

		record := f.record(t, "conv-gate")
		assert.Equal(t, models.ExecutionStatusPaused, record.Status)
		assert.Equal(t, "gate", record.PausedNodeID)
		assert.Equal(t, models.PausePhaseBeforeExecution, record.PausedPhase)
		assert.Equal(t, models.NodeStatusPending, record.NodeStatuses["gate"])
		require.NotNil(t, record.Snapshot)
		assert.Equal(t, []string{"plan"}, record.Snapshot.ExecutedNodeIDs)

		request, err := f.engine.PendingReview(ctx, "conv-gate")
		require.NoError(t, err)
		assert.Equal(t, "Approve?", request.Message)
		assert.Equal(t, models.PausePhaseBeforeExecution, request.Phase)
		assert.Equal(t, record.ID, request.ExecutionID)
		assert.False(t, request.AllowOutputEdit)

		resumed, err := f.engine.Resume(ctx, "conv-gate", ResumeRequest{Approved: true, Comments: "go ahead"})
		require.NoError(t, err)
		require.Equal(t, models.ResultStatusSuccess, resumed.Status)
		assert.Equal(t, record.ID, resumed.ExecutionID)
		assert.Equal(t, 3, resumed.CompletedCount)

		assert.Equal(t, "approved", f.output(t, "gate"))
		assert.Equal(t, "acting on plan for refund order 42", f.output(t, "act"))

		done := f.record(t, "conv-gate")
		assert.Equal(t, models.ExecutionStatusSucceeded, done.Status)
		assert.Empty(t, done.PausedNodeID)

		_, err = f.pauses.Get(ctx, "conv-gate", "gate")
		assert.True(t, persistence.IsPauseStateNotFound(err))

		archived, err := f.pauses.GetArchived(ctx, "conv-gate", "gate")
		require.NoError(t, err)
		require.NotNil(t, archived.Approved)
		assert.True(t, *archived.Approved)
		assert.Equal(t, "go ahead", archived.Comments)

		assert.Contains(t, f.sink.Types(), events.DagResumedEvent)
	})
}

func TestHumanGate_ResumeRejected(t *testing.T) {
	withEngine(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()

		_, err := f.engine.Execute(ctx, reviewGraph(), Initial{ConversationID: "conv-reject", UserInput: "delete everything"})
		require.NoError(t, err)

		resumed, err := f.engine.Resume(ctx, "conv-reject", ResumeRequest{Approved: false, Comments: "too risky"})
		require.NoError(t, err)

		assert.Equal(t, models.ResultStatusSuccess, resumed.Status)
		assert.Equal(t, "rejected", f.output(t, "gate"))
	})
}

func TestReviewAfterExecution_ModifiedOutput(t *testing.T) {
	withEngine(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()

		result, err := f.engine.Execute(ctx, draftGraph(), Initial{ConversationID: "conv-draft", UserInput: "write"})
		require.NoError(t, err)
		require.Equal(t, models.ResultStatusPaused, result.Status)
		assert.Equal(t, "draft", result.PausedNodeID)

		record := f.record(t, "conv-draft")
		assert.Equal(t, models.ExecutionStatusPausedForReview, record.Status)
		assert.Equal(t, models.PausePhaseAfterExecution, record.PausedPhase)
		assert.Equal(t, models.NodeStatusSucceeded, record.NodeStatuses["draft"])
		require.NotNil(t, record.Snapshot)
		assert.Equal(t, "draft text", record.Snapshot.NodeResults["draft"].Text())

		request, err := f.engine.PendingReview(ctx, "conv-draft")
		require.NoError(t, err)
		assert.True(t, request.AllowOutputEdit)
		assert.Equal(t, models.PausePhaseAfterExecution, request.Phase)

		resumed, err := f.engine.Resume(ctx, "conv-draft", ResumeRequest{
			Approved:       true,
			ModifiedOutput: "edited text",
		})
		require.NoError(t, err)
		require.Equal(t, models.ResultStatusSuccess, resumed.Status)

		assert.Equal(t, "final: edited text", f.output(t, "final"))
	})
}

func TestResume_FallsBackToRecordWhenCacheIsEmpty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, scheduler.StrategyLevel)

	_, err := f.engine.Execute(ctx, reviewGraph(), Initial{ConversationID: "conv-restart", UserInput: "hi"})
	require.NoError(t, err)

	// A fresh engine over the same records but an empty pause-state store.
	restarted, err := New(nil, registry.NewDefaultRegistry(), f.store.Executions(), memory.NewPauseStore(),
		WithExecutor(static.New(nil)),
		WithEventSink(f.sink),
	)
	require.NoError(t, err)

	request, err := restarted.PendingReview(ctx, "conv-restart")
	require.NoError(t, err)
	assert.Equal(t, "Approve?", request.Message)

	resumed, err := restarted.Resume(ctx, "conv-restart", ResumeRequest{Approved: true})
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusSuccess, resumed.Status)
}

func TestResume_ContextEdits(t *testing.T) {
	withEngine(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()

		g := testutil.NewGraph().
			Node("gate", testutil.WithType(models.NodeTypeHuman)).
			Node("echo", testutil.WithConfigValue("output", "{{ .input.raw }} / {{ .variables.tone }}")).
			Edge("gate", "echo").
			Build()

		_, err := f.engine.Execute(ctx, g, Initial{
			ConversationID: "conv-edit",
			UserInput:      "old question",
			Variables:      map[string]any{"tone": "formal"},
		})
		require.NoError(t, err)

		resumed, err := f.engine.Resume(ctx, "conv-edit", ResumeRequest{
			Approved: true,
			ContextEdits: map[string]any{
				models.SnapshotFieldUserInput:       "new question",
				models.SnapshotFieldCustomVariables: map[string]any{"tone": "casual"},
			},
		})
		require.NoError(t, err)
		require.Equal(t, models.ResultStatusSuccess, resumed.Status)

		assert.Equal(t, "new question / casual", f.output(t, "echo"))
	})
}

func TestResume_RejectsReadOnlyEdits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, scheduler.StrategyLevel)

	_, err := f.engine.Execute(ctx, reviewGraph(), Initial{ConversationID: "conv-readonly", UserInput: "hi"})
	require.NoError(t, err)

	_, err = f.engine.Resume(ctx, "conv-readonly", ResumeRequest{
		Approved:     true,
		ContextEdits: map[string]any{"executed_node_ids": []string{}},
	})
	require.ErrorIs(t, err, models.ErrFieldNotEditable)

	// The run stays paused and can still be resumed.
	assert.Equal(t, models.ExecutionStatusPaused, f.record(t, "conv-readonly").Status)

	resumed, err := f.engine.Resume(ctx, "conv-readonly", ResumeRequest{Approved: true})
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusSuccess, resumed.Status)
}

func TestResume_NotPaused(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, scheduler.StrategyLevel)

	_, err := f.engine.Execute(ctx, testutil.LinearGraph("A"), Initial{ConversationID: "conv-done", UserInput: "hi"})
	require.NoError(t, err)

	_, err = f.engine.Resume(ctx, "conv-done", ResumeRequest{Approved: true})
	assert.ErrorIs(t, err, ErrNotPaused)

	_, err = f.engine.PendingReview(ctx, "conv-done")
	assert.ErrorIs(t, err, ErrNotPaused)

	_, err = f.engine.Resume(ctx, "conv-unknown", ResumeRequest{Approved: true})
	assert.True(t, persistence.IsExecutionNotFound(err))
}

func TestResume_SecondResumeOfSamePause(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, scheduler.StrategyLevel)

	_, err := f.engine.Execute(ctx, reviewGraph(), Initial{ConversationID: "conv-twice", UserInput: "hi"})
	require.NoError(t, err)

	_, err = f.engine.Resume(ctx, "conv-twice", ResumeRequest{Approved: true})
	require.NoError(t, err)

	_, err = f.engine.Resume(ctx, "conv-twice", ResumeRequest{Approved: true})
	assert.ErrorIs(t, err, ErrNotPaused)
}

func TestMapPersistenceError(t *testing.T) {
	stale := fmt.Errorf("%w: stored 3, given 2", persistence.ErrStaleVersion)

	mapped := mapPersistenceError(stale)
	assert.ErrorIs(t, mapped, ErrVersionConflict)
	assert.ErrorIs(t, mapped, persistence.ErrStaleVersion)

	other := errors.New("disk full")
	assert.Equal(t, other, mapPersistenceError(other))
}

func TestInterruptedError(t *testing.T) {
	err := fmt.Errorf("run: %w", &InterruptedError{ExecutionID: "exec-1", Err: context.DeadlineExceeded})

	assert.True(t, IsInterrupted(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "exec-1")
	assert.False(t, IsInterrupted(errors.New("boom")))
}

func TestExecute_StaleRecordIsVersionConflict(t *testing.T) {
	executions := &mocks.MockExecutionRepository{}
	executions.On("Save", mock.Anything, mock.AnythingOfType("*models.Execution")).
		Run(func(args mock.Arguments) {
			args.Get(1).(*models.Execution).Version = 1
		}).
		Return(nil)
	executions.On("Update", mock.Anything, mock.AnythingOfType("*models.Execution")).
		Return(fmt.Errorf("%w: stored 2, given 1", persistence.ErrStaleVersion))

	e, err := New(nil, registry.NewDefaultRegistry(), executions, memory.NewPauseStore(),
		WithExecutor(static.New(nil)))
	require.NoError(t, err)

	_, err = e.Execute(context.Background(), testutil.LinearGraph("A"), Initial{UserInput: "hi"})
	require.ErrorIs(t, err, ErrVersionConflict)

	executions.AssertExpectations(t)
}

func TestPendingReview_PauseStoreDown(t *testing.T) {
	ctx := context.Background()
	store := file.NewPersistence(t.TempDir())

	pauses := &mocks.MockPauseStateStore{}
	pauses.On("Put", mock.Anything, mock.Anything, DefaultPauseTTL).Return(errors.New("connection refused"))
	pauses.On("Get", mock.Anything, "conv-down", "gate").Return(nil, errors.New("connection refused"))

	e, err := New(nil, registry.NewDefaultRegistry(), store.Executions(), pauses,
		WithExecutor(static.New(nil)))
	require.NoError(t, err)

	result, err := e.Execute(ctx, reviewGraph(), Initial{ConversationID: "conv-down", UserInput: "hi"})
	require.NoError(t, err)
	require.Equal(t, models.ResultStatusPaused, result.Status)

	// The write-through copy on the record serves the review.
	request, err := e.PendingReview(ctx, "conv-down")
	require.NoError(t, err)
	assert.Equal(t, "Approve?", request.Message)
	assert.Equal(t, "gate", request.NodeID)

	pauses.AssertExpectations(t)
}
