// Package engine exposes the run and resume entrypoints. It validates and builds a graph,
// persists the execution record around each scheduler pass and turns pauses into stored
// human intervention requests.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/agentgraph/pkg/eventbus"
	"github.com/dukex/agentgraph/pkg/events"
	"github.com/dukex/agentgraph/pkg/execution"
	"github.com/dukex/agentgraph/pkg/graph"
	"github.com/dukex/agentgraph/pkg/models"
	"github.com/dukex/agentgraph/pkg/nodes"
	"github.com/dukex/agentgraph/pkg/otelhelper"
	"github.com/dukex/agentgraph/pkg/persistence"
	"github.com/dukex/agentgraph/pkg/protocol"
	"github.com/dukex/agentgraph/pkg/registry"
	"github.com/dukex/agentgraph/pkg/scheduler"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Initial is the input a run starts from.
type Initial struct {
	ConversationID string         `json:"conversation_id,omitempty"`
	UserInput      string         `json:"user_input"`
	Variables      map[string]any `json:"variables,omitempty"`
}

// Engine runs graphs. An engine is safe for concurrent use; each run owns its tracker,
// context and aggregate.
type Engine struct {
	config     Config
	registry   *registry.Registry
	executions persistence.ExecutionRepository
	pauses     persistence.PauseStateStore
	logs       persistence.NodeLogRepository
	executor   protocol.NodeExecutor
	sink       eventbus.EventSink
	tracer     trace.Tracer
	scheduler  scheduler.Scheduler
	lifecycle  *nodes.Lifecycle
	logger     *slog.Logger
	now        func() time.Time
}

// New creates an engine over a node registry, an execution repository and a pause-state store.
func New(
	logger *slog.Logger,
	reg *registry.Registry,
	executions persistence.ExecutionRepository,
	pauses persistence.PauseStateStore,
	opts ...Option,
) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if reg == nil {
		return nil, errors.New("engine requires a node registry")
	}

	if executions == nil {
		return nil, errors.New("engine requires an execution repository")
	}

	if pauses == nil {
		return nil, errors.New("engine requires a pause-state store")
	}

	e := &Engine{
		config:     DefaultConfig(),
		registry:   reg,
		executions: executions,
		pauses:     pauses,
		sink:       eventbus.NoopSink{},
		tracer:     otelhelper.NoopTracer(),
		logger:     logger.With("module", "engine"),
		now:        func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(e)
	}

	sched, err := scheduler.New(e.config.Strategy, e.config.Concurrency, logger.With("module", "scheduler"))
	if err != nil {
		return nil, err
	}

	e.scheduler = sched
	e.lifecycle = nodes.NewLifecycle(logger.With("module", "lifecycle"),
		nodes.WithAuditLog(e.logs),
		nodes.WithEventSink(e.sink),
		nodes.WithTracer(e.tracer),
	)

	return e, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Prepare validates a graph, its node configs and its ordering, then builds its nodes.
// Every failure is a *graph.GraphConfigError or a *graph.CyclicDependencyError and
// happens before any node runs.
func (e *Engine) Prepare(ctx context.Context, g *models.Graph) (map[string]protocol.Node, error) {
	if err := graph.Validate(g); err != nil {
		return nil, err
	}

	if _, err := graph.Sort(g); err != nil {
		return nil, err
	}

	return e.registry.Build(ctx, g, protocol.Dependencies{
		Executor: e.executor,
		Logger:   e.logger,
	})
}

// Execute runs a graph from its start until it succeeds, fails or pauses. Configuration
// errors are returned as errors; node failures are reported in the FAILED result.
func (e *Engine) Execute(ctx context.Context, g *models.Graph, initial Initial) (*models.ExecutionResult, error) {
	started := e.now()

	built, err := e.Prepare(ctx, g)
	if err != nil {
		return nil, err
	}

	conversationID := initial.ConversationID
	if conversationID == "" {
		conversationID = uuid.New().String()
	}

	executionID := uuid.New().String()

	exec := execution.NewContext(executionID, conversationID, models.UserInput{Raw: initial.UserInput}, len(g.Nodes))
	for key, value := range initial.Variables {
		exec.Set(key, value)
	}

	if initial.UserInput != "" {
		exec.AppendMessage(models.Message{
			Role:      models.RoleUser,
			Content:   initial.UserInput,
			Timestamp: started,
		})
	}

	agg := execution.NewExecution(executionID, conversationID, g)

	record := agg.Record()
	if err := e.executions.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save execution: %w", err)
	}

	agg.SetVersion(record.Version)

	if err := agg.Start(); err != nil {
		return nil, err
	}

	logger := e.logger.With("execution_id", executionID, "conversation_id", conversationID, "graph_id", g.ID)
	logger.InfoContext(ctx, "Starting execution", "nodes", len(g.Nodes), "strategy", e.scheduler.Strategy())

	e.emitDag(ctx, events.DagStartEvent, g, exec, string(models.ExecutionStatusRunning), nil)

	return e.drive(ctx, &runState{
		graph:     g,
		nodes:     built,
		tracker:   graph.NewTracker(g, logger),
		aggregate: agg,
		context:   exec,
		logger:    logger,
		started:   started,
	})
}

// runState is what one scheduler pass works on.
type runState struct {
	graph     *models.Graph
	nodes     map[string]protocol.Node
	tracker   *graph.Tracker
	aggregate *execution.Aggregate
	context   *execution.Context
	logger    *slog.Logger
	started   time.Time
}

// drive runs one scheduler pass and persists its end state.
func (e *Engine) drive(ctx context.Context, state *runState) (*models.ExecutionResult, error) {
	state.context.SetSystem(execution.SystemKeyGraph, state.graph)
	if e.logs != nil {
		state.context.SetSystem(execution.SystemKeyNodeLogs, e.logs)
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "graph.run",
		attribute.String(otelhelper.GraphIDKey, state.graph.ID),
		attribute.String(otelhelper.ExecutionIDKey, state.context.ExecutionID),
		attribute.String(otelhelper.ConversationIDKey, state.context.ConversationID),
		attribute.String(otelhelper.StrategyKey, string(e.scheduler.Strategy())),
	)
	defer span.End()

	outcome := e.scheduler.Run(ctx, &scheduler.Run{
		Graph:     state.graph,
		Nodes:     state.nodes,
		Tracker:   state.tracker,
		Aggregate: state.aggregate,
		Context:   state.context,
		Lifecycle: e.lifecycle,
		Logger:    state.logger,
	})

	// The record is written even when the caller's context is gone.
	persistCtx := context.WithoutCancel(ctx)

	var result *models.ExecutionResult

	switch outcome.Status {
	case scheduler.StatusCompleted:
		result = e.completed(state)
	case scheduler.StatusPaused:
		result = e.paused(persistCtx, state, outcome)
	case scheduler.StatusInterrupted:
		result = e.failed(state, outcome.NodeID, &InterruptedError{ExecutionID: state.context.ExecutionID, Err: outcome.Err})
	default:
		result = e.failed(state, outcome.NodeID, outcome.Err)
	}

	if err := e.persist(persistCtx, state.aggregate); err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	result.CompletedCount = countSucceeded(state.aggregate, state.graph)
	result.DurationMs = e.now().Sub(state.started).Milliseconds()

	if result.Err != nil {
		otelhelper.SetError(span, result.Err)
	} else {
		otelhelper.SetOK(span, attribute.String("agentgraph.result.status", string(result.Status)))
	}

	e.emitDag(persistCtx, events.DagCompleteEvent, state.graph, state.context, string(result.Status), result)

	state.logger.InfoContext(ctx, "Execution finished",
		"status", result.Status,
		"paused_node_id", result.PausedNodeID,
		"failed_node_id", result.FailedNodeID,
		"completed", result.CompletedCount,
		"duration_ms", result.DurationMs,
	)

	return result, nil
}

func (e *Engine) completed(state *runState) *models.ExecutionResult {
	status := state.aggregate.Complete()

	result := &models.ExecutionResult{
		ExecutionID:    state.context.ExecutionID,
		ConversationID: state.context.ConversationID,
		Status:         models.ResultStatusSuccess,
	}

	if status == models.ExecutionStatusFailed {
		result.Status = models.ResultStatusFailed
		result.Message = state.aggregate.Record().ErrorMessage
	}

	return result
}

func (e *Engine) failed(state *runState, nodeID string, err error) *models.ExecutionResult {
	if err == nil {
		err = errors.New("execution failed")
	}

	state.aggregate.Fail(err.Error())

	var nodeErr *nodes.NodeExecutionError
	if nodeID == "" && errors.As(err, &nodeErr) {
		nodeID = nodeErr.NodeID
	}

	return &models.ExecutionResult{
		ExecutionID:    state.context.ExecutionID,
		ConversationID: state.context.ConversationID,
		Status:         models.ResultStatusFailed,
		Message:        err.Error(),
		FailedNodeID:   nodeID,
		Retryable:      nodes.IsRetryable(err),
		Err:            err,
	}
}

// paused snapshots the context, stores the intervention request and moves the record to
// PAUSED or PAUSED_FOR_REVIEW.
func (e *Engine) paused(ctx context.Context, state *runState, outcome *scheduler.Result) *models.ExecutionResult {
	nodeID := outcome.NodeID
	phase := outcome.Pause.Phase.EffectivePhase()
	pausedAt := e.now()

	request := outcome.Pause.Request
	if request == nil {
		request = &models.HumanInterventionRequest{Message: "Review required"}
	}

	request.ExecutionID = state.context.ExecutionID
	request.ConversationID = state.context.ConversationID
	request.NodeID = nodeID
	request.Phase = phase

	if request.CreatedAt.IsZero() {
		request.CreatedAt = pausedAt
	}

	if request.ResultsSnapshot == nil {
		request.ResultsSnapshot = state.context.Results()
	}

	snapshot := execution.FromContext(state.context, nodeID, pausedAt)

	if err := state.aggregate.Pause(nodeID, phase, snapshot, request); err != nil {
		return e.failed(state, nodeID, err)
	}

	// The record carries the request too, so a lost cache entry is recoverable.
	if err := e.pauses.Put(ctx, request, e.config.PauseTTL); err != nil {
		state.logger.WarnContext(ctx, "Failed to cache pending review", "node_id", nodeID, "error", err)
	}

	return &models.ExecutionResult{
		ExecutionID:    state.context.ExecutionID,
		ConversationID: state.context.ConversationID,
		Status:         models.ResultStatusPaused,
		Message:        request.Message,
		PausedNodeID:   nodeID,
	}
}

func (e *Engine) persist(ctx context.Context, agg *execution.Aggregate) error {
	record := agg.Record()

	if err := e.executions.Update(ctx, record); err != nil {
		return fmt.Errorf("failed to persist execution %s: %w", record.ID, mapPersistenceError(err))
	}

	agg.SetVersion(record.Version)

	return nil
}

func (e *Engine) emitDag(ctx context.Context, eventType events.EventType, g *models.Graph, exec *execution.Context, status string, result *models.ExecutionResult) {
	event := &events.DagEvent{
		BaseEvent: events.NewBaseEvent(eventType, exec.ExecutionID, exec.ConversationID, exec.Progress()),
		GraphID:   g.ID,
		Status:    status,
	}

	if result != nil {
		event.Message = result.Message
		event.PausedNodeID = result.PausedNodeID
		event.FailedNodeID = result.FailedNodeID
		event.DurationMs = result.DurationMs
	}

	e.sink.Emit(ctx, exec.ConversationID, event)
}

func countSucceeded(agg *execution.Aggregate, g *models.Graph) int {
	count := 0

	for id := range g.Nodes {
		if agg.NodeStatus(id) == models.NodeStatusSucceeded {
			count++
		}
	}

	return count
}
