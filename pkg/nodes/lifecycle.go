// Package nodes runs node bodies through the uniform execution lifecycle and holds the
// helpers shared by the built-in node types.
package nodes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/agentgraph/pkg/eventbus"
	"github.com/dukex/agentgraph/pkg/events"
	"github.com/dukex/agentgraph/pkg/execution"
	"github.com/dukex/agentgraph/pkg/models"
	"github.com/dukex/agentgraph/pkg/otelhelper"
	"github.com/dukex/agentgraph/pkg/persistence"
	"github.com/dukex/agentgraph/pkg/protocol"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Lifecycle wraps every node body with the before and after hooks. Audit log writes and
// event emission are best-effort: their failures are logged and never fail the node.
type Lifecycle struct {
	logs   persistence.NodeLogRepository
	sink   eventbus.EventSink
	tracer trace.Tracer
	logger *slog.Logger
	now    func() time.Time
}

type LifecycleOption func(*Lifecycle)

// WithAuditLog records node executions in repo.
func WithAuditLog(repo persistence.NodeLogRepository) LifecycleOption {
	return func(l *Lifecycle) {
		l.logs = repo
	}
}

// WithEventSink emits node events to sink.
func WithEventSink(sink eventbus.EventSink) LifecycleOption {
	return func(l *Lifecycle) {
		if sink != nil {
			l.sink = sink
		}
	}
}

// WithTracer opens a span around each node execution.
func WithTracer(tracer trace.Tracer) LifecycleOption {
	return func(l *Lifecycle) {
		if tracer != nil {
			l.tracer = tracer
		}
	}
}

func NewLifecycle(logger *slog.Logger, opts ...LifecycleOption) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}

	l := &Lifecycle{
		sink:   eventbus.NoopSink{},
		tracer: otelhelper.NoopTracer(),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Run executes one node: BeforeExecute, the body, then AfterExecute.
func (l *Lifecycle) Run(ctx context.Context, spec *models.NodeSpec, node protocol.Node, exec *execution.Context) (protocol.Outcome, error) {
	ctx, span := otelhelper.StartSpan(ctx, l.tracer, "node.execute",
		attribute.String(otelhelper.ExecutionIDKey, exec.ExecutionID),
		attribute.String(otelhelper.NodeIDKey, spec.ID),
		attribute.String(otelhelper.NodeTypeKey, string(spec.Type)),
	)
	defer span.End()

	entry := l.BeforeExecute(ctx, spec, exec)

	outcome, err := l.execute(ctx, spec, node, protocol.Input{
		Context: exec,
		Stream:  NewEventStream(l.sink, exec, spec),
		Logger:  l.logger.With("node_id", spec.ID, "node_type", spec.Type),
	})

	outcome, err = l.AfterExecute(ctx, spec, exec, entry, outcome, err)
	if err != nil {
		otelhelper.SetError(span, err, attribute.String(otelhelper.NodeIDKey, spec.ID))
	} else {
		otelhelper.SetOK(span, attribute.String(otelhelper.OutcomeKey, string(outcome.Kind)))
	}

	return outcome, err
}

func (l *Lifecycle) execute(ctx context.Context, spec *models.NodeSpec, node protocol.Node, in protocol.Input) (outcome protocol.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewExecutionError(spec.ID, "node panicked", fmt.Errorf("%v", r))
		}
	}()

	return node.Execute(ctx, in)
}

// BeforeExecute emits node_starting and opens the audit entry. The entry input is the
// user input for the first node of a run and the full result map otherwise.
func (l *Lifecycle) BeforeExecute(ctx context.Context, spec *models.NodeSpec, exec *execution.Context) *models.NodeExecution {
	l.logger.InfoContext(ctx, "Executing node", "execution_id", exec.ExecutionID, "node_id", spec.ID, "node_type", spec.Type)

	l.emitNode(ctx, events.NodeStartingEvent, spec, exec, string(models.NodeStatusRunning), nil)

	input := map[string]any{}

	results := exec.Results()
	if len(results) == 0 {
		input["user_input"] = exec.UserInput()
	} else {
		input["results"] = results
	}

	entry := &models.NodeExecution{
		ID:          uuid.New().String(),
		ExecutionID: exec.ExecutionID,
		NodeID:      spec.ID,
		NodeType:    spec.Type,
		Status:      models.NodeStatusRunning,
		Input:       input,
		StartedAt:   l.now(),
	}

	if l.logs != nil {
		if err := l.logs.Start(ctx, entry); err != nil {
			l.logger.WarnContext(ctx, "Failed to open node audit entry", "node_id", spec.ID, "error", err)
		}
	}

	return entry
}

// AfterExecute stores the outcome in the context, emits the matching event and closes
// the audit entry. Body errors are normalized to *NodeExecutionError.
func (l *Lifecycle) AfterExecute(
	ctx context.Context,
	spec *models.NodeSpec,
	exec *execution.Context,
	entry *models.NodeExecution,
	outcome protocol.Outcome,
	err error,
) (protocol.Outcome, error) {
	completedAt := l.now()
	entry.CompletedAt = &completedAt
	entry.DurationMs = completedAt.Sub(entry.StartedAt).Milliseconds()

	if err != nil {
		nodeErr := AsExecutionError(spec.ID, err)

		entry.Status = models.NodeStatusFailed
		entry.Error = nodeErr.Error()

		l.logger.ErrorContext(ctx, "Node execution failed", "node_id", spec.ID, "retryable", nodeErr.Retryable, "error", nodeErr)
		l.emitNode(ctx, events.NodeFailedEvent, spec, exec, string(models.NodeStatusFailed), func(e *events.NodeEvent) {
			e.Error = nodeErr.Error()
			e.Retryable = nodeErr.Retryable
			e.DurationMs = entry.DurationMs
		})
		l.finish(ctx, entry)

		return outcome, nodeErr
	}

	switch outcome.Kind {
	case protocol.OutcomeRoute:
		data := map[string]any{"decision": outcome.Decision}
		for k, v := range outcome.Data {
			data[k] = v
		}

		outcome.Data = data
		l.storeResult(exec, spec, outcome.Decision, data)
		entry.Status = models.NodeStatusSucceeded
		entry.Output = data

		l.emitNode(ctx, events.NodeCompletedEvent, spec, exec, string(models.NodeStatusSucceeded), func(e *events.NodeEvent) {
			e.Output = outcome.Decision
			e.DurationMs = entry.DurationMs
		})
	case protocol.OutcomePause:
		exec.SetPendingRequest(outcome.Request)

		entry.Status = models.NodeStatusPending
		if outcome.Phase.EffectivePhase() == models.PausePhaseAfterExecution {
			l.storeResult(exec, spec, outcome.Content, outcome.Data)
			entry.Status = models.NodeStatusSucceeded
			entry.Output = outcome.Content
		}

		l.logger.InfoContext(ctx, "Node paused for human review", "node_id", spec.ID, "phase", outcome.Phase.EffectivePhase())
		l.emitNode(ctx, events.NodePausedEvent, spec, exec, "paused", func(e *events.NodeEvent) {
			if outcome.Request != nil {
				e.Output = outcome.Request.Message
			}

			e.Metadata["phase"] = string(outcome.Phase.EffectivePhase())
		})
	default:
		outcome.Kind = protocol.OutcomeContinue
		l.storeResult(exec, spec, outcome.Content, outcome.Data)
		entry.Status = models.NodeStatusSucceeded
		entry.Output = outcome.Content

		l.emitNode(ctx, events.NodeCompletedEvent, spec, exec, string(models.NodeStatusSucceeded), func(e *events.NodeEvent) {
			e.Output = outcome.Content
			e.DurationMs = entry.DurationMs
		})
	}

	l.finish(ctx, entry)

	return outcome, nil
}

// storeResult records the node output and counts the node once towards progress.
func (l *Lifecycle) storeResult(exec *execution.Context, spec *models.NodeSpec, content any, data map[string]any) {
	_, seen := exec.Result(spec.ID)

	result := models.NodeResult{
		NodeID:    spec.ID,
		Content:   content,
		Data:      data,
		Status:    models.NodeStatusSucceeded,
		Timestamp: l.now(),
	}

	exec.SetResult(result)

	if text := result.Text(); text != "" {
		exec.AppendMessage(models.Message{Role: models.RoleAssistant, Content: text, NodeID: spec.ID})
	}

	if !seen {
		exec.IncrementProgress()
	}
}

func (l *Lifecycle) finish(ctx context.Context, entry *models.NodeExecution) {
	if l.logs == nil {
		return
	}

	if err := l.logs.Finish(ctx, entry); err != nil {
		l.logger.WarnContext(ctx, "Failed to close node audit entry", "node_id", entry.NodeID, "error", err)
	}
}

func (l *Lifecycle) emitNode(
	ctx context.Context,
	eventType events.EventType,
	spec *models.NodeSpec,
	exec *execution.Context,
	status string,
	decorate func(*events.NodeEvent),
) {
	event := &events.NodeEvent{
		BaseEvent: events.NewBaseEvent(eventType, exec.ExecutionID, exec.ConversationID, exec.Progress()),
		NodeID:    spec.ID,
		NodeName:  spec.DisplayName(),
		NodeType:  spec.Type,
		Status:    status,
	}

	if decorate != nil {
		decorate(event)
	}

	l.sink.Emit(ctx, exec.ConversationID, event)
}

// EmitSkipped reports nodes pruned by a routing decision.
func (l *Lifecycle) EmitSkipped(ctx context.Context, spec *models.NodeSpec, exec *execution.Context) {
	l.emitNode(ctx, events.NodeSkippedEvent, spec, exec, string(models.NodeStatusSkipped), nil)
}
