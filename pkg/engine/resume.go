package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/agentgraph/pkg/events"
	"github.com/dukex/agentgraph/pkg/execution"
	"github.com/dukex/agentgraph/pkg/graph"
	"github.com/dukex/agentgraph/pkg/models"
	"github.com/dukex/agentgraph/pkg/persistence"
)

// ResumeRequest carries a reviewer decision.
type ResumeRequest struct {
	Approved     bool           `json:"approved"`
	Comments     string         `json:"comments,omitempty"`
	ContextEdits map[string]any `json:"context_edits,omitempty"`

	// ModifiedOutput replaces the paused node output when its request allows output edits.
	ModifiedOutput any `json:"modified_output,omitempty"`
}

// Status returns the latest execution record of a conversation.
func (e *Engine) Status(ctx context.Context, conversationID string) (*models.Execution, error) {
	return e.executions.FindByConversationID(ctx, conversationID)
}

// PendingReview returns the intervention request a paused conversation waits on.
func (e *Engine) PendingReview(ctx context.Context, conversationID string) (*models.HumanInterventionRequest, error) {
	record, err := e.executions.FindByConversationID(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if !record.Status.IsPaused() {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, ErrNotPaused)
	}

	return e.pendingRequest(ctx, record)
}

// pendingRequest reads the pause-state store first and falls back to the copy written
// on the execution record.
func (e *Engine) pendingRequest(ctx context.Context, record *models.Execution) (*models.HumanInterventionRequest, error) {
	request, err := e.pauses.Get(ctx, record.ConversationID, record.PausedNodeID)
	if err == nil {
		return request, nil
	}

	if !persistence.IsPauseStateNotFound(err) {
		e.logger.WarnContext(ctx, "Pause-state store lookup failed, using execution record",
			"conversation_id", record.ConversationID, "node_id", record.PausedNodeID, "error", err)
	}

	if record.PendingRequest == nil {
		return nil, fmt.Errorf("conversation %s: %w", record.ConversationID, ErrNoPendingReview)
	}

	request = record.PendingRequest

	return request, nil
}

// Resume applies a reviewer decision to the paused run of a conversation and continues
// scheduling. A before-execution pause re-runs the paused node; an after-execution pause
// treats it as complete and continues with its downstream.
func (e *Engine) Resume(ctx context.Context, conversationID string, req ResumeRequest) (*models.ExecutionResult, error) {
	started := e.now()

	record, err := e.executions.FindByConversationID(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if !record.Status.IsPaused() {
		return nil, fmt.Errorf("conversation %s is %s: %w", conversationID, record.Status, ErrNotPaused)
	}

	request, err := e.pendingRequest(ctx, record)
	if err != nil {
		return nil, err
	}

	g := record.Graph

	built, err := e.Prepare(ctx, g)
	if err != nil {
		return nil, err
	}

	snapshot := record.Snapshot
	if snapshot == nil {
		snapshot = &models.ExecutionContextSnapshot{PausedNodeID: record.PausedNodeID}
	}

	if len(req.ContextEdits) > 0 {
		snapshot, err = snapshot.ApplyEdits(req.ContextEdits)
		if err != nil {
			return nil, err
		}
	}

	exec := execution.NewContext(record.ID, conversationID, snapshot.UserInput, len(g.Nodes))
	execution.RestoreToContext(snapshot, exec)

	agg := execution.FromRecord(record)

	nodeID, phase, err := agg.Resume()
	if err != nil {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, errors.Join(ErrNotPaused, err))
	}

	request.Resolve(req.Approved, req.Comments, req.ModifiedOutput, started)

	exec.SetReview(models.HumanReview{
		NodeID:   nodeID,
		Approved: request.Approved,
		Comments: req.Comments,
	})

	if req.Comments != "" {
		exec.AppendMessage(models.Message{
			Role:      models.RoleHuman,
			Content:   req.Comments,
			NodeID:    nodeID,
			Timestamp: started,
		})
	}

	if phase == models.PausePhaseAfterExecution {
		applyReview(exec, nodeID, request)
	}

	logger := e.logger.With("execution_id", record.ID, "conversation_id", conversationID, "graph_id", g.ID)

	// Persisting first bumps the version, so a concurrent resume of the same pause fails here.
	if err := e.persist(ctx, agg); err != nil {
		return nil, err
	}

	if err := e.pauses.Delete(ctx, conversationID, nodeID); err != nil {
		logger.WarnContext(ctx, "Failed to delete pending review", "node_id", nodeID, "error", err)
	}

	if err := e.pauses.Archive(ctx, request, e.config.AuditTTL); err != nil {
		logger.WarnContext(ctx, "Failed to archive resolved review", "node_id", nodeID, "error", err)
	}

	tracker, err := rebuildTracker(ctx, g, agg, logger)
	if err != nil {
		return nil, err
	}

	exec.SetProgress(models.Progress{Current: countSucceeded(agg, g), Total: len(g.Nodes)})

	logger.InfoContext(ctx, "Resuming execution",
		"node_id", nodeID,
		"phase", phase,
		"approved", req.Approved,
		"edited_fields", len(req.ContextEdits),
	)

	e.emitDag(ctx, events.DagResumedEvent, g, exec, string(models.ExecutionStatusRunning), &models.ExecutionResult{
		PausedNodeID: nodeID,
		Message:      req.Comments,
	})

	return e.drive(ctx, &runState{
		graph:     g,
		nodes:     built,
		tracker:   tracker,
		aggregate: agg,
		context:   exec,
		logger:    logger,
		started:   started,
	})
}

// applyReview records the decision on the reviewed result and swaps in the edited output.
func applyReview(exec *execution.Context, nodeID string, request *models.HumanInterventionRequest) {
	result, ok := exec.Result(nodeID)
	if !ok {
		return
	}

	data := make(map[string]any, len(result.Data)+1)
	for key, value := range result.Data {
		data[key] = value
	}

	data["review"] = map[string]any{
		"approved": request.Approved != nil && *request.Approved,
		"comments": request.Comments,
	}

	result.Data = data

	if request.AllowOutputEdit && request.ModifiedOutput != nil {
		result.Content = request.ModifiedOutput
	}

	exec.SetResult(result)
}

// rebuildTracker replays node statuses into a fresh tracker in topological order:
// succeeded nodes are completed and skipped nodes disabled.
func rebuildTracker(ctx context.Context, g *models.Graph, agg *execution.Aggregate, logger *slog.Logger) (*graph.Tracker, error) {
	order, err := graph.Sort(g)
	if err != nil {
		return nil, err
	}

	tracker := graph.NewTracker(g, logger)

	for _, id := range order {
		switch agg.NodeStatus(id) {
		case models.NodeStatusSucceeded:
			tracker.MarkCompleted(id)
		case models.NodeStatusSkipped:
			tracker.DisableNode(id)
		case models.NodeStatusFailed, models.NodeStatusRunning:
			logger.WarnContext(ctx, "Unexpected node status in paused execution", "node_id", id, "status", agg.NodeStatus(id))
		}
	}

	return tracker, nil
}
