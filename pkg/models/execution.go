package models

import "time"

// ExecutionStatus is the lifecycle state of an execution aggregate.
type ExecutionStatus string

const (
	ExecutionStatusPending         ExecutionStatus = "pending"
	ExecutionStatusRunning         ExecutionStatus = "running"
	ExecutionStatusPausedForReview ExecutionStatus = "paused_for_review" // Waiting on a review of produced output
	ExecutionStatusPaused          ExecutionStatus = "paused"            // Waiting on a decision before a node runs
	ExecutionStatusSucceeded       ExecutionStatus = "succeeded"
	ExecutionStatusFailed          ExecutionStatus = "failed"
)

// IsPaused reports whether the status is one of the paused states.
func (s ExecutionStatus) IsPaused() bool {
	return s == ExecutionStatusPaused || s == ExecutionStatusPausedForReview
}

// IsTerminal reports whether no further scheduling can happen.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusSucceeded || s == ExecutionStatusFailed
}

// NodeStatus defines the possible states of a node within one execution.
type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "pending"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusSucceeded NodeStatus = "succeeded"
	NodeStatusFailed    NodeStatus = "failed"
	NodeStatusSkipped   NodeStatus = "skipped"
)

// IsResolved reports whether a node will not run (again) in the current pass.
func (s NodeStatus) IsResolved() bool {
	return s == NodeStatusSucceeded || s == NodeStatusSkipped || s == NodeStatusFailed
}

// PausePhase records whether a pause happened before or after a node did its main work.
type PausePhase string

const (
	// PausePhaseBeforeExecution re-runs the paused node on resume.
	PausePhaseBeforeExecution PausePhase = "before_execution"
	// PausePhaseAfterExecution treats the paused node as complete on resume.
	PausePhaseAfterExecution PausePhase = "after_execution"
)

// EffectivePhase returns the phase to honour on resume. Records written without a
// phase are treated as after-execution pauses.
func (p PausePhase) EffectivePhase() PausePhase {
	if p == "" {
		return PausePhaseAfterExecution
	}

	return p
}

// Execution is the durable record of one graph run.
type Execution struct {
	ID             string                    `json:"id"`
	ConversationID string                    `json:"conversation_id"`
	Graph          *Graph                    `json:"graph"`
	Status         ExecutionStatus           `json:"status"`
	NodeStatuses   map[string]NodeStatus     `json:"node_statuses"`
	CurrentNodeID  string                    `json:"current_node_id,omitempty"`
	PausedNodeID   string                    `json:"paused_node_id,omitempty"`
	PausedPhase    PausePhase                `json:"paused_phase,omitempty"`
	Version        int64                     `json:"version"`
	Snapshot       *ExecutionContextSnapshot `json:"snapshot,omitempty"`
	PendingRequest *HumanInterventionRequest `json:"pending_request,omitempty"`
	ErrorMessage   string                    `json:"error_message,omitempty"`
	CreatedAt      time.Time                 `json:"created_at"`
	UpdatedAt      time.Time                 `json:"updated_at"`
	CompletedAt    *time.Time                `json:"completed_at,omitempty"`
}

// NodeExecution is one audit-log entry for a node run.
type NodeExecution struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"execution_id"`
	NodeID      string         `json:"node_id"`
	NodeType    NodeType       `json:"node_type"`
	Status      NodeStatus     `json:"status"`
	Input       map[string]any `json:"input,omitempty"`
	Output      any            `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	DurationMs  int64          `json:"duration_ms"`
}
