// Package web provides the HTTP API for running graphs and answering their reviews.
package web

import (
	"time"

	"github.com/dukex/agentgraph/pkg/models"
)

// RunRequest is the body of POST /executions.
type RunRequest struct {
	Graph          *models.Graph  `json:"graph"                     validate:"required"`
	ConversationID string         `json:"conversation_id,omitempty" validate:"omitempty,max=128"`
	UserInput      string         `json:"user_input"                validate:"required"`
	Variables      map[string]any `json:"variables,omitempty"`
}

// ResumeRequest is the body of POST /executions/:conversationId/resume.
type ResumeRequest struct {
	Approved       *bool          `json:"approved"                  validate:"required"`
	Comments       string         `json:"comments,omitempty"        validate:"max=4000"`
	ContextEdits   map[string]any `json:"context_edits,omitempty"`
	ModifiedOutput any            `json:"modified_output,omitempty"`
}

// ExecutionResponse is the state of the latest run of a conversation.
type ExecutionResponse struct {
	ID             string                       `json:"id"`
	ConversationID string                       `json:"conversation_id"`
	GraphID        string                       `json:"graph_id"`
	Status         models.ExecutionStatus       `json:"status"`
	NodeStatuses   map[string]models.NodeStatus `json:"node_statuses"`
	PausedNodeID   string                       `json:"paused_node_id,omitempty"`
	PausedPhase    models.PausePhase            `json:"paused_phase,omitempty"`
	ErrorMessage   string                       `json:"error_message,omitempty"`
	Version        int64                        `json:"version"`
	CreatedAt      time.Time                    `json:"created_at"`
	UpdatedAt      time.Time                    `json:"updated_at"`
	CompletedAt    *time.Time                   `json:"completed_at,omitempty"`
}

// TransformExecutionResponse drops the graph, snapshot and pending request from a record.
func TransformExecutionResponse(record *models.Execution) ExecutionResponse {
	response := ExecutionResponse{
		ID:             record.ID,
		ConversationID: record.ConversationID,
		Status:         record.Status,
		NodeStatuses:   record.NodeStatuses,
		PausedNodeID:   record.PausedNodeID,
		PausedPhase:    record.PausedPhase,
		ErrorMessage:   record.ErrorMessage,
		Version:        record.Version,
		CreatedAt:      record.CreatedAt,
		UpdatedAt:      record.UpdatedAt,
		CompletedAt:    record.CompletedAt,
	}

	if record.Graph != nil {
		response.GraphID = record.Graph.ID
	}

	return response
}
