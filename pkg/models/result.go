package models

import (
	"encoding/json"
	"fmt"
)

// ResultStatus is one of the three terminal shapes a caller receives.
type ResultStatus string

const (
	ResultStatusSuccess ResultStatus = "SUCCESS"
	ResultStatusFailed  ResultStatus = "FAILED"
	ResultStatusPaused  ResultStatus = "PAUSED"
)

// ExecutionResult is returned by the run and resume entrypoints.
type ExecutionResult struct {
	ExecutionID    string       `json:"execution_id"`
	ConversationID string       `json:"conversation_id"`
	Status         ResultStatus `json:"status"`
	Message        string       `json:"message,omitempty"`
	PausedNodeID   string       `json:"paused_node_id,omitempty"`
	FailedNodeID   string       `json:"failed_node_id,omitempty"`
	Retryable      bool         `json:"retryable,omitempty"`
	CompletedCount int          `json:"completed_count"`
	DurationMs     int64        `json:"duration_ms"`

	Err error `json:"-"`
}

// Succeeded reports whether the run finished successfully.
func (r *ExecutionResult) Succeeded() bool {
	return r.Status == ResultStatusSuccess
}

// Paused reports whether the run is waiting for a resume call.
func (r *ExecutionResult) Paused() bool {
	return r.Status == ResultStatusPaused
}

func stringify(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}

	return string(data)
}
