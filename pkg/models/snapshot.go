package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Editable snapshot fields. Review tooling may only change these.
const (
	SnapshotFieldNodeResults     = "node_results"
	SnapshotFieldUserInput       = "user_input"
	SnapshotFieldCustomVariables = "custom_variables"
	SnapshotFieldMessageHistory  = "message_history"
)

// ErrFieldNotEditable indicates an edit touched a read-only snapshot field.
var ErrFieldNotEditable = errors.New("snapshot field is not editable")

// SnapshotEditError wraps an invalid snapshot edit.
type SnapshotEditError struct {
	Field string
	Err   error
}

func (e *SnapshotEditError) Error() string {
	return fmt.Sprintf("edit of snapshot field %q rejected: %v", e.Field, e.Err)
}

func (e *SnapshotEditError) Unwrap() error {
	return e.Err
}

// ExecutionContextSnapshot is the serializable projection of an execution context at pause time.
type ExecutionContextSnapshot struct {
	// Read-only.
	PausedNodeID    string    `json:"paused_node_id"`
	ExecutedNodeIDs []string  `json:"executed_node_ids"`
	PausedAt        time.Time `json:"paused_at"`

	// Editable.
	NodeResults     map[string]NodeResult `json:"node_results"`
	UserInput       UserInput             `json:"user_input"`
	CustomVariables map[string]any        `json:"custom_variables"`
	MessageHistory  []Message             `json:"message_history"`
}

// IsEditableField reports whether review tooling may change the field.
func IsEditableField(field string) bool {
	switch field {
	case SnapshotFieldNodeResults, SnapshotFieldUserInput, SnapshotFieldCustomVariables, SnapshotFieldMessageHistory:
		return true
	default:
		return false
	}
}

// ApplyEdits returns a copy of the snapshot with the edits applied. Node results and
// custom variables are merged key by key, the user input and message history are replaced.
func (s *ExecutionContextSnapshot) ApplyEdits(edits map[string]any) (*ExecutionContextSnapshot, error) {
	for field := range edits {
		if !IsEditableField(field) {
			return nil, &SnapshotEditError{Field: field, Err: ErrFieldNotEditable}
		}
	}

	edited := s.Clone()

	if raw, ok := edits[SnapshotFieldNodeResults]; ok {
		var results map[string]NodeResult
		if err := convert(raw, &results); err != nil {
			return nil, &SnapshotEditError{Field: SnapshotFieldNodeResults, Err: err}
		}

		for nodeID, result := range results {
			if result.NodeID == "" {
				result.NodeID = nodeID
			}

			if result.Status == "" {
				result.Status = NodeStatusSucceeded
			}

			edited.NodeResults[nodeID] = result
		}
	}

	if raw, ok := edits[SnapshotFieldUserInput]; ok {
		// The normalized form is derived again on restore unless the edit supplies it.
		var input UserInput

		if text, isString := raw.(string); isString {
			input = UserInput{Raw: text}
		} else if err := convert(raw, &input); err != nil {
			return nil, &SnapshotEditError{Field: SnapshotFieldUserInput, Err: err}
		}

		edited.UserInput = input
	}

	if raw, ok := edits[SnapshotFieldCustomVariables]; ok {
		var variables map[string]any
		if err := convert(raw, &variables); err != nil {
			return nil, &SnapshotEditError{Field: SnapshotFieldCustomVariables, Err: err}
		}

		for key, value := range variables {
			edited.CustomVariables[key] = value
		}
	}

	if raw, ok := edits[SnapshotFieldMessageHistory]; ok {
		var history []Message
		if err := convert(raw, &history); err != nil {
			return nil, &SnapshotEditError{Field: SnapshotFieldMessageHistory, Err: err}
		}

		edited.MessageHistory = history
	}

	return edited, nil
}

// Clone returns a copy that shares no maps or slices with the receiver.
func (s *ExecutionContextSnapshot) Clone() *ExecutionContextSnapshot {
	clone := &ExecutionContextSnapshot{
		PausedNodeID:    s.PausedNodeID,
		ExecutedNodeIDs: append([]string(nil), s.ExecutedNodeIDs...),
		PausedAt:        s.PausedAt,
		NodeResults:     make(map[string]NodeResult, len(s.NodeResults)),
		UserInput:       s.UserInput,
		CustomVariables: make(map[string]any, len(s.CustomVariables)),
		MessageHistory:  append([]Message(nil), s.MessageHistory...),
	}

	for k, v := range s.NodeResults {
		clone.NodeResults[k] = v
	}

	for k, v := range s.CustomVariables {
		clone.CustomVariables[k] = v
	}

	return clone
}

func convert(in any, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, out)
}
