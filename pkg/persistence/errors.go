package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrExecutionNotFound indicates no execution record matched the lookup.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrExecutionAlreadyExists indicates Save was called for an id that is stored.
	ErrExecutionAlreadyExists = errors.New("execution already exists")

	// ErrStaleVersion indicates an update based on an outdated version of the record.
	ErrStaleVersion = errors.New("stale execution version")

	// ErrPauseStateNotFound indicates no pending review exists for the key.
	ErrPauseStateNotFound = errors.New("pause state not found")

	// ErrInvalidID indicates an identifier that cannot be used as a storage key.
	ErrInvalidID = errors.New("invalid identifier")
)

// ExecutionError wraps execution-record errors with additional context.
type ExecutionError struct {
	Op             string // Operation being performed (e.g., "FindByID", "Save", "Update")
	ExecutionID    string // Execution ID if applicable
	ConversationID string // Conversation ID if applicable
	Err            error  // Underlying error
}

func (e *ExecutionError) Error() string {
	target := e.ExecutionID
	if target == "" {
		target = fmt.Sprintf("conversation %s", e.ConversationID)
	}

	return fmt.Sprintf("%s operation failed for execution %s: %v", e.Op, target, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for execution errors.
func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewExecutionError creates a new execution error with context.
func NewExecutionError(op, executionID string, err error) *ExecutionError {
	return &ExecutionError{Op: op, ExecutionID: executionID, Err: err}
}

// NewConversationError creates a new execution error for conversation lookups.
func NewConversationError(op, conversationID string, err error) *ExecutionError {
	return &ExecutionError{Op: op, ConversationID: conversationID, Err: err}
}

// PauseStateError wraps pause-store errors with the key being accessed.
type PauseStateError struct {
	Op             string
	ConversationID string
	NodeID         string
	Err            error
}

func (e *PauseStateError) Error() string {
	return fmt.Sprintf("%s operation failed for pause state %s/%s: %v", e.Op, e.ConversationID, e.NodeID, e.Err)
}

func (e *PauseStateError) Unwrap() error {
	return e.Err
}

func (e *PauseStateError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsExecutionNotFound checks if an error indicates an execution was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsStaleVersion checks if an error indicates an optimistic concurrency conflict.
func IsStaleVersion(err error) bool {
	return errors.Is(err, ErrStaleVersion)
}

// IsPauseStateNotFound checks if an error indicates no pending review was found.
func IsPauseStateNotFound(err error) bool {
	return errors.Is(err, ErrPauseStateNotFound)
}
