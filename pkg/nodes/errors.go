package nodes

import (
	"errors"
	"fmt"
)

// ErrNodeExecution is matched by every NodeExecutionError.
var ErrNodeExecution = errors.New("node execution failed")

// NodeExecutionError is raised by a node body. Retryable is advisory: the engine never
// retries on its own.
type NodeExecutionError struct {
	NodeID    string
	Message   string
	Retryable bool
	Err       error
}

func (e *NodeExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("node %s failed: %s: %v", e.NodeID, e.Message, e.Err)
	}

	return fmt.Sprintf("node %s failed: %s", e.NodeID, e.Message)
}

func (e *NodeExecutionError) Unwrap() error {
	return e.Err
}

func (e *NodeExecutionError) Is(target error) bool {
	return target == ErrNodeExecution
}

// NewExecutionError creates a non-retryable node error.
func NewExecutionError(nodeID, message string, err error) *NodeExecutionError {
	return &NodeExecutionError{NodeID: nodeID, Message: message, Err: err}
}

// NewRetryableError creates a node error the caller may retry.
func NewRetryableError(nodeID, message string, err error) *NodeExecutionError {
	return &NodeExecutionError{NodeID: nodeID, Message: message, Retryable: true, Err: err}
}

// AsExecutionError normalizes any error returned by a node body. Errors that already
// carry node information keep it; executor errors that expose Retryable() keep their
// retry hint.
func AsExecutionError(nodeID string, err error) *NodeExecutionError {
	if err == nil {
		return nil
	}

	var nodeErr *NodeExecutionError
	if errors.As(err, &nodeErr) {
		if nodeErr.NodeID == "" {
			nodeErr.NodeID = nodeID
		}

		return nodeErr
	}

	var hint interface{ Retryable() bool }

	retryable := errors.As(err, &hint) && hint.Retryable()

	return &NodeExecutionError{NodeID: nodeID, Message: "execution error", Retryable: retryable, Err: err}
}

// IsRetryable reports whether err carries a retryable node error.
func IsRetryable(err error) bool {
	var nodeErr *NodeExecutionError

	return errors.As(err, &nodeErr) && nodeErr.Retryable
}
