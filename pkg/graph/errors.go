package graph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidGraph indicates the graph definition failed validation.
	ErrInvalidGraph = errors.New("invalid graph")

	// ErrCyclicDependency indicates the non-loop-back edges form a cycle.
	ErrCyclicDependency = errors.New("cyclic dependency")
)

// GraphConfigError reports a graph or node configuration problem found before execution.
type GraphConfigError struct {
	NodeID string // Node ID if the problem is node scoped
	Field  string // Offending field if known
	Reason string
	Err    error
}

func (e *GraphConfigError) Error() string {
	var b strings.Builder

	b.WriteString("graph configuration error")

	if e.NodeID != "" {
		fmt.Fprintf(&b, " in node %s", e.NodeID)
	}

	if e.Field != "" {
		fmt.Fprintf(&b, " (field %s)", e.Field)
	}

	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}

	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}

	return b.String()
}

func (e *GraphConfigError) Unwrap() error {
	return e.Err
}

// Is matches ErrInvalidGraph as well as the wrapped error.
func (e *GraphConfigError) Is(target error) bool {
	return target == ErrInvalidGraph || errors.Is(e.Err, target)
}

// NewGraphConfigError creates a node scoped configuration error.
func NewGraphConfigError(nodeID, reason string, err error) *GraphConfigError {
	return &GraphConfigError{NodeID: nodeID, Reason: reason, Err: err}
}

// CyclicDependencyError is returned by the sorter when some nodes could not be ordered.
type CyclicDependencyError struct {
	Unresolved []string // Nodes left with a positive in-degree
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("cyclic dependency detected among nodes: %s", strings.Join(e.Unresolved, ", "))
}

func (e *CyclicDependencyError) Is(target error) bool {
	return target == ErrCyclicDependency
}

// IsGraphConfigError checks if an error is a graph configuration error.
func IsGraphConfigError(err error) bool {
	var configErr *GraphConfigError

	return errors.As(err, &configErr)
}

// IsCyclicDependency checks if an error reports a dependency cycle.
func IsCyclicDependency(err error) bool {
	return errors.Is(err, ErrCyclicDependency)
}
