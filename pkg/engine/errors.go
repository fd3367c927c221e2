package engine

import (
	"errors"
	"fmt"

	"github.com/dukex/agentgraph/pkg/persistence"
)

var (
	// ErrNotPaused indicates a resume of a conversation whose latest run is not paused.
	ErrNotPaused = errors.New("execution is not paused")

	// ErrNoPendingReview indicates a paused run without a stored intervention request.
	ErrNoPendingReview = errors.New("no pending review")

	// ErrVersionConflict indicates the record changed concurrently, typically two resumes racing.
	ErrVersionConflict = errors.New("execution was modified concurrently")
)

// InterruptedError reports a run cancelled from outside while nodes were running.
type InterruptedError struct {
	ExecutionID string
	Err         error
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("execution %s interrupted: %v", e.ExecutionID, e.Err)
}

func (e *InterruptedError) Unwrap() error {
	return e.Err
}

// IsInterrupted checks if an error reports an external cancellation.
func IsInterrupted(err error) bool {
	var interrupted *InterruptedError

	return errors.As(err, &interrupted)
}

// mapPersistenceError translates a stale record version into ErrVersionConflict.
func mapPersistenceError(err error) error {
	if persistence.IsStaleVersion(err) {
		return errors.Join(ErrVersionConflict, err)
	}

	return err
}
