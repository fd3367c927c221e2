package execution

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dukex/agentgraph/pkg/models"
)

var (
	// ErrInvalidTransition indicates a status change the aggregate does not allow.
	ErrInvalidTransition = errors.New("invalid execution status transition")

	// ErrNotPaused indicates a resume of an execution that is not paused.
	ErrNotPaused = errors.New("execution is not paused")
)

// TransitionError reports a rejected status change.
type TransitionError struct {
	ExecutionID string
	From        models.ExecutionStatus
	To          models.ExecutionStatus
	Err         error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("execution %s cannot move from %s to %s: %v", e.ExecutionID, e.From, e.To, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// DeriveStatus computes the execution status from node statuses alone: any failure is
// FAILED, all nodes resolved is SUCCEEDED, no progress at all is PENDING, anything else
// is RUNNING.
func DeriveStatus(nodeStatuses map[string]models.NodeStatus) models.ExecutionStatus {
	pending, resolved := 0, 0

	for _, status := range nodeStatuses {
		switch status {
		case models.NodeStatusFailed:
			return models.ExecutionStatusFailed
		case models.NodeStatusPending, "":
			pending++
		case models.NodeStatusSucceeded, models.NodeStatusSkipped:
			resolved++
		}
	}

	switch {
	case len(nodeStatuses) > 0 && resolved == len(nodeStatuses):
		return models.ExecutionStatusSucceeded
	case pending == len(nodeStatuses):
		return models.ExecutionStatusPending
	default:
		return models.ExecutionStatusRunning
	}
}

// Aggregate guards an execution record and enforces its state machine. While the run
// is not paused the record status always equals DeriveStatus of its node statuses.
type Aggregate struct {
	mu     sync.Mutex
	record *models.Execution
	now    func() time.Time
}

// NewExecution starts a PENDING execution with every node PENDING.
func NewExecution(id, conversationID string, graph *models.Graph) *Aggregate {
	now := time.Now().UTC()

	statuses := make(map[string]models.NodeStatus, len(graph.Nodes))
	for nodeID := range graph.Nodes {
		statuses[nodeID] = models.NodeStatusPending
	}

	return &Aggregate{
		record: &models.Execution{
			ID:             id,
			ConversationID: conversationID,
			Graph:          graph,
			Status:         models.ExecutionStatusPending,
			NodeStatuses:   statuses,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// FromRecord wraps a persisted record.
func FromRecord(record *models.Execution) *Aggregate {
	if record.NodeStatuses == nil {
		record.NodeStatuses = map[string]models.NodeStatus{}
	}

	if record.Graph != nil {
		for nodeID := range record.Graph.Nodes {
			if _, ok := record.NodeStatuses[nodeID]; !ok {
				record.NodeStatuses[nodeID] = models.NodeStatusPending
			}
		}
	}

	return &Aggregate{record: record, now: func() time.Time { return time.Now().UTC() }}
}

// Record returns a copy of the record safe to persist while the run continues.
func (a *Aggregate) Record() *models.Execution {
	a.mu.Lock()
	defer a.mu.Unlock()

	record := *a.record

	record.NodeStatuses = make(map[string]models.NodeStatus, len(a.record.NodeStatuses))
	for k, v := range a.record.NodeStatuses {
		record.NodeStatuses[k] = v
	}

	if a.record.Snapshot != nil {
		record.Snapshot = a.record.Snapshot.Clone()
	}

	if a.record.PendingRequest != nil {
		request := *a.record.PendingRequest
		record.PendingRequest = &request
	}

	return &record
}

// SetVersion stores the version assigned by the repository.
func (a *Aggregate) SetVersion(version int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.record.Version = version
}

// Version returns the last persisted version.
func (a *Aggregate) Version() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.record.Version
}

// Status returns the current execution status.
func (a *Aggregate) Status() models.ExecutionStatus {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.record.Status
}

// NodeStatus returns the status of one node.
func (a *Aggregate) NodeStatus(nodeID string) models.NodeStatus {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.record.NodeStatuses[nodeID]
}

// Start moves a PENDING execution to RUNNING.
func (a *Aggregate) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.record.Status != models.ExecutionStatusPending {
		return &TransitionError{ExecutionID: a.record.ID, From: a.record.Status, To: models.ExecutionStatusRunning, Err: ErrInvalidTransition}
	}

	a.record.Status = models.ExecutionStatusRunning
	a.touch()

	return nil
}

// NodeStarted marks a node RUNNING.
func (a *Aggregate) NodeStarted(nodeID string) {
	a.setNode(nodeID, models.NodeStatusRunning)
}

// NodeSucceeded marks a node SUCCEEDED.
func (a *Aggregate) NodeSucceeded(nodeID string) {
	a.setNode(nodeID, models.NodeStatusSucceeded)
}

// NodeFailed marks a node FAILED, which fails the execution.
func (a *Aggregate) NodeFailed(nodeID string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.record.NodeStatuses[nodeID] = models.NodeStatusFailed
	a.record.CurrentNodeID = nodeID

	if err != nil {
		a.record.ErrorMessage = err.Error()
	}

	a.derive()
}

// ResetNodes returns nodes to PENDING for a re-execution.
func (a *Aggregate) ResetNodes(nodeIDs ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, nodeID := range nodeIDs {
		a.record.NodeStatuses[nodeID] = models.NodeStatusPending
	}

	a.derive()
}

// MarkSkipped marks nodes SKIPPED without propagation.
func (a *Aggregate) MarkSkipped(nodeIDs ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, nodeID := range nodeIDs {
		a.record.NodeStatuses[nodeID] = models.NodeStatusSkipped
	}

	a.derive()
}

// ApplyRouteDecision skips every candidate of routerID other than selected and then
// propagates: a node is skipped once all of its parents are skipped. An empty
// selection skips every candidate. It returns the newly skipped nodes.
func (a *Aggregate) ApplyRouteDecision(routerID, selected string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	graph := a.record.Graph
	if graph == nil {
		return nil
	}

	var skipped, queue []string

	for _, candidate := range graph.Candidates(routerID) {
		if candidate == selected {
			continue
		}

		if a.record.NodeStatuses[candidate] != models.NodeStatusPending {
			continue
		}

		a.record.NodeStatuses[candidate] = models.NodeStatusSkipped
		skipped = append(skipped, candidate)
		queue = append(queue, candidate)
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, edge := range graph.Outgoing(current, models.EdgeKindDependency, models.EdgeKindConditional) {
			child := edge.Target
			if a.record.NodeStatuses[child] != models.NodeStatusPending {
				continue
			}

			if !a.allParentsSkipped(child) {
				continue
			}

			a.record.NodeStatuses[child] = models.NodeStatusSkipped
			skipped = append(skipped, child)
			queue = append(queue, child)
		}
	}

	a.derive()
	sort.Strings(skipped)

	return skipped
}

// Runnable reports whether every parent of nodeID is resolved and at least one of them
// succeeded. Nodes without parents are always runnable.
func (a *Aggregate) Runnable(nodeID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.record.Graph == nil {
		return true
	}

	parents := a.record.Graph.Incoming(nodeID, models.EdgeKindDependency, models.EdgeKindConditional)
	if len(parents) == 0 {
		return true
	}

	succeeded := false

	for _, edge := range parents {
		status := a.record.NodeStatuses[edge.Source]
		if !status.IsResolved() {
			return false
		}

		if status == models.NodeStatusSucceeded {
			succeeded = true
		}
	}

	return succeeded
}

func (a *Aggregate) allParentsSkipped(nodeID string) bool {
	parents := a.record.Graph.Incoming(nodeID, models.EdgeKindDependency, models.EdgeKindConditional)
	if len(parents) == 0 {
		return false
	}

	for _, edge := range parents {
		if a.record.NodeStatuses[edge.Source] != models.NodeStatusSkipped {
			return false
		}
	}

	return true
}

// Pause moves a running execution to PAUSED (before-execution phase) or
// PAUSED_FOR_REVIEW (after-execution phase). The paused node returns to PENDING when it
// will run again, and is SUCCEEDED when its output is under review.
func (a *Aggregate) Pause(nodeID string, phase models.PausePhase, snapshot *models.ExecutionContextSnapshot, request *models.HumanInterventionRequest) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	status := models.ExecutionStatusPaused
	if phase.EffectivePhase() == models.PausePhaseAfterExecution {
		status = models.ExecutionStatusPausedForReview
	}

	if a.record.Status != models.ExecutionStatusRunning {
		return &TransitionError{ExecutionID: a.record.ID, From: a.record.Status, To: status, Err: ErrInvalidTransition}
	}

	if phase.EffectivePhase() == models.PausePhaseAfterExecution {
		a.record.NodeStatuses[nodeID] = models.NodeStatusSucceeded
	} else {
		a.record.NodeStatuses[nodeID] = models.NodeStatusPending
	}

	a.record.Status = status
	a.record.CurrentNodeID = nodeID
	a.record.PausedNodeID = nodeID
	a.record.PausedPhase = phase
	a.record.Snapshot = snapshot
	a.record.PendingRequest = request
	a.touch()

	return nil
}

// Resume moves a paused execution back to RUNNING and clears the paused markers. It
// returns the paused node and the phase to honour.
func (a *Aggregate) Resume() (string, models.PausePhase, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.record.Status.IsPaused() {
		return "", "", &TransitionError{ExecutionID: a.record.ID, From: a.record.Status, To: models.ExecutionStatusRunning, Err: ErrNotPaused}
	}

	nodeID := a.record.PausedNodeID
	phase := a.record.PausedPhase.EffectivePhase()

	a.record.Status = models.ExecutionStatusRunning
	a.record.PausedNodeID = ""
	a.record.PausedPhase = ""
	a.record.PendingRequest = nil
	a.touch()

	return nodeID, phase, nil
}

// Fail forces the execution to FAILED, marking running nodes as failed.
func (a *Aggregate) Fail(message string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for nodeID, status := range a.record.NodeStatuses {
		if status == models.NodeStatusRunning {
			a.record.NodeStatuses[nodeID] = models.NodeStatusFailed
		}
	}

	a.record.ErrorMessage = message
	a.record.Status = models.ExecutionStatusFailed
	a.finish()
}

// Complete resolves the remaining pending nodes as SKIPPED and derives the final status.
func (a *Aggregate) Complete() models.ExecutionStatus {
	a.mu.Lock()
	defer a.mu.Unlock()

	for nodeID, status := range a.record.NodeStatuses {
		if status == models.NodeStatusPending {
			a.record.NodeStatuses[nodeID] = models.NodeStatusSkipped
		}
	}

	a.derive()

	return a.record.Status
}

func (a *Aggregate) setNode(nodeID string, status models.NodeStatus) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.record.NodeStatuses[nodeID] = status
	if status == models.NodeStatusRunning {
		a.record.CurrentNodeID = nodeID
	}

	a.derive()
}

// derive keeps the status a function of node statuses while not paused. A started
// execution never returns to PENDING and a failed one stays failed. Callers hold mu.
func (a *Aggregate) derive() {
	if a.record.Status == models.ExecutionStatusFailed {
		a.finish()

		return
	}

	if !a.record.Status.IsPaused() {
		derived := DeriveStatus(a.record.NodeStatuses)
		if derived == models.ExecutionStatusPending && a.record.Status != models.ExecutionStatusPending {
			derived = models.ExecutionStatusRunning
		}

		a.record.Status = derived
	}

	if a.record.Status.IsTerminal() {
		a.finish()

		return
	}

	a.touch()
}

func (a *Aggregate) touch() {
	a.record.UpdatedAt = a.now()
}

func (a *Aggregate) finish() {
	now := a.now()
	a.record.UpdatedAt = now

	if a.record.CompletedAt == nil {
		a.record.CompletedAt = &now
	}
}
