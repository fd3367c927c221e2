package execution

import (
	"sort"
	"time"

	"github.com/dukex/agentgraph/pkg/models"
)

// FromContext captures the serializable part of a context at pause time. System values
// are never included.
func FromContext(c *Context, pausedNodeID string, pausedAt time.Time) *models.ExecutionContextSnapshot {
	snapshot := &models.ExecutionContextSnapshot{
		PausedNodeID:    pausedNodeID,
		ExecutedNodeIDs: c.ExecutedNodeIDs(),
		PausedAt:        pausedAt.UTC(),
		NodeResults:     c.Results(),
		UserInput:       c.UserInput(),
		CustomVariables: c.Variables(),
		MessageHistory:  c.History(),
	}

	return snapshot
}

// RestoreToContext writes a snapshot into a fresh context. Results are replayed in their
// original completion order so the trace ends on the last executed node.
func RestoreToContext(snapshot *models.ExecutionContextSnapshot, c *Context) {
	if snapshot == nil {
		return
	}

	c.SetUserInput(snapshot.UserInput)

	for key, value := range snapshot.CustomVariables {
		c.Set(key, value)
	}

	replayed := make(map[string]bool, len(snapshot.NodeResults))

	for _, nodeID := range snapshot.ExecutedNodeIDs {
		if result, ok := snapshot.NodeResults[nodeID]; ok {
			c.SetResult(result)
			replayed[nodeID] = true
		}
	}

	// Results added by a reviewer have no execution order.
	var extra []string

	for nodeID := range snapshot.NodeResults {
		if !replayed[nodeID] {
			extra = append(extra, nodeID)
		}
	}

	sort.Strings(extra)

	for _, nodeID := range extra {
		c.SetResult(snapshot.NodeResults[nodeID])
	}

	for _, msg := range snapshot.MessageHistory {
		c.AppendMessage(msg)
	}
}
