// Package events defines the lifecycle events a graph run emits to its callers.
package events

import (
	"time"

	"github.com/dukex/agentgraph/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic is the bus topic every run event is published on.
const Topic = "agentgraph.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Node lifecycle events.
	NodeStartingEvent    EventType = "node_starting"
	NodeCompletedEvent   EventType = "node_completed"
	NodeFailedEvent      EventType = "node_failed"
	NodePausedEvent      EventType = "node_paused"
	NodeSkippedEvent     EventType = "node_skipped"
	NodeOutputChunkEvent EventType = "node_output_chunk"

	// Run lifecycle events.
	DagStartEvent    EventType = "dag_start"
	DagCompleteEvent EventType = "dag_complete"
	DagResumedEvent  EventType = "dag_resumed"
)

type BaseEvent struct {
	ID             string          `json:"id"`
	Type           EventType       `json:"type"`
	Timestamp      time.Time       `json:"timestamp"`
	ExecutionID    string          `json:"execution_id"`
	ConversationID string          `json:"conversation_id"`
	Progress       models.Progress `json:"progress"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
}

func (b BaseEvent) GetType() EventType {
	return b.Type
}

// NodeEvent reports a node state change.
type NodeEvent struct {
	BaseEvent

	NodeID     string          `json:"node_id"`
	NodeName   string          `json:"node_name"`
	NodeType   models.NodeType `json:"node_type"`
	Status     string          `json:"status"`
	Output     any             `json:"output,omitempty"`
	Error      string          `json:"error,omitempty"`
	Retryable  bool            `json:"retryable,omitempty"`
	DurationMs int64           `json:"duration_ms,omitempty"`
}

// DagEvent reports a run state change.
type DagEvent struct {
	BaseEvent

	GraphID      string `json:"graph_id"`
	Status       string `json:"status"`
	Message      string `json:"message,omitempty"`
	PausedNodeID string `json:"paused_node_id,omitempty"`
	FailedNodeID string `json:"failed_node_id,omitempty"`
	DurationMs   int64  `json:"duration_ms,omitempty"`
}

// OutputChunk carries one piece of streamed node output. Sequence starts at zero for
// each node run; Final marks the terminal chunk.
type OutputChunk struct {
	BaseEvent

	NodeID   string `json:"node_id"`
	NodeName string `json:"node_name"`
	Sequence int    `json:"sequence"`
	Content  string `json:"content,omitempty"`
	Final    bool   `json:"final,omitempty"`
	Error    string `json:"error,omitempty"`
}

func NewBaseEvent(eventType EventType, executionID, conversationID string, progress models.Progress) BaseEvent {
	return BaseEvent{
		ID:             uuid.New().String(),
		Type:           eventType,
		Timestamp:      time.Now().UTC(),
		ExecutionID:    executionID,
		ConversationID: conversationID,
		Progress:       progress,
		Metadata:       make(map[string]any),
	}
}
