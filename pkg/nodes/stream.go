package nodes

import (
	"context"
	"sync"

	"github.com/dukex/agentgraph/pkg/eventbus"
	"github.com/dukex/agentgraph/pkg/events"
	"github.com/dukex/agentgraph/pkg/execution"
	"github.com/dukex/agentgraph/pkg/models"
)

// EventStream turns executor chunks into node_output_chunk events. Chunks published
// after the terminal signal are dropped.
type EventStream struct {
	sink eventbus.EventSink
	exec *execution.Context
	spec *models.NodeSpec

	mu       sync.Mutex
	sequence int
	closed   bool
}

// NewEventStream creates the stream of one node run.
func NewEventStream(sink eventbus.EventSink, exec *execution.Context, spec *models.NodeSpec) *EventStream {
	if sink == nil {
		sink = eventbus.NoopSink{}
	}

	return &EventStream{sink: sink, exec: exec, spec: spec}
}

func (s *EventStream) Chunk(ctx context.Context, content string) error {
	s.emit(ctx, content, false, "")

	return nil
}

func (s *EventStream) Complete(ctx context.Context) error {
	s.emit(ctx, "", true, "")

	return nil
}

func (s *EventStream) Fail(ctx context.Context, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}

	s.emit(ctx, "", true, message)

	return nil
}

// Sequence returns how many chunks were emitted so far.
func (s *EventStream) Sequence() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sequence
}

func (s *EventStream) emit(ctx context.Context, content string, final bool, errMessage string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()

		return
	}

	sequence := s.sequence
	s.sequence++
	s.closed = final

	// Emitting under the lock keeps chunks ordered for one node.
	defer s.mu.Unlock()

	s.sink.Emit(ctx, s.exec.ConversationID, &events.OutputChunk{
		BaseEvent: events.NewBaseEvent(events.NodeOutputChunkEvent, s.exec.ExecutionID, s.exec.ConversationID, s.exec.Progress()),
		NodeID:    s.spec.ID,
		NodeName:  s.spec.DisplayName(),
		Sequence:  sequence,
		Content:   content,
		Final:     final,
		Error:     errMessage,
	})
}
