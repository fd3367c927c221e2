package mocks

import (
	"context"
	"sync"

	"github.com/dukex/agentgraph/pkg/eventbus"
	"github.com/dukex/agentgraph/pkg/events"
	"github.com/stretchr/testify/mock"
)

// MockEventBus is a mock implementation of eventbus.EventBus interface.
type MockEventBus struct {
	mock.Mock
}

func (m *MockEventBus) Publish(ctx context.Context, key string, event eventbus.Event) error {
	args := m.Called(ctx, key, event)

	return args.Error(0)
}

func (m *MockEventBus) Handle(eventType events.EventType, handler eventbus.EventHandler) error {
	args := m.Called(eventType, handler)

	return args.Error(0)
}

func (m *MockEventBus) Subscribe(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockEventBus) Close() error {
	args := m.Called()

	return args.Error(0)
}

func (m *MockEventBus) GenerateID() string {
	args := m.Called()

	return args.String(0)
}

// RecordingSink is an eventbus.EventSink that keeps every event in memory.
type RecordingSink struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (s *RecordingSink) Emit(_ context.Context, _ string, event eventbus.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, event)
}

// Events returns the recorded events in emission order.
func (s *RecordingSink) Events() []eventbus.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]eventbus.Event(nil), s.events...)
}

// Types returns the recorded event types in emission order.
func (s *RecordingSink) Types() []events.EventType {
	var types []events.EventType

	for _, event := range s.Events() {
		types = append(types, event.GetType())
	}

	return types
}

// NodeEvents returns the node events of the given type.
func (s *RecordingSink) NodeEvents(eventType events.EventType) []*events.NodeEvent {
	var found []*events.NodeEvent

	for _, event := range s.Events() {
		if nodeEvent, ok := event.(*events.NodeEvent); ok && nodeEvent.Type == eventType {
			found = append(found, nodeEvent)
		}
	}

	return found
}
