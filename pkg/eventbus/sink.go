package eventbus

import (
	"context"
	"log/slog"
)

// EventSink receives run lifecycle events. Emitting never fails the caller.
type EventSink interface {
	Emit(ctx context.Context, key string, event Event)
}

// NoopSink drops every event.
type NoopSink struct{}

func (NoopSink) Emit(context.Context, string, Event) {}

// PublisherSink forwards events to a publisher, logging and swallowing failures.
type PublisherSink struct {
	publisher EventPublisher
	logger    *slog.Logger
}

// NewPublisherSink wraps a publisher. A nil publisher yields a sink that drops events.
func NewPublisherSink(publisher EventPublisher, logger *slog.Logger) EventSink {
	if publisher == nil {
		return NoopSink{}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PublisherSink{publisher: publisher, logger: logger}
}

func (s *PublisherSink) Emit(ctx context.Context, key string, event Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "Event publisher panicked", "event_type", event.GetType(), "panic", r)
		}
	}()

	if err := s.publisher.Publish(ctx, key, event); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "key", key, "error", err)
	}
}
