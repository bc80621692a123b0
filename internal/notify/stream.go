package notify

import (
	"context"

	"github.com/starford/seedkeeper/internal/sse"
)

// Stream publishes events to SSE subscribers as "notification" events.
type Stream struct {
	broker *sse.Broker
}

// NewStream returns a sink backed by broker.
func NewStream(broker *sse.Broker) *Stream {
	return &Stream{broker: broker}
}

// Notify implements Notifier.
func (s *Stream) Notify(_ context.Context, e Event) error {
	s.broker.Publish(sse.Event{Type: "notification", Data: e})
	return nil
}
