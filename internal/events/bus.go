// Package events dispatches domain events to in-process subscribers and,
// optionally, to an external queue.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kinship/backend/internal/logging"
)

// Topics published by the domain packages.
const (
	FriendshipRequested = "friendship.requested"
	FriendshipAccepted  = "friendship.accepted"
	FriendshipRejected  = "friendship.rejected"
	FriendshipWithdrawn = "friendship.withdrawn"
	FriendshipRemoved   = "friendship.removed"
	ProfileUpdated      = "profile.updated"
	MemberRegistered    = "member.registered"
	MemberAvatarChanged = "member.avatar_changed"
	ActivityRecorded    = "activity.recorded"
)

// Event is a single occurrence. Payload values must be JSON-encodable.
type Event struct {
	Topic      string            `json:"topic"`
	ActorID    string            `json:"actorId,omitempty"`
	Payload    map[string]string `json:"payload,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
}

// Handler reacts to an event.
type Handler func(ctx context.Context, evt Event) error

// Publisher publishes events.
type Publisher interface {
	Publish(ctx context.Context, evt Event)
}

// Sink receives every published event after the subscribers ran.
type Sink interface {
	Enqueue(ctx context.Context, evt Event) error
}

// Bus calls subscribers synchronously in registration order. A failing
// subscriber is logged and does not stop the others.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	sinks    []Sink
	now      func() time.Time
}

// NewBus constructs an empty Bus.
func NewBus(sinks ...Sink) *Bus {
	return &Bus{handlers: make(map[string][]Handler), sinks: sinks, now: time.Now}
}

// Subscribe registers h for topic.
func (b *Bus) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	b.handlers[topic] = append(b.handlers[topic], h)
	b.mu.Unlock()
}

// Publish implements Publisher.
func (b *Bus) Publish(ctx context.Context, evt Event) {
	if b == nil {
		return
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = b.now().UTC()
	}

	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[evt.Topic]...)
	sinks := b.sinks
	b.mu.RUnlock()

	if len(handlers) > 0 {
		var span *logging.Span
		ctx, span = logging.StartSpan(ctx, "event "+evt.Topic)
		defer span.End()
	}

	logger := logging.FromContext(ctx)
	for _, h := range handlers {
		if err := h(ctx, evt); err != nil {
			logger.Error("event subscriber failed", slog.String("topic", evt.Topic), slog.Any("error", err))
		}
	}
	for _, s := range sinks {
		if err := s.Enqueue(ctx, evt); err != nil {
			logger.Warn("event sink rejected event", slog.String("topic", evt.Topic), slog.Any("error", err))
		}
	}
}

// Discard is a Publisher that drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, Event) {}
