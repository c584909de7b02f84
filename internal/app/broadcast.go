package app

import (
	"context"
	"log"
	"time"

	"quiz-session-service/internal/domain"
)

// Broadcaster publishes events on a per-session channel.
type Broadcaster interface {
	Publish(ctx context.Context, event domain.Event) error
}

// Subscriber delivers a session's event stream. The caller must invoke the
// returned cancel function to avoid leaks.
type Subscriber interface {
	Subscribe(ctx context.Context, sessionID string) (<-chan domain.Event, func(), error)
}

// DefaultPublishTimeout bounds how long a publish may hold up its caller.
const DefaultPublishTimeout = 2 * time.Second

// publishEvent sends an event best-effort. A slow or unreachable transport
// never fails the triggering operation: errors are logged and swallowed,
// and the bounded timeout keeps the write path from stalling.
func publishEvent(b Broadcaster, timeout time.Duration, t domain.EventType, sessionID string, payload any) {
	if b == nil {
		return
	}
	event, err := domain.NewEvent(t, sessionID, payload)
	if err != nil {
		log.Printf("[broadcast] encode %s event for session %s: %v", t, sessionID, err)
		return
	}
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := b.Publish(ctx, event); err != nil {
		log.Printf("[broadcast] publish %s for session %s: %v", t, sessionID, err)
	}
}
