package redis

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"quiz-session-service/internal/domain"
)

// Broadcaster publishes session events over Redis pub/sub so every instance
// serving WebSocket subscribers sees them. Channels carry no history: a
// subscriber that connects after an event was published never receives it.
type Broadcaster struct {
	client *redis.Client
}

func NewBroadcaster(client *redis.Client) *Broadcaster {
	return &Broadcaster{client: client}
}

// Publish sends one event on the session's channel. The caller is expected
// to treat failures as best-effort; this method only reports them.
func (b *Broadcaster) Publish(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channelFor(event.SessionID), payload).Err()
}

// Subscribe streams a session's events until cancel is called or ctx ends.
func (b *Broadcaster) Subscribe(ctx context.Context, sessionID string) (<-chan domain.Event, func(), error) {
	pubsub := b.client.Subscribe(ctx, channelFor(sessionID))
	// Force the subscription to be established before returning, so events
	// published right after Subscribe are not lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}

	events := make(chan domain.Event, 8)
	go func() {
		defer close(events)
		for msg := range pubsub.Channel() {
			var event domain.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Printf("[broadcast] drop undecodable event on %s: %v", msg.Channel, err)
				continue
			}
			select {
			case events <- event:
			default:
				// Slow subscriber: drop rather than stall the pump.
			}
		}
	}()

	cancel := func() {
		_ = pubsub.Close()
	}
	return events, cancel, nil
}

func channelFor(sessionID string) string {
	return "session:" + sessionID + ":events"
}
