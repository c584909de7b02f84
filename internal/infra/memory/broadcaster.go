package memory

import (
	"context"
	"sync"

	"quiz-session-service/internal/domain"
)

// Broadcaster fans events out to in-process subscribers, keyed by session id.
// It implements both app.Broadcaster and app.Subscriber for single-node
// deployments and tests. Late subscribers see nothing retroactively; the
// channel carries no history.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan domain.Event]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[string]map[chan domain.Event]struct{})}
}

func (b *Broadcaster) Publish(_ context.Context, event domain.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers[event.SessionID] {
		select {
		case ch <- event:
		default:
			// Drop the oldest pending event so a slow subscriber never
			// blocks the publisher; reconnecting clients re-fetch state
			// via the pull path anyway.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- event:
			default:
			}
		}
	}
	return nil
}

func (b *Broadcaster) Subscribe(_ context.Context, sessionID string) (<-chan domain.Event, func(), error) {
	ch := make(chan domain.Event, 8)

	b.mu.Lock()
	set, ok := b.subscribers[sessionID]
	if !ok {
		set = make(map[chan domain.Event]struct{})
		b.subscribers[sessionID] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		set, ok := b.subscribers[sessionID]
		if !ok {
			return
		}
		if _, ok := set[ch]; ok {
			delete(set, ch)
			close(ch)
		}
		if len(set) == 0 {
			delete(b.subscribers, sessionID)
		}
	}
	return ch, cancel, nil
}
