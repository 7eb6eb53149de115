package manager

import (
	"sync"
	"time"
)

// StatusEvent is emitted on every state transition. The stream is finite:
// it is closed when the trade reaches a terminal state.
type StatusEvent struct {
	Timestamp     time.Time
	State         TradeState
	Price         float64
	RemainingSize int64
}

type eventBus struct {
	mu     sync.Mutex
	subs   []chan StatusEvent
	closed bool
}

func newEventBus() *eventBus {
	return &eventBus{}
}

// Subscribe returns a buffered channel of events. Subscribing after the
// trade is terminal yields an already-closed channel.
func (b *eventBus) Subscribe() <-chan StatusEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan StatusEvent, 64)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Publish delivers ev to all subscribers. Slow subscribers drop events
// rather than block the tick loop.
func (b *eventBus) Publish(ev StatusEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close closes all subscriber channels. Safe to call once.
func (b *eventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
