package scan

import (
	"context"
	"sync"

	"github.com/clausebit/companion/internal/model"
)

// Broadcaster fans badge events out to live subscribers such as SSE streams.
// Slow subscribers miss events rather than block the coordinator.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan model.BadgeEvent
	nextID int
}

// NewBroadcaster creates a Broadcaster with no subscribers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan model.BadgeEvent)}
}

// Subscribe registers a subscriber. The returned cancel func must be
// called to release it; the channel is closed afterwards.
func (b *Broadcaster) Subscribe(buffer int) (<-chan model.BadgeEvent, func()) {
	ch := make(chan model.BadgeEvent, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// NewResult delivers ev to every subscriber with buffer space.
func (b *Broadcaster) NewResult(_ context.Context, ev model.BadgeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Len returns the number of subscribers.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
