// Package bus is the in-process notification fabric between pipeline stages
// and the dashboard fan-out. Delivery is best-effort: a subscriber that
// cannot keep up loses notifications rather than stalling publishers.
package bus

import (
	"sync"

	"github.com/pulsegrid/pulsegrid/internal/metric"
	"github.com/pulsegrid/pulsegrid/pkg/log"
)

// Notification types published by the durable pipeline.
const (
	TypeIngested  = "metric.ingested"
	TypeProcessed = "metric.processed"
)

// Notification announces a pipeline stage transition for one event.
type Notification struct {
	Type    string       `json:"type"`
	EntryID uint64       `json:"entryId"`
	Event   metric.Event `json:"payload"`
}

const subscriberBuffer = 64

// Bus fans notifications out to subscribers without blocking publishers.
type Bus struct {
	logger log.Logger

	mu     sync.Mutex
	subs   map[int]chan Notification
	nextID int
	closed bool
}

// New builds an empty bus.
func New(logger log.Logger) *Bus {
	return &Bus{
		logger: logger.WithComponent("bus"),
		subs:   make(map[int]chan Notification),
	}
}

// Subscribe registers a new subscriber and returns its channel plus a cancel
// function. Cancel is idempotent and closes the channel.
func (b *Bus) Subscribe() (<-chan Notification, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Notification, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
	return ch, cancel
}

// Publish delivers n to every subscriber. Full subscriber buffers drop the
// notification for that subscriber only.
func (b *Bus) Publish(n Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for id, ch := range b.subs {
		select {
		case ch <- n:
		default:
			b.logger.Warn("dropping notification for slow subscriber",
				log.Int("subscriber", id), log.Str("type", n.Type), log.Uint64("entry_id", n.EntryID))
		}
	}
}

// SubscriberCount reports the number of live subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close shuts the bus down: all subscriber channels close and further
// publishes are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
