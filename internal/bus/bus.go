// Package bus provides the in-process event bus that bridges agent activity
// to dashboard listeners. It keeps a bounded ring of recent events and fans
// new events out to subscribers without ever blocking a publisher.
package bus

import (
	"sync"
	"time"

	"github.com/autonome-labs/autonome/internal/model"
)

const (
	defaultCapacity  = 200
	subscriberBuffer = 32
)

// Bus is an explicitly constructed fan-out hub. Pass the same instance to
// every component that publishes or subscribes; there is no global.
type Bus struct {
	mu       sync.Mutex
	events   []model.AgentEvent
	capacity int
	subs     map[int]chan model.AgentEvent
	nextSub  int
}

// New creates a Bus retaining up to capacity recent events. A non-positive
// capacity falls back to the default of 200.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Bus{
		capacity: capacity,
		subs:     make(map[int]chan model.AgentEvent),
	}
}

// Publish records an event and delivers it to all subscribers. Subscribers
// with full channels miss the event rather than stalling the publisher.
func (b *Bus) Publish(eventType string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	ev := model.AgentEvent{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	b.mu.Lock()
	b.events = append(b.events, ev)
	if len(b.events) > b.capacity {
		b.events = b.events[len(b.events)-b.capacity:]
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	b.mu.Unlock()
}

// Recent returns up to n of the most recent events, oldest first.
func (b *Bus) Recent(n int) []model.AgentEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n <= 0 || n > len(b.events) {
		n = len(b.events)
	}
	out := make([]model.AgentEvent, n)
	copy(out, b.events[len(b.events)-n:])
	return out
}

// Subscribe registers a listener. The returned cancel func removes the
// listener and closes its channel; it is safe to call more than once.
func (b *Bus) Subscribe() (<-chan model.AgentEvent, func()) {
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	ch := make(chan model.AgentEvent, subscriberBuffer)
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}
