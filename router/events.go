package router

import (
	"sync"

	"github.com/meshrpc/meshrpc/status"
)

// DefaultSubscriberQueueDepth is the default bound on each topology
// subscriber's outbound queue, per spec.md §5.
const DefaultSubscriberQueueDepth = 64

// eventSub is one subscribeToEvents caller's delivery channel.
type eventSub struct {
	id     uint64
	events chan TopologyEvent
	drop   func(status.Code, string) // invoked once if the subscriber is dropped for being slow
}

// eventBus fans topology events out to every subscriber through an
// independent bounded queue, per spec.md §5: "per-subscriber outbound
// queues are independent and lock-free between broadcaster and
// subscriber... exceeding the bound drops the subscriber rather than
// the producer."
type eventBus struct {
	mu        sync.Mutex
	subs      map[uint64]*eventSub
	depth     int
	nextSubID uint64
}

func newEventBus(depth int) *eventBus {
	if depth <= 0 {
		depth = DefaultSubscriberQueueDepth
	}
	return &eventBus{subs: make(map[uint64]*eventSub), depth: depth}
}

// subscribe registers a new subscriber and returns its channel plus an
// unsubscribe function.
func (b *eventBus) subscribe(drop func(status.Code, string)) (uint64, <-chan TopologyEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSubID++
	id := b.nextSubID
	sub := &eventSub{id: id, events: make(chan TopologyEvent, b.depth), drop: drop}
	b.subs[id] = sub
	return id, sub.events, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// publish delivers evt to every subscriber without blocking the
// broadcaster: a subscriber whose queue is full is dropped instead.
func (b *eventBus) publish(evt TopologyEvent) {
	b.mu.Lock()
	subs := make([]*eventSub, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		select {
		case s.events <- evt:
		default:
			b.mu.Lock()
			delete(b.subs, s.id)
			b.mu.Unlock()
			close(s.events)
			if s.drop != nil {
				s.drop(status.ResourceExhausted, "topology event subscriber queue overflowed")
			}
		}
	}
}
