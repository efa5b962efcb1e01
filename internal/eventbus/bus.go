// Package eventbus is a small in-memory fanout carrying dispatch lifecycle
// events from the engine to observers (delivery-log recorder, diagnostics).
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event is one dispatch lifecycle signal.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Subscribers MUST use buffered channels.
//   - Slow subscribers may drop events (bounded backpressure).
//
// Payload holds the topic's typed event value (e.g. a terminal outcome or a
// retry notice) and should stay small.
type Event struct {
	Topic   string
	Time    time.Time
	Payload any
}

// Bus fans events out to subscribers. A subscription names the topics it
// wants; an empty topic list receives everything.
type Bus interface {
	Publish(e Event)
	Subscribe(buffer int, topics ...string) (ch <-chan Event, unsubscribe func())
}

// New returns a simple in-memory fanout bus.
//
// It intentionally does not own any background goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]*subscriber{}}
}

type subscriber struct {
	ch     chan Event
	topics map[string]bool // nil means all topics
}

func (s *subscriber) wants(topic string) bool {
	return s.topics == nil || s.topics[topic]
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]*subscriber
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Snapshot matching subscribers so Publish doesn't hold locks while
	// attempting sends.
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, s := range b.subs {
		if s.wants(e.Topic) {
			chs = append(chs, s.ch)
		}
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// Non-blocking delivery. If subscriber is slow, we drop.
		// If a subscriber unsubscribes concurrently and the channel closes,
		// recover from a possible panic (send on closed channel).
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}()
	}
}

func (b *memBus) Subscribe(buffer int, topics ...string) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	sub := &subscriber{ch: make(chan Event, buffer)}
	if len(topics) > 0 {
		sub.topics = make(map[string]bool, len(topics))
		for _, t := range topics {
			sub.topics[t] = true
		}
	}
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			// Closing is safe because Publish recovers from send panics.
			close(sub.ch)
		})
	}
	return sub.ch, unsub
}
