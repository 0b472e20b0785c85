// Package bus provides the in-process trigger channel used to propagate
// run signals between pipeline stages. Delivery is best-effort and
// host-process-local; there is no networked transport.
package bus

import (
	"log/slog"
	"sync"
)

// Topic identifies the kind of trigger signal
type Topic string

const (
	TopicRunRequested    Topic = "run-requested"
	TopicRunCompleted    Topic = "run-completed"
	TopicDeleteRequested Topic = "delete-requested"
)

// Signal is one trigger message. StageID is the addressee; SourceID is
// the stage whose completion caused the signal (empty for user-initiated
// runs). RunID correlates signals belonging to one dispatcher run.
type Signal struct {
	Topic    Topic
	StageID  string
	SourceID string
	RunID    string
}

// subscriberBuffer bounds how many undelivered signals a slow subscriber
// may accumulate before further signals are dropped.
const subscriberBuffer = 16

type subscriber struct {
	stageID string
	ch      chan Signal
}

// Bus routes signals to subscribers by stage ID match
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]*subscriber
	closed bool
}

// New creates an empty trigger bus
func New() *Bus {
	return &Bus{subs: make(map[string][]*subscriber)}
}

// Subscribe registers interest in signals addressed to stageID.
// The returned cancel func removes the subscription and closes the
// channel; call it at stage teardown.
func (b *Bus) Subscribe(stageID string) (<-chan Signal, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscriber{stageID: stageID, ch: make(chan Signal, subscriberBuffer)}
	b.subs[stageID] = append(b.subs[stageID], sub)

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		list := b.subs[stageID]
		for i, s := range list {
			if s == sub {
				b.subs[stageID] = append(list[:i], list[i+1:]...)
				close(s.ch)
				return
			}
		}
	}
	return sub.ch, cancel
}

// Publish delivers the signal to every subscriber of sig.StageID.
// A subscriber with a full buffer misses the signal; the next trigger
// or poll re-checks readiness, so a drop is not fatal.
func (b *Bus) Publish(sig Signal) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, sub := range b.subs[sig.StageID] {
		select {
		case sub.ch <- sig:
		default:
			slog.Warn("Dropping trigger signal, subscriber buffer full",
				"topic", sig.Topic, "stage", sig.StageID, "source", sig.SourceID)
		}
	}
}

// Close shuts down the bus and closes all subscriber channels
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, list := range b.subs {
		for _, sub := range list {
			close(sub.ch)
		}
	}
	b.subs = make(map[string][]*subscriber)
}
