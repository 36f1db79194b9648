// Package events provides the in-process publish/subscribe hub that
// decouples the transport layer from every consumer. Delivery is
// synchronous: handlers run in registration order on the publisher's
// goroutine, with no buffering and no replay for late subscribers.
package events

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Handler is the canonical handler signature for bus events.
type Handler func(data interface{})

// subscription wraps a handler so removal during an in-flight publish
// suppresses the handler without mutating the slice being iterated.
type subscription struct {
	fn      Handler
	removed atomic.Bool
}

// Bus fans events out to topic subscribers.
type Bus struct {
	mu     sync.Mutex
	topics map[string][]*subscription
	log    *zap.Logger
}

// NewBus creates a new event bus.
func NewBus(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{
		topics: make(map[string][]*subscription),
		log:    log,
	}
}

// Subscribe registers a handler for a topic and returns an unsubscribe
// function. Calling it more than once is safe.
func (b *Bus) Subscribe(topic string, fn Handler) func() {
	sub := &subscription{fn: fn}
	b.add(topic, sub)
	return func() { b.remove(topic, sub) }
}

// SubscribeOnce registers a handler that is removed after its first
// invocation. The returned function cancels the subscription early.
// The handler is assembled in full before the subscription becomes
// visible, so a publisher on another goroutine can never observe it
// half-built.
func (b *Bus) SubscribeOnce(topic string, fn Handler) func() {
	sub := &subscription{}
	var once sync.Once
	sub.fn = func(data interface{}) {
		once.Do(func() {
			b.remove(topic, sub)
			fn(data)
		})
	}
	b.add(topic, sub)
	return func() { b.remove(topic, sub) }
}

func (b *Bus) add(topic string, sub *subscription) {
	b.mu.Lock()
	b.topics[topic] = append(b.topics[topic], sub)
	b.mu.Unlock()
}

func (b *Bus) remove(topic string, sub *subscription) {
	if sub.removed.Swap(true) {
		return
	}
	b.mu.Lock()
	subs := b.topics[topic]
	for i, s := range subs {
		if s == sub {
			b.topics[topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.topics[topic]) == 0 {
		delete(b.topics, topic)
	}
	b.mu.Unlock()
}

// Publish invokes every current subscriber of the topic, in
// registration order, on the caller's goroutine. Subscribers added
// during the publish do not see the in-flight event; subscribers
// removed during the publish are skipped if removal happened before
// their turn.
func (b *Bus) Publish(topic string, data interface{}) {
	b.mu.Lock()
	subs := make([]*subscription, len(b.topics[topic]))
	copy(subs, b.topics[topic])
	b.mu.Unlock()

	if len(subs) == 0 {
		b.log.Debug("event published with no subscribers", zap.String("topic", topic))
		return
	}
	for _, sub := range subs {
		if sub.removed.Load() {
			continue
		}
		sub.fn(data)
	}
}

// Subscribers returns the current subscriber count for a topic.
func (b *Bus) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}
