package mock

import (
	"sync"

	"github.com/zhmcio/zhmcgo/core"
)

// Hub is the in-memory notification bus of the mock HMC. It fans published
// notifications out to every subscription of the topic, in publish order.
type Hub struct {
	mu     sync.Mutex
	topics map[string][]*subscription
}

// NewHub builds an empty hub.
func NewHub() *Hub {
	return &Hub{topics: make(map[string][]*subscription)}
}

// Subscribe opens a subscription on a topic. The returned subscription
// implements core.NotificationSource.
func (h *Hub) Subscribe(topic string) *subscription {
	sub := &subscription{
		hub:   h,
		topic: topic,
		in:    make(chan core.Notification, 64),
		out:   make(chan core.Notification),
		done:  make(chan struct{}),
	}
	go sub.forward()
	h.mu.Lock()
	h.topics[topic] = append(h.topics[topic], sub)
	h.mu.Unlock()
	return sub
}

// Publish delivers a notification to every subscription of the topic.
// Delivery blocks when a subscriber's buffer is full, preserving order.
func (h *Hub) Publish(topic string, n core.Notification) {
	h.mu.Lock()
	subs := make([]*subscription, len(h.topics[topic]))
	copy(subs, h.topics[topic])
	h.mu.Unlock()
	for _, sub := range subs {
		select {
		case sub.in <- n:
		case <-sub.done:
		}
	}
}

// Subscribers returns the number of open subscriptions on a topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[topic])
}

func (h *Hub) unsubscribe(sub *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.topics[sub.topic]
	for i, s := range subs {
		if s == sub {
			h.topics[sub.topic] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// subscription is one open subscription on the hub. The forwarding
// goroutine is the only writer of the outbound channel, so Close never
// races a concurrent Publish.
type subscription struct {
	hub   *Hub
	topic string
	in    chan core.Notification
	out   chan core.Notification

	closeOnce sync.Once
	done      chan struct{}
}

func (s *subscription) forward() {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case n := <-s.in:
			select {
			case s.out <- n:
			case <-s.done:
				return
			}
		}
	}
}

// Notifications returns the delivery channel, closed when the subscription
// is closed.
func (s *subscription) Notifications() <-chan core.Notification {
	return s.out
}

// Close ends the subscription. Idempotent.
func (s *subscription) Close() error {
	s.closeOnce.Do(func() {
		s.hub.unsubscribe(s)
		close(s.done)
	})
	return nil
}
