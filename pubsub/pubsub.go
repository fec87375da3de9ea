// Package pubsub is the in-process fan-out channel between the lifecycle
// engine and whoever wants to watch orders move (the websocket endpoint,
// tests).
//
// Delivery is best effort: a subscriber that joins after a message was
// published misses it, and a subscriber that cannot keep up has messages
// dropped rather than slowing everyone else down.
package pubsub

import (
	"sync"
	"time"

	"github.com/rustyeddy/signals/store"
)

// Update is one order state change.
type Update struct {
	OrderID string       `json:"order_id"`
	Status  store.Status `json:"status"`
	Price   *float64     `json:"price,omitempty"`
	PnL     *float64     `json:"pnl,omitempty"`
	At      time.Time    `json:"at"`
}

// subscriber buffer; beyond this, messages are dropped for that subscriber.
const subscriberBuffer = 64

// Broker is the publish/subscribe registry.
type Broker struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// Subscription is one registered listener. Receive from C; call Cancel
// when done. C is closed after Cancel or Broker.Close.
type Subscription struct {
	C      <-chan Update
	ch     chan Update
	broker *Broker
	once   sync.Once
}

func New() *Broker {
	return &Broker{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a new listener. Safe to call at any time; has no
// effect on delivery to other subscribers.
func (b *Broker) Subscribe() *Subscription {
	ch := make(chan Update, subscriberBuffer)
	sub := &Subscription{C: ch, ch: ch, broker: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.once.Do(func() { close(ch) })
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Publish delivers u to every current subscriber. Fire and forget: no
// acknowledgement, no replay, subscribers with a full buffer are skipped.
func (b *Broker) Publish(u Update) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs {
		select {
		case sub.ch <- u:
		default:
			// Slow consumer; drop for this subscriber only.
		}
	}
}

// Close cancels every subscription. Publish becomes a no-op.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		sub.once.Do(func() { close(sub.ch) })
	}
}

// Cancel removes the subscription and closes C. Safe to call more than
// once and safe concurrently with Publish.
func (s *Subscription) Cancel() {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()

	if _, ok := s.broker.subs[s]; ok {
		delete(s.broker.subs, s)
	}
	s.once.Do(func() { close(s.ch) })
}
