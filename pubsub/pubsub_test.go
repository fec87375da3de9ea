package pubsub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/signals/store"
)

func recvTimeout(t *testing.T, sub *Subscription) Update {
	t.Helper()

	select {
	case u, ok := <-sub.C:
		require.True(t, ok, "subscription closed")
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
		return Update{}
	}
}

func TestPublishFansOut(t *testing.T) {
	t.Parallel()

	b := New()
	defer b.Close()

	s1 := b.Subscribe()
	s2 := b.Subscribe()

	b.Publish(Update{OrderID: "o1", Status: store.StatusExecuted})

	assert.Equal(t, "o1", recvTimeout(t, s1).OrderID)
	assert.Equal(t, "o1", recvTimeout(t, s2).OrderID)
}

func TestLateSubscriberMissesEarlierMessages(t *testing.T) {
	t.Parallel()

	b := New()
	defer b.Close()

	b.Publish(Update{OrderID: "early", Status: store.StatusExecuted})

	sub := b.Subscribe()
	b.Publish(Update{OrderID: "late", Status: store.StatusClosed})

	got := recvTimeout(t, sub)
	assert.Equal(t, "late", got.OrderID)

	select {
	case u := <-sub.C:
		t.Fatalf("unexpected extra update: %+v", u)
	default:
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	t.Parallel()

	b := New()
	defer b.Close()

	sub := b.Subscribe()
	other := b.Subscribe()

	sub.Cancel()
	// Cancel is safe to repeat.
	sub.Cancel()

	b.Publish(Update{OrderID: "o1", Status: store.StatusExecuted})

	_, ok := <-sub.C
	assert.False(t, ok, "cancelled subscription channel should be closed")

	// The other subscriber is unaffected.
	assert.Equal(t, "o1", recvTimeout(t, other).OrderID)
}

func TestOrderingPerSubscriber(t *testing.T) {
	t.Parallel()

	b := New()
	defer b.Close()

	sub := b.Subscribe()
	b.Publish(Update{OrderID: "o1", Status: store.StatusExecuted})
	b.Publish(Update{OrderID: "o1", Status: store.StatusClosed})

	assert.Equal(t, store.StatusExecuted, recvTimeout(t, sub).Status)
	assert.Equal(t, store.StatusClosed, recvTimeout(t, sub).Status)
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	t.Parallel()

	b := New()
	defer b.Close()

	sub := b.Subscribe()

	// Overflow the buffer; Publish must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			b.Publish(Update{OrderID: "flood"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}

	// The subscriber still drains exactly one buffer's worth.
	count := 0
	for {
		select {
		case <-sub.C:
			count++
		default:
			assert.Equal(t, subscriberBuffer, count)
			return
		}
	}
}

func TestCloseCancelsAllSubscriptions(t *testing.T) {
	t.Parallel()

	b := New()
	s1 := b.Subscribe()
	s2 := b.Subscribe()

	b.Close()

	_, ok := <-s1.C
	assert.False(t, ok)
	_, ok = <-s2.C
	assert.False(t, ok)

	// Publish after close is a no-op, and late subscribers get a closed
	// channel immediately.
	b.Publish(Update{OrderID: "o1"})
	late := b.Subscribe()
	_, ok = <-late.C
	assert.False(t, ok)
}
