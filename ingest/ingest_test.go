package ingest

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/signals/pubsub"
	"github.com/rustyeddy/signals/signal"
	"github.com/rustyeddy/signals/sim"
	"github.com/rustyeddy/signals/store"
)

func newTestHandler(t *testing.T) (*Handler, *store.Memory) {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	st := store.NewMemory()
	broker := pubsub.New()
	t.Cleanup(broker.Close)

	cfg := sim.DefaultConfig()
	cfg.ExecutionLatency = 10 * time.Millisecond
	cfg.HoldingPeriod = 10 * time.Millisecond
	engine := sim.New(st, broker, cfg, log)
	t.Cleanup(engine.Close)

	return NewHandler(st, engine, log), st
}

func TestIngestCreatesPendingOrder(t *testing.T) {
	t.Parallel()

	h, st := newTestHandler(t)
	ctx := context.Background()

	orderID, err := h.Ingest(ctx, "BUY EURUSD @1.0850\nSL 1.0800\nTP 1.0900", "7")
	require.NoError(t, err)
	require.NotEmpty(t, orderID)

	// PENDING the moment Ingest returns; execution happens later.
	order, err := st.GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, order.Status)
	assert.Equal(t, "7", order.UserID)
	assert.Equal(t, "EURUSD", order.Symbol)
	assert.Equal(t, signal.Buy, order.Side)
	assert.InDelta(t, 1.0, order.Quantity, 1e-9)
	require.NotNil(t, order.Price)
	assert.InDelta(t, 1.0850, *order.Price, 1e-9)
	require.NotNil(t, order.StopLoss)
	require.NotNil(t, order.TakeProfit)
	assert.Nil(t, order.BrokerRef)
	assert.Nil(t, order.PnL)

	// The placeholder user was created alongside.
	user, err := st.GetUser(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, "trader_7", user.Name)
	assert.Equal(t, "key-7", user.APIKey)
}

func TestIngestParseFailureNothingPersisted(t *testing.T) {
	t.Parallel()

	h, st := newTestHandler(t)
	ctx := context.Background()

	_, err := h.Ingest(ctx, "HOLD EURUSD", "7")
	var perr *signal.ParseError
	require.ErrorAs(t, err, &perr)

	orders, err := st.ListOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, orders)

	_, err = st.GetUser(ctx, "7")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestIngestSameUserTwiceIndependentOrders(t *testing.T) {
	t.Parallel()

	h, st := newTestHandler(t)
	ctx := context.Background()

	text := "SELL GBPUSD @1.2500\nSL 1.2600\nTP 1.2400"
	id1, err := h.Ingest(ctx, text, "9")
	require.NoError(t, err)
	id2, err := h.Ingest(ctx, text, "9")
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)

	// One user, two orders.
	orders, err := st.ListOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, orders, 2)

	// Both lifecycles run to completion independently.
	for _, id := range []string{id1, id2} {
		require.Eventually(t, func() bool {
			o, err := st.GetOrder(ctx, id)
			return err == nil && o.Status == store.StatusClosed
		}, 3*time.Second, 2*time.Millisecond)
	}
}

func TestIngestReturnsBeforeExecution(t *testing.T) {
	t.Parallel()

	log := logrus.New()
	log.SetOutput(io.Discard)

	st := store.NewMemory()
	broker := pubsub.New()
	t.Cleanup(broker.Close)

	// Long latency: if Ingest waited on the lifecycle this test would
	// time out.
	cfg := sim.DefaultConfig()
	cfg.ExecutionLatency = 10 * time.Second
	cfg.HoldingPeriod = 10 * time.Second
	engine := sim.New(st, broker, cfg, log)
	t.Cleanup(engine.Close)

	h := NewHandler(st, engine, log)

	start := time.Now()
	orderID, err := h.Ingest(context.Background(), "BUY BTCUSD @65000", "1")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)

	order, err := st.GetOrder(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, order.Status)
}
