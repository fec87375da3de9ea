// Package ingest turns raw signal text into a persisted PENDING order and
// hands it to the lifecycle engine.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/signals/signal"
	"github.com/rustyeddy/signals/sim"
	"github.com/rustyeddy/signals/store"
)

// Handler composes parser, store and engine. It runs on the request path
// and returns as soon as the order is persisted; the lifecycle runs on
// its own.
type Handler struct {
	store  store.Store
	engine *sim.Engine
	log    *logrus.Logger
}

func NewHandler(st store.Store, engine *sim.Engine, log *logrus.Logger) *Handler {
	return &Handler{store: st, engine: engine, log: log}
}

// Ingest parses text, persists a PENDING order for userID and schedules
// its lifecycle run. On a parse failure nothing is persisted. The caller
// gets the new order ID back without waiting for the simulation.
func (h *Handler) Ingest(ctx context.Context, text, userID string) (string, error) {
	intent, err := signal.Parse(text)
	if err != nil {
		return "", err
	}

	// Unknown users get a minimal placeholder record, matching the
	// webhook's fire-from-anywhere usage. EnsureUser is idempotent.
	user, err := h.store.EnsureUser(ctx, store.User{
		ID:     userID,
		Name:   fmt.Sprintf("trader_%s", userID),
		APIKey: fmt.Sprintf("key-%s", userID),
	})
	if err != nil {
		return "", fmt.Errorf("ensure user: %w", err)
	}

	order, err := h.store.CreateOrder(ctx, store.Order{
		UserID:     user.ID,
		Symbol:     intent.Symbol,
		Side:       intent.Side,
		Quantity:   1.0,
		Price:      intent.Price,
		StopLoss:   intent.StopLoss,
		TakeProfit: intent.TakeProfit,
		Status:     store.StatusPending,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("create order: %w", err)
	}

	h.engine.Schedule(order.ID)
	h.log.WithFields(logrus.Fields{
		"order_id": order.ID,
		"user_id":  user.ID,
		"symbol":   order.Symbol,
		"side":     order.Side,
	}).Info("signal ingested")

	return order.ID, nil
}
