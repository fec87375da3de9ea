// Package sim drives orders through the mock broker lifecycle:
// PENDING -> EXECUTED -> CLOSED. It stands in for a real broker
// integration, replacing network latency with timers and fill outcomes
// with a coin flip.
package sim

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/signals/pkg/id"
	"github.com/rustyeddy/signals/pubsub"
	"github.com/rustyeddy/signals/store"
)

// Config holds the lifecycle timing and outcome parameters.
type Config struct {
	// ExecutionLatency is the simulated network/broker delay before an
	// order fills. HoldingPeriod is how long a filled order stays open.
	ExecutionLatency time.Duration
	HoldingPeriod    time.Duration

	// PnL magnitude ranges in quote currency units. A win draws uniformly
	// from [WinMin, WinMax], a loss from [-LossMax, -LossMin].
	WinMin, WinMax   float64
	LossMin, LossMax float64
}

// DefaultConfig mirrors the service defaults: 2s to fill, 5s hold,
// outcomes in the +-10..50 range.
func DefaultConfig() Config {
	return Config{
		ExecutionLatency: 2 * time.Second,
		HoldingPeriod:    5 * time.Second,
		WinMin:           10,
		WinMax:           50,
		LossMin:          10,
		LossMax:          50,
	}
}

// Engine runs one goroutine per scheduled order. Runs for different
// orders share no state in memory; everything goes through the store.
type Engine struct {
	store  store.Store
	broker *pubsub.Broker
	cfg    Config
	log    *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	active map[string]struct{}
}

func New(st store.Store, broker *pubsub.Broker, cfg Config, log *logrus.Logger) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		store:  st,
		broker: broker,
		cfg:    cfg,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		active: make(map[string]struct{}),
	}
}

// Schedule launches the lifecycle run for orderID and returns without
// waiting for it. At most one run is active per order ID: scheduling an
// ID that is already in flight is a no-op and returns false.
func (e *Engine) Schedule(orderID string) bool {
	e.mu.Lock()
	if _, running := e.active[orderID]; running {
		e.mu.Unlock()
		return false
	}
	e.active[orderID] = struct{}{}
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			e.mu.Lock()
			delete(e.active, orderID)
			e.mu.Unlock()
		}()
		e.run(orderID)
	}()
	return true
}

// Close cancels all in-flight runs and waits for them to drain. Orders
// caught mid-run are left PENDING or EXECUTED; they are not corrupted and
// a restart may re-scan for them.
func (e *Engine) Close() {
	e.cancel()
	e.wg.Wait()
}

func (e *Engine) run(orderID string) {
	log := e.log.WithField("order_id", orderID)

	if !e.sleep(e.cfg.ExecutionLatency) {
		return
	}

	order, err := e.store.GetOrder(e.ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		// Removed by an external process while we slept; nothing to do.
		return
	}
	if err != nil {
		log.WithError(err).Error("lifecycle: load order failed")
		return
	}

	ref := id.New()
	order.Status = store.StatusExecuted
	order.BrokerRef = &ref
	if err := e.store.UpdateOrder(e.ctx, order); err != nil {
		log.WithError(err).Error("lifecycle: persist EXECUTED failed")
		return
	}
	log.WithField("broker_ref", ref).Info("order executed")
	e.broker.Publish(pubsub.Update{
		OrderID: orderID,
		Status:  store.StatusExecuted,
		Price:   order.Price,
		At:      time.Now().UTC(),
	})

	if !e.sleep(e.cfg.HoldingPeriod) {
		return
	}

	pnl := e.drawPnL()
	now := time.Now().UTC()
	order.Status = store.StatusClosed
	order.PnL = &pnl
	order.ClosedAt = &now
	if err := e.store.UpdateOrder(e.ctx, order); err != nil {
		log.WithError(err).Error("lifecycle: persist CLOSED failed")
		return
	}
	log.WithField("pnl", pnl).Info("order closed")
	e.broker.Publish(pubsub.Update{
		OrderID: orderID,
		Status:  store.StatusClosed,
		PnL:     &pnl,
		At:      now,
	})
}

// drawPnL flips a fair coin and draws the magnitude uniformly from the
// configured range, rounded to 2 decimal places.
func (e *Engine) drawPnL() float64 {
	win := rand.Intn(2) == 0

	var pnl float64
	if win {
		pnl = e.cfg.WinMin + rand.Float64()*(e.cfg.WinMax-e.cfg.WinMin)
	} else {
		pnl = -(e.cfg.LossMin + rand.Float64()*(e.cfg.LossMax-e.cfg.LossMin))
	}
	return math.Round(pnl*100) / 100
}

// sleep waits for d or until the engine is closed. Returns false when the
// run should abandon its remaining transitions.
func (e *Engine) sleep(d time.Duration) bool {
	if d <= 0 {
		return e.ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-e.ctx.Done():
		return false
	}
}
