// Package store persists users, broker accounts and orders.
//
// Two implementations exist: SQLite for real runs and Memory for tests and
// throwaway sessions. Both satisfy Store and share identical semantics, in
// particular single-statement order updates so the lifecycle engine's
// read-modify-write cycles never lose writes.
package store

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rustyeddy/signals/signal"
)

// ErrNotFound is returned when a referenced user or order does not exist.
var ErrNotFound = errors.New("not found")

// Status is the lifecycle state of an order. Transitions only ever move
// forward: PENDING -> EXECUTED -> CLOSED. FAILED is terminal and reserved
// for future error injection.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusExecuted Status = "EXECUTED"
	StatusClosed   Status = "CLOSED"
	StatusFailed   Status = "FAILED"
)

// Order is one instance of a signal being acted upon. The ingestion path
// creates it PENDING; after that only the lifecycle engine mutates it.
type Order struct {
	ID         string      `json:"id"`
	UserID     string      `json:"user_id"`
	Symbol     string      `json:"symbol"`
	Side       signal.Side `json:"side"`
	Quantity   float64     `json:"quantity"`
	Price      *float64    `json:"price"`
	StopLoss   *float64    `json:"sl"`
	TakeProfit *float64    `json:"tp"`
	Status     Status      `json:"status"`
	BrokerRef  *string     `json:"broker_ref"`
	PnL        *float64    `json:"pnl"`
	CreatedAt  time.Time   `json:"created_at"`
	ClosedAt   *time.Time  `json:"closed_at"`
}

// User owns orders and broker accounts.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	APIKey string `json:"api_key"`
}

// Account links a user to an external broker.
type Account struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	BrokerName string `json:"broker_name"`
	APIKey     string `json:"api_key"`
}

// Summary aggregates closed orders for the analytics endpoint. Recomputing
// it over the same rows always yields the same numbers.
type Summary struct {
	TotalTrades int     `json:"total_trades"`
	WinRate     float64 `json:"win_rate"`
	TotalPnL    float64 `json:"total_pnl"`
}

// Store is the order repository consumed by ingestion and the lifecycle
// engine.
type Store interface {
	CreateOrder(ctx context.Context, o Order) (Order, error)
	GetOrder(ctx context.Context, id string) (Order, error)
	ListOrders(ctx context.Context) ([]Order, error)
	UpdateOrder(ctx context.Context, o Order) error

	GetUser(ctx context.Context, id string) (User, error)
	EnsureUser(ctx context.Context, u User) (User, error)

	CreateAccount(ctx context.Context, a Account) (Account, error)
	ListAccounts(ctx context.Context, userID string) ([]Account, error)

	Analytics(ctx context.Context) (Summary, error)

	Close() error
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
