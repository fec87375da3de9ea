package store

import (
	"context"
	"sort"
	"sync"

	"github.com/rustyeddy/signals/pkg/id"
)

// Memory is a mutex-guarded in-memory Store. It backs tests and the
// --database memory mode; contents vanish with the process.
type Memory struct {
	mu       sync.Mutex
	orders   map[string]Order
	users    map[string]User
	accounts map[string]Account
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		orders:   make(map[string]Order),
		users:    make(map[string]User),
		accounts: make(map[string]Account),
	}
}

func (m *Memory) CreateOrder(_ context.Context, o Order) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if o.ID == "" {
		o.ID = id.New()
	}
	if o.Quantity == 0 {
		o.Quantity = 1.0
	}
	if o.Status == "" {
		o.Status = StatusPending
	}
	m.orders[o.ID] = o
	return o, nil
}

func (m *Memory) GetOrder(_ context.Context, orderID string) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return Order{}, ErrNotFound
	}
	return o, nil
}

func (m *Memory) ListOrders(_ context.Context) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, o)
	}
	// ULIDs sort by creation time.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UpdateOrder(_ context.Context, o Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Status = o.Status
	cur.BrokerRef = o.BrokerRef
	cur.PnL = o.PnL
	cur.ClosedAt = o.ClosedAt
	m.orders[o.ID] = cur
	return nil
}

// DeleteOrder removes an order. Nothing in the service calls this; it
// stands in for the external process that may remove orders mid-flight.
func (m *Memory) DeleteOrder(_ context.Context, orderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.orders, orderID)
}

func (m *Memory) GetUser(_ context.Context, userID string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *Memory) EnsureUser(_ context.Context, u User) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.users[u.ID]; ok {
		return existing, nil
	}
	m.users[u.ID] = u
	return u, nil
}

func (m *Memory) CreateAccount(_ context.Context, a Account) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[a.UserID]; !ok {
		return Account{}, ErrNotFound
	}
	if a.ID == "" {
		a.ID = id.New()
	}
	m.accounts[a.ID] = a
	return a, nil
}

func (m *Memory) ListAccounts(_ context.Context, userID string) ([]Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Account
	for _, a := range m.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Analytics(_ context.Context) (Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		sum  Summary
		pnl  float64
		wins int
	)
	for _, o := range m.orders {
		if o.Status != StatusClosed {
			continue
		}
		sum.TotalTrades++
		if o.PnL != nil {
			pnl += *o.PnL
			if *o.PnL > 0 {
				wins++
			}
		}
	}
	if sum.TotalTrades > 0 {
		sum.WinRate = round2(float64(wins) / float64(sum.TotalTrades) * 100)
		sum.TotalPnL = round2(pnl)
	}
	return sum, nil
}

func (m *Memory) Close() error { return nil }
