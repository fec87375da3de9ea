package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/signals/pkg/id"
	"github.com/rustyeddy/signals/signal"
)

// SQLite is the file-backed Store implementation.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// NewSQLite opens (or creates) the database at path and applies the schema.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) CreateOrder(ctx context.Context, o Order) (Order, error) {
	if o.ID == "" {
		o.ID = id.New()
	}
	if o.Quantity == 0 {
		o.Quantity = 1.0
	}
	if o.Status == "" {
		o.Status = StatusPending
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders
		(id, user_id, symbol, side, quantity, price, stop_loss, take_profit, status, broker_ref, pnl, created_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.UserID, o.Symbol, string(o.Side), o.Quantity,
		o.Price, o.StopLoss, o.TakeProfit, string(o.Status),
		o.BrokerRef, o.PnL, o.CreatedAt, o.ClosedAt,
	)
	if err != nil {
		return Order{}, fmt.Errorf("create order: %w", err)
	}
	return o, nil
}

func (s *SQLite) GetOrder(ctx context.Context, orderID string) (Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, symbol, side, quantity, price, stop_loss, take_profit, status, broker_ref, pnl, created_at, closed_at
		FROM orders
		WHERE id = ?`, orderID)

	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	return o, nil
}

func (s *SQLite) ListOrders(ctx context.Context) ([]Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, symbol, side, quantity, price, stop_loss, take_profit, status, broker_ref, pnl, created_at, closed_at
		FROM orders
		ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// UpdateOrder rewrites the mutable fields of an order in a single
// statement, so concurrent writers cannot interleave partial updates.
func (s *SQLite) UpdateOrder(ctx context.Context, o Order) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = ?, broker_ref = ?, pnl = ?, closed_at = ?
		WHERE id = ?`,
		string(o.Status), o.BrokerRef, o.PnL, o.ClosedAt, o.ID,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) GetUser(ctx context.Context, userID string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, api_key FROM users WHERE id = ?`, userID,
	).Scan(&u.ID, &u.Name, &u.APIKey)
	if err == sql.ErrNoRows {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// EnsureUser creates the user if absent and returns the stored record.
// Calling it twice with the same ID never produces two users.
func (s *SQLite) EnsureUser(ctx context.Context, u User) (User, error) {
	if existing, err := s.GetUser(ctx, u.ID); err == nil {
		return existing, nil
	} else if err != ErrNotFound {
		return User{}, err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (id, name, api_key) VALUES (?, ?, ?)`,
		u.ID, u.Name, u.APIKey,
	)
	if err != nil {
		return User{}, fmt.Errorf("ensure user: %w", err)
	}
	return s.GetUser(ctx, u.ID)
}

func (s *SQLite) CreateAccount(ctx context.Context, a Account) (Account, error) {
	if _, err := s.GetUser(ctx, a.UserID); err != nil {
		return Account{}, err
	}
	if a.ID == "" {
		a.ID = id.New()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, user_id, broker_name, api_key) VALUES (?, ?, ?, ?)`,
		a.ID, a.UserID, a.BrokerName, a.APIKey,
	)
	if err != nil {
		return Account{}, fmt.Errorf("create account: %w", err)
	}
	return a, nil
}

func (s *SQLite) ListAccounts(ctx context.Context, userID string) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, broker_name, api_key FROM accounts WHERE user_id = ? ORDER BY id ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.UserID, &a.BrokerName, &a.APIKey); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Analytics aggregates all CLOSED orders. It is a pure read; the same rows
// always produce the same summary.
func (s *SQLite) Analytics(ctx context.Context) (Summary, error) {
	var (
		sum  Summary
		pnl  sql.NullFloat64
		wins int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(pnl), 0),
		       COALESCE(SUM(CASE WHEN pnl > 0 THEN 1 ELSE 0 END), 0)
		FROM orders
		WHERE status = ?`, string(StatusClosed),
	).Scan(&sum.TotalTrades, &pnl, &wins)
	if err != nil {
		return Summary{}, err
	}

	if sum.TotalTrades > 0 {
		sum.WinRate = round2(float64(wins) / float64(sum.TotalTrades) * 100)
		sum.TotalPnL = round2(pnl.Float64)
	}
	return sum, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (Order, error) {
	var (
		o    Order
		side string
		st   string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &o.Symbol, &side, &o.Quantity,
		&o.Price, &o.StopLoss, &o.TakeProfit, &st,
		&o.BrokerRef, &o.PnL, &o.CreatedAt, &o.ClosedAt,
	)
	if err != nil {
		return Order{}, err
	}
	o.Side = signal.Side(side)
	o.Status = Status(st)
	return o, nil
}
