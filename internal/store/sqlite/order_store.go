package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattjoyce/bindery/internal/store"
)

// OrderStore implements store.OrderStore on SQLite.
type OrderStore struct {
	db *sql.DB
}

func NewOrderStore(db *sql.DB) *OrderStore {
	return &OrderStore{db: db}
}

func (s *OrderStore) Upsert(ctx context.Context, o store.Order) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}

	var customerID any
	if o.CustomerID != nil {
		customerID = *o.CustomerID
	}

	// INSERT OR IGNORE gives first-write-wins idempotence under concurrent
	// webhook redeliveries.
	_, err := s.db.ExecContext(ctx, `
INSERT OR IGNORE INTO orders(id, customer_id, email, created_at)
VALUES(?, ?, ?, ?);
`, o.ID, customerID, o.Email, formatTime(o.CreatedAt))
	if err != nil {
		return fmt.Errorf("upsert order: %w", err)
	}
	return nil
}

func (s *OrderStore) Get(ctx context.Context, id int64) (*store.Order, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, customer_id, email, created_at
FROM orders
WHERE id = ?;
`, id)

	var (
		o          store.Order
		customerID sql.NullInt64
		createdAtS string
	)
	err := row.Scan(&o.ID, &customerID, &o.Email, &createdAtS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}

	if customerID.Valid {
		o.CustomerID = &customerID.Int64
	}
	o.CreatedAt = parseTime(createdAtS)
	return &o, nil
}
