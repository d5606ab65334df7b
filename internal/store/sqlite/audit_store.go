package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mattjoyce/bindery/internal/store"
)

// AuditStore implements store.AuditStore on SQLite with FIFO truncation at
// the retention bound.
type AuditStore struct {
	db        *sql.DB
	retention int
}

func NewAuditStore(db *sql.DB, retention int) *AuditStore {
	if retention <= 0 {
		retention = 500
	}
	return &AuditStore{db: db, retention: retention}
}

// Append inserts the event and evicts the oldest rows beyond the retention
// bound in the same transaction.
func (s *AuditStore) Append(ctx context.Context, ev store.AuditEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	var orderID any
	if ev.OrderID != nil {
		orderID = *ev.OrderID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO audit_events(kind, order_id, message, created_at)
VALUES(?, ?, ?, ?);
`, string(ev.Kind), orderID, ev.Message, formatTime(ev.CreatedAt)); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
DELETE FROM audit_events
WHERE id NOT IN (SELECT id FROM audit_events ORDER BY id DESC LIMIT ?);
`, s.retention); err != nil {
		return fmt.Errorf("truncate audit events: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *AuditStore) Recent(ctx context.Context, limit int) ([]store.AuditEvent, error) {
	if limit <= 0 || limit > s.retention {
		limit = s.retention
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, kind, order_id, message, created_at
FROM audit_events
ORDER BY id DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []store.AuditEvent
	for rows.Next() {
		var (
			ev         store.AuditEvent
			kindS      string
			orderID    sql.NullInt64
			createdAtS string
		)
		if err := rows.Scan(&ev.ID, &kindS, &orderID, &ev.Message, &createdAtS); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		ev.Kind = store.EventKind(kindS)
		if orderID.Valid {
			ev.OrderID = &orderID.Int64
		}
		ev.CreatedAt = parseTime(createdAtS)
		out = append(out, ev)
	}
	return out, rows.Err()
}
