package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattjoyce/bindery/internal/store"
)

// TokenStore implements store.TokenStore on SQLite.
type TokenStore struct {
	db *sql.DB
}

func NewTokenStore(db *sql.DB) *TokenStore {
	return &TokenStore{db: db}
}

func (s *TokenStore) Insert(ctx context.Context, t store.DownloadToken) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO downloads(token, order_id, product_id, file_name, expires_at, redeemed_at, created_at)
VALUES(?, ?, ?, ?, ?, NULL, ?);
`, t.ID, t.OrderID, t.ProductID, t.FileName, formatTime(t.ExpiresAt), formatTime(t.CreatedAt))
	if err != nil {
		// Primary-key collision on the token id must never overwrite.
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.ErrDuplicateToken
		}
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

func (s *TokenStore) Get(ctx context.Context, id string) (*store.DownloadToken, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT token, order_id, product_id, file_name, expires_at, redeemed_at, created_at
FROM downloads
WHERE token = ?;
`, id)
	return scanToken(row)
}

// MarkRedeemed is a single atomic check-and-set: the WHERE clause only
// matches while redeemed_at is still NULL, so at most one concurrent
// redemption can win.
func (s *TokenStore) MarkRedeemed(ctx context.Context, id string, now time.Time) (*store.DownloadToken, error) {
	row := s.db.QueryRowContext(ctx, `
UPDATE downloads
SET redeemed_at = ?
WHERE token = ? AND redeemed_at IS NULL
RETURNING token, order_id, product_id, file_name, expires_at, redeemed_at, created_at;
`, formatTime(now), id)

	t, err := scanToken(row)
	if errors.Is(err, store.ErrNotFound) {
		// Distinguish a missing token from a lost race.
		if _, getErr := s.Get(ctx, id); getErr == nil {
			return nil, store.ErrAlreadyUsed
		}
		return nil, store.ErrNotFound
	}
	return t, err
}

func (s *TokenStore) ListByOrder(ctx context.Context, orderID int64) ([]store.DownloadToken, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT token, order_id, product_id, file_name, expires_at, redeemed_at, created_at
FROM downloads
WHERE order_id = ?
ORDER BY created_at ASC, rowid ASC;
`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	var out []store.DownloadToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*store.DownloadToken, error) {
	var (
		t          store.DownloadToken
		expiresAtS string
		redeemedS  sql.NullString
		createdAtS string
	)
	err := row.Scan(&t.ID, &t.OrderID, &t.ProductID, &t.FileName, &expiresAtS, &redeemedS, &createdAtS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan token: %w", err)
	}

	t.ExpiresAt = parseTime(expiresAtS)
	t.CreatedAt = parseTime(createdAtS)
	if redeemedS.Valid {
		at := parseTime(redeemedS.String)
		t.RedeemedAt = &at
	}
	return &t, nil
}
