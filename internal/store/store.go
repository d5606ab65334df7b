// Package store defines the persistent records and the store contracts the
// delivery core runs on. Implementations live in the memory and sqlite
// subpackages; the core only sees these interfaces.
package store

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors shared by all store implementations. Handlers map these to
// HTTP statuses; everything else is treated as a storage fault.
var (
	// ErrNotFound is returned when an order or token does not exist.
	ErrNotFound = errors.New("not found")

	// ErrExpired is returned by Redeem when the token is past its expiry.
	ErrExpired = errors.New("token expired")

	// ErrAlreadyUsed is returned by Redeem when the single-use policy is in
	// effect and the token has a redemption timestamp.
	ErrAlreadyUsed = errors.New("token already used")

	// ErrDuplicateToken is returned when an insert collides with an existing
	// token id. Callers must treat this as fatal, never overwrite.
	ErrDuplicateToken = errors.New("duplicate token id")
)

// Order is a purchase record created from a verified paid-order event.
// Written at most once per id; never updated, never deleted.
type Order struct {
	ID         int64
	CustomerID *int64
	Email      string
	CreatedAt  time.Time
}

// DownloadToken is a time-limited download grant for one deliverable file.
// RedeemedAt is nil until the token is redeemed under the single-use policy.
type DownloadToken struct {
	ID         string
	OrderID    int64
	ProductID  int64
	FileName   string
	ExpiresAt  time.Time
	RedeemedAt *time.Time
	CreatedAt  time.Time
}

// Usable reports whether the token can still be redeemed at now, given the
// single-use policy.
func (t *DownloadToken) Usable(now time.Time, singleUse bool) bool {
	if now.After(t.ExpiresAt) {
		return false
	}
	if singleUse && t.RedeemedAt != nil {
		return false
	}
	return true
}

// EventKind enumerates the security- and delivery-relevant transitions the
// audit trail records.
type EventKind string

const (
	EventWebhookInvalid  EventKind = "webhook_invalid"
	EventWebhookSkipped  EventKind = "webhook_skipped"
	EventEmailSent       EventKind = "email_sent"
	EventEmailFailed     EventKind = "email_failed"
	EventDownloadSuccess EventKind = "download_success"
	EventDownloadFailed  EventKind = "download_failed"
	EventRegenFailed     EventKind = "regen_failed"
)

// AuditEvent is one append-only audit record. OrderID is nil for failures
// with no authenticated order association.
type AuditEvent struct {
	ID        int64
	Kind      EventKind
	OrderID   *int64
	Message   string
	CreatedAt time.Time
}

// OrderStore persists purchase records with insert-if-absent semantics.
type OrderStore interface {
	// Upsert inserts the order if no record with the same id exists.
	// A second call with the same id is a no-op: first write wins.
	Upsert(ctx context.Context, o Order) error

	// Get returns the order or ErrNotFound.
	Get(ctx context.Context, id int64) (*Order, error)
}

// TokenStore persists download tokens. Tokens are never deleted; expired and
// used tokens are retained so replays are denied rather than 404ed.
type TokenStore interface {
	// Insert persists a fresh token. Returns ErrDuplicateToken if the id
	// already exists.
	Insert(ctx context.Context, t DownloadToken) error

	// Get returns the token or ErrNotFound.
	Get(ctx context.Context, id string) (*DownloadToken, error)

	// MarkRedeemed atomically sets redeemed_at to now if it is still unset.
	// Returns the updated token, or ErrAlreadyUsed if another redemption won
	// the race, or ErrNotFound.
	MarkRedeemed(ctx context.Context, id string, now time.Time) (*DownloadToken, error)

	// ListByOrder returns the order's tokens in creation order.
	ListByOrder(ctx context.Context, orderID int64) ([]DownloadToken, error)
}

// AuditStore persists the bounded audit trail. Append must atomically evict
// the oldest rows once the retention bound is exceeded.
type AuditStore interface {
	Append(ctx context.Context, ev AuditEvent) error

	// Recent returns up to limit events, most recent first.
	Recent(ctx context.Context, limit int) ([]AuditEvent, error)
}
