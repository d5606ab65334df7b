// Package token implements the download-token ledger: minting, lookup, and
// redemption of opaque single-use download grants.
package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattjoyce/bindery/internal/log"
	"github.com/mattjoyce/bindery/internal/metrics"
	"github.com/mattjoyce/bindery/internal/store"
)

// tokenIDBytes is the entropy of a token id. 24 bytes (192 bits) makes
// brute-force enumeration infeasible; ids are hex-encoded in links.
const tokenIDBytes = 24

// Ledger mints and redeems download tokens over a TokenStore.
type Ledger struct {
	store store.TokenStore

	// singleUse is the process-wide expire-after-download policy. When
	// false, redemption never sets the used marker and tokens stay valid
	// until natural expiry.
	singleUse bool

	logger *slog.Logger
}

// NewLedger creates a ledger. singleUse enables the expire-after-download
// policy.
func NewLedger(st store.TokenStore, singleUse bool) *Ledger {
	return &Ledger{
		store:     st,
		singleUse: singleUse,
		logger:    log.WithComponent("token"),
	}
}

// SingleUse reports whether the expire-after-download policy is enabled.
func (l *Ledger) SingleUse() bool {
	return l.singleUse
}

// Issue mints a fresh token for one deliverable item with expiry now+ttl.
// A storage collision on the generated id is returned as a fatal error;
// the ledger never overwrites an existing token.
func (l *Ledger) Issue(ctx context.Context, orderID, productID int64, fileName string, ttl time.Duration) (*store.DownloadToken, error) {
	id, err := newTokenID()
	if err != nil {
		return nil, fmt.Errorf("generate token id: %w", err)
	}

	now := time.Now().UTC()
	t := store.DownloadToken{
		ID:        id,
		OrderID:   orderID,
		ProductID: productID,
		FileName:  fileName,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	if err := l.store.Insert(ctx, t); err != nil {
		return nil, fmt.Errorf("persist token: %w", err)
	}

	metrics.TokensIssuedTotal.Inc()
	l.logger.Debug("token issued", "order_id", orderID, "product_id", productID, "expires_at", t.ExpiresAt)
	return &t, nil
}

// Lookup returns the token or store.ErrNotFound.
func (l *Ledger) Lookup(ctx context.Context, id string) (*store.DownloadToken, error) {
	return l.store.Get(ctx, id)
}

// Redeem evaluates, in order: existence, expiry, the single-use policy.
// On success under the single-use policy it atomically sets the redemption
// timestamp; at most one concurrent redemption can succeed for a token.
// Returns store.ErrNotFound, store.ErrExpired, or store.ErrAlreadyUsed on
// denial.
func (l *Ledger) Redeem(ctx context.Context, id string, now time.Time) (*store.DownloadToken, error) {
	t, err := l.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if now.After(t.ExpiresAt) {
		return nil, store.ErrExpired
	}

	if !l.singleUse {
		// Policy off: never mark, repeat access allowed until expiry.
		return t, nil
	}

	if t.RedeemedAt != nil {
		return nil, store.ErrAlreadyUsed
	}

	// Atomic check-and-set; a concurrent redemption that won the race
	// surfaces as ErrAlreadyUsed here.
	return l.store.MarkRedeemed(ctx, id, now)
}

// ListByOrder returns the order's tokens in creation order.
func (l *Ledger) ListByOrder(ctx context.Context, orderID int64) ([]store.DownloadToken, error) {
	return l.store.ListByOrder(ctx, orderID)
}

func newTokenID() (string, error) {
	buf := make([]byte, tokenIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
