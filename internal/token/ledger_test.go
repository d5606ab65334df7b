package token

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/bindery/internal/store"
	"github.com/mattjoyce/bindery/internal/store/memory"
)

func TestIssueGeneratesUniqueTokens(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(memory.NewTokenStore(), true)

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		tok, err := ledger.Issue(ctx, 1001, 42, "book.epub", 5*time.Minute)
		require.NoError(t, err)
		assert.Len(t, tok.ID, tokenIDBytes*2, "hex-encoded id length")
		assert.False(t, seen[tok.ID], "token id collision")
		seen[tok.ID] = true
	}
}

func TestIssueSetsExpiry(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(memory.NewTokenStore(), true)

	before := time.Now().UTC()
	tok, err := ledger.Issue(ctx, 1001, 42, "book.epub", 5*time.Minute)
	require.NoError(t, err)

	require.True(t, tok.ExpiresAt.After(before.Add(4*time.Minute)))
	require.True(t, tok.ExpiresAt.Before(before.Add(6*time.Minute)))
	assert.Nil(t, tok.RedeemedAt)
}

func TestRedeemUnknownToken(t *testing.T) {
	ledger := NewLedger(memory.NewTokenStore(), true)

	_, err := ledger.Redeem(context.Background(), "deadbeef", time.Now())
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestRedeemExpiredToken(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(memory.NewTokenStore(), true)

	tok, err := ledger.Issue(ctx, 1001, 42, "book.epub", time.Minute)
	require.NoError(t, err)

	_, err = ledger.Redeem(ctx, tok.ID, time.Now().Add(2*time.Minute))
	assert.True(t, errors.Is(err, store.ErrExpired))
}

func TestRedeemSingleUse(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(memory.NewTokenStore(), true)

	tok, err := ledger.Issue(ctx, 1001, 42, "book.epub", time.Hour)
	require.NoError(t, err)

	got, err := ledger.Redeem(ctx, tok.ID, time.Now())
	require.NoError(t, err)
	require.NotNil(t, got.RedeemedAt)

	_, err = ledger.Redeem(ctx, tok.ID, time.Now())
	assert.True(t, errors.Is(err, store.ErrAlreadyUsed))
}

func TestRedeemPolicyOffAllowsRepeats(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(memory.NewTokenStore(), false)

	tok, err := ledger.Issue(ctx, 1001, 42, "book.epub", time.Hour)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got, err := ledger.Redeem(ctx, tok.ID, time.Now())
		require.NoError(t, err)
		assert.Nil(t, got.RedeemedAt, "policy off must not mark tokens used")
	}
}

func TestRedeemExpiryCheckedBeforeUse(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(memory.NewTokenStore(), true)

	tok, err := ledger.Issue(ctx, 1001, 42, "book.epub", time.Minute)
	require.NoError(t, err)

	_, err = ledger.Redeem(ctx, tok.ID, time.Now())
	require.NoError(t, err)

	// Both expired and used: expiry wins.
	_, err = ledger.Redeem(ctx, tok.ID, time.Now().Add(2*time.Minute))
	assert.True(t, errors.Is(err, store.ErrExpired))
}

func TestListByOrder(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(memory.NewTokenStore(), true)

	first, err := ledger.Issue(ctx, 1001, 42, "book.epub", time.Hour)
	require.NoError(t, err)
	second, err := ledger.Issue(ctx, 1001, 43, "other.pdf", time.Hour)
	require.NoError(t, err)
	_, err = ledger.Issue(ctx, 2002, 42, "book.epub", time.Hour)
	require.NoError(t, err)

	toks, err := ledger.ListByOrder(ctx, 1001)
	require.NoError(t, err)
	require.Len(t, toks, 2)
	assert.Equal(t, first.ID, toks[0].ID)
	assert.Equal(t, second.ID, toks[1].ID)
}
