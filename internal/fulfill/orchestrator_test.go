package fulfill

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/bindery/internal/audit"
	"github.com/mattjoyce/bindery/internal/catalog"
	"github.com/mattjoyce/bindery/internal/config"
	"github.com/mattjoyce/bindery/internal/dispatch"
	"github.com/mattjoyce/bindery/internal/mail"
	"github.com/mattjoyce/bindery/internal/mail/mocks"
	"github.com/mattjoyce/bindery/internal/signature"
	"github.com/mattjoyce/bindery/internal/store"
	"github.com/mattjoyce/bindery/internal/store/memory"
	"github.com/mattjoyce/bindery/internal/token"
)

const (
	testWebhookSecret = "webhook-secret"
	testProxySecret   = "proxy-secret"
)

type fixture struct {
	orch   *Orchestrator
	orders *memory.OrderStore
	tokens *memory.TokenStore
	events *memory.AuditStore
	ledger *token.Ledger
	sent   chan mail.Message
}

// newFixture wires an orchestrator over in-memory stores with a catalog of
// two ebooks and a real file on disk for product 42. Emails land on the
// fixture's sent channel.
func newFixture(t *testing.T, singleUse bool) *fixture {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "book.epub"), []byte("epub bytes"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.pdf"), []byte("pdf bytes"), 0o644))

	cfg := config.Defaults()
	cfg.Service.BaseURL = "http://localhost:3007"
	cfg.Delivery.TokenTTLMinutes = 5
	cfg.Delivery.EbooksDir = dir
	cfg.Secrets.WebhookSecret = testWebhookSecret
	cfg.Secrets.ProxySecret = testProxySecret

	f := &fixture{
		orders: memory.NewOrderStore(),
		tokens: memory.NewTokenStore(),
		events: memory.NewAuditStore(500),
		sent:   make(chan mail.Message, 8),
	}
	f.ledger = token.NewLedger(f.tokens, singleUse)

	ctrl := gomock.NewController(t)
	mockMailer := mocks.NewMockMailer(ctrl)
	mockMailer.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, msg mail.Message) error {
			f.sent <- msg
			return nil
		}).AnyTimes()

	auditLog := audit.New(f.events)
	d := dispatch.New(mockMailer, auditLog)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go d.Start(ctx)

	cat := catalog.New([]catalog.Product{
		{ProductID: 42, Title: "Practical Typesetting", FileName: "book.epub"},
		{ProductID: 43, FileName: "other.pdf"},
	})

	f.orch = New(cfg, f.orders, f.ledger, cat, auditLog, d)
	return f
}

func (f *fixture) waitForEmail(t *testing.T) mail.Message {
	t.Helper()
	select {
	case msg := <-f.sent:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no email dispatched")
		return mail.Message{}
	}
}

func (f *fixture) eventKinds(t *testing.T) []store.EventKind {
	t.Helper()
	events, err := f.events.Recent(context.Background(), 100)
	require.NoError(t, err)
	kinds := make([]store.EventKind, len(events))
	for i, ev := range events {
		kinds[i] = ev.Kind
	}
	return kinds
}

func signedWebhook(body []byte) string {
	return signature.ComputeWebhookSignature(body, testWebhookSecret)
}

func signedProxyQuery(params url.Values) url.Values {
	params.Set("signature", signature.ComputeProxySignature(params, testProxySecret))
	return params
}

func orderPaidBody(orderID int64, email string, productIDs ...int64) []byte {
	items := ""
	for i, id := range productIDs {
		if i > 0 {
			items += ","
		}
		items += fmt.Sprintf(`{"product_id":%d,"title":"Item %d"}`, id, id)
	}
	return []byte(fmt.Sprintf(
		`{"id":%d,"email":%q,"customer":{"id":501},"line_items":[%s]}`,
		orderID, email, items))
}

func TestPaidOrderDeliversLinks(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	body := orderPaidBody(1001, "buyer@example.com", 42)
	res, err := f.orch.HandlePaidOrder(ctx, body, signedWebhook(body))
	require.NoError(t, err)
	assert.Equal(t, PaidOrderDelivered, res.Status)
	assert.Equal(t, 1, res.Links)

	order, err := f.orders.Get(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, "buyer@example.com", order.Email)
	require.NotNil(t, order.CustomerID)
	assert.Equal(t, int64(501), *order.CustomerID)

	toks, err := f.tokens.ListByOrder(ctx, 1001)
	require.NoError(t, err)
	require.Len(t, toks, 1)
	assert.Equal(t, "book.epub", toks[0].FileName)

	msg := f.waitForEmail(t)
	assert.Equal(t, "buyer@example.com", msg.To)
	assert.Contains(t, msg.Text, "Practical Typesetting")
	assert.Contains(t, msg.Text, "http://localhost:3007/download/"+toks[0].ID)

	// The notification outcome is already audited when the webhook call
	// returns; the platform's acknowledgment never races the audit trail.
	assert.Contains(t, f.eventKinds(t), store.EventEmailSent)
}

func TestPaidOrderInvalidSignature(t *testing.T) {
	f := newFixture(t, true)

	body := orderPaidBody(1001, "buyer@example.com", 42)
	_, err := f.orch.HandlePaidOrder(context.Background(), body, "forged")
	assert.True(t, errors.Is(err, ErrInvalidSignature))

	toks, _ := f.tokens.ListByOrder(context.Background(), 1001)
	assert.Empty(t, toks, "no tokens on invalid signature")
	assert.Contains(t, f.eventKinds(t), store.EventWebhookInvalid)
}

func TestPaidOrderSkips(t *testing.T) {
	tests := []struct {
		name   string
		body   []byte
		reason string
	}{
		{name: "no email", body: []byte(`{"id":1001,"line_items":[{"product_id":42}]}`), reason: "No order email"},
		{name: "no order id", body: []byte(`{"email":"b@example.com","line_items":[{"product_id":42}]}`), reason: "No order email"},
		{name: "no ebook items", body: orderPaidBody(1001, "b@example.com", 999), reason: "No ebook items"},
		{name: "malformed payload", body: []byte(`{"id":`), reason: "Malformed payload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, true)
			res, err := f.orch.HandlePaidOrder(context.Background(), tt.body, signedWebhook(tt.body))
			require.NoError(t, err, "skips are acknowledged, not errors")
			assert.Equal(t, PaidOrderSkipped, res.Status)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Contains(t, f.eventKinds(t), store.EventWebhookSkipped)
		})
	}
}

func TestPaidOrderIdempotentReplay(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	body := orderPaidBody(1001, "buyer@example.com", 42)
	for i := 0; i < 3; i++ {
		_, err := f.orch.HandlePaidOrder(ctx, body, signedWebhook(body))
		require.NoError(t, err)
	}

	// Replays never duplicate the order record, but each delivery mints
	// fresh tokens.
	order, err := f.orders.Get(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, "buyer@example.com", order.Email)

	toks, err := f.tokens.ListByOrder(ctx, 1001)
	require.NoError(t, err)
	assert.Len(t, toks, 3)
}

func TestRedeemHappyPath(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	body := orderPaidBody(1001, "buyer@example.com", 42)
	_, err := f.orch.HandlePaidOrder(ctx, body, signedWebhook(body))
	require.NoError(t, err)

	toks, _ := f.tokens.ListByOrder(ctx, 1001)
	require.Len(t, toks, 1)

	dl, err := f.orch.Redeem(ctx, toks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "book.epub", dl.FileName)
	assert.Equal(t, int64(1001), dl.OrderID)

	data, err := os.ReadFile(dl.Path)
	require.NoError(t, err)
	assert.Equal(t, "epub bytes", string(data))
	assert.Contains(t, f.eventKinds(t), store.EventDownloadSuccess)
}

func TestRedeemDenials(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown token", func(t *testing.T) {
		f := newFixture(t, true)
		_, err := f.orch.Redeem(ctx, "deadbeef")
		assert.True(t, errors.Is(err, store.ErrNotFound))
		assert.Contains(t, f.eventKinds(t), store.EventDownloadFailed)
	})

	t.Run("expired token", func(t *testing.T) {
		f := newFixture(t, true)
		tok, err := f.ledger.Issue(ctx, 1001, 42, "book.epub", -time.Minute)
		require.NoError(t, err)
		_, err = f.orch.Redeem(ctx, tok.ID)
		assert.True(t, errors.Is(err, store.ErrExpired))
	})

	t.Run("second redemption", func(t *testing.T) {
		f := newFixture(t, true)
		tok, err := f.ledger.Issue(ctx, 1001, 42, "book.epub", time.Hour)
		require.NoError(t, err)

		_, err = f.orch.Redeem(ctx, tok.ID)
		require.NoError(t, err)
		_, err = f.orch.Redeem(ctx, tok.ID)
		assert.True(t, errors.Is(err, store.ErrAlreadyUsed))
	})

	t.Run("file missing", func(t *testing.T) {
		f := newFixture(t, true)
		tok, err := f.ledger.Issue(ctx, 1001, 42, "gone.epub", time.Hour)
		require.NoError(t, err)

		_, err = f.orch.Redeem(ctx, tok.ID)
		assert.True(t, errors.Is(err, ErrFileMissing))

		// The failed attempt must not consume the token.
		got, err := f.ledger.Lookup(ctx, tok.ID)
		require.NoError(t, err)
		assert.Nil(t, got.RedeemedAt)
	})
}

func TestRedeemPolicyOffAllowsRepeats(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	tok, err := f.ledger.Issue(ctx, 1001, 42, "book.epub", time.Hour)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := f.orch.Redeem(ctx, tok.ID)
		require.NoError(t, err, "repeat redemption %d with policy off", i)
	}
}

func TestRegenerateIssuesDistinctItems(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	body := orderPaidBody(1001, "buyer@example.com", 42, 43)
	_, err := f.orch.HandlePaidOrder(ctx, body, signedWebhook(body))
	require.NoError(t, err)
	f.waitForEmail(t)

	query := signedProxyQuery(url.Values{
		"order_id":              {"1001"},
		"logged_in_customer_id": {"501"},
	})
	require.NoError(t, f.orch.Regenerate(ctx, query))

	// 2 originals + 2 regenerated; old tokens are not invalidated.
	toks, err := f.tokens.ListByOrder(ctx, 1001)
	require.NoError(t, err)
	assert.Len(t, toks, 4)
	for _, tok := range toks {
		assert.Nil(t, tok.RedeemedAt)
	}

	msg := f.waitForEmail(t)
	assert.Equal(t, "Your regenerated ebook link", msg.Subject)

	// A second regeneration still issues one token per distinct item,
	// not one per prior token.
	require.NoError(t, f.orch.Regenerate(ctx, signedProxyQuery(url.Values{
		"order_id":              {"1001"},
		"logged_in_customer_id": {"501"},
	})))
	f.waitForEmail(t)

	toks, err = f.tokens.ListByOrder(ctx, 1001)
	require.NoError(t, err)
	assert.Len(t, toks, 6)
}

func TestRegenerateForgedSignature(t *testing.T) {
	f := newFixture(t, true)

	query := url.Values{
		"order_id":              {"1001"},
		"logged_in_customer_id": {"501"},
		"signature":             {"forged"},
	}
	err := f.orch.Regenerate(context.Background(), query)
	assert.True(t, errors.Is(err, ErrInvalidSignature))

	toks, _ := f.tokens.ListByOrder(context.Background(), 1001)
	assert.Empty(t, toks)

	events, err := f.events.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, store.EventRegenFailed, events[0].Kind)
	assert.Nil(t, events[0].OrderID, "no order id leaked on forged signature")
}

func TestRegenerateValidation(t *testing.T) {
	tests := []struct {
		name  string
		query url.Values
		want  error
	}{
		{
			name:  "missing order_id",
			query: url.Values{"logged_in_customer_id": {"501"}},
			want:  ErrBadRequest,
		},
		{
			name:  "non-numeric order_id",
			query: url.Values{"order_id": {"abc"}, "logged_in_customer_id": {"501"}},
			want:  ErrBadRequest,
		},
		{
			name:  "missing customer id",
			query: url.Values{"order_id": {"1001"}},
			want:  ErrBadRequest,
		},
		{
			name:  "unknown order",
			query: url.Values{"order_id": {"9999"}, "logged_in_customer_id": {"501"}},
			want:  ErrForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, true)
			err := f.orch.Regenerate(context.Background(), signedProxyQuery(tt.query))
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestRegenerateOwnershipUniformDenial(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	body := orderPaidBody(1001, "buyer@example.com", 42)
	_, err := f.orch.HandlePaidOrder(ctx, body, signedWebhook(body))
	require.NoError(t, err)
	f.waitForEmail(t)

	wrongOwner := f.orch.Regenerate(ctx, signedProxyQuery(url.Values{
		"order_id":              {"1001"},
		"logged_in_customer_id": {"777"},
	}))
	missingOrder := f.orch.Regenerate(ctx, signedProxyQuery(url.Values{
		"order_id":              {"9999"},
		"logged_in_customer_id": {"777"},
	}))

	// Wrong owner and nonexistent order must be indistinguishable.
	assert.True(t, errors.Is(wrongOwner, ErrForbidden))
	assert.True(t, errors.Is(missingOrder, ErrForbidden))

	toks, _ := f.tokens.ListByOrder(ctx, 1001)
	assert.Len(t, toks, 1, "denied regeneration must not mint tokens")
}

func TestRegenerateNoPriorTokens(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	cid := int64(501)
	require.NoError(t, f.orders.Upsert(ctx, store.Order{
		ID: 1001, CustomerID: &cid, Email: "buyer@example.com", CreatedAt: time.Now().UTC(),
	}))

	err := f.orch.Regenerate(ctx, signedProxyQuery(url.Values{
		"order_id":              {"1001"},
		"logged_in_customer_id": {"501"},
	}))
	assert.True(t, errors.Is(err, store.ErrNotFound))
}
