// Package fulfill ties the trust boundaries together: verified paid-order
// events mint tokens and dispatch delivery email; verified regenerate
// requests re-mint tokens for a prior order. Every branch ends in an audit
// entry and an explicit terminal outcome.
package fulfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mattjoyce/bindery/internal/audit"
	"github.com/mattjoyce/bindery/internal/catalog"
	"github.com/mattjoyce/bindery/internal/config"
	"github.com/mattjoyce/bindery/internal/dispatch"
	"github.com/mattjoyce/bindery/internal/log"
	"github.com/mattjoyce/bindery/internal/mail"
	"github.com/mattjoyce/bindery/internal/metrics"
	"github.com/mattjoyce/bindery/internal/signature"
	"github.com/mattjoyce/bindery/internal/store"
	"github.com/mattjoyce/bindery/internal/token"
)

// Sentinel outcomes the HTTP layer maps to status codes. Storage faults are
// the one class returned unwrapped and treated as fatal.
var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrBadRequest       = errors.New("missing order_id or customer id")
	ErrForbidden        = errors.New("order not found for this customer")
	ErrFileMissing      = errors.New("file missing")
)

// PaidOrderStatus is the terminal outcome of a verified webhook.
type PaidOrderStatus int

const (
	PaidOrderDelivered PaidOrderStatus = iota
	PaidOrderSkipped
)

// PaidOrderResult reports what a webhook produced. Reason doubles as the
// acknowledgment body ("ok", "No order email", "No ebook items").
type PaidOrderResult struct {
	Status PaidOrderStatus
	Reason string
	Links  int
}

// Download is a redeemed token resolved to a file on disk.
type Download struct {
	Path     string
	FileName string
	OrderID  int64
}

// deliverable is a line item matched against the catalog.
type deliverable struct {
	productID int64
	title     string
	fileName  string
}

// Orchestrator drives fulfillment over the order store, token ledger,
// catalog, audit log, and email dispatcher.
type Orchestrator struct {
	orders store.OrderStore
	ledger *token.Ledger
	cat    *catalog.Catalog
	audit  *audit.Log
	emails *dispatch.Dispatcher

	baseURL       string
	ttl           time.Duration
	ebooksDir     string
	webhookSecret string
	proxySecret   string

	logger *slog.Logger
}

// New creates an orchestrator wired from config.
func New(cfg *config.Config, orders store.OrderStore, ledger *token.Ledger, cat *catalog.Catalog, auditLog *audit.Log, emails *dispatch.Dispatcher) *Orchestrator {
	return &Orchestrator{
		orders:        orders,
		ledger:        ledger,
		cat:           cat,
		audit:         auditLog,
		emails:        emails,
		baseURL:       cfg.Service.BaseURL,
		ttl:           time.Duration(cfg.Delivery.TokenTTLMinutes) * time.Minute,
		ebooksDir:     cfg.Delivery.EbooksDir,
		webhookSecret: cfg.Secrets.WebhookSecret,
		proxySecret:   cfg.Secrets.ProxySecret,
		logger:        log.WithComponent("fulfill"),
	}
}

// HandlePaidOrder processes one orders_paid notification. body is the raw
// request body exactly as received; signature verification runs over it
// before anything is parsed. Returns ErrInvalidSignature for a bad
// signature; payload-shape problems are acknowledged as skips, never
// errors.
func (o *Orchestrator) HandlePaidOrder(ctx context.Context, body []byte, providedSignature string) (*PaidOrderResult, error) {
	metrics.WebhooksReceivedTotal.Inc()

	if !signature.VerifyWebhook(body, providedSignature, o.webhookSecret) {
		metrics.WebhooksInvalidTotal.Inc()
		o.audit.Record(ctx, store.EventWebhookInvalid, "Invalid webhook signature")
		return nil, ErrInvalidSignature
	}

	payload, err := ParseOrderPaid(body)
	if err != nil {
		o.logger.Warn("webhook payload rejected", "error", err)
		return o.skip(ctx, nil, "Malformed payload"), nil
	}

	if payload.ID == 0 || payload.Email == "" {
		var orderID *int64
		if payload.ID != 0 {
			orderID = &payload.ID
		}
		return o.skip(ctx, orderID, "No order email"), nil
	}

	items := o.resolveItems(payload.LineItems)
	if len(items) == 0 {
		return o.skip(ctx, &payload.ID, "No ebook items"), nil
	}

	order := store.Order{
		ID:         payload.ID,
		CustomerID: payload.CustomerID(),
		Email:      payload.Email,
		CreatedAt:  time.Now().UTC(),
	}
	if err := o.orders.Upsert(ctx, order); err != nil {
		return nil, fmt.Errorf("persist order %d: %w", payload.ID, err)
	}

	links, err := o.issueLinks(ctx, payload.ID, items)
	if err != nil {
		return nil, err
	}

	// The notification outcome is audited before we acknowledge the
	// webhook; a send failure never rolls back the issued links.
	o.emails.Deliver(ctx, dispatch.Task{
		OrderID:       payload.ID,
		Message:       mail.DownloadMessage(payload.Email, links),
		SuccessNote:   fmt.Sprintf("Sent %d link(s) to %s", len(links), payload.Email),
		FailurePrefix: "Email failed",
	})

	log.WithOrder(payload.ID).Info("order fulfilled", "links", len(links))
	return &PaidOrderResult{Status: PaidOrderDelivered, Reason: "ok", Links: len(links)}, nil
}

// Redeem turns a token id into a downloadable file, enforcing expiry and
// the single-use policy. Denials return ErrNotFound, ErrExpired,
// ErrAlreadyUsed, or ErrFileMissing; each is audited with its reason.
func (o *Orchestrator) Redeem(ctx context.Context, tokenID string) (*Download, error) {
	t, err := o.ledger.Lookup(ctx, tokenID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, o.denyDownload(ctx, nil, "not_found", "Link not found", store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup token: %w", err)
	}

	now := time.Now().UTC()
	if now.After(t.ExpiresAt) {
		return nil, o.denyDownload(ctx, &t.OrderID, "expired", "Link expired", store.ErrExpired)
	}
	if o.ledger.SingleUse() && t.RedeemedAt != nil {
		return nil, o.denyDownload(ctx, &t.OrderID, "already_used", "Link already used", store.ErrAlreadyUsed)
	}

	path := filepath.Join(o.ebooksDir, filepath.Base(t.FileName))
	if _, err := os.Stat(path); err != nil {
		return nil, o.denyDownload(ctx, &t.OrderID, "file_missing", "File missing", ErrFileMissing)
	}

	// Authoritative claim. A concurrent redemption that won the race
	// surfaces here even though the checks above passed.
	if _, err := o.ledger.Redeem(ctx, tokenID, now); err != nil {
		switch {
		case errors.Is(err, store.ErrAlreadyUsed):
			return nil, o.denyDownload(ctx, &t.OrderID, "already_used", "Link already used", store.ErrAlreadyUsed)
		case errors.Is(err, store.ErrExpired):
			return nil, o.denyDownload(ctx, &t.OrderID, "expired", "Link expired", store.ErrExpired)
		case errors.Is(err, store.ErrNotFound):
			return nil, o.denyDownload(ctx, &t.OrderID, "not_found", "Link not found", store.ErrNotFound)
		default:
			return nil, fmt.Errorf("redeem token: %w", err)
		}
	}

	metrics.DownloadsServedTotal.Inc()
	o.audit.RecordOrder(ctx, store.EventDownloadSuccess, t.OrderID, fmt.Sprintf("Downloaded %s", t.FileName))
	return &Download{Path: path, FileName: t.FileName, OrderID: t.OrderID}, nil
}

// Regenerate handles a verified customer request for fresh links. One new
// token is issued per distinct previously-delivered item; old tokens are
// left to expire on their own. The email is dispatched in the background,
// so a nil return means "accepted", not "sent".
func (o *Orchestrator) Regenerate(ctx context.Context, query url.Values) error {
	if !signature.VerifyProxyRequest(query, o.proxySecret) {
		o.audit.Record(ctx, store.EventRegenFailed, "Invalid proxy signature")
		return ErrInvalidSignature
	}

	orderID, okOrder := parsePositiveInt(query.Get("order_id"))
	customerID, okCustomer := parsePositiveInt(query.Get("logged_in_customer_id"))
	if !okOrder || !okCustomer {
		if okOrder {
			o.audit.RecordOrder(ctx, store.EventRegenFailed, orderID, "Missing order_id or customer id")
		} else {
			o.audit.Record(ctx, store.EventRegenFailed, "Missing order_id or customer id")
		}
		return ErrBadRequest
	}

	order, err := o.orders.Get(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		order = nil
	} else if err != nil {
		return fmt.Errorf("lookup order %d: %w", orderID, err)
	}
	// Uniform denial: a missing order and a wrong owner are
	// indistinguishable to the caller.
	if order == nil || order.CustomerID == nil || *order.CustomerID != customerID {
		o.audit.RecordOrder(ctx, store.EventRegenFailed, orderID, "Order not found for this customer")
		return ErrForbidden
	}

	prior, err := o.ledger.ListByOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("list tokens for order %d: %w", orderID, err)
	}
	if len(prior) == 0 {
		o.audit.RecordOrder(ctx, store.EventRegenFailed, orderID, "No ebook records found")
		return store.ErrNotFound
	}

	items := distinctItems(prior)
	links, err := o.issueLinks(ctx, orderID, items)
	if err != nil {
		return err
	}

	o.emails.Enqueue(dispatch.Task{
		OrderID:       orderID,
		Message:       mail.RegeneratedMessage(order.Email, links),
		SuccessNote:   fmt.Sprintf("Regenerated %d link(s) for %s", len(links), order.Email),
		FailurePrefix: "Regenerate email failed",
	})

	log.WithOrder(orderID).Info("links regenerated", "links", len(links))
	return nil
}

// resolveItems matches line items against the catalog, dropping anything
// that is not a known ebook. Catalog titles win over line-item titles.
func (o *Orchestrator) resolveItems(lines []PayloadLineItem) []deliverable {
	var items []deliverable
	for _, li := range lines {
		p := o.cat.FindByProductID(li.ProductID)
		if p == nil {
			continue
		}
		title := p.Title
		if title == "" {
			title = li.Title
		}
		items = append(items, deliverable{productID: li.ProductID, title: title, fileName: p.FileName})
	}
	return items
}

// issueLinks mints one token per item and renders the download links.
func (o *Orchestrator) issueLinks(ctx context.Context, orderID int64, items []deliverable) ([]mail.Link, error) {
	links := make([]mail.Link, 0, len(items))
	for _, item := range items {
		t, err := o.ledger.Issue(ctx, orderID, item.productID, item.fileName, o.ttl)
		if err != nil {
			return nil, fmt.Errorf("issue token for order %d product %d: %w", orderID, item.productID, err)
		}
		links = append(links, mail.Link{
			Title:     item.title,
			URL:       fmt.Sprintf("%s/download/%s", o.baseURL, t.ID),
			ExpiresAt: t.ExpiresAt,
		})
	}
	return links, nil
}

func (o *Orchestrator) denyDownload(ctx context.Context, orderID *int64, reason, message string, err error) error {
	metrics.DownloadsDeniedTotal.WithLabelValues(reason).Inc()
	if orderID != nil {
		o.audit.RecordOrder(ctx, store.EventDownloadFailed, *orderID, message)
	} else {
		o.audit.Record(ctx, store.EventDownloadFailed, message)
	}
	return err
}

func (o *Orchestrator) skip(ctx context.Context, orderID *int64, reason string) *PaidOrderResult {
	metrics.WebhooksSkippedTotal.Inc()
	if orderID != nil {
		o.audit.RecordOrder(ctx, store.EventWebhookSkipped, *orderID, reason)
	} else {
		o.audit.Record(ctx, store.EventWebhookSkipped, reason)
	}
	return &PaidOrderResult{Status: PaidOrderSkipped, Reason: reason}
}

// distinctItems reduces prior tokens to the distinct items they deliver,
// in first-issued order. Repeated regenerations therefore never multiply
// the links in the email.
func distinctItems(tokens []store.DownloadToken) []deliverable {
	seen := make(map[int64]bool, len(tokens))
	var items []deliverable
	for _, t := range tokens {
		if seen[t.ProductID] {
			continue
		}
		seen[t.ProductID] = true
		items = append(items, deliverable{productID: t.ProductID, title: t.FileName, fileName: t.FileName})
	}
	return items
}

func parsePositiveInt(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
