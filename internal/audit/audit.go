// Package audit records security- and delivery-relevant transitions in a
// bounded, durable trail. Recording is best-effort from the caller's point
// of view: a failed write degrades observability, never delivery.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/mattjoyce/bindery/internal/log"
	"github.com/mattjoyce/bindery/internal/metrics"
	"github.com/mattjoyce/bindery/internal/store"
)

// Log appends audit events to a bounded store.
type Log struct {
	store  store.AuditStore
	logger *slog.Logger
}

// New creates an audit log over the given store.
func New(st store.AuditStore) *Log {
	return &Log{
		store:  st,
		logger: log.WithComponent("audit"),
	}
}

// Record appends an event with no associated order. Failures are logged and
// counted, not returned.
func (l *Log) Record(ctx context.Context, kind store.EventKind, message string) {
	l.append(ctx, store.AuditEvent{Kind: kind, Message: message})
}

// RecordOrder appends an event associated with an order id.
func (l *Log) RecordOrder(ctx context.Context, kind store.EventKind, orderID int64, message string) {
	l.append(ctx, store.AuditEvent{Kind: kind, OrderID: &orderID, Message: message})
}

func (l *Log) append(ctx context.Context, ev store.AuditEvent) {
	ev.CreatedAt = time.Now().UTC()
	if err := l.store.Append(ctx, ev); err != nil {
		metrics.AuditWriteFailuresTotal.Inc()
		l.logger.Error("audit write failed", "kind", ev.Kind, "error", err)
		return
	}
	l.logger.Debug("audit event recorded", "kind", ev.Kind, "message", ev.Message)
}

// Recent returns up to limit events, most recent first. Display only; no
// correctness depends on it.
func (l *Log) Recent(ctx context.Context, limit int) ([]store.AuditEvent, error) {
	return l.store.Recent(ctx, limit)
}
