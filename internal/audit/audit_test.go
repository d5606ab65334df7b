package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/bindery/internal/store"
	"github.com/mattjoyce/bindery/internal/store/memory"
)

func TestRecordPersistsEvent(t *testing.T) {
	st := memory.NewAuditStore(500)
	l := New(st)
	ctx := context.Background()

	l.Record(ctx, store.EventWebhookInvalid, "Invalid webhook signature")
	l.RecordOrder(ctx, store.EventDownloadSuccess, 1001, "Downloaded book.epub")

	events, err := l.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	// Newest first.
	assert.Equal(t, store.EventDownloadSuccess, events[0].Kind)
	require.NotNil(t, events[0].OrderID)
	assert.Equal(t, int64(1001), *events[0].OrderID)

	assert.Equal(t, store.EventWebhookInvalid, events[1].Kind)
	assert.Nil(t, events[1].OrderID)
}

type failingStore struct{}

func (failingStore) Append(context.Context, store.AuditEvent) error {
	return errors.New("disk full")
}

func (failingStore) Recent(context.Context, int) ([]store.AuditEvent, error) {
	return nil, errors.New("disk full")
}

func TestRecordIsBestEffort(t *testing.T) {
	l := New(failingStore{})

	// A failing store must not panic or block the caller.
	l.Record(context.Background(), store.EventWebhookSkipped, "No order email")
	l.RecordOrder(context.Background(), store.EventEmailFailed, 1001, "Email failed: boom")
}
