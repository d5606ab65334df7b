package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mattjoyce/bindery/internal/store"
)

func TestOrderStoreFirstWriteWins(t *testing.T) {
	s := NewOrderStore()
	ctx := context.Background()

	first := store.Order{ID: 1, Email: "a@example.com", CreatedAt: time.Now()}
	if err := s.Upsert(ctx, first); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	replay := store.Order{ID: 1, Email: "b@example.com", CreatedAt: time.Now()}
	if err := s.Upsert(ctx, replay); err != nil {
		t.Fatalf("Upsert replay: %v", err)
	}

	got, err := s.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Email != "a@example.com" {
		t.Errorf("email = %q", got.Email)
	}

	if _, err := s.Get(ctx, 2); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTokenStoreMarkRedeemedRace(t *testing.T) {
	s := NewTokenStore()
	ctx := context.Background()
	now := time.Now().UTC()

	tok := store.DownloadToken{ID: "race", OrderID: 1, ProductID: 42, FileName: "book.epub",
		ExpiresAt: now.Add(time.Hour), CreatedAt: now}
	if err := s.Insert(ctx, tok); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.MarkRedeemed(ctx, "race", now)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else if !errors.Is(err, store.ErrAlreadyUsed) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("exactly one redemption must win, got %d", wins)
	}
}

func TestTokenStoreDuplicateInsert(t *testing.T) {
	s := NewTokenStore()
	ctx := context.Background()

	tok := store.DownloadToken{ID: "dup", OrderID: 1, ProductID: 42, FileName: "book.epub"}
	if err := s.Insert(ctx, tok); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Insert(ctx, tok); !errors.Is(err, store.ErrDuplicateToken) {
		t.Errorf("expected ErrDuplicateToken, got %v", err)
	}
}

func TestAuditStoreRetention(t *testing.T) {
	s := NewAuditStore(3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ev := store.AuditEvent{Kind: store.EventWebhookSkipped, Message: "skip", CreatedAt: time.Now()}
		if err := s.Append(ctx, ev); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	events, err := s.Recent(ctx, 100)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("retention not enforced: %d events", len(events))
	}
	if events[0].ID <= events[2].ID {
		t.Errorf("events not newest-first: %#v", events)
	}
}
