// Package memory provides in-memory store implementations. They honor the
// same atomicity contracts as the sqlite stores and back the test suites.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mattjoyce/bindery/internal/store"
)

// OrderStore is a mutex-guarded map of order id to record.
type OrderStore struct {
	mu     sync.RWMutex
	orders map[int64]store.Order
}

func NewOrderStore() *OrderStore {
	return &OrderStore{orders: make(map[int64]store.Order)}
}

func (s *OrderStore) Upsert(_ context.Context, o store.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[o.ID]; exists {
		// First write wins.
		return nil
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	s.orders[o.ID] = o
	return nil
}

func (s *OrderStore) Get(_ context.Context, id int64) (*store.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &o, nil
}

// TokenStore keeps tokens in insertion order per order id.
type TokenStore struct {
	mu     sync.Mutex
	tokens map[string]*store.DownloadToken
	order  []string // insertion order of token ids
}

func NewTokenStore() *TokenStore {
	return &TokenStore{tokens: make(map[string]*store.DownloadToken)}
}

func (s *TokenStore) Insert(_ context.Context, t store.DownloadToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tokens[t.ID]; exists {
		return store.ErrDuplicateToken
	}
	cp := t
	s.tokens[t.ID] = &cp
	s.order = append(s.order, t.ID)
	return nil
}

func (s *TokenStore) Get(_ context.Context, id string) (*store.DownloadToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *TokenStore) MarkRedeemed(_ context.Context, id string, now time.Time) (*store.DownloadToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if t.RedeemedAt != nil {
		return nil, store.ErrAlreadyUsed
	}
	at := now.UTC()
	t.RedeemedAt = &at
	cp := *t
	return &cp, nil
}

func (s *TokenStore) ListByOrder(_ context.Context, orderID int64) ([]store.DownloadToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.DownloadToken
	for _, id := range s.order {
		if t := s.tokens[id]; t.OrderID == orderID {
			out = append(out, *t)
		}
	}
	return out, nil
}

// AuditStore is a bounded slice: oldest entries are dropped once retention
// is exceeded.
type AuditStore struct {
	mu        sync.Mutex
	retention int
	nextID    int64
	events    []store.AuditEvent
}

func NewAuditStore(retention int) *AuditStore {
	if retention <= 0 {
		retention = 500
	}
	return &AuditStore{retention: retention}
}

func (s *AuditStore) Append(_ context.Context, ev store.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	ev.ID = s.nextID
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	s.events = append(s.events, ev)
	if len(s.events) > s.retention {
		s.events = s.events[len(s.events)-s.retention:]
	}
	return nil
}

func (s *AuditStore) Recent(_ context.Context, limit int) ([]store.AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.events)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]store.AuditEvent, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.events[i])
	}
	return out, nil
}
