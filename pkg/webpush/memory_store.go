package webpush

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	subs map[string]Subscription
	now  func() time.Time
	mu   sync.RWMutex
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subs: make(map[string]Subscription),
		now:  time.Now,
	}
}

func (s *MemoryStore) Upsert(_ context.Context, sub Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.subs[sub.Endpoint]; ok {
		sub.CreatedAt = existing.CreatedAt
	} else if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	s.subs[sub.Endpoint] = sub
	return nil
}

func (s *MemoryStore) FindByEndpoint(_ context.Context, endpoint string) (Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subs[endpoint]
	if !ok {
		return Subscription{}, ErrSubscriptionNotFound
	}
	return sub, nil
}

func (s *MemoryStore) DeleteByEndpoint(_ context.Context, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[endpoint]; !ok {
		return ErrSubscriptionNotFound
	}
	delete(s.subs, endpoint)
	return nil
}

func (s *MemoryStore) DeleteByEndpoints(_ context.Context, endpoints []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, endpoint := range endpoints {
		if _, ok := s.subs[endpoint]; ok {
			delete(s.subs, endpoint)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID string) ([]Subscription, error) {
	return s.filter(func(sub Subscription) bool { return sub.UserID == userID }), nil
}

func (s *MemoryStore) ListExpired(_ context.Context, now time.Time) ([]Subscription, error) {
	return s.filter(func(sub Subscription) bool { return sub.Expired(now) }), nil
}

func (s *MemoryStore) CountByUser(ctx context.Context, userID string) (int, error) {
	subs, err := s.ListByUser(ctx, userID)
	return len(subs), err
}

// Len returns the number of stored subscriptions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// filter returns matches ordered by creation time, then endpoint.
func (s *MemoryStore) filter(keep func(Subscription) bool) []Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Subscription, 0)
	for _, sub := range s.subs {
		if keep(sub) {
			out = append(out, sub)
		}
	}
	slices.SortFunc(out, func(a, b Subscription) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Endpoint, b.Endpoint)
	})
	return out
}
