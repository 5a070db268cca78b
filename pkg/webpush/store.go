package webpush

import (
	"context"
	"time"
)

// Store persists subscriptions keyed by endpoint.
type Store interface {
	// Upsert inserts or replaces the subscription with the same endpoint.
	Upsert(ctx context.Context, sub Subscription) error
	// FindByEndpoint returns ErrSubscriptionNotFound when nothing matches.
	FindByEndpoint(ctx context.Context, endpoint string) (Subscription, error)
	// DeleteByEndpoint returns ErrSubscriptionNotFound when nothing matches.
	DeleteByEndpoint(ctx context.Context, endpoint string) error
	// DeleteByEndpoints removes every listed endpoint and returns how many existed.
	DeleteByEndpoints(ctx context.Context, endpoints []string) (int, error)
	ListByUser(ctx context.Context, userID string) ([]Subscription, error)
	// ListExpired returns subscriptions whose expiration time is before now.
	ListExpired(ctx context.Context, now time.Time) ([]Subscription, error)
}

// Counter is implemented by stores that can count without loading rows.
type Counter interface {
	CountByUser(ctx context.Context, userID string) (int, error)
}
