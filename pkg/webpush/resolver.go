package webpush

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Resolver finds the subscriptions a delivery targets.
type Resolver struct {
	store Store
}

// NewResolver creates a Resolver reading from store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns every subscription registered for userID, in no
// particular order.
func (r *Resolver) Resolve(ctx context.Context, userID string) ([]Subscription, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidEvent)
	}
	subs, err := r.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve subscriptions for user: %w", err)
	}
	return subs, nil
}

// ResolveIDs returns the subscriptions for the given endpoints. Unknown and
// repeated ids are skipped.
func (r *Resolver) ResolveIDs(ctx context.Context, ids []string) ([]Subscription, error) {
	seen := make(map[string]struct{}, len(ids))
	subs := make([]Subscription, 0, len(ids))

	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		sub, err := r.store.FindByEndpoint(ctx, id)
		if errors.Is(err, ErrSubscriptionNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// HasActiveSubscriptions reports whether userID has at least one subscription.
func (r *Resolver) HasActiveSubscriptions(ctx context.Context, userID string) (bool, error) {
	if c, ok := r.store.(Counter); ok {
		n, err := c.CountByUser(ctx, userID)
		if err != nil {
			return false, fmt.Errorf("count subscriptions: %w", err)
		}
		return n > 0, nil
	}

	subs, err := r.store.ListByUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("list subscriptions: %w", err)
	}
	return len(subs) > 0, nil
}
