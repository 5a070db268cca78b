package webpush

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbarradev-debug/divisapp-sub000/pkg/logger"
)

// CleanupReport summarises one cleanup run.
type CleanupReport struct {
	Removed   int      `json:"removed"`
	FailedIDs []string `json:"failedIds"`
	// Err is set when the run could not list its candidates.
	Err error `json:"-"`
}

// Cleaner removes subscriptions the push services reported as gone.
type Cleaner struct {
	store     Store
	now       func() time.Time
	logger    *slog.Logger
	onRemoved func(ctx context.Context, reason string, n int)
}

// CleanerOption configures a Cleaner.
type CleanerOption func(*Cleaner)

// WithCleanerClock overrides the time source used for expiry sweeps.
func WithCleanerClock(now func() time.Time) CleanerOption {
	return func(c *Cleaner) {
		if now != nil {
			c.now = now
		}
	}
}

// WithCleanerLogger sets the logger.
func WithCleanerLogger(l *slog.Logger) CleanerOption {
	return func(c *Cleaner) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithOnRemoved registers a hook called after each run that removed rows.
// reason is "invalid", "expired" or "requested".
func WithOnRemoved(fn func(ctx context.Context, reason string, n int)) CleanerOption {
	return func(c *Cleaner) {
		c.onRemoved = fn
	}
}

// NewCleaner creates a Cleaner over store.
func NewCleaner(store Store, opts ...CleanerOption) *Cleaner {
	c := &Cleaner{
		store:  store,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(logger.Component("webpush.cleaner"))
	return c
}

// CleanupInvalidSubscriptions removes the subscriptions listed in
// result.SubscriptionsToRemove.
func (c *Cleaner) CleanupInvalidSubscriptions(ctx context.Context, result DeliveryResult) CleanupReport {
	return c.remove(ctx, "invalid", result.SubscriptionsToRemove)
}

// CleanupSubscriptionsByID removes the given endpoints.
func (c *Cleaner) CleanupSubscriptionsByID(ctx context.Context, ids []string) CleanupReport {
	return c.remove(ctx, "requested", ids)
}

// CleanupExpiredSubscriptions removes subscriptions whose browser-announced
// expiration time has passed.
func (c *Cleaner) CleanupExpiredSubscriptions(ctx context.Context) CleanupReport {
	expired, err := c.store.ListExpired(ctx, c.now())
	if err != nil {
		c.logger.LogAttrs(ctx, slog.LevelError, "failed to list expired subscriptions", logger.Error(err))
		return CleanupReport{FailedIDs: []string{}, Err: fmt.Errorf("list expired subscriptions: %w", err)}
	}

	ids := make([]string, 0, len(expired))
	for _, sub := range expired {
		ids = append(ids, sub.Endpoint)
	}
	return c.remove(ctx, "expired", ids)
}

func (c *Cleaner) remove(ctx context.Context, reason string, ids []string) CleanupReport {
	report := CleanupReport{FailedIDs: []string{}}
	ids = compact(ids)
	if len(ids) == 0 {
		return report
	}

	n, err := c.store.DeleteByEndpoints(ctx, ids)
	if err == nil {
		report.Removed = n
	} else {
		c.logger.LogAttrs(ctx, slog.LevelWarn, "batch delete failed, removing one by one",
			logger.Error(err),
			logger.Count("count", len(ids)),
		)
		var errs []error
		for _, id := range ids {
			err := c.store.DeleteByEndpoint(ctx, id)
			switch {
			case err == nil:
				report.Removed++
			case errors.Is(err, ErrSubscriptionNotFound):
			default:
				report.FailedIDs = append(report.FailedIDs, id)
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			c.logger.LogAttrs(ctx, slog.LevelError, "failed to remove subscriptions",
				logger.Error(errors.Join(errs...)),
				logger.Count("failed", len(report.FailedIDs)),
			)
		}
	}

	if report.Removed > 0 {
		c.logger.LogAttrs(ctx, slog.LevelInfo, "subscriptions removed",
			slog.String("reason", reason),
			logger.Count("removed", report.Removed),
		)
		if c.onRemoved != nil {
			c.onRemoved(ctx, reason, report.Removed)
		}
	}
	return report
}

// compact drops empty and repeated ids, keeping first-seen order.
func compact(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
