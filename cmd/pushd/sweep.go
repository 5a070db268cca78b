package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/mbarradev-debug/divisapp-sub000/pkg/logger"
	"github.com/mbarradev-debug/divisapp-sub000/pkg/webpush"
)

type expiredCleaner interface {
	CleanupExpiredSubscriptions(ctx context.Context) webpush.CleanupReport
}

// sweeper removes expired subscriptions on a fixed interval. A zero interval
// disables it.
type sweeper struct {
	cleaner  expiredCleaner
	interval time.Duration
	log      *slog.Logger
}

func newSweeper(c expiredCleaner, interval time.Duration, log *slog.Logger) *sweeper {
	return &sweeper{cleaner: c, interval: interval, log: log.With(logger.Component("sweeper"))}
}

func (s *sweeper) run(ctx context.Context) error {
	if s.interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.once(ctx)
		}
	}
}

func (s *sweeper) once(ctx context.Context) {
	report := s.cleaner.CleanupExpiredSubscriptions(ctx)
	if report.Err != nil {
		s.log.LogAttrs(ctx, slog.LevelError, "expired subscription sweep failed", logger.Error(report.Err))
		return
	}
	if report.Removed > 0 || len(report.FailedIDs) > 0 {
		s.log.LogAttrs(ctx, slog.LevelInfo, "expired subscriptions swept",
			logger.Count("removed", report.Removed),
			logger.Count("failed", len(report.FailedIDs)),
		)
	}
}
