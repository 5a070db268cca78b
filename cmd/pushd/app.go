package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/mbarradev-debug/divisapp-sub000/internal/api"
	"github.com/mbarradev-debug/divisapp-sub000/internal/intake"
	"github.com/mbarradev-debug/divisapp-sub000/internal/metrics"
	"github.com/mbarradev-debug/divisapp-sub000/pkg/httpserver"
	"github.com/mbarradev-debug/divisapp-sub000/pkg/logger"
	"github.com/mbarradev-debug/divisapp-sub000/pkg/pg"
	"github.com/mbarradev-debug/divisapp-sub000/pkg/redis"
	"github.com/mbarradev-debug/divisapp-sub000/pkg/vapid"
	"github.com/mbarradev-debug/divisapp-sub000/pkg/webpush"
	"github.com/mbarradev-debug/divisapp-sub000/pkg/webpush/pgstore"
)

type app struct {
	cfg    Config
	log    *slog.Logger
	pool   *pgxpool.Pool
	db     *sql.DB
	redis  *goredis.Client
	server *httpserver.Server
	sweep  *sweeper
	intake *intake.Consumer
}

func newApp(ctx context.Context, cfg Config, log *slog.Logger, migrate bool) (*app, error) {
	a := &app{cfg: cfg, log: log}

	pool, err := pg.Connect(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	a.pool = pool
	a.db = pg.OpenDB(pool)

	if migrate {
		if err := pg.Migrate(ctx, a.db, pgstore.Migrations, pgstore.MigrationsDir, cfg.Postgres, log); err != nil {
			a.close()
			return nil, err
		}
	}

	signerOpts := []vapid.Option{}
	if cfg.Redis.Enabled() {
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			a.close()
			return nil, err
		}
		a.redis = client
		signerOpts = append(signerOpts, vapid.WithTokenCache(vapid.NewRedisCache(client, vapid.WithRedisLogger(log))))
	}

	signer, err := vapid.NewFromConfig(cfg.VAPID, signerOpts...)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("vapid: %w", err)
	}

	m := metrics.New()
	store := pgstore.New(a.db, pgstore.WithLogger(log))
	dispatcher := webpush.NewDispatcherFromConfig(cfg.Push, webpush.NewResolver(store), signer,
		webpush.WithLogger(log),
		webpush.WithOnAttempt(m.ObserveAttempt),
		webpush.WithOnSkipped(m.ObserveSkipped),
	)
	cleaner := webpush.NewCleaner(store,
		webpush.WithCleanerLogger(log),
		webpush.WithOnRemoved(m.ObserveRemoved),
	)

	probes := []api.Option{
		api.WithLogger(log),
		api.WithProbe("postgres", pg.Healthcheck(pool)),
	}
	if a.redis != nil {
		probes = append(probes, api.WithProbe("redis", redis.Healthcheck(a.redis)))
	}
	handler := api.NewHandler(dispatcher, cleaner, store, signer.PublicKey(), probes...)
	a.server = httpserver.New(cfg.HTTP, api.Router(handler, m.Handler()), httpserver.WithLogger(log))
	a.sweep = newSweeper(cleaner, cfg.SweepInterval, log)

	if cfg.Intake.Enabled() {
		group, err := intake.NewConsumerGroup(cfg.Intake)
		if err != nil {
			a.close()
			return nil, err
		}
		a.intake = intake.NewConsumer(group, cfg.Intake.Topic, dispatcher, cleaner,
			intake.WithLogger(log),
			intake.WithMaxBackoff(cfg.Intake.MaxBackoff),
			intake.WithOnHandled(func(s intake.Status) { m.ObserveConsumed(string(s)) }),
		)
	}

	return a, nil
}

// run blocks until ctx is done or a component fails.
func (a *app) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.server.Run(ctx) })
	g.Go(func() error { return a.sweep.run(ctx) })
	if a.intake != nil {
		g.Go(func() error { return a.intake.Run(ctx) })
	}

	a.log.LogAttrs(ctx, slog.LevelInfo, "pushd started",
		slog.String("addr", a.cfg.HTTP.Addr),
		slog.Bool("intake", a.intake != nil),
		slog.Bool("redis", a.redis != nil),
	)
	return g.Wait()
}

func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("failed to close redis", logger.Error(err))
		}
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
