// Command pushd delivers Web Push notifications.
//
// It serves the HTTP API, consumes delivery requests from Kafka when brokers
// are configured, and periodically removes expired subscriptions.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/pflag"

	"github.com/mbarradev-debug/divisapp-sub000/internal/intake"
	"github.com/mbarradev-debug/divisapp-sub000/pkg/config"
	"github.com/mbarradev-debug/divisapp-sub000/pkg/httpserver"
	"github.com/mbarradev-debug/divisapp-sub000/pkg/logger"
	"github.com/mbarradev-debug/divisapp-sub000/pkg/pg"
	"github.com/mbarradev-debug/divisapp-sub000/pkg/redis"
	"github.com/mbarradev-debug/divisapp-sub000/pkg/vapid"
	"github.com/mbarradev-debug/divisapp-sub000/pkg/webpush"
)

// Config is the complete process configuration.
type Config struct {
	Logger   logger.Config
	Postgres pg.Config
	Redis    redis.Config
	HTTP     httpserver.Config
	VAPID    vapid.Config
	Push     webpush.Config
	Intake   intake.Config

	SweepInterval time.Duration `env:"CLEANUP_SWEEP_INTERVAL" envDefault:"1h"`
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		envFiles       []string
		skipMigrations bool
	)
	flagSet := pflag.NewFlagSet("pushd", pflag.ContinueOnError)
	flagSet.StringSliceVar(&envFiles, "env-file", nil, "load variables from these .env files instead of ./.env")
	flagSet.BoolVar(&skipMigrations, "skip-migrations", false, "do not apply database migrations on start")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	var opts []config.Option
	if len(envFiles) > 0 {
		opts = append(opts, config.WithFiles(envFiles...))
	}
	cfg, err := config.Load[Config](opts...)
	if err != nil {
		return err
	}

	// chi's RequestID middleware stores the id under RequestIDKey.
	log, err := logger.NewFromConfig(cfg.Logger, logger.WithContextValue("request_id", middleware.RequestIDKey))
	if err != nil {
		return err
	}
	logger.SetAsDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log, !skipMigrations)
	if err != nil {
		return err
	}
	defer a.close()

	return a.run(ctx)
}
