// Package pg bootstraps PostgreSQL access over pgx/v5.
//
// Connect opens a *pgxpool.Pool with retries. OpenDB exposes the same pool as
// a *sql.DB so database/sql consumers and goose share connections. Migrate
// runs goose migrations from an fs.FS, usually an embed.FS owned by the
// package that defines the schema:
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	db := pg.OpenDB(pool)
//	if err := pg.Migrate(ctx, db, pgstore.Migrations, pgstore.MigrationsDir, cfg, log); err != nil {
//	    return err
//	}
//
// Healthcheck wraps any Ping-capable handle as a readiness probe.
package pg
