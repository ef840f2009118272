// Package pg bootstraps the PostgreSQL side of the ledger: a pgx connection
// pool opened with retries, goose migrations applied from an embedded
// filesystem, a readiness probe, and helpers that classify *pgconn.PgError
// values by SQLSTATE.
//
//	var cfg pg.Config
//	if err := config.Load(&cfg); err != nil { ... }
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil { ... }
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, pgstore.Migrations, pgstore.MigrationsDir, cfg, log); err != nil { ... }
//
// Connect waits RetryInterval after the first failed attempt, twice that after
// the second, and so on, giving up after RetryAttempts.
package pg
