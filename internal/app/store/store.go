// Package store opens the credential store selected by configuration.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nmiculinic/rzne/internal/app/migrate"
	"github.com/nmiculinic/rzne/internal/repository"
	"github.com/nmiculinic/rzne/internal/repository/memory"
	"github.com/nmiculinic/rzne/internal/repository/postgres"
	"github.com/nmiculinic/rzne/internal/repository/sqlite"
	"github.com/nmiculinic/rzne/pkg/config"
)

// Open connects to the store for cfg.DBDriver, applying migrations first when migrateFirst is set.
// The returned close function releases every connection Open acquired.
func Open(ctx context.Context, cfg config.APIConfig, migrateFirst bool, log *slog.Logger) (repository.Store, func(), error) {
	switch cfg.DBDriver {
	case config.DriverMemory:
		log.Warn("using in-memory store, data is lost on exit")
		return memory.New(), func() {}, nil
	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if migrateFirst {
			if err := migrate.FromDB(db, "sqlite3", log).Ensure(ctx); err != nil {
				db.Close()
				return nil, nil, fmt.Errorf("migrate sqlite: %w", err)
			}
		}
		log.Info("sqlite store ready", "path", cfg.SQLitePath)
		return sqlite.New(db), func() { db.Close() }, nil
	case config.DriverPostgres:
		if migrateFirst {
			runner, err := migrate.New(cfg.DBDriver, cfg.DatabaseURL, log)
			if err != nil {
				return nil, nil, fmt.Errorf("configure migrations: %w", err)
			}
			err = runner.Ping(ctx)
			if err == nil {
				err = runner.Ensure(ctx)
			}
			runner.Close()
			if err != nil {
				return nil, nil, fmt.Errorf("migrate postgres: %w", err)
			}
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("database ping failed: %w", err)
		}
		log.Info("postgres store ready")
		return postgres.New(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
}
