package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/nmiculinic/rzne/db/migrations"
	"github.com/nmiculinic/rzne/internal/repository/sqlite"
	"github.com/nmiculinic/rzne/pkg/config"
)

// goose keeps its dialect and base FS in package globals.
var gooseMu sync.Mutex

// Runner wraps database migration capabilities.
type Runner struct {
	db      *sql.DB
	owned   bool
	dialect string
	fsys    fs.FS
	log     *slog.Logger
}

// New opens a connection for driver ("postgres" or "sqlite") and returns a runner owning it.
func New(driver, dsn string, log *slog.Logger) (Runner, error) {
	if dsn == "" {
		return Runner{}, errors.New("empty database dsn")
	}
	sqlDriver, dialect, err := resolve(driver)
	if err != nil {
		return Runner{}, err
	}
	if sqlDriver == "sqlite3" {
		dsn = sqlite.DSN(dsn)
	}
	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return Runner{}, fmt.Errorf("open sql connection: %w", err)
	}
	r := FromDB(db, dialect, log)
	r.owned = true
	return r, nil
}

// FromDB returns a runner over an existing connection. Close leaves db open.
func FromDB(db *sql.DB, dialect string, log *slog.Logger) Runner {
	if log == nil {
		log = slog.Default()
	}
	return Runner{db: db, dialect: dialect, fsys: migrations.FS, log: log}
}

func resolve(driver string) (sqlDriver, dialect string, err error) {
	switch driver {
	case config.DriverPostgres:
		return "pgx", "postgres", nil
	case config.DriverSQLite:
		return "sqlite3", "sqlite3", nil
	default:
		return "", "", fmt.Errorf("migrations unsupported for driver %q", driver)
	}
}

// Ensure applies pending migrations.
func (r Runner) Ensure(ctx context.Context) error {
	return r.withGoose(func() error {
		runCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()

		r.log.Info("applying migrations", "dialect", r.dialect)
		if err := goose.UpContext(runCtx, r.db, r.dialect); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		r.log.Info("migrations applied")
		return nil
	})
}

// Status reports applied and pending migrations.
func (r Runner) Status(ctx context.Context) error {
	return r.withGoose(func() error {
		r.log.Info("migration status", "dialect", r.dialect)
		if err := goose.StatusContext(ctx, r.db, r.dialect); err != nil {
			return fmt.Errorf("migration status: %w", err)
		}
		return nil
	})
}

// Version returns the current schema version.
func (r Runner) Version(ctx context.Context) (int64, error) {
	var version int64
	err := r.withGoose(func() error {
		v, err := goose.GetDBVersionContext(ctx, r.db)
		if err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}
		version = v
		return nil
	})
	return version, err
}

// Down rolls back migrations either to the previous version or a specific target version.
func (r Runner) Down(ctx context.Context, targetVersion int64) error {
	return r.withGoose(func() error {
		runCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()

		if targetVersion > 0 {
			r.log.Info("rolling back migrations", "target", targetVersion)
			if err := goose.DownToContext(runCtx, r.db, r.dialect, targetVersion); err != nil {
				return fmt.Errorf("rollback to version %d: %w", targetVersion, err)
			}
		} else {
			r.log.Info("rolling back latest migration")
			if err := goose.DownContext(runCtx, r.db, r.dialect); err != nil {
				return fmt.Errorf("rollback latest migration: %w", err)
			}
		}

		r.log.Info("rollback complete")
		return nil
	})
}

// Ping ensures the database connection is alive.
func (r Runner) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// Close releases the connection when the runner opened it.
func (r Runner) Close() {
	if r.owned {
		_ = r.db.Close()
	}
}

func (r Runner) withGoose(fn func() error) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(r.fsys)
	if err := goose.SetDialect(r.dialect); err != nil {
		return fmt.Errorf("configure goose: %w", err)
	}
	return fn()
}
