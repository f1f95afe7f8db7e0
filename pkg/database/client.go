// Package database provides PostgreSQL connection pooling and migration
// utilities shared by the HTTP server and the task runtime's worker pool.
//
// Per spec.md §4.2/§5, the HTTP pool and the worker pool must never share
// a session: each caller of NewClient gets its own *sql.DB-backed pool.
package database

import (
	stdsql "database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver for database/sql
)

//go:embed migrations
var migrationsFS embed.FS

// Client wraps a connection pool plus the sqlx convenience layer used by
// pkg/store, pkg/webhook, pkg/learning and pkg/taskqueue for scanning rows
// into domain structs without a generated ORM client.
type Client struct {
	DB *sqlx.DB
}

// NewClient opens a new, independent connection pool, applies pending
// migrations, and returns a ready-to-use Client. Each call creates its own
// pool — callers must not share a Client between the HTTP server and a
// worker pool.
func NewClient(cfg Config) (*Client, error) {
	sqlDB, err := stdsql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(sqlDB, cfg.Database); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Client{DB: sqlx.NewDb(sqlDB, "pgx")}, nil
}

// NewClientFromSQL wraps a pre-opened *sql.DB without running migrations
// (used by the test harness, which applies migrations once per schema).
func NewClientFromSQL(db *stdsql.DB) *Client {
	return &Client{DB: sqlx.NewDb(db, "pgx")}
}

// NewMigrateFromSource builds a *migrate.Migrate over the same embedded SQL
// files NewClient uses, bound to a caller-supplied database driver. Exposed
// for test/util, which needs to apply migrations against a per-test schema
// rather than the whole database.
func NewMigrateFromSource(driver migratedb.Driver) (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}
	return migrate.NewWithInstance("iofs", sourceDriver, "campaignd_test", driver)
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.DB.Close()
}

// runMigrations applies embedded SQL migrations with golang-migrate.
//
// We must not call m.Close() — that closes the underlying *sql.DB via the
// postgres driver, which would break the pool we just built for the
// caller. We close only the source driver.
func runMigrations(db *stdsql.DB, databaseName string) error {
	ok, err := hasEmbeddedMigrations()
	if err != nil {
		return fmt.Errorf("check embedded migrations: %w", err)
	}
	if !ok {
		return fmt.Errorf("no embedded migration files found — binary built incorrectly")
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, databaseName, driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return sourceDriver.Close()
}

func hasEmbeddedMigrations() (bool, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read embedded migrations: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() && len(e.Name()) > 4 && e.Name()[len(e.Name())-4:] == ".sql" {
			return true, nil
		}
	}
	return false, nil
}
