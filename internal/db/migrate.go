package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/calmspace/apiserver/config"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// NewMigrator builds a migrator over the embedded SQL for the configured driver.
// Closing the migrator also closes conn.
func NewMigrator(conn *sql.DB, driver string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations/"+driver)
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}

	var target database.Driver
	switch driver {
	case config.DriverSQLite:
		target, err = migratesqlite.WithInstance(conn, &migratesqlite.Config{})
	case config.DriverPostgres:
		target, err = migratepostgres.WithInstance(conn, &migratepostgres.Config{})
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("init migration driver: %w", err)
	}

	return migrate.NewWithInstance("iofs", source, driver, target)
}

// Migrate applies all pending up migrations on a dedicated connection.
// Running it against an up-to-date schema is a no-op.
func Migrate(ctx context.Context, cfg config.Config) error {
	conn, err := Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	migrator, err := NewMigrator(conn, cfg.Database.Driver)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("migrate up failed: %w", err)
	}
	return nil
}
