package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/calmspace/apiserver/config"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultPingTimeout  = 5 * time.Second
	defaultConnMaxIdle  = 2 * time.Minute
	defaultConnMaxLife  = 30 * time.Minute
	defaultMaxIdleConns = 5
	defaultMaxOpenConns = 25
	sqliteBusyTimeoutMS = 5000
)

// Open connects to the configured database and verifies the connection.
// SQLite handles are limited to a single connection so writes are serialized.
func Open(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	driver := cfg.Database.Driver
	dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}

	if driver == config.DriverSQLite {
		if dir := filepath.Dir(cfg.Database.SQLitePath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data directory: %w", err)
			}
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	if driver == config.DriverSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetConnMaxIdleTime(defaultConnMaxIdle)
		db.SetConnMaxLifetime(defaultConnMaxLife)
		db.SetMaxIdleConns(defaultMaxIdleConns)
		db.SetMaxOpenConns(defaultMaxOpenConns)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// DSN builds the driver-specific data source name.
func DSN(cfg config.Config) (string, error) {
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		q := url.Values{}
		q.Set("_foreign_keys", "on")
		q.Set("_busy_timeout", fmt.Sprint(sqliteBusyTimeoutMS))
		q.Set("_journal_mode", "WAL")
		return "file:" + cfg.Database.SQLitePath + "?" + q.Encode(), nil
	case config.DriverPostgres:
		return buildPostgresURL(cfg), nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

func buildPostgresURL(cfg config.Config) string {
	sslmode := "disable"
	if cfg.Database.UseSSL {
		sslmode = "require"
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", cfg.Database.Host, cfg.Database.Port),
		User:   url.UserPassword(cfg.Database.User, cfg.Database.Password),
		Path:   cfg.Database.DBName,
	}
	q := u.Query()
	q.Set("sslmode", sslmode)
	u.RawQuery = q.Encode()
	return u.String()
}
