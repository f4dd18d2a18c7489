package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/calmspace/apiserver/config"
	"github.com/calmspace/apiserver/internal/db"
	"github.com/calmspace/apiserver/types"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	cfg := config.Config{
		Database: config.DatabaseConfig{
			Driver:     config.DriverSQLite,
			SQLitePath: filepath.Join(t.TempDir(), "store.db"),
		},
	}
	if err := db.Migrate(ctx, cfg); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	conn, err := db.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func createUser(t *testing.T, conn *sql.DB, username string) types.User {
	t.Helper()
	user, err := NewUserRepository(conn).Create(context.Background(), types.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "hash",
	})
	if err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return user
}

func strPtr(s string) *string { return &s }
