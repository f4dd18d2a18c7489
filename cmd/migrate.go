/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/calmspace/apiserver/config"
	"github.com/calmspace/apiserver/internal/db"
	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"
)

var migrateDownSteps int

// migrateCmd represents the migrate command.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all up migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(cmd, func(m *migrate.Migrate) error {
			if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("migrate up failed: %w", err)
			}
			return nil
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(cmd, func(m *migrate.Migrate) error {
			var err error
			if migrateDownSteps > 0 {
				err = m.Steps(-migrateDownSteps)
			} else {
				err = m.Down()
			}
			if err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("migrate down failed: %w", err)
			}
			return nil
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(cmd, func(m *migrate.Migrate) error {
			version, dirty, err := m.Version()
			if errors.Is(err, migrate.ErrNilVersion) {
				cmd.Println("no migrations applied")
				return nil
			}
			if err != nil {
				return err
			}
			cmd.Printf("version %d (dirty: %t)\n", version, dirty)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)

	migrateDownCmd.Flags().IntVar(&migrateDownSteps, "steps", 0, "number of migrations to roll back (0 rolls back all)")
}

func withMigrator(cmd *cobra.Command, fn func(*migrate.Migrate) error) error {
	cfg := config.LoadConfig()
	closeLogs := initLogging(cfg)
	defer closeLogs()

	conn, err := db.Open(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	migrator, err := db.NewMigrator(conn, cfg.Database.Driver)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("init migrator failed: %w", err)
	}
	defer func() {
		_, _ = migrator.Close()
	}()
	return fn(migrator)
}
