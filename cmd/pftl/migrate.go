// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/pftl/pftl/internal/store"
)

// migrateOptions is shared by the migrate subcommands.
type migrateOptions struct {
	databaseURL string
	newMigrator MigratorFactory
}

// NewMigrateCmd creates the migrate command group.
func NewMigrateCmd() *cobra.Command {
	return newMigrateCmd(defaultMigratorFactory)
}

func newMigrateCmd(factory MigratorFactory) *cobra.Command {
	opts := &migrateOptions{newMigrator: factory}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL result store schema",
		Long: `Apply, roll back or inspect the PostgreSQL result store schema. The SQLite
store migrates itself when opened and needs none of this.

The database URL comes from --database-url, PFTL_STORE_DSN or DATABASE_URL.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrateUp(cmd, opts)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL URL")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrateUp(cmd, opts)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back every migration and drop the result tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, opts, func(m Migrator) error {
				cmd.Println("Rolling back all migrations...")
				if err := m.Down(); err != nil {
					return err
				}
				cmd.Println("All migrations rolled back")
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "steps N",
		Short: "Apply N migrations, or roll back when N is negative",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(strings.TrimSpace(args[0]))
			if err != nil {
				return oops.Code("INVALID_STEPS").With("input", args[0]).Wrapf(err, "steps must be an integer")
			}
			return withMigrator(cmd, opts, func(m Migrator) error {
				if err := m.Steps(n); err != nil {
					return err
				}
				cmd.Printf("Applied %d migration step(s)\n", n)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the applied version and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, opts, func(m Migrator) error {
				return printMigrationStatus(cmd, m)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied without running it (clears a dirty state)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, opts, func(m Migrator) error {
				if err := m.Force(v); err != nil {
					return err
				}
				cmd.Printf("Forced schema version to %d\n", v)
				return nil
			})
		},
	})

	return cmd
}

func runMigrateUp(cmd *cobra.Command, opts *migrateOptions) error {
	return withMigrator(cmd, opts, func(m Migrator) error {
		cmd.Println("Running migrations...")
		if err := m.Up(); err != nil {
			return err
		}
		cmd.Println("Migrations completed successfully")
		return nil
	})
}

// withMigrator opens a migrator, runs fn and closes it.
func withMigrator(cmd *cobra.Command, opts *migrateOptions, fn func(Migrator) error) error {
	if err := loadDotEnv(); err != nil {
		return err
	}
	url := databaseURL(opts.databaseURL)
	if url == "" {
		return oops.Code("CONFIG_INVALID").Errorf("a database URL is required: set --database-url, PFTL_STORE_DSN or DATABASE_URL")
	}

	cmd.Println("Connecting to database...")
	m, err := opts.newMigrator(url)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "open migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			slog.Warn("error closing migrator", "error", closeErr)
		}
	}()

	if err := fn(m); err != nil {
		return oops.Code("MIGRATION_FAILED").Wrap(err)
	}
	return nil
}

func printMigrationStatus(cmd *cobra.Command, m Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	applied, err := m.AppliedMigrations()
	if err != nil {
		return err
	}
	pending, err := m.PendingMigrations()
	if err != nil {
		return err
	}

	state := "clean"
	if dirty {
		state = "dirty (run 'pftl migrate force VERSION' after fixing the schema)"
	}
	cmd.Printf("Schema version: %d, %s\n", version, state)
	for _, label := range []struct {
		name     string
		versions []uint
	}{{"Applied", applied}, {"Pending", pending}} {
		cmd.Printf("%s (%d):\n", label.name, len(label.versions))
		for _, v := range label.versions {
			name, err := store.MigrationName(v)
			if err != nil {
				return err
			}
			cmd.Printf("  %s\n", name)
		}
	}
	return nil
}

// parseForceVersion reads a leading integer, as migrate's own CLI does.
func parseForceVersion(input string) (int, error) {
	var v int
	if _, err := fmt.Sscanf(strings.TrimSpace(input), "%d", &v); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", input).Wrapf(err, "version must be an integer")
	}
	return v, nil
}
