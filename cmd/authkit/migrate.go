// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/authkit/internal/config"
	"github.com/holomush/authkit/internal/store"
)

// migrationRunner is the Migrator surface the migrate commands use.
type migrationRunner interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(version int) error
	Pending() ([]uint, error)
	Close() error
}

// migratorFactory opens a migrationRunner; tests replace it.
var migratorFactory = func(databaseURL string) (migrationRunner, error) {
	return store.NewMigrator(databaseURL)
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Manage the users and credentials schema. Without a subcommand,
applies all pending migrations.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, runMigrateUp)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, runMigrateUp)
		},
	})

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Long:  `Roll back one migration, or every migration with --all.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			all, _ := cmd.Flags().GetBool("all") //nolint:errcheck // flag is registered below
			return withMigrator(cmd, func(cmd *cobra.Command, m migrationRunner) error {
				return runMigrateDown(cmd, m, all)
			})
		},
	}
	down.Flags().Bool("all", false, "roll back every migration (drops all users and credentials)")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the applied migration version and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, runMigrateVersion)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied and clear the dirty flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return oops.Code("INVALID_VERSION").With("version", args[0]).Wrap(err)
			}
			return withMigrator(cmd, func(cmd *cobra.Command, m migrationRunner) error {
				if err := m.Force(version); err != nil {
					return err //nolint:wrapcheck // migrator errors are coded
				}
				cmd.Printf("Forced version %d\n", version)
				return nil
			})
		},
	})

	return cmd
}

// withMigrator reads the database URL and runs fn with an open migrator.
// Only the database settings are required, so the config is not validated.
func withMigrator(cmd *cobra.Command, fn func(*cobra.Command, migrationRunner) error) error {
	cfg, err := config.Read(configFile, cmd.Flags())
	if err != nil {
		return err //nolint:wrapcheck // config errors are coded
	}
	if cfg.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").
			With("key", "database.url").
			Errorf("database url is required (or set %s)", config.DatabaseURLEnv)
	}

	m, err := migratorFactory(cfg.Database.URL)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "open migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			cmd.PrintErrf("Warning: failed to close migrator: %v\n", closeErr)
		}
	}()
	return fn(cmd, m)
}

func runMigrateUp(cmd *cobra.Command, m migrationRunner) error {
	pending, err := m.Pending()
	if err != nil {
		return err //nolint:wrapcheck // migrator errors are coded
	}
	if len(pending) == 0 {
		cmd.Println("No pending migrations")
		return nil
	}

	cmd.Printf("Applying %d migration(s)...\n", len(pending))
	if err := m.Up(); err != nil {
		return err //nolint:wrapcheck // migrator errors are coded
	}
	version, _, err := m.Version()
	if err != nil {
		return err //nolint:wrapcheck // migrator errors are coded
	}
	cmd.Printf("Migrated to version %d\n", version)
	return nil
}

func runMigrateDown(cmd *cobra.Command, m migrationRunner, all bool) error {
	if all {
		if err := m.Down(); err != nil {
			return err //nolint:wrapcheck // migrator errors are coded
		}
		cmd.Println("Rolled back all migrations")
		return nil
	}

	version, _, err := m.Version()
	if err != nil {
		return err //nolint:wrapcheck // migrator errors are coded
	}
	if version == 0 {
		cmd.Println("Nothing to roll back")
		return nil
	}
	if err := m.Steps(-1); err != nil {
		return err //nolint:wrapcheck // migrator errors are coded
	}
	cmd.Printf("Rolled back version %d\n", version)
	return nil
}

func runMigrateVersion(cmd *cobra.Command, m migrationRunner) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err //nolint:wrapcheck // migrator errors are coded
	}
	name, err := store.MigrationName(version)
	if err != nil {
		return err //nolint:wrapcheck // migrator errors are coded
	}

	line := "Version: " + strconv.FormatUint(uint64(version), 10)
	if name != "" {
		line += " (" + name + ")"
	}
	if dirty {
		line += " [dirty]"
	}
	cmd.Println(line)

	pending, err := m.Pending()
	if err != nil {
		return err //nolint:wrapcheck // migrator errors are coded
	}
	cmd.Printf("Pending: %d\n", len(pending))
	return nil
}
