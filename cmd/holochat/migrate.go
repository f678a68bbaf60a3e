// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/holochat/internal/config"
	"github.com/holomush/holochat/internal/store"
)

// NewMigrateCmd creates the migrate subcommand and its children.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long: `Manage the PostgreSQL schema. The SQLite backend migrates itself
when it opens, so these commands require --backend postgres.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m *store.Migrator) error {
				if err := m.Up(); err != nil {
					return err
				}
				return printVersion(cmd, m)
			})
		},
	})

	var yes bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back every migration, dropping all account data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return oops.Code("CONFIRMATION_REQUIRED").Errorf("migrate down drops all account data; rerun with --yes")
			}
			return withMigrator(cmd, func(m *store.Migrator) error {
				if err := m.Down(); err != nil {
					return err
				}
				return printVersion(cmd, m)
			})
		},
	}
	down.Flags().BoolVar(&yes, "yes", false, "confirm dropping all data")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the applied version and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m *store.Migrator) error {
				if err := printVersion(cmd, m); err != nil {
					return err
				}
				pending, err := m.Pending()
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					cmd.Println("No pending migrations")
					return nil
				}
				for _, v := range pending {
					name, err := store.MigrationName(v)
					if err != nil {
						return err
					}
					cmd.Printf("pending: %06d %s\n", v, name)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied and clear the dirty flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, func(m *store.Migrator) error {
				if err := m.Force(v); err != nil {
					return err
				}
				return printVersion(cmd, m)
			})
		},
	})

	return cmd
}

// parseForceVersion parses the force argument. Surrounding whitespace is
// ignored; anything else that is not a non-negative integer is rejected.
func parseForceVersion(arg string) (int, error) {
	trimmed := strings.TrimSpace(arg)
	v, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", arg).Wrap(err)
	}
	if v < 0 {
		return 0, oops.Code("INVALID_VERSION").With("input", arg).Errorf("version must be non-negative")
	}
	return v, nil
}

func withMigrator(cmd *cobra.Command, fn func(m *store.Migrator) error) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Backend != config.BackendPostgres {
		return oops.Code("CONFIG_INVALID").
			With("field", "backend").
			Errorf("migrate requires the postgres backend; sqlite migrates automatically")
	}

	m, err := store.NewMigrator(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()
	return fn(m)
}

func printVersion(cmd *cobra.Command, m *store.Migrator) error {
	v, dirty, err := m.Version()
	if err != nil {
		return err
	}
	if dirty {
		cmd.Printf("Schema version: %d (dirty)\n", v)
		return nil
	}
	cmd.Printf("Schema version: %d\n", v)
	return nil
}
