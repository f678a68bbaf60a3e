// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/holomush/holochat/internal/config"
	"github.com/holomush/holochat/internal/logging"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the HoloChat CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "holochat",
		Short: "HoloChat - accounts and session tokens for a chat service",
		Long: `HoloChat registers chat accounts, confirms their email addresses with
one-time verification codes, and issues session tokens over an HTTP API.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/holochat/config.yaml)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewRegisterCmd())
	cmd.AddCommand(NewTokenCmd())
	cmd.AddCommand(NewCheckPasswordCmd())
	cmd.AddCommand(NewPurgeCmd())
	cmd.AddCommand(NewConfigCmd())

	return cmd
}

// loadConfig resolves and validates the configuration for cmd and builds the
// logger it describes. Logs go to the command's error stream.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cmd.Flags(), configFile, nil)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger, err := logging.Setup(logging.Options{
		Service: "holochat",
		Version: version,
		Format:  cfg.LogFormat,
		Level:   cfg.LogLevel,
		Writer:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
