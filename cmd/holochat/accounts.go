// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/holochat/internal/auth"
)

// NewRegisterCmd creates the register subcommand.
func NewRegisterCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "register USERNAME EMAIL",
		Short: "Register an account and send its verification code",
		Long: `Register an account. The password is read from --password or, when that
is empty, from the first line of standard input. The verification code is
emailed, or logged when no email provider is configured.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := readSecret(cmd, password)
			if err != nil {
				return err
			}
			return withAccounts(cmd, func(ctx context.Context, accounts *auth.AccountService) error {
				return report(cmd, accounts.RegisterUser(ctx, args[0], args[1], secret))
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "account password (default: read from stdin)")
	return cmd
}

// NewTokenCmd creates the token subcommand.
func NewTokenCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "token EMAIL",
		Short: "Request a session token",
		Long: `Request a session token. Until the email address is verified the secret
is the verification code; afterwards it is the password. The secret is read
from --password or from the first line of standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := readSecret(cmd, password)
			if err != nil {
				return err
			}
			return withAccounts(cmd, func(ctx context.Context, accounts *auth.AccountService) error {
				tr := accounts.RequestToken(ctx, args[0], secret)
				if !tr.Result.Success {
					return report(cmd, tr.Result)
				}
				fmt.Fprintln(cmd.OutOrStdout(), tr.TokenID)
				cmd.PrintErrf("expires %s\n", tr.Session.ExpiresAt.Format(time.RFC3339))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "password or verification code (default: read from stdin)")
	return cmd
}

// NewCheckPasswordCmd creates the check-password subcommand.
func NewCheckPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-password",
		Short: "Check a password against the complexity policy",
		Long:  `Read a password from the first line of standard input and report whether it meets the configured complexity policy. No database is opened.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			secret, err := readSecret(cmd, "")
			if err != nil {
				return err
			}
			return report(cmd, auth.CheckPasswordComplexity(cfg.PasswordPolicy(), secret))
		},
	}
}

// NewPurgeCmd creates the purge subcommand.
func NewPurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete expired session tokens and verification codes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withAccounts(cmd, func(ctx context.Context, accounts *auth.AccountService) error {
				tokens, codes, err := accounts.Purge(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Purged %d session tokens and %d verification codes\n", tokens, codes)
				return nil
			})
		},
	}
}

func withAccounts(cmd *cobra.Command, fn func(ctx context.Context, accounts *auth.AccountService) error) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a.accounts)
}

// report prints the result message and turns a failure into an error so the
// process exits non-zero.
func report(cmd *cobra.Command, r auth.Result) error {
	if r.Success {
		fmt.Fprintln(cmd.OutOrStdout(), r.Message)
		return nil
	}
	code := r.ErrorCode
	if code == "" {
		code = "REQUEST_FAILED"
	}
	return oops.Code(code).With("failure", r.Failure.String()).Errorf("%s", r.Message)
}

// readSecret returns flagValue, or the first line of stdin when it is empty.
func readSecret(cmd *cobra.Command, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	scanner := bufio.NewScanner(cmd.InOrStdin())
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", oops.Code("INPUT_READ_FAILED").Wrap(err)
		}
		return "", oops.Code("INPUT_REQUIRED").Errorf("no secret on standard input")
	}
	return strings.TrimRight(scanner.Text(), "\r"), nil
}
