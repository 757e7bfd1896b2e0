// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bufio"
	"context"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/authcore/internal/auth"
	"github.com/holomush/authcore/internal/config"
	"github.com/holomush/authcore/internal/logging"
)

// newAccountCmd creates the account command group used by operators to seed
// and repair accounts.
func newAccountCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage accounts",
		Long: `Create accounts and set passwords directly in the store. The password
is read from the first line of standard input.`,
	}

	var createEmail string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := readPassword(deps)
			if err != nil {
				return err
			}
			return withStorage(cmd.Context(), deps, func(cfg *config.Config, storage *Storage) error {
				credentials, err := newCredentialStore(storage.Accounts)
				if err != nil {
					return err
				}
				account, err := credentials.CreateAccount(cmd.Context(), createEmail, password)
				if err != nil {
					return err
				}
				cmd.Printf("Created account %s for %s\n", account.ID, account.Email)
				return nil
			})
		},
	}
	create.Flags().StringVar(&createEmail, "email", "", "account email address")
	_ = create.MarkFlagRequired("email") //nolint:errcheck // flag is registered above
	cmd.AddCommand(create)

	var setEmail string
	setPassword := &cobra.Command{
		Use:   "set-password",
		Short: "Replace an account's password",
		Long: `Replace the password of an existing account and revoke all of its
sessions.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := readPassword(deps)
			if err != nil {
				return err
			}
			return withStorage(cmd.Context(), deps, func(cfg *config.Config, storage *Storage) error {
				ctx := cmd.Context()
				credentials, err := newCredentialStore(storage.Accounts)
				if err != nil {
					return err
				}
				account, err := credentials.Lookup(ctx, setEmail)
				if err != nil {
					return err
				}
				if err := credentials.SetPassword(ctx, setEmail, password); err != nil {
					return err
				}
				sessions, err := auth.NewSessionIssuer(storage.Sessions, cfg.Session.TTL, nil, nil)
				if err != nil {
					return err
				}
				if err := sessions.RevokeAll(ctx, account.ID); err != nil {
					return err
				}
				cmd.Printf("Password updated for %s; sessions revoked\n", account.Email)
				return nil
			})
		},
	}
	setPassword.Flags().StringVar(&setEmail, "email", "", "account email address")
	_ = setPassword.MarkFlagRequired("email") //nolint:errcheck // flag is registered above
	cmd.AddCommand(setPassword)

	return cmd
}

// readPassword returns the first line of deps.PasswordInput.
func readPassword(deps *Deps) (string, error) {
	line, err := bufio.NewReader(deps.PasswordInput).ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		if err != nil {
			return "", oops.Code("PASSWORD_READ_FAILED").Wrapf(err, "no password on standard input")
		}
		return "", oops.Code("PASSWORD_READ_FAILED").Errorf("no password on standard input")
	}
	return line, nil
}

// withStorage loads the config, opens the configured store and runs fn.
func withStorage(ctx context.Context, deps *Deps, fn func(cfg *config.Config, storage *Storage) error) error {
	cfg, err := config.Load(deps.configFile, nil)
	if err != nil {
		return err
	}
	if cfg.Store.Backend == config.StorePostgres && cfg.Secrets.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("DATABASE_URL environment variable is required")
	}

	logger := logging.Setup("authcore", version, cfg.Log.Format, cfg.Log.Level, deps.LogOutput)
	storage, err := deps.StorageOpener(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer storage.Close()
	return fn(cfg, storage)
}
