// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/tasklane/tasklane/internal/auth"
	"github.com/tasklane/tasklane/internal/config"
)

// NewUserCmd creates the user subcommand.
func NewUserCmd() *cobra.Command {
	return newUserCmdWithDeps(nil)
}

func newUserCmdWithDeps(deps *AdminDeps) *cobra.Command {
	if deps == nil {
		deps = &AdminDeps{}
	}
	deps.withDefaults()

	cmd := &cobra.Command{
		Use:   "user",
		Short: "Administer user accounts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "activate EMAIL|USERNAME",
		Short: "Re-enable a deactivated account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdminBackend(cmd, deps, func(ctx context.Context, _ *config.Config, b *Backend, logger *slog.Logger) error {
				u, err := setActive(ctx, b, args[0], true)
				if err != nil {
					return err
				}
				logger.Info("account activated", "user_id", u.ID.String())
				cmd.Printf("Activated %s\n", u.Username)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "deactivate EMAIL|USERNAME",
		Short: "Disable an account and revoke its sessions",
		Long: `Disable an account. Signin and token refresh fail for a deactivated
account and every refresh token it holds is revoked.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdminBackend(cmd, deps, func(ctx context.Context, _ *config.Config, b *Backend, logger *slog.Logger) error {
				u, err := setActive(ctx, b, args[0], false)
				if err != nil {
					return err
				}
				revoked, err := b.RefreshTokens.RevokeAllForUser(ctx, u.ID)
				if err != nil {
					return oops.With("operation", "revoke sessions").With("user_id", u.ID.String()).Wrap(err)
				}
				logger.Info("account deactivated", "user_id", u.ID.String(), "revoked", revoked)
				cmd.Printf("Deactivated %s, revoked %d session(s)\n", u.Username, revoked)
				return nil
			})
		},
	})

	return cmd
}

// setActive looks the account up by email when identifier contains "@" and
// by username otherwise.
func setActive(ctx context.Context, b *Backend, identifier string, active bool) (*auth.User, error) {
	identifier = strings.TrimSpace(identifier)
	var (
		u   *auth.User
		err error
	)
	if strings.Contains(identifier, "@") {
		u, err = b.Users.GetByEmail(ctx, identifier)
	} else {
		u, err = b.Users.GetByUsername(ctx, identifier)
	}
	if errors.Is(err, auth.ErrNotFound) {
		return nil, oops.Code("USER_NOT_FOUND").With("identifier", identifier).Errorf("no account matches %q", identifier)
	}
	if err != nil {
		return nil, oops.With("operation", "look up account").Wrap(err)
	}

	if err := b.Users.SetActive(ctx, u.ID, active); err != nil {
		return nil, oops.With("operation", "set active").With("user_id", u.ID.String()).Wrap(err)
	}
	return u, nil
}
