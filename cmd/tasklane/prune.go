// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/tasklane/tasklane/internal/auth"
	"github.com/tasklane/tasklane/internal/config"
	"github.com/tasklane/tasklane/internal/notify"
)

// NewPruneCmd creates the prune subcommand.
func NewPruneCmd() *cobra.Command {
	return newPruneCmdWithDeps(nil)
}

func newPruneCmdWithDeps(deps *AdminDeps) *cobra.Command {
	if deps == nil {
		deps = &AdminDeps{}
	}
	deps.withDefaults()

	var retention time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete expired and revoked tokens",
		Long: `Delete refresh, password reset and verification tokens that stopped
being usable more than the retention period ago. The serve command runs the
same cleanup on maintenance.prune_interval.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withAdminBackend(cmd, deps, func(ctx context.Context, cfg *config.Config, b *Backend, logger *slog.Logger) error {
				keep := cfg.Maintenance.Retention
				if cmd.Flags().Changed("retention") {
					keep = retention
				}
				c, err := newMaintenanceCoordinator(cfg, b, logger)
				if err != nil {
					return err
				}
				res, err := c.Prune(ctx, keep)
				if err != nil {
					return err
				}
				cmd.Printf("Pruned %d refresh, %d reset and %d verification tokens\n",
					res.RefreshTokens, res.ResetTokens, res.VerificationTokens)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&retention, "retention", config.Default().Maintenance.Retention, "keep tokens that became unusable within this period")
	return cmd
}

// newMaintenanceCoordinator builds a coordinator for offline maintenance.
// Notifications are only logged and run inline.
func newMaintenanceCoordinator(cfg *config.Config, b *Backend, logger *slog.Logger) (*auth.Coordinator, error) {
	codec, err := auth.NewTokenCodec(cfg.TokenCodecConfig())
	if err != nil {
		return nil, oops.With("operation", "create token codec").Wrap(err)
	}
	notifier, err := notify.NewLogNotifier(logger, false)
	if err != nil {
		return nil, err
	}
	return auth.NewCoordinator(auth.Deps{
		Users:              b.Credentials,
		RefreshTokens:      b.RefreshTokens,
		ResetTokens:        b.ResetTokens,
		VerificationTokens: b.VerificationTokens,
		Ledger:             b.Ledger,
		Notifier:           notifier,
		Dispatcher:         auth.NewInlineDispatcher(logger),
		Transactor:         b.Transactor,
		Hasher:             auth.NewArgon2idHasher(cfg.Argon2Params(), cfg.PasswordPolicy()),
		Codec:              codec,
		Logger:             logger,
	}, auth.Options{RateLimits: cfg.RateLimits()})
}
