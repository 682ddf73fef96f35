// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/tasklane/tasklane/internal/config"
)

// AdminDeps contains injectable dependencies for the prune and user commands.
type AdminDeps struct {
	// ConfigLoader loads the configuration.
	// Default: loadConfig
	ConfigLoader func(cmd *cobra.Command) (*config.Config, error)

	// BackendFactory opens the credential stores.
	// Default: openBackend
	BackendFactory func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error)
}

func (d *AdminDeps) withDefaults() {
	if d.ConfigLoader == nil {
		d.ConfigLoader = loadConfig
	}
	if d.BackendFactory == nil {
		d.BackendFactory = openBackend
	}
}

// withAdminBackend loads and validates the configuration, opens the
// persistent backend and runs fn. The memory driver is rejected because an
// offline command would only see an empty store.
func withAdminBackend(cmd *cobra.Command, deps *AdminDeps, fn func(ctx context.Context, cfg *config.Config, b *Backend, logger *slog.Logger) error) error {
	cfg, err := deps.ConfigLoader(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return oops.With("operation", "validate configuration").Wrap(err)
	}
	if cfg.Database.Driver != config.DriverPostgres {
		return oops.Code("CONFIG_INVALID").With("field", "database.driver").
			Errorf("%s requires the postgres driver, got %q", cmd.CommandPath(), cfg.Database.Driver)
	}
	logger, err := setupLogging(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	b, err := deps.BackendFactory(ctx, cfg, logger)
	if err != nil {
		return oops.With("operation", "open credential store").Wrap(err)
	}
	defer b.release()
	return fn(ctx, cfg, b, logger)
}
