// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/samber/oops"

	"github.com/tasklane/tasklane/internal/auth/memstore"
	"github.com/tasklane/tasklane/internal/auth/postgres"
	"github.com/tasklane/tasklane/internal/config"
	"github.com/tasklane/tasklane/internal/observability"
	"github.com/tasklane/tasklane/internal/store"
)

// openBackend opens the stores for cfg.Database.Driver.
func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	switch cfg.Database.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory credential store, all data is lost on exit")
		return memoryBackend(memstore.New()), nil
	case config.DriverPostgres:
		return openPostgresBackend(ctx, cfg)
	default:
		return nil, oops.Code("CONFIG_INVALID").With("field", "database.driver").
			Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

func memoryBackend(s *memstore.Store) *Backend {
	return &Backend{
		Users:              s.Users,
		Credentials:        s.Users,
		RefreshTokens:      s.RefreshTokens,
		ResetTokens:        s.ResetTokens,
		VerificationTokens: s.VerificationTokens,
		Ledger:             s.Ledger,
		Transactor:         s.Transactor,
	}
}

func openPostgresBackend(ctx context.Context, cfg *config.Config) (*Backend, error) {
	pool, err := store.OpenPool(ctx, store.PoolConfig{
		URL:             cfg.Secrets.DatabaseURL,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		ConnectTimeout:  cfg.Database.ConnectTimeout,
	})
	if err != nil {
		return nil, oops.With("operation", "connect to database").Wrap(err)
	}

	users := postgres.NewUserRepository(pool)
	return &Backend{
		Users:              users,
		Credentials:        users,
		RefreshTokens:      postgres.NewRefreshTokenRepository(pool),
		ResetTokens:        postgres.NewResetTokenRepository(pool),
		VerificationTokens: postgres.NewVerificationTokenRepository(pool),
		Ledger:             postgres.NewLedgerRepository(pool),
		Transactor:         postgres.NewTransactor(pool),
		Ready:              store.ReadinessCheck(pool, observability.DefaultReadinessTimeout),
		Close:              pool.Close,
	}, nil
}

func newAutoMigrator(databaseURL string) (AutoMigrator, error) {
	return store.NewMigrator(databaseURL)
}
