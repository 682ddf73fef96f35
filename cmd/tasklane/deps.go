// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/oklog/ulid/v2"

	"github.com/tasklane/tasklane/internal/auth"
	"github.com/tasklane/tasklane/internal/config"
	"github.com/tasklane/tasklane/internal/httpapi"
	"github.com/tasklane/tasklane/internal/observability"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// BackendFactory opens the credential stores selected by the config.
	// Default: openBackend
	BackendFactory func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error)

	// NotifierFactory builds the notification chain.
	// Default: buildNotifier
	NotifierFactory func(cfg *config.Config, logger *slog.Logger) (auth.NotificationPort, func() error, error)

	// MigratorFactory creates a migrator for the auto-migrate step.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (AutoMigrator, error)

	// APIServerFactory creates the public HTTP API server.
	// Default: httpapi.NewServer
	APIServerFactory func(cfg httpapi.Config, svc httpapi.Service, logger *slog.Logger, metrics *observability.HTTPMetrics) (APIServer, error)

	// ObservabilityServerFactory creates the metrics and health server.
	// Default: observability.NewServer on the default gatherer
	ObservabilityServerFactory func(addr string, opts ...observability.Option) ObservabilityServer
}

// Server is the lifecycle shared by the API and observability servers.
type Server interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// APIServer wraps the methods used from httpapi.Server.
type APIServer interface {
	Server
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Server
}

// AutoMigrator wraps the migrator methods used at startup.
type AutoMigrator interface {
	Up() error
	Close() error
}

// UserAdmin is the account store surface used by the user command.
type UserAdmin interface {
	GetByEmail(ctx context.Context, email string) (*auth.User, error)
	GetByUsername(ctx context.Context, username string) (*auth.User, error)
	SetActive(ctx context.Context, id ulid.ULID, active bool) error
}

// Backend bundles the stores behind the coordinator.
type Backend struct {
	Users              UserAdmin
	Credentials        auth.CredentialStore
	RefreshTokens      auth.RefreshTokenStore
	ResetTokens        auth.OneTimeTokenStore
	VerificationTokens auth.OneTimeTokenStore
	Ledger             auth.AttemptLedger
	Transactor         auth.Transactor

	// Ready probes the backing database. Nil for in-memory stores.
	Ready observability.ReadinessCheck

	// Close releases the backend. Nil when there is nothing to release.
	Close func()
}

// release closes the backend when it holds resources.
func (b *Backend) release() {
	if b != nil && b.Close != nil {
		b.Close()
	}
}

func (d *ServeDeps) withDefaults() {
	if d.BackendFactory == nil {
		d.BackendFactory = openBackend
	}
	if d.NotifierFactory == nil {
		d.NotifierFactory = buildNotifier
	}
	if d.MigratorFactory == nil {
		d.MigratorFactory = newAutoMigrator
	}
	if d.APIServerFactory == nil {
		d.APIServerFactory = func(cfg httpapi.Config, svc httpapi.Service, logger *slog.Logger, metrics *observability.HTTPMetrics) (APIServer, error) {
			return httpapi.NewServer(cfg, svc, logger, metrics)
		}
	}
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = func(addr string, opts ...observability.Option) ObservabilityServer {
			return observability.NewServer(addr, nil, opts...)
		}
	}
}
