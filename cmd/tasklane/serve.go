// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/tasklane/tasklane/internal/auth"
	"github.com/tasklane/tasklane/internal/config"
	"github.com/tasklane/tasklane/internal/httpapi"
	"github.com/tasklane/tasklane/internal/observability"
	"github.com/tasklane/tasklane/internal/workerpool"
	"github.com/tasklane/tasklane/pkg/errutil"
)

const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the auth API server",
		Long: `Start the HTTP API serving signup, signin, token refresh, password
reset and email verification, plus the metrics and health endpoints.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}
}

// runServeWithDeps starts the service with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	deps.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := cfg.Validate(); err != nil {
		return oops.With("operation", "validate configuration").Wrap(err)
	}
	logger, err := setupLogging(cfg)
	if err != nil {
		return err
	}

	logger.Info("starting tasklane",
		"http_addr", cfg.HTTP.Addr,
		"database_driver", cfg.Database.Driver,
		"notify_driver", cfg.Notify.Driver,
	)

	if cfg.Database.AutoMigrate && cfg.Database.Driver == config.DriverPostgres {
		if err := runAutoMigrate(cfg.Secrets.DatabaseURL, deps.MigratorFactory, logger); err != nil {
			return err
		}
	}

	backend, err := deps.BackendFactory(ctx, cfg, logger)
	if err != nil {
		return oops.With("operation", "open credential store").Wrap(err)
	}
	defer backend.release()

	notifier, closeNotifier, err := deps.NotifierFactory(cfg, logger)
	if err != nil {
		return oops.With("operation", "build notifier").Wrap(err)
	}
	defer func() {
		if err := closeNotifier(); err != nil {
			errutil.LogErrorAt(ctx, logger, slog.LevelWarn, "error closing notifier", err)
		}
	}()

	codec, err := auth.NewTokenCodec(cfg.TokenCodecConfig())
	if err != nil {
		return oops.With("operation", "create token codec").Wrap(err)
	}

	hashPool := workerpool.New("hash", cfg.Hashing.PoolWorkers, cfg.Hashing.PoolQueue)
	defer hashPool.Close()

	// Closed after the API server stops so in-flight notifications drain.
	dispatchPool := workerpool.New("dispatch", cfg.Notify.DispatchWorkers, cfg.Notify.DispatchQueue)
	defer dispatchPool.Close()

	dispatcher, err := auth.NewAsyncDispatcher(dispatchPool, cfg.Notify.DispatchTimeout, logger)
	if err != nil {
		return err
	}

	coordinator, err := auth.NewCoordinator(auth.Deps{
		Users:              backend.Credentials,
		RefreshTokens:      backend.RefreshTokens,
		ResetTokens:        backend.ResetTokens,
		VerificationTokens: backend.VerificationTokens,
		Ledger:             backend.Ledger,
		Notifier:           notifier,
		Dispatcher:         dispatcher,
		Transactor:         backend.Transactor,
		Hasher:             auth.NewArgon2idHasher(cfg.Argon2Params(), cfg.PasswordPolicy()),
		Codec:              codec,
		HashPool:           hashPool,
		Logger:             logger,
	}, auth.Options{
		RateLimits:           cfg.RateLimits(),
		ResetTokenTTL:        cfg.Tokens.ResetTokenTTL,
		VerificationTokenTTL: cfg.Tokens.VerificationTokenTTL,
	})
	if err != nil {
		return oops.With("operation", "create coordinator").Wrap(err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	apiServer, err := deps.APIServerFactory(httpapi.Config{
		Addr:           cfg.HTTP.Addr,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		RequestTimeout: cfg.HTTP.RequestTimeout,
	}, coordinator, logger, observability.NewHTTPMetrics(prometheus.DefaultRegisterer))
	if err != nil {
		return oops.With("operation", "create API server").Wrap(err)
	}
	apiErrCh, err := apiServer.Start()
	if err != nil {
		return oops.With("operation", "start API server").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrCh, "api", logger)
	logger.Info("API server listening", "addr", apiServer.Addr())

	var obsServer ObservabilityServer
	if cfg.Metrics.Addr != "" {
		var opts []observability.Option
		if backend.Ready != nil {
			opts = append(opts, observability.WithReadinessCheck("database", backend.Ready))
		}
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, opts...)
		obsErrCh, err := obsServer.Start()
		if err != nil {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stopCancel()
			if stopErr := apiServer.Stop(stopCtx); stopErr != nil {
				errutil.LogErrorAt(ctx, logger, slog.LevelWarn, "failed to stop API server during cleanup", stopErr)
			}
			return oops.With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability", logger)
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	janitorDone := make(chan struct{})
	go func() {
		defer close(janitorDone)
		runJanitor(ctx, coordinator, cfg.Maintenance.PruneInterval, cfg.Maintenance.Retention, logger)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Tasklane started")

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		errutil.LogErrorAt(shutdownCtx, logger, slog.LevelWarn, "error stopping API server", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			errutil.LogErrorAt(shutdownCtx, logger, slog.LevelWarn, "error stopping observability server", err)
		}
	}
	<-janitorDone

	logger.Info("shutdown complete")
	return nil
}

// runAutoMigrate applies pending migrations before the stores open.
func runAutoMigrate(databaseURL string, factory func(string) (AutoMigrator, error), logger *slog.Logger) error {
	migrator, err := factory(databaseURL)
	if err != nil {
		return oops.With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			errutil.LogError(logger, "error closing migrator", closeErr)
		}
	}()

	logger.Info("applying database migrations")
	if err := migrator.Up(); err != nil {
		return oops.With("operation", "auto-migrate").Wrap(err)
	}
	return nil
}

// pruner is the coordinator surface used by the janitor.
type pruner interface {
	Prune(ctx context.Context, retention time.Duration) (auth.PruneResult, error)
}

// runJanitor prunes stale tokens every interval until ctx ends. A
// non-positive interval disables it.
func runJanitor(ctx context.Context, p pruner, interval, retention time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Prune(ctx, retention); err != nil && ctx.Err() == nil {
				errutil.LogErrorAt(ctx, logger, slog.LevelError, "token janitor failed", err)
			}
		}
	}
}

// monitorServerErrors cancels ctx when the server reports an error. It exits
// when the channel closes or ctx ends.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			errutil.LogErrorAt(ctx, logger, slog.LevelError, "server error, triggering shutdown", err, "server", serverName)
			cancel()
		}
	case <-ctx.Done():
	}
}
