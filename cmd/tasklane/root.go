// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package main

import (
	"log/slog"
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/tasklane/tasklane/internal/config"
	"github.com/tasklane/tasklane/internal/logging"
	"github.com/tasklane/tasklane/internal/xdg"
)

const serviceName = "tasklane"

// Global flags available to all subcommands.
var (
	configFile string
	envFile    string
)

// NewRootCmd creates the root command for the Tasklane CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasklane",
		Short: "Tasklane - credential and session service",
		Long: `Tasklane runs the account, credential and session lifecycle service:
signup, signin, token refresh, password reset and email verification.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/tasklane/config.yaml when present)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", config.DefaultEnvFile, "dotenv file with secrets (ignored when missing)")
	config.BindFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewPruneCmd())
	cmd.AddCommand(NewUserCmd())

	return cmd
}

// loadConfig reads the configuration for cmd from the global flags. Without
// --config the XDG config file is used when present.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	file := configFile
	if file == "" {
		var err error
		if file, err = xdg.DefaultConfigFile(); err != nil {
			return nil, oops.With("operation", "locate config file").Wrap(err)
		}
	}
	cfg, err := config.Load(config.LoadOptions{
		File:    file,
		Flags:   cmd.Flags(),
		EnvFile: envFile,
	})
	if err != nil {
		return nil, oops.With("operation", "load configuration").Wrap(err)
	}
	return cfg, nil
}

// setupLogging installs the default logger for cfg and returns it.
func setupLogging(cfg *config.Config) (*slog.Logger, error) {
	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		return nil, err
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return nil, oops.Code("CONFIG_INVALID").With("field", "log.format").
			Errorf("log-format must be 'json' or 'text', got %q", cfg.Log.Format)
	}
	logger := logging.Setup(serviceName, version, cfg.Log.Format, cfg.Log.Level, os.Stderr)
	slog.SetDefault(logger)
	return logger, nil
}
