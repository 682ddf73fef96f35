// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// DefaultEnvFile is loaded when present. A missing file is not an error.
const DefaultEnvFile = ".env"

// LoadOptions select the configuration sources.
type LoadOptions struct {
	// File is the YAML configuration file. Empty skips it.
	File string

	// Flags are the command-line flags registered by BindFlags. Only flags
	// set explicitly override the file.
	Flags *pflag.FlagSet

	// EnvFile is a dotenv file loaded into the process environment without
	// overriding variables already set. Empty skips it.
	EnvFile string

	// Environ replaces the process environment when reading secrets.
	Environ map[string]string
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"log-format":      "log.format",
	"log-level":       "log.level",
	"http-addr":       "http.addr",
	"metrics-addr":    "metrics.addr",
	"database-driver": "database.driver",
	"auto-migrate":    "database.auto_migrate",
	"notify-driver":   "notify.driver",
	"prune-interval":  "maintenance.prune_interval",
}

// BindFlags registers the overridable settings on flags. Defaults shown in help
// are the built-in defaults.
func BindFlags(flags *pflag.FlagSet) {
	d := Default()
	flags.String("log-format", d.Log.Format, "log format (json, text)")
	flags.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	flags.String("http-addr", d.HTTP.Addr, "API listen address")
	flags.String("metrics-addr", d.Metrics.Addr, "metrics and health listen address (empty disables)")
	flags.String("database-driver", d.Database.Driver, "credential store driver (postgres, memory)")
	flags.Bool("auto-migrate", d.Database.AutoMigrate, "apply pending migrations at startup")
	flags.String("notify-driver", d.Notify.Driver, "notification driver (log, amqp)")
	flags.Duration("prune-interval", d.Maintenance.PruneInterval, "token janitor interval (0 disables)")
}

// Load builds the configuration from defaults, the YAML file, changed flags
// and the environment.
func Load(opts LoadOptions) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, oops.Code("CONFIG_ENV_FILE_FAILED").With("path", opts.EnvFile).Wrap(err)
		}
	}

	k := koanf.New(".")

	if opts.File != "" {
		data, err := os.ReadFile(opts.File)
		if err != nil {
			return nil, oops.Code("CONFIG_READ_FAILED").With("path", opts.File).Wrap(err)
		}
		if err := ValidateYAML(data); err != nil {
			return nil, oops.With("path", opts.File).Wrap(err)
		}
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", opts.File).Wrap(err)
		}
	}

	if opts.Flags != nil {
		flags := opts.Flags
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}

	if err := env.ParseWithOptions(&cfg.Secrets, env.Options{Environment: opts.Environ}); err != nil {
		return nil, oops.Code("CONFIG_ENV_FAILED").Wrap(err)
	}
	return &cfg, nil
}
