// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

// Package config loads Tasklane configuration. Settings are layered as
// built-in defaults, then the YAML file, then command-line flags. Secrets
// come only from the environment.
package config

import (
	"time"

	"github.com/samber/oops"

	"github.com/tasklane/tasklane/internal/auth"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Notifier drivers.
const (
	NotifierLog  = "log"
	NotifierAMQP = "amqp"
)

// Config is the full service configuration. Secrets are excluded from the
// YAML file and its schema.
type Config struct {
	Log         LogConfig         `koanf:"log" json:"log,omitempty"`
	HTTP        HTTPConfig        `koanf:"http" json:"http,omitempty"`
	Metrics     MetricsConfig     `koanf:"metrics" json:"metrics,omitempty"`
	Database    DatabaseConfig    `koanf:"database" json:"database,omitempty"`
	Tokens      TokenConfig       `koanf:"tokens" json:"tokens,omitempty"`
	Hashing     HashingConfig     `koanf:"hashing" json:"hashing,omitempty"`
	Password    PasswordConfig    `koanf:"password" json:"password,omitempty"`
	Limits      LimitsConfig      `koanf:"limits" json:"limits,omitempty"`
	Notify      NotifyConfig      `koanf:"notify" json:"notify,omitempty"`
	Maintenance MaintenanceConfig `koanf:"maintenance" json:"maintenance,omitempty"`

	Secrets Secrets `koanf:"-" json:"-"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Format string `koanf:"format" json:"format,omitempty" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// HTTPConfig configures the public API listener.
type HTTPConfig struct {
	Addr           string        `koanf:"addr" json:"addr,omitempty"`
	ReadTimeout    time.Duration `koanf:"read_timeout" json:"read_timeout,omitempty" jsonschema:"oneof_type=string;integer"`
	WriteTimeout   time.Duration `koanf:"write_timeout" json:"write_timeout,omitempty" jsonschema:"oneof_type=string;integer"`
	IdleTimeout    time.Duration `koanf:"idle_timeout" json:"idle_timeout,omitempty" jsonschema:"oneof_type=string;integer"`
	RequestTimeout time.Duration `koanf:"request_timeout" json:"request_timeout,omitempty" jsonschema:"oneof_type=string;integer"`
}

// MetricsConfig configures the observability listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" json:"addr,omitempty"`
}

// DatabaseConfig configures the credential store. The connection URL is a
// secret.
type DatabaseConfig struct {
	Driver          string        `koanf:"driver" json:"driver,omitempty" jsonschema:"enum=postgres,enum=memory"`
	MaxConns        int32         `koanf:"max_conns" json:"max_conns,omitempty" jsonschema:"minimum=0"`
	MinConns        int32         `koanf:"min_conns" json:"min_conns,omitempty" jsonschema:"minimum=0"`
	MaxConnLifetime time.Duration `koanf:"max_conn_lifetime" json:"max_conn_lifetime,omitempty" jsonschema:"oneof_type=string;integer"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout" json:"connect_timeout,omitempty" jsonschema:"oneof_type=string;integer"`
	AutoMigrate     bool          `koanf:"auto_migrate" json:"auto_migrate,omitempty"`
}

// TokenConfig configures JWT issuance. The signing key is a secret.
type TokenConfig struct {
	Issuer               string        `koanf:"issuer" json:"issuer,omitempty"`
	AccessTTL            time.Duration `koanf:"access_ttl" json:"access_ttl,omitempty" jsonschema:"oneof_type=string;integer"`
	RefreshTTL           time.Duration `koanf:"refresh_ttl" json:"refresh_ttl,omitempty" jsonschema:"oneof_type=string;integer"`
	RefreshLead          time.Duration `koanf:"refresh_lead" json:"refresh_lead,omitempty" jsonschema:"oneof_type=string;integer"`
	ResetTokenTTL        time.Duration `koanf:"reset_token_ttl" json:"reset_token_ttl,omitempty" jsonschema:"oneof_type=string;integer"`
	VerificationTokenTTL time.Duration `koanf:"verification_token_ttl" json:"verification_token_ttl,omitempty" jsonschema:"oneof_type=string;integer"`
}

// HashingConfig configures argon2id and the hashing worker pool.
type HashingConfig struct {
	MemoryKiB   uint32 `koanf:"memory_kib" json:"memory_kib,omitempty" jsonschema:"minimum=0"`
	Iterations  uint32 `koanf:"iterations" json:"iterations,omitempty" jsonschema:"minimum=0"`
	Threads     uint8  `koanf:"threads" json:"threads,omitempty" jsonschema:"minimum=0"`
	PoolWorkers int    `koanf:"pool_workers" json:"pool_workers,omitempty" jsonschema:"minimum=0"`
	PoolQueue   int    `koanf:"pool_queue" json:"pool_queue,omitempty" jsonschema:"minimum=0"`
}

// PasswordConfig is the password strength policy. An empty DenyList uses
// the built-in list.
type PasswordConfig struct {
	MinLength     int      `koanf:"min_length" json:"min_length,omitempty" jsonschema:"minimum=0"`
	MaxLength     int      `koanf:"max_length" json:"max_length,omitempty" jsonschema:"minimum=0"`
	RequireLetter bool     `koanf:"require_letter" json:"require_letter,omitempty"`
	RequireDigit  bool     `koanf:"require_digit" json:"require_digit,omitempty"`
	DenyList      []string `koanf:"deny_list" json:"deny_list,omitempty"`
}

// LimitsConfig configures signin lockout and one-time token throttling.
type LimitsConfig struct {
	LockoutThreshold   int           `koanf:"lockout_threshold" json:"lockout_threshold,omitempty" jsonschema:"minimum=0"`
	LockoutWindow      time.Duration `koanf:"lockout_window" json:"lockout_window,omitempty" jsonschema:"oneof_type=string;integer"`
	OneTimeTokenLimit  int           `koanf:"one_time_token_limit" json:"one_time_token_limit,omitempty" jsonschema:"minimum=0"`
	OneTimeTokenWindow time.Duration `koanf:"one_time_token_window" json:"one_time_token_window,omitempty" jsonschema:"oneof_type=string;integer"`
}

// NotifyConfig selects and tunes notification delivery. The broker URL is a
// secret.
type NotifyConfig struct {
	Driver          string        `koanf:"driver" json:"driver,omitempty" jsonschema:"enum=log,enum=amqp"`
	Queue           string        `koanf:"queue" json:"queue,omitempty"`
	RevealTokens    bool          `koanf:"reveal_tokens" json:"reveal_tokens,omitempty"`
	MaxRetries      uint64        `koanf:"max_retries" json:"max_retries,omitempty" jsonschema:"minimum=0"`
	RetryBase       time.Duration `koanf:"retry_base" json:"retry_base,omitempty" jsonschema:"oneof_type=string;integer"`
	RetryCap        time.Duration `koanf:"retry_cap" json:"retry_cap,omitempty" jsonschema:"oneof_type=string;integer"`
	DispatchWorkers int           `koanf:"dispatch_workers" json:"dispatch_workers,omitempty" jsonschema:"minimum=0"`
	DispatchQueue   int           `koanf:"dispatch_queue" json:"dispatch_queue,omitempty" jsonschema:"minimum=0"`
	DispatchTimeout time.Duration `koanf:"dispatch_timeout" json:"dispatch_timeout,omitempty" jsonschema:"oneof_type=string;integer"`
}

// MaintenanceConfig configures the token janitor. A zero PruneInterval
// disables it.
type MaintenanceConfig struct {
	PruneInterval time.Duration `koanf:"prune_interval" json:"prune_interval,omitempty" jsonschema:"oneof_type=string;integer"`
	Retention     time.Duration `koanf:"retention" json:"retention,omitempty" jsonschema:"oneof_type=string;integer"`
}

// Secrets are read from the environment only.
type Secrets struct {
	DatabaseURL string `env:"DATABASE_URL"`
	JWTSecret   string `env:"TASKLANE_JWT_SECRET"`
	AMQPURL     string `env:"TASKLANE_AMQP_URL"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log: LogConfig{Format: "json", Level: "info"},
		HTTP: HTTPConfig{
			Addr:           ":8080",
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
			IdleTimeout:    60 * time.Second,
			RequestTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Database: DatabaseConfig{
			Driver:          DriverPostgres,
			MaxConns:        10,
			MinConns:        1,
			MaxConnLifetime: time.Hour,
			ConnectTimeout:  5 * time.Second,
		},
		Tokens: TokenConfig{
			Issuer:               "tasklane",
			AccessTTL:            auth.DefaultAccessTokenTTL,
			RefreshTTL:           auth.DefaultRefreshTokenTTL,
			RefreshLead:          auth.DefaultRefreshLead,
			ResetTokenTTL:        auth.ResetTokenExpiry,
			VerificationTokenTTL: auth.VerificationTokenExpiry,
		},
		Hashing: HashingConfig{
			MemoryKiB:  auth.DefaultArgon2Params.Memory,
			Iterations: auth.DefaultArgon2Params.Time,
			Threads:    auth.DefaultArgon2Params.Threads,
			PoolQueue:  64,
		},
		Password: PasswordConfig{
			MinLength:     auth.DefaultPasswordPolicy.MinLength,
			MaxLength:     auth.DefaultPasswordPolicy.MaxLength,
			RequireLetter: auth.DefaultPasswordPolicy.RequireLetter,
			RequireDigit:  auth.DefaultPasswordPolicy.RequireDigit,
		},
		Limits: LimitsConfig{
			LockoutThreshold:   auth.DefaultLockoutThreshold,
			LockoutWindow:      auth.DefaultLockoutWindow,
			OneTimeTokenLimit:  auth.DefaultOneTimeTokenLimit,
			OneTimeTokenWindow: auth.DefaultOneTimeTokenWindow,
		},
		Notify: NotifyConfig{
			Driver:          NotifierLog,
			Queue:           "tasklane.notifications",
			MaxRetries:      3,
			RetryBase:       100 * time.Millisecond,
			RetryCap:        2 * time.Second,
			DispatchWorkers: 4,
			DispatchQueue:   256,
			DispatchTimeout: 30 * time.Second,
		},
		Maintenance: MaintenanceConfig{
			PruneInterval: time.Hour,
			Retention:     7 * 24 * time.Hour,
		},
	}
}

// Validate checks the settings serve depends on, including cross-field
// constraints the schema cannot express.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Secrets.DatabaseURL == "" {
			return oops.Code("CONFIG_INVALID").With("field", "DATABASE_URL").
				Errorf("DATABASE_URL is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return oops.Code("CONFIG_INVALID").With("field", "database.driver").
			Errorf("unknown database driver %q", c.Database.Driver)
	}

	switch c.Notify.Driver {
	case NotifierAMQP:
		if c.Secrets.AMQPURL == "" {
			return oops.Code("CONFIG_INVALID").With("field", "TASKLANE_AMQP_URL").
				Errorf("TASKLANE_AMQP_URL is required for the amqp notifier")
		}
	case NotifierLog:
	default:
		return oops.Code("CONFIG_INVALID").With("field", "notify.driver").
			Errorf("unknown notifier driver %q", c.Notify.Driver)
	}

	if len(c.Secrets.JWTSecret) < auth.MinSigningKeyBytes {
		return oops.Code("CONFIG_INVALID").With("field", "TASKLANE_JWT_SECRET").
			Errorf("TASKLANE_JWT_SECRET must be at least %d bytes", auth.MinSigningKeyBytes)
	}
	if c.Database.MinConns > c.Database.MaxConns && c.Database.MaxConns > 0 {
		return oops.Code("CONFIG_INVALID").With("field", "database.min_conns").
			Errorf("min_conns %d exceeds max_conns %d", c.Database.MinConns, c.Database.MaxConns)
	}
	if c.Tokens.RefreshLead >= c.Tokens.AccessTTL {
		return oops.Code("CONFIG_INVALID").With("field", "tokens.refresh_lead").
			Errorf("refresh_lead %s must be shorter than access_ttl %s", c.Tokens.RefreshLead, c.Tokens.AccessTTL)
	}
	return nil
}

// RateLimits converts the limits section.
func (c *Config) RateLimits() auth.RateLimits {
	return auth.RateLimits{
		LockoutThreshold:   c.Limits.LockoutThreshold,
		LockoutWindow:      c.Limits.LockoutWindow,
		OneTimeTokenLimit:  c.Limits.OneTimeTokenLimit,
		OneTimeTokenWindow: c.Limits.OneTimeTokenWindow,
	}
}

// PasswordPolicy converts the password section.
func (c *Config) PasswordPolicy() auth.PasswordPolicy {
	return auth.PasswordPolicy{
		MinLength:     c.Password.MinLength,
		MaxLength:     c.Password.MaxLength,
		RequireLetter: c.Password.RequireLetter,
		RequireDigit:  c.Password.RequireDigit,
		DenyList:      c.Password.DenyList,
	}
}

// Argon2Params converts the hashing section. Zero fields fall back to the
// hasher defaults.
func (c *Config) Argon2Params() auth.Argon2Params {
	return auth.Argon2Params{
		Memory:  c.Hashing.MemoryKiB,
		Time:    c.Hashing.Iterations,
		Threads: c.Hashing.Threads,
	}
}

// TokenCodecConfig converts the tokens section and the signing secret.
func (c *Config) TokenCodecConfig() auth.TokenCodecConfig {
	return auth.TokenCodecConfig{
		SigningKey:  []byte(c.Secrets.JWTSecret),
		Issuer:      c.Tokens.Issuer,
		AccessTTL:   c.Tokens.AccessTTL,
		RefreshTTL:  c.Tokens.RefreshTTL,
		RefreshLead: c.Tokens.RefreshLead,
	}
}
