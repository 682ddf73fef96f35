// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tasklane/tasklane/pkg/errutil"
)

var tracer = otel.Tracer("tasklane/auth")

// dummyPasswordHash is verified against when the user doesn't exist so that
// response time does not reveal whether an identifier is registered. It
// matches no password.
//
//nolint:gosec // G101: intentionally fake hash for timing equalisation, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Transactor runs fn inside a store transaction carried by the context.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Executor runs CPU-bound work off the request goroutine.
// *workerpool.Pool satisfies it.
type Executor interface {
	Do(ctx context.Context, fn func()) error
}

// dummyHasher is implemented by hashers that can produce a dummy hash with
// their own cost parameters.
type dummyHasher interface {
	DummyHash() string
}

// Deps are the collaborators of a Coordinator. All fields except HashPool
// are required.
type Deps struct {
	Users              CredentialStore
	RefreshTokens      RefreshTokenStore
	ResetTokens        OneTimeTokenStore
	VerificationTokens OneTimeTokenStore
	Ledger             AttemptLedger
	Notifier           NotificationPort
	Dispatcher         Dispatcher
	Transactor         Transactor
	Hasher             PasswordHasher
	Codec              *TokenCodec
	Capabilities       *Capabilities

	// HashPool runs password hashing and verification. Nil runs them inline.
	HashPool Executor

	Logger *slog.Logger
}

// Options tune Coordinator policy.
type Options struct {
	// RateLimits left entirely zero uses DefaultRateLimits.
	RateLimits           RateLimits
	ResetTokenTTL        time.Duration
	VerificationTokenTTL time.Duration

	// Now overrides the clock; nil uses time.Now.
	Now func() time.Time
}

// Coordinator orchestrates the credential and session lifecycle flows.
type Coordinator struct {
	users         CredentialStore
	refreshTokens RefreshTokenStore
	resetTokens   OneTimeTokenStore
	verifyTokens  OneTimeTokenStore
	ledger        AttemptLedger
	notifier      NotificationPort
	dispatcher    Dispatcher
	tx            Transactor
	hasher        PasswordHasher
	codec         *TokenCodec
	caps          *Capabilities
	pool          Executor
	logger        *slog.Logger
	validate      *validator.Validate

	limits    RateLimits
	resetTTL  time.Duration
	verifyTTL time.Duration
	now       func() time.Time
}

// NewCoordinator validates deps and creates a Coordinator.
func NewCoordinator(deps Deps, opts Options) (*Coordinator, error) {
	switch {
	case deps.Users == nil:
		return nil, oops.Code("COORDINATOR_CONFIG_INVALID").Errorf("credential store is required")
	case deps.RefreshTokens == nil:
		return nil, oops.Code("COORDINATOR_CONFIG_INVALID").Errorf("refresh token store is required")
	case deps.ResetTokens == nil:
		return nil, oops.Code("COORDINATOR_CONFIG_INVALID").Errorf("reset token store is required")
	case deps.VerificationTokens == nil:
		return nil, oops.Code("COORDINATOR_CONFIG_INVALID").Errorf("verification token store is required")
	case deps.Ledger == nil:
		return nil, oops.Code("COORDINATOR_CONFIG_INVALID").Errorf("attempt ledger is required")
	case deps.Notifier == nil:
		return nil, oops.Code("COORDINATOR_CONFIG_INVALID").Errorf("notifier is required")
	case deps.Dispatcher == nil:
		return nil, oops.Code("COORDINATOR_CONFIG_INVALID").Errorf("dispatcher is required")
	case deps.Transactor == nil:
		return nil, oops.Code("COORDINATOR_CONFIG_INVALID").Errorf("transactor is required")
	case deps.Hasher == nil:
		return nil, oops.Code("COORDINATOR_CONFIG_INVALID").Errorf("password hasher is required")
	case deps.Codec == nil:
		return nil, oops.Code("COORDINATOR_CONFIG_INVALID").Errorf("token codec is required")
	case deps.Logger == nil:
		return nil, oops.Code("COORDINATOR_CONFIG_INVALID").Errorf("logger is required")
	}

	c := &Coordinator{
		users:         deps.Users,
		refreshTokens: deps.RefreshTokens,
		resetTokens:   deps.ResetTokens,
		verifyTokens:  deps.VerificationTokens,
		ledger:        deps.Ledger,
		notifier:      deps.Notifier,
		dispatcher:    deps.Dispatcher,
		tx:            deps.Transactor,
		hasher:        deps.Hasher,
		codec:         deps.Codec,
		caps:          deps.Capabilities,
		pool:          deps.HashPool,
		logger:        deps.Logger,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		limits:        opts.RateLimits,
		resetTTL:      opts.ResetTokenTTL,
		verifyTTL:     opts.VerificationTokenTTL,
		now:           opts.Now,
	}
	if c.limits == (RateLimits{}) {
		c.limits = DefaultRateLimits()
	}
	c.limits = c.limits.withDefaults()
	if c.caps == nil {
		c.caps = NewCapabilities()
	}
	if c.resetTTL <= 0 {
		c.resetTTL = ResetTokenExpiry
	}
	if c.verifyTTL <= 0 {
		c.verifyTTL = VerificationTokenExpiry
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// TokenPair is the token bundle returned to callers.
type TokenPair struct {
	AccessToken          string    `json:"access_token"`
	RefreshToken         string    `json:"refresh_token"`
	AccessTokenExpiresAt time.Time `json:"access_token_expires_at"`
	ShouldRefreshAt      time.Time `json:"should_refresh_at"`
}

// UserProfile is the public view of a User.
type UserProfile struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Username      string     `json:"username"`
	EmailVerified bool       `json:"email_verified"`
	Role          string     `json:"role"`
	Tier          string     `json:"tier"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ProfileOf returns the public view of u.
func ProfileOf(u *User) UserProfile {
	return UserProfile{
		ID:            u.ID.String(),
		Email:         u.Email,
		Username:      u.Username,
		EmailVerified: u.EmailVerified,
		Role:          u.Role.String(),
		Tier:          string(u.Tier),
		LastLoginAt:   u.LastLoginAt,
		CreatedAt:     u.CreatedAt,
	}
}

// AuthResponse is returned by Signup and Signin.
type AuthResponse struct {
	User   UserProfile `json:"user"`
	Tokens TokenPair   `json:"tokens"`
}

// MessageResponse is returned by flows whose only result is a message.
type MessageResponse struct {
	Message string `json:"message"`
}

func message(msg string) *MessageResponse {
	return &MessageResponse{Message: msg}
}

// begin opens a span for operation and returns a finisher that records the
// outcome in the span, metrics and logs.
func (c *Coordinator) begin(ctx context.Context, operation string) (context.Context, func(err error)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "auth."+operation)
	return ctx, func(err error) {
		recordOperation(operation, err, time.Since(start))
		if err != nil {
			kind := KindOf(err)
			span.SetAttributes(attribute.String("auth.error_kind", kind.String()))
			if kind == KindInternal {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				errutil.LogErrorAt(ctx, c.logger, slog.LevelError, "auth operation failed", err, "operation", operation)
			} else {
				errutil.LogErrorAt(ctx, c.logger, slog.LevelInfo, "auth operation rejected", err,
					"operation", operation, "kind", kind.String())
			}
		}
		span.End()
	}
}

func (c *Coordinator) run(ctx context.Context, fn func()) error {
	if c.pool == nil {
		fn()
		return nil
	}
	return c.pool.Do(ctx, fn)
}

func (c *Coordinator) hashPassword(ctx context.Context, password string) (string, error) {
	var (
		hash string
		err  error
	)
	if poolErr := c.run(ctx, func() { hash, err = c.hasher.Hash(password) }); poolErr != nil {
		return "", oops.Code("AUTH_HASH_FAILED").With("operation", "queue hash").Wrap(poolErr)
	}
	if err != nil {
		return "", oops.Code("AUTH_HASH_FAILED").Wrap(err)
	}
	return hash, nil
}

func (c *Coordinator) verifyPassword(ctx context.Context, password, hash string) (bool, error) {
	var (
		ok  bool
		err error
	)
	if poolErr := c.run(ctx, func() { ok, err = c.hasher.Verify(password, hash) }); poolErr != nil {
		return false, oops.Code("AUTH_VERIFY_FAILED").With("operation", "queue verify").Wrap(poolErr)
	}
	return ok, err
}

func (c *Coordinator) dummyHash() string {
	if d, ok := c.hasher.(dummyHasher); ok {
		return d.DummyHash()
	}
	return dummyPasswordHash
}

// issueTokenPair signs a fresh access token and a version-1 refresh token
// and persists the refresh token's hash.
func (c *Coordinator) issueTokenPair(ctx context.Context, user *User) (*TokenPair, error) {
	access, err := c.codec.IssueAccess(user.ID, user.Role, user.Tier)
	if err != nil {
		return nil, err
	}
	refresh, err := c.codec.IssueRefresh(user.ID, 1)
	if err != nil {
		return nil, err
	}
	row, err := NewRefreshToken(user.ID, refresh, 1)
	if err != nil {
		return nil, err
	}
	if err := c.refreshTokens.Create(ctx, row); err != nil {
		return nil, oops.Code("REFRESH_TOKEN_PERSIST_FAILED").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	pair := c.pair(access, refresh)
	return &pair, nil
}

func (c *Coordinator) pair(access, refresh IssuedToken) TokenPair {
	return TokenPair{
		AccessToken:          access.Token,
		RefreshToken:         refresh.Token,
		AccessTokenExpiresAt: access.ExpiresAt,
		ShouldRefreshAt:      c.codec.ShouldRefreshAt(access.ExpiresAt),
	}
}

// recordAttempt appends a login attempt. Ledger failures are logged only.
func (c *Coordinator) recordAttempt(ctx context.Context, identifier string, user *User, reason string, client ClientInfo) {
	var userID *ulid.ULID
	if user != nil {
		id := user.ID
		userID = &id
	}
	if err := c.ledger.RecordLoginAttempt(ctx, newLoginAttempt(identifier, userID, reason, client)); err != nil {
		errutil.LogErrorAt(ctx, c.logger, slog.LevelWarn, "failed to record login attempt", err)
	}
}

// recordActivity appends an activity entry. Ledger failures are logged only.
func (c *Coordinator) recordActivity(ctx context.Context, entry *ActivityEntry) {
	if err := c.ledger.RecordActivity(ctx, entry); err != nil {
		errutil.LogErrorAt(ctx, c.logger, slog.LevelWarn, "failed to record activity", err, "action", entry.Action)
	}
}

// notify dispatches n as a post-commit action.
func (c *Coordinator) notify(ctx context.Context, n Notification) {
	c.dispatcher.Dispatch(ctx, "notify."+string(n.Kind), func(ctx context.Context) error {
		return c.notifier.Notify(ctx, n)
	})
}

// lookupByIdentifier resolves an email (contains '@') or a username.
func (c *Coordinator) lookupByIdentifier(ctx context.Context, identifier string) (*User, error) {
	if strings.Contains(identifier, "@") {
		return c.users.GetByEmail(ctx, NormalizeEmail(identifier))
	}
	return c.users.GetByUsername(ctx, identifier)
}

// validEmail reports whether email is syntactically valid.
func (c *Coordinator) validEmail(email string) bool {
	return c.validate.Var(email, "required,email,max=254") == nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
