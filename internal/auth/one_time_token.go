// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// One-time token lifetimes.
const (
	ResetTokenExpiry        = time.Hour
	VerificationTokenExpiry = 24 * time.Hour
)

// Purpose distinguishes the two one-time token stores.
type Purpose string

// One-time token purposes.
const (
	PurposePasswordReset     Purpose = "password_reset"
	PurposeEmailVerification Purpose = "email_verification"
)

// Reasons a one-time token could not be consumed. They are logged and
// collapsed to one generic message at the boundary.
var (
	ErrTokenNotFound    = errors.New("token not found")
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenUsed        = errors.New("token already used")
	ErrTokenSuperseded  = errors.New("token superseded")
	errTokenUnavailable = errors.New("token unavailable")
)

// OneTimeToken is a single-use, time-limited token such as a password reset
// or email verification token.
type OneTimeToken struct {
	ID           ulid.ULID
	UserID       ulid.ULID
	Purpose      Purpose
	TokenHash    string
	ExpiresAt    time.Time
	IsUsed       bool
	UsedAt       *time.Time
	SupersededAt *time.Time
	CreatedAt    time.Time
}

// TokenState is a state of the one-time token lifecycle.
type TokenState string

// One-time token states. Used, Expired and Superseded are terminal.
const (
	TokenValid      TokenState = "valid"
	TokenUsed       TokenState = "used"
	TokenExpired    TokenState = "expired"
	TokenSuperseded TokenState = "superseded"
)

// State derives the lifecycle state at now.
func (t *OneTimeToken) State(now time.Time) TokenState {
	switch {
	case t.IsUsed:
		return TokenUsed
	case t.SupersededAt != nil:
		return TokenSuperseded
	case !now.Before(t.ExpiresAt):
		return TokenExpired
	default:
		return TokenValid
	}
}

// Err maps a non-valid state to its sentinel.
func (s TokenState) Err() error {
	switch s {
	case TokenValid:
		return nil
	case TokenUsed:
		return ErrTokenUsed
	case TokenExpired:
		return ErrTokenExpired
	case TokenSuperseded:
		return ErrTokenSuperseded
	default:
		return errTokenUnavailable
	}
}

// NewOneTimeToken creates a token for the user and returns it with the
// plaintext that must be delivered to the user.
func NewOneTimeToken(userID ulid.ULID, purpose Purpose, ttl time.Duration) (*OneTimeToken, string, error) {
	if userID.IsZero() {
		return nil, "", oops.Code("ONE_TIME_TOKEN_INVALID").Errorf("user ID cannot be zero")
	}
	if ttl <= 0 {
		return nil, "", oops.Code("ONE_TIME_TOKEN_INVALID").With("ttl", ttl.String()).Errorf("ttl must be positive")
	}
	plaintext, hash, err := GenerateOneTimeToken()
	if err != nil {
		return nil, "", err
	}
	now := time.Now().UTC()
	return &OneTimeToken{
		ID:        ulid.Make(),
		UserID:    userID,
		Purpose:   purpose,
		TokenHash: hash,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}, plaintext, nil
}

// OneTimeTokenStore persists one-time token hashes of a single purpose.
type OneTimeTokenStore interface {
	// Issue supersedes every outstanding token of the user and stores token,
	// as one atomic unit.
	Issue(ctx context.Context, token *OneTimeToken) error

	// Consume atomically marks the token with tokenHash used and returns its
	// owner. When the token cannot be consumed the error wraps one of
	// ErrTokenNotFound, ErrTokenExpired, ErrTokenUsed or ErrTokenSuperseded.
	Consume(ctx context.Context, tokenHash string, now time.Time) (ulid.ULID, error)

	// Lookup returns the owner of a token that is still valid, without
	// consuming it. Errors match Consume.
	Lookup(ctx context.Context, tokenHash string, now time.Time) (ulid.ULID, error)

	// CountIssuedSince counts tokens created for the user at or after since.
	CountIssuedSince(ctx context.Context, userID ulid.ULID, since time.Time) (int, error)

	// DeleteByUser removes every token of the user.
	DeleteByUser(ctx context.Context, userID ulid.ULID) error

	// DeleteStale removes tokens that expired, or were used or superseded,
	// before cutoff.
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
}
