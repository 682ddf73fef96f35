// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/tasklane/tasklane/pkg/errutil"
)

// errThrottled marks a one-time token request that was silently dropped.
var errThrottled = errors.New("one-time token request throttled")

// issueOneTimeToken stores a new token for user in store, superseding the
// previous ones, and returns the plaintext. Requests over the rate limit
// return errThrottled. A failed count is treated as throttled.
func (c *Coordinator) issueOneTimeToken(ctx context.Context, store OneTimeTokenStore, purpose Purpose,
	ttl time.Duration, user *User,
) (string, *OneTimeToken, error) {
	since := c.now().Add(-c.limits.OneTimeTokenWindow)
	issued, err := store.CountIssuedSince(ctx, user.ID, since)
	if err != nil {
		return "", nil, oops.Code("ONE_TIME_TOKEN_COUNT_FAILED").
			With("purpose", string(purpose)).
			With("user_id", user.ID.String()).
			Wrap(errors.Join(err, errThrottled))
	}
	if c.limits.OneTimeTokenThrottled(issued) {
		throttledTotal.WithLabelValues(string(purpose)).Inc()
		return "", nil, oops.Code("ONE_TIME_TOKEN_THROTTLED").
			With("purpose", string(purpose)).
			With("user_id", user.ID.String()).
			With("issued", issued).
			Wrap(errThrottled)
	}

	token, plaintext, err := NewOneTimeToken(user.ID, purpose, ttl)
	if err != nil {
		return "", nil, err
	}
	if err := store.Issue(ctx, token); err != nil {
		return "", nil, oops.Code("ONE_TIME_TOKEN_ISSUE_FAILED").
			With("purpose", string(purpose)).
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	return plaintext, token, nil
}

// consumeOneTimeToken marks the token used and returns its owner. Every
// reason the token is unusable maps to a ValidationError carrying msg.
func consumeOneTimeToken(ctx context.Context, store OneTimeTokenStore, token string, now time.Time, msg string) (ulid.ULID, error) {
	if token == "" {
		return ulid.ULID{}, newError(KindValidation, msg, oops.Code("ONE_TIME_TOKEN_MISSING").Errorf("token is empty"))
	}
	userID, err := store.Consume(ctx, HashToken(token), now)
	if err == nil {
		return userID, nil
	}
	return ulid.ULID{}, oneTimeTokenError(err, msg, "ONE_TIME_TOKEN_CONSUME_FAILED")
}

// checkOneTimeToken reports whether token is currently usable without
// consuming it. Errors match consumeOneTimeToken.
func checkOneTimeToken(ctx context.Context, store OneTimeTokenStore, token string, now time.Time, msg string) error {
	if token == "" {
		return newError(KindValidation, msg, oops.Code("ONE_TIME_TOKEN_MISSING").Errorf("token is empty"))
	}
	if _, err := store.Lookup(ctx, HashToken(token), now); err != nil {
		return oneTimeTokenError(err, msg, "ONE_TIME_TOKEN_LOOKUP_FAILED")
	}
	return nil
}

func oneTimeTokenError(err error, msg, code string) error {
	switch {
	case errors.Is(err, ErrTokenNotFound),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenUsed),
		errors.Is(err, ErrTokenSuperseded),
		errors.Is(err, errTokenUnavailable):
		return newError(KindValidation, msg, err)
	default:
		return oops.Code(code).Wrap(err)
	}
}

// RequestPasswordReset sends a reset link when email belongs to an active
// account. The response is identical whether or not it does.
func (c *Coordinator) RequestPasswordReset(ctx context.Context, email string, client ClientInfo) (_ *MessageResponse, err error) {
	ctx, done := c.begin(ctx, "password_reset_request")
	defer func() { done(err) }()

	generic := message(MsgResetRequested)
	email = NormalizeEmail(email)
	if !c.validEmail(email) {
		return generic, nil
	}

	user, lookupErr := c.users.GetByEmail(ctx, email)
	if lookupErr != nil {
		if !isNotFound(lookupErr) {
			errutil.LogErrorAt(ctx, c.logger, slog.LevelError, "password reset lookup failed", lookupErr)
		}
		return generic, nil
	}
	if !user.CanAuthenticate() {
		c.logger.InfoContext(ctx, "password reset requested for inactive account", "user_id", user.ID.String())
		return generic, nil
	}

	plaintext, token, issueErr := c.issueOneTimeToken(ctx, c.resetTokens, PurposePasswordReset, c.resetTTL, user)
	if issueErr != nil {
		if errors.Is(issueErr, errThrottled) {
			c.recordActivity(ctx, newActivity(user.ID, ActionPasswordResetThrottle, "password_reset", client, nil))
			errutil.LogErrorAt(ctx, c.logger, slog.LevelWarn, "password reset throttled", issueErr)
		} else {
			errutil.LogErrorAt(ctx, c.logger, slog.LevelError, "password reset issue failed", issueErr)
		}
		return generic, nil
	}

	c.recordActivity(ctx, newActivity(user.ID, ActionPasswordResetRequest, "password_reset", client, nil))
	n := newNotification(NotifyPasswordReset, user, client)
	n.Token = plaintext
	n.ExpiresAt = &token.ExpiresAt
	c.notify(ctx, n)

	return generic, nil
}

// ResetPassword consumes a reset token, stores the new password and revokes
// every refresh token of the account.
func (c *Coordinator) ResetPassword(ctx context.Context, token, newPassword string, client ClientInfo) (_ *MessageResponse, err error) {
	ctx, done := c.begin(ctx, "password_reset_confirm")
	defer func() { done(err) }()

	if perr := c.hasher.ValidateStrength(newPassword); perr != nil {
		return nil, validationError(map[string]string{"new_password": perr.Error()}, perr)
	}
	if token == "" {
		return nil, newError(KindValidation, MsgInvalidResetToken, nil)
	}
	// Reject unusable tokens before hashing. Consume below stays authoritative.
	if err := checkOneTimeToken(ctx, c.resetTokens, token, c.now().UTC(), MsgInvalidResetToken); err != nil {
		return nil, asCoordinatorError(err)
	}

	hash, err := c.hashPassword(ctx, newPassword)
	if err != nil {
		return nil, internalError(err)
	}

	var (
		userID  ulid.ULID
		revoked int64
	)
	err = c.tx.InTransaction(ctx, func(ctx context.Context) error {
		id, txErr := consumeOneTimeToken(ctx, c.resetTokens, token, c.now().UTC(), MsgInvalidResetToken)
		if txErr != nil {
			return txErr
		}
		if txErr := c.users.UpdatePasswordHash(ctx, id, hash); txErr != nil {
			return oops.Code("PASSWORD_RESET_UPDATE_FAILED").With("user_id", id.String()).Wrap(txErr)
		}
		n, txErr := c.refreshTokens.RevokeAllForUser(ctx, id)
		if txErr != nil {
			return oops.Code("PASSWORD_RESET_REVOKE_FAILED").With("user_id", id.String()).Wrap(txErr)
		}
		userID, revoked = id, n
		return nil
	})
	if err != nil {
		return nil, asCoordinatorError(err)
	}

	c.recordActivity(ctx, newActivity(userID, ActionPasswordResetComplete, "password_reset", client,
		map[string]any{"revoked_sessions": revoked}))
	c.notifyUser(ctx, userID, NotifyPasswordChanged, client)

	return message(MsgPasswordReset), nil
}

// notifyUser loads the user and dispatches a notification of kind. Lookup
// failures are logged only.
func (c *Coordinator) notifyUser(ctx context.Context, userID ulid.ULID, kind NotificationKind, client ClientInfo) {
	user, err := c.users.GetByID(ctx, userID)
	if err != nil {
		errutil.LogErrorAt(ctx, c.logger, slog.LevelWarn, "failed to load user for notification", err,
			"user_id", userID.String(), "kind", string(kind))
		return
	}
	c.notify(ctx, newNotification(kind, user, client))
}

// asCoordinatorError passes *Error values through and wraps anything else as
// an internal error.
func asCoordinatorError(err error) error {
	var authErr *Error
	if errors.As(err, &authErr) {
		return err
	}
	return internalError(err)
}
