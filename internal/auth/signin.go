// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package auth

import (
	"context"
	"log/slog"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/tasklane/tasklane/pkg/errutil"
)

// Signin authenticates by email or username and issues a token pair. Every
// rejection returns the same Unauthorized error; the reason is recorded in
// the attempt ledger.
func (c *Coordinator) Signin(ctx context.Context, identifier, password string, client ClientInfo) (_ *AuthResponse, err error) {
	ctx, done := c.begin(ctx, "signin")
	defer func() { done(err) }()

	identifier = strings.TrimSpace(identifier)
	fields := map[string]string{}
	if identifier == "" {
		fields["identifier"] = "is required"
	}
	if password == "" {
		fields["password"] = "is required"
	}
	if len(fields) > 0 {
		return nil, validationError(fields, nil)
	}

	user, err := c.lookupByIdentifier(ctx, identifier)
	if err != nil {
		if !isNotFound(err) {
			return nil, internalError(oops.Code("SIGNIN_LOOKUP_FAILED").Wrap(err))
		}
		// Equalise timing with the found-user path.
		_, _ = c.verifyPassword(ctx, password, c.dummyHash())
		c.recordAttempt(ctx, identifier, nil, ReasonInvalidCredentials, client)
		return nil, unauthorized(MsgInvalidCredentials,
			oops.Code("SIGNIN_USER_NOT_FOUND").With("identifier", identifier).Wrap(err))
	}

	if !user.CanAuthenticate() {
		_, _ = c.verifyPassword(ctx, password, c.dummyHash())
		c.recordAttempt(ctx, identifier, user, ReasonAccountInactive, client)
		return nil, unauthorized(MsgInvalidCredentials,
			oops.Code("SIGNIN_ACCOUNT_INACTIVE").With("user_id", user.ID.String()).Errorf("account is inactive"))
	}

	ok, err := c.verifyPassword(ctx, password, user.PasswordHash)
	if err != nil {
		return nil, internalError(oops.Code("SIGNIN_VERIFY_FAILED").With("user_id", user.ID.String()).Wrap(err))
	}
	if !ok {
		c.recordAttempt(ctx, identifier, user, ReasonInvalidPassword, client)
		return nil, unauthorized(MsgInvalidCredentials,
			oops.Code("SIGNIN_INVALID_PASSWORD").With("user_id", user.ID.String()).Errorf("password mismatch"))
	}

	if c.lockedOut(ctx, identifier) {
		c.recordAttempt(ctx, identifier, user, ReasonLockedOut, client)
		return nil, unauthorized(MsgInvalidCredentials,
			oops.Code("SIGNIN_LOCKED_OUT").
				With("user_id", user.ID.String()).
				With("threshold", c.limits.LockoutThreshold).
				Errorf("too many failed attempts"))
	}

	if c.hasher.NeedsRehash(user.PasswordHash) {
		c.upgradeHash(ctx, user, password)
	}

	now := c.now().UTC()
	if uerr := c.users.UpdateLastLogin(ctx, user.ID, now); uerr != nil {
		errutil.LogErrorAt(ctx, c.logger, slog.LevelWarn, "failed to update last login", uerr, "user_id", user.ID.String())
	} else {
		user.LastLoginAt = &now
	}

	tokens, err := c.issueTokenPair(ctx, user)
	if err != nil {
		return nil, internalError(err)
	}

	c.recordAttempt(ctx, identifier, user, "", client)
	c.recordActivity(ctx, newActivity(user.ID, ActionSignin, "user", client, nil))

	c.notify(ctx, newNotification(NotifyNewLogin, user, client))

	return &AuthResponse{User: ProfileOf(user), Tokens: *tokens}, nil
}

// lockedOut reports whether the identifier has reached the failure
// threshold. A ledger error fails open.
func (c *Coordinator) lockedOut(ctx context.Context, identifier string) bool {
	if c.limits.LockoutThreshold <= 0 {
		return false
	}
	since := c.now().Add(-c.limits.LockoutWindow)
	failures, err := c.ledger.CountFailedAttempts(ctx, identifier, since)
	if err != nil {
		errutil.LogErrorAt(ctx, c.logger, slog.LevelWarn, "failed to count login failures", err)
		return false
	}
	return c.limits.IsLockedOut(failures)
}

// upgradeHash re-hashes the password with current parameters. Failures are
// logged only.
func (c *Coordinator) upgradeHash(ctx context.Context, user *User, password string) {
	hash, err := c.hashPassword(ctx, password)
	if err == nil {
		err = c.users.UpdatePasswordHash(ctx, user.ID, hash)
	}
	if err != nil {
		errutil.LogErrorAt(ctx, c.logger, slog.LevelWarn, "failed to upgrade password hash", err, "user_id", user.ID.String())
		return
	}
	user.PasswordHash = hash
	c.logger.InfoContext(ctx, "upgraded password hash", "user_id", user.ID.String())
}

// Signout revokes one refresh token. Repeating it is not an error.
func (c *Coordinator) Signout(ctx context.Context, refreshToken string) (_ *MessageResponse, err error) {
	ctx, done := c.begin(ctx, "signout")
	defer func() { done(err) }()

	if refreshToken == "" {
		return nil, validationError(map[string]string{"refresh_token": "is required"}, nil)
	}

	revoked, err := c.refreshTokens.Revoke(ctx, HashToken(refreshToken))
	if err != nil {
		return nil, internalError(oops.Code("SIGNOUT_FAILED").Wrap(err))
	}
	if !revoked {
		return message(MsgAlreadyLoggedOut), nil
	}
	return message(MsgLoggedOut), nil
}

// SignoutAllDevices revokes every refresh token of the user and returns how
// many were revoked.
func (c *Coordinator) SignoutAllDevices(ctx context.Context, userID ulid.ULID, client ClientInfo) (_ int64, err error) {
	ctx, done := c.begin(ctx, "signout_all")
	defer func() { done(err) }()

	count, err := c.refreshTokens.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, internalError(oops.Code("SIGNOUT_ALL_FAILED").With("user_id", userID.String()).Wrap(err))
	}
	c.recordActivity(ctx, newActivity(userID, ActionSignoutAll, "session", client, map[string]any{"revoked": count}))
	return count, nil
}
