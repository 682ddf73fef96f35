// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
)

// RefreshAccessToken exchanges a refresh token for a new token pair. The
// presented token is revoked in the same transaction that stores its
// successor, so of two concurrent exchanges of one token exactly one wins.
func (c *Coordinator) RefreshAccessToken(ctx context.Context, refreshToken string) (_ *TokenPair, err error) {
	ctx, done := c.begin(ctx, "refresh")
	defer func() { done(err) }()

	if refreshToken == "" {
		return nil, validationError(map[string]string{"refresh_token": "is required"}, nil)
	}

	claims, err := c.codec.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, unauthorized(MsgInvalidToken, err)
	}

	now := c.now().UTC()
	oldHash := HashToken(refreshToken)
	row, err := c.refreshTokens.GetValidByHash(ctx, oldHash, now)
	if err != nil {
		if isNotFound(err) {
			refreshReuseTotal.Inc()
			return nil, unauthorized(MsgInvalidToken,
				oops.Code("REFRESH_TOKEN_REUSED").With("user_id", claims.UserID.String()).Wrap(err))
		}
		return nil, internalError(oops.Code("REFRESH_LOOKUP_FAILED").Wrap(err))
	}
	if row.UserID != claims.UserID || row.Version != claims.Version {
		return nil, unauthorized(MsgInvalidToken,
			oops.Code("REFRESH_CLAIMS_MISMATCH").
				With("user_id", claims.UserID.String()).
				With("version", claims.Version).
				Errorf("stored token does not match claims"))
	}

	user, err := c.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if isNotFound(err) {
			return nil, unauthorized(MsgInvalidToken, oops.Code("REFRESH_USER_NOT_FOUND").Wrap(err))
		}
		return nil, internalError(oops.Code("REFRESH_USER_LOOKUP_FAILED").Wrap(err))
	}
	if !user.CanAuthenticate() {
		return nil, unauthorized(MsgInvalidToken,
			oops.Code("REFRESH_ACCOUNT_INACTIVE").With("user_id", user.ID.String()).Errorf("account is inactive"))
	}

	access, err := c.codec.IssueAccess(user.ID, user.Role, user.Tier)
	if err != nil {
		return nil, internalError(err)
	}
	nextVersion := row.Version + 1
	refresh, err := c.codec.IssueRefresh(user.ID, nextVersion)
	if err != nil {
		return nil, internalError(err)
	}
	next, err := NewRefreshToken(user.ID, refresh, nextVersion)
	if err != nil {
		return nil, internalError(err)
	}

	if err := c.refreshTokens.Rotate(ctx, oldHash, next, now); err != nil {
		if isNotFound(err) {
			refreshReuseTotal.Inc()
			return nil, unauthorized(MsgInvalidToken,
				oops.Code("REFRESH_ROTATE_LOST").With("user_id", user.ID.String()).Wrap(err))
		}
		return nil, internalError(oops.Code("REFRESH_ROTATE_FAILED").With("user_id", user.ID.String()).Wrap(err))
	}

	c.recordActivity(ctx, newActivity(user.ID, ActionTokenRefreshed, "session", ClientInfo{},
		map[string]any{"version": nextVersion}))

	pair := c.pair(access, refresh)
	return &pair, nil
}

// Authenticate verifies an access token.
func (c *Coordinator) Authenticate(_ context.Context, accessToken string) (*AccessClaims, error) {
	if accessToken == "" {
		return nil, unauthorized(MsgInvalidToken, oops.Code("TOKEN_MISSING").Errorf("access token is required"))
	}
	claims, err := c.codec.VerifyAccess(accessToken)
	if err != nil {
		return nil, unauthorized(MsgInvalidToken, err)
	}
	return claims, nil
}

// Authorize checks that the claimed role holds action on resource.
func (c *Coordinator) Authorize(claims *AccessClaims, action, resource string) error {
	if claims == nil {
		return unauthorized(MsgInvalidToken, oops.Code("TOKEN_MISSING").Errorf("no claims"))
	}
	if !c.caps.Allows(claims.Role, action, resource) {
		return newError(KindForbidden, MsgForbidden,
			oops.Code("AUTH_FORBIDDEN").
				With("role", claims.Role.String()).
				With("action", action).
				With("resource", resource).
				Errorf("capability not granted"))
	}
	return nil
}

// PruneResult reports how many rows Prune removed per table.
type PruneResult struct {
	RefreshTokens      int64
	ResetTokens        int64
	VerificationTokens int64
}

// Total returns the number of rows removed.
func (r PruneResult) Total() int64 {
	return r.RefreshTokens + r.ResetTokens + r.VerificationTokens
}

// Prune deletes refresh and one-time tokens that stopped being usable more
// than retention ago.
func (c *Coordinator) Prune(ctx context.Context, retention time.Duration) (_ PruneResult, err error) {
	ctx, done := c.begin(ctx, "prune")
	defer func() { done(err) }()

	if retention < 0 {
		retention = 0
	}
	cutoff := c.now().UTC().Add(-retention)

	var res PruneResult
	var errs []error
	if res.RefreshTokens, err = c.refreshTokens.DeleteStale(ctx, cutoff); err != nil {
		errs = append(errs, oops.With("table", "refresh_tokens").Wrap(err))
	}
	if res.ResetTokens, err = c.resetTokens.DeleteStale(ctx, cutoff); err != nil {
		errs = append(errs, oops.With("table", "password_reset_tokens").Wrap(err))
	}
	if res.VerificationTokens, err = c.verifyTokens.DeleteStale(ctx, cutoff); err != nil {
		errs = append(errs, oops.With("table", "email_verification_tokens").Wrap(err))
	}
	if len(errs) > 0 {
		return res, internalError(oops.Code("PRUNE_FAILED").Wrap(errors.Join(errs...)))
	}

	c.logger.InfoContext(ctx, "pruned stale tokens",
		"refresh_tokens", res.RefreshTokens,
		"reset_tokens", res.ResetTokens,
		"verification_tokens", res.VerificationTokens)
	return res, nil
}
