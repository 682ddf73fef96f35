// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/samber/oops"

	"github.com/tasklane/tasklane/pkg/errutil"
)

// SignupRequest carries the fields of a new account.
type SignupRequest struct {
	Email    string
	Username string
	Password string
	Client   ClientInfo
}

// Signup creates an unverified account and returns it with a fresh token
// pair. A verification email is sent best-effort.
func (c *Coordinator) Signup(ctx context.Context, req SignupRequest) (_ *AuthResponse, err error) {
	ctx, done := c.begin(ctx, "signup")
	defer func() { done(err) }()

	email := NormalizeEmail(req.Email)
	username := strings.TrimSpace(req.Username)

	fields := map[string]string{}
	if !c.validEmail(email) {
		fields["email"] = "must be a valid email address"
	}
	if uerr := ValidateUsername(username); uerr != nil {
		fields["username"] = uerr.Error()
	}
	if perr := c.hasher.ValidateStrength(req.Password); perr != nil {
		fields["password"] = perr.Error()
	}
	if len(fields) > 0 {
		return nil, validationError(fields, nil)
	}

	hash, err := c.hashPassword(ctx, req.Password)
	if err != nil {
		return nil, internalError(err)
	}

	var user *User
	err = c.tx.InTransaction(ctx, func(ctx context.Context) error {
		taken, txErr := c.users.ExistsByEmailOrUsername(ctx, email, username)
		if txErr != nil {
			return oops.Code("SIGNUP_LOOKUP_FAILED").Wrap(txErr)
		}
		if taken {
			return newError(KindConflict, MsgEmailOrUsernameTaken, nil)
		}
		role, txErr := c.users.DefaultRole(ctx)
		if txErr != nil {
			return oops.Code("SIGNUP_DEFAULT_ROLE_FAILED").Wrap(txErr)
		}
		u, txErr := NewUser(email, username, hash, role, TierFree)
		if txErr != nil {
			return txErr
		}
		if txErr := c.users.Create(ctx, u); txErr != nil {
			if errors.Is(txErr, ErrConflict) {
				return newError(KindConflict, MsgEmailOrUsernameTaken, txErr)
			}
			return oops.Code("SIGNUP_CREATE_FAILED").Wrap(txErr)
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, asCoordinatorError(err)
	}

	tokens, err := c.issueTokenPair(ctx, user)
	if err != nil {
		return nil, internalError(err)
	}

	c.recordActivity(ctx, newActivity(user.ID, ActionSignup, "user", req.Client, nil))
	if verr := c.issueVerification(ctx, user, req.Client); verr != nil {
		errutil.LogErrorAt(ctx, c.logger, slog.LevelWarn, "failed to issue verification token at signup", verr,
			"user_id", user.ID.String())
	}

	return &AuthResponse{User: ProfileOf(user), Tokens: *tokens}, nil
}
