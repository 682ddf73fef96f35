// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package auth

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// loadAndVerify loads the user and checks password against the stored hash.
func (c *Coordinator) loadAndVerify(ctx context.Context, userID ulid.ULID, password, field string) (*User, error) {
	if password == "" {
		return nil, validationError(map[string]string{field: "is required"}, nil)
	}
	user, err := c.users.GetByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, newError(KindNotFound, MsgUserNotFound, err)
		}
		return nil, internalError(oops.Code("USER_LOOKUP_FAILED").With("user_id", userID.String()).Wrap(err))
	}
	ok, err := c.verifyPassword(ctx, password, user.PasswordHash)
	if err != nil {
		return nil, internalError(oops.Code("PASSWORD_VERIFY_FAILED").With("user_id", userID.String()).Wrap(err))
	}
	if !ok {
		return nil, unauthorized(MsgInvalidCredentials,
			oops.Code("PASSWORD_MISMATCH").With("user_id", userID.String()).Errorf("current password mismatch"))
	}
	return user, nil
}

// ChangePassword replaces the password of an authenticated user after
// checking the current one. Existing sessions stay valid.
func (c *Coordinator) ChangePassword(ctx context.Context, userID ulid.ULID, current, next string, client ClientInfo) (_ *MessageResponse, err error) {
	ctx, done := c.begin(ctx, "password_change")
	defer func() { done(err) }()

	if next == "" {
		return nil, validationError(map[string]string{"new_password": "is required"}, nil)
	}

	user, err := c.loadAndVerify(ctx, userID, current, "current_password")
	if err != nil {
		return nil, err
	}
	if next == current {
		return nil, newError(KindValidation, MsgNewPasswordMatchesCurrent, nil)
	}
	if perr := c.hasher.ValidateStrength(next); perr != nil {
		return nil, validationError(map[string]string{"new_password": perr.Error()}, perr)
	}

	hash, err := c.hashPassword(ctx, next)
	if err != nil {
		return nil, internalError(err)
	}
	if err := c.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		if isNotFound(err) {
			return nil, newError(KindNotFound, MsgUserNotFound, err)
		}
		return nil, internalError(oops.Code("PASSWORD_CHANGE_FAILED").With("user_id", user.ID.String()).Wrap(err))
	}

	c.recordActivity(ctx, newActivity(user.ID, ActionPasswordChanged, "user", client, nil))
	c.notify(ctx, newNotification(NotifyPasswordChanged, user, client))

	return message(MsgPasswordChanged), nil
}

// DeleteAccount removes the account and every token it owns after checking
// the password. The confirmation is dispatched before the row is removed.
func (c *Coordinator) DeleteAccount(ctx context.Context, userID ulid.ULID, password string, client ClientInfo) (_ *MessageResponse, err error) {
	ctx, done := c.begin(ctx, "account_delete")
	defer func() { done(err) }()

	user, err := c.loadAndVerify(ctx, userID, password, "password")
	if err != nil {
		return nil, err
	}

	c.notify(ctx, newNotification(NotifyAccountDeleted, user, client))

	err = c.tx.InTransaction(ctx, func(ctx context.Context) error {
		entry := newActivity(user.ID, ActionAccountDeleted, "user", client,
			map[string]any{"user_id": user.ID.String(), "username": user.Username})
		if txErr := c.ledger.RecordActivity(ctx, entry); txErr != nil {
			return oops.Code("ACCOUNT_DELETE_AUDIT_FAILED").Wrap(txErr)
		}
		if txErr := c.refreshTokens.DeleteByUser(ctx, user.ID); txErr != nil {
			return oops.Code("ACCOUNT_DELETE_FAILED").With("table", "refresh_tokens").Wrap(txErr)
		}
		if txErr := c.resetTokens.DeleteByUser(ctx, user.ID); txErr != nil {
			return oops.Code("ACCOUNT_DELETE_FAILED").With("table", "password_reset_tokens").Wrap(txErr)
		}
		if txErr := c.verifyTokens.DeleteByUser(ctx, user.ID); txErr != nil {
			return oops.Code("ACCOUNT_DELETE_FAILED").With("table", "email_verification_tokens").Wrap(txErr)
		}
		if txErr := c.users.Delete(ctx, user.ID); txErr != nil {
			if isNotFound(txErr) {
				return newError(KindNotFound, MsgUserNotFound, txErr)
			}
			return oops.Code("ACCOUNT_DELETE_FAILED").With("table", "users").Wrap(txErr)
		}
		return nil
	})
	if err != nil {
		return nil, asCoordinatorError(err)
	}

	return message(MsgAccountDeleted), nil
}
