// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/tasklane/tasklane/pkg/errutil"
)

// issueVerification stores a verification token for user and dispatches the
// email carrying it. Throttled requests return an error wrapping errThrottled.
func (c *Coordinator) issueVerification(ctx context.Context, user *User, client ClientInfo) error {
	plaintext, token, err := c.issueOneTimeToken(ctx, c.verifyTokens, PurposeEmailVerification, c.verifyTTL, user)
	if err != nil {
		return err
	}
	c.recordActivity(ctx, newActivity(user.ID, ActionVerificationSent, "email_verification", client, nil))
	n := newNotification(NotifyEmailVerification, user, client)
	n.Token = plaintext
	n.ExpiresAt = &token.ExpiresAt
	c.notify(ctx, n)
	return nil
}

// SendVerificationEmail sends a new verification email to an authenticated
// user. Throttled requests still report success.
func (c *Coordinator) SendVerificationEmail(ctx context.Context, userID ulid.ULID, client ClientInfo) (_ *MessageResponse, err error) {
	ctx, done := c.begin(ctx, "send_verification")
	defer func() { done(err) }()

	user, err := c.users.GetByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, newError(KindNotFound, MsgUserNotFound, err)
		}
		return nil, internalError(oops.Code("VERIFICATION_LOOKUP_FAILED").Wrap(err))
	}
	if user.EmailVerified {
		return message(MsgEmailAlreadyVerified), nil
	}

	if err := c.issueVerification(ctx, user, client); err != nil {
		if !errors.Is(err, errThrottled) {
			return nil, internalError(err)
		}
		errutil.LogErrorAt(ctx, c.logger, slog.LevelWarn, "verification email throttled", err)
	}
	return message(MsgVerificationSent), nil
}

// VerifyEmail consumes a verification token and marks the owner's email
// verified.
func (c *Coordinator) VerifyEmail(ctx context.Context, token string, client ClientInfo) (_ *MessageResponse, err error) {
	ctx, done := c.begin(ctx, "verify_email")
	defer func() { done(err) }()

	var (
		userID  ulid.ULID
		changed bool
	)
	err = c.tx.InTransaction(ctx, func(ctx context.Context) error {
		id, txErr := consumeOneTimeToken(ctx, c.verifyTokens, token, c.now().UTC(), MsgInvalidVerificationToken)
		if txErr != nil {
			return txErr
		}
		changed, txErr = c.users.MarkEmailVerified(ctx, id)
		if txErr != nil {
			if isNotFound(txErr) {
				return newError(KindValidation, MsgInvalidVerificationToken, txErr)
			}
			return oops.Code("VERIFY_EMAIL_UPDATE_FAILED").With("user_id", id.String()).Wrap(txErr)
		}
		userID = id
		return nil
	})
	if err != nil {
		return nil, asCoordinatorError(err)
	}

	if !changed {
		return message(MsgEmailAlreadyVerified), nil
	}
	c.recordActivity(ctx, newActivity(userID, ActionEmailVerified, "email_verification", client, nil))
	return message(MsgEmailVerified), nil
}

// ResendVerificationEmail sends a new verification email to an unverified
// account. The response never reveals whether the email is registered.
func (c *Coordinator) ResendVerificationEmail(ctx context.Context, email string, client ClientInfo) (_ *MessageResponse, err error) {
	ctx, done := c.begin(ctx, "resend_verification")
	defer func() { done(err) }()

	generic := message(MsgVerificationRequested)
	email = NormalizeEmail(email)
	if !c.validEmail(email) {
		return generic, nil
	}

	user, lookupErr := c.users.GetByEmail(ctx, email)
	if lookupErr != nil {
		if !isNotFound(lookupErr) {
			errutil.LogErrorAt(ctx, c.logger, slog.LevelError, "verification resend lookup failed", lookupErr)
		}
		return generic, nil
	}
	if user.EmailVerified || !user.CanAuthenticate() {
		return generic, nil
	}

	if issueErr := c.issueVerification(ctx, user, client); issueErr != nil {
		level := slog.LevelError
		if errors.Is(issueErr, errThrottled) {
			level = slog.LevelWarn
		}
		errutil.LogErrorAt(ctx, c.logger, level, "verification resend not sent", issueErr)
	}
	return generic, nil
}
