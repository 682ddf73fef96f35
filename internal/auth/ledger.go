// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// Failure reasons recorded on LoginAttempt rows.
const (
	ReasonInvalidCredentials = "invalid_credentials"
	ReasonAccountInactive    = "account_inactive"
	ReasonInvalidPassword    = "invalid_password"
	ReasonLockedOut          = "locked_out"
)

// Activity actions recorded in the activity log.
const (
	ActionSignup                = "user.signup"
	ActionSignin                = "user.signin"
	ActionSignout               = "user.signout"
	ActionSignoutAll            = "user.signout_all"
	ActionTokenRefreshed        = "token.refreshed"
	ActionPasswordResetRequest  = "password_reset.requested"
	ActionPasswordResetThrottle = "password_reset.throttled"
	ActionPasswordResetComplete = "password_reset.completed"
	ActionPasswordChanged       = "password.changed"
	ActionVerificationSent      = "email_verification.sent"
	ActionEmailVerified         = "email_verification.completed"
	ActionAccountDeleted        = "account.deleted"
)

// ClientInfo describes the caller of a flow for audit purposes.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// LoginAttempt is an append-only record of one signin attempt.
type LoginAttempt struct {
	ID            ulid.ULID
	Identifier    string
	UserID        *ulid.ULID
	Success       bool
	FailureReason string
	IPAddress     string
	UserAgent     string
	CreatedAt     time.Time
}

// ActivityEntry is an append-only audit record.
type ActivityEntry struct {
	ID           ulid.ULID
	UserID       *ulid.ULID
	Action       string
	ResourceType string
	Details      map[string]any
	IPAddress    string
	CreatedAt    time.Time
}

// AttemptLedger records login attempts and security-relevant activity.
type AttemptLedger interface {
	// RecordLoginAttempt appends a login attempt.
	RecordLoginAttempt(ctx context.Context, attempt *LoginAttempt) error

	// RecordActivity appends an activity log entry.
	RecordActivity(ctx context.Context, entry *ActivityEntry) error

	// CountFailedAttempts counts failed attempts for identifier
	// (case-insensitive) at or after since.
	CountFailedAttempts(ctx context.Context, identifier string, since time.Time) (int, error)
}

func newLoginAttempt(identifier string, userID *ulid.ULID, reason string, client ClientInfo) *LoginAttempt {
	return &LoginAttempt{
		ID:            ulid.Make(),
		Identifier:    identifier,
		UserID:        userID,
		Success:       reason == "",
		FailureReason: reason,
		IPAddress:     client.IPAddress,
		UserAgent:     client.UserAgent,
		CreatedAt:     time.Now().UTC(),
	}
}

func newActivity(userID ulid.ULID, action, resourceType string, client ClientInfo, details map[string]any) *ActivityEntry {
	id := userID
	return &ActivityEntry{
		ID:           ulid.Make(),
		UserID:       &id,
		Action:       action,
		ResourceType: resourceType,
		Details:      details,
		IPAddress:    client.IPAddress,
		CreatedAt:    time.Now().UTC(),
	}
}
