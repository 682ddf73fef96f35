// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// NotificationKind selects the message template a NotificationPort sends.
type NotificationKind string

// Notification kinds.
const (
	NotifyEmailVerification NotificationKind = "email_verification"
	NotifyPasswordReset     NotificationKind = "password_reset"
	NotifyPasswordChanged   NotificationKind = "password_changed"
	NotifyNewLogin          NotificationKind = "new_login"
	NotifyAccountDeleted    NotificationKind = "account_deleted"
)

// Notification is a message addressed to one user. Token carries the raw
// one-time token for verification and reset messages; it is never persisted.
type Notification struct {
	Kind       NotificationKind `json:"kind"`
	UserID     ulid.ULID        `json:"user_id"`
	Email      string           `json:"email"`
	Username   string           `json:"username"`
	Token      string           `json:"token,omitempty"`
	ExpiresAt  *time.Time       `json:"expires_at,omitempty"`
	IPAddress  string           `json:"ip_address,omitempty"`
	UserAgent  string           `json:"user_agent,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// NotificationPort delivers notifications to users.
type NotificationPort interface {
	Notify(ctx context.Context, n Notification) error
}

func newNotification(kind NotificationKind, user *User, client ClientInfo) Notification {
	return Notification{
		Kind:       kind,
		UserID:     user.ID,
		Email:      user.Email,
		Username:   user.Username,
		IPAddress:  client.IPAddress,
		UserAgent:  client.UserAgent,
		OccurredAt: time.Now().UTC(),
	}
}
