// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package notify

import (
	"context"
	"log/slog"

	"github.com/samber/oops"

	"github.com/tasklane/tasklane/internal/auth"
)

// LogNotifier writes notifications to a logger instead of delivering them.
type LogNotifier struct {
	logger       *slog.Logger
	revealTokens bool
}

var _ auth.NotificationPort = (*LogNotifier)(nil)

// NewLogNotifier creates a LogNotifier. One-time tokens are redacted unless
// revealTokens is set, which is only meant for local development.
func NewLogNotifier(logger *slog.Logger, revealTokens bool) (*LogNotifier, error) {
	if logger == nil {
		return nil, oops.Code("NOTIFIER_CONFIG_INVALID").Errorf("logger is required")
	}
	return &LogNotifier{logger: logger, revealTokens: revealTokens}, nil
}

// Notify logs n at Info level.
func (l *LogNotifier) Notify(ctx context.Context, n auth.Notification) error {
	attrs := []any{
		"kind", string(n.Kind),
		"user_id", n.UserID.String(),
		"email", n.Email,
	}
	if n.Token != "" {
		token := "[redacted]"
		if l.revealTokens {
			token = n.Token
		}
		attrs = append(attrs, "token", token)
	}
	if n.ExpiresAt != nil {
		attrs = append(attrs, "expires_at", n.ExpiresAt.UTC())
	}
	l.logger.InfoContext(ctx, "notification", attrs...)
	return nil
}
