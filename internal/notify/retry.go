// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/tasklane/tasklane/internal/auth"
)

// RetryConfig controls RetryingNotifier backoff.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries uint64
	// Base is the first backoff interval; it doubles on every retry.
	Base time.Duration
	// Cap bounds a single backoff interval.
	Cap time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.Base <= 0 {
		c.Base = 100 * time.Millisecond
	}
	if c.Cap <= 0 {
		c.Cap = 2 * time.Second
	}
	return c
}

// RetryingNotifier retries a failed delivery with capped exponential
// backoff and jitter.
type RetryingNotifier struct {
	next   auth.NotificationPort
	cfg    RetryConfig
	logger *slog.Logger
}

var _ auth.NotificationPort = (*RetryingNotifier)(nil)

// NewRetryingNotifier wraps next.
func NewRetryingNotifier(next auth.NotificationPort, cfg RetryConfig, logger *slog.Logger) (*RetryingNotifier, error) {
	if next == nil {
		return nil, oops.Code("NOTIFIER_CONFIG_INVALID").Errorf("wrapped notifier is required")
	}
	if logger == nil {
		return nil, oops.Code("NOTIFIER_CONFIG_INVALID").Errorf("logger is required")
	}
	return &RetryingNotifier{next: next, cfg: cfg.withDefaults(), logger: logger}, nil
}

func (r *RetryingNotifier) backoff() retry.Backoff {
	b := retry.NewExponential(r.cfg.Base)
	b = retry.WithJitterPercent(20, b)
	b = retry.WithCappedDuration(r.cfg.Cap, b)
	return retry.WithMaxRetries(r.cfg.MaxRetries, b)
}

// Notify delivers n, retrying until it succeeds, retries run out or ctx is
// done. The last delivery error is returned.
func (r *RetryingNotifier) Notify(ctx context.Context, n auth.Notification) error {
	attempt := 0
	err := retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		attempt++
		if err := r.next.Notify(ctx, n); err != nil {
			r.logger.DebugContext(ctx, "notification delivery failed",
				"kind", string(n.Kind),
				"attempt", attempt,
				"error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("NOTIFICATION_RETRIES_EXHAUSTED").
			With("kind", string(n.Kind)).
			With("attempts", attempt).
			Wrap(err)
	}
	return nil
}
