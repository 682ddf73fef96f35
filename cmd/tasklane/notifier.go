// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package main

import (
	"log/slog"

	"github.com/samber/oops"

	"github.com/tasklane/tasklane/internal/auth"
	"github.com/tasklane/tasklane/internal/config"
	"github.com/tasklane/tasklane/internal/notify"
)

// buildNotifier creates the configured notifier wrapped with retries. The
// returned close function releases broker connections.
func buildNotifier(cfg *config.Config, logger *slog.Logger) (auth.NotificationPort, func() error, error) {
	var (
		next    auth.NotificationPort
		closeFn = func() error { return nil }
	)

	switch cfg.Notify.Driver {
	case config.NotifierLog:
		ln, err := notify.NewLogNotifier(logger, cfg.Notify.RevealTokens)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Notify.RevealTokens {
			logger.Warn("log notifier reveals raw tokens, do not use in production")
		}
		next = ln
	case config.NotifierAMQP:
		an, err := notify.NewAMQPNotifier(notify.AMQPConfig{
			URL:          cfg.Secrets.AMQPURL,
			Queue:        cfg.Notify.Queue,
			QueueDurable: true,
		})
		if err != nil {
			return nil, nil, oops.With("operation", "connect to broker").Wrap(err)
		}
		next = an
		closeFn = an.Close
	default:
		return nil, nil, oops.Code("CONFIG_INVALID").With("field", "notify.driver").
			Errorf("unknown notification driver %q", cfg.Notify.Driver)
	}

	retrying, err := notify.NewRetryingNotifier(next, notify.RetryConfig{
		MaxRetries: cfg.Notify.MaxRetries,
		Base:       cfg.Notify.RetryBase,
		Cap:        cfg.Notify.RetryCap,
	}, logger)
	if err != nil {
		_ = closeFn() //nolint:errcheck // construction error takes precedence
		return nil, nil, err
	}
	return retrying, closeFn, nil
}
