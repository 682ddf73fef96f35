// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

// Package notify provides auth.NotificationPort implementations: a logging
// notifier for local development, an AMQP publisher that hands messages to
// the mail service, and a retrying decorator.
package notify
