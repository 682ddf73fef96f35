// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

// Package auth implements the Tasklane credential and session lifecycle.
//
// # Domain Types
//
// Domain types should be created using their constructors:
//   - NewUser - creates an active, unverified User with a validated username
//   - NewRefreshToken - builds the stored row of an issued refresh token
//   - NewOneTimeToken - creates a reset or verification token and its plaintext
//
// Stores only ever see token digests (HashToken); plaintext tokens are handed
// to the caller or to the NotificationPort and never persisted.
//
// # Coordinator
//
// Coordinator is the only writer of password hashes, email verification
// state and the token tables. It is created with NewCoordinator, which
// validates its Deps. Every operation returns *Error on failure; KindOf maps
// any error to the Kind used at the API boundary.
//
// Side effects that must not fail a request (notifications, most audit
// rows) run through a Dispatcher after the store mutation commits.
package auth
