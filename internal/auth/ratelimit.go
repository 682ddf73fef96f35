// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package auth

import (
	"time"
)

// Rate limiting defaults.
const (
	// DefaultLockoutThreshold is the number of failed signins within the
	// lockout window that locks an identifier.
	DefaultLockoutThreshold = 7

	// DefaultLockoutWindow is how far back failed signins are counted.
	DefaultLockoutWindow = 15 * time.Minute

	// DefaultOneTimeTokenLimit is the number of reset or verification tokens
	// that may be issued per user within the one-time token window.
	DefaultOneTimeTokenLimit = 3

	// DefaultOneTimeTokenWindow is the one-time token rate limit window.
	DefaultOneTimeTokenWindow = 5 * time.Minute
)

// RateLimits configures signin lockout and one-time token throttling.
// A zero LockoutThreshold disables signin lockout.
type RateLimits struct {
	LockoutThreshold   int
	LockoutWindow      time.Duration
	OneTimeTokenLimit  int
	OneTimeTokenWindow time.Duration
}

// DefaultRateLimits returns the default limits.
func DefaultRateLimits() RateLimits {
	return RateLimits{
		LockoutThreshold:   DefaultLockoutThreshold,
		LockoutWindow:      DefaultLockoutWindow,
		OneTimeTokenLimit:  DefaultOneTimeTokenLimit,
		OneTimeTokenWindow: DefaultOneTimeTokenWindow,
	}
}

func (r RateLimits) withDefaults() RateLimits {
	if r.LockoutWindow <= 0 {
		r.LockoutWindow = DefaultLockoutWindow
	}
	if r.OneTimeTokenLimit <= 0 {
		r.OneTimeTokenLimit = DefaultOneTimeTokenLimit
	}
	if r.OneTimeTokenWindow <= 0 {
		r.OneTimeTokenWindow = DefaultOneTimeTokenWindow
	}
	return r
}

// IsLockedOut reports whether failures recorded within the lockout window
// reach the threshold.
func (r RateLimits) IsLockedOut(failures int) bool {
	return r.LockoutThreshold > 0 && failures >= r.LockoutThreshold
}

// OneTimeTokenThrottled reports whether issued tokens within the window have
// reached the limit.
func (r RateLimits) OneTimeTokenThrottled(issued int) bool {
	return issued >= r.OneTimeTokenLimit
}
