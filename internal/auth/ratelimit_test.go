// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tasklane/tasklane/internal/auth"
)

func TestRateLimits_IsLockedOut(t *testing.T) {
	limits := auth.DefaultRateLimits()

	tests := []struct {
		failures int
		locked   bool
	}{
		{0, false},
		{1, false},
		{6, false},
		{7, true},
		{20, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.locked, limits.IsLockedOut(tt.failures), "failures=%d", tt.failures)
	}

	t.Run("zero threshold disables lockout", func(t *testing.T) {
		disabled := auth.RateLimits{LockoutThreshold: 0}
		assert.False(t, disabled.IsLockedOut(1000))
	})
}

func TestRateLimits_OneTimeTokenThrottled(t *testing.T) {
	limits := auth.DefaultRateLimits()

	assert.False(t, limits.OneTimeTokenThrottled(0))
	assert.False(t, limits.OneTimeTokenThrottled(2))
	assert.True(t, limits.OneTimeTokenThrottled(3))
	assert.True(t, limits.OneTimeTokenThrottled(4))
}
