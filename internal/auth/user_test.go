// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package auth_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasklane/tasklane/internal/auth"
	"github.com/tasklane/tasklane/pkg/errutil"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		username string
		valid    bool
	}{
		{"u", false},
		{"u1", true},
		{"alice.smith-2", true},
		{"9lives", false},
		{"has space", false},
		{strings.Repeat("a", auth.MaxUsernameLength), true},
		{strings.Repeat("a", auth.MaxUsernameLength+1), false},
		{"", false},
	}
	for _, tt := range tests {
		err := auth.ValidateUsername(tt.username)
		if tt.valid {
			assert.NoError(t, err, tt.username)
		} else {
			errutil.AssertErrorCode(t, err, "AUTH_INVALID_USERNAME")
		}
	}
}

func TestNewUser(t *testing.T) {
	u, err := auth.NewUser("  Alice@Example.COM ", "alice", "hash", auth.RoleMember, "")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.True(t, u.IsActive)
	assert.False(t, u.EmailVerified)
	assert.Equal(t, auth.TierFree, u.Tier)
	assert.False(t, u.ID.IsZero())

	_, err = auth.NewUser("a@b.c", "alice", "", auth.RoleMember, auth.TierFree)
	require.Error(t, err)

	_, err = auth.NewUser("a@b.c", "alice", "hash", auth.Role(0), auth.TierFree)
	errutil.AssertErrorCode(t, err, "AUTH_UNKNOWN_ROLE")
}

func TestError(t *testing.T) {
	cause := errors.New("boom")
	err := &auth.Error{Kind: auth.KindValidation, Message: "validation failed", Fields: map[string]string{
		"password": "too short",
		"email":    "invalid",
	}}
	assert.Equal(t, "validation failed (email: invalid; password: too short)", err.Error())
	assert.Equal(t, auth.KindValidation, auth.KindOf(err))
	assert.Equal(t, auth.KindInternal, auth.KindOf(cause))
	assert.Equal(t, "validation_error", auth.KindValidation.String())
	assert.Equal(t, "internal_error", auth.Kind(200).String())
}
