// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package auth_test

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasklane/tasklane/internal/auth"
	"github.com/tasklane/tasklane/pkg/errutil"
)

func TestNewOneTimeToken(t *testing.T) {
	userID := ulid.Make()

	token, plaintext, err := auth.NewOneTimeToken(userID, auth.PurposePasswordReset, auth.ResetTokenExpiry)
	require.NoError(t, err)
	assert.Len(t, plaintext, 2*auth.OneTimeTokenBytes)
	assert.Equal(t, auth.HashToken(plaintext), token.TokenHash)
	assert.True(t, auth.VerifyTokenHash(plaintext, token.TokenHash))
	assert.NotContains(t, token.TokenHash, plaintext)
	assert.WithinDuration(t, time.Now().Add(time.Hour), token.ExpiresAt, 5*time.Second)

	t.Run("zero user", func(t *testing.T) {
		_, _, err := auth.NewOneTimeToken(ulid.ULID{}, auth.PurposePasswordReset, time.Hour)
		errutil.AssertErrorCode(t, err, "ONE_TIME_TOKEN_INVALID")
	})

	t.Run("non-positive ttl", func(t *testing.T) {
		_, _, err := auth.NewOneTimeToken(userID, auth.PurposeEmailVerification, 0)
		errutil.AssertErrorCode(t, err, "ONE_TIME_TOKEN_INVALID")
	})
}

func TestOneTimeToken_State(t *testing.T) {
	now := time.Now()
	later := now.Add(time.Minute)

	tests := []struct {
		name  string
		token auth.OneTimeToken
		state auth.TokenState
		err   error
	}{
		{"valid", auth.OneTimeToken{ExpiresAt: later}, auth.TokenValid, nil},
		{"used", auth.OneTimeToken{ExpiresAt: later, IsUsed: true}, auth.TokenUsed, auth.ErrTokenUsed},
		{"superseded", auth.OneTimeToken{ExpiresAt: later, SupersededAt: &now}, auth.TokenSuperseded, auth.ErrTokenSuperseded},
		{"expired", auth.OneTimeToken{ExpiresAt: now}, auth.TokenExpired, auth.ErrTokenExpired},
		{"used wins over expired", auth.OneTimeToken{ExpiresAt: now.Add(-time.Hour), IsUsed: true}, auth.TokenUsed, auth.ErrTokenUsed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := tt.token.State(now)
			assert.Equal(t, tt.state, state)
			assert.Equal(t, tt.err, state.Err())
		})
	}
}

func TestVerifyTokenHash(t *testing.T) {
	token, hash, err := auth.GenerateOneTimeToken()
	require.NoError(t, err)

	assert.True(t, auth.VerifyTokenHash(token, hash))
	assert.False(t, auth.VerifyTokenHash(token+"0", hash))
	assert.False(t, auth.VerifyTokenHash("", hash))
	assert.False(t, auth.VerifyTokenHash(token, ""))
}

func TestNewRefreshToken(t *testing.T) {
	userID := ulid.Make()
	issued := auth.IssuedToken{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}

	row, err := auth.NewRefreshToken(userID, issued, 1)
	require.NoError(t, err)
	assert.Equal(t, auth.HashToken("tok"), row.TokenHash)
	assert.True(t, row.IsValid(time.Now()))
	assert.False(t, row.IsValid(issued.ExpiresAt))

	row.IsRevoked = true
	assert.False(t, row.IsValid(time.Now()))

	_, err = auth.NewRefreshToken(userID, issued, 0)
	errutil.AssertErrorCode(t, err, "REFRESH_TOKEN_INVALID")
}
