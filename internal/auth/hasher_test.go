// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tasklane/tasklane/internal/auth"
	"github.com/tasklane/tasklane/pkg/errutil"
)

func TestHashPassword(t *testing.T) {
	hasher := fastHasher()

	t.Run("produces valid hash", func(t *testing.T) {
		hash, err := hasher.Hash("password123")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$"))
	})

	t.Run("same password produces different hashes (salt)", func(t *testing.T) {
		hash1, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		hash2, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		assert.NotEqual(t, hash1, hash2)
	})

	t.Run("rejects empty password", func(t *testing.T) {
		_, err := hasher.Hash("")
		errutil.AssertErrorCode(t, err, "AUTH_EMPTY_PASSWORD")
	})
}

func TestVerifyPassword(t *testing.T) {
	hasher := fastHasher()

	t.Run("round trip", func(t *testing.T) {
		for _, pw := range []string{"ValidPass123!", "correct horse battery staple 9", "пароль12345"} {
			hash, err := hasher.Hash(pw)
			require.NoError(t, err)

			ok, err := hasher.Verify(pw, hash)
			require.NoError(t, err)
			assert.True(t, ok, pw)

			ok, err = hasher.Verify(pw+"x", hash)
			require.NoError(t, err)
			assert.False(t, ok, pw)
		}
	})

	tests := []struct {
		name     string
		hash     string
		contains string
	}{
		{"invalid hash format", "not-a-valid-hash", "invalid hash format"},
		{"wrong algorithm", "$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA", "unsupported hash algorithm"},
		{"invalid version format", "$argon2id$vXX$m=65536,t=1,p=4$c2FsdA$aGFzaA", ""},
		{"invalid parameters format", "$argon2id$v=19$invalid$c2FsdA$aGFzaA", ""},
		{"invalid salt base64", "$argon2id$v=19$m=65536,t=1,p=4$!!!invalid!!!$aGFzaA", ""},
		{"invalid hash base64", "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$!!!invalid!!!", ""},
		{"threads overflow", "$argon2id$v=19$m=65536,t=1,p=256$c2FsdA$aGFzaA", "threads value"},
		{"zero iterations", "$argon2id$v=19$m=65536,t=0,p=4$c2FsdA$aGFzaA", "iterations value"},
		{"zero memory", "$argon2id$v=19$m=0,t=1,p=4$c2FsdA$aGFzaA", "memory value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := hasher.Verify("password", tt.hash)
			errutil.AssertErrorCode(t, err, "AUTH_INVALID_HASH")
			if tt.contains != "" {
				assert.Contains(t, err.Error(), tt.contains)
			}
		})
	}
}

func TestVerifyBcryptLegacy(t *testing.T) {
	hasher := fastHasher()

	legacy, err := bcrypt.GenerateFromPassword([]byte("LegacyPass1"), bcrypt.MinCost)
	require.NoError(t, err)

	t.Run("legacy hash verifies", func(t *testing.T) {
		ok, err := hasher.Verify("LegacyPass1", string(legacy))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("legacy mismatch is not an error", func(t *testing.T) {
		ok, err := hasher.Verify("WrongPass1", string(legacy))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("legacy hash needs rehash", func(t *testing.T) {
		assert.True(t, hasher.NeedsRehash(string(legacy)))
	})
}

func TestNeedsRehash(t *testing.T) {
	hasher := fastHasher()

	hash, err := hasher.Hash("ValidPass123!")
	require.NoError(t, err)
	assert.False(t, hasher.NeedsRehash(hash))

	stronger := auth.NewArgon2idHasher(auth.Argon2Params{Memory: 2048, Time: 1, Threads: 1}, auth.DefaultPasswordPolicy)
	assert.True(t, stronger.NeedsRehash(hash))
	assert.True(t, hasher.NeedsRehash("garbage"))
}

func TestDummyHash(t *testing.T) {
	hasher := fastHasher()

	dummy := hasher.DummyHash()
	assert.Equal(t, dummy, hasher.DummyHash())
	assert.False(t, hasher.NeedsRehash(dummy), "dummy hash uses the configured parameters")

	ok, err := hasher.Verify("ValidPass123!", dummy)
	require.NoError(t, err)
	assert.False(t, ok)
}
