// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package memstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasklane/tasklane/internal/auth"
	"github.com/tasklane/tasklane/internal/auth/memstore"
)

func issueReset(t *testing.T, s *memstore.Store) *auth.OneTimeToken {
	t.Helper()
	token, _, err := auth.NewOneTimeToken(ulid.Make(), auth.PurposePasswordReset, time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.ResetTokens.Issue(context.Background(), token))
	return token
}

func TestTransactor_FailedFnKeepsWrites(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	token := issueReset(t, s)
	now := time.Now().UTC()

	errBoom := errors.New("boom")
	err := s.Transactor.InTransaction(ctx, func(ctx context.Context) error {
		_, cerr := s.ResetTokens.Consume(ctx, token.TokenHash, now)
		require.NoError(t, cerr)
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	_, err = s.ResetTokens.Consume(ctx, token.TokenHash, now)
	require.ErrorIs(t, err, auth.ErrTokenUsed, "no rollback: the token stays consumed")
}

func TestOneTimeTokens_LookupDoesNotConsume(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	token := issueReset(t, s)
	now := time.Now().UTC()

	got, err := s.ResetTokens.Lookup(ctx, token.TokenHash, now)
	require.NoError(t, err)
	assert.Equal(t, token.UserID, got)

	got, err = s.ResetTokens.Consume(ctx, token.TokenHash, now)
	require.NoError(t, err)
	assert.Equal(t, token.UserID, got)

	_, err = s.ResetTokens.Lookup(ctx, token.TokenHash, now)
	require.ErrorIs(t, err, auth.ErrTokenUsed)

	_, err = s.ResetTokens.Lookup(ctx, "missing", now)
	require.ErrorIs(t, err, auth.ErrTokenNotFound)
}
