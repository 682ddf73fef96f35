// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package auth_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasklane/tasklane/internal/auth"
	"github.com/tasklane/tasklane/internal/auth/memstore"
)

var testSigningKey = []byte("0123456789abcdef0123456789abcdef")

// fastHasher keeps argon2id cheap enough for unit tests.
func fastHasher() *auth.Argon2idHasher {
	return auth.NewArgon2idHasher(auth.Argon2Params{Memory: 1024, Time: 1, Threads: 1}, auth.DefaultPasswordPolicy)
}

func testCodec(t *testing.T) *auth.TokenCodec {
	t.Helper()
	codec, err := auth.NewTokenCodec(auth.TokenCodecConfig{SigningKey: testSigningKey})
	require.NoError(t, err)
	return codec
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixture is a Coordinator wired to in-memory stores.
type fixture struct {
	coord  *auth.Coordinator
	store  *memstore.Store
	outbox *memstore.Outbox
}

func newFixture(t *testing.T, opts ...func(*auth.Options)) *fixture {
	t.Helper()
	store := memstore.New()
	outbox := &memstore.Outbox{}
	var o auth.Options
	for _, fn := range opts {
		fn(&o)
	}
	coord, err := auth.NewCoordinator(auth.Deps{
		Users:              store.Users,
		RefreshTokens:      store.RefreshTokens,
		ResetTokens:        store.ResetTokens,
		VerificationTokens: store.VerificationTokens,
		Ledger:             store.Ledger,
		Notifier:           outbox,
		Dispatcher:         auth.NewInlineDispatcher(discardLogger()),
		Transactor:         store.Transactor,
		Hasher:             fastHasher(),
		Codec:              testCodec(t),
		Logger:             discardLogger(),
	}, o)
	require.NoError(t, err)
	return &fixture{coord: coord, store: store, outbox: outbox}
}

// assertKind asserts err is an *auth.Error of kind with message msg. An
// empty msg skips the message check.
func assertKind(t *testing.T, err error, kind auth.Kind, msg string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, auth.KindOf(err), "kind of %v", err)
	if msg != "" {
		var authErr *auth.Error
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, msg, authErr.Message)
	}
}

func withLimits(l auth.RateLimits) func(*auth.Options) {
	return func(o *auth.Options) { o.RateLimits = l }
}

func withClock(now func() time.Time) func(*auth.Options) {
	return func(o *auth.Options) { o.Now = now }
}
