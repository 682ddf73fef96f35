// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/tasklane/tasklane/internal/auth"
	"github.com/tasklane/tasklane/internal/auth/memstore"
	"github.com/tasklane/tasklane/internal/observability"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// apiFixture is an API server backed by a Coordinator on in-memory stores.
type apiFixture struct {
	handler http.Handler
	store   *memstore.Store
	outbox  *memstore.Outbox
	metrics *observability.HTTPMetrics
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	store := memstore.New()
	outbox := &memstore.Outbox{}
	codec, err := auth.NewTokenCodec(auth.TokenCodecConfig{SigningKey: []byte("0123456789abcdef0123456789abcdef")})
	require.NoError(t, err)

	coord, err := auth.NewCoordinator(auth.Deps{
		Users:              store.Users,
		RefreshTokens:      store.RefreshTokens,
		ResetTokens:        store.ResetTokens,
		VerificationTokens: store.VerificationTokens,
		Ledger:             store.Ledger,
		Notifier:           outbox,
		Dispatcher:         auth.NewInlineDispatcher(discardLogger()),
		Transactor:         store.Transactor,
		Hasher:             auth.NewArgon2idHasher(auth.Argon2Params{Memory: 1024, Time: 1, Threads: 1}, auth.DefaultPasswordPolicy),
		Codec:              codec,
		Logger:             discardLogger(),
	}, auth.Options{})
	require.NoError(t, err)

	metrics := observability.NewHTTPMetrics(prometheus.NewRegistry())
	srv, err := NewServer(Config{}, coord, discardLogger(), metrics)
	require.NoError(t, err)
	return &apiFixture{handler: srv.Handler(), store: store, outbox: outbox, metrics: metrics}
}

// do sends a JSON request and returns the recorder.
func (f *apiFixture) do(t *testing.T, method, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "httpapi-test")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

// signup creates an account and returns its tokens.
func (f *apiFixture) signup(t *testing.T, email, username, password string) auth.AuthResponse {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/auth/signup", map[string]string{
		"email": email, "username": username, "password": password,
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[auth.AuthResponse](t, rec)
}
