// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasklane/tasklane/internal/auth"
)

const validPassword = "ValidPass123!"

func TestSignupAndSignin(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.signup(t, "u@e.com", "u1", validPassword)
	assert.Equal(t, "u@e.com", resp.User.Email)
	assert.False(t, resp.User.EmailVerified)
	assert.NotEmpty(t, resp.Tokens.AccessToken)
	assert.True(t, resp.Tokens.ShouldRefreshAt.Before(resp.Tokens.AccessTokenExpiresAt))

	rec := f.do(t, http.MethodPost, "/auth/signin", map[string]string{
		"identifier": "U@E.com", "password": validPassword,
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "u1", decodeBody[auth.AuthResponse](t, rec).User.Username)
}

func TestSignupConflict(t *testing.T) {
	f := newAPIFixture(t)
	f.signup(t, "u@e.com", "u1", validPassword)

	rec := f.do(t, http.MethodPost, "/auth/signup", map[string]string{
		"email": "u@e.com", "username": "other", "password": validPassword,
	}, "")
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody[errorResponse](t, rec)
	assert.Equal(t, "conflict", body.Error.Kind)
	assert.Equal(t, auth.MsgEmailOrUsernameTaken, body.Error.Message)
}

func TestSignupValidation(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name       string
		body       map[string]string
		wantFields []string
	}{
		{
			name:       "missing fields",
			body:       map[string]string{"email": "u@e.com"},
			wantFields: []string{"username", "password"},
		},
		{
			name:       "coordinator rules",
			body:       map[string]string{"email": "not-an-email", "username": "u1", "password": "short"},
			wantFields: []string{"email", "password"},
		},
		{
			name:       "oversized password",
			body:       map[string]string{"email": "u@e.com", "username": "u1", "password": strings.Repeat("a", 1025)},
			wantFields: []string{"password"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/auth/signup", tt.body, "")
			require.Equal(t, http.StatusBadRequest, rec.Code)
			body := decodeBody[errorResponse](t, rec)
			assert.Equal(t, "validation_error", body.Error.Kind)
			assert.Equal(t, auth.MsgValidationFailed, body.Error.Message)
			for _, field := range tt.wantFields {
				assert.Contains(t, body.Error.Fields, field)
			}
		})
	}
}

func TestSigninInvalidCredentials(t *testing.T) {
	f := newAPIFixture(t)
	f.signup(t, "u@e.com", "u1", validPassword)

	wrong := f.do(t, http.MethodPost, "/auth/signin", map[string]string{
		"identifier": "u@e.com", "password": "WrongPass123!",
	}, "")
	unknown := f.do(t, http.MethodPost, "/auth/signin", map[string]string{
		"identifier": "nobody@e.com", "password": validPassword,
	}, "")

	require.Equal(t, http.StatusUnauthorized, wrong.Code)
	require.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
}

func TestRefreshRotatesAndRejectsReuse(t *testing.T) {
	f := newAPIFixture(t)
	resp := f.signup(t, "u@e.com", "u1", validPassword)

	rec := f.do(t, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": resp.Tokens.RefreshToken}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	next := decodeBody[auth.TokenPair](t, rec)
	assert.NotEqual(t, resp.Tokens.RefreshToken, next.RefreshToken)

	reuse := f.do(t, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": resp.Tokens.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, reuse.Code)

	again := f.do(t, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": next.RefreshToken}, "")
	assert.Equal(t, http.StatusOK, again.Code)
}

func TestSignoutIsIdempotent(t *testing.T) {
	f := newAPIFixture(t)
	resp := f.signup(t, "u@e.com", "u1", validPassword)
	body := map[string]string{"refresh_token": resp.Tokens.RefreshToken}

	first := f.do(t, http.MethodPost, "/auth/signout", body, "")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, auth.MsgLoggedOut, decodeBody[auth.MessageResponse](t, first).Message)

	second := f.do(t, http.MethodPost, "/auth/signout", body, "")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, auth.MsgAlreadyLoggedOut, decodeBody[auth.MessageResponse](t, second).Message)
}

func TestSignoutAllRequiresBearer(t *testing.T) {
	f := newAPIFixture(t)
	resp := f.signup(t, "u@e.com", "u1", validPassword)
	f.do(t, http.MethodPost, "/auth/signin", map[string]string{"identifier": "u1", "password": validPassword}, "")

	rec := f.do(t, http.MethodPost, "/auth/signout-all", nil, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	rec = f.do(t, http.MethodPost, "/auth/signout-all", nil, "not-a-jwt")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, auth.MsgInvalidToken, decodeBody[errorResponse](t, rec).Error.Message)

	rec = f.do(t, http.MethodPost, "/auth/signout-all", nil, resp.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(2), decodeBody[revokedResponse](t, rec).Revoked)
}

func TestPasswordResetFlow(t *testing.T) {
	f := newAPIFixture(t)
	f.signup(t, "u@e.com", "u1", validPassword)

	known := f.do(t, http.MethodPost, "/auth/password-reset/request", map[string]string{"email": "u@e.com"}, "")
	unknown := f.do(t, http.MethodPost, "/auth/password-reset/request", map[string]string{"email": "ghost@e.com"}, "")
	require.Equal(t, http.StatusAccepted, known.Code)
	require.Equal(t, http.StatusAccepted, unknown.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())

	n, ok := f.outbox.Last(auth.NotifyPasswordReset, "u@e.com")
	require.True(t, ok)

	confirm := map[string]string{"token": n.Token, "new_password": "NewValidPass456!"}
	rec := f.do(t, http.MethodPost, "/auth/password-reset/confirm", confirm, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, auth.MsgPasswordReset, decodeBody[auth.MessageResponse](t, rec).Message)

	rec = f.do(t, http.MethodPost, "/auth/password-reset/confirm", confirm, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, auth.MsgInvalidResetToken, decodeBody[errorResponse](t, rec).Error.Message)

	rec = f.do(t, http.MethodPost, "/auth/signin", map[string]string{"identifier": "u1", "password": "NewValidPass456!"}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEmailVerificationFlow(t *testing.T) {
	f := newAPIFixture(t)
	resp := f.signup(t, "u@e.com", "u1", validPassword)

	rec := f.do(t, http.MethodPost, "/auth/verify-email", map[string]string{"token": "garbage"}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, auth.MsgInvalidVerificationToken, decodeBody[errorResponse](t, rec).Error.Message)

	rec = f.do(t, http.MethodPost, "/auth/send-verification", nil, resp.Tokens.AccessToken)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	n, ok := f.outbox.Last(auth.NotifyEmailVerification, "u@e.com")
	require.True(t, ok)
	rec = f.do(t, http.MethodPost, "/auth/verify-email", map[string]string{"token": n.Token}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, auth.MsgEmailVerified, decodeBody[auth.MessageResponse](t, rec).Message)

	rec = f.do(t, http.MethodPost, "/auth/resend-verification", map[string]string{"email": "u@e.com"}, "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, auth.MsgVerificationRequested, decodeBody[auth.MessageResponse](t, rec).Message)
}

func TestChangePasswordAndDeleteAccount(t *testing.T) {
	f := newAPIFixture(t)
	resp := f.signup(t, "u@e.com", "u1", validPassword)
	token := resp.Tokens.AccessToken

	rec := f.do(t, http.MethodPost, "/auth/password/change", map[string]string{
		"current_password": "WrongPass123!", "new_password": "NewValidPass456!",
	}, token)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/auth/password/change", map[string]string{
		"current_password": validPassword, "new_password": "NewValidPass456!",
	}, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, auth.MsgPasswordChanged, decodeBody[auth.MessageResponse](t, rec).Message)

	rec = f.do(t, http.MethodDelete, "/auth/account", map[string]string{"password": "NewValidPass456!"}, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, auth.MsgAccountDeleted, decodeBody[auth.MessageResponse](t, rec).Message)

	rec = f.do(t, http.MethodPost, "/auth/signin", map[string]string{"identifier": "u1", "password": "NewValidPass456!"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDecodeErrors(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{name: "empty body", body: "", wantMsg: "request body is required"},
		{name: "malformed", body: "{", wantMsg: "request body is not valid JSON"},
		{name: "wrong type", body: `{"email": 42}`, wantMsg: `field "email" has the wrong type`},
		{name: "unknown field", body: `{"email": "u@e.com", "admin": true}`, wantMsg: `unknown field "admin"`},
		{name: "trailing object", body: `{"email": "u@e.com"} {}`, wantMsg: "request body must contain a single JSON object"},
		{name: "too large", body: `{"email": "` + strings.Repeat("a", maxBodyBytes) + `"}`, wantMsg: "request body is too large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/auth/password-reset/request", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			f.handler.ServeHTTP(rec, req)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			body := decodeBody[errorResponse](t, rec)
			assert.Equal(t, "validation_error", body.Error.Kind)
			assert.Equal(t, tt.wantMsg, body.Error.Message)
		})
	}
}

func TestUnknownRoute(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/auth/signin", nil, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRequestIDAndMetrics(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/signout", strings.NewReader(`{"refresh_token":"x"}`))
	req.Header.Set("X-Request-Id", "req-123")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get("X-Request-Id"))
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.RequestsTotal.WithLabelValues("/auth/signout", "200")), 0)
}

// stubService fails every call it overrides with err.
type stubService struct {
	Service
	err error
}

func (s stubService) Signin(context.Context, string, string, auth.ClientInfo) (*auth.AuthResponse, error) {
	return nil, s.err
}

func TestFailHidesInternalDetail(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
		wantMsg    string
	}{
		{
			name:       "unclassified error",
			err:        errors.New("pq: connection reset by peer"),
			wantStatus: http.StatusInternalServerError,
			wantKind:   "internal_error",
			wantMsg:    auth.MsgInternal,
		},
		{
			name:       "internal auth error",
			err:        &auth.Error{Kind: auth.KindInternal, Message: "db down", Fields: map[string]string{"x": "y"}},
			wantStatus: http.StatusInternalServerError,
			wantKind:   "internal_error",
			wantMsg:    auth.MsgInternal,
		},
		{
			name:       "forbidden",
			err:        &auth.Error{Kind: auth.KindForbidden, Message: auth.MsgForbidden},
			wantStatus: http.StatusForbidden,
			wantKind:   "forbidden",
			wantMsg:    auth.MsgForbidden,
		},
		{
			name:       "not found",
			err:        &auth.Error{Kind: auth.KindNotFound, Message: auth.MsgUserNotFound},
			wantStatus: http.StatusNotFound,
			wantKind:   "not_found",
			wantMsg:    auth.MsgUserNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, err := NewServer(Config{}, stubService{err: tt.err}, discardLogger(), nil)
			require.NoError(t, err)

			req := httptest.NewRequest(http.MethodPost, "/auth/signin",
				strings.NewReader(`{"identifier":"u1","password":"ValidPass123!"}`))
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			body := decodeBody[errorResponse](t, rec)
			assert.Equal(t, tt.wantKind, body.Error.Kind)
			assert.Equal(t, tt.wantMsg, body.Error.Message)
			if tt.wantKind == "internal_error" {
				assert.Empty(t, body.Error.Fields)
			}
		})
	}
}

func TestNewServerValidation(t *testing.T) {
	_, err := NewServer(Config{}, nil, discardLogger(), nil)
	require.Error(t, err)

	_, err = NewServer(Config{}, stubService{}, nil, nil)
	require.Error(t, err)
}
