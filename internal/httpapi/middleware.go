// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tasklane/tasklane/internal/auth"
	"github.com/tasklane/tasklane/internal/logging"
	"github.com/tasklane/tasklane/internal/observability"
)

type claimsKey struct{}

var (
	errMissingAuthorization = errors.New("missing authorization")
	errInvalidAuthorization = errors.New("invalid authorization")
)

// requestContext copies the chi request id into the logging context and
// echoes it to the caller.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := middleware.GetReqID(r.Context())
		if id != "" {
			w.Header().Set("X-Request-Id", id)
			r = r.WithContext(logging.WithRequestID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// instrument logs each request and records it in metrics under its route
// pattern, so path parameters do not explode label cardinality.
func instrument(logger *slog.Logger, metrics *observability.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			elapsed := time.Since(start)
			metrics.Observe(route, status, elapsed)

			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.Log(r.Context(), level, "http request",
				"method", r.Method,
				"route", route,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", elapsed.Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}

// bearerToken extracts the token of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errMissingAuthorization
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errInvalidAuthorization
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errInvalidAuthorization
	}
	return token, nil
}

// requireAuth authenticates the bearer access token and checks that its role
// holds action on resource. The verified claims are stored in the context.
func (h *handlers) requireAuth(action, resource string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="tasklane"`)
				writeError(w, http.StatusUnauthorized, errorBody{
					Kind:    auth.KindUnauthorized.String(),
					Message: auth.MsgInvalidToken,
				})
				return
			}

			claims, err := h.svc.Authenticate(r.Context(), token)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="tasklane", error="invalid_token"`)
				h.fail(w, r, err)
				return
			}
			if err := h.svc.Authorize(claims, action, resource); err != nil {
				h.fail(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// claimsFrom returns the claims stored by requireAuth.
func claimsFrom(ctx context.Context) (*auth.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*auth.AccessClaims)
	return claims, ok && claims != nil
}

// clientInfo describes the caller for the audit ledger. RemoteAddr has been
// rewritten by middleware.RealIP when a proxy header is present.
func clientInfo(r *http.Request) auth.ClientInfo {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	ua := r.UserAgent()
	if len(ua) > maxUserAgentLen {
		ua = ua[:maxUserAgentLen]
	}
	return auth.ClientInfo{IPAddress: ip, UserAgent: ua}
}

const maxUserAgentLen = 512
