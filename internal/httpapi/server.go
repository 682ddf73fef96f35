// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

// Package httpapi exposes the auth Coordinator as a JSON REST API.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/tasklane/tasklane/internal/auth"
	"github.com/tasklane/tasklane/internal/observability"
)

// Service is the subset of *auth.Coordinator the API calls.
type Service interface {
	Signup(ctx context.Context, req auth.SignupRequest) (*auth.AuthResponse, error)
	Signin(ctx context.Context, identifier, password string, client auth.ClientInfo) (*auth.AuthResponse, error)
	Signout(ctx context.Context, refreshToken string) (*auth.MessageResponse, error)
	SignoutAllDevices(ctx context.Context, userID ulid.ULID, client auth.ClientInfo) (int64, error)
	RefreshAccessToken(ctx context.Context, refreshToken string) (*auth.TokenPair, error)
	RequestPasswordReset(ctx context.Context, email string, client auth.ClientInfo) (*auth.MessageResponse, error)
	ResetPassword(ctx context.Context, token, newPassword string, client auth.ClientInfo) (*auth.MessageResponse, error)
	ChangePassword(ctx context.Context, userID ulid.ULID, current, next string, client auth.ClientInfo) (*auth.MessageResponse, error)
	DeleteAccount(ctx context.Context, userID ulid.ULID, password string, client auth.ClientInfo) (*auth.MessageResponse, error)
	SendVerificationEmail(ctx context.Context, userID ulid.ULID, client auth.ClientInfo) (*auth.MessageResponse, error)
	VerifyEmail(ctx context.Context, token string, client auth.ClientInfo) (*auth.MessageResponse, error)
	ResendVerificationEmail(ctx context.Context, email string, client auth.ClientInfo) (*auth.MessageResponse, error)
	Authenticate(ctx context.Context, accessToken string) (*auth.AccessClaims, error)
	Authorize(claims *auth.AccessClaims, action, resource string) error
}

var _ Service = (*auth.Coordinator)(nil)

// Config holds the listener settings of the API server.
type Config struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 15 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	return c
}

// Server serves the REST API.
type Server struct {
	cfg        Config
	router     *chi.Mux
	httpServer *http.Server
	listener   net.Listener
	running    atomic.Bool
	logger     *slog.Logger
}

// NewServer builds the router for svc. metrics may be nil.
func NewServer(cfg Config, svc Service, logger *slog.Logger, metrics *observability.HTTPMetrics) (*Server, error) {
	if svc == nil {
		return nil, oops.Code("HTTPAPI_CONFIG_INVALID").Errorf("service is required")
	}
	if logger == nil {
		return nil, oops.Code("HTTPAPI_CONFIG_INVALID").Errorf("logger is required")
	}
	cfg = cfg.withDefaults()

	h := &handlers{svc: svc, logger: logger, validate: newValidator()}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		requestContext,
		instrument(logger, metrics),
		middleware.Recoverer,
		middleware.Timeout(cfg.RequestTimeout),
	)
	router.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, errorBody{Kind: auth.KindNotFound.String(), Message: "route not found"})
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, errorBody{Kind: auth.KindValidation.String(), Message: "method not allowed"})
	})
	router.Route("/auth", func(r chi.Router) {
		h.routes(r)
	})

	return &Server{
		cfg:    cfg,
		router: router,
		logger: logger,
		httpServer: &http.Server{
			Handler:           router,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
	}, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves in the background.
// The returned channel receives a serve error, and is closed on shutdown.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("HTTPAPI_LISTEN_FAILED").With("addr", s.cfg.Addr).Wrap(err)
	}
	s.listener = listener

	errCh := make(chan error, 1)
	httpSrv := s.httpServer
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.running.Store(true)
		return oops.With("operation", "shutdown_api_server").Wrap(err)
	}
	s.logger.Info("api server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
