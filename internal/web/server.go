// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package web exposes registration, login, password reset and the current
// user over HTTP.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/samber/oops"

	"github.com/holomush/authkit/internal/auth"
	"github.com/holomush/authkit/internal/mail"
	"github.com/holomush/authkit/internal/observability"
	"github.com/holomush/authkit/internal/reset"
	"github.com/holomush/authkit/internal/user"
)

// Route names, also used as the metrics route label.
const (
	RouteRegister          = "register"
	RouteLogin             = "login"
	RouteSendResetPassword = "send_reset_password"
	RouteResetPassword     = "reset_password"
	RouteMe                = "me"
)

// Options holds the services the HTTP API is built from.
type Options struct {
	// Users registers and loads users.
	Users *user.Service

	// Identities authenticates users.
	Identities *auth.Authenticatable

	// Tokens issues access tokens on login.
	Tokens *auth.TokenIssuer

	// Resets runs the password reset flow.
	Resets *reset.Service

	// Mailer sends the welcome message. Optional.
	Mailer mail.Mailer

	// Metrics records request counts and latency. Optional.
	Metrics *observability.Metrics

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Server is the authentication HTTP API.
type Server struct {
	opts       Options
	router     *mux.Router
	handler    http.Handler
	logger     *slog.Logger
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer validates opts and builds the router.
func NewServer(opts Options) (*Server, error) {
	if opts.Users == nil {
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("user service is required")
	}
	if opts.Identities == nil {
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("identity type is required")
	}
	if opts.Tokens == nil {
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("token issuer is required")
	}
	if opts.Resets == nil {
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("reset service is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{
		opts:   opts,
		logger: opts.Logger.With("component", "web"),
	}
	s.router = s.routes()
	s.handler = s.requestID(s.observe(s.recoverPanics(s.router)))
	return s, nil
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(labelRoute)

	users := r.PathPrefix("/users").Subrouter()
	users.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost).Name(RouteRegister)
	users.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost).Name(RouteLogin)
	users.HandleFunc("/auth/send-reset-password", s.handleSendResetPassword).Methods(http.MethodPost).Name(RouteSendResetPassword)
	users.HandleFunc("/auth/reset-password", s.handleResetPassword).Methods(http.MethodPost).Name(RouteResetPassword)
	users.HandleFunc("/me", s.handleMe).Methods(http.MethodGet).Name(RouteMe)

	// Subrouters resolve their own mismatches; the root only sees paths
	// outside /users.
	for _, router := range []*mux.Router{r, users} {
		router.NotFoundHandler = http.HandlerFunc(notFound)
		router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	}
	return r
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	writeErrorStatus(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeErrorStatus(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on addr and serves the API. The returned channel receives
// a serve error, if any, and is closed when the server stops.
func (s *Server) Start(addr string) (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("WEB_ALREADY_RUNNING").Errorf("web server already running")
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("WEB_LISTEN_FAILED").With("addr", addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("web server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("web server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.Code("WEB_SHUTDOWN_FAILED").Wrap(err)
		}
	}
	s.logger.Info("web server stopped")
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
