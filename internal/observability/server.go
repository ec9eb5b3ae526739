// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package observability serves Prometheus metrics and health probes on a
// listener separate from the API.
package observability

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// DefaultCheckTimeout bounds a single readiness probe.
const DefaultCheckTimeout = 2 * time.Second

// Check reports whether a dependency is usable. A nil error means ready.
type Check func(ctx context.Context) error

// Metrics contains the HTTP request metrics of the authentication service.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the HTTP request metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authkit_http_requests_total",
				Help: "Total number of HTTP requests by route and status code",
			},
			[]string{"route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "authkit_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}

	reg.MustRegister(m.RequestsTotal, m.RequestDuration)
	return m
}

// ObserveRequest records one handled request.
func (m *Metrics) ObserveRequest(route string, status int, elapsed time.Duration) {
	m.RequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// Options configures a Server.
type Options struct {
	// Addr is the listen address, e.g. "127.0.0.1:9100".
	Addr string

	// Checks are run by the readiness probe, keyed by dependency name.
	Checks map[string]Check

	// CheckTimeout bounds each check. Defaults to DefaultCheckTimeout.
	CheckTimeout time.Duration

	// Collectors owned by other packages, registered next to the defaults.
	Collectors []prometheus.Collector

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Server provides HTTP endpoints for metrics and health probes.
type Server struct {
	opts       Options
	logger     *slog.Logger
	registry   *prometheus.Registry
	metrics    *Metrics
	checkFails *prometheus.CounterVec
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates a Server with its own Prometheus registry.
func NewServer(opts Options) *Server {
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = DefaultCheckTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	checkFails := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authkit_readiness_check_failures_total",
			Help: "Total number of failed readiness checks by dependency",
		},
		[]string{"check"},
	)
	registry.MustRegister(checkFails)
	registry.MustRegister(opts.Collectors...)

	return &Server{
		opts:       opts,
		logger:     opts.Logger.With("component", "observability"),
		registry:   registry,
		metrics:    NewMetrics(registry),
		checkFails: checkFails,
	}
}

// Metrics returns the HTTP request metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Handler returns the router serving /metrics and the health probes.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})).Methods(http.MethodGet)
	r.HandleFunc("/healthz/liveness", s.handleLiveness).Methods(http.MethodGet)
	r.HandleFunc("/healthz/readiness", s.handleReadiness).Methods(http.MethodGet)
	return r
}

// Start begins serving. The returned channel receives a serve error, if
// any, and is closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("OBSERVABILITY_ALREADY_RUNNING").Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("OBSERVABILITY_LISTEN_FAILED").With("addr", s.opts.Addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("observability server started", "addr", listener.Addr().String())
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
			return oops.Code("OBSERVABILITY_SHUTDOWN_FAILED").Wrap(err)
		}
	}
	s.logger.Info("observability server stopped")
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n")) //nolint:errcheck // client may disconnect
}

// Readiness is the body of the readiness probe.
type Readiness struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Readiness statuses.
const (
	StatusOK          = "ok"
	StatusUnavailable = "unavailable"
)

// Ready runs every check and reports the per-dependency result. Failure
// details are logged, not returned.
func (s *Server) Ready(ctx context.Context) Readiness {
	names := make([]string, 0, len(s.opts.Checks))
	for name := range s.opts.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	result := Readiness{Status: StatusOK, Checks: make(map[string]string, len(names))}
	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, s.opts.CheckTimeout)
		err := s.opts.Checks[name](checkCtx)
		cancel()
		if err != nil {
			s.checkFails.WithLabelValues(name).Inc()
			s.logger.WarnContext(ctx, "readiness check failed", "check", name, "error", err)
			result.Status = StatusUnavailable
			result.Checks[name] = StatusUnavailable
			continue
		}
		result.Checks[name] = StatusOK
	}
	return result
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	result := s.Ready(r.Context())
	status := http.StatusOK
	if result.Status != StatusOK {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(result) //nolint:errcheck // client may disconnect
}
