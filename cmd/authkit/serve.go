// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/authkit/internal/auth"
	"github.com/holomush/authkit/internal/config"
	"github.com/holomush/authkit/internal/credential"
	"github.com/holomush/authkit/internal/observability"
	"github.com/holomush/authkit/internal/web"
)

const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication API",
		Long: `Start the HTTP API for registration, login and password reset,
plus the metrics and health endpoints when metrics.addr is set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, cmd, AppDeps{})
		},
	}
}

// runServe runs the API until ctx is cancelled or a server fails.
func runServe(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps AppDeps) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := slog.Default()
	a, err := newApp(ctx, cfg, logger, deps)
	if err != nil {
		return oops.Code("SERVE_SETUP_FAILED").Wrap(err)
	}
	defer a.Close()

	var obsServer *observability.Server
	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer = observability.NewServer(observability.Options{
			Addr:       cfg.Metrics.Addr,
			Checks:     a.checks(),
			Collectors: slices.Concat(auth.Collectors(), credential.Collectors()),
			Logger:     logger,
		})
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.Code("SERVE_SETUP_FAILED").With("server", "observability").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
		metrics = obsServer.Metrics()
	}

	webServer, err := web.NewServer(web.Options{
		Users:      a.users,
		Identities: a.identity,
		Tokens:     a.tokens,
		Resets:     a.resets,
		Mailer:     a.mailer,
		Metrics:    metrics,
		Logger:     logger,
	})
	if err != nil {
		stopObservability(obsServer)
		return oops.Code("SERVE_SETUP_FAILED").With("server", "web").Wrap(err)
	}
	webErrCh, err := webServer.Start(cfg.HTTP.Addr)
	if err != nil {
		stopObservability(obsServer)
		return oops.Code("SERVE_SETUP_FAILED").With("server", "web").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, webErrCh, "web")

	cmd.Println("authkit started")
	logger.Info("authkit ready",
		"environment", cfg.Environment,
		"http_addr", webServer.Addr(),
		"users_store", cfg.Users.Store,
		"credentials_store", cfg.Credentials.Store,
	)

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := webServer.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping web server", "error", err)
	}
	stopObservability(obsServer)

	logger.Info("shutdown complete")
	return nil
}

func stopObservability(s *observability.Server) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		slog.Warn("error stopping observability server", "error", err)
	}
}

// monitorServerErrors cancels ctx when a server reports an error. It exits
// when the channel closes or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
