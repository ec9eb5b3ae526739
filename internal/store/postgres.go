// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store provides PostgreSQL connectivity and schema migrations.
package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Pool is the subset of *pgxpool.Pool repositories use. pgxmock pools
// satisfy it in unit tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ Pool = (*pgxpool.Pool)(nil)

// Connect retry defaults.
const (
	DefaultConnectAttempts = 5
	DefaultConnectBackoff  = 500 * time.Millisecond
)

// ConnectOptions tunes Connect.
type ConnectOptions struct {
	// Attempts is the maximum number of connection attempts.
	Attempts uint64

	// Backoff is the initial delay between attempts; it doubles each retry.
	Backoff time.Duration

	Logger *slog.Logger
}

// Connect opens a pool to databaseURL and pings it, retrying with
// exponential backoff while the database comes up.
func Connect(ctx context.Context, databaseURL string, opts ConnectOptions) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, oops.Code("DB_URL_REQUIRED").Errorf("database url is required")
	}
	if opts.Attempts == 0 {
		opts.Attempts = DefaultConnectAttempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultConnectBackoff
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").Wrap(err)
	}

	var pool *pgxpool.Pool
	attempt := 0
	backoff := retry.WithMaxRetries(opts.Attempts-1, retry.NewExponential(opts.Backoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		p, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return oops.Code("DB_CONNECT_FAILED").With("attempt", attempt).Wrap(err)
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			opts.Logger.WarnContext(ctx, "database not ready",
				"attempt", attempt,
				"error", err.Error(),
			)
			return retry.RetryableError(oops.Code("DB_CONNECT_FAILED").With("attempt", attempt).Wrap(err))
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, err //nolint:wrapcheck // coded inside the retry func
	}
	return pool, nil
}

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation, returning the violated constraint name.
func IsUniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}
