// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"

	goredis "github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"

	"github.com/holomush/authkit/internal/auth"
	"github.com/holomush/authkit/internal/config"
	"github.com/holomush/authkit/internal/credential"
	credpostgres "github.com/holomush/authkit/internal/credential/postgres"
	credredis "github.com/holomush/authkit/internal/credential/redis"
	"github.com/holomush/authkit/internal/mail"
	"github.com/holomush/authkit/internal/observability"
	"github.com/holomush/authkit/internal/reset"
	"github.com/holomush/authkit/internal/store"
	"github.com/holomush/authkit/internal/user"
	userpostgres "github.com/holomush/authkit/internal/user/postgres"
)

// app holds the services assembled from a Config.
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	pool        *pgxpool.Pool
	redis       goredis.UniversalClient
	registry    *auth.Registry
	identity    *auth.Authenticatable
	tokens      *auth.TokenIssuer
	users       *user.Service
	credentials *credential.Service
	resets      *reset.Service
	mailer      mail.Mailer
}

// AppDeps contains injectable dependencies for building the app.
// All fields with nil values will use their default implementations.
type AppDeps struct {
	// PoolFactory connects to PostgreSQL.
	// Default: store.Connect
	PoolFactory func(ctx context.Context, url string, logger *slog.Logger) (*pgxpool.Pool, error)

	// RedisFactory creates a Redis client from a URL.
	// Default: newRedisClient
	RedisFactory func(ctx context.Context, url string) (goredis.UniversalClient, error)

	// Mailer delivers outbound mail.
	// Default: mail.NewLogMailer
	Mailer mail.Mailer
}

func (d *AppDeps) withDefaults(logger *slog.Logger) {
	if d.PoolFactory == nil {
		d.PoolFactory = func(ctx context.Context, url string, logger *slog.Logger) (*pgxpool.Pool, error) {
			return store.Connect(ctx, url, store.ConnectOptions{Logger: logger})
		}
	}
	if d.RedisFactory == nil {
		d.RedisFactory = newRedisClient
	}
	if d.Mailer == nil {
		d.Mailer = mail.NewLogMailer(logger)
	}
}

// newApp connects the configured stores and wires every service. The
// caller must Close the result.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps AppDeps) (*app, error) {
	deps.withDefaults(logger)
	a := &app{cfg: cfg, logger: logger, mailer: deps.Mailer}
	if err := a.connect(ctx, deps); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.wireAuth(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.wireServices(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) connect(ctx context.Context, deps AppDeps) error {
	var err error
	if a.cfg.NeedsDatabase() {
		if a.pool, err = deps.PoolFactory(ctx, a.cfg.Database.URL, a.logger); err != nil {
			return err
		}
	}
	if a.cfg.Credentials.Store == config.StoreRedis {
		if a.redis, err = deps.RedisFactory(ctx, a.cfg.Redis.URL); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) wireAuth() error {
	hasher, err := auth.NewHasher(a.cfg.Password.Algorithm)
	if err != nil {
		return err //nolint:wrapcheck // hasher errors are coded
	}
	password, err := auth.NewPasswordStrategyWithLogger(hasher, a.cfg.PasswordOptions(), a.logger)
	if err != nil {
		return err //nolint:wrapcheck // strategy errors are coded
	}
	a.tokens, err = auth.NewTokenIssuer(a.cfg.TokenOptions())
	if err != nil {
		return err //nolint:wrapcheck // issuer errors are coded
	}
	tokenStrategy, err := auth.NewTokenStrategyWithLogger(a.tokens, a.logger)
	if err != nil {
		return err //nolint:wrapcheck // strategy errors are coded
	}

	a.registry, err = auth.NewRegistryWithLogger(a.logger)
	if err != nil {
		return err //nolint:wrapcheck // registry errors are coded
	}

	var repo user.Repository
	if a.cfg.Users.Store == config.StorePostgres {
		repo = userpostgres.NewRepository(a.pool)
	} else {
		repo = user.NewMemoryRepository()
	}
	users, err := user.NewIdentityStore(repo, user.FieldsFrom(password.Options()))
	if err != nil {
		return err //nolint:wrapcheck // store errors are coded
	}

	a.identity, err = a.registry.Register(user.TypeName, users, tokenStrategy, password)
	if err != nil {
		return err //nolint:wrapcheck // registry errors are coded
	}
	a.users, err = user.NewServiceWithLogger(users, a.identity, a.logger)
	if err != nil {
		return err //nolint:wrapcheck // service errors are coded
	}
	password.OnUpgrade(a.users.UpgradeDigest)
	return nil
}

func (a *app) wireServices() error {
	var repo credential.Repository
	switch a.cfg.Credentials.Store {
	case config.StorePostgres:
		repo = credpostgres.NewRepository(a.pool)
	case config.StoreRedis:
		repo = credredis.NewRepository(a.redis, credredis.Options{})
	default:
		repo = credential.NewMemoryRepository()
	}

	var err error
	a.credentials, err = credential.NewServiceWithLogger(repo, a.registry, a.logger)
	if err != nil {
		return err //nolint:wrapcheck // service errors are coded
	}
	a.resets, err = reset.NewServiceWithLogger(a.users, a.credentials, a.mailer, a.cfg.Reset.TTL, a.logger)
	if err != nil {
		return err //nolint:wrapcheck // service errors are coded
	}
	return nil
}

// checks returns a readiness check per connected store.
func (a *app) checks() map[string]observability.Check {
	checks := map[string]observability.Check{}
	if a.pool != nil {
		checks["database"] = a.pool.Ping
	}
	if a.redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		}
	}
	return checks
}

// Close releases store connections.
func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("error closing redis client", "error", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func newRedisClient(ctx context.Context, url string) (goredis.UniversalClient, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, oops.Code("REDIS_CONFIG_INVALID").Wrap(err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, oops.Code("REDIS_CONNECT_FAILED").Wrap(err)
	}
	return client, nil
}
