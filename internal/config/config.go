// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads authkit configuration from a YAML file and command
// line flags.
package config

import (
	"errors"
	"io/fs"
	"os"
	"slices"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/authkit/internal/auth"
	"github.com/holomush/authkit/internal/user"
	"github.com/holomush/authkit/internal/xdg"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Defaults applied to keys absent from both file and flags.
const (
	DefaultEnvironment   = string(auth.EnvProduction)
	DefaultHTTPAddr      = ":8080"
	DefaultMetricsAddr   = "127.0.0.1:9100"
	DefaultLogFormat     = "json"
	DefaultLogLevel      = "info"
	DefaultStore         = StorePostgres
	DefaultHashAlgorithm = auth.AlgorithmBcrypt
	DefaultTokenIssuer   = "authkit"
	DefaultTokenTTL      = 24 * time.Hour
	DefaultResetTTL      = time.Hour
	DefaultUsernameField = "email"
	DefaultSecretField   = "password"
)

// Environment variables consulted when the matching key is unset.
const (
	DatabaseURLEnv = "DATABASE_URL"
	RedisURLEnv    = "REDIS_URL"
	TokenSecretEnv = "AUTHKIT_TOKEN_SECRET"
)

const delimiter = "."

// Config is the complete authkit configuration.
type Config struct {
	Environment string            `koanf:"environment"`
	HTTP        HTTPConfig        `koanf:"http"`
	Metrics     MetricsConfig     `koanf:"metrics"`
	Log         LogConfig         `koanf:"log"`
	Database    DatabaseConfig    `koanf:"database"`
	Redis       RedisConfig       `koanf:"redis"`
	Credentials CredentialsConfig `koanf:"credentials"`
	Users       UsersConfig       `koanf:"users"`
	Password    PasswordConfig    `koanf:"password"`
	Token       TokenConfig       `koanf:"token"`
	Reset       ResetConfig       `koanf:"reset"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr string `koanf:"addr"`
}

// MetricsConfig configures the metrics and health listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// DatabaseConfig configures PostgreSQL.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

// RedisConfig configures Redis.
type RedisConfig struct {
	URL string `koanf:"url"`
}

// CredentialsConfig selects the credential store.
type CredentialsConfig struct {
	Store string `koanf:"store"`
}

// UsersConfig selects the user store.
type UsersConfig struct {
	Store string `koanf:"store"`
}

// PasswordConfig configures the password strategy.
type PasswordConfig struct {
	UsernameField     string `koanf:"username_field"`
	SecretField       string `koanf:"secret_field"`
	HashedSecretField string `koanf:"hashed_secret_field"`
	HashRounds        int    `koanf:"hash_rounds"`
	Algorithm         string `koanf:"algorithm"`
}

// TokenConfig configures bearer tokens.
type TokenConfig struct {
	Secret string        `koanf:"secret"`
	Issuer string        `koanf:"issuer"`
	TTL    time.Duration `koanf:"ttl"`
}

// ResetConfig configures password reset tokens.
type ResetConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"environment":       "environment",
	"http-addr":         "http.addr",
	"metrics-addr":      "metrics.addr",
	"log-format":        "log.format",
	"log-level":         "log.level",
	"database-url":      "database.url",
	"redis-url":         "redis.url",
	"credentials-store": "credentials.store",
	"users-store":       "users.store",
	"hash-rounds":       "password.hash_rounds",
	"hash-algorithm":    "password.algorithm",
	"token-issuer":      "token.issuer",
	"token-ttl":         "token.ttl",
	"reset-ttl":         "reset.ttl",
}

// RegisterFlags adds the flags that override configuration keys.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("environment", DefaultEnvironment, "execution environment (production, development, test)")
	flags.String("http-addr", DefaultHTTPAddr, "API listen address")
	flags.String("metrics-addr", DefaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	flags.String("log-format", DefaultLogFormat, "log format (json or text)")
	flags.String("log-level", DefaultLogLevel, "log level (debug, info, warn, error)")
	flags.String("database-url", "", "PostgreSQL URL (default: $"+DatabaseURLEnv+")")
	flags.String("redis-url", "", "Redis URL (default: $"+RedisURLEnv+")")
	flags.String("credentials-store", DefaultStore, "credential store (memory, postgres, redis)")
	flags.String("users-store", DefaultStore, "user store (memory, postgres)")
	flags.Int("hash-rounds", auth.DefaultHashRounds, "password hashing cost in production")
	flags.String("hash-algorithm", DefaultHashAlgorithm, "password hashing algorithm (bcrypt, argon2id)")
	flags.String("token-issuer", DefaultTokenIssuer, "issuer claim of access tokens")
	flags.Duration("token-ttl", DefaultTokenTTL, "access token lifetime")
	flags.Duration("reset-ttl", DefaultResetTTL, "password reset token lifetime")
}

// Load reads the configuration with Read and validates it.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	cfg, err := Read(path, flags)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read reads the file at path, then applies flags, defaults and environment
// fallbacks without validating. An empty path reads the default XDG config
// file if it exists. flags may be nil.
func Read(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(delimiter)

	explicit := path != ""
	if !explicit {
		path = xdg.ConfigFile()
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, delimiter, k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	cfg.applyDefaults()
	cfg.applyEnvironment()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	setDefault(&c.Environment, DefaultEnvironment)
	setDefault(&c.HTTP.Addr, DefaultHTTPAddr)
	setDefault(&c.Log.Format, DefaultLogFormat)
	setDefault(&c.Log.Level, DefaultLogLevel)
	setDefault(&c.Credentials.Store, DefaultStore)
	setDefault(&c.Users.Store, DefaultStore)
	setDefault(&c.Password.UsernameField, DefaultUsernameField)
	setDefault(&c.Password.SecretField, DefaultSecretField)
	setDefault(&c.Password.Algorithm, DefaultHashAlgorithm)
	setDefault(&c.Token.Issuer, DefaultTokenIssuer)
	if c.Password.HashRounds <= 0 {
		c.Password.HashRounds = auth.DefaultHashRounds
	}
	if c.Token.TTL <= 0 {
		c.Token.TTL = DefaultTokenTTL
	}
	if c.Reset.TTL <= 0 {
		c.Reset.TTL = DefaultResetTTL
	}
}

func (c *Config) applyEnvironment() {
	setDefault(&c.Database.URL, os.Getenv(DatabaseURLEnv))
	setDefault(&c.Redis.URL, os.Getenv(RedisURLEnv))
	setDefault(&c.Token.Secret, os.Getenv(TokenSecretEnv))
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

// Validate checks that the configuration is complete and consistent.
func (c *Config) Validate() error {
	invalid := func(key string, format string, args ...any) error {
		return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
	}

	environments := []string{string(auth.EnvProduction), string(auth.EnvDevelopment), string(auth.EnvTest)}
	if !slices.Contains(environments, c.Environment) {
		return invalid("environment", "environment must be one of %v, got %q", environments, c.Environment)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "log format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if !slices.Contains([]string{StoreMemory, StorePostgres, StoreRedis}, c.Credentials.Store) {
		return invalid("credentials.store", "unknown credential store %q", c.Credentials.Store)
	}
	if !slices.Contains([]string{StoreMemory, StorePostgres}, c.Users.Store) {
		return invalid("users.store", "unknown user store %q", c.Users.Store)
	}
	if c.NeedsDatabase() && c.Database.URL == "" {
		return invalid("database.url", "database url is required for the postgres store (or set %s)", DatabaseURLEnv)
	}
	if c.Credentials.Store == StoreRedis && c.Redis.URL == "" {
		return invalid("redis.url", "redis url is required for the redis credential store (or set %s)", RedisURLEnv)
	}
	if c.Password.Algorithm != auth.AlgorithmBcrypt && c.Password.Algorithm != auth.AlgorithmArgon2id {
		return invalid("password.algorithm", "unknown hashing algorithm %q", c.Password.Algorithm)
	}
	if err := user.FieldsFrom(c.PasswordOptions()).Validate(); err != nil {
		key := "password"
		if o, ok := oops.AsOops(err); ok {
			if option, ok := o.Context()["option"].(string); ok {
				key += "." + option
			}
		}
		return invalid(key, "%s", err.Error())
	}
	if len(c.Token.Secret) < auth.MinTokenSecretLen {
		return invalid("token.secret", "token secret must be at least %d bytes (or set %s)", auth.MinTokenSecretLen, TokenSecretEnv)
	}
	return nil
}

// NeedsDatabase reports whether any store is backed by PostgreSQL.
func (c *Config) NeedsDatabase() bool {
	return c.Users.Store == StorePostgres || c.Credentials.Store == StorePostgres
}

// PasswordOptions returns the password strategy options.
func (c *Config) PasswordOptions() auth.PasswordOptions {
	return auth.PasswordOptions{
		UsernameField:     c.Password.UsernameField,
		SecretField:       c.Password.SecretField,
		HashedSecretField: c.Password.HashedSecretField,
		HashRounds:        c.Password.HashRounds,
		Environment:       auth.Environment(c.Environment),
	}
}

// TokenOptions returns the token issuer options.
func (c *Config) TokenOptions() auth.TokenOptions {
	return auth.TokenOptions{
		Secret: []byte(c.Token.Secret),
		Issuer: c.Token.Issuer,
		TTL:    c.Token.TTL,
	}
}
