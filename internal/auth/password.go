// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/samber/oops"
)

// PasswordStrategyName is the name of the secret hashing strategy.
const PasswordStrategyName = "password"

// DefaultHashRounds is the production hashing cost.
const DefaultHashRounds = 12

// Environment is the execution context the process runs in.
type Environment string

// Known environments.
const (
	EnvProduction  Environment = "production"
	EnvDevelopment Environment = "development"
	EnvTest        Environment = "test"
)

// IsProduction reports whether e is the production environment.
func (e Environment) IsProduction() bool {
	return e == EnvProduction
}

// PasswordOptions configures a PasswordStrategy. Zero values take defaults.
type PasswordOptions struct {
	// UsernameField is the identity field matched against the username param.
	UsernameField string

	// SecretField is the param and write attribute carrying the plaintext.
	SecretField string

	// HashedSecretField stores the digest. Defaults to "hashed" + SecretField.
	HashedSecretField string

	// HashRounds is the hashing cost in production.
	HashRounds int

	// Environment selects the effective cost; outside production it is 1.
	Environment Environment
}

// Resolved returns o with every zero value replaced by its default.
func (o PasswordOptions) Resolved() PasswordOptions {
	if o.UsernameField == "" {
		o.UsernameField = "email"
	}
	if o.SecretField == "" {
		o.SecretField = "password"
	}
	if o.HashedSecretField == "" {
		o.HashedSecretField = "hashed" + capitalize(o.SecretField)
	}
	if o.HashRounds <= 0 {
		o.HashRounds = DefaultHashRounds
	}
	if o.Environment == "" {
		o.Environment = EnvProduction
	}
	return o
}

// UpgradeFunc persists a rehashed digest for an identity.
type UpgradeFunc func(ctx context.Context, identity Identity, attrs Attributes) error

// PasswordStrategy verifies a plaintext secret against a stored one-way hash
// and hashes secrets on the write path.
type PasswordStrategy struct {
	opts    PasswordOptions
	hasher  Hasher
	logger  *slog.Logger
	upgrade UpgradeFunc

	dummyOnce   sync.Once
	dummyDigest string
}

// NewPasswordStrategy creates a PasswordStrategy.
func NewPasswordStrategy(hasher Hasher, opts PasswordOptions) (*PasswordStrategy, error) {
	return NewPasswordStrategyWithLogger(hasher, opts, slog.Default())
}

// NewPasswordStrategyWithLogger creates a PasswordStrategy with a custom logger.
func NewPasswordStrategyWithLogger(hasher Hasher, opts PasswordOptions, logger *slog.Logger) (*PasswordStrategy, error) {
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("password hasher is required")
	}
	if logger == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("logger is required")
	}
	return &PasswordStrategy{
		opts:   opts.Resolved(),
		hasher: hasher,
		logger: logger.With("strategy", PasswordStrategyName),
	}, nil
}

// OnUpgrade registers fn to persist digests rehashed after a successful
// authentication against an outdated digest.
func (s *PasswordStrategy) OnUpgrade(fn UpgradeFunc) {
	s.upgrade = fn
}

// Name implements Strategy.
func (s *PasswordStrategy) Name() string {
	return PasswordStrategyName
}

// Options returns the resolved options.
func (s *PasswordStrategy) Options() PasswordOptions {
	return s.opts
}

// Rounds returns the effective hashing cost for the configured environment.
func (s *PasswordStrategy) Rounds() int {
	if !s.opts.Environment.IsProduction() {
		return 1
	}
	return s.opts.HashRounds
}

// AuthenticateRequest implements Strategy.
func (s *PasswordStrategy) AuthenticateRequest(ctx context.Context, req *Request, typ IdentityType) (Identity, error) {
	s.logger.DebugContext(ctx, "attempting to authenticate",
		"request_id", req.ID,
		"username_field", s.opts.UsernameField,
		"secret_field", s.opts.SecretField,
	)

	username, hasUsername := req.Params.Get(s.opts.UsernameField)
	secret, hasSecret := req.Params.Get(s.opts.SecretField)
	if !hasUsername || !hasSecret {
		return nil, Unauthorized("AUTH_MISSING_FIELDS", "missing %s and %s", s.opts.UsernameField, s.opts.SecretField)
	}

	identity, err := typ.FindOne(ctx, Criteria{s.opts.UsernameField: username})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, oops.Code("AUTH_LOOKUP_FAILED").
				With("identity_type", typ.TypeName()).
				With("field", s.opts.UsernameField).
				Wrap(err)
		}
		// Compare against a throwaway digest so absent identities take as
		// long as present ones.
		_, _ = s.hasher.Compare(secret, s.dummy()) //nolint:errcheck // result is discarded
		s.logger.DebugContext(ctx, "no matching identity",
			"request_id", req.ID,
			"identity_type", typ.TypeName(),
		)
		return nil, s.incorrect()
	}

	digest, _ := identity.Attribute(s.opts.HashedSecretField)
	if digest == "" {
		return nil, s.incorrect()
	}

	ok, err := s.hasher.Compare(secret, digest)
	if err != nil {
		return nil, oops.Code("AUTH_COMPARE_FAILED").
			With("identity_type", typ.TypeName()).
			With("identity_id", identity.IdentityID()).
			Wrap(err)
	}
	if !ok {
		return nil, s.incorrect()
	}

	if s.upgrade != nil && s.hasher.NeedsUpgrade(digest) {
		s.upgradeDigest(ctx, identity, secret)
	}

	return identity, nil
}

// BeforeSave implements SaveHook. A plaintext secret is replaced by its
// digest; attributes without one pass through unchanged.
func (s *PasswordStrategy) BeforeSave(_ context.Context, attrs Attributes) (Attributes, error) {
	secret, ok := attrs[s.opts.SecretField]
	if !ok {
		return attrs, nil
	}

	out := attrs.Clone()
	delete(out, s.opts.SecretField)

	digest, err := s.hasher.Hash(secret, s.Rounds())
	if err != nil {
		return nil, oops.Code("AUTH_HASH_FAILED").
			With("field", s.opts.HashedSecretField).
			Wrap(err)
	}
	out[s.opts.HashedSecretField] = digest
	return out, nil
}

// Verify checks secret against identity's stored digest.
func (s *PasswordStrategy) Verify(identity Identity, secret string) (bool, error) {
	digest, _ := identity.Attribute(s.opts.HashedSecretField)
	if digest == "" || secret == "" {
		return false, nil
	}
	//nolint:wrapcheck // hasher errors are coded
	return s.hasher.Compare(secret, digest)
}

func (s *PasswordStrategy) incorrect() error {
	return Unauthorized("AUTH_INCORRECT_CREDENTIALS", "incorrect %s or %s", s.opts.UsernameField, s.opts.SecretField)
}

func (s *PasswordStrategy) dummy() string {
	s.dummyOnce.Do(func() {
		digest, err := s.hasher.Hash("authkit-timing-equalizer", s.Rounds())
		if err == nil {
			s.dummyDigest = digest
		}
	})
	return s.dummyDigest
}

func (s *PasswordStrategy) upgradeDigest(ctx context.Context, identity Identity, secret string) {
	attrs, err := s.BeforeSave(ctx, Attributes{s.opts.SecretField: secret})
	if err == nil {
		err = s.upgrade(ctx, identity, attrs)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "password digest upgrade failed",
			"identity_id", identity.IdentityID(),
			"error", err.Error(),
		)
	}
}
