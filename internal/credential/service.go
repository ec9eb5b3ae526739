// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package credential

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authkit/internal/auth"
)

// Service implements the credential lifecycle: issue, save, redeem and
// consume.
type Service struct {
	repo      Repository
	registry  *auth.Registry
	logger    *slog.Logger
	now       func() time.Time
	newSecret func() string
}

// NewService creates a credential Service resolving owners through registry.
func NewService(repo Repository, registry *auth.Registry) (*Service, error) {
	return NewServiceWithLogger(repo, registry, slog.Default())
}

// NewServiceWithLogger creates a credential Service with a custom logger.
func NewServiceWithLogger(repo Repository, registry *auth.Registry, logger *slog.Logger) (*Service, error) {
	if repo == nil {
		return nil, oops.Code("CREDENTIAL_INVALID_CONFIG").Errorf("credential repository is required")
	}
	if registry == nil {
		return nil, oops.Code("CREDENTIAL_INVALID_CONFIG").Errorf("identity registry is required")
	}
	if logger == nil {
		return nil, oops.Code("CREDENTIAL_INVALID_CONFIG").Errorf("logger is required")
	}
	return &Service{
		repo:      repo,
		registry:  registry,
		logger:    logger,
		now:       time.Now,
		newSecret: func() string { return uuid.NewString() },
	}, nil
}

// Owner loads the identity c was issued to. A credential whose owner type is
// not registered, or whose owner no longer exists, is corrupt.
func (s *Service) Owner(ctx context.Context, c *Credential) (auth.Identity, error) {
	typ, err := s.registry.Lookup(c.OwnerType)
	if err != nil {
		return nil, auth.InternalWith("CREDENTIAL_CORRUPTED",
			map[string]any{"credential_id": c.ID.String(), "owner_type": c.OwnerType},
			"credential owner type %q is not registered", c.OwnerType)
	}

	owner, err := typ.FindOne(ctx, auth.ByID(c.OwnerID))
	if errors.Is(err, auth.ErrNotFound) {
		return nil, auth.InternalWith("CREDENTIAL_CORRUPTED",
			map[string]any{"credential_id": c.ID.String(), "owner_type": c.OwnerType, "owner_id": c.OwnerID},
			"credential owner %s %s does not exist", c.OwnerType, c.OwnerID)
	}
	if err != nil {
		return nil, oops.Code("CREDENTIAL_OWNER_LOOKUP_FAILED").
			With("credential_id", c.ID.String()).
			Wrap(err)
	}
	return owner, nil
}

// Save persists c. OwnerType is required. A missing Secret is generated as a
// UUID v4; an existing one is kept.
func (s *Service) Save(ctx context.Context, c *Credential) error {
	if c.OwnerType == "" {
		return auth.InternalWith("CREDENTIAL_OWNER_TYPE_REQUIRED",
			map[string]any{"kind": c.Kind},
			"credential owner type must be set before saving")
	}
	if c.ExpiresAt.IsZero() {
		return auth.InternalWith("CREDENTIAL_EXPIRY_REQUIRED",
			map[string]any{"kind": c.Kind},
			"credential expiry must be set before saving")
	}

	if c.ID.IsZero() {
		c.ID = ulid.Make()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now().UTC()
	}
	if c.Secret == "" {
		c.Secret = s.newSecret()
	}

	if err := s.repo.Save(ctx, c); err != nil {
		return err //nolint:wrapcheck // repositories return coded errors
	}
	return nil
}

// Issue creates and saves a credential of kind for owner, valid for ttl.
func (s *Service) Issue(ctx context.Context, kind string, owner auth.Identity, ownerType string, ttl time.Duration) (*Credential, error) {
	c := &Credential{
		Kind:      kind,
		OwnerID:   owner.IdentityID(),
		OwnerType: ownerType,
		ExpiresAt: s.now().UTC().Add(ttl),
	}
	if err := s.Save(ctx, c); err != nil {
		return nil, err
	}

	issuedTotal.WithLabelValues(kind).Inc()
	s.logger.DebugContext(ctx, "credential issued",
		"credential_id", c.ID.String(),
		"kind", kind,
		"owner_type", ownerType,
		"expires_at", c.ExpiresAt,
	)
	return c, nil
}

// Redeem returns the unexpired credential of kind matching secret. Unknown
// and expired secrets are unprocessable.
func (s *Service) Redeem(ctx context.Context, kind, secret string) (*Credential, error) {
	if secret == "" {
		return nil, auth.Unprocessable("CREDENTIAL_INVALID", "token is invalid")
	}

	c, err := s.repo.GetBySecret(ctx, kind, secret)
	if errors.Is(err, auth.ErrNotFound) {
		return nil, auth.Unprocessable("CREDENTIAL_INVALID", "token is invalid")
	}
	if err != nil {
		return nil, err //nolint:wrapcheck // repositories return coded errors
	}

	if c.IsExpiredAt(s.now()) {
		s.logger.DebugContext(ctx, "expired credential presented",
			"credential_id", c.ID.String(),
			"kind", kind,
			"expired_at", c.ExpiresAt,
		)
		return nil, auth.Unprocessable("CREDENTIAL_EXPIRED", "token has expired")
	}
	return c, nil
}

// Consume invalidates c together with every other credential of its kind
// issued to the same owner.
func (s *Service) Consume(ctx context.Context, c *Credential) error {
	n, err := s.repo.DeleteByOwner(ctx, c.Kind, c.OwnerType, c.OwnerID)
	if err != nil {
		return err //nolint:wrapcheck // repositories return coded errors
	}
	s.logger.DebugContext(ctx, "credentials consumed",
		"kind", c.Kind,
		"owner_type", c.OwnerType,
		"count", n,
	)
	return nil
}

// PurgeExpired deletes expired credentials. Expiry is enforced on redemption;
// purging only reclaims storage.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.PurgeExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, err //nolint:wrapcheck // repositories return coded errors
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "purged expired credentials", "count", n)
	}
	return n, nil
}
