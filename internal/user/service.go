// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package user

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authkit/internal/auth"
)

// Service creates and updates users through the identity type's save hooks.
type Service struct {
	repo   Repository
	users  *auth.Authenticatable
	fields Fields
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a user Service.
func NewService(repo Repository, users *auth.Authenticatable) (*Service, error) {
	return NewServiceWithLogger(repo, users, slog.Default())
}

// NewServiceWithLogger creates a user Service with a custom logger. Field
// names follow the identity type's password strategy; a non-default digest
// field requires repo to be an IdentityStore with the same fields.
func NewServiceWithLogger(repo Repository, users *auth.Authenticatable, logger *slog.Logger) (*Service, error) {
	if repo == nil {
		return nil, oops.Code("USER_INVALID_CONFIG").Errorf("user repository is required")
	}
	if users == nil {
		return nil, oops.Code("USER_INVALID_CONFIG").Errorf("user identity type is required")
	}
	if logger == nil {
		return nil, oops.Code("USER_INVALID_CONFIG").Errorf("logger is required")
	}

	fields := DefaultFields()
	if s, ok := users.Strategy(auth.PasswordStrategyName); ok {
		if ps, ok := s.(*auth.PasswordStrategy); ok {
			fields = FieldsFrom(ps.Options())
		}
	}
	if err := fields.Validate(); err != nil {
		return nil, err
	}
	if fields.custom() {
		store, ok := repo.(*IdentityStore)
		if !ok || store.Fields() != fields {
			return nil, oops.Code("USER_INVALID_CONFIG").
				With("hashed_secret_field", fields.HashedSecret).
				Errorf("digest field %q requires an IdentityStore with matching fields", fields.HashedSecret)
		}
	}

	return &Service{
		repo:   repo,
		users:  users,
		fields: fields,
		logger: logger,
		now:    time.Now,
	}, nil
}

// SecretField is the attribute carrying a plaintext password on writes.
func (s *Service) SecretField() string {
	return s.fields.Secret
}

// Register creates a user from attrs. The plaintext password is hashed by
// the save hooks before the record is built.
func (s *Service) Register(ctx context.Context, attrs auth.Attributes) (*User, error) {
	if attrs[s.fields.Secret] == "" {
		return nil, auth.Unprocessable("USER_PASSWORD_REQUIRED", "%s is required", s.fields.Secret)
	}

	identity, err := s.users.Save(ctx, attrs, func(ctx context.Context, prepared auth.Attributes) (auth.Identity, error) {
		now := s.now().UTC()
		u := &User{ID: ulid.Make(), CreatedAt: now, UpdatedAt: now}
		s.fields.tag(u)
		if err := u.apply(prepared, s.fields); err != nil {
			return nil, err
		}
		if err := u.Validate(); err != nil {
			return nil, err
		}
		if err := s.repo.Create(ctx, u); err != nil {
			return nil, err //nolint:wrapcheck // repositories return coded errors
		}
		return u, nil
	})
	if err != nil {
		return nil, err
	}

	u := identity.(*User) //nolint:errcheck,forcetypeassert // persist above only returns *User
	s.logger.InfoContext(ctx, "user registered", "user_id", u.ID.String())
	return u, nil
}

// Update applies attrs to u and persists the result. A plaintext password in
// attrs is hashed first. u itself is not modified.
func (s *Service) Update(ctx context.Context, u *User, attrs auth.Attributes) (*User, error) {
	identity, err := s.users.Save(ctx, attrs, func(ctx context.Context, prepared auth.Attributes) (auth.Identity, error) {
		updated := u.Clone()
		s.fields.tag(updated)
		if err := updated.apply(prepared, s.fields); err != nil {
			return nil, err
		}
		if err := updated.Validate(); err != nil {
			return nil, err
		}
		updated.UpdatedAt = s.now().UTC()
		if err := s.repo.Update(ctx, updated); err != nil {
			return nil, err //nolint:wrapcheck // repositories return coded errors
		}
		return updated, nil
	})
	if err != nil {
		return nil, err
	}
	return identity.(*User), nil //nolint:errcheck,forcetypeassert // persist above only returns *User
}

// Get returns the user with the given id.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.findOne(ctx, auth.ByID(id))
}

// GetByEmail returns the user with the given email.
func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.findOne(ctx, auth.Criteria{FieldEmail: email})
}

func (s *Service) findOne(ctx context.Context, criteria auth.Criteria) (*User, error) {
	identity, err := s.repo.FindOne(ctx, criteria)
	if err != nil {
		return nil, err //nolint:wrapcheck // repositories return coded errors
	}
	u, ok := identity.(*User)
	if !ok {
		return nil, oops.Code("USER_UNEXPECTED_TYPE").Errorf("repository returned %T", identity)
	}
	return u, nil
}

// UpgradeDigest stores a rehashed password digest. It satisfies
// auth.UpgradeFunc.
func (s *Service) UpgradeDigest(ctx context.Context, identity auth.Identity, attrs auth.Attributes) error {
	u, ok := identity.(*User)
	if !ok {
		return oops.Code("USER_UNEXPECTED_TYPE").Errorf("cannot upgrade digest of %T", identity)
	}
	updated := u.Clone()
	s.fields.tag(updated)
	if err := updated.apply(attrs, s.fields); err != nil {
		return err
	}
	updated.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, updated); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			s.logger.DebugContext(ctx, "user vanished before digest upgrade", "user_id", u.ID.String())
			return nil
		}
		return err //nolint:wrapcheck // repositories return coded errors
	}
	s.logger.DebugContext(ctx, "password digest upgraded", "user_id", u.ID.String())
	return nil
}
