// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package user

import (
	"context"
	"slices"

	"github.com/samber/oops"

	"github.com/holomush/authkit/internal/auth"
)

// UsernameFields are the user attributes a password login can match on.
var UsernameFields = []string{FieldEmail, FieldUsername}

// Fields names the attributes the password strategy reads and writes on a
// user. Username must be a stored attribute; Secret and HashedSecret are
// free names mapped onto the write input and the digest column.
type Fields struct {
	Username     string
	Secret       string
	HashedSecret string
}

// DefaultFields returns the field names of a default password strategy.
func DefaultFields() Fields {
	return FieldsFrom(auth.PasswordOptions{})
}

// FieldsFrom returns the field names opts resolve to.
func FieldsFrom(opts auth.PasswordOptions) Fields {
	o := opts.Resolved()
	return Fields{
		Username:     o.UsernameField,
		Secret:       o.SecretField,
		HashedSecret: o.HashedSecretField,
	}
}

// Validate checks that every name can be carried by a user. The error
// context key "option" names the offending PasswordOptions field in
// snake case.
func (f Fields) Validate() error {
	invalid := func(option, format string, args ...any) error {
		return oops.Code("USER_INVALID_FIELDS").With("option", option).Errorf(format, args...)
	}

	if !slices.Contains(UsernameFields, f.Username) {
		return invalid("username_field", "username field must be one of %v, got %q", UsernameFields, f.Username)
	}
	if f.Secret == "" || slices.Contains([]string{auth.IDField, FieldEmail, FieldUsername, FieldHashedPassword}, f.Secret) {
		return invalid("secret_field", "secret field %q collides with a user attribute", f.Secret)
	}
	if f.HashedSecret == "" || f.HashedSecret == f.Secret ||
		slices.Contains([]string{auth.IDField, FieldEmail, FieldUsername}, f.HashedSecret) {
		return invalid("hashed_secret_field", "hashed secret field %q collides with another attribute", f.HashedSecret)
	}
	return nil
}

// custom reports whether the digest is exposed under a non-default name.
func (f Fields) custom() bool {
	return f.HashedSecret != FieldHashedPassword
}

// tag makes u answer the configured digest field.
func (f Fields) tag(u *User) {
	if f.custom() {
		u.hashedField = f.HashedSecret
	}
}

// IdentityStore exposes a Repository to strategies under configured field
// names. Register it with the identity type instead of the bare repository
// when the digest field is not "hashedPassword".
type IdentityStore struct {
	Repository
	fields Fields
}

// NewIdentityStore wraps repo so loaded users answer fields.
func NewIdentityStore(repo Repository, fields Fields) (*IdentityStore, error) {
	if repo == nil {
		return nil, oops.Code("USER_INVALID_CONFIG").Errorf("user repository is required")
	}
	if err := fields.Validate(); err != nil {
		return nil, err
	}
	return &IdentityStore{Repository: repo, fields: fields}, nil
}

// Fields returns the configured field names.
func (s *IdentityStore) Fields() Fields {
	return s.fields
}

// FindOne implements auth.IdentityStore.
func (s *IdentityStore) FindOne(ctx context.Context, criteria auth.Criteria) (auth.Identity, error) {
	identity, err := s.Repository.FindOne(ctx, criteria)
	if err != nil {
		return nil, err //nolint:wrapcheck // repositories return coded errors
	}
	if u, ok := identity.(*User); ok {
		s.fields.tag(u)
	}
	return identity, nil
}

var _ Repository = (*IdentityStore)(nil)
