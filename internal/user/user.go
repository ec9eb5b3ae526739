// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package user provides the user identity type and its persistence.
package user

import (
	"context"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/holomush/authkit/internal/auth"
)

// TypeName is the identity type name users are registered under.
const TypeName = "user"

// Attribute fields.
const (
	FieldEmail          = "email"
	FieldUsername       = "username"
	FieldHashedPassword = "hashedPassword"
)

// Username validation constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
)

// usernameRegex matches usernames that start with a letter and contain only
// letters, numbers, and underscores.
var usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// User is a registered account. It holds a password digest, never the
// plaintext.
type User struct {
	ID             ulid.ULID
	Email          string
	Username       string
	HashedPassword string
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// hashedField is an extra name the digest answers to.
	hashedField string
}

// IdentityID implements auth.Identity.
func (u *User) IdentityID() string {
	return u.ID.String()
}

// Attribute implements auth.Identity.
func (u *User) Attribute(field string) (string, bool) {
	switch field {
	case auth.IDField:
		return u.ID.String(), true
	case FieldEmail:
		return u.Email, true
	case FieldUsername:
		return u.Username, true
	case FieldHashedPassword:
		return u.HashedPassword, true
	default:
		if u.hashedField != "" && field == u.hashedField {
			return u.HashedPassword, true
		}
		return "", false
	}
}

// Clone returns a copy of u.
func (u *User) Clone() *User {
	c := *u
	return &c
}

// apply copies known attributes onto u. Attributes must already have passed
// through the save hooks, so a plaintext password is rejected.
func (u *User) apply(attrs auth.Attributes, fields Fields) error {
	for field, value := range attrs {
		switch field {
		case FieldEmail:
			u.Email = strings.TrimSpace(value)
		case FieldUsername:
			u.Username = strings.TrimSpace(value)
		case FieldHashedPassword, fields.HashedSecret:
			u.HashedPassword = value
		case fields.Secret:
			return auth.Internal("USER_PLAINTEXT_SECRET", "%s must be hashed before it is stored", fields.Secret)
		default:
			return auth.Unprocessable("USER_UNKNOWN_ATTRIBUTE", "unknown attribute %s", field)
		}
	}
	return nil
}

// Validate checks the user's fields.
func (u *User) Validate() error {
	if u.Email == "" {
		return auth.Unprocessable("USER_EMAIL_REQUIRED", "email is required")
	}
	if err := ValidateEmail(u.Email); err != nil {
		return err
	}
	if u.Username != "" {
		if err := ValidateUsername(u.Username); err != nil {
			return err
		}
	}
	return nil
}

// ValidateEmail checks that email is a bare address.
func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return auth.Unprocessable("USER_INVALID_EMAIL", "email is invalid")
	}
	return nil
}

// ValidateUsername validates a username against the naming rules.
func ValidateUsername(username string) error {
	if len(username) < MinUsernameLength {
		return auth.Unprocessable("USER_INVALID_USERNAME", "username must be at least %d characters", MinUsernameLength)
	}
	if len(username) > MaxUsernameLength {
		return auth.Unprocessable("USER_INVALID_USERNAME", "username must be at most %d characters", MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return auth.Unprocessable("USER_INVALID_USERNAME",
			"username must start with a letter and contain only letters, numbers, and underscores")
	}
	return nil
}

// Repository manages user persistence.
type Repository interface {
	auth.IdentityStore

	// Create stores a new user. A duplicate email or username is
	// unprocessable.
	Create(ctx context.Context, u *User) error

	// Update replaces an existing user. Returns auth.ErrNotFound if absent.
	Update(ctx context.Context, u *User) error
}
