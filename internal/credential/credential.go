// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package credential models short-lived, single-use secrets bound to an
// owning identity, such as password reset tokens.
package credential

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// KindPasswordReset is the kind of credentials redeemed to reset a password.
const KindPasswordReset = "password_reset"

// Credential is a time-limited secret issued to an owner.
//
// Kind discriminates concrete credential types sharing one store. OwnerType
// names the registered identity type OwnerID refers to. Secret is generated
// on first save and never regenerated afterwards.
type Credential struct {
	ID        ulid.ULID
	Kind      string
	OwnerID   string
	OwnerType string
	Secret    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired reports whether the credential has expired.
func (c *Credential) IsExpired() bool {
	return c.IsExpiredAt(time.Now())
}

// IsExpiredAt reports whether the credential is expired at t. A credential
// is still valid at exactly ExpiresAt.
func (c *Credential) IsExpiredAt(t time.Time) bool {
	return t.After(c.ExpiresAt)
}

// Repository persists credentials.
type Repository interface {
	// Save inserts c or updates the stored row with the same ID. The secret
	// and creation time of an existing row are kept and copied back into c.
	Save(ctx context.Context, c *Credential) error

	// GetBySecret returns the credential of kind with the given secret.
	// Returns auth.ErrNotFound if none exists.
	GetBySecret(ctx context.Context, kind, secret string) (*Credential, error)

	// DeleteByOwner removes every credential of kind issued to the owner and
	// returns how many were removed.
	DeleteByOwner(ctx context.Context, kind, ownerType, ownerID string) (int64, error)

	// PurgeExpired removes credentials that expired before now.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
