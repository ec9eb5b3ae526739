// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres provides the PostgreSQL credential repository.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authkit/internal/auth"
	"github.com/holomush/authkit/internal/credential"
	"github.com/holomush/authkit/internal/store"
)

// Repository implements credential.Repository using PostgreSQL.
type Repository struct {
	pool store.Pool
}

// NewRepository creates a new Repository.
func NewRepository(pool store.Pool) *Repository {
	return &Repository{pool: pool}
}

// Save implements credential.Repository. The secret and creation time of an
// existing row are never overwritten; the stored values are copied back
// into c.
func (r *Repository) Save(ctx context.Context, c *credential.Credential) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO credentials (id, kind, owner_id, owner_type, secret, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind,
			owner_id = EXCLUDED.owner_id,
			owner_type = EXCLUDED.owner_type,
			expires_at = EXCLUDED.expires_at
		RETURNING secret, created_at
	`, c.ID.String(), c.Kind, c.OwnerID, c.OwnerType, c.Secret, c.ExpiresAt, c.CreatedAt).
		Scan(&c.Secret, &c.CreatedAt)
	if err != nil {
		if _, dup := store.IsUniqueViolation(err); dup {
			return oops.Code("CREDENTIAL_SECRET_CONFLICT").
				With("kind", c.Kind).
				Wrap(err)
		}
		return oops.Code("CREDENTIAL_SAVE_FAILED").
			With("operation", "upsert credential").
			With("id", c.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetBySecret implements credential.Repository.
func (r *Repository) GetBySecret(ctx context.Context, kind, secret string) (*credential.Credential, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, kind, owner_id, owner_type, secret, expires_at, created_at
		FROM credentials
		WHERE kind = $1 AND secret = $2
	`, kind, secret)

	c, err := scanCredential(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("CREDENTIAL_NOT_FOUND").
			With("kind", kind).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("CREDENTIAL_GET_FAILED").
			With("operation", "get credential by secret").
			With("kind", kind).
			Wrap(err)
	}
	return c, nil
}

// DeleteByOwner implements credential.Repository.
func (r *Repository) DeleteByOwner(ctx context.Context, kind, ownerType, ownerID string) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM credentials WHERE kind = $1 AND owner_type = $2 AND owner_id = $3
	`, kind, ownerType, ownerID)
	if err != nil {
		return 0, oops.Code("CREDENTIAL_DELETE_FAILED").
			With("operation", "delete credentials by owner").
			With("kind", kind).
			With("owner_id", ownerID).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// PurgeExpired implements credential.Repository.
func (r *Repository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM credentials WHERE expires_at < $1`, now)
	if err != nil {
		return 0, oops.Code("CREDENTIAL_PURGE_FAILED").
			With("operation", "purge expired credentials").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// scanCredential scans a single row. pgx.ErrNoRows is returned unwrapped.
func scanCredential(row pgx.Row) (*credential.Credential, error) {
	var (
		idStr string
		c     credential.Credential
	)
	if err := row.Scan(&idStr, &c.Kind, &c.OwnerID, &c.OwnerType, &c.Secret, &c.ExpiresAt, &c.CreatedAt); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with lookup context
	}
	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("CREDENTIAL_INVALID_ID").With("id", idStr).Wrap(err)
	}
	c.ID = id
	return &c, nil
}

var _ credential.Repository = (*Repository)(nil)
