// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres provides the PostgreSQL user repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authkit/internal/auth"
	"github.com/holomush/authkit/internal/store"
	"github.com/holomush/authkit/internal/user"
)

const selectUser = `SELECT id, email, username, password_hash, created_at, updated_at FROM users`

// columns maps criteria fields to SQL predicates. Email and username match
// case-insensitively, backed by the LOWER() unique indexes.
var columns = map[string]string{
	auth.IDField:       "id = $%d",
	user.FieldEmail:    "LOWER(email) = LOWER($%d)",
	user.FieldUsername: "LOWER(username) = LOWER($%d)",
}

// constraintFields names the field behind each unique index.
var constraintFields = map[string]string{
	"users_pkey":         "id",
	"users_email_key":    user.FieldEmail,
	"users_username_key": user.FieldUsername,
}

// Repository implements user.Repository using PostgreSQL.
type Repository struct {
	pool store.Pool
}

// NewRepository creates a new Repository.
func NewRepository(pool store.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindOne implements auth.IdentityStore.
func (r *Repository) FindOne(ctx context.Context, criteria auth.Criteria) (auth.Identity, error) {
	if len(criteria) == 0 {
		return nil, oops.Code("USER_INVALID_CRITERIA").Errorf("criteria cannot be empty")
	}

	fields := make([]string, 0, len(criteria))
	for field := range criteria {
		fields = append(fields, field)
	}
	slices.Sort(fields)

	predicates := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields))
	for i, field := range fields {
		pattern, ok := columns[field]
		if !ok {
			return nil, oops.Code("USER_INVALID_CRITERIA").
				With("field", field).
				Errorf("users cannot be looked up by %s", field)
		}
		predicates = append(predicates, fmt.Sprintf(pattern, i+1))
		args = append(args, criteria[field])
	}

	row := r.pool.QueryRow(ctx, selectUser+` WHERE `+strings.Join(predicates, " AND ")+` LIMIT 1`, args...)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("criteria", fields).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_FIND_FAILED").
			With("operation", "find user").
			With("criteria", fields).
			Wrap(err)
	}
	return u, nil
}

// Create implements user.Repository.
func (r *Repository) Create(ctx context.Context, u *user.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, email, username, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, u.ID.String(), u.Email, u.Username, u.HashedPassword, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if dup := duplicate(err); dup != nil {
			return dup
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("id", u.ID.String()).
			Wrap(err)
	}
	return nil
}

// Update implements user.Repository.
func (r *Repository) Update(ctx context.Context, u *user.User) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET email = $2, username = $3, password_hash = $4, updated_at = $5
		WHERE id = $1
	`, u.ID.String(), u.Email, u.Username, u.HashedPassword, u.UpdatedAt)
	if err != nil {
		if dup := duplicate(err); dup != nil {
			return dup
		}
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update user").
			With("id", u.ID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", u.ID.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// duplicate maps a unique violation to an unprocessable error naming the
// taken field, or returns nil.
func duplicate(err error) error {
	constraint, ok := store.IsUniqueViolation(err)
	if !ok {
		return nil
	}
	field, known := constraintFields[constraint]
	if !known {
		field = "record"
	}
	return auth.Unprocessable("USER_DUPLICATE", "%s has already been taken", field)
}

// scanUser scans a single row. pgx.ErrNoRows is returned unwrapped.
func scanUser(row pgx.Row) (*user.User, error) {
	var (
		idStr     string
		u         user.User
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&idStr, &u.Email, &u.Username, &u.HashedPassword, &createdAt, &updatedAt); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with lookup context
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").With("id", idStr).Wrap(err)
	}
	u.ID = id
	u.CreatedAt = createdAt
	u.UpdatedAt = updatedAt
	return &u, nil
}

var _ user.Repository = (*Repository)(nil)
