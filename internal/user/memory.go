// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package user

import (
	"context"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authkit/internal/auth"
)

// MemoryRepository is an in-process Repository. Email and username compare
// case-insensitively, matching the PostgreSQL repository.
type MemoryRepository struct {
	mu    sync.RWMutex
	users map[ulid.ULID]*User
	order []ulid.ULID
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[ulid.ULID]*User)}
}

// FindOne implements auth.IdentityStore.
func (r *MemoryRepository) FindOne(_ context.Context, criteria auth.Criteria) (auth.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		u := r.users[id]
		if matches(u, criteria) {
			return u.Clone(), nil
		}
	}
	return nil, oops.Code("USER_NOT_FOUND").With("criteria", criteria).Wrap(auth.ErrNotFound)
}

// Create implements Repository.
func (r *MemoryRepository) Create(_ context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[u.ID]; exists {
		return auth.Unprocessable("USER_DUPLICATE", "id has already been taken")
	}
	if err := r.checkUnique(u); err != nil {
		return err
	}
	r.users[u.ID] = u.Clone()
	r.order = append(r.order, u.ID)
	return nil
}

// Update implements Repository.
func (r *MemoryRepository) Update(_ context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[u.ID]; !exists {
		return oops.Code("USER_NOT_FOUND").With("id", u.ID.String()).Wrap(auth.ErrNotFound)
	}
	if err := r.checkUnique(u); err != nil {
		return err
	}
	r.users[u.ID] = u.Clone()
	return nil
}

// Len returns the number of stored users.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// checkUnique must be called with the write lock held.
func (r *MemoryRepository) checkUnique(u *User) error {
	for id, other := range r.users {
		if id == u.ID {
			continue
		}
		if strings.EqualFold(other.Email, u.Email) {
			return auth.Unprocessable("USER_DUPLICATE", "email has already been taken")
		}
		if u.Username != "" && strings.EqualFold(other.Username, u.Username) {
			return auth.Unprocessable("USER_DUPLICATE", "username has already been taken")
		}
	}
	return nil
}

func matches(u *User, criteria auth.Criteria) bool {
	for field, want := range criteria {
		got, ok := u.Attribute(field)
		if !ok {
			return false
		}
		switch field {
		case FieldEmail, FieldUsername:
			if !strings.EqualFold(got, want) {
				return false
			}
		default:
			if got != want {
				return false
			}
		}
	}
	return true
}

var _ Repository = (*MemoryRepository)(nil)
