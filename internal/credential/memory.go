// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package credential

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authkit/internal/auth"
)

// MemoryRepository is an in-process Repository.
type MemoryRepository struct {
	mu          sync.RWMutex
	credentials map[ulid.ULID]Credential
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{credentials: make(map[ulid.ULID]Credential)}
}

// Save implements Repository.
func (r *MemoryRepository) Save(_ context.Context, c *Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if stored, ok := r.credentials[c.ID]; ok {
		c.Secret = stored.Secret
		c.CreatedAt = stored.CreatedAt
	}
	for id, other := range r.credentials {
		if id != c.ID && other.Kind == c.Kind && other.Secret == c.Secret {
			return oops.Code("CREDENTIAL_SECRET_CONFLICT").
				With("kind", c.Kind).
				Errorf("secret already in use")
		}
	}
	r.credentials[c.ID] = *c
	return nil
}

// GetBySecret implements Repository.
func (r *MemoryRepository) GetBySecret(_ context.Context, kind, secret string) (*Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.credentials {
		if c.Kind == kind && c.Secret == secret {
			found := c
			return &found, nil
		}
	}
	return nil, oops.Code("CREDENTIAL_NOT_FOUND").With("kind", kind).Wrap(auth.ErrNotFound)
}

// DeleteByOwner implements Repository.
func (r *MemoryRepository) DeleteByOwner(_ context.Context, kind, ownerType, ownerID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, c := range r.credentials {
		if c.Kind == kind && c.OwnerType == ownerType && c.OwnerID == ownerID {
			delete(r.credentials, id)
			n++
		}
	}
	return n, nil
}

// PurgeExpired implements Repository.
func (r *MemoryRepository) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, c := range r.credentials {
		if c.IsExpiredAt(now) {
			delete(r.credentials, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored credentials.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.credentials)
}

var _ Repository = (*MemoryRepository)(nil)
