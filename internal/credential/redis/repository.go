// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package redis provides a Redis-backed credential repository for
// deployments that keep short-lived secrets out of the primary database.
//
// Each credential is stored as JSON under a key derived from its kind and
// secret. An id key points back at that record so a re-save keeps the
// original secret. A set per owner indexes the secrets issued to it, and a
// sorted set scored by expiry drives purging. Keys carry a Redis TTL of ExpiresAt plus
// a retention window so an expired secret is still recognised as expired
// rather than unknown.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authkit/internal/auth"
	"github.com/holomush/authkit/internal/credential"
)

// DefaultPrefix is the key namespace used when Options.Prefix is empty.
const DefaultPrefix = "credential"

// DefaultRetention is how long a key outlives its credential's expiry.
const DefaultRetention = 24 * time.Hour

// Options configures a Repository.
type Options struct {
	Prefix    string
	Retention time.Duration
}

// Repository implements credential.Repository using Redis.
type Repository struct {
	client    goredis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewRepository creates a new Repository.
func NewRepository(client goredis.UniversalClient, opts Options) *Repository {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	return &Repository{client: client, prefix: opts.Prefix, retention: opts.Retention}
}

type record struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	OwnerID   string    `json:"owner_id"`
	OwnerType string    `json:"owner_type"`
	Secret    string    `json:"secret"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *Repository) secretKey(kind, secret string) string {
	return r.prefix + ":secret:" + kind + ":" + secret
}

func (r *Repository) idKey(id string) string {
	return r.prefix + ":id:" + id
}

func (r *Repository) ownerKey(kind, ownerType, ownerID string) string {
	return r.prefix + ":owner:" + kind + ":" + ownerType + ":" + ownerID
}

func (r *Repository) expiryKey() string {
	return r.prefix + ":expiry"
}

// expiryMember identifies a credential in the expiry index. Secrets never
// contain a colon, so the last one separates kind from secret.
func expiryMember(kind, secret string) string {
	return kind + ":" + secret
}

func splitExpiryMember(m string) (kind, secret string) {
	i := strings.LastIndex(m, ":")
	if i < 0 {
		return "", m
	}
	return m[:i], m[i+1:]
}

// Save implements credential.Repository. A credential already stored under
// c.ID keeps its secret and creation time, and both are copied back into c.
func (r *Repository) Save(ctx context.Context, c *credential.Credential) error {
	stored, err := r.getByID(ctx, c.ID)
	switch {
	case errors.Is(err, auth.ErrNotFound):
		stored = nil
	case err != nil:
		return err
	default:
		c.Secret = stored.Secret
		c.CreatedAt = stored.CreatedAt
	}

	holder, err := r.GetBySecret(ctx, c.Kind, c.Secret)
	switch {
	case errors.Is(err, auth.ErrNotFound):
	case err != nil:
		return err
	case holder.ID != c.ID:
		return oops.Code("CREDENTIAL_SECRET_CONFLICT").
			With("kind", c.Kind).
			Errorf("secret already in use")
	}

	data, err := json.Marshal(record{
		ID:        c.ID.String(),
		Kind:      c.Kind,
		OwnerID:   c.OwnerID,
		OwnerType: c.OwnerType,
		Secret:    c.Secret,
		ExpiresAt: c.ExpiresAt.UTC(),
		CreatedAt: c.CreatedAt.UTC(),
	})
	if err != nil {
		return oops.Code("CREDENTIAL_ENCODE_FAILED").With("id", c.ID.String()).Wrap(err)
	}

	key := r.secretKey(c.Kind, c.Secret)
	idKey := r.idKey(c.ID.String())
	keep := c.ExpiresAt.Add(r.retention)
	_, err = r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		if stored != nil {
			if stored.Kind != c.Kind || stored.OwnerType != c.OwnerType || stored.OwnerID != c.OwnerID {
				pipe.SRem(ctx, r.ownerKey(stored.Kind, stored.OwnerType, stored.OwnerID), stored.Secret)
			}
			if stored.Kind != c.Kind {
				pipe.Del(ctx, r.secretKey(stored.Kind, stored.Secret))
				pipe.ZRem(ctx, r.expiryKey(), expiryMember(stored.Kind, stored.Secret))
			}
		}
		pipe.Set(ctx, key, data, 0)
		pipe.ExpireAt(ctx, key, keep)
		pipe.Set(ctx, idKey, expiryMember(c.Kind, c.Secret), 0)
		pipe.ExpireAt(ctx, idKey, keep)
		pipe.SAdd(ctx, r.ownerKey(c.Kind, c.OwnerType, c.OwnerID), c.Secret)
		pipe.ZAdd(ctx, r.expiryKey(), &goredis.Z{
			Score:  float64(c.ExpiresAt.UnixMilli()),
			Member: expiryMember(c.Kind, c.Secret),
		})
		return nil
	})
	if err != nil {
		return oops.Code("CREDENTIAL_SAVE_FAILED").
			With("operation", "store credential").
			With("id", c.ID.String()).
			Wrap(err)
	}
	return nil
}

// getByID resolves the id key to the stored record.
func (r *Repository) getByID(ctx context.Context, id ulid.ULID) (*credential.Credential, error) {
	member, err := r.client.Get(ctx, r.idKey(id.String())).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, oops.Code("CREDENTIAL_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("CREDENTIAL_GET_FAILED").
			With("operation", "get credential by id").
			With("id", id.String()).
			Wrap(err)
	}
	kind, secret := splitExpiryMember(member)
	return r.GetBySecret(ctx, kind, secret)
}

// GetBySecret implements credential.Repository.
func (r *Repository) GetBySecret(ctx context.Context, kind, secret string) (*credential.Credential, error) {
	data, err := r.client.Get(ctx, r.secretKey(kind, secret)).Bytes()
	if errors.Is(err, goredis.Nil) {
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
	return decode(data)
}

func decode(data []byte) (*credential.Credential, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, oops.Code("CREDENTIAL_DECODE_FAILED").Wrap(err)
	}
	id, err := ulid.Parse(rec.ID)
	if err != nil {
		return nil, oops.Code("CREDENTIAL_INVALID_ID").With("id", rec.ID).Wrap(err)
	}
	return &credential.Credential{
		ID:        id,
		Kind:      rec.Kind,
		OwnerID:   rec.OwnerID,
		OwnerType: rec.OwnerType,
		Secret:    rec.Secret,
		ExpiresAt: rec.ExpiresAt,
		CreatedAt: rec.CreatedAt,
	}, nil
}

// DeleteByOwner implements credential.Repository.
func (r *Repository) DeleteByOwner(ctx context.Context, kind, ownerType, ownerID string) (int64, error) {
	ownerKey := r.ownerKey(kind, ownerType, ownerID)
	secrets, err := r.client.SMembers(ctx, ownerKey).Result()
	if err != nil {
		return 0, oops.Code("CREDENTIAL_DELETE_FAILED").
			With("operation", "list owner credentials").
			With("kind", kind).
			With("owner_id", ownerID).
			Wrap(err)
	}
	if len(secrets) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(secrets))
	members := make([]any, 0, len(secrets))
	for _, secret := range secrets {
		keys = append(keys, r.secretKey(kind, secret))
		members = append(members, expiryMember(kind, secret))
	}
	idKeys, err := r.idKeys(ctx, keys)
	if err != nil {
		return 0, oops.Code("CREDENTIAL_DELETE_FAILED").
			With("operation", "load owner credentials").
			With("kind", kind).
			With("owner_id", ownerID).
			Wrap(err)
	}

	var deleted *goredis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		deleted = pipe.Del(ctx, keys...)
		if len(idKeys) > 0 {
			pipe.Del(ctx, idKeys...)
		}
		pipe.Del(ctx, ownerKey)
		pipe.ZRem(ctx, r.expiryKey(), members...)
		return nil
	})
	if err != nil {
		return 0, oops.Code("CREDENTIAL_DELETE_FAILED").
			With("operation", "delete credentials by owner").
			With("kind", kind).
			With("owner_id", ownerID).
			Wrap(err)
	}
	return deleted.Val(), nil
}

// idKeys returns the id keys of the records stored under keys. Missing or
// undecodable records are skipped.
func (r *Repository) idKeys(ctx context.Context, keys []string) ([]string, error) {
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with operation context
	}
	ids := make([]string, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		c, decodeErr := decode([]byte(s))
		if decodeErr != nil {
			continue
		}
		ids = append(ids, r.idKey(c.ID.String()))
	}
	return ids, nil
}

// PurgeExpired implements credential.Repository.
func (r *Repository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	members, err := r.client.ZRangeByScore(ctx, r.expiryKey(), &goredis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, purgeFailed(err, "list expired credentials")
	}
	if len(members) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(members))
	for _, m := range members {
		keys = append(keys, r.secretKey(splitExpiryMember(m)))
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return 0, purgeFailed(err, "load expired credentials")
	}

	stale := make([]any, 0, len(members))
	for _, m := range members {
		stale = append(stale, m)
	}

	var deleted *goredis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, v := range values {
			s, ok := v.(string)
			if !ok {
				continue
			}
			c, decodeErr := decode([]byte(s))
			if decodeErr != nil {
				continue
			}
			pipe.SRem(ctx, r.ownerKey(c.Kind, c.OwnerType, c.OwnerID), c.Secret)
			pipe.Del(ctx, r.idKey(c.ID.String()))
		}
		deleted = pipe.Del(ctx, keys...)
		pipe.ZRem(ctx, r.expiryKey(), stale...)
		return nil
	})
	if err != nil {
		return 0, purgeFailed(err, "purge expired credentials")
	}
	return deleted.Val(), nil
}

func purgeFailed(err error, operation string) error {
	return oops.Code("CREDENTIAL_PURGE_FAILED").With("operation", operation).Wrap(err)
}

var _ credential.Repository = (*Repository)(nil)
