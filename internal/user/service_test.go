// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package user_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authkit/internal/auth"
	"github.com/holomush/authkit/internal/user"
	"github.com/holomush/authkit/pkg/errutil"
)

type fixture struct {
	repo     *user.MemoryRepository
	password *auth.PasswordStrategy
	users    *auth.Authenticatable
	service  *user.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := user.NewMemoryRepository()
	password, err := auth.NewPasswordStrategy(auth.NewBcryptHasher(), auth.PasswordOptions{Environment: auth.EnvTest})
	require.NoError(t, err)
	users, err := auth.NewRegistry().Register(user.TypeName, repo, password)
	require.NoError(t, err)
	service, err := user.NewService(repo, users)
	require.NoError(t, err)
	return &fixture{repo: repo, password: password, users: users, service: service}
}

func TestNewService_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := user.NewService(nil, f.users)
	errutil.AssertErrorCode(t, err, "USER_INVALID_CONFIG")

	_, err = user.NewService(f.repo, nil)
	errutil.AssertErrorCode(t, err, "USER_INVALID_CONFIG")

	_, err = user.NewServiceWithLogger(f.repo, f.users, nil)
	errutil.AssertErrorCode(t, err, "USER_INVALID_CONFIG")
}

func TestService_SecretFieldFollowsPasswordStrategy(t *testing.T) {
	password, err := auth.NewPasswordStrategy(auth.NewBcryptHasher(), auth.PasswordOptions{SecretField: "passphrase"})
	require.NoError(t, err)
	store, err := user.NewIdentityStore(user.NewMemoryRepository(), user.FieldsFrom(password.Options()))
	require.NoError(t, err)
	users, err := auth.NewRegistry().Register(user.TypeName, store, password)
	require.NoError(t, err)

	service, err := user.NewService(store, users)
	require.NoError(t, err)
	assert.Equal(t, "passphrase", service.SecretField())
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("hashes the password and stores the user", func(t *testing.T) {
		f := newFixture(t)
		u, err := f.service.Register(ctx, auth.Attributes{
			"email":    "uma@example.com",
			"username": "uma",
			"password": "123",
		})
		require.NoError(t, err)
		assert.Equal(t, "uma@example.com", u.Email)
		assert.NotEmpty(t, u.HashedPassword)
		assert.NotEqual(t, "123", u.HashedPassword)
		assert.False(t, u.CreatedAt.IsZero())

		ok, err := f.password.Verify(u, "123")
		require.NoError(t, err)
		assert.True(t, ok)

		stored, err := f.service.Get(ctx, u.ID.String())
		require.NoError(t, err)
		assert.Equal(t, u.HashedPassword, stored.HashedPassword)
	})

	t.Run("password required", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.Register(ctx, auth.Attributes{"email": "uma@example.com"})
		require.Error(t, err)
		assert.Equal(t, auth.KindUnprocessable, auth.KindOf(err))
		errutil.AssertErrorCode(t, err, "USER_PASSWORD_REQUIRED")
		assert.Equal(t, 0, f.repo.Len())
	})

	t.Run("invalid email", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.Register(ctx, auth.Attributes{"email": "nope", "password": "123"})
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "USER_INVALID_EMAIL")
	})

	t.Run("unknown attribute", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.Register(ctx, auth.Attributes{"email": "uma@example.com", "password": "123", "admin": "true"})
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "USER_UNKNOWN_ATTRIBUTE")
	})

	t.Run("duplicate email", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.Register(ctx, auth.Attributes{"email": "uma@example.com", "password": "123"})
		require.NoError(t, err)
		_, err = f.service.Register(ctx, auth.Attributes{"email": "uma@example.com", "password": "456"})
		require.Error(t, err)
		assert.Equal(t, auth.KindUnprocessable, auth.KindOf(err))
	})
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u, err := f.service.Register(ctx, auth.Attributes{"email": "vic@example.com", "password": "old"})
	require.NoError(t, err)

	t.Run("rehashes a new password", func(t *testing.T) {
		updated, err := f.service.Update(ctx, u, auth.Attributes{"password": "new"})
		require.NoError(t, err)
		assert.NotEqual(t, u.HashedPassword, updated.HashedPassword)

		ok, err := f.password.Verify(updated, "new")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = f.password.Verify(updated, "old")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("saving without a password keeps the digest", func(t *testing.T) {
		current, err := f.service.Get(ctx, u.ID.String())
		require.NoError(t, err)

		updated, err := f.service.Update(ctx, current, auth.Attributes{"username": "victor"})
		require.NoError(t, err)
		assert.Equal(t, current.HashedPassword, updated.HashedPassword)
		assert.Equal(t, "victor", updated.Username)
	})

	t.Run("original value is not modified", func(t *testing.T) {
		before := u.HashedPassword
		_, err := f.service.Update(ctx, u, auth.Attributes{"password": "another"})
		require.NoError(t, err)
		assert.Equal(t, before, u.HashedPassword)
	})
}

func TestService_GetByEmail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u, err := f.service.Register(ctx, auth.Attributes{"email": "wes@example.com", "password": "123"})
	require.NoError(t, err)

	got, err := f.service.GetByEmail(ctx, "WES@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = f.service.GetByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestService_UpgradeDigest(t *testing.T) {
	ctx := context.Background()
	repo := user.NewMemoryRepository()
	argon := auth.NewArgon2idHasher()
	legacy, err := argon.Hash("123", 1)
	require.NoError(t, err)

	password, err := auth.NewPasswordStrategy(auth.NewBcryptHasher(), auth.PasswordOptions{Environment: auth.EnvTest})
	require.NoError(t, err)
	users, err := auth.NewRegistry().Register(user.TypeName, repo, password)
	require.NoError(t, err)
	service, err := user.NewService(repo, users)
	require.NoError(t, err)

	u, err := service.Register(ctx, auth.Attributes{"email": "xan@example.com", "password": "123"})
	require.NoError(t, err)
	u.HashedPassword = legacy
	require.NoError(t, repo.Update(ctx, u))

	password.OnUpgrade(service.UpgradeDigest)

	identity, err := users.Authenticate(ctx, &auth.Request{
		Params: auth.Params{"email": "xan@example.com", "password": "123"},
	}, auth.AllowAll())
	require.NoError(t, err)
	assert.Equal(t, u.ID.String(), identity.IdentityID())

	stored, err := service.Get(ctx, u.ID.String())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.HashedPassword, "$2a$"), "digest upgraded to bcrypt")

	ok, err := password.Verify(stored, "123")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestService_UpgradeDigestRejectsForeignIdentity(t *testing.T) {
	f := newFixture(t)
	err := f.service.UpgradeDigest(context.Background(), foreignIdentity{}, auth.Attributes{})
	errutil.AssertErrorCode(t, err, "USER_UNEXPECTED_TYPE")
}

type foreignIdentity struct{}

func (foreignIdentity) IdentityID() string              { return "x" }
func (foreignIdentity) Attribute(string) (string, bool) { return "", false }
