// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authkit/internal/config"
	"github.com/holomush/authkit/pkg/errutil"
)

type fakeMigrator struct {
	version uint
	dirty   bool
	pending []uint
	upErr   error
	calls   []string
	closed  bool
}

func (f *fakeMigrator) Up() error {
	f.calls = append(f.calls, "up")
	if f.upErr != nil {
		return f.upErr
	}
	if len(f.pending) > 0 {
		f.version = f.pending[len(f.pending)-1]
		f.pending = nil
	}
	return nil
}

func (f *fakeMigrator) Down() error {
	f.calls = append(f.calls, "down")
	f.version = 0
	return nil
}

func (f *fakeMigrator) Steps(n int) error {
	f.calls = append(f.calls, "steps")
	f.version = uint(int(f.version) + n)
	return nil
}

func (f *fakeMigrator) Version() (uint, bool, error) { return f.version, f.dirty, nil }

func (f *fakeMigrator) Force(version int) error {
	f.calls = append(f.calls, "force")
	f.version = uint(version)
	f.dirty = false
	return nil
}

func (f *fakeMigrator) Pending() ([]uint, error) { return f.pending, nil }

func (f *fakeMigrator) Close() error {
	f.closed = true
	return nil
}

func useFakeMigrator(t *testing.T, f *fakeMigrator) {
	t.Helper()
	original := migratorFactory
	migratorFactory = func(string) (migrationRunner, error) { return f, nil }
	t.Cleanup(func() { migratorFactory = original })

	configFile = ""
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv(config.DatabaseURLEnv, "postgres://localhost/authkit")
	t.Setenv(config.TokenSecretEnv, "")
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestMigrate_Up(t *testing.T) {
	f := &fakeMigrator{pending: []uint{1, 2}}
	useFakeMigrator(t, f)

	out, err := runCLI(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Applying 2 migration(s)")
	assert.Contains(t, out, "Migrated to version 2")
	assert.Equal(t, []string{"up"}, f.calls)
	assert.True(t, f.closed)
}

func TestMigrate_UpNothingPending(t *testing.T) {
	f := &fakeMigrator{version: 2}
	useFakeMigrator(t, f)

	out, err := runCLI(t, "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "No pending migrations")
	assert.Empty(t, f.calls)
}

func TestMigrate_UpFailure(t *testing.T) {
	f := &fakeMigrator{pending: []uint{1}, upErr: oops.Code("MIGRATION_UP_FAILED").Wrap(errors.New("boom"))}
	useFakeMigrator(t, f)

	_, err := runCLI(t, "migrate", "up")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MIGRATION_UP_FAILED")
	assert.True(t, f.closed)
}

func TestMigrate_Down(t *testing.T) {
	f := &fakeMigrator{version: 2}
	useFakeMigrator(t, f)

	out, err := runCLI(t, "migrate", "down")
	require.NoError(t, err)
	assert.Contains(t, out, "Rolled back version 2")
	assert.Equal(t, uint(1), f.version)

	out, err = runCLI(t, "migrate", "down", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "Rolled back all migrations")
	assert.Zero(t, f.version)

	out, err = runCLI(t, "migrate", "down")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing to roll back")
}

func TestMigrate_Version(t *testing.T) {
	f := &fakeMigrator{version: 1, dirty: true, pending: []uint{2}}
	useFakeMigrator(t, f)

	out, err := runCLI(t, "migrate", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version: 1 (000001_users) [dirty]")
	assert.Contains(t, out, "Pending: 1")
}

func TestMigrate_Force(t *testing.T) {
	f := &fakeMigrator{version: 2, dirty: true}
	useFakeMigrator(t, f)

	out, err := runCLI(t, "migrate", "force", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Forced version 1")
	assert.False(t, f.dirty)

	_, err = runCLI(t, "migrate", "force", "abc")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "INVALID_VERSION")
}

func TestMigrate_RequiresDatabaseURL(t *testing.T) {
	useFakeMigrator(t, &fakeMigrator{})
	t.Setenv(config.DatabaseURLEnv, "")

	_, err := runCLI(t, "migrate")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	errutil.AssertErrorContext(t, err, "key", "database.url")
}
