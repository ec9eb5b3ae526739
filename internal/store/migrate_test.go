// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"errors"
	"regexp"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authkit/pkg/errutil"
)

type fakeMigrate struct {
	upErr, downErr, stepsErr, forceErr error
	version                            uint
	dirty                              bool
	versionErr                         error
	closeSourceErr, closeDBErr         error
	steps                              []int
}

func (f *fakeMigrate) Up() error   { return f.upErr }
func (f *fakeMigrate) Down() error { return f.downErr }
func (f *fakeMigrate) Steps(n int) error {
	f.steps = append(f.steps, n)
	return f.stepsErr
}
func (f *fakeMigrate) Version() (uint, bool, error) { return f.version, f.dirty, f.versionErr }
func (f *fakeMigrate) Force(int) error              { return f.forceErr }
func (f *fakeMigrate) Close() (error, error)        { return f.closeSourceErr, f.closeDBErr }

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@db:5432/authkit", migrateURL("postgres://u:p@db:5432/authkit"))
	assert.Equal(t, "pgx5://db/authkit", migrateURL("postgresql://db/authkit"))
	assert.Equal(t, "pgx5://db/authkit", migrateURL("pgx5://db/authkit"))
}

func TestNewMigrator_InvalidURL(t *testing.T) {
	_, err := NewMigrator("badscheme://localhost:5432/authkit")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MIGRATION_INIT_FAILED")
	assert.NotContains(t, err.Error(), "unknown driver postgresql")
}

func TestMigrator_IgnoresNoChange(t *testing.T) {
	m := &Migrator{m: &fakeMigrate{
		upErr:    migrate.ErrNoChange,
		downErr:  migrate.ErrNoChange,
		stepsErr: migrate.ErrNoChange,
	}}
	require.NoError(t, m.Up())
	require.NoError(t, m.Down())
	require.NoError(t, m.Steps(0))
}

func TestMigrator_Errors(t *testing.T) {
	boom := errors.New("database locked")
	m := &Migrator{m: &fakeMigrate{upErr: boom, downErr: boom, stepsErr: boom, forceErr: boom, versionErr: boom}}

	errutil.AssertErrorCode(t, m.Up(), "MIGRATION_UP_FAILED")
	errutil.AssertErrorCode(t, m.Down(), "MIGRATION_DOWN_FAILED")
	errutil.AssertErrorCode(t, m.Steps(-1), "MIGRATION_STEPS_FAILED")
	errutil.AssertErrorCode(t, m.Force(1), "MIGRATION_FORCE_FAILED")
	_, _, err := m.Version()
	errutil.AssertErrorCode(t, err, "MIGRATION_VERSION_FAILED")
}

func TestMigrator_StepsPassesCount(t *testing.T) {
	f := &fakeMigrate{}
	m := &Migrator{m: f}
	require.NoError(t, m.Steps(-1))
	require.NoError(t, m.Steps(2))
	assert.Equal(t, []int{-1, 2}, f.steps)
}

func TestMigrator_Version(t *testing.T) {
	t.Run("empty database is version zero", func(t *testing.T) {
		m := &Migrator{m: &fakeMigrate{versionErr: migrate.ErrNilVersion}}
		version, dirty, err := m.Version()
		require.NoError(t, err)
		assert.Zero(t, version)
		assert.False(t, dirty)
	})

	t.Run("reports dirty", func(t *testing.T) {
		m := &Migrator{m: &fakeMigrate{version: 2, dirty: true}}
		version, dirty, err := m.Version()
		require.NoError(t, err)
		assert.Equal(t, uint(2), version)
		assert.True(t, dirty)
	})
}

func TestMigrator_ForceRejectsNegative(t *testing.T) {
	m := &Migrator{m: &fakeMigrate{}}
	errutil.AssertErrorCode(t, m.Force(-1), "INVALID_VERSION")
}

func TestMigrator_Close(t *testing.T) {
	tests := []struct {
		name          string
		src, db       error
		wantComponent string
	}{
		{"source", errors.New("src"), nil, "source"},
		{"database", nil, errors.New("db"), "database"},
		{"both", errors.New("src"), errors.New("db"), "both"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Migrator{m: &fakeMigrate{closeSourceErr: tt.src, closeDBErr: tt.db}}
			err := m.Close()
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "MIGRATION_CLOSE_FAILED")
			errutil.AssertErrorContext(t, err, "component", tt.wantComponent)
		})
	}

	require.NoError(t, (&Migrator{m: &fakeMigrate{}}).Close())
}

func TestMigrator_Pending(t *testing.T) {
	tests := []struct {
		name    string
		fake    *fakeMigrate
		pending []uint
	}{
		{"fresh database", &fakeMigrate{versionErr: migrate.ErrNilVersion}, []uint{1, 2}},
		{"users applied", &fakeMigrate{version: 1}, []uint{2}},
		{"up to date", &fakeMigrate{version: 2}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pending, err := (&Migrator{m: tt.fake}).Pending()
			require.NoError(t, err)
			assert.Equal(t, tt.pending, pending)
		})
	}

	_, err := (&Migrator{m: &fakeMigrate{versionErr: errors.New("connection lost")}}).Pending()
	require.Error(t, err)
	errutil.AssertErrorContext(t, err, "operation", "list pending migrations")
}

func TestMigrationName(t *testing.T) {
	name, err := MigrationName(1)
	require.NoError(t, err)
	assert.Equal(t, "000001_users", name)

	name, err = MigrationName(2)
	require.NoError(t, err)
	assert.Equal(t, "000002_credentials", name)

	name, err = MigrationName(999)
	require.NoError(t, err)
	assert.Empty(t, name)
}

func TestMigrationVersions_ReturnsCopy(t *testing.T) {
	first, err := migrationVersions()
	require.NoError(t, err)
	require.NotEmpty(t, first)
	first[0] = 99999

	second, err := migrationVersions()
	require.NoError(t, err)
	assert.Equal(t, uint(1), second[0])
}

func TestMigrationsFS_Naming(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)
	assert.Len(t, entries, 4)

	pattern := regexp.MustCompile(`^\d{6}_\w+\.(up|down)\.sql$`)
	for _, entry := range entries {
		assert.Regexp(t, pattern, entry.Name())
	}
}
