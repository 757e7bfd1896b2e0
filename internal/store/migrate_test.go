// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"errors"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authcore/pkg/errutil"
)

// fakeEngine implements migrationEngine.
type fakeEngine struct {
	err        error
	version    uint
	dirty      bool
	versionErr error
	srcErr     error
	dbErr      error
	steps      []int
	forced     []int
}

func (f *fakeEngine) Up() error   { return f.err }
func (f *fakeEngine) Down() error { return f.err }
func (f *fakeEngine) Steps(n int) error {
	f.steps = append(f.steps, n)
	return f.err
}
func (f *fakeEngine) Version() (uint, bool, error) { return f.version, f.dirty, f.versionErr }
func (f *fakeEngine) Force(v int) error {
	f.forced = append(f.forced, v)
	return f.err
}
func (f *fakeEngine) Close() (error, error) { return f.srcErr, f.dbErr }

func TestMigrateURL(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@db:5432/authcore":   "pgx5://u:p@db:5432/authcore",
		"postgresql://u:p@db:5432/authcore": "pgx5://u:p@db:5432/authcore",
		"pgx5://u:p@db:5432/authcore":       "pgx5://u:p@db:5432/authcore",
	}
	for in, want := range tests {
		assert.Equal(t, want, migrateURL(in), in)
	}
}

func TestNewMigrator_InvalidURL(t *testing.T) {
	_, err := NewMigrator("badscheme://localhost:5432/authcore")
	errutil.AssertErrorCode(t, err, "MIGRATION_INIT_FAILED")
}

func TestMigrator_Directions(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name    string
		run     func(*Migrator) error
		err     error
		wantErr string
	}{
		{"up", (*Migrator).Up, nil, ""},
		{"up no change", (*Migrator).Up, migrate.ErrNoChange, ""},
		{"up failure", (*Migrator).Up, boom, "MIGRATION_UP_FAILED"},
		{"down", (*Migrator).Down, nil, ""},
		{"down no change", (*Migrator).Down, migrate.ErrNoChange, ""},
		{"down failure", (*Migrator).Down, boom, "MIGRATION_DOWN_FAILED"},
		{"steps", func(m *Migrator) error { return m.Steps(-1) }, nil, ""},
		{"steps no change", func(m *Migrator) error { return m.Steps(1) }, migrate.ErrNoChange, ""},
		{"steps failure", func(m *Migrator) error { return m.Steps(2) }, boom, "MIGRATION_STEPS_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Migrator{engine: &fakeEngine{err: tt.err}}
			err := tt.run(m)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			errutil.AssertErrorCode(t, err, tt.wantErr)
		})
	}
}

func TestMigrator_StepsZeroIsNoOp(t *testing.T) {
	engine := &fakeEngine{err: errors.New("must not be called")}
	m := &Migrator{engine: engine}
	require.NoError(t, m.Steps(0))
	assert.Empty(t, engine.steps)
}

func TestMigrator_Version(t *testing.T) {
	t.Run("applied", func(t *testing.T) {
		m := &Migrator{engine: &fakeEngine{version: 3, dirty: true}}
		v, dirty, err := m.Version()
		require.NoError(t, err)
		assert.Equal(t, uint(3), v)
		assert.True(t, dirty)
	})

	t.Run("empty database", func(t *testing.T) {
		m := &Migrator{engine: &fakeEngine{versionErr: migrate.ErrNilVersion}}
		v, dirty, err := m.Version()
		require.NoError(t, err)
		assert.Zero(t, v)
		assert.False(t, dirty)
	})

	t.Run("failure", func(t *testing.T) {
		m := &Migrator{engine: &fakeEngine{versionErr: errors.New("conn reset")}}
		_, _, err := m.Version()
		errutil.AssertErrorCode(t, err, "MIGRATION_VERSION_FAILED")
	})
}

func TestMigrator_Force(t *testing.T) {
	engine := &fakeEngine{}
	m := &Migrator{engine: engine}

	require.NoError(t, m.Force(2))
	assert.Equal(t, []int{2}, engine.forced)

	errutil.AssertErrorCode(t, m.Force(-1), "INVALID_VERSION")
	assert.Equal(t, []int{2}, engine.forced)

	engine.err = errors.New("locked")
	errutil.AssertErrorCode(t, m.Force(1), "MIGRATION_FORCE_FAILED")
}

func TestMigrator_Close(t *testing.T) {
	src := errors.New("source")
	db := errors.New("database")

	tests := []struct {
		name      string
		engine    *fakeEngine
		component string
	}{
		{"clean", &fakeEngine{}, ""},
		{"source", &fakeEngine{srcErr: src}, "source"},
		{"database", &fakeEngine{dbErr: db}, "database"},
		{"both", &fakeEngine{srcErr: src, dbErr: db}, "both"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&Migrator{engine: tt.engine}).Close()
			if tt.component == "" {
				assert.NoError(t, err)
				return
			}
			errutil.AssertErrorCode(t, err, "MIGRATION_CLOSE_FAILED")
			errutil.AssertErrorContext(t, err, "component", tt.component)
		})
	}
}

func TestMigrator_PendingAndApplied(t *testing.T) {
	all, err := MigrationVersions()
	require.NoError(t, err)
	require.Equal(t, []uint{1, 2, 3}, all)

	tests := []struct {
		current uint
		pending []uint
		applied []uint
	}{
		{0, []uint{1, 2, 3}, nil},
		{1, []uint{2, 3}, []uint{1}},
		{3, nil, []uint{1, 2, 3}},
	}
	for _, tt := range tests {
		m := &Migrator{engine: &fakeEngine{version: tt.current}}

		pending, err := m.PendingMigrations()
		require.NoError(t, err)
		assert.Equal(t, tt.pending, pending, "pending at %d", tt.current)

		applied, err := m.AppliedMigrations()
		require.NoError(t, err)
		assert.Equal(t, tt.applied, applied, "applied at %d", tt.current)
	}

	m := &Migrator{engine: &fakeEngine{versionErr: errors.New("down")}}
	_, err = m.PendingMigrations()
	errutil.AssertErrorCode(t, err, "MIGRATION_VERSION_FAILED")
}

func TestMigrationVersions_ReturnsCopy(t *testing.T) {
	first, err := MigrationVersions()
	require.NoError(t, err)
	first[0] = 99

	second, err := MigrationVersions()
	require.NoError(t, err)
	assert.Equal(t, uint(1), second[0])
}

func TestMigrationName(t *testing.T) {
	tests := map[uint]string{
		1:  "000001_accounts",
		2:  "000002_otp_challenges",
		3:  "000003_sessions",
		42: "",
	}
	for version, want := range tests {
		got, err := MigrationName(version)
		require.NoError(t, err)
		assert.Equal(t, want, got, "version %d", version)
	}
}
