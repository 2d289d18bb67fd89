package database

import (
	"context"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMigrations = fstest.MapFS{
	"sql/20260101_000000_devices.up.sql": {Data: []byte(
		"CREATE TABLE devices (id TEXT PRIMARY KEY);",
	)},
	"sql/20260101_000000_devices.down.sql": {Data: []byte(
		"DROP TABLE devices;",
	)},
	"sql/20260102_000000_device_mode.up.sql": {Data: []byte(
		"ALTER TABLE devices ADD COLUMN mode TEXT NOT NULL DEFAULT 'ADD';",
	)},
	"sql/README.md": {Data: []byte("ignored")},
}

func useMigrations(t *testing.T, fsys fs.FS, dir string) {
	t.Helper()

	origFS, origDir := MigrationsFS, MigrationsDir
	t.Cleanup(func() {
		MigrationsFS, MigrationsDir = origFS, origDir
	})
	MigrationsFS, MigrationsDir = fsys, dir
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()

	var n int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&n)
	require.NoError(t, err)
	return n == 1
}

func TestMigrate(t *testing.T) {
	useMigrations(t, testMigrations, "sql")
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Migrate(ctx))
	assert.True(t, tableExists(t, db, "devices"))

	applied, pending, err := db.GetMigrationStatus(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 2)
	assert.Equal(t, "20260101_000000", applied[0].Version)
	assert.False(t, applied[0].AppliedAt.IsZero())
	assert.Empty(t, pending)

	// Idempotent
	require.NoError(t, db.Migrate(ctx))
}

func TestMigrate_StopsAtFailure(t *testing.T) {
	broken := fstest.MapFS{
		"20260101_000000_ok.up.sql":     {Data: []byte("CREATE TABLE ok (id INTEGER);")},
		"20260102_000000_broken.up.sql": {Data: []byte("CREATE TABLE;")},
	}
	useMigrations(t, broken, ".")
	db := openTestDB(t)
	ctx := context.Background()

	err := db.Migrate(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "20260102_000000")

	applied, pending, err := db.GetMigrationStatus(ctx)
	require.NoError(t, err)
	assert.Len(t, applied, 1)
	require.Len(t, pending, 1)
	assert.Equal(t, "broken", pending[0].Name)
}

func TestMigrateDown(t *testing.T) {
	useMigrations(t, testMigrations, "sql")
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Migrate(ctx))

	// Latest migration has no down file.
	err := db.MigrateDown(ctx)
	assert.ErrorIs(t, err, ErrNoDownMigration)

	_, err = db.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = ?", "20260102_000000")
	require.NoError(t, err)

	require.NoError(t, db.MigrateDown(ctx))
	assert.False(t, tableExists(t, db, "devices"))

	applied, _, err := db.GetMigrationStatus(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)

	// Nothing left to roll back.
	assert.NoError(t, db.MigrateDown(ctx))
}

func TestMigrateDown_UnknownVersion(t *testing.T) {
	useMigrations(t, testMigrations, "sql")
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Migrate(ctx))
	_, err := db.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at) VALUES ('29991231_000000', '2999-12-31T00:00:00Z')")
	require.NoError(t, err)

	assert.ErrorIs(t, db.MigrateDown(ctx), ErrMigrationNotFound)
}

func TestMigrate_NoSource(t *testing.T) {
	useMigrations(t, nil, ".")
	db := openTestDB(t)

	require.NoError(t, db.Migrate(context.Background()))

	applied, pending, err := db.GetMigrationStatus(context.Background())
	require.NoError(t, err)
	assert.Empty(t, applied)
	assert.Empty(t, pending)
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename string
		version  string
		name     string
		up       bool
		ok       bool
	}{
		{"20260118_120000_initial_schema.up.sql", "20260118_120000", "initial_schema", true, true},
		{"20260118_120000_initial_schema.down.sql", "20260118_120000", "initial_schema", false, true},
		{"20260118_120000.up.sql", "20260118_120000", "20260118_120000", true, true},
		{"20260118_120000_x.sql", "", "", false, false},
		{"20260118.up.sql", "", "", false, false},
		{"README.md", "", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, up, ok := parseMigrationFilename(tt.filename)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.version, version)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.up, up)
		})
	}
}
