package scanner_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stocky-app/stocky-core/internal/infrastructure/config"
	"github.com/stocky-app/stocky-core/internal/infrastructure/database"
	"github.com/stocky-app/stocky-core/internal/scanner"
	_ "github.com/stocky-app/stocky-core/migrations"
)

func newTestRepo(t *testing.T) *scanner.SQLiteRepository {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "scanner.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	require.NoError(t, db.Migrate(context.Background()))

	return scanner.NewSQLiteRepository(db.DB)
}

func strPtr(s string) *string { return &s }

func TestSQLiteRepository_RoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 9, 30, 15, 123456000, time.UTC)

	st := scanner.State{
		DeviceID:          "sk-abc",
		Mode:              scanner.ModeRemove,
		CurrentLocationID: strPtr("pantry-1"),
		AssociatedUIID:    strPtr("ui-7"),
		LastScanAt:        at,
		Version:           4,
	}
	require.NoError(t, repo.Upsert(ctx, st))

	got, err := repo.Get(ctx, "sk-abc")
	require.NoError(t, err)
	assert.Equal(t, st.DeviceID, got.DeviceID)
	assert.Equal(t, st.Mode, got.Mode)
	assert.Equal(t, "pantry-1", got.LocationID())
	assert.Equal(t, "ui-7", got.UIInstanceID())
	assert.True(t, at.Equal(got.LastScanAt))
	assert.Equal(t, uint64(4), got.Version)
}

func TestSQLiteRepository_NullableColumns(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, scanner.State{
		DeviceID:   "sk-new",
		Mode:       scanner.ModeAdd,
		LastScanAt: time.Now().UTC(),
	}))

	got, err := repo.Get(ctx, "sk-new")
	require.NoError(t, err)
	assert.Nil(t, got.CurrentLocationID)
	assert.Nil(t, got.AssociatedUIID)
}

func TestSQLiteRepository_UpsertVersionGuard(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Upsert(ctx, scanner.State{DeviceID: "sk-abc", Mode: scanner.ModeLookup, LastScanAt: now, Version: 5}))

	// An older write arriving late must not regress the row.
	require.NoError(t, repo.Upsert(ctx, scanner.State{DeviceID: "sk-abc", Mode: scanner.ModeAdd, LastScanAt: now, Version: 3}))
	got, err := repo.Get(ctx, "sk-abc")
	require.NoError(t, err)
	assert.Equal(t, scanner.ModeLookup, got.Mode)
	assert.Equal(t, uint64(5), got.Version)

	require.NoError(t, repo.Upsert(ctx, scanner.State{DeviceID: "sk-abc", Mode: scanner.ModeRemove, LastScanAt: now, Version: 6}))
	got, err = repo.Get(ctx, "sk-abc")
	require.NoError(t, err)
	assert.Equal(t, scanner.ModeRemove, got.Mode)
	assert.Equal(t, uint64(6), got.Version)
}

func TestSQLiteRepository_ListAndDelete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, id := range []string{"sk-b", "sk-a"} {
		require.NoError(t, repo.Upsert(ctx, scanner.State{DeviceID: id, Mode: scanner.ModeAdd, LastScanAt: now}))
	}

	states, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, "sk-a", states[0].DeviceID)
	assert.Equal(t, "sk-b", states[1].DeviceID)

	require.NoError(t, repo.Delete(ctx, "sk-a"))
	require.NoError(t, repo.Delete(ctx, "sk-a"))

	_, err = repo.Get(ctx, "sk-a")
	assert.ErrorIs(t, err, scanner.ErrNotFound)
}

func TestRegistry_SurvivesRestart(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	reg := scanner.NewRegistry(repo)
	st, err := reg.GetOrCreate(ctx, "sk-abc")
	require.NoError(t, err)
	st, err = reg.CompareAndUpdate(ctx, "sk-abc", st.Version, scanner.SetLocation("freezer-2"))
	require.NoError(t, err)
	_, err = reg.CompareAndUpdate(ctx, "sk-abc", st.Version, scanner.SetMode(scanner.ModeRemove))
	require.NoError(t, err)

	restarted := scanner.NewRegistry(repo)
	require.NoError(t, restarted.RefreshCache(ctx))

	got, err := restarted.Get(ctx, "sk-abc")
	require.NoError(t, err)
	assert.Equal(t, scanner.ModeRemove, got.Mode)
	assert.Equal(t, "freezer-2", got.LocationID())
	assert.Equal(t, uint64(2), got.Version)
}
