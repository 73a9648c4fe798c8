package db

import (
	"bytes"
	"context"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trackeff.report/internal/aod"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test DB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testEvent(collision int64) *aod.Event {
	base := collision * 100
	c := aod.Collision{GlobalIndex: collision, PosX: 0.01, PosY: -0.02, PosZ: 0.03, Sel8: true}
	tracks := []aod.Track{
		{GlobalIndex: base + 1, Px: 0.51, Py: 0.2, HasTPC: true, HasITS: true, ITSClusterMap: 0b1111111, TPCNSigmaPi: 0.5},
		{GlobalIndex: base + 2, Px: 0.51, Py: -0.2, HasTPC: true, ITSClusterMap: 0b0000101, TPCNSigmaPi: -1.25},
	}
	v0s := []aod.V0{{
		GlobalIndex: base + 50, CollisionID: collision,
		PosTrackID: base + 1, NegTrackID: base + 2,
		X: 2.05, PxPos: 0.51, PyPos: 0.2, PxNeg: 0.51, PyNeg: -0.2,
	}}
	return aod.NewEvent(c, v0s, tracks)
}

func TestPragmasApplied(t *testing.T) {
	db := setupTestDB(t)

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var foreignKeys int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	assert.Equal(t, 1, foreignKeys)

	var busyTimeout int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 5000, busyTimeout)
}

func TestEmbeddedMigrationsFS(t *testing.T) {
	origDevMode := DevMode
	DevMode = false
	defer func() { DevMode = origDevMode }()

	migFS, err := getMigrationsFS()
	require.NoError(t, err)

	ups, err := fs.Glob(migFS, "*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migFS, "*.down.sql")
	require.NoError(t, err)
	assert.Equal(t, len(ups), len(downs), "every migration needs a down file")

	latest, err := GetLatestMigrationVersion(migFS)
	require.NoError(t, err)
	assert.Equal(t, uint(2), latest)
}

func TestMigrateDownAndUp(t *testing.T) {
	db := setupTestDB(t)
	migFS, err := getMigrationsFS()
	require.NoError(t, err)

	version, dirty, err := db.MigrateVersion(migFS)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	require.NoError(t, db.MigrateDown(migFS))
	version, _, err = db.MigrateVersion(migFS)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = 'analysis_runs'`).Scan(&n))
	assert.Equal(t, 0, n)

	require.NoError(t, db.MigrateUp(migFS))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = 'analysis_runs'`).Scan(&n))
	assert.Equal(t, 1, n)

	// already at latest
	assert.NoError(t, db.MigrateUp(migFS))
}

func TestNewMigrateRejectsNilFS(t *testing.T) {
	db := setupTestDB(t)
	assert.Error(t, db.MigrateUp(nil))
}

func TestInsertAndLoadEvent(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	for _, id := range []int64{3, 1, 2} {
		require.NoError(t, db.InsertEvent(ctx, testEvent(id)))
	}

	ids, err := db.CollisionIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)

	want := testEvent(2)
	got, err := db.LoadEvent(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, want.Collision, got.Collision)
	assert.Equal(t, want.V0s, got.V0s)
	assert.Equal(t, want.TrackList(), got.TrackList())
	assert.NoError(t, got.Validate())

	collisions, tracks, v0s, err := db.EventCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), collisions)
	assert.Equal(t, int64(6), tracks)
	assert.Equal(t, int64(3), v0s)

	_, err = db.LoadEvent(ctx, 99)
	assert.ErrorIs(t, err, ErrCollisionNotFound)
}

func TestLoadEventLeavesMissingTrackUnresolved(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	ev := testEvent(7)
	delete(ev.Tracks, 702)
	require.NoError(t, db.InsertEvent(ctx, ev))

	got, err := db.LoadEvent(ctx, 7)
	require.NoError(t, err)
	assert.ErrorIs(t, got.Validate(), aod.ErrUnresolvedTrack)
}

func TestLoadEventResolvesTracksFromOtherCollisions(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	require.NoError(t, db.InsertEvent(ctx, testEvent(1)))
	ev := testEvent(2)
	// negative daughter stored with collision 1
	ev.V0s[0].NegTrackID = 102
	delete(ev.Tracks, 202)
	require.NoError(t, db.InsertEvent(ctx, ev))

	got, err := db.LoadEvent(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, got.Validate())
	assert.Equal(t, int64(102), got.NegTrack(got.V0s[0]).GlobalIndex)
}

func TestGetDatabaseStats(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	require.NoError(t, db.InsertEvent(ctx, testEvent(1)))

	stats, err := db.GetDatabaseStats()
	require.NoError(t, err)
	assert.Greater(t, stats.TotalSizeMB, 0.0)

	counts := make(map[string]int64)
	for _, ts := range stats.Tables {
		counts[ts.Name] = ts.RowCount
	}
	assert.Equal(t, int64(1), counts["collisions"])
	assert.Equal(t, int64(2), counts["tracks"])
	assert.Contains(t, counts, "analysis_runs")
}

func TestAttachAdminRoutes(t *testing.T) {
	db := setupTestDB(t)
	mux := http.NewServeMux()
	db.AttachAdminRoutes(mux)

	for _, path := range []string{"/debug/db-stats", "/debug/backup", "/debug/tailsql/"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		// debug pages may refuse non-local callers but must be mounted
		assert.NotEqual(t, http.StatusNotFound, w.Code, path)
	}
}

func TestRunMigrateCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli.db")

	var out bytes.Buffer
	require.NoError(t, RunMigrateCommand([]string{"status"}, dbPath, &out))
	assert.Contains(t, out.String(), "Current version: 0")
	assert.Contains(t, out.String(), "behind")

	out.Reset()
	require.NoError(t, RunMigrateCommand([]string{"up"}, dbPath, &out))
	assert.Contains(t, out.String(), "Current version: 2")
	assert.Contains(t, out.String(), "up to date")

	out.Reset()
	require.NoError(t, RunMigrateCommand([]string{"version", "1"}, dbPath, &out))
	assert.Contains(t, out.String(), "Current version: 1")

	out.Reset()
	require.NoError(t, RunMigrateCommand([]string{"help"}, dbPath, &out))
	assert.Contains(t, out.String(), "Database Migration Commands")

	assert.Error(t, RunMigrateCommand(nil, dbPath, &out))
	assert.Error(t, RunMigrateCommand([]string{"sideways"}, dbPath, &out))
	assert.Error(t, RunMigrateCommand([]string{"version"}, dbPath, &out))
	assert.Error(t, RunMigrateCommand([]string{"version", "x"}, dbPath, &out))
}
