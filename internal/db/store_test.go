package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pollencal/internal/monitoring"
	"github.com/banshee-data/pollencal/internal/records"
	"github.com/banshee-data/pollencal/internal/taxonomy"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(nil) })
	db, err := NewDB(filepath.Join(t.TempDir(), "pollencal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPragmasApplied(t *testing.T) {
	db := newTestDB(t)

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var busyTimeout, foreignKeys int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 5000, busyTimeout)
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	assert.Equal(t, 1, foreignKeys)
}

func TestMigrations(t *testing.T) {
	db := newTestDB(t)
	fsys, err := MigrationsFS()
	require.NoError(t, err)

	version, dirty, err := db.MigrateVersion(fsys)
	require.NoError(t, err)
	latest, err := LatestMigrationVersion(fsys)
	require.NoError(t, err)
	assert.Equal(t, latest, version)
	assert.False(t, dirty)

	// Already at latest.
	require.NoError(t, db.MigrateUp(fsys))

	require.NoError(t, db.MigrateDown(fsys))
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='pollen_samples'`).Scan(&n))
	assert.Equal(t, 0, n)

	require.NoError(t, db.MigrateUp(fsys))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='pollen_samples'`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestRunMigrateCommand(t *testing.T) {
	monitoring.SetLogger(nil)
	path := filepath.Join(t.TempDir(), "cli.db")

	var out strings.Builder
	require.NoError(t, RunMigrateCommand([]string{"up"}, path, &out))
	assert.Contains(t, out.String(), "Current version: 1 (latest 1, dirty: false)")

	out.Reset()
	require.NoError(t, RunMigrateCommand([]string{"down"}, path, &out))
	assert.Contains(t, out.String(), "Current version: 0")

	assert.Error(t, RunMigrateCommand([]string{"sideways"}, path, &out))
	assert.Error(t, RunMigrateCommand(nil, path, &out))
}

const countsCSV = `site_id,sample_id,x,y,Pinus,Quercus
Devils Lake,DL-1,-89.72,43.42,120,30
Devils Lake,DL-2,-89.72,43.42,80,
Kotiranta,KT-1,-91.08,45.04,55,12
`

const agesCSV = `sample_id,age_type,age
DL-1,calibrated radiocarbon years BP,180
DL-1,radiocarbon years BP,150
KT-1,calendar years BP,95
`

func TestPollenRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	in, err := records.ReadPollen(strings.NewReader(countsCSV), strings.NewReader(agesCSV), "EPSG:4326")
	require.NoError(t, err)
	require.NoError(t, db.ImportPollen(ctx, in))

	out, err := db.LoadPollen(ctx)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	// A second import replaces the first.
	require.NoError(t, db.ImportPollen(ctx, in))
	out, err = db.LoadPollen(ctx)
	require.NoError(t, err)
	assert.Len(t, out.Samples, 3)
}

func TestVegetationRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	mean := "x,y,white pine,oak\n500,500,0.6,0.4\n1500,500,0.2,0.8\n"
	sd := "x,y,white pine,oak\n500,500,0.05,0.04\n1500,500,0.02,0.1\n"
	in, err := records.ReadVegetation(strings.NewReader(mean), strings.NewReader(sd), "EPSG:3175")
	require.NoError(t, err)
	require.NoError(t, db.ImportVegetation(ctx, in))

	out, err := db.LoadVegetation(ctx)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	noSD, err := records.ReadVegetation(strings.NewReader(mean), nil, "EPSG:3175")
	require.NoError(t, err)
	require.NoError(t, db.ImportVegetation(ctx, noSD))
	out, err = db.LoadVegetation(ctx)
	require.NoError(t, err)
	assert.Nil(t, out.SD)
	assert.Equal(t, noSD.Mean, out.Mean)
}

func TestTaxonMapRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	m, err := taxonomy.NewMap("pollen", []taxonomy.Entry{
		{Raw: "Pinus strobus", Target: "PINE", Metadata: map[string]string{"source": "expert review"}},
		{Raw: "Betula", Target: "BIRCH", Weight: 0.6},
		{Raw: "Betula", Target: "ALDER", Weight: 0.4},
	})
	require.NoError(t, err)
	m.Pending = []string{"Ambrosia"}
	require.NoError(t, db.SaveTaxonMap(ctx, m))

	back, err := db.LoadTaxonMap(ctx, "pollen")
	require.NoError(t, err)
	assert.Equal(t, m.Entries, back.Entries)
	assert.Equal(t, m.Pending, back.Pending)
	assert.Equal(t, m.Targets(), back.Targets())

	names, err := db.TaxonMapNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"pollen"}, names)

	_, err = db.LoadTaxonMap(ctx, "vegetation")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRecordRun(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first, err := db.RecordRun(ctx, AssemblyRun{ConfigJSON: `{}`, K: 2, NCores: 3, NCells: 4, NPot: 3})
	require.NoError(t, err)
	second, err := db.RecordRun(ctx, AssemblyRun{RunID: NewRunID(), ConfigJSON: `{"a":1}`, K: 5, NCores: 1, NCells: 1, NPot: 1, OutputPath: "out.json"})
	require.NoError(t, err)

	runs, err := db.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second, runs[0].RunID)
	assert.Equal(t, "out.json", runs[0].OutputPath)
	assert.Equal(t, first, runs[1].RunID)
	assert.Equal(t, 4, runs[1].NCells)
	assert.False(t, runs[1].CreatedAt.IsZero())

	_, err = db.RecordRun(ctx, AssemblyRun{RunID: "not-a-uuid"})
	assert.Error(t, err)
}
