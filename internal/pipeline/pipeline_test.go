package pipeline

import (
	"context"
	"encoding/json"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/pollencal/internal/agemodel"
	"github.com/banshee-data/pollencal/internal/assemble"
	"github.com/banshee-data/pollencal/internal/config"
	"github.com/banshee-data/pollencal/internal/db"
	"github.com/banshee-data/pollencal/internal/fsutil"
	"github.com/banshee-data/pollencal/internal/geo"
	"github.com/banshee-data/pollencal/internal/monitoring"
	"github.com/banshee-data/pollencal/internal/taxonomy"
	"github.com/banshee-data/pollencal/internal/testutil"
)

// Three 1 km cells in a row along y=0..1000; site A sits in the first,
// site B in the last. C is out of the window and D has no age.
const (
	countsCSV = `site_id,sample_id,x,y,Pinus strobus,Pinus banksiana,Quercus
A,a1,600,400,10,5,20
B,b1,2400,600,1,2,3
B,b2,2400,600,40,40,40
C,c1,1500,500,7,7,7
D,d1,1500,900,1,1,1
`
	agesCSV = `sample_id,age_type,age
a1,calibrated radiocarbon years BP,500
b1,calibrated radiocarbon years BP,900
b2,calibrated radiocarbon years BP,1500
c1,radiocarbon years BP,5000
d1,calibrated radiocarbon years BP,NA
`
	vegCSV = `x,y,pine,oak,maple
500,500,0.6,0.3,0.1
1500,500,0.5,0.5,0
2500,500,0.2,0.7,0.1
`
	vegSDCSV = `x,y,pine,oak,maple
500,500,0.1,0.1,0.2
1500,500,0.1,0.1,0
2500,500,0.1,0.1,0.1
`
	pollenMapCSV = `raw,target,weight,note
Pinus strobus,PINE,1,white pine
Pinus banksiana,PINE,1,jack pine
Quercus,OAK,1,
`
	vegMapYAML = `name: ignored
entries:
  - raw: pine
    target: PINE
  - raw: oak
    target: OAK
  - raw: maple
    target: OAK
`
)

const configJSON = `{
  "pollen_counts_path": "in/counts.csv",
  "pollen_ages_path": "in/ages.csv",
  "vegetation_path": "in/veg.csv",
  "vegetation_sd_path": "in/veg_sd.csv",
  "pollen_map_path": "maps/pollen.csv",
  "vegetation_map_path": "maps/vegetation.yaml",
  "site_srs": "EPSG:3175",
  "grid_srs": "EPSG:3175",
  "grid_resolution": 1,
  "neighborhood_radius": 1.2,
  "length_units": "km",
  "age_window": [0, 2000],
  "workers": 2
}`

func newFixture(t *testing.T) (*fsutil.MemoryFileSystem, *config.CalibrationConfig) {
	t.Helper()
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	fsys := fsutil.NewMemoryFileSystem()
	for name, body := range map[string]string{
		"in/counts.csv":        countsCSV,
		"in/ages.csv":          agesCSV,
		"in/veg.csv":           vegCSV,
		"in/veg_sd.csv":        vegSDCSV,
		"maps/pollen.csv":      pollenMapCSV,
		"maps/vegetation.yaml": vegMapYAML,
	} {
		require.NoError(t, fsys.WriteFile(name, []byte(body), 0o644))
	}
	cfg, err := config.ParseCalibrationConfig([]byte(configJSON))
	require.NoError(t, err)
	return fsys, cfg
}

func runFixture(t *testing.T, fsys fsutil.FileSystem, cfg *config.CalibrationConfig) *Result {
	t.Helper()
	src, err := LoadSources(fsys, cfg)
	require.NoError(t, err)
	res, err := Run(context.Background(), cfg, src)
	require.NoError(t, err)
	return res
}

func TestRun(t *testing.T) {
	fsys, cfg := newFixture(t)
	res := runFixture(t, fsys, cfg)
	mi := res.Input

	assert.Equal(t, 2, mi.K)
	assert.Equal(t, 2, mi.NCores)
	assert.Equal(t, 3, mi.NCells)
	assert.Equal(t, []string{"OAK", "PINE"}, mi.Provenance.Taxa)
	assert.Equal(t, []string{"A", "B"}, mi.Provenance.SiteIDs)
	assert.Equal(t, []int{0, 1, 2}, mi.Provenance.CellIDs)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, res.RunID, mi.Provenance.RunID)

	// b1 is nearer the window midpoint than b2.
	assert.True(t, mat.Equal(mi.Y, mat.NewDense(2, 2, []float64{
		20, 15,
		3, 3,
	})), "y = %v", mat.Formatted(mi.Y))
	assert.True(t, mat.EqualApprox(mi.R, mat.NewDense(3, 2, []float64{
		0.4, 0.6,
		0.5, 0.5,
		0.8, 0.2,
	}), 1e-12), "r = %v", mat.Formatted(mi.R))

	assert.Equal(t, []int{1, 3}, mi.IdxCores)
	assert.Equal(t, []int{2, 2}, mi.NHood)
	assert.Equal(t, 2, mi.NPot)
	assert.Equal(t, [][]int{{1, 2}, {2, 3}}, mi.IdxHood)

	testutil.AssertSliceClose(t, mat.Row(nil, 0, mi.D), []float64{
		math.Hypot(100, 100), math.Hypot(900, 100), math.Hypot(1900, 100),
	}, 1e-12)
	testutil.AssertSliceClose(t, mi.DPot[1], []float64{math.Hypot(900, 100), math.Hypot(100, 100)}, 1e-12)

	require.NotNil(t, res.VegetationSD)
	assert.Equal(t, []string{"OAK", "PINE"}, res.VegetationSD.Taxa)
	testutil.AssertSliceClose(t, res.VegetationSD.Values[0], []float64{math.Sqrt(0.05), 0.1}, 1e-12)

	reasons := map[string]string{}
	for _, ex := range res.Selection.Excluded {
		reasons[ex.SampleID] = ex.Reason
	}
	// b2 is in the window; losing the reduction is not an exclusion.
	assert.Equal(t, map[string]string{
		"c1": agemodel.ReasonOutOfRange,
		"d1": agemodel.ReasonMissingAge,
	}, reasons)
	assert.Empty(t, res.Join.Empty)
}

func TestRun_SumReductionAndTaxonOrder(t *testing.T) {
	fsys, cfg := newFixture(t)
	sum := "sum"
	cfg.SiteReduction = &sum
	cfg.TaxonOrder = []string{"PINE", "OAK"}
	res := runFixture(t, fsys, cfg)

	assert.Equal(t, []string{"PINE", "OAK"}, res.Input.Provenance.Taxa)
	assert.True(t, mat.Equal(res.Input.Y, mat.NewDense(2, 2, []float64{
		15, 20,
		83, 43,
	})), "y = %v", mat.Formatted(res.Input.Y))
	assert.Equal(t, 1200.0, res.Selection.Sites[1].Age)
	assert.InDeltaSlice(t, []float64{0.6, 0.4}, mat.Row(nil, 0, res.Input.R), 1e-12)
}

func TestRun_ConfiguredRegionReportsEmptyCells(t *testing.T) {
	fsys, cfg := newFixture(t)
	cfg.Region = &config.Region{MinX: 0, MinY: 0, MaxX: 4000, MaxY: 1000}
	res := runFixture(t, fsys, cfg)

	cols, rows := res.Grid.Dims()
	assert.Equal(t, 4, cols)
	assert.Equal(t, 1, rows)
	assert.Equal(t, []int{3}, res.Join.Empty)
	assert.Equal(t, 3, res.Input.NCells)
}

func TestRun_Errors(t *testing.T) {
	t.Run("no sites in window", func(t *testing.T) {
		fsys, cfg := newFixture(t)
		cfg.AgeWindow = &[2]float64{10000, 12000}
		src, err := LoadSources(fsys, cfg)
		require.NoError(t, err)
		_, err = Run(context.Background(), cfg, src)
		assert.ErrorIs(t, err, ErrNoSites)
	})

	t.Run("unmapped taxon", func(t *testing.T) {
		fsys, cfg := newFixture(t)
		require.NoError(t, fsys.WriteFile("maps/pollen.csv", []byte("raw,target\nPinus strobus,PINE\nQuercus,OAK\n"), 0o644))
		src, err := LoadSources(fsys, cfg)
		require.NoError(t, err)
		_, err = Run(context.Background(), cfg, src)
		var unmapped *taxonomy.UnmappedTaxonError
		require.ErrorAs(t, err, &unmapped)
		assert.Equal(t, "Pinus banksiana", unmapped.Label)
	})

	t.Run("vocabulary mismatch", func(t *testing.T) {
		fsys, cfg := newFixture(t)
		require.NoError(t, fsys.WriteFile("maps/pollen.csv", []byte("raw,target\nPinus strobus,PINE\nPinus banksiana,PINE\nQuercus,QUERCUS\n"), 0o644))
		src, err := LoadSources(fsys, cfg)
		require.NoError(t, err)
		_, err = Run(context.Background(), cfg, src)
		var mismatch *taxonomy.TaxonMismatchError
		assert.ErrorAs(t, err, &mismatch)
	})

	t.Run("geographic grid", func(t *testing.T) {
		fsys, cfg := newFixture(t)
		wgs84 := "EPSG:4326"
		cfg.GridSRS = &wgs84
		src, err := LoadSources(fsys, cfg)
		require.NoError(t, err)
		_, err = Run(context.Background(), cfg, src)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "geographic")
	})

	t.Run("missing input", func(t *testing.T) {
		_, cfg := newFixture(t)
		_, err := LoadSources(fsutil.NewMemoryFileSystem(), cfg)
		assert.Error(t, err)
	})
}

func TestWriteOutputs(t *testing.T) {
	fsys, cfg := newFixture(t)
	res := runFixture(t, fsys, cfg)

	paths, err := WriteOutputs(fsys, "out/model_input.json", res)
	require.NoError(t, err)
	assert.Equal(t, OutputPaths{
		Input:  "out/model_input.json",
		Report: "out/model_input.meta.json",
		SD:     "out/model_input.sd.csv",
	}, paths)

	data, err := fsys.ReadFile(paths.Input)
	require.NoError(t, err)
	var wire map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &wire))
	for _, key := range []string{"K", "N_cores", "N_cells", "N_hood", "y", "r", "idx_cores", "idx_hood", "d", "N_pot", "d_pot"} {
		assert.Contains(t, wire, key)
	}
	var back assemble.ModelInput
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, res.Input.IdxHood, back.IdxHood)

	data, err = fsys.ReadFile(paths.Report)
	require.NoError(t, err)
	var rep Report
	require.NoError(t, json.Unmarshal(data, &rep))
	assert.Equal(t, res.RunID, rep.RunID)
	assert.Equal(t, "EPSG:3175", rep.GridSRS)
	assert.Equal(t, [2]int{3, 1}, rep.Dims)
	// the 3 km x 1 km grid sits west of the projection's false origin
	lon0, lat0, lon1, lat1 := rep.LonLatBounds[0], rep.LonLatBounds[1], rep.LonLatBounds[2], rep.LonLatBounds[3]
	assert.Less(t, lon0, lon1)
	assert.Less(t, lat0, lat1)
	assert.Less(t, lon1, -84.455955)
	assert.Greater(t, lon0, -180.0)
	assert.Less(t, lat1-lat0, 0.1)
	ll, err := geo.GeographicBounds(res.Grid.Bounds(), "EPSG:3175")
	require.NoError(t, err)
	assert.Equal(t, [4]float64{ll.Min.X, ll.Min.Y, ll.Max.X, ll.Max.Y}, rep.LonLatBounds)
	assert.Len(t, rep.Excluded, 2)
	assert.Equal(t, agemodel.CalibratedRadiocarbon, rep.AgeModels["A"])

	data, err = fsys.ReadFile(paths.SD)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "x,y,OAK,PINE\n"))
}

func TestWriteTemplates(t *testing.T) {
	fsys, cfg := newFixture(t)
	pollen, veg, err := LoadTables(fsys, cfg)
	require.NoError(t, err)

	prev, err := ReadMapFile(fsys, "maps/pollen.csv", "pollen")
	require.NoError(t, err)
	pp, vp, err := WriteTemplates(fsys, "templates", TemplateSet{Pollen: pollen, Vegetation: veg, PrevPollen: prev})
	require.NoError(t, err)
	assert.Equal(t, 0, pp)
	assert.Equal(t, 3, vp)

	data, err := fsys.ReadFile(filepath.Join("templates", VegetationTemplateFile))
	require.NoError(t, err)
	m, err := taxonomy.ReadMapCSV(strings.NewReader(string(data)), "vegetation")
	require.NoError(t, err)
	assert.Empty(t, m.Entries)
	assert.Equal(t, []string{"maple", "oak", "pine"}, m.Pending)

	data, err = fsys.ReadFile(filepath.Join("templates", PollenTemplateFile))
	require.NoError(t, err)
	m, err = taxonomy.ReadMapCSV(strings.NewReader(string(data)), "pollen")
	require.NoError(t, err)
	assert.Equal(t, []string{"OAK", "PINE"}, m.Targets())
	assert.Empty(t, m.Pending)
}

func TestImportAndRunFromDB(t *testing.T) {
	fsys, cfg := newFixture(t)
	src, err := LoadSources(fsys, cfg)
	require.NoError(t, err)
	fromFiles, err := Run(context.Background(), cfg, src)
	require.NoError(t, err)

	store, err := db.NewDB(filepath.Join(t.TempDir(), "pollencal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, Import(ctx, store, src))
	stored, err := LoadSourcesFromDB(ctx, store, cfg)
	require.NoError(t, err)
	assert.Equal(t, "pollen", stored.PollenMap.Name)
	assert.Equal(t, "vegetation", stored.VegetationMap.Name)

	fromDB, err := Run(ctx, cfg, stored)
	require.NoError(t, err)
	assert.True(t, mat.Equal(fromFiles.Input.Y, fromDB.Input.Y))
	assert.True(t, mat.Equal(fromFiles.Input.R, fromDB.Input.R))
	assert.Equal(t, fromFiles.Input.IdxHood, fromDB.Input.IdxHood)
	assert.Equal(t, fromFiles.Input.Provenance.SiteIDs, fromDB.Input.Provenance.SiteIDs)
}
