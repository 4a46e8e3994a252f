package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ctessum/geom"
	"github.com/google/uuid"

	"github.com/banshee-data/pollencal/internal/agemodel"
	"github.com/banshee-data/pollencal/internal/assemble"
	"github.com/banshee-data/pollencal/internal/config"
	"github.com/banshee-data/pollencal/internal/geo"
	"github.com/banshee-data/pollencal/internal/grid"
	"github.com/banshee-data/pollencal/internal/monitoring"
	"github.com/banshee-data/pollencal/internal/neighborhood"
	"github.com/banshee-data/pollencal/internal/taxonomy"
)

// ErrNoSites is returned when no sample survives age selection.
var ErrNoSites = errors.New("no sites in calibration window")

// Result is everything a run produced.
type Result struct {
	RunID     string
	Input     *assemble.ModelInput
	Selection *agemodel.Selection
	Grid      *grid.Grid
	Join      *grid.Assignment
	// QueryBounds is the grid extent in WGS84 lon/lat, for archive
	// bounding-box queries.
	QueryBounds geom.Bounds
	// VegetationSD is the translated uncertainty of Input.R, nil when no
	// uncertainty table was supplied.
	VegetationSD *taxonomy.Table
}

// Policy builds the age selection policy described by cfg.
func Policy(cfg *config.CalibrationConfig) agemodel.Policy {
	p := agemodel.DefaultPolicy()
	if len(cfg.AgePriority) > 0 {
		p.Priority = append([]string(nil), cfg.AgePriority...)
	}
	p.Reduce = agemodel.Reduction(cfg.GetSiteReduction())
	p.Target = cfg.TargetAge
	return p
}

// Run executes every stage on src and returns the assembled bundle.
func Run(ctx context.Context, cfg *config.CalibrationConfig, src *Sources) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	gridSys, err := geo.ParseSystem(cfg.GetGridSRS())
	if err != nil {
		return nil, err
	}
	if gridSys.Geographic {
		return nil, fmt.Errorf("grid reference system %s is geographic; resolution and radius need a projected system", cfg.GetGridSRS())
	}
	res := &Result{RunID: uuid.NewString()}

	// Time-bin selection.
	start := time.Now()
	lo, hi := cfg.GetAgeWindow()
	sel, err := agemodel.Select(src.Pollen.Samples, agemodel.Window{Lo: lo, Hi: hi}, Policy(cfg))
	if err != nil {
		return nil, fmt.Errorf("select samples: %w", err)
	}
	for _, ex := range sel.Excluded {
		monitoring.Logf("excluded sample %s at site %s: %s", ex.SampleID, ex.SiteID, ex.Reason)
	}
	monitoring.Stage("select", start, "%d sites kept, %d of %d samples excluded",
		len(sel.Sites), len(sel.Excluded), len(src.Pollen.Samples))
	if len(sel.Sites) == 0 {
		return nil, fmt.Errorf("%w [%v, %v]", ErrNoSites, lo, hi)
	}
	res.Selection = sel

	// Taxonomy harmonization.
	start = time.Now()
	counts, err := sel.Counts(src.Pollen.Counts)
	if err != nil {
		return nil, fmt.Errorf("aggregate site counts: %w", err)
	}
	y, r, sd, err := harmonize(cfg, counts, src)
	if err != nil {
		return nil, err
	}
	monitoring.Stage("translate", start, "%d target taxa from %d pollen and %d vegetation labels",
		len(y.Taxa), len(counts.Taxa), len(src.Vegetation.Mean.Taxa))

	// Reprojection into the grid system.
	start = time.Now()
	siteSRS := src.Pollen.SRS
	if siteSRS == "" {
		siteSRS = cfg.GetSiteSRS()
	}
	sites, err := geo.Reproject(sel.Locations(), siteSRS, cfg.GetGridSRS())
	if err != nil {
		return nil, fmt.Errorf("reproject sites: %w", err)
	}
	vegSRS := src.Vegetation.SRS
	if vegSRS == "" {
		vegSRS = cfg.GetVegetationSRS()
	}
	vegPts, err := geo.Reproject(src.Vegetation.Locations, vegSRS, cfg.GetGridSRS())
	if err != nil {
		return nil, fmt.Errorf("reproject vegetation: %w", err)
	}
	monitoring.Stage("reproject", start, "%d sites and %d vegetation records to %s", len(sites), len(vegPts), cfg.GetGridSRS())

	// Grid and vegetation join.
	start = time.Now()
	g, join, err := buildGrid(cfg, vegPts)
	if err != nil {
		return nil, err
	}
	res.Grid, res.Join = g, join
	if res.QueryBounds, err = geo.GeographicBounds(g.Bounds(), cfg.GetGridSRS()); err != nil {
		return nil, fmt.Errorf("grid lon/lat bounds: %w", err)
	}
	r = r.Subset(join.Records)
	if sd != nil {
		res.VegetationSD = sd.Subset(join.Records)
	}
	cols, rows := g.Dims()
	monitoring.Stage("grid", start, "%d x %d lattice, %d cells with vegetation, %d empty", cols, rows, len(join.Cells), len(join.Empty))

	// Neighborhoods.
	start = time.Now()
	hood, err := neighborhood.Build(ctx, sites, join.Cells, neighborhood.Options{
		Radius:  cfg.GetNeighborhoodRadiusMeters(),
		Workers: cfg.GetWorkers(),
	})
	if err != nil {
		return nil, fmt.Errorf("neighborhoods: %w", err)
	}
	monitoring.Stage("neighborhood", start, "%d sites, largest neighborhood %d cells", len(sites), hood.MaxMembers())

	// Assembly.
	start = time.Now()
	mi, err := assemble.Assemble(assemble.Inputs{
		Taxa:         y.Taxa,
		Counts:       y,
		Vegetation:   r,
		Neighborhood: hood,
		SiteIDs:      sel.SiteIDs(),
		CellIDs:      grid.IDs(join.Cells),
	}, assemble.Options{IndexBase: cfg.GetIndexBase(), RunID: res.RunID})
	if err != nil {
		return nil, fmt.Errorf("assemble: %w", err)
	}
	res.Input = mi
	monitoring.Stage("assemble", start, "K=%d N_cores=%d N_cells=%d N_pot=%d", mi.K, mi.NCores, mi.NCells, mi.NPot)
	return res, nil
}

// harmonize translates site counts and vegetation onto the shared target
// vocabulary, in the configured taxon order when one is given.
func harmonize(cfg *config.CalibrationConfig, counts *taxonomy.Table, src *Sources) (y, r, sd *taxonomy.Table, err error) {
	if err := taxonomy.CheckPair(src.PollenMap, src.VegetationMap); err != nil {
		return nil, nil, nil, err
	}
	if y, err = taxonomy.ApplyTranslation(counts, src.PollenMap); err != nil {
		return nil, nil, nil, fmt.Errorf("translate pollen: %w", err)
	}
	if r, err = taxonomy.ApplyTranslation(src.Vegetation.Mean, src.VegetationMap); err != nil {
		return nil, nil, nil, fmt.Errorf("translate vegetation: %w", err)
	}
	if src.Vegetation.SD != nil {
		if sd, err = taxonomy.TranslateVariance(src.Vegetation.SD, src.VegetationMap); err != nil {
			return nil, nil, nil, fmt.Errorf("translate vegetation uncertainty: %w", err)
		}
	}
	if len(cfg.TaxonOrder) > 0 {
		if y, err = y.Reorder(cfg.TaxonOrder); err != nil {
			return nil, nil, nil, fmt.Errorf("taxon_order: %w", err)
		}
		if r, err = r.Reorder(cfg.TaxonOrder); err != nil {
			return nil, nil, nil, fmt.Errorf("taxon_order: %w", err)
		}
		if sd != nil {
			if sd, err = sd.Reorder(cfg.TaxonOrder); err != nil {
				return nil, nil, nil, fmt.Errorf("taxon_order: %w", err)
			}
		}
	}
	if err := taxonomy.CheckVocabulary(y, r, src.PollenMap.Name, src.VegetationMap.Name); err != nil {
		return nil, nil, nil, err
	}
	return y, r, sd, nil
}

// buildGrid tiles the configured region, or the vegetation extent padded by
// half a cell, and joins the vegetation records onto it.
func buildGrid(cfg *config.CalibrationConfig, vegPts []geom.Point) (*grid.Grid, *grid.Assignment, error) {
	resolution := cfg.GetGridResolutionMeters()
	var region geom.Bounds
	if cfg.Region != nil {
		region = geom.Bounds{
			Min: geom.Point{X: cfg.Region.MinX, Y: cfg.Region.MinY},
			Max: geom.Point{X: cfg.Region.MaxX, Y: cfg.Region.MaxY},
		}
	} else {
		if len(vegPts) == 0 {
			return nil, nil, fmt.Errorf("no region configured and no vegetation records")
		}
		region = geo.Extent(vegPts)
		half := resolution / 2
		region.Min.X -= half
		region.Min.Y -= half
		region.Max.X += half
		region.Max.Y += half
	}
	ox, oy := cfg.GetGridOrigin()
	g, err := grid.Build(region, grid.Spec{
		Resolution: resolution,
		Origin:     geom.Point{X: ox, Y: oy},
		SRS:        cfg.GetGridSRS(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("build grid: %w", err)
	}
	join, err := g.Join(vegPts)
	if err != nil {
		return nil, nil, fmt.Errorf("join vegetation: %w", err)
	}
	if len(join.Cells) == 0 {
		return nil, nil, fmt.Errorf("join vegetation: no cell received a record")
	}
	return g, join, nil
}
