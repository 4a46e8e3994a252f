package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/banshee-data/pollencal/internal/config"
	"github.com/banshee-data/pollencal/internal/db"
	"github.com/banshee-data/pollencal/internal/fsutil"
	"github.com/banshee-data/pollencal/internal/records"
	"github.com/banshee-data/pollencal/internal/taxonomy"
)

// Sources are the materialized inputs of a run.
type Sources struct {
	Pollen        *records.PollenData
	Vegetation    *records.VegetationData
	PollenMap     *taxonomy.Map
	VegetationMap *taxonomy.Map
}

func openOptional(fsys fsutil.FileSystem, path string) (io.Reader, error) {
	if path == "" {
		return nil, nil
	}
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}

func readRequired(fsys fsutil.FileSystem, path, what string) (io.Reader, error) {
	if path == "" {
		return nil, fmt.Errorf("no %s path configured", what)
	}
	r, err := openOptional(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", what, err)
	}
	return r, nil
}

// LoadTables reads the pollen and vegetation tables named by cfg.
func LoadTables(fsys fsutil.FileSystem, cfg *config.CalibrationConfig) (*records.PollenData, *records.VegetationData, error) {
	counts, err := readRequired(fsys, cfg.ResolvePath(cfg.PollenCountsPath), "pollen counts")
	if err != nil {
		return nil, nil, err
	}
	ages, err := openOptional(fsys, cfg.ResolvePath(cfg.PollenAgesPath))
	if err != nil {
		return nil, nil, fmt.Errorf("read pollen ages: %w", err)
	}
	pollen, err := records.ReadPollen(counts, ages, cfg.GetSiteSRS())
	if err != nil {
		return nil, nil, err
	}

	mean, err := readRequired(fsys, cfg.ResolvePath(cfg.VegetationPath), "vegetation")
	if err != nil {
		return nil, nil, err
	}
	sd, err := openOptional(fsys, cfg.ResolvePath(cfg.VegetationSDPath))
	if err != nil {
		return nil, nil, fmt.Errorf("read vegetation uncertainty: %w", err)
	}
	veg, err := records.ReadVegetation(mean, sd, cfg.GetVegetationSRS())
	if err != nil {
		return nil, nil, err
	}
	return pollen, veg, nil
}

// ReadMapFile reads a translation table, as YAML for .yaml/.yml files and
// as CSV otherwise.
func ReadMapFile(fsys fsutil.FileSystem, path, name string) (*taxonomy.Map, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s map: %w", name, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return taxonomy.ReadMapYAML(bytes.NewReader(data), name)
	default:
		return taxonomy.ReadMapCSV(bytes.NewReader(data), name)
	}
}

// LoadSources reads every input named by cfg from fsys.
func LoadSources(fsys fsutil.FileSystem, cfg *config.CalibrationConfig) (*Sources, error) {
	pollen, veg, err := LoadTables(fsys, cfg)
	if err != nil {
		return nil, err
	}
	src := &Sources{Pollen: pollen, Vegetation: veg}
	if src.PollenMap, err = loadMap(fsys, cfg.ResolvePath(cfg.PollenMapPath), cfg.GetPollenMapName()); err != nil {
		return nil, err
	}
	if src.VegetationMap, err = loadMap(fsys, cfg.ResolvePath(cfg.VegetationMapPath), cfg.GetVegetationMapName()); err != nil {
		return nil, err
	}
	return src, nil
}

func loadMap(fsys fsutil.FileSystem, path, name string) (*taxonomy.Map, error) {
	if path == "" {
		return nil, fmt.Errorf("no %s map path configured", name)
	}
	m, err := ReadMapFile(fsys, path, name)
	if err != nil {
		return nil, err
	}
	// Stored maps are keyed by the configured name.
	m.Name = name
	return m, nil
}

// LoadSourcesFromDB reads previously imported inputs from the store.
func LoadSourcesFromDB(ctx context.Context, store *db.DB, cfg *config.CalibrationConfig) (*Sources, error) {
	pollen, err := store.LoadPollen(ctx)
	if err != nil {
		return nil, fmt.Errorf("load pollen: %w", err)
	}
	veg, err := store.LoadVegetation(ctx)
	if err != nil {
		return nil, fmt.Errorf("load vegetation: %w", err)
	}
	pm, err := store.LoadTaxonMap(ctx, cfg.GetPollenMapName())
	if err != nil {
		return nil, fmt.Errorf("load pollen map: %w", err)
	}
	vm, err := store.LoadTaxonMap(ctx, cfg.GetVegetationMapName())
	if err != nil {
		return nil, fmt.Errorf("load vegetation map: %w", err)
	}
	return &Sources{Pollen: pollen, Vegetation: veg, PollenMap: pm, VegetationMap: vm}, nil
}

// Import stores src so later runs can use LoadSourcesFromDB.
func Import(ctx context.Context, store *db.DB, src *Sources) error {
	if err := store.ImportPollen(ctx, src.Pollen); err != nil {
		return fmt.Errorf("import pollen: %w", err)
	}
	if err := store.ImportVegetation(ctx, src.Vegetation); err != nil {
		return fmt.Errorf("import vegetation: %w", err)
	}
	for _, m := range []*taxonomy.Map{src.PollenMap, src.VegetationMap} {
		if err := store.SaveTaxonMap(ctx, m); err != nil {
			return fmt.Errorf("import %s map: %w", m.Name, err)
		}
	}
	return nil
}
