package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/banshee-data/pollencal/internal/units"
)

// Environment variables that override file settings.
const (
	EnvDatabase = "POLLENCAL_DB"
	EnvWorkers  = "POLLENCAL_WORKERS"
	EnvOutput   = "POLLENCAL_OUTPUT"
)

// Default reference systems. Site coordinates usually arrive as lat/long from
// the archive export; the grid and vegetation product share an equal-area
// projection.
const (
	DefaultSiteSRS = "EPSG:4326"
	DefaultGridSRS = "EPSG:3175"
)

// Region is a closed bounding box in the grid reference system. Records on
// its upper edges join the last column or row.
type Region struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// CalibrationConfig is the root configuration for one assembly run.
//
// Grid resolution, neighborhood radius and the calibration age window have
// no defaults: a guessed value would silently bias the calibration, so
// Validate rejects a config that omits them.
type CalibrationConfig struct {
	// Inputs
	PollenCountsPath  *string  `json:"pollen_counts_path,omitempty"`
	PollenAgesPath    *string  `json:"pollen_ages_path,omitempty"`
	VegetationPath    *string  `json:"vegetation_path,omitempty"`
	VegetationSDPath  *string  `json:"vegetation_sd_path,omitempty"`
	PollenMapPath     *string  `json:"pollen_map_path,omitempty"`
	VegetationMapPath *string  `json:"vegetation_map_path,omitempty"`
	DatabasePath      *string  `json:"database_path,omitempty"`
	OutputPath        *string  `json:"output_path,omitempty"`
	PollenMapName     *string  `json:"pollen_map_name,omitempty"`
	VegetationMapName *string  `json:"vegetation_map_name,omitempty"`
	TaxonOrder        []string `json:"taxon_order,omitempty"`

	// Spatial
	SiteSRS            *string     `json:"site_srs,omitempty"`
	VegetationSRS      *string     `json:"vegetation_srs,omitempty"`
	GridSRS            *string     `json:"grid_srs,omitempty"`
	Region             *Region     `json:"region,omitempty"`
	GridResolution     *float64    `json:"grid_resolution,omitempty"`
	GridOrigin         *[2]float64 `json:"grid_origin,omitempty"`
	NeighborhoodRadius *float64    `json:"neighborhood_radius,omitempty"`
	LengthUnits        *string     `json:"length_units,omitempty"` // units of resolution and radius

	// Time
	AgeWindow     *[2]float64 `json:"age_window,omitempty"` // years BP, inclusive
	AgePriority   []string    `json:"age_priority,omitempty"`
	SiteReduction *string     `json:"site_reduction,omitempty"` // "nearest" or "sum"
	TargetAge     *float64    `json:"target_age,omitempty"`

	// Assembly
	IndexBase *int `json:"index_base,omitempty"`
	Workers   *int `json:"workers,omitempty"`

	// baseDir resolves relative input paths; set by LoadCalibrationConfig.
	baseDir string
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// LoadCalibrationConfig loads a CalibrationConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Relative input paths
// inside the file are resolved against the file's directory.
func LoadCalibrationConfig(path string) (*CalibrationConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := ParseCalibrationConfig(data)
	if err != nil {
		return nil, err
	}
	cfg.baseDir = filepath.Dir(cleanPath)
	return cfg, nil
}

// ParseCalibrationConfig decodes and validates a JSON config document.
// Unknown fields are rejected.
func ParseCalibrationConfig(data []byte) (*CalibrationConfig, error) {
	cfg := &CalibrationConfig{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadEnv loads the given .env files into the process environment. Missing
// files are skipped; variables already set in the environment win.
func LoadEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load env file %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides file settings with POLLENCAL_* environment variables.
func (c *CalibrationConfig) ApplyEnv() error {
	if v := os.Getenv(EnvDatabase); v != "" {
		c.DatabasePath = ptrString(v)
	}
	if v := os.Getenv(EnvOutput); v != "" {
		c.OutputPath = ptrString(v)
	}
	if v := os.Getenv(EnvWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvWorkers, v, err)
		}
		c.Workers = ptrInt(n)
	}
	return c.Validate()
}

// Validate checks that required values are present and all values are valid.
func (c *CalibrationConfig) Validate() error {
	if c.GridResolution == nil {
		return fmt.Errorf("grid_resolution is required")
	}
	if !positiveFinite(*c.GridResolution) {
		return fmt.Errorf("grid_resolution must be positive and finite, got %v", *c.GridResolution)
	}
	if c.NeighborhoodRadius == nil {
		return fmt.Errorf("neighborhood_radius is required")
	}
	if !positiveFinite(*c.NeighborhoodRadius) {
		return fmt.Errorf("neighborhood_radius must be positive and finite, got %v", *c.NeighborhoodRadius)
	}
	if c.AgeWindow == nil {
		return fmt.Errorf("age_window is required")
	}
	if lo, hi := c.AgeWindow[0], c.AgeWindow[1]; math.IsNaN(lo) || math.IsNaN(hi) || lo > hi {
		return fmt.Errorf("age_window must be [lo, hi] with lo <= hi, got [%v, %v]", lo, hi)
	}

	if c.LengthUnits != nil && !units.IsValid(*c.LengthUnits) {
		return fmt.Errorf("length_units must be one of %s, got %q", units.GetValidUnitsString(), *c.LengthUnits)
	}
	if c.SiteReduction != nil {
		switch *c.SiteReduction {
		case "nearest", "sum":
		default:
			return fmt.Errorf("site_reduction must be \"nearest\" or \"sum\", got %q", *c.SiteReduction)
		}
	}
	if c.AgePriority != nil && len(c.AgePriority) == 0 {
		return fmt.Errorf("age_priority must not be empty when set")
	}
	if c.IndexBase != nil && *c.IndexBase != 0 && *c.IndexBase != 1 {
		return fmt.Errorf("index_base must be 0 or 1, got %d", *c.IndexBase)
	}
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}
	if r := c.Region; r != nil {
		if r.MinX > r.MaxX || r.MinY > r.MaxY {
			return fmt.Errorf("region min must not exceed max: %+v", *r)
		}
	}
	return nil
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// GetLengthUnits returns the length_units value or the default.
func (c *CalibrationConfig) GetLengthUnits() string {
	if c.LengthUnits == nil {
		return units.M
	}
	return *c.LengthUnits
}

// GetGridResolutionMeters returns the grid resolution converted to meters.
// Validate guarantees the value is present.
func (c *CalibrationConfig) GetGridResolutionMeters() float64 {
	return units.ToMeters(*c.GridResolution, c.GetLengthUnits())
}

// GetNeighborhoodRadiusMeters returns the neighborhood radius converted to meters.
func (c *CalibrationConfig) GetNeighborhoodRadiusMeters() float64 {
	return units.ToMeters(*c.NeighborhoodRadius, c.GetLengthUnits())
}

// GetGridOrigin returns the lattice origin in grid coordinates, default (0, 0).
func (c *CalibrationConfig) GetGridOrigin() (x, y float64) {
	if c.GridOrigin == nil {
		return 0, 0
	}
	return c.GridOrigin[0], c.GridOrigin[1]
}

// GetAgeWindow returns the inclusive calibration window in years BP.
func (c *CalibrationConfig) GetAgeWindow() (lo, hi float64) {
	return c.AgeWindow[0], c.AgeWindow[1]
}

// GetSiteReduction returns the site_reduction value or the default.
func (c *CalibrationConfig) GetSiteReduction() string {
	if c.SiteReduction == nil {
		return "nearest"
	}
	return *c.SiteReduction
}

// GetSiteSRS returns the reference system of site coordinates.
func (c *CalibrationConfig) GetSiteSRS() string {
	if c.SiteSRS == nil {
		return DefaultSiteSRS
	}
	return *c.SiteSRS
}

// GetGridSRS returns the reference system of the grid.
func (c *CalibrationConfig) GetGridSRS() string {
	if c.GridSRS == nil {
		return DefaultGridSRS
	}
	return *c.GridSRS
}

// GetVegetationSRS returns the reference system of the vegetation product,
// defaulting to the grid system.
func (c *CalibrationConfig) GetVegetationSRS() string {
	if c.VegetationSRS == nil {
		return c.GetGridSRS()
	}
	return *c.VegetationSRS
}

// GetIndexBase returns the index_base value or the default (1).
func (c *CalibrationConfig) GetIndexBase() int {
	if c.IndexBase == nil {
		return 1
	}
	return *c.IndexBase
}

// GetWorkers returns the workers value or GOMAXPROCS.
func (c *CalibrationConfig) GetWorkers() int {
	if c.Workers == nil {
		return runtime.GOMAXPROCS(0)
	}
	return *c.Workers
}

// GetPollenMapName returns the store name of the pollen translation table.
func (c *CalibrationConfig) GetPollenMapName() string {
	if c.PollenMapName == nil {
		return "pollen"
	}
	return *c.PollenMapName
}

// GetVegetationMapName returns the store name of the vegetation translation table.
func (c *CalibrationConfig) GetVegetationMapName() string {
	if c.VegetationMapName == nil {
		return "vegetation"
	}
	return *c.VegetationMapName
}

// ResolvePath returns p resolved against the config file directory.
// Empty or absolute paths are returned unchanged.
func (c *CalibrationConfig) ResolvePath(p *string) string {
	if p == nil || *p == "" {
		return ""
	}
	if filepath.IsAbs(*p) || c.baseDir == "" {
		return filepath.Clean(*p)
	}
	return filepath.Join(c.baseDir, *p)
}
