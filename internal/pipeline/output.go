package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/banshee-data/pollencal/internal/agemodel"
	"github.com/banshee-data/pollencal/internal/assemble"
	"github.com/banshee-data/pollencal/internal/fsutil"
	"github.com/banshee-data/pollencal/internal/taxonomy"
)

// Report is the run summary written next to the model input.
type Report struct {
	assemble.Provenance
	GridSRS string `json:"grid_srs"`
	Dims    [2]int `json:"grid_dims"`
	// LonLatBounds is [min lon, min lat, max lon, max lat] of the grid.
	LonLatBounds [4]float64           `json:"lonlat_bounds"`
	EmptyCells   []int                `json:"empty_cells,omitempty"`
	Excluded     []agemodel.Exclusion `json:"excluded,omitempty"`
	AgeModels    map[string]string    `json:"age_models,omitempty"`
}

// Report summarizes res.
func (res *Result) Report() Report {
	rep := Report{
		Provenance: res.Input.Provenance,
		GridSRS:    res.Grid.Spec.SRS,
		EmptyCells: res.Join.Empty,
		Excluded:   res.Selection.Excluded,
	}
	rep.Dims[0], rep.Dims[1] = res.Grid.Dims()
	qb := res.QueryBounds
	rep.LonLatBounds = [4]float64{qb.Min.X, qb.Min.Y, qb.Max.X, qb.Max.Y}
	if len(res.Selection.Sites) > 0 {
		rep.AgeModels = make(map[string]string, len(res.Selection.Sites))
		for _, s := range res.Selection.Sites {
			rep.AgeModels[s.SiteID] = s.AgeModel
		}
	}
	return rep
}

// OutputPaths are the files written by WriteOutputs.
type OutputPaths struct {
	Input  string
	Report string
	SD     string // empty when the run had no vegetation uncertainty
}

// PathsFor derives the companion file names from the model input path.
func PathsFor(path string, withSD bool) OutputPaths {
	stem := strings.TrimSuffix(path, filepath.Ext(path))
	p := OutputPaths{Input: path, Report: stem + ".meta.json"}
	if withSD {
		p.SD = stem + ".sd.csv"
	}
	return p
}

// WriteOutputs writes the model input JSON to path, the run report and,
// when present, the translated vegetation uncertainty.
func WriteOutputs(fsys fsutil.FileSystem, path string, res *Result) (OutputPaths, error) {
	paths := PathsFor(path, res.VegetationSD != nil)
	if dir := filepath.Dir(path); dir != "." {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return paths, fmt.Errorf("create output directory: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := res.Input.WriteJSON(&buf); err != nil {
		return paths, fmt.Errorf("encode model input: %w", err)
	}
	if err := fsys.WriteFile(paths.Input, buf.Bytes(), 0o644); err != nil {
		return paths, err
	}

	report, err := json.MarshalIndent(res.Report(), "", "  ")
	if err != nil {
		return paths, fmt.Errorf("encode report: %w", err)
	}
	if err := fsys.WriteFile(paths.Report, append(report, '\n'), 0o644); err != nil {
		return paths, err
	}

	if paths.SD != "" {
		buf.Reset()
		if err := taxonomy.WriteTableCSV(&buf, res.VegetationSD); err != nil {
			return paths, fmt.Errorf("encode vegetation uncertainty: %w", err)
		}
		if err := fsys.WriteFile(paths.SD, buf.Bytes(), 0o644); err != nil {
			return paths, err
		}
	}
	return paths, nil
}
