package pipeline

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/banshee-data/pollencal/internal/fsutil"
	"github.com/banshee-data/pollencal/internal/monitoring"
	"github.com/banshee-data/pollencal/internal/records"
	"github.com/banshee-data/pollencal/internal/taxonomy"
)

// Template file names written by WriteTemplates.
const (
	PollenTemplateFile     = "pollen_template.csv"
	VegetationTemplateFile = "vegetation_template.csv"
)

// TemplateSet holds the skeleton translation tables of one dataset pair.
// Prev maps, when set, prefill rows an earlier map version already covers.
type TemplateSet struct {
	Pollen         *records.PollenData
	Vegetation     *records.VegetationData
	PrevPollen     *taxonomy.Map
	PrevVegetation *taxonomy.Map
}

// WriteTemplates writes one template CSV per dataset into dir and returns
// the number of raw labels still lacking a target in each.
func WriteTemplates(fsys fsutil.FileSystem, dir string, set TemplateSet) (pollenPending, vegPending int, err error) {
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return 0, 0, fmt.Errorf("create template directory: %w", err)
	}
	pollenPending, err = writeTemplate(fsys, filepath.Join(dir, PollenTemplateFile), set.Pollen.Counts, set.PrevPollen)
	if err != nil {
		return 0, 0, err
	}
	vegPending, err = writeTemplate(fsys, filepath.Join(dir, VegetationTemplateFile), set.Vegetation.Mean, set.PrevVegetation)
	if err != nil {
		return 0, 0, err
	}
	return pollenPending, vegPending, nil
}

func writeTemplate(fsys fsutil.FileSystem, path string, t *taxonomy.Table, prev *taxonomy.Map) (int, error) {
	tpl := taxonomy.BuildTemplate(t)
	pending := len(tpl.Rows)
	if prev != nil {
		pending = tpl.Prefill(prev)
	}
	var buf bytes.Buffer
	if err := tpl.WriteCSV(&buf); err != nil {
		return 0, err
	}
	if err := fsys.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	monitoring.Logf("wrote %s: %d labels, %d without target", path, len(tpl.Rows), pending)
	return pending, nil
}
