package taxonomy

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// TemplateRow describes one raw label found in the data.
type TemplateRow struct {
	Raw         string
	Target      string // prefilled from an earlier map version, else empty
	Weight      float64
	Occurrences int     // rows with a non-zero value
	Total       float64 // summed value across rows
}

// Template is the skeleton of a translation table, to be completed by a
// domain expert and read back with ReadMapCSV.
type Template struct {
	Rows []TemplateRow
}

// BuildTemplate enumerates every distinct raw taxon label across tables,
// sorted by normalized label. Labels that normalize alike are merged under
// the first spelling seen.
func BuildTemplate(tables ...*Table) *Template {
	byKey := make(map[string]*TemplateRow)
	var keys []string
	for _, t := range tables {
		for j, raw := range t.Taxa {
			key := NormalizeLabel(raw)
			row, ok := byKey[key]
			if !ok {
				row = &TemplateRow{Raw: raw}
				byKey[key] = row
				keys = append(keys, key)
			}
			for _, values := range t.Values {
				if v := values[j]; v != 0 {
					row.Occurrences++
					row.Total += v
				}
			}
		}
	}
	sort.Strings(keys)

	tpl := &Template{Rows: make([]TemplateRow, len(keys))}
	for i, k := range keys {
		tpl.Rows[i] = *byKey[k]
	}
	return tpl
}

// Prefill copies targets and weights from an existing map version for every
// raw label it already covers. Split labels yield one row per target.
// It returns the number of rows left without a target.
func (tpl *Template) Prefill(prev *Map) int {
	var rows []TemplateRow
	pending := 0
	for _, r := range tpl.Rows {
		entries, ok := prev.Lookup(r.Raw)
		if !ok {
			rows = append(rows, r)
			pending++
			continue
		}
		for _, e := range entries {
			filled := r
			filled.Target = e.Target
			filled.Weight = e.Weight
			rows = append(rows, filled)
		}
	}
	tpl.Rows = rows
	return pending
}

// Template CSV columns. Occurrences and total are informational metadata.
var templateHeader = []string{ColRaw, ColTarget, ColWeight, "occurrences", "total"}

// WriteCSV writes the template in the translation-table format.
func (tpl *Template) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(templateHeader); err != nil {
		return err
	}
	for _, r := range tpl.Rows {
		weight := ""
		if r.Target != "" {
			weight = strconv.FormatFloat(r.Weight, 'g', -1, 64)
		}
		rec := []string{
			r.Raw,
			r.Target,
			weight,
			strconv.Itoa(r.Occurrences),
			strconv.FormatFloat(r.Total, 'g', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write template row %q: %w", r.Raw, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
