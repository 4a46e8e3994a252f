package taxonomy

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
)

// Translation-table columns.
const (
	ColRaw    = "raw"
	ColTarget = "target"
	ColWeight = "weight"
)

// ReadMapCSV reads a translation table. The header must name the raw and
// target columns; a weight column is optional and every other column is kept
// as entry metadata. Rows whose target is blank are recorded in Map.Pending.
func ReadMapCSV(r io.Reader, name string) (*Map, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read %s header: %w", name, err)
	}

	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	rawIdx, ok := col[ColRaw]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no %q column", ErrMissingColumn, name, ColRaw)
	}
	targetIdx, ok := col[ColTarget]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no %q column", ErrMissingColumn, name, ColTarget)
	}
	weightIdx, hasWeight := col[ColWeight]

	var entries []Entry
	var pending []string
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s line %d: %w", name, line, err)
		}
		e := Entry{Raw: strings.TrimSpace(rec[rawIdx]), Target: strings.TrimSpace(rec[targetIdx])}
		if e.Raw == "" {
			return nil, fmt.Errorf("%w: %s line %d has an empty raw label", ErrInvalidMap, name, line)
		}
		if e.Target == "" {
			pending = append(pending, e.Raw)
			continue
		}
		if hasWeight {
			if s := strings.TrimSpace(rec[weightIdx]); s != "" {
				w, err := strconv.ParseFloat(s, 64)
				if err != nil {
					return nil, fmt.Errorf("%w: %s line %d weight %q: %v", ErrInvalidMap, name, line, s, err)
				}
				if w == 0 {
					return nil, fmt.Errorf("%w: %s line %d: explicit weight 0 for %q; drop the row or leave the weight blank", ErrInvalidMap, name, line, e.Raw)
				}
				e.Weight = w
			}
		}
		for i, h := range header {
			if i == rawIdx || i == targetIdx || (hasWeight && i == weightIdx) {
				continue
			}
			if e.Metadata == nil {
				e.Metadata = make(map[string]string)
			}
			e.Metadata[strings.TrimSpace(h)] = rec[i]
		}
		entries = append(entries, e)
	}

	m, err := NewMap(name, entries)
	if err != nil {
		return nil, err
	}
	m.Pending = pending
	return m, nil
}

// WriteMapCSV writes m in the format read by ReadMapCSV. Metadata columns
// are written in sorted order after the fixed columns.
func WriteMapCSV(w io.Writer, m *Map) error {
	metaSet := make(map[string]bool)
	for _, e := range m.Entries {
		for k := range e.Metadata {
			metaSet[k] = true
		}
	}
	meta := make([]string, 0, len(metaSet))
	for k := range metaSet {
		meta = append(meta, k)
	}
	sort.Strings(meta)

	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{ColRaw, ColTarget, ColWeight}, meta...)); err != nil {
		return err
	}
	for _, e := range m.Entries {
		rec := []string{e.Raw, e.Target, strconv.FormatFloat(e.Weight, 'g', -1, 64)}
		for _, k := range meta {
			rec = append(rec, e.Metadata[k])
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	for _, raw := range m.Pending {
		rec := make([]string, 3+len(meta))
		rec[0] = raw
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type yamlMap struct {
	Name    string      `yaml:"name"`
	Entries []yamlEntry `yaml:"entries"`
}

type yamlEntry struct {
	Raw      string            `yaml:"raw"`
	Target   string            `yaml:"target"`
	Weight   *float64          `yaml:"weight,omitempty"`
	Metadata map[string]string `yaml:"metadata,omitempty"`
}

// ReadMapYAML reads a translation table written as YAML:
//
//	name: pollen
//	entries:
//	  - raw: Pinus strobus
//	    target: PINE
//	    metadata: {source: "expert review 2024"}
//
// A name in the document overrides the name argument.
func ReadMapYAML(r io.Reader, name string) (*Map, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	var doc yamlMap
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalidMap, name, err)
	}
	if doc.Name != "" {
		name = doc.Name
	}

	var entries []Entry
	var pending []string
	for i, ye := range doc.Entries {
		if strings.TrimSpace(ye.Target) == "" {
			pending = append(pending, ye.Raw)
			continue
		}
		e := Entry{Raw: ye.Raw, Target: ye.Target, Metadata: ye.Metadata}
		if ye.Weight != nil {
			if *ye.Weight == 0 {
				return nil, fmt.Errorf("%w: %s entry %d: explicit weight 0 for %q; drop the entry or omit the weight", ErrInvalidMap, name, i, ye.Raw)
			}
			e.Weight = *ye.Weight
		}
		entries = append(entries, e)
	}
	m, err := NewMap(name, entries)
	if err != nil {
		return nil, err
	}
	m.Pending = pending
	return m, nil
}

// ReadTableCSV reads a wide table. Columns named in idColumns are identifier
// columns and must all be present; every other column is a taxon. Blank
// taxon cells read as zero (an absent taxon in a wide count table). Values
// that do not parse, are negative or are not finite are errors naming the
// line and column.
func ReadTableCSV(r io.Reader, idColumns []string) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	seen := make(map[string]bool, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if seen[h] {
			return nil, fmt.Errorf("duplicate column %q", h)
		}
		seen[h] = true
		header[i] = h
	}

	isID := make(map[string]int, len(idColumns))
	for k, c := range idColumns {
		isID[c] = k
	}
	idPos := make([]int, len(idColumns))
	for k, c := range idColumns {
		idPos[k] = -1
		for i, h := range header {
			if h == c {
				idPos[k] = i
			}
		}
		if idPos[k] < 0 {
			return nil, fmt.Errorf("%w: identifier column %q", ErrMissingColumn, c)
		}
	}
	var taxa []string
	var taxonPos []int
	for i, h := range header {
		if _, ok := isID[h]; ok {
			continue
		}
		taxa = append(taxa, h)
		taxonPos = append(taxonPos, i)
	}

	t := NewTable(idColumns, taxa)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		ids := make([]string, len(idColumns))
		for k, i := range idPos {
			ids[k] = strings.TrimSpace(rec[i])
		}
		values := make([]float64, len(taxa))
		for k, i := range taxonPos {
			s := strings.TrimSpace(rec[i])
			if s == "" {
				continue
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %q: %w", line, taxa[k], err)
			}
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("line %d column %q: invalid value %v", line, taxa[k], v)
			}
			values[k] = v
		}
		t.IDs = append(t.IDs, ids)
		t.Values = append(t.Values, values)
	}
	return t, nil
}

// WriteTableCSV writes t with identifier columns first.
func WriteTableCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	header := append(append([]string(nil), t.IDColumns...), t.Taxa...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i := range t.Values {
		rec := append([]string(nil), t.IDs[i]...)
		for _, v := range t.Values[i] {
			rec = append(rec, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
