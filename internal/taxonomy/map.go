package taxonomy

import (
	"fmt"
	"math"
	"sort"
)

// weightTolerance bounds the deviation from 1 of a raw label's weights.
const weightTolerance = 1e-9

// Entry is one row of a translation table. Metadata columns (provenance,
// notes, context) are carried through but never used computationally.
type Entry struct {
	Raw      string
	Target   string
	Weight   float64
	Metadata map[string]string
}

// Map translates raw taxon labels to target taxa.
//
// Many raw labels may share a target. A raw label may also be split over
// several targets by giving it several entries whose weights sum to 1.
type Map struct {
	Name    string
	Entries []Entry
	// Pending lists raw labels that appear in the source table without a
	// target yet (an incompletely edited template). They remain unmapped.
	Pending []string

	index   map[string][]int // normalized raw label -> entry indices
	targets []string
}

// NewMap validates entries and builds a Map. A zero Weight means the weight
// was not given and reads as 1; the CSV and YAML readers reject an explicit
// zero before it gets here.
func NewMap(name string, entries []Entry) (*Map, error) {
	m := &Map{
		Name:    name,
		Entries: make([]Entry, 0, len(entries)),
		index:   make(map[string][]int),
	}
	targets := make(map[string]bool)
	for i, e := range entries {
		e.Target = cleanTarget(e.Target)
		if NormalizeLabel(e.Raw) == "" {
			return nil, fmt.Errorf("%w: %s entry %d has an empty raw label", ErrInvalidMap, name, i)
		}
		if e.Target == "" {
			return nil, fmt.Errorf("%w: %s entry %d (%q) has an empty target", ErrInvalidMap, name, i, e.Raw)
		}
		if e.Weight == 0 {
			e.Weight = 1
		}
		if !(e.Weight > 0) || math.IsInf(e.Weight, 0) {
			return nil, fmt.Errorf("%w: %s entry %d (%q) has weight %v", ErrInvalidMap, name, i, e.Raw, e.Weight)
		}
		key := NormalizeLabel(e.Raw)
		for _, j := range m.index[key] {
			if m.Entries[j].Target == e.Target {
				return nil, fmt.Errorf("%w: %s maps %q to %q twice", ErrInvalidMap, name, e.Raw, e.Target)
			}
		}
		m.index[key] = append(m.index[key], len(m.Entries))
		m.Entries = append(m.Entries, e)
		targets[e.Target] = true
	}

	checked := make(map[string]bool, len(m.index))
	for _, e := range m.Entries {
		key := NormalizeLabel(e.Raw)
		if checked[key] {
			continue
		}
		checked[key] = true
		var sum float64
		for _, j := range m.index[key] {
			sum += m.Entries[j].Weight
		}
		if math.Abs(sum-1) > weightTolerance {
			return nil, fmt.Errorf("%w: %s weights for %q sum to %v, want 1", ErrInvalidMap, name, e.Raw, sum)
		}
	}

	m.targets = make([]string, 0, len(targets))
	for t := range targets {
		m.targets = append(m.targets, t)
	}
	sort.Strings(m.targets)
	return m, nil
}

// Lookup returns the entries for a raw label.
func (m *Map) Lookup(raw string) ([]Entry, bool) {
	idx, ok := m.index[NormalizeLabel(raw)]
	if !ok {
		return nil, false
	}
	out := make([]Entry, len(idx))
	for k, j := range idx {
		out[k] = m.Entries[j]
	}
	return out, true
}

// Targets returns the target vocabulary in sorted order.
func (m *Map) Targets() []string {
	return append([]string(nil), m.targets...)
}

// RawLabels returns the raw labels as written, in entry order, without
// duplicates.
func (m *Map) RawLabels() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range m.Entries {
		key := NormalizeLabel(e.Raw)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e.Raw)
	}
	return out
}

// CheckPair verifies that every target of one map is reachable from the
// other. Both datasets must end up over the same vocabulary.
func CheckPair(a, b *Map) error {
	onlyA, onlyB := diff(a.targets, b.targets)
	if len(onlyA) == 0 && len(onlyB) == 0 {
		return nil
	}
	return &TaxonMismatchError{
		Left:      mapName(a),
		Right:     mapName(b),
		OnlyLeft:  onlyA,
		OnlyRight: onlyB,
	}
}

func mapName(m *Map) string {
	if m.Name == "" {
		return "map"
	}
	return m.Name
}

// diff returns the elements of sorted slices a and b missing from the other.
func diff(a, b []string) (onlyA, onlyB []string) {
	inB := make(map[string]bool, len(b))
	for _, s := range b {
		inB[s] = true
	}
	inA := make(map[string]bool, len(a))
	for _, s := range a {
		inA[s] = true
		if !inB[s] {
			onlyA = append(onlyA, s)
		}
	}
	for _, s := range b {
		if !inA[s] {
			onlyB = append(onlyB, s)
		}
	}
	return onlyA, onlyB
}
