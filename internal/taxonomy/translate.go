package taxonomy

import (
	"math"
)

// contribution routes one raw column into one target column.
type contribution struct {
	target int
	weight float64
}

// plan resolves every raw column of t against m. It fails on the first
// unmapped raw label in column order.
func plan(t *Table, m *Map) ([][]contribution, []string, error) {
	targets := m.Targets()
	pos := make(map[string]int, len(targets))
	for i, name := range targets {
		pos[name] = i
	}

	routes := make([][]contribution, len(t.Taxa))
	for j, raw := range t.Taxa {
		entries, ok := m.Lookup(raw)
		if !ok {
			return nil, nil, &UnmappedTaxonError{Label: raw, Map: m.Name}
		}
		for _, e := range entries {
			routes[j] = append(routes[j], contribution{target: pos[e.Target], weight: e.Weight})
		}
	}
	return routes, targets, nil
}

// ApplyTranslation re-expresses t over m's target vocabulary. Each output
// value is the weighted sum of every raw column mapped to that target.
// Identifier columns pass through unchanged and t is not modified.
//
// Every raw column is checked, including all-zero ones; the first unmapped
// label yields an *UnmappedTaxonError and no partial output.
func ApplyTranslation(t *Table, m *Map) (*Table, error) {
	routes, targets, err := plan(t, m)
	if err != nil {
		return nil, err
	}

	out := NewTable(t.IDColumns, targets)
	out.IDs = make([][]string, t.Len())
	out.Values = make([][]float64, t.Len())
	for i, row := range t.Values {
		acc := make([]float64, len(targets))
		for j, v := range row {
			for _, c := range routes[j] {
				acc[c.target] += v * c.weight
			}
		}
		out.IDs[i] = append([]string(nil), t.IDs[i]...)
		out.Values[i] = acc
	}
	return out, nil
}

// TranslateVariance translates a table of standard deviations. Raw errors
// are treated as independent, so a target's deviation is
// sqrt(sum of (weight * sd)^2) over its contributing raw columns.
func TranslateVariance(sd *Table, m *Map) (*Table, error) {
	routes, targets, err := plan(sd, m)
	if err != nil {
		return nil, err
	}

	out := NewTable(sd.IDColumns, targets)
	out.IDs = make([][]string, sd.Len())
	out.Values = make([][]float64, sd.Len())
	for i, row := range sd.Values {
		acc := make([]float64, len(targets))
		for j, v := range row {
			for _, c := range routes[j] {
				w := v * c.weight
				acc[c.target] += w * w
			}
		}
		for k := range acc {
			acc[k] = math.Sqrt(acc[k])
		}
		out.IDs[i] = append([]string(nil), sd.IDs[i]...)
		out.Values[i] = acc
	}
	return out, nil
}

// CheckVocabulary verifies that two translated tables carry exactly the same
// taxon columns in the same order.
func CheckVocabulary(a, b *Table, nameA, nameB string) error {
	onlyA, onlyB := diff(a.Taxa, b.Taxa)
	if len(onlyA) > 0 || len(onlyB) > 0 {
		return &TaxonMismatchError{Left: nameA, Right: nameB, OnlyLeft: onlyA, OnlyRight: onlyB}
	}
	if len(a.Taxa) != len(b.Taxa) {
		// same set, different multiplicity
		return &TaxonMismatchError{Left: nameA, Right: nameB, OrderDiffers: true}
	}
	for i := range a.Taxa {
		if a.Taxa[i] != b.Taxa[i] {
			return &TaxonMismatchError{Left: nameA, Right: nameB, OrderDiffers: true}
		}
	}
	return nil
}
