package taxonomy

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Table is a wide numeric table: identifier columns followed by one value
// column per taxon. Rows are records (samples, sites or grid cells).
type Table struct {
	IDColumns []string
	Taxa      []string
	IDs       [][]string  // IDs[row] aligned with IDColumns
	Values    [][]float64 // Values[row] aligned with Taxa
}

// NewTable returns an empty table with the given columns.
func NewTable(idColumns, taxa []string) *Table {
	return &Table{
		IDColumns: append([]string(nil), idColumns...),
		Taxa:      append([]string(nil), taxa...),
	}
}

// AddRow appends a row. ids and values are copied.
func (t *Table) AddRow(ids []string, values []float64) error {
	if len(ids) != len(t.IDColumns) {
		return fmt.Errorf("row has %d identifiers, table has %d identifier columns", len(ids), len(t.IDColumns))
	}
	if len(values) != len(t.Taxa) {
		return fmt.Errorf("row has %d values, table has %d taxa", len(values), len(t.Taxa))
	}
	t.IDs = append(t.IDs, append([]string(nil), ids...))
	t.Values = append(t.Values, append([]float64(nil), values...))
	return nil
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Values) }

// IDColumn returns the index of the named identifier column.
func (t *Table) IDColumn(name string) (int, error) {
	for i, c := range t.IDColumns {
		if c == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: identifier column %q", ErrMissingColumn, name)
}

// TaxonColumn returns the index of the named taxon column.
func (t *Table) TaxonColumn(name string) (int, error) {
	for i, c := range t.Taxa {
		if c == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: taxon column %q", ErrMissingColumn, name)
}

// Column returns the values of the named identifier column.
func (t *Table) Column(name string) ([]string, error) {
	j, err := t.IDColumn(name)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(t.IDs))
	for i, row := range t.IDs {
		out[i] = row[j]
	}
	return out, nil
}

// RowSum returns the total of row i.
func (t *Table) RowSum(i int) float64 {
	return floats.Sum(t.Values[i])
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	return t.Subset(seq(t.Len()))
}

// Subset returns a new table holding the given rows, in the given order.
func (t *Table) Subset(rows []int) *Table {
	out := NewTable(t.IDColumns, t.Taxa)
	out.IDs = make([][]string, len(rows))
	out.Values = make([][]float64, len(rows))
	for k, r := range rows {
		out.IDs[k] = append([]string(nil), t.IDs[r]...)
		out.Values[k] = append([]float64(nil), t.Values[r]...)
	}
	return out
}

// Aggregate sums groups of rows into new rows. groups[k] lists the source rows
// of output row k; ids[k] are its identifiers under idColumns.
func (t *Table) Aggregate(groups [][]int, idColumns []string, ids [][]string) (*Table, error) {
	if len(groups) != len(ids) {
		return nil, fmt.Errorf("aggregate: %d groups but %d identifier rows", len(groups), len(ids))
	}
	out := NewTable(idColumns, t.Taxa)
	sum := make([]float64, len(t.Taxa))
	for k, g := range groups {
		if len(g) == 0 {
			return nil, fmt.Errorf("aggregate: group %d is empty", k)
		}
		for j := range sum {
			sum[j] = 0
		}
		for _, r := range g {
			if r < 0 || r >= t.Len() {
				return nil, fmt.Errorf("aggregate: group %d references row %d of %d", k, r, t.Len())
			}
			floats.Add(sum, t.Values[r])
		}
		if err := out.AddRow(ids[k], sum); err != nil {
			return nil, fmt.Errorf("aggregate: %w", err)
		}
	}
	return out, nil
}

// Reorder returns a copy whose taxon columns follow order, which must be a
// permutation of t.Taxa.
func (t *Table) Reorder(order []string) (*Table, error) {
	if len(order) != len(t.Taxa) {
		return nil, fmt.Errorf("reorder: %d taxa given, table has %d", len(order), len(t.Taxa))
	}
	perm := make([]int, len(order))
	seen := make(map[string]bool, len(order))
	for k, name := range order {
		if seen[name] {
			return nil, fmt.Errorf("reorder: taxon %q listed twice", name)
		}
		seen[name] = true
		j, err := t.TaxonColumn(name)
		if err != nil {
			return nil, fmt.Errorf("reorder: %w", err)
		}
		perm[k] = j
	}
	out := NewTable(t.IDColumns, order)
	for i := range t.Values {
		row := make([]float64, len(perm))
		for k, j := range perm {
			row[k] = t.Values[i][j]
		}
		out.IDs = append(out.IDs, append([]string(nil), t.IDs[i]...))
		out.Values = append(out.Values, row)
	}
	return out, nil
}

// Matrix returns the values as a rows × taxa dense matrix, or nil for an
// empty table.
func (t *Table) Matrix() *mat.Dense {
	if t.Len() == 0 || len(t.Taxa) == 0 {
		return nil
	}
	m := mat.NewDense(t.Len(), len(t.Taxa), nil)
	for i, row := range t.Values {
		m.SetRow(i, row)
	}
	return m
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
