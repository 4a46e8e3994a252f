package grid

import (
	"errors"
	"fmt"

	"github.com/ctessum/geom"
)

var (
	// ErrOutsideGrid is returned when a record falls outside every cell.
	ErrOutsideGrid = errors.New("record outside grid")
	// ErrDuplicateCell is returned when two records fall in the same cell.
	ErrDuplicateCell = errors.New("duplicate record for cell")
)

// Assignment is the result of joining point records onto a grid.
type Assignment struct {
	// Cells holds the cells that received a record, in id order.
	Cells []Cell
	// Records[i] is the index of the record attached to Cells[i].
	Records []int
	// Empty lists the ids of cells that received no record.
	Empty []int
}

// Join attaches each point record to the cell containing it. Every record
// must fall inside the grid and no two records may share a cell.
func (g *Grid) Join(points []geom.Point) (*Assignment, error) {
	owner := make([]int, len(g.Cells))
	for i := range owner {
		owner[i] = -1
	}
	for k, p := range points {
		id, ok := g.Locate(p)
		if !ok {
			return nil, fmt.Errorf("%w: record %d at (%g, %g)", ErrOutsideGrid, k, p.X, p.Y)
		}
		if prev := owner[id]; prev >= 0 {
			return nil, fmt.Errorf("%w: records %d and %d both fall in cell %d", ErrDuplicateCell, prev, k, id)
		}
		owner[id] = k
	}

	a := &Assignment{}
	for id, k := range owner {
		if k < 0 {
			a.Empty = append(a.Empty, id)
			continue
		}
		a.Cells = append(a.Cells, g.Cells[id])
		a.Records = append(a.Records, k)
	}
	return a, nil
}

// IDs returns the identifier of each cell.
func IDs(cells []Cell) []int {
	out := make([]int, len(cells))
	for i, c := range cells {
		out[i] = c.ID
	}
	return out
}
