package grid

import (
	"errors"
	"fmt"
	"math"

	"github.com/ctessum/geom"
)

// MaxCells bounds the size of a single grid.
const MaxCells = 20_000_000

// snapULPs is how many units in the last place a lattice quotient may sit
// from an integer and still be treated as lying on that lattice line.
const snapULPs = 8

// maxIndex bounds lattice indices so that they convert to int exactly.
const maxIndex = 1 << 40

// ErrInvalidSpec is returned for unusable grid arguments.
var ErrInvalidSpec = errors.New("invalid grid spec")

// Spec fixes the lattice of a grid.
type Spec struct {
	Resolution float64    // linear cell size, in the units of the reference system
	Origin     geom.Point // lattice origin; cell edges fall on Origin + k*Resolution
	SRS        string     // reference system tag, carried for provenance
}

// Cell is one grid cell.
type Cell struct {
	ID     int
	Col    int // lattice column, relative to Spec.Origin
	Row    int // lattice row, relative to Spec.Origin
	Center geom.Point
}

// Grid is an ordered set of cells covering a region.
type Grid struct {
	Spec   Spec
	Region geom.Bounds
	Cells  []Cell

	col0, row0 int
	ncol, nrow int
}

// Build tiles region with square cells of spec.Resolution.
func Build(region geom.Bounds, spec Spec) (*Grid, error) {
	res := spec.Resolution
	if !(res > 0) || math.IsInf(res, 0) {
		return nil, fmt.Errorf("%w: resolution must be positive and finite, got %v", ErrInvalidSpec, res)
	}
	for _, v := range []float64{region.Min.X, region.Min.Y, region.Max.X, region.Max.Y, spec.Origin.X, spec.Origin.Y} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite region or origin", ErrInvalidSpec)
		}
	}
	if region.Min.X > region.Max.X || region.Min.Y > region.Max.Y {
		return nil, fmt.Errorf("%w: inverted region %v", ErrInvalidSpec, region)
	}

	col0, col1, err := axisRange(region.Min.X, region.Max.X, spec.Origin.X, res)
	if err != nil {
		return nil, fmt.Errorf("%w: x axis: %v", ErrInvalidSpec, err)
	}
	row0, row1, err := axisRange(region.Min.Y, region.Max.Y, spec.Origin.Y, res)
	if err != nil {
		return nil, fmt.Errorf("%w: y axis: %v", ErrInvalidSpec, err)
	}
	ncol, nrow := col1-col0+1, row1-row0+1
	if float64(ncol)*float64(nrow) > MaxCells {
		return nil, fmt.Errorf("%w: %d x %d cells exceeds limit of %d", ErrInvalidSpec, ncol, nrow, MaxCells)
	}

	g := &Grid{
		Spec:   spec,
		Region: region,
		Cells:  make([]Cell, 0, ncol*nrow),
		col0:   col0,
		row0:   row0,
		ncol:   ncol,
		nrow:   nrow,
	}
	for j := row0; j <= row1; j++ {
		for i := col0; i <= col1; i++ {
			g.Cells = append(g.Cells, Cell{
				ID:     len(g.Cells),
				Col:    i,
				Row:    j,
				Center: g.center(i, j),
			})
		}
	}
	return g, nil
}

// axisRange returns the inclusive lattice index range of cells overlapping
// [lo, hi] along one axis. Spans are checked in float64 before any index is
// converted to int.
func axisRange(lo, hi, origin, res float64) (first, last int, err error) {
	qlo := snapFloor((lo - origin) / res)
	qhi := snapCeil((hi - origin) / res)
	if math.Abs(qlo) > maxIndex || math.Abs(qhi) > maxIndex {
		return 0, 0, fmt.Errorf("region lies beyond %d cells of the origin", maxIndex)
	}
	if qhi-qlo > MaxCells {
		return 0, 0, fmt.Errorf("%.0f cells exceeds limit of %d", qhi-qlo, MaxCells)
	}
	first = int(qlo)
	last = int(qhi) - 1
	if last < first {
		last = first
	}
	return first, last, nil
}

// onLattice reports the integer nearest q when q is within a few ULPs of it.
func onLattice(q float64) (float64, bool) {
	r := math.Round(q)
	tol := snapULPs * math.Max(1, math.Abs(q)) * 0x1p-52
	return r, math.Abs(q-r) <= tol
}

func snapFloor(q float64) float64 {
	if r, ok := onLattice(q); ok {
		return r
	}
	return math.Floor(q)
}

func snapCeil(q float64) float64 {
	if r, ok := onLattice(q); ok {
		return r
	}
	return math.Ceil(q)
}

func (g *Grid) center(col, row int) geom.Point {
	res := g.Spec.Resolution
	return geom.Point{
		X: g.Spec.Origin.X + (float64(col)+0.5)*res,
		Y: g.Spec.Origin.Y + (float64(row)+0.5)*res,
	}
}

// Len returns the number of cells.
func (g *Grid) Len() int { return len(g.Cells) }

// Dims returns the number of columns and rows.
func (g *Grid) Dims() (cols, rows int) { return g.ncol, g.nrow }

// Bounds returns the union of all cell footprints.
func (g *Grid) Bounds() geom.Bounds {
	res := g.Spec.Resolution
	o := g.Spec.Origin
	return geom.Bounds{
		Min: geom.Point{X: o.X + float64(g.col0)*res, Y: o.Y + float64(g.row0)*res},
		Max: geom.Point{X: o.X + float64(g.col0+g.ncol)*res, Y: o.Y + float64(g.row0+g.nrow)*res},
	}
}

// Locate returns the id of the cell whose half-open footprint contains p.
// The region is closed: a point on Region.Max that falls on the grid's
// upper edge belongs to the last column or row.
func (g *Grid) Locate(p geom.Point) (int, bool) {
	i, ok := g.locateAxis(p.X, g.Spec.Origin.X, g.Region.Max.X, g.col0, g.ncol)
	if !ok {
		return 0, false
	}
	j, ok := g.locateAxis(p.Y, g.Spec.Origin.Y, g.Region.Max.Y, g.row0, g.nrow)
	if !ok {
		return 0, false
	}
	return j*g.ncol + i, true
}

func (g *Grid) locateAxis(v, origin, hi float64, first, n int) (int, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	q := snapFloor((v - origin) / g.Spec.Resolution)
	if q < float64(first) || q > float64(first+n) {
		return 0, false
	}
	k := int(q) - first
	if k == n {
		if v > hi {
			return 0, false
		}
		k--
	}
	return k, true
}
