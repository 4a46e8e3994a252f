// Package grid builds the regular calibration grid and attaches gridded
// vegetation records to it.
//
// Cells are squares aligned to a fixed lattice origin so that identical
// arguments always reproduce identical cell identifiers, order and
// coordinates. A cell belongs to the grid iff its footprint overlaps the
// region with positive area; for a region that is degenerate along an axis,
// the cell whose half-open footprint contains it along that axis is used.
// A region edge counts as lying on a lattice line only when it is within a
// few ULPs of one, so any measurable overlap keeps its cell.
// Cells are numbered 0..N-1 row-major: rows by ascending y, columns by
// ascending x.
//
// No projection or taxonomy logic lives here; callers reproject coordinates
// with package geo before building or joining.
package grid
