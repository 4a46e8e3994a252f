package geo

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
)

// DefaultDensify is the number of segments each bounding-box edge is split
// into before transformation.
const DefaultDensify = 16

// DensifyBounds returns the closed outline of b with each edge split into n
// segments, counter-clockwise from the lower-left corner.
func DensifyBounds(b geom.Bounds, n int) []geom.Point {
	if n < 1 {
		n = 1
	}
	dx := (b.Max.X - b.Min.X) / float64(n)
	dy := (b.Max.Y - b.Min.Y) / float64(n)
	pts := make([]geom.Point, 0, 4*n+1)
	for i := 0; i < n; i++ {
		pts = append(pts, geom.Point{X: b.Min.X + dx*float64(i), Y: b.Min.Y})
	}
	for i := 0; i < n; i++ {
		pts = append(pts, geom.Point{X: b.Max.X, Y: b.Min.Y + dy*float64(i)})
	}
	for i := 0; i < n; i++ {
		pts = append(pts, geom.Point{X: b.Max.X - dx*float64(i), Y: b.Max.Y})
	}
	for i := 0; i < n; i++ {
		pts = append(pts, geom.Point{X: b.Min.X, Y: b.Max.Y - dy*float64(i)})
	}
	return append(pts, b.Min)
}

// TransformBounds returns the bounding box, in the target system, of b's
// outline densified to n segments per edge.
func (t *Transformer) TransformBounds(b geom.Bounds, n int) (geom.Bounds, error) {
	if b.Min.X > b.Max.X || b.Min.Y > b.Max.Y {
		return geom.Bounds{}, fmt.Errorf("inverted bounds %v", b)
	}
	pts, err := t.Transform(DensifyBounds(b, n))
	if err != nil {
		return geom.Bounds{}, err
	}
	return Extent(pts), nil
}

// Extent returns the bounding box of pts. An empty slice yields an inverted
// (empty) box.
func Extent(pts []geom.Point) geom.Bounds {
	out := geom.Bounds{
		Min: geom.Point{X: math.Inf(1), Y: math.Inf(1)},
		Max: geom.Point{X: math.Inf(-1), Y: math.Inf(-1)},
	}
	for _, p := range pts {
		out.Min.X = math.Min(out.Min.X, p.X)
		out.Min.Y = math.Min(out.Min.Y, p.Y)
		out.Max.X = math.Max(out.Max.X, p.X)
		out.Max.Y = math.Max(out.Max.Y, p.Y)
	}
	return out
}

// GeographicBounds returns the lat/long bounding box of a region given in the
// projected system srs, suitable for an archive bounding-box query.
func GeographicBounds(region geom.Bounds, srs string) (geom.Bounds, error) {
	t, err := NewTransformer(srs, WGS84)
	if err != nil {
		return geom.Bounds{}, err
	}
	return t.TransformBounds(region, DefaultDensify)
}
