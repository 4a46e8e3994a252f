package geo

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
)

// Transformer reprojects coordinates from one system to another.
// A Transformer is safe for concurrent use.
type Transformer struct {
	src, dst *System
	fn       proj.Transformer // nil when src and dst share a definition
}

// NewTransformer parses both systems and prepares the transform.
func NewTransformer(src, dst string) (*Transformer, error) {
	s, err := ParseSystem(src)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	d, err := ParseSystem(dst)
	if err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}
	return newTransformer(s, d)
}

func newTransformer(s, d *System) (*Transformer, error) {
	t := &Transformer{src: s, dst: d}
	if s.Definition == d.Definition {
		return t, nil
	}
	fn, err := s.sr.NewTransform(d.sr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s -> %s: %v", ErrInvalidReferenceSystem, s.ID, d.ID, err)
	}
	t.fn = fn
	return t, nil
}

// Source returns the source system.
func (t *Transformer) Source() *System { return t.src }

// Target returns the target system.
func (t *Transformer) Target() *System { return t.dst }

// Inverse returns the transform from target back to source.
func (t *Transformer) Inverse() (*Transformer, error) {
	return newTransformer(t.dst, t.src)
}

// Transform returns pts re-expressed in the target system. The input is not
// modified. The first point outside the domain of validity aborts the call
// with a *TransformError.
func (t *Transformer) Transform(pts []geom.Point) ([]geom.Point, error) {
	out := make([]geom.Point, len(pts))
	for i, p := range pts {
		q, err := t.point(p)
		if err != nil {
			return nil, &TransformError{Index: i, Point: p, From: t.src.ID, To: t.dst.ID, Err: err}
		}
		out[i] = q
	}
	return out, nil
}

// Point transforms a single coordinate.
func (t *Transformer) Point(p geom.Point) (geom.Point, error) {
	q, err := t.point(p)
	if err != nil {
		return geom.Point{}, &TransformError{Point: p, From: t.src.ID, To: t.dst.ID, Err: err}
	}
	return q, nil
}

func (t *Transformer) point(p geom.Point) (geom.Point, error) {
	if err := checkDomain(p, t.src.Geographic); err != nil {
		return geom.Point{}, err
	}
	if t.fn == nil {
		return p, nil
	}
	x, y, err := t.fn(p.X, p.Y)
	if err != nil {
		return geom.Point{}, err
	}
	q := geom.Point{X: x, Y: y}
	if !finite(q) {
		return geom.Point{}, fmt.Errorf("non-finite result (%g, %g)", x, y)
	}
	if err := checkDomain(q, t.dst.Geographic); err != nil {
		return geom.Point{}, fmt.Errorf("result %w", err)
	}
	return q, nil
}

func checkDomain(p geom.Point, geographic bool) error {
	if !finite(p) {
		return fmt.Errorf("non-finite coordinate")
	}
	if geographic {
		if p.X < -180 || p.X > 180 {
			return fmt.Errorf("longitude %g outside [-180, 180]", p.X)
		}
		if p.Y < -90 || p.Y > 90 {
			return fmt.Errorf("latitude %g outside [-90, 90]", p.Y)
		}
	}
	return nil
}

func finite(p geom.Point) bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// Reproject is a convenience wrapper around NewTransformer and Transform.
func Reproject(pts []geom.Point, src, dst string) ([]geom.Point, error) {
	t, err := NewTransformer(src, dst)
	if err != nil {
		return nil, err
	}
	return t.Transform(pts)
}
