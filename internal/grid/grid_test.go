package grid

import (
	"errors"
	"math"
	"testing"

	"github.com/ctessum/geom"
	"github.com/google/go-cmp/cmp"
)

func bounds(x0, y0, x1, y1 float64) geom.Bounds {
	return geom.Bounds{Min: geom.Point{X: x0, Y: y0}, Max: geom.Point{X: x1, Y: y1}}
}

func TestBuild_Determinism(t *testing.T) {
	region := bounds(-3.2, 1.7, 40.1, 22.9)
	spec := Spec{Resolution: 8, Origin: geom.Point{X: 0, Y: 0}, SRS: "EPSG:3175"}

	a, err := Build(region, spec)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	b, err := Build(region, spec)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if diff := cmp.Diff(a.Cells, b.Cells); diff != "" {
		t.Errorf("repeated builds differ (-first +second):\n%s", diff)
	}
	for i, c := range a.Cells {
		if c.ID != i {
			t.Fatalf("cell %d has id %d", i, c.ID)
		}
	}
}

func TestBuild_EdgePolicy(t *testing.T) {
	tests := []struct {
		name       string
		region     geom.Bounds
		res        float64
		wantCols   int
		wantRows   int
		wantFirstC geom.Point
	}{
		{"aligned region", bounds(0, 0, 2, 1), 1, 2, 1, geom.Point{X: 0.5, Y: 0.5}},
		{"partial overlap included", bounds(0.2, 0.2, 2.7, 1.1), 1, 3, 2, geom.Point{X: 0.5, Y: 0.5}},
		{"negative coordinates", bounds(-1.5, -0.5, 0, 0), 1, 2, 1, geom.Point{X: -1.5, Y: -0.5}},
		{"point region", bounds(0.5, 0.5, 0.5, 0.5), 1, 1, 1, geom.Point{X: 0.5, Y: 0.5}},
		{"point on lattice line", bounds(1, 1, 1, 1), 1, 1, 1, geom.Point{X: 1.5, Y: 1.5}},
		{"float noise on edge", bounds(0, 0, 0.30000000000000004, 0.1), 0.1, 3, 1, geom.Point{X: 0.05, Y: 0.05}},
		{"sliver overlap kept", bounds(0, 0, 1.0000000001, 1), 1, 2, 1, geom.Point{X: 0.5, Y: 0.5}},
		{"sliver below origin kept", bounds(-1e-10, 0, 1, 1), 1, 2, 1, geom.Point{X: -0.5, Y: 0.5}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g, err := Build(tc.region, Spec{Resolution: tc.res})
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			cols, rows := g.Dims()
			if cols != tc.wantCols || rows != tc.wantRows {
				t.Fatalf("dims = %dx%d, want %dx%d", cols, rows, tc.wantCols, tc.wantRows)
			}
			if g.Len() != cols*rows {
				t.Fatalf("Len = %d, want %d", g.Len(), cols*rows)
			}
			first := g.Cells[0].Center
			if math.Abs(first.X-tc.wantFirstC.X) > 1e-12 || math.Abs(first.Y-tc.wantFirstC.Y) > 1e-12 {
				t.Errorf("first center = %v, want %v", first, tc.wantFirstC)
			}
		})
	}
}

func TestBuild_RowMajorOrder(t *testing.T) {
	g, err := Build(bounds(0, 0, 2, 2), Spec{Resolution: 1})
	if err != nil {
		t.Fatal(err)
	}
	want := []geom.Point{{X: 0.5, Y: 0.5}, {X: 1.5, Y: 0.5}, {X: 0.5, Y: 1.5}, {X: 1.5, Y: 1.5}}
	var got []geom.Point
	for _, c := range g.Cells {
		got = append(got, c.Center)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("centers (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 1, 2, 3}, IDs(g.Cells)); diff != "" {
		t.Errorf("ids (-want +got):\n%s", diff)
	}
}

func TestBuild_OriginShiftsLattice(t *testing.T) {
	g, err := Build(bounds(0, 0, 1, 1), Spec{Resolution: 1, Origin: geom.Point{X: 0.5, Y: 0.5}})
	if err != nil {
		t.Fatal(err)
	}
	cols, rows := g.Dims()
	if cols != 2 || rows != 2 {
		t.Fatalf("dims = %dx%d, want 2x2", cols, rows)
	}
	if got := g.Cells[0].Center; got.X != 0 || got.Y != 0 {
		t.Errorf("first center = %v, want (0,0)", got)
	}
	want := bounds(-0.5, -0.5, 1.5, 1.5)
	if got := g.Bounds(); got != want {
		t.Errorf("Bounds = %v, want %v", got, want)
	}
}

func TestBuild_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		region geom.Bounds
		spec   Spec
	}{
		{"zero resolution", bounds(0, 0, 1, 1), Spec{Resolution: 0}},
		{"negative resolution", bounds(0, 0, 1, 1), Spec{Resolution: -1}},
		{"NaN resolution", bounds(0, 0, 1, 1), Spec{Resolution: math.NaN()}},
		{"inverted", bounds(1, 0, 0, 1), Spec{Resolution: 1}},
		{"infinite region", bounds(0, 0, math.Inf(1), 1), Spec{Resolution: 1}},
		{"too many cells", bounds(0, 0, 1e6, 1e6), Spec{Resolution: 1}},
		{"tiny resolution", bounds(0, 0, 10000, 0), Spec{Resolution: 1e-15}},
		{"huge region", bounds(-1e300, -1e300, 1e300, 1e300), Spec{Resolution: 1}},
		{"far from origin", bounds(1e18, 0, 1e18+4096, 1), Spec{Resolution: 1}},
		{"too many columns", bounds(0, 0, 3e7, 0), Spec{Resolution: 1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Build(tc.region, tc.spec); !errors.Is(err, ErrInvalidSpec) {
				t.Errorf("expected ErrInvalidSpec, got %v", err)
			}
		})
	}
}

func TestLocate(t *testing.T) {
	g, err := Build(bounds(0, 0, 3, 2), Spec{Resolution: 1})
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range g.Cells {
		id, ok := g.Locate(c.Center)
		if !ok || id != c.ID {
			t.Errorf("Locate(center of %d) = %d, %v", c.ID, id, ok)
		}
	}

	// lower-left edges belong to the cell, interior upper-right edges to the next
	if id, ok := g.Locate(geom.Point{X: 1, Y: 0}); !ok || id != 1 {
		t.Errorf("Locate(1,0) = %d, %v, want 1", id, ok)
	}
	// the region is closed: its upper edges belong to the last column and row
	if id, ok := g.Locate(geom.Point{X: 3, Y: 0.5}); !ok || id != 2 {
		t.Errorf("Locate(3,0.5) = %d, %v, want 2", id, ok)
	}
	if id, ok := g.Locate(geom.Point{X: 3, Y: 2}); !ok || id != 5 {
		t.Errorf("Locate(3,2) = %d, %v, want 5", id, ok)
	}
	if _, ok := g.Locate(geom.Point{X: 3.0001, Y: 0.5}); ok {
		t.Error("Locate right of grid should miss")
	}
	if _, ok := g.Locate(geom.Point{X: 1e300, Y: 0.5}); ok {
		t.Error("Locate far outside should miss")
	}
	if _, ok := g.Locate(geom.Point{X: -0.1, Y: 0.5}); ok {
		t.Error("Locate left of grid should miss")
	}
	if _, ok := g.Locate(geom.Point{X: math.NaN(), Y: 0.5}); ok {
		t.Error("Locate NaN should miss")
	}
}

func TestJoin(t *testing.T) {
	g, err := Build(bounds(0, 0, 2, 2), Spec{Resolution: 1})
	if err != nil {
		t.Fatal(err)
	}

	records := []geom.Point{{X: 1.5, Y: 1.5}, {X: 0.5, Y: 0.5}, {X: 1.5, Y: 0.5}}
	a, err := g.Join(records)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if diff := cmp.Diff([]int{0, 1, 3}, IDs(a.Cells)); diff != "" {
		t.Errorf("cells (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 2, 0}, a.Records); diff != "" {
		t.Errorf("records (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{2}, a.Empty); diff != "" {
		t.Errorf("empty (-want +got):\n%s", diff)
	}
}

func TestJoin_Errors(t *testing.T) {
	g, err := Build(bounds(0, 0, 2, 2), Spec{Resolution: 1})
	if err != nil {
		t.Fatal(err)
	}

	_, err = g.Join([]geom.Point{{X: 0.5, Y: 0.5}, {X: 5, Y: 5}})
	if !errors.Is(err, ErrOutsideGrid) {
		t.Errorf("expected ErrOutsideGrid, got %v", err)
	}

	// upper edge of the region joins the last cell
	a, err := g.Join([]geom.Point{{X: 2, Y: 2}})
	if err != nil {
		t.Fatalf("Join on region max: %v", err)
	}
	if diff := cmp.Diff([]int{3}, IDs(a.Cells)); diff != "" {
		t.Errorf("cells (-want +got):\n%s", diff)
	}

	_, err = g.Join([]geom.Point{{X: 0.25, Y: 0.25}, {X: 0.75, Y: 0.75}})
	if !errors.Is(err, ErrDuplicateCell) {
		t.Errorf("expected ErrDuplicateCell, got %v", err)
	}
}
