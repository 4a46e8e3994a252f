package neighborhood

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/pollencal/internal/grid"
)

var (
	// ErrEmptyDomain is returned when a site ends up with no candidate cells.
	ErrEmptyDomain = errors.New("empty neighborhood domain")
	// ErrInvalidRadius is returned for a radius that is not positive and finite.
	ErrInvalidRadius = errors.New("invalid neighborhood radius")
)

// EmptyDomainError names the site whose neighborhood is empty.
type EmptyDomainError struct {
	Site int
}

func (e *EmptyDomainError) Error() string {
	return fmt.Sprintf("empty neighborhood domain for site %d", e.Site)
}

func (e *EmptyDomainError) Is(target error) bool { return target == ErrEmptyDomain }

// Member is one cell of a neighborhood.
type Member struct {
	Cell     int // position in the cell slice
	Distance float64
}

// Neighborhood lists the cells that may contribute pollen to one site,
// ordered by cell ID. The home cell is always a member.
type Neighborhood struct {
	Site    int
	Home    int
	Members []Member
}

// Cells returns the member cell positions.
func (n Neighborhood) Cells() []int {
	out := make([]int, len(n.Members))
	for k, m := range n.Members {
		out[k] = m.Cell
	}
	return out
}

// Distances returns the member distances.
func (n Neighborhood) Distances() []float64 {
	out := make([]float64, len(n.Members))
	for k, m := range n.Members {
		out[k] = m.Distance
	}
	return out
}

// centerItem indexes one cell center in the rtree.
type centerItem struct {
	geom.Polygonal
	pos int
}

func centerIndex(cells []grid.Cell) *rtree.Rtree {
	tree := rtree.NewTree(25, 50)
	for j, c := range cells {
		tree.Insert(&centerItem{Polygonal: &geom.Bounds{Min: c.Center, Max: c.Center}, pos: j})
	}
	return tree
}

func checkRadius(radius float64) error {
	if !(radius > 0) || math.IsInf(radius, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidRadius, radius)
	}
	return nil
}

// Potential returns, for each site, the cells whose center lies within
// radius of the site, plus the site's home cell whatever its distance.
func Potential(ctx context.Context, sites []geom.Point, cells []grid.Cell, radius float64, workers int) ([]Neighborhood, error) {
	if err := checkRadius(radius); err != nil {
		return nil, err
	}
	home, err := AssignHomeCells(sites, cells)
	if err != nil {
		return nil, err
	}
	return potential(ctx, sites, cells, home, radius, workers)
}

func potential(ctx context.Context, sites []geom.Point, cells []grid.Cell, home []int, radius float64, workers int) ([]Neighborhood, error) {
	tree := centerIndex(cells)
	// The search box is padded so centers at exactly radius along an axis
	// reach the distance check.
	pad := radius * 1e-6
	out := make([]Neighborhood, len(sites))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workerLimit(workers))
	for i := range sites {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s := sites[i]
			box := &geom.Bounds{
				Min: geom.Point{X: s.X - radius - pad, Y: s.Y - radius - pad},
				Max: geom.Point{X: s.X + radius + pad, Y: s.Y + radius + pad},
			}
			var members []Member
			hasHome := false
			for _, item := range tree.SearchIntersect(box) {
				j := item.(*centerItem).pos
				d := dist(s, cells[j].Center)
				if d > radius {
					continue
				}
				members = append(members, Member{Cell: j, Distance: d})
				if j == home[i] {
					hasHome = true
				}
			}
			if !hasHome {
				members = append(members, Member{Cell: home[i], Distance: dist(s, cells[home[i]].Center)})
			}
			if len(members) == 0 {
				return &EmptyDomainError{Site: i}
			}
			sort.Slice(members, func(a, b int) bool { return cells[members[a].Cell].ID < cells[members[b].Cell].ID })
			out[i] = Neighborhood{Site: i, Home: home[i], Members: members}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Options configures Build.
type Options struct {
	Radius  float64
	Workers int
}

// Result bundles everything the assembler needs about site/cell geometry.
type Result struct {
	Distances     *mat.Dense // sites × cells
	Home          []int      // home cell position per site
	Neighborhoods []Neighborhood
}

// MaxMembers returns the size of the largest neighborhood.
func (r *Result) MaxMembers() int {
	n := 0
	for _, h := range r.Neighborhoods {
		if len(h.Members) > n {
			n = len(h.Members)
		}
	}
	return n
}

// Build computes the distance matrix, home cells and potential
// neighborhoods for sites over cells.
func Build(ctx context.Context, sites []geom.Point, cells []grid.Cell, opts Options) (*Result, error) {
	if err := checkRadius(opts.Radius); err != nil {
		return nil, err
	}
	d, err := DistanceMatrix(ctx, sites, cells, opts.Workers)
	if err != nil {
		return nil, fmt.Errorf("distance matrix: %w", err)
	}
	home := homesFromMatrix(d, cells)
	hoods, err := potential(ctx, sites, cells, home, opts.Radius, opts.Workers)
	if err != nil {
		return nil, fmt.Errorf("potential neighborhoods: %w", err)
	}
	return &Result{Distances: d, Home: home, Neighborhoods: hoods}, nil
}
