package neighborhood

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"github.com/ctessum/geom"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/pollencal/internal/grid"
)

func dist(a, b geom.Point) float64 { return math.Hypot(a.X-b.X, a.Y-b.Y) }

func workerLimit(workers int) int {
	if workers < 1 {
		return runtime.GOMAXPROCS(0)
	}
	return workers
}

func checkDomain(sites []geom.Point, cells []grid.Cell) error {
	if len(sites) == 0 {
		return fmt.Errorf("%w: no sites", ErrEmptyDomain)
	}
	if len(cells) == 0 {
		return fmt.Errorf("%w: no cells", ErrEmptyDomain)
	}
	return nil
}

// DistanceMatrix returns the sites × cells matrix of Euclidean distances
// between each site and each cell center. Rows are computed concurrently by
// at most workers goroutines (GOMAXPROCS when workers < 1).
func DistanceMatrix(ctx context.Context, sites []geom.Point, cells []grid.Cell, workers int) (*mat.Dense, error) {
	if err := checkDomain(sites, cells); err != nil {
		return nil, err
	}
	n := len(cells)
	data := make([]float64, len(sites)*n)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workerLimit(workers))
	for i := range sites {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			row := data[i*n : (i+1)*n]
			for j, c := range cells {
				row[j] = dist(sites[i], c.Center)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return mat.NewDense(len(sites), n, data), nil
}

// AssignHomeCells returns, for each site, the position of its nearest cell.
// Equidistant cells resolve to the lowest cell ID.
func AssignHomeCells(sites []geom.Point, cells []grid.Cell) ([]int, error) {
	if err := checkDomain(sites, cells); err != nil {
		return nil, err
	}
	home := make([]int, len(sites))
	for i, s := range sites {
		home[i] = nearest(cells, func(j int) float64 { return dist(s, cells[j].Center) })
	}
	return home, nil
}

func homesFromMatrix(d *mat.Dense, cells []grid.Cell) []int {
	r, _ := d.Dims()
	home := make([]int, r)
	for i := range home {
		home[i] = nearest(cells, func(j int) float64 { return d.At(i, j) })
	}
	return home
}

func nearest(cells []grid.Cell, distance func(j int) float64) int {
	best, bestD := 0, distance(0)
	for j := 1; j < len(cells); j++ {
		dj := distance(j)
		if dj < bestD || (dj == bestD && cells[j].ID < cells[best].ID) {
			best, bestD = j, dj
		}
	}
	return best
}
