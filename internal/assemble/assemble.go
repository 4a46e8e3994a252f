package assemble

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/pollencal/internal/neighborhood"
	"github.com/banshee-data/pollencal/internal/taxonomy"
)

// Inputs are the harmonized stage outputs. Counts rows are sites, in the
// order of Neighborhood's site rows; Vegetation rows are cells, in the
// column order of Neighborhood.Distances.
type Inputs struct {
	Taxa         []string
	Counts       *taxonomy.Table
	Vegetation   *taxonomy.Table
	Neighborhood *neighborhood.Result

	// Optional identifiers, carried as provenance.
	SiteIDs []string
	CellIDs []int
}

// Options configures Assemble. The zero value produces 0-based indices;
// DefaultOptions matches the sampler's 1-based convention.
type Options struct {
	IndexBase int
	RunID     string
}

// DefaultOptions returns 1-based indexing.
func DefaultOptions() Options { return Options{IndexBase: 1} }

// ModelInput is the bundle handed to the sampler.
//
// IdxHood and DPot are padded to NPot columns; row i is valid up to
// NHood[i] and zero after that.
type ModelInput struct {
	K        int
	NCores   int
	NCells   int
	NHood    []int
	Y        *mat.Dense // NCores × K pollen counts
	R        *mat.Dense // NCells × K vegetation proportions
	IdxCores []int
	IdxHood  [][]int
	D        *mat.Dense // NCores × NCells distances
	NPot     int
	DPot     [][]float64

	Provenance Provenance
}

// Provenance describes how a ModelInput was produced. The sampler ignores it.
type Provenance struct {
	RunID     string   `json:"run_id,omitempty"`
	IndexBase int      `json:"index_base"`
	Taxa      []string `json:"taxa"`
	SiteIDs   []string `json:"site_ids,omitempty"`
	CellIDs   []int    `json:"cell_ids,omitempty"`
}

// Assemble validates in against itself and builds the ModelInput.
func Assemble(in Inputs, opts Options) (*ModelInput, error) {
	if opts.IndexBase != 0 && opts.IndexBase != 1 {
		return nil, fmt.Errorf("index base must be 0 or 1, got %d", opts.IndexBase)
	}
	if err := checkInputs(in); err != nil {
		return nil, err
	}

	hood := in.Neighborhood
	nCores := in.Counts.Len()
	nPot := hood.MaxMembers()
	base := opts.IndexBase

	mi := &ModelInput{
		K:        len(in.Taxa),
		NCores:   nCores,
		NCells:   in.Vegetation.Len(),
		NHood:    make([]int, nCores),
		Y:        in.Counts.Matrix(),
		R:        in.Vegetation.Matrix(),
		IdxCores: make([]int, nCores),
		IdxHood:  make([][]int, nCores),
		D:        mat.DenseCopyOf(hood.Distances),
		NPot:     nPot,
		DPot:     make([][]float64, nCores),
		Provenance: Provenance{
			RunID:     opts.RunID,
			IndexBase: base,
			Taxa:      append([]string(nil), in.Taxa...),
			SiteIDs:   append([]string(nil), in.SiteIDs...),
			CellIDs:   append([]int(nil), in.CellIDs...),
		},
	}
	for i, h := range hood.Neighborhoods {
		mi.IdxCores[i] = hood.Home[i] + base
		mi.NHood[i] = len(h.Members)
		mi.IdxHood[i] = make([]int, nPot)
		mi.DPot[i] = make([]float64, nPot)
		for k, m := range h.Members {
			mi.IdxHood[i][k] = m.Cell + base
			mi.DPot[i][k] = m.Distance
		}
	}
	if err := mi.Validate(); err != nil {
		return nil, err
	}
	return mi, nil
}

func checkInputs(in Inputs) error {
	if len(in.Taxa) == 0 {
		return &ShapeMismatchError{Field: "K", Detail: "no taxa"}
	}
	if in.Counts == nil || in.Vegetation == nil || in.Neighborhood == nil || in.Neighborhood.Distances == nil {
		return &ShapeMismatchError{Field: "inputs", Detail: "counts, vegetation and neighborhood are required"}
	}
	if err := sameTaxa("y", in.Counts.Taxa, in.Taxa); err != nil {
		return err
	}
	if err := sameTaxa("r", in.Vegetation.Taxa, in.Taxa); err != nil {
		return err
	}

	nCores, nCells := in.Counts.Len(), in.Vegetation.Len()
	if nCores == 0 {
		return &ShapeMismatchError{Field: "N_cores", Detail: "no sites"}
	}
	if nCells == 0 {
		return &ShapeMismatchError{Field: "N_cells", Detail: "no cells"}
	}
	hood := in.Neighborhood
	r, c := hood.Distances.Dims()
	checks := []struct {
		field     string
		got, want int
	}{
		{"d rows", r, nCores},
		{"d columns", c, nCells},
		{"idx_cores", len(hood.Home), nCores},
		{"neighborhoods", len(hood.Neighborhoods), nCores},
	}
	if in.SiteIDs != nil {
		checks = append(checks, struct {
			field     string
			got, want int
		}{"site ids", len(in.SiteIDs), nCores})
	}
	if in.CellIDs != nil {
		checks = append(checks, struct {
			field     string
			got, want int
		}{"cell ids", len(in.CellIDs), nCells})
	}
	for _, ch := range checks {
		if err := checkLen(ch.field, ch.got, ch.want); err != nil {
			return err
		}
	}

	for i, h := range hood.Neighborhoods {
		if h.Site != i {
			return &ShapeMismatchError{Field: "neighborhoods", Detail: fmt.Sprintf("row %d holds site %d", i, h.Site)}
		}
		if hood.Home[i] < 0 || hood.Home[i] >= nCells {
			return &ShapeMismatchError{Field: "idx_cores", Detail: fmt.Sprintf("site %d home cell %d outside %d cells", i, hood.Home[i], nCells)}
		}
		for _, m := range h.Members {
			if m.Cell < 0 || m.Cell >= nCells {
				return &ShapeMismatchError{Field: "idx_hood", Detail: fmt.Sprintf("site %d member cell %d outside %d cells", i, m.Cell, nCells)}
			}
		}
	}
	return nil
}

func sameTaxa(field string, got, want []string) error {
	if len(got) != len(want) {
		return &ShapeMismatchError{Field: field + " taxa", Want: len(want), Got: len(got)}
	}
	for j := range want {
		if got[j] != want[j] {
			return &ShapeMismatchError{Field: field + " taxa", Detail: fmt.Sprintf("column %d is %q, want %q", j, got[j], want[j])}
		}
	}
	return nil
}

// Validate checks the internal consistency of every dimension.
func (mi *ModelInput) Validate() error {
	dims := func(m *mat.Dense) (int, int) {
		if m == nil {
			return 0, 0
		}
		return m.Dims()
	}
	yr, yc := dims(mi.Y)
	rr, rc := dims(mi.R)
	dr, dc := dims(mi.D)
	checks := []struct {
		field     string
		got, want int
	}{
		{"y rows", yr, mi.NCores},
		{"y columns", yc, mi.K},
		{"r rows", rr, mi.NCells},
		{"r columns", rc, mi.K},
		{"d rows", dr, mi.NCores},
		{"d columns", dc, mi.NCells},
		{"idx_cores", len(mi.IdxCores), mi.NCores},
		{"N_hood", len(mi.NHood), mi.NCores},
		{"idx_hood", len(mi.IdxHood), mi.NCores},
		{"d_pot", len(mi.DPot), mi.NCores},
	}
	for _, ch := range checks {
		if err := checkLen(ch.field, ch.got, ch.want); err != nil {
			return err
		}
	}
	for i := 0; i < mi.NCores; i++ {
		if err := checkLen(fmt.Sprintf("idx_hood[%d]", i), len(mi.IdxHood[i]), mi.NPot); err != nil {
			return err
		}
		if err := checkLen(fmt.Sprintf("d_pot[%d]", i), len(mi.DPot[i]), mi.NPot); err != nil {
			return err
		}
		if mi.NHood[i] < 1 || mi.NHood[i] > mi.NPot {
			return &ShapeMismatchError{Field: "N_hood", Detail: fmt.Sprintf("site %d has %d members, N_pot is %d", i, mi.NHood[i], mi.NPot)}
		}
	}
	return nil
}
