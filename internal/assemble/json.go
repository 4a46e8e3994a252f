package assemble

import (
	"encoding/json"
	"fmt"
	"io"

	"gonum.org/v1/gonum/mat"
)

// wireInput fixes the field names and order the sampler reads.
type wireInput struct {
	K        int         `json:"K"`
	NCores   int         `json:"N_cores"`
	NCells   int         `json:"N_cells"`
	NHood    []int       `json:"N_hood"`
	Y        [][]float64 `json:"y"`
	R        [][]float64 `json:"r"`
	IdxCores []int       `json:"idx_cores"`
	IdxHood  [][]int     `json:"idx_hood"`
	D        [][]float64 `json:"d"`
	NPot     int         `json:"N_pot"`
	DPot     [][]float64 `json:"d_pot"`
}

func rows(m *mat.Dense) [][]float64 {
	if m == nil {
		return [][]float64{}
	}
	r, _ := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = mat.Row(nil, i, m)
	}
	return out
}

func denseOf(field string, data [][]float64) (*mat.Dense, error) {
	if len(data) == 0 || len(data[0]) == 0 {
		return nil, nil
	}
	m := mat.NewDense(len(data), len(data[0]), nil)
	for i, row := range data {
		if err := checkLen(fmt.Sprintf("%s[%d]", field, i), len(row), len(data[0])); err != nil {
			return nil, err
		}
		m.SetRow(i, row)
	}
	return m, nil
}

// MarshalJSON encodes the sampler fields only.
func (mi *ModelInput) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireInput{
		K:        mi.K,
		NCores:   mi.NCores,
		NCells:   mi.NCells,
		NHood:    mi.NHood,
		Y:        rows(mi.Y),
		R:        rows(mi.R),
		IdxCores: mi.IdxCores,
		IdxHood:  mi.IdxHood,
		D:        rows(mi.D),
		NPot:     mi.NPot,
		DPot:     mi.DPot,
	})
}

// UnmarshalJSON decodes the sampler fields and validates their shapes.
// Provenance is not part of the encoding.
func (mi *ModelInput) UnmarshalJSON(data []byte) error {
	var w wireInput
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	y, err := denseOf("y", w.Y)
	if err != nil {
		return err
	}
	r, err := denseOf("r", w.R)
	if err != nil {
		return err
	}
	d, err := denseOf("d", w.D)
	if err != nil {
		return err
	}
	*mi = ModelInput{
		K:        w.K,
		NCores:   w.NCores,
		NCells:   w.NCells,
		NHood:    w.NHood,
		Y:        y,
		R:        r,
		IdxCores: w.IdxCores,
		IdxHood:  w.IdxHood,
		D:        d,
		NPot:     w.NPot,
		DPot:     w.DPot,
	}
	return mi.Validate()
}

// WriteJSON writes the sampler bundle.
func (mi *ModelInput) WriteJSON(w io.Writer) error {
	return json.NewEncoder(w).Encode(mi)
}
