package records

import (
	"fmt"
	"io"

	"github.com/ctessum/geom"

	"github.com/banshee-data/pollencal/internal/taxonomy"
)

// VegetationIDColumns are the identifier columns of a vegetation table.
var VegetationIDColumns = []string{ColX, ColY}

// VegetationData holds gridded vegetation composition. SD is nil when no
// uncertainty table was supplied; otherwise its rows and taxa align with
// Mean.
type VegetationData struct {
	SRS       string
	Locations []geom.Point
	Mean      *taxonomy.Table
	SD        *taxonomy.Table
}

// ReadVegetation reads a wide vegetation table and an optional table of
// standard deviations of the same shape. sd may be nil.
func ReadVegetation(mean, sd io.Reader, srs string) (*VegetationData, error) {
	m, err := taxonomy.ReadTableCSV(mean, VegetationIDColumns)
	if err != nil {
		return nil, fmt.Errorf("read vegetation: %w", err)
	}
	d := &VegetationData{SRS: srs, Mean: m, Locations: make([]geom.Point, m.Len())}
	for i, ids := range m.IDs {
		line := i + 2
		if d.Locations[i].X, err = parseCoord(ids[0]); err != nil {
			return nil, fmt.Errorf("read vegetation: line %d column %q: %w", line, ColX, err)
		}
		if d.Locations[i].Y, err = parseCoord(ids[1]); err != nil {
			return nil, fmt.Errorf("read vegetation: line %d column %q: %w", line, ColY, err)
		}
	}

	if sd == nil {
		return d, nil
	}
	s, err := taxonomy.ReadTableCSV(sd, VegetationIDColumns)
	if err != nil {
		return nil, fmt.Errorf("read vegetation uncertainty: %w", err)
	}
	if err := aligned(m, s); err != nil {
		return nil, fmt.Errorf("read vegetation uncertainty: %w", err)
	}
	d.SD = s
	return d, nil
}

// aligned checks that sd has the rows and taxa of mean, in the same order.
func aligned(mean, sd *taxonomy.Table) error {
	if sd.Len() != mean.Len() {
		return fmt.Errorf("%d rows, mean table has %d", sd.Len(), mean.Len())
	}
	if len(sd.Taxa) != len(mean.Taxa) {
		return fmt.Errorf("%d taxa, mean table has %d", len(sd.Taxa), len(mean.Taxa))
	}
	for j := range mean.Taxa {
		if sd.Taxa[j] != mean.Taxa[j] {
			return fmt.Errorf("taxon column %d is %q, mean table has %q", j, sd.Taxa[j], mean.Taxa[j])
		}
	}
	for i := range mean.IDs {
		if sd.IDs[i][0] != mean.IDs[i][0] || sd.IDs[i][1] != mean.IDs[i][1] {
			return fmt.Errorf("line %d at (%s, %s), mean table has (%s, %s)",
				i+2, sd.IDs[i][0], sd.IDs[i][1], mean.IDs[i][0], mean.IDs[i][1])
		}
	}
	return nil
}
