package records

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/ctessum/geom"

	"github.com/banshee-data/pollencal/internal/taxonomy"
)

// Column names shared by the pollen and vegetation exports.
const (
	ColSiteID   = "site_id"
	ColSampleID = "sample_id"
	ColX        = "x"
	ColY        = "y"
	ColAgeType  = "age_type"
	ColAge      = "age"
)

// PollenIDColumns are the identifier columns of a pollen count table.
var PollenIDColumns = []string{ColSiteID, ColSampleID, ColX, ColY}

// ErrDuplicateSample is returned when a sample identifier appears twice.
var ErrDuplicateSample = errors.New("duplicate sample")

// Sample is one fossil pollen sample.
type Sample struct {
	SiteID   string
	SampleID string
	Location geom.Point
	// Ages maps an age-model tag to the sample's age in years BP.
	Ages map[string]float64
	// Row is the sample's row in PollenData.Counts.
	Row int
}

// PollenData holds the samples of a pollen export and their raw counts.
type PollenData struct {
	SRS     string
	Samples []Sample
	Counts  *taxonomy.Table
}

// Locations returns the sample coordinates in sample order.
func (d *PollenData) Locations() []geom.Point {
	out := make([]geom.Point, len(d.Samples))
	for i, s := range d.Samples {
		out[i] = s.Location
	}
	return out
}

// ReadPollen reads a wide count table and a long age table. srs tags the
// sample coordinates. ages may be nil, leaving every sample without an age.
func ReadPollen(counts, ages io.Reader, srs string) (*PollenData, error) {
	tbl, err := taxonomy.ReadTableCSV(counts, PollenIDColumns)
	if err != nil {
		return nil, fmt.Errorf("read pollen counts: %w", err)
	}

	d := &PollenData{SRS: srs, Counts: tbl, Samples: make([]Sample, tbl.Len())}
	bySample := make(map[string]int, tbl.Len())
	for i, ids := range tbl.IDs {
		line := i + 2
		s := Sample{SiteID: ids[0], SampleID: ids[1], Ages: map[string]float64{}, Row: i}
		if s.SiteID == "" || s.SampleID == "" {
			return nil, fmt.Errorf("read pollen counts: line %d: empty site or sample id", line)
		}
		if prev, ok := bySample[s.SampleID]; ok {
			return nil, fmt.Errorf("read pollen counts: line %d: %w %q (first on line %d)", line, ErrDuplicateSample, s.SampleID, prev+2)
		}
		bySample[s.SampleID] = i
		if s.Location.X, err = parseCoord(ids[2]); err != nil {
			return nil, fmt.Errorf("read pollen counts: line %d column %q: %w", line, ColX, err)
		}
		if s.Location.Y, err = parseCoord(ids[3]); err != nil {
			return nil, fmt.Errorf("read pollen counts: line %d column %q: %w", line, ColY, err)
		}
		d.Samples[i] = s
	}

	if ages != nil {
		if err := readAges(ages, d.Samples, bySample); err != nil {
			return nil, fmt.Errorf("read pollen ages: %w", err)
		}
	}
	return d, nil
}

func readAges(r io.Reader, samples []Sample, bySample map[string]int) error {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return fmt.Errorf("header: %w", err)
	}
	cols, err := locate(header, ColSampleID, ColAgeType, ColAge)
	if err != nil {
		return err
	}

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		id := strings.TrimSpace(rec[cols[0]])
		tag := strings.TrimSpace(rec[cols[1]])
		raw := strings.TrimSpace(rec[cols[2]])
		i, ok := bySample[id]
		if !ok {
			return fmt.Errorf("line %d: age for unknown sample %q", line, id)
		}
		if tag == "" {
			return fmt.Errorf("line %d column %q: empty age type", line, ColAgeType)
		}
		if raw == "" || strings.EqualFold(raw, "NA") {
			// No estimate under this model.
			continue
		}
		age, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(age) || math.IsInf(age, 0) {
			return fmt.Errorf("line %d column %q: invalid age %q", line, ColAge, raw)
		}
		if _, dup := samples[i].Ages[tag]; dup {
			return fmt.Errorf("line %d: sample %q has two %q ages", line, id, tag)
		}
		samples[i].Ages[tag] = age
	}
}

// locate returns the header position of each named column.
func locate(header []string, names ...string) ([]int, error) {
	pos := make([]int, len(names))
	for k, name := range names {
		pos[k] = -1
		for i, h := range header {
			if strings.TrimSpace(h) == name {
				pos[k] = i
				break
			}
		}
		if pos[k] < 0 {
			return nil, fmt.Errorf("%w: %q", taxonomy.ErrMissingColumn, name)
		}
	}
	return pos, nil
}

func parseCoord(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite coordinate %q", s)
	}
	return v, nil
}
