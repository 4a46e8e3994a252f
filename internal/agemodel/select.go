package agemodel

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ctessum/geom"

	"github.com/banshee-data/pollencal/internal/records"
	"github.com/banshee-data/pollencal/internal/taxonomy"
)

// Age-model method tags, as written by the Neotoma-style exports.
const (
	CalibratedRadiocarbon = "calibrated radiocarbon years BP"
	Calendar              = "calendar years BP"
	Varve                 = "varve years BP"
	Radiocarbon           = "radiocarbon years BP"
)

// DefaultPriority prefers calibrated chronologies over raw radiocarbon ages.
var DefaultPriority = []string{CalibratedRadiocarbon, Calendar, Varve, Radiocarbon}

// Exclusion reasons.
const (
	ReasonMissingAge = "missing-age"
	ReasonOutOfRange = "out-of-range"
)

var (
	// ErrInvalidWindow is returned for a NaN or inverted calibration window.
	ErrInvalidWindow = errors.New("invalid age window")
	// ErrInvalidPolicy is returned for an empty priority list or an unknown
	// reduction.
	ErrInvalidPolicy = errors.New("invalid age policy")
)

// Window is an inclusive calibration range in years BP.
type Window struct {
	Lo, Hi float64
}

// Validate reports whether w is usable.
func (w Window) Validate() error {
	if math.IsNaN(w.Lo) || math.IsNaN(w.Hi) || w.Lo > w.Hi {
		return fmt.Errorf("%w: [%v, %v]", ErrInvalidWindow, w.Lo, w.Hi)
	}
	return nil
}

// Contains reports whether age lies in [Lo, Hi].
func (w Window) Contains(age float64) bool { return age >= w.Lo && age <= w.Hi }

// Mid returns the window midpoint.
func (w Window) Mid() float64 { return w.Lo + (w.Hi-w.Lo)/2 }

// Reduction decides how several in-window samples of one site become one
// site record.
type Reduction string

const (
	// Nearest keeps the sample whose age is closest to Policy.Target.
	Nearest Reduction = "nearest"
	// Sum adds the counts of every in-window sample.
	Sum Reduction = "sum"
)

// Policy configures Select.
type Policy struct {
	Priority []string
	Reduce   Reduction
	// Target is the age Nearest aims for; nil means the window midpoint.
	Target *float64
}

// DefaultPolicy returns the default priority with nearest reduction.
func DefaultPolicy() Policy {
	return Policy{Priority: append([]string(nil), DefaultPriority...), Reduce: Nearest}
}

func (p Policy) validate() (Reduction, error) {
	if len(p.Priority) == 0 {
		return "", fmt.Errorf("%w: empty age-model priority list", ErrInvalidPolicy)
	}
	switch p.Reduce {
	case "":
		return Nearest, nil
	case Nearest, Sum:
		return p.Reduce, nil
	}
	return "", fmt.Errorf("%w: unknown reduction %q", ErrInvalidPolicy, p.Reduce)
}

// Representative returns the estimate of the first tag in priority that ages
// holds. Tags compare case-insensitively; tags outside priority are ignored.
func Representative(ages map[string]float64, priority []string) (age float64, tag string, ok bool) {
	for _, want := range priority {
		var keys []string
		for k := range ages {
			if strings.EqualFold(k, want) {
				keys = append(keys, k)
			}
		}
		if len(keys) == 0 {
			continue
		}
		sort.Strings(keys)
		return ages[keys[0]], keys[0], true
	}
	return 0, "", false
}

// Selected is one retained site.
type Selected struct {
	SiteID   string
	Location geom.Point
	// SampleIDs and Rows list the contributing samples, by sample id.
	SampleIDs []string
	Rows      []int
	// Age is the representative age; under Sum it is the mean of the
	// contributing ages.
	Age      float64
	AgeModel string
}

// Exclusion records a sample left out of the calibration set.
type Exclusion struct {
	SiteID   string  `json:"site_id"`
	SampleID string  `json:"sample_id"`
	Reason   string  `json:"reason"`
	Age      float64 `json:"age,omitempty"` // representative age for out-of-range samples
}

// Selection is the result of Select.
type Selection struct {
	Sites    []Selected // sorted by SiteID
	Excluded []Exclusion
}

type candidate struct {
	sample records.Sample
	age    float64
	tag    string
}

// Select keeps the samples whose representative age lies inside w and
// reduces them to one record per site.
func Select(samples []records.Sample, w Window, p Policy) (*Selection, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	reduce, err := p.validate()
	if err != nil {
		return nil, err
	}
	target := w.Mid()
	if p.Target != nil {
		target = *p.Target
	}

	sel := &Selection{}
	bySite := make(map[string][]candidate)
	var siteIDs []string
	for _, s := range samples {
		age, tag, ok := Representative(s.Ages, p.Priority)
		if !ok {
			sel.Excluded = append(sel.Excluded, Exclusion{SiteID: s.SiteID, SampleID: s.SampleID, Reason: ReasonMissingAge})
			continue
		}
		if !w.Contains(age) {
			sel.Excluded = append(sel.Excluded, Exclusion{SiteID: s.SiteID, SampleID: s.SampleID, Reason: ReasonOutOfRange, Age: age})
			continue
		}
		if _, seen := bySite[s.SiteID]; !seen {
			siteIDs = append(siteIDs, s.SiteID)
		}
		bySite[s.SiteID] = append(bySite[s.SiteID], candidate{sample: s, age: age, tag: tag})
	}
	sort.Strings(siteIDs)

	for _, id := range siteIDs {
		cands := bySite[id]
		sort.Slice(cands, func(i, j int) bool { return cands[i].sample.SampleID < cands[j].sample.SampleID })
		loc := cands[0].sample.Location
		for _, c := range cands[1:] {
			if c.sample.Location != loc {
				return nil, fmt.Errorf("site %q: samples %q and %q have different locations",
					id, cands[0].sample.SampleID, c.sample.SampleID)
			}
		}

		site := Selected{SiteID: id, Location: loc}
		switch reduce {
		case Nearest:
			best := cands[0]
			for _, c := range cands[1:] {
				if math.Abs(c.age-target) < math.Abs(best.age-target) {
					best = c
				}
			}
			site.SampleIDs = []string{best.sample.SampleID}
			site.Rows = []int{best.sample.Row}
			site.Age = best.age
			site.AgeModel = best.tag
		case Sum:
			var total float64
			tags := make(map[string]bool)
			for _, c := range cands {
				site.SampleIDs = append(site.SampleIDs, c.sample.SampleID)
				site.Rows = append(site.Rows, c.sample.Row)
				total += c.age
				tags[c.tag] = true
			}
			site.Age = total / float64(len(cands))
			site.AgeModel = joinTags(tags)
		}
		sel.Sites = append(sel.Sites, site)
	}
	return sel, nil
}

func joinTags(tags map[string]bool) string {
	out := make([]string, 0, len(tags))
	for t := range tags {
		out = append(out, t)
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}

// SiteIDs returns the retained site identifiers in order.
func (s *Selection) SiteIDs() []string {
	out := make([]string, len(s.Sites))
	for i, site := range s.Sites {
		out[i] = site.SiteID
	}
	return out
}

// Locations returns the retained site locations in order.
func (s *Selection) Locations() []geom.Point {
	out := make([]geom.Point, len(s.Sites))
	for i, site := range s.Sites {
		out[i] = site.Location
	}
	return out
}

// Counts sums the count-table rows of each retained site into a table with
// one row per site, keyed by site id.
func (s *Selection) Counts(counts *taxonomy.Table) (*taxonomy.Table, error) {
	groups := make([][]int, len(s.Sites))
	ids := make([][]string, len(s.Sites))
	for i, site := range s.Sites {
		groups[i] = site.Rows
		ids[i] = []string{site.SiteID}
	}
	return counts.Aggregate(groups, []string{records.ColSiteID}, ids)
}
