package agemodel

import (
	"errors"
	"testing"

	"github.com/ctessum/geom"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pollencal/internal/records"
	"github.com/banshee-data/pollencal/internal/taxonomy"
)

func sample(site, id string, row int, ages map[string]float64) records.Sample {
	return records.Sample{SiteID: site, SampleID: id, Row: row, Location: geom.Point{X: 1, Y: 2}, Ages: ages}
}

func TestRepresentative(t *testing.T) {
	tests := []struct {
		name    string
		ages    map[string]float64
		want    float64
		wantTag string
		wantOK  bool
	}{
		{"calibrated wins", map[string]float64{Radiocarbon: 150, CalibratedRadiocarbon: 180}, 180, CalibratedRadiocarbon, true},
		{"fallback to calendar", map[string]float64{Calendar: 95, Radiocarbon: 150}, 95, Calendar, true},
		{"case insensitive", map[string]float64{"Varve Years BP": 40}, 40, "Varve Years BP", true},
		{"unlisted tag ignored", map[string]float64{"lead-210": 12}, 0, "", false},
		{"no ages", nil, 0, "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			age, tag, ok := Representative(tc.ages, DefaultPriority)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.want, age)
			assert.Equal(t, tc.wantTag, tag)
		})
	}
}

func TestSelect_ExclusionsAreReported(t *testing.T) {
	samples := []records.Sample{
		sample("B", "B-1", 0, map[string]float64{Calendar: 100}),
		sample("A", "A-1", 1, map[string]float64{Radiocarbon: 400}),
		sample("A", "A-2", 2, nil),
		sample("C", "C-1", 3, map[string]float64{"lead-210": 100}),
	}
	sel, err := Select(samples, Window{Lo: 0, Hi: 250}, DefaultPolicy())
	require.NoError(t, err)

	assert.Equal(t, []string{"B"}, sel.SiteIDs())
	want := []Exclusion{
		{SiteID: "A", SampleID: "A-1", Reason: ReasonOutOfRange, Age: 400},
		{SiteID: "A", SampleID: "A-2", Reason: ReasonMissingAge},
		{SiteID: "C", SampleID: "C-1", Reason: ReasonMissingAge},
	}
	if diff := cmp.Diff(want, sel.Excluded); diff != "" {
		t.Errorf("exclusions (-want +got):\n%s", diff)
	}
}

func TestSelect_WindowIsInclusive(t *testing.T) {
	samples := []records.Sample{
		sample("A", "A-1", 0, map[string]float64{Calendar: 0}),
		sample("B", "B-1", 1, map[string]float64{Calendar: 250}),
	}
	sel, err := Select(samples, Window{Lo: 0, Hi: 250}, DefaultPolicy())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, sel.SiteIDs())
	assert.Empty(t, sel.Excluded)
}

func TestSelect_Nearest(t *testing.T) {
	samples := []records.Sample{
		sample("A", "A-3", 0, map[string]float64{Calendar: 200}),
		sample("A", "A-2", 1, map[string]float64{Calendar: 50}),
		sample("A", "A-1", 2, map[string]float64{Calendar: 150}),
	}
	sel, err := Select(samples, Window{Lo: 0, Hi: 200}, DefaultPolicy())
	require.NoError(t, err)
	require.Len(t, sel.Sites, 1)
	// A-1 (150) and A-2 (50) tie around the midpoint 100; lowest id wins.
	assert.Equal(t, []string{"A-1"}, sel.Sites[0].SampleIDs)
	assert.Equal(t, []int{2}, sel.Sites[0].Rows)
	assert.Equal(t, 150.0, sel.Sites[0].Age)

	target := 190.0
	p := DefaultPolicy()
	p.Target = &target
	sel, err = Select(samples, Window{Lo: 0, Hi: 200}, p)
	require.NoError(t, err)
	assert.Equal(t, []string{"A-3"}, sel.Sites[0].SampleIDs)
}

func TestSelect_SumAndCounts(t *testing.T) {
	samples := []records.Sample{
		sample("A", "A-2", 0, map[string]float64{Calendar: 100}),
		sample("A", "A-1", 1, map[string]float64{CalibratedRadiocarbon: 200}),
		sample("B", "B-1", 2, map[string]float64{Calendar: 10}),
	}
	p := DefaultPolicy()
	p.Reduce = Sum
	sel, err := Select(samples, Window{Lo: 0, Hi: 500}, p)
	require.NoError(t, err)

	a := sel.Sites[0]
	assert.Equal(t, []string{"A-1", "A-2"}, a.SampleIDs)
	assert.Equal(t, []int{1, 0}, a.Rows)
	assert.Equal(t, 150.0, a.Age)
	assert.Equal(t, Calendar+", "+CalibratedRadiocarbon, a.AgeModel)

	counts := taxonomy.NewTable(records.PollenIDColumns, []string{"Pinus", "Quercus"})
	counts.IDs = [][]string{{"A", "A-2", "1", "2"}, {"A", "A-1", "1", "2"}, {"B", "B-1", "1", "2"}}
	counts.Values = [][]float64{{1, 2}, {10, 20}, {5, 5}}
	site, err := sel.Counts(counts)
	require.NoError(t, err)
	assert.Equal(t, []string{records.ColSiteID}, site.IDColumns)
	assert.Equal(t, [][]string{{"A"}, {"B"}}, site.IDs)
	assert.Equal(t, [][]float64{{11, 22}, {5, 5}}, site.Values)
}

func TestSelect_Errors(t *testing.T) {
	ok := []records.Sample{sample("A", "A-1", 0, map[string]float64{Calendar: 1})}

	_, err := Select(ok, Window{Lo: 10, Hi: 0}, DefaultPolicy())
	assert.True(t, errors.Is(err, ErrInvalidWindow), "got %v", err)

	_, err = Select(ok, Window{Lo: 0, Hi: 10}, Policy{})
	assert.True(t, errors.Is(err, ErrInvalidPolicy), "got %v", err)

	_, err = Select(ok, Window{Lo: 0, Hi: 10}, Policy{Priority: DefaultPriority, Reduce: "median"})
	assert.True(t, errors.Is(err, ErrInvalidPolicy), "got %v", err)

	moved := sample("A", "A-2", 1, map[string]float64{Calendar: 2})
	moved.Location = geom.Point{X: 9, Y: 9}
	_, err = Select(append(ok, moved), Window{Lo: 0, Hi: 10}, DefaultPolicy())
	assert.ErrorContains(t, err, "different locations")
}
