package udmetrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRates(t *testing.T) {
	r := Rates(30, 70)
	assert.Equal(t, int64(100), r.Decided)
	assert.Equal(t, 30.0, r.AcceptanceRate)
	assert.Equal(t, 70.0, r.RejectionRate)

	r = Rates(1, 2)
	assert.Equal(t, 33.3, r.AcceptanceRate)
	assert.Equal(t, 66.7, r.RejectionRate)

	assert.Equal(t, RateSummary{}, Rates(0, 0))
	assert.Equal(t, RateSummary{}, Rates(-4, 0))
}

func TestWeightedDaysToDecision(t *testing.T) {
	samples := []DecisionSample{
		{Decisions: 10, Days: 20},
		{Decisions: 30, Days: 60},
		{Decisions: 0, Days: 500},
	}
	assert.Equal(t, 50.0, WeightedDaysToDecision(samples))
	assert.Equal(t, 0.0, WeightedDaysToDecision(nil))
}

func TestHIndex(t *testing.T) {
	assert.Equal(t, 0, HIndex(nil))
	assert.Equal(t, 0, HIndex([]int{0, 0}))
	assert.Equal(t, 3, HIndex([]int{3, 0, 6, 1, 5}))
	assert.Equal(t, 1, HIndex([]int{100}))
	assert.Equal(t, 4, HIndex([]int{10, 8, 5, 4, 3}))

	in := []int{1, 5, 3}
	HIndex(in)
	assert.Equal(t, []int{1, 5, 3}, in)
}

func TestI10Index(t *testing.T) {
	assert.Equal(t, 2, I10Index([]int{10, 9, 25, 0}))
}

func TestNormalizeDOI(t *testing.T) {
	assert.Equal(t, "10.4314/tjs.v49i1.1", NormalizeDOI(" https://doi.org/10.4314/TJS.v49i1.1 "))
	assert.Equal(t, "10.1/x", NormalizeDOI("doi:10.1/X"))
}

func TestSummarizeCitations(t *testing.T) {
	works := []CitedWork{
		{DOI: "10.1/a", Title: "A", Citations: 12},
		{DOI: "https://doi.org/10.1/A", Title: "A dup", Citations: 15},
		{DOI: "10.1/b", Title: "B", Citations: 3},
		{DOI: "10.1/c", Title: "C", Citations: 0},
		{Title: "no doi", Citations: 2},
	}

	s := SummarizeCitations(works, 2)
	assert.Equal(t, 4, s.Works)
	assert.Equal(t, int64(20), s.TotalCitations)
	assert.Equal(t, 3, s.CitedWorks)
	assert.Equal(t, 1, s.Uncited)
	assert.Equal(t, 5.0, s.Average)
	assert.Equal(t, 15, s.Max)
	assert.Equal(t, 2, s.HIndex)
	assert.Equal(t, 1, s.I10Index)
	require.Len(t, s.TopCited, 2)
	assert.Equal(t, "10.1/a", s.TopCited[0].DOI)
	assert.Equal(t, 15, s.TopCited[0].Citations)
	assert.Equal(t, "10.1/b", s.TopCited[1].DOI)

	empty := SummarizeCitations(nil, 5)
	assert.Equal(t, 0, empty.Works)
	assert.NotNil(t, empty.TopCited)
}

func TestMergeTimelines(t *testing.T) {
	a := []TimelinePoint{{Date: "2026-02", Value: 2}, {Date: "2026-01", Label: "January 2026", Value: 1}}
	b := []TimelinePoint{{Date: "2026-01", Value: 10}, {Date: "2026-03", Value: 5}, {Value: 99}}

	merged := MergeTimelines(a, b)
	assert.Equal(t, []TimelinePoint{
		{Date: "2026-01", Label: "January 2026", Value: 11},
		{Date: "2026-02", Value: 2},
		{Date: "2026-03", Value: 5},
	}, merged)
	assert.Equal(t, int64(18), SumTimeline(merged))
	assert.Equal(t, int64(1), a[1].Value)
}

func TestTopN(t *testing.T) {
	in := []int{3, 1, 2}
	out := TopN(in, 2, func(a, b int) int { return b - a })
	assert.Equal(t, []int{3, 2}, out)
	assert.Equal(t, []int{3, 1, 2}, in)
	assert.Equal(t, []int{}, TopN([]int(nil), 3, func(a, b int) int { return a - b }))
}

func TestLeader(t *testing.T) {
	values := map[string]float64{"tjs": 40, "tjet": 55, "ujah": 55}
	assert.Equal(t, "tjet", Leader(values, false))
	assert.Equal(t, "tjs", Leader(values, true))
	assert.Equal(t, "", Leader(nil, false))
}

func TestParseRange(t *testing.T) {
	now := time.Date(2026, time.March, 15, 10, 30, 0, 0, time.UTC)

	r, err := ParseRange("", now)
	require.NoError(t, err)
	assert.Equal(t, "30d", r.Key)
	assert.Equal(t, "2026-02-13", r.StartString())
	assert.Equal(t, "2026-03-14", r.EndString())
	assert.Equal(t, 30, r.Days())
	assert.Equal(t, "2026-02-13,2026-03-14", r.MatomoDate())

	r, err = ParseRange("7d", now)
	require.NoError(t, err)
	assert.Equal(t, 7, r.Days())

	r, err = ParseRange("12m", now)
	require.NoError(t, err)
	assert.Equal(t, "2025-04-01", r.StartString())

	r, err = ParseRange("ytd", now)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-01", r.StartString())

	r, err = ParseRange("ytd", time.Date(2026, time.January, 1, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "2025-01-01", r.StartString())
	assert.Equal(t, "2025-12-31", r.EndString())

	r, err = ParseRange("all", now)
	require.NoError(t, err)
	assert.Equal(t, "2001-01-01", r.StartString())
	assert.Equal(t, "all:2026-03-14", r.CacheKey())

	_, err = ParseRange("1y", now)
	assert.Error(t, err)
}
