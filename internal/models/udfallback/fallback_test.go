package udfallback

import (
	"testing"
	"time"

	"udsmanalytics/internal/models/udmetrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	s, err := New()
	require.NoError(t, err)
	return s
}

func TestEditorialKnownJournal(t *testing.T) {
	s := newStore(t)
	e := s.Editorial("tjs", 1)
	assert.Equal(t, int64(146), e.Received)
	assert.Equal(t, int64(79), e.Declined)
}

func TestEditorialDefaultScaled(t *testing.T) {
	s := newStore(t)
	a := s.Editorial("other", 7)
	b := s.Editorial("other", 8)
	assert.Equal(t, int64(84), a.Received)
	assert.NotEqual(t, a.Received, b.Received)
	assert.Equal(t, b.DeclinedDesk+b.DeclinedReview, b.Declined)

	// déterministe
	assert.Equal(t, b, s.Editorial("other", 8))
}

func TestPublicationsAreCopies(t *testing.T) {
	s := newStore(t)
	pubs := s.Publications("x", 2)
	require.NotEmpty(t, pubs)
	pubs[0].Title = "changed"
	assert.NotEqual(t, "changed", s.Publications("x", 2)[0].Title)
	assert.Equal(t, 2001, pubs[0].ID)
}

func TestWorksUniqueDOIPerJournal(t *testing.T) {
	s := newStore(t)
	a := s.Works("tjs", 1)
	b := s.Works("uj", 2)
	require.NotEmpty(t, a)
	assert.Equal(t, "10.5555/tjs.1", a[0].DOI)
	assert.NotEqual(t, a[0].DOI, b[0].DOI)
	assert.Equal(t, 2019, a[0].Published.Year())
}

func TestVisitsAndCountries(t *testing.T) {
	s := newStore(t)
	assert.Equal(t, int64(5820), s.Visits("x", 0).Visits)
	assert.Greater(t, s.Visits("x", 3).Visits, int64(5820))
	assert.Equal(t, int64(21450), s.SiteVisits().Visits)

	rows := s.Countries("x", 0)
	require.NotEmpty(t, rows)
	assert.Equal(t, "TZ", rows[0].Code)
}

func TestLive(t *testing.T) {
	s := newStore(t)
	counters, visits := s.Live(2)
	assert.Equal(t, int64(14), counters.Visits)
	assert.Len(t, visits, 2)
	assert.True(t, visits[0].HasLocation())
}

func TestMonthlyProrata(t *testing.T) {
	r, err := udmetrics.ParseRange("30d", time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	points := monthly([]int64{310, 280, 310, 300, 310, 300, 310, 310, 300, 310, 300, 310}, 1, r)
	assert.Equal(t, []udmetrics.TimelinePoint{
		{Date: "2026-02", Label: "February 2026", Value: 160},
		{Date: "2026-03", Label: "March 2026", Value: 140},
	}, points)
}

func TestMonthlyCapped(t *testing.T) {
	r, err := udmetrics.ParseRange("all", time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	s := newStore(t)
	points := s.ViewsTimeline(0, r)
	assert.Len(t, points, maxTimelineMonths)
	assert.Equal(t, "2023-04", points[0].Date)
	assert.Equal(t, "2026-03", points[len(points)-1].Date)
}

func TestPublicationsMatchWorks(t *testing.T) {
	s := newStore(t)
	pubs := s.Publications("uj", 2)
	works := s.Works("uj", 2)
	require.NotEmpty(t, pubs)
	assert.Equal(t, works[0].DOI, pubs[0].DOI)
	assert.Equal(t, "10.5555/uj.1", pubs[0].DOI)
}
