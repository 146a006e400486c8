// Package udfallback fournit les données de démonstration servies quand un
// upstream est indisponible. Les valeurs sont déterministes: un journal sans
// entrée dédiée reçoit le bloc "default" multiplié par un facteur dérivé de
// son id, pour que les graphiques ne soient pas tous identiques.
package udfallback

import (
	"embed"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"udsmanalytics/internal/models/udmetrics"
	"udsmanalytics/internal/udcrossref"
	"udsmanalytics/internal/udmatomo"
	"udsmanalytics/internal/udojs"
)

//go:embed data/*.json
var files embed.FS

// au-delà, les séries de démo sont tronquées aux derniers mois
const maxTimelineMonths = 36

type block[T any] struct {
	Default  T            `json:"default"`
	Journals map[string]T `json:"journals"`
}

func (b block[T]) get(path string) (T, bool) {
	if v, ok := b.Journals[path]; ok {
		return v, true
	}
	return b.Default, false
}

type visitsBlock struct {
	block[udmatomo.VisitsSummary]
	Site udmatomo.VisitsSummary `json:"site"`
}

type timelines struct {
	Submissions []int64 `json:"submissions"`
	Views       []int64 `json:"views"`
	Visits      []int64 `json:"visits"`
}

type live struct {
	Counters udmatomo.Counters `json:"counters"`
	Visits   []udmatomo.Visit  `json:"visits"`
}

type Store struct {
	editorial    block[udojs.EditorialStats]
	publications block[[]udojs.PublicationStat]
	visits       visitsBlock
	countries    block[[]udmatomo.CountryVisits]
	works        block[[]udcrossref.Work]
	timelines    timelines
	live         live
}

// New décode les fichiers embarqués
func New() (*Store, error) {
	s := &Store{}
	for name, dst := range map[string]any{
		"editorial.json":    &s.editorial,
		"publications.json": &s.publications,
		"visits.json":       &s.visits,
		"countries.json":    &s.countries,
		"works.json":        &s.works,
		"timelines.json":    &s.timelines,
		"live.json":         &s.live,
	} {
		data, err := files.ReadFile("data/" + name)
		if err != nil {
			return nil, fmt.Errorf("fallback %s: %w", name, err)
		}
		if err := json.Unmarshal(data, dst); err != nil {
			return nil, fmt.Errorf("fallback %s: %w", name, err)
		}
	}
	return s, nil
}

func factor(id uint) float64 {
	return 1 + float64(id%7)*0.15
}

func scale(v int64, f float64) int64 {
	return int64(math.Round(float64(v) * f))
}

func (s *Store) Editorial(path string, id uint) udojs.EditorialStats {
	e, found := s.editorial.get(path)
	if found {
		return e
	}
	f := factor(id)
	e.Received = scale(e.Received, f)
	e.Accepted = scale(e.Accepted, f)
	e.DeclinedDesk = scale(e.DeclinedDesk, f)
	e.DeclinedReview = scale(e.DeclinedReview, f)
	e.Declined = e.DeclinedDesk + e.DeclinedReview
	e.Published = scale(e.Published, f)
	e.DaysToDecision += float64(id % 5)
	return e
}

func (s *Store) Publications(path string, id uint) []udojs.PublicationStat {
	pubs, found := s.publications.get(path)
	out := make([]udojs.PublicationStat, len(pubs))
	copy(out, pubs)
	if found {
		return out
	}
	f := factor(id)
	for i := range out {
		out[i].ID = int(id)*1000 + out[i].ID
		// mêmes DOI que Works pour relier vues et citations
		out[i].DOI = fmt.Sprintf("10.5555/%s.%d", path, i+1)
		out[i].AbstractViews = scale(out[i].AbstractViews, f)
		out[i].GalleyViews = scale(out[i].GalleyViews, f)
		out[i].PDFViews = scale(out[i].PDFViews, f)
		out[i].HTMLViews = scale(out[i].HTMLViews, f)
	}
	return out
}

func (s *Store) Visits(path string, id uint) udmatomo.VisitsSummary {
	v, found := s.visits.get(path)
	if found {
		return v
	}
	f := factor(id)
	v.Visits = scale(v.Visits, f)
	v.UniqueVisitors = scale(v.UniqueVisitors, f)
	v.Actions = scale(v.Actions, f)
	return v
}

// SiteVisits: résumé du site Matomo global
func (s *Store) SiteVisits() udmatomo.VisitsSummary {
	return s.visits.Site
}

func (s *Store) Countries(path string, id uint) []udmatomo.CountryVisits {
	rows, found := s.countries.get(path)
	out := make([]udmatomo.CountryVisits, len(rows))
	copy(out, rows)
	if !found {
		f := factor(id)
		for i := range out {
			out[i].Visits = scale(out[i].Visits, f)
		}
	}
	return out
}

// Works: les DOI du bloc par défaut sont propres à chaque journal pour ne
// pas fusionner lors de la déduplication du h-index global
func (s *Store) Works(path string, id uint) []udcrossref.Work {
	works, found := s.works.get(path)
	out := make([]udcrossref.Work, len(works))
	copy(out, works)
	if found {
		return out
	}
	f := factor(id)
	for i := range out {
		out[i].DOI = fmt.Sprintf("10.5555/%s.%d", path, i+1)
		out[i].Citations = int(scale(int64(out[i].Citations), f))
	}
	return out
}

func (s *Store) Live(limit int) (udmatomo.Counters, []udmatomo.Visit) {
	visits := s.live.Visits
	if limit > 0 && limit < len(visits) {
		visits = visits[:limit]
	}
	out := make([]udmatomo.Visit, len(visits))
	copy(out, visits)
	return s.live.Counters, out
}

func (s *Store) SubmissionTimeline(id uint, r udmetrics.DateRange) []udmetrics.TimelinePoint {
	return monthly(s.timelines.Submissions, factor(id), r)
}

func (s *Store) ViewsTimeline(id uint, r udmetrics.DateRange) []udmetrics.TimelinePoint {
	return monthly(s.timelines.Views, factor(id), r)
}

func (s *Store) VisitsTimeline(id uint, r udmetrics.DateRange) []udmetrics.TimelinePoint {
	return monthly(s.timelines.Visits, factor(id), r)
}

// monthly génère un point par mois couvert par r, au prorata des jours
// couverts pour les mois partiels
func monthly(pattern []int64, f float64, r udmetrics.DateRange) []udmetrics.TimelinePoint {
	if len(pattern) == 0 || r.End.Before(r.Start) {
		return []udmetrics.TimelinePoint{}
	}

	start := r.Start
	if limit := monthStart(r.End).AddDate(0, -(maxTimelineMonths - 1), 0); start.Before(limit) {
		start = limit
	}

	var points []udmetrics.TimelinePoint
	for m := monthStart(start); !m.After(r.End); m = m.AddDate(0, 1, 0) {
		next := m.AddDate(0, 1, 0)
		from, to := maxTime(m, start), minTime(next.AddDate(0, 0, -1), r.End)
		covered := to.Sub(from).Hours()/24 + 1
		total := next.Sub(m).Hours() / 24

		base := float64(pattern[(int(m.Month())-1)%len(pattern)]) * f
		points = append(points, udmetrics.TimelinePoint{
			Date:  m.Format("2006-01"),
			Label: m.Format("January 2006"),
			Value: int64(math.Round(base * covered / total)),
		})
	}
	return points
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
