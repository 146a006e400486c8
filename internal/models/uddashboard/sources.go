package uddashboard

import (
	"context"
	"errors"
	"sync"
	"time"

	"udsmanalytics/internal/models/udmetrics"
	"udsmanalytics/internal/udcrossref"
	"udsmanalytics/internal/udmatomo"
	"udsmanalytics/internal/udojs"

	"github.com/rs/zerolog/log"
)

// Noms des sources tels qu'exposés dans SourceStatus
const (
	SourceOJS      = udojs.Source
	SourceMatomo   = udmatomo.Source
	SourceCrossref = udcrossref.Source
)

var sourceOrder = []string{SourceOJS, SourceMatomo, SourceCrossref}

var errNotConfigured = errors.New("not configured")

type OJS interface {
	Configured() bool
	ListContexts(ctx context.Context) ([]udojs.Context, error)
	EditorialStats(ctx context.Context, journal string, r udmetrics.DateRange) (udojs.EditorialStats, error)
	PublicationStats(ctx context.Context, journal string, r udmetrics.DateRange, limit int) ([]udojs.PublicationStat, error)
	PublicationTimeline(ctx context.Context, journal string, r udmetrics.DateRange, kind string) ([]udmetrics.TimelinePoint, error)
	SubmissionTimeline(ctx context.Context, journal string, r udmetrics.DateRange) ([]udmetrics.TimelinePoint, error)
	Thumbnail(ctx context.Context, url string) ([]byte, error)
}

type Matomo interface {
	Configured() bool
	VisitsSummary(ctx context.Context, siteID int, r udmetrics.DateRange) (udmatomo.VisitsSummary, error)
	VisitsTimeline(ctx context.Context, siteID int, r udmetrics.DateRange) ([]udmetrics.TimelinePoint, error)
	Countries(ctx context.Context, siteID int, r udmetrics.DateRange, limit int) ([]udmatomo.CountryVisits, error)
	LastVisits(ctx context.Context, siteID int, limit int) ([]udmatomo.Visit, error)
	LiveCounters(ctx context.Context, siteID int, lastMinutes int) (udmatomo.Counters, error)
	Downloads(ctx context.Context, siteID int, r udmetrics.DateRange) (int64, error)
}

type Crossref interface {
	Configured() bool
	JournalWorks(ctx context.Context, issn string) ([]udcrossref.Work, error)
	WorkCitations(ctx context.Context, doi string) (int, error)
}

// SourceStatus décrit l'état d'un upstream lors de la construction d'une vue
type SourceStatus struct {
	Name      string    `json:"name"`
	Live      bool      `json:"live"`
	Fallback  bool      `json:"fallback"`
	Error     string    `json:"error,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// tracker collecte l'état des sources pendant une construction
type tracker struct {
	mu       sync.Mutex
	now      func() time.Time
	fallback bool
	status   map[string]*SourceStatus
}

func newTracker(now func() time.Time, fallback bool) *tracker {
	return &tracker{now: now, fallback: fallback, status: make(map[string]*SourceStatus)}
}

func (t *tracker) entry(source string) *SourceStatus {
	st, ok := t.status[source]
	if !ok {
		st = &SourceStatus{Name: source, Live: true}
		t.status[source] = st
	}
	st.FetchedAt = t.now()
	return st
}

func (t *tracker) ok(source string) {
	t.mu.Lock()
	t.entry(source)
	t.mu.Unlock()
}

// fail retourne true si une valeur de remplacement doit être utilisée
func (t *tracker) fail(source string, err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.entry(source)
	st.Live = false
	if st.Error == "" {
		st.Error = err.Error()
	}
	if t.fallback {
		st.Fallback = true
	}
	return t.fallback
}

func (t *tracker) live(source string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.status[source]
	return ok && st.Live
}

func (t *tracker) list() []SourceStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]SourceStatus, 0, len(t.status))
	for _, name := range sourceOrder {
		if st, ok := t.status[name]; ok {
			out = append(out, *st)
		}
	}
	return out
}

// fetch appelle une source; en cas d'échec la vue continue avec la valeur
// de démonstration (ou la valeur zéro si le repli est désactivé)
func fetch[T any](ctx context.Context, t *tracker, source string, configured bool, call func(context.Context) (T, error), placeholder func() T) T {
	var zero T
	err := errNotConfigured
	if configured {
		var v T
		v, err = call(ctx)
		if err == nil {
			t.ok(source)
			return v
		}
		log.Warn().Err(err).Str("source", source).Msg("source unavailable, degrading")
	}
	if t.fail(source, err) && placeholder != nil {
		return placeholder()
	}
	return zero
}

// mergeStatuses combine les états de plusieurs constructions: une source
// n'est live que si elle l'a été partout
func mergeStatuses(lists ...[]SourceStatus) []SourceStatus {
	merged := make(map[string]*SourceStatus)
	for _, list := range lists {
		for _, st := range list {
			m, ok := merged[st.Name]
			if !ok {
				cp := st
				merged[st.Name] = &cp
				continue
			}
			m.Live = m.Live && st.Live
			m.Fallback = m.Fallback || st.Fallback
			if m.Error == "" {
				m.Error = st.Error
			}
			if st.FetchedAt.After(m.FetchedAt) {
				m.FetchedAt = st.FetchedAt
			}
		}
	}

	out := make([]SourceStatus, 0, len(merged))
	for _, name := range sourceOrder {
		if st, ok := merged[name]; ok {
			out = append(out, *st)
		}
	}
	return out
}

// isDemo: vrai quand toutes les sources interrogées ont été remplacées
func isDemo(statuses []SourceStatus) bool {
	if len(statuses) == 0 {
		return false
	}
	for _, st := range statuses {
		if !st.Fallback {
			return false
		}
	}
	return true
}

func degraded(statuses []SourceStatus) bool {
	for _, st := range statuses {
		if !st.Live {
			return true
		}
	}
	return false
}
