package uddashboard

import (
	"html/template"
	"time"

	"udsmanalytics/internal/models/udmetrics"
	"udsmanalytics/internal/udcrossref"
	"udsmanalytics/internal/udmatomo"
	"udsmanalytics/internal/udojs"
)

// JournalInfo réconcilie la configuration locale et le contexte OJS
type JournalInfo struct {
	ID           uint   `json:"id"`
	Path         string `json:"path"`
	Name         string `json:"name"`
	Acronym      string `json:"acronym,omitempty"`
	Description  string `json:"description,omitempty"`
	ISSN         string `json:"issn,omitempty"`
	Color        string `json:"color"`
	ColorLight   string `json:"color_light"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	MatomoSiteID int    `json:"-"`
}

type KPI struct {
	Key   string  `json:"key"`
	Label string  `json:"label"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

type Totals struct {
	Journals       int     `json:"journals"`
	Submissions    int64   `json:"submissions"`
	Accepted       int64   `json:"accepted"`
	Declined       int64   `json:"declined"`
	Published      int64   `json:"published"`
	AcceptanceRate float64 `json:"acceptance_rate"`
	RejectionRate  float64 `json:"rejection_rate"`
	DaysToDecision float64 `json:"days_to_decision"`
	Views          int64   `json:"views"`
	Downloads      int64   `json:"downloads"`
	Visits         int64   `json:"visits"`
	UniqueVisitors int64   `json:"unique_visitors"`
	Citations      int64   `json:"citations"`
	HIndex         int     `json:"h_index"`
	I10Index       int     `json:"i10_index"`
}

type ArticleRow struct {
	Journal   string `json:"journal"`
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Authors   string `json:"authors,omitempty"`
	DOI       string `json:"doi,omitempty"`
	URL       string `json:"url,omitempty"`
	Views     int64  `json:"views"`
	Downloads int64  `json:"downloads"`
	Citations int    `json:"citations"`
}

// JournalSummary : une ligne du tableau des journaux de la vue d'ensemble
type JournalSummary struct {
	JournalInfo
	Submissions    int64   `json:"submissions"`
	Published      int64   `json:"published"`
	AcceptanceRate float64 `json:"acceptance_rate"`
	Views          int64   `json:"views"`
	Visits         int64   `json:"visits"`
	Citations      int64   `json:"citations"`
	HIndex         int     `json:"h_index"`
}

type Overview struct {
	GeneratedAt       time.Time                 `json:"generated_at"`
	Range             udmetrics.DateRange       `json:"range"`
	KPIs              []KPI                     `json:"kpis"`
	Totals            Totals                    `json:"totals"`
	SubmissionsSeries []udmetrics.TimelinePoint `json:"submissions_series"`
	ViewsSeries       []udmetrics.TimelinePoint `json:"views_series"`
	VisitsSeries      []udmetrics.TimelinePoint `json:"visits_series"`
	Countries         []udmatomo.CountryVisits  `json:"countries"`
	TopArticles       []ArticleRow              `json:"top_articles"`
	Journals          []JournalSummary          `json:"journals"`
	Citations         udmetrics.CitationSummary `json:"citations"`
	Sources           []SourceStatus            `json:"sources"`
	Demo              bool                      `json:"demo"`
}

type JournalDetail struct {
	GeneratedAt       time.Time                 `json:"generated_at"`
	Range             udmetrics.DateRange       `json:"range"`
	Journal           JournalInfo               `json:"journal"`
	KPIs              []KPI                     `json:"kpis"`
	Editorial         udojs.EditorialStats      `json:"editorial"`
	Rates             udmetrics.RateSummary     `json:"rates"`
	Views             int64                     `json:"views"`
	Downloads         int64                     `json:"downloads"`
	Visits            udmatomo.VisitsSummary    `json:"visits"`
	SubmissionsSeries []udmetrics.TimelinePoint `json:"submissions_series"`
	ViewsSeries       []udmetrics.TimelinePoint `json:"views_series"`
	VisitsSeries      []udmetrics.TimelinePoint `json:"visits_series"`
	Countries         []udmatomo.CountryVisits  `json:"countries"`
	TopArticles       []ArticleRow              `json:"top_articles"`
	Citations         udmetrics.CitationSummary `json:"citations"`
	Sources           []SourceStatus            `json:"sources"`
	Demo              bool                      `json:"demo"`
}

type ComparisonRow struct {
	Journal        JournalInfo `json:"journal"`
	Submissions    int64       `json:"submissions"`
	Accepted       int64       `json:"accepted"`
	Declined       int64       `json:"declined"`
	Published      int64       `json:"published"`
	AcceptanceRate float64     `json:"acceptance_rate"`
	RejectionRate  float64     `json:"rejection_rate"`
	DaysToDecision float64     `json:"days_to_decision"`
	Views          int64       `json:"views"`
	Downloads      int64       `json:"downloads"`
	Visits         int64       `json:"visits"`
	Citations      int64       `json:"citations"`
	HIndex         int         `json:"h_index"`
}

type Comparison struct {
	GeneratedAt time.Time           `json:"generated_at"`
	Range       udmetrics.DateRange `json:"range"`
	Rows        []ComparisonRow     `json:"rows"`
	// métrique -> path du meilleur journal
	Leaders map[string]string `json:"leaders"`
	Sources []SourceStatus    `json:"sources"`
	Demo    bool              `json:"demo"`
}

type LiveFeed struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Counters    udmatomo.Counters `json:"counters"`
	Visits      []udmatomo.Visit  `json:"visits"`
	Sources     []SourceStatus    `json:"sources"`
	Demo        bool              `json:"demo"`
}

type PublicSummary struct {
	Title       string        `json:"title"`
	IntroHTML   template.HTML `json:"intro_html"`
	IntroText   string        `json:"intro_text"`
	Journals    int           `json:"journals"`
	Articles    int64         `json:"articles"`
	Views       int64         `json:"views"`
	Downloads   int64         `json:"downloads"`
	Visits      int64         `json:"visits"`
	Citations   int64         `json:"citations"`
	HIndex      int           `json:"h_index"`
	Countries   int           `json:"countries"`
	GeneratedAt time.Time     `json:"generated_at"`
	Demo        bool          `json:"demo"`
}

// journalData regroupe tout ce qui est récupéré pour un journal sur une
// période; c'est l'unité mise en cache
type journalData struct {
	Journal           JournalInfo               `json:"journal"`
	Editorial         udojs.EditorialStats      `json:"editorial"`
	Publications      []udojs.PublicationStat   `json:"publications"`
	SubmissionsSeries []udmetrics.TimelinePoint `json:"submissions_series"`
	ViewsSeries       []udmetrics.TimelinePoint `json:"views_series"`
	Visits            udmatomo.VisitsSummary    `json:"visits"`
	VisitsSeries      []udmetrics.TimelinePoint `json:"visits_series"`
	Countries         []udmatomo.CountryVisits  `json:"countries"`
	Downloads         int64                     `json:"downloads"`
	Works             []udcrossref.Work         `json:"works"`
	// citations des articles les plus vus, par DOI normalisé
	DOICitations map[string]int `json:"doi_citations"`
	Sources      []SourceStatus `json:"sources"`
}

func (d journalData) views() int64 {
	return udmetrics.SumTimeline(d.ViewsSeries)
}

func (d journalData) citedWorks() []udmetrics.CitedWork {
	out := make([]udmetrics.CitedWork, 0, len(d.Works))
	for _, w := range d.Works {
		out = append(out, w.Cited(d.Journal.Path))
	}
	return out
}

// siteData: statistiques du site Matomo global quand il est configuré
type siteData struct {
	Visits       udmatomo.VisitsSummary    `json:"visits"`
	VisitsSeries []udmetrics.TimelinePoint `json:"visits_series"`
	Countries    []udmatomo.CountryVisits  `json:"countries"`
	Sources      []SourceStatus            `json:"sources"`
}
