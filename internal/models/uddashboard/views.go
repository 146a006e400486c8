package uddashboard

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"udsmanalytics/internal/models/udmetrics"
	"udsmanalytics/internal/udgeo"
	"udsmanalytics/internal/udmarkdown"
	"udsmanalytics/internal/udmatomo"
)

// période de la vue publique
const publicRange = "all"

func (s *Service) Overview(ctx context.Context, r udmetrics.DateRange) Overview {
	infos, jst := s.Journals(ctx)
	data := s.collect(ctx, infos, r)

	var site *siteData
	if s.cfg.Upstreams.Matomo.SiteID > 0 {
		sd := s.siteData(ctx, r)
		site = &sd
	}

	totals, citations := aggregate(data, site)

	ov := Overview{
		GeneratedAt: s.now(),
		Range:       r,
		Totals:      totals,
		KPIs:        overviewKPIs(totals),
		Citations:   citations,
		Journals:    make([]JournalSummary, 0, len(data)),
	}

	statuses := [][]SourceStatus{jst}
	var subs, views, visits [][]udmetrics.TimelinePoint
	var countries [][]udmatomo.CountryVisits
	var articles []ArticleRow
	for _, d := range data {
		statuses = append(statuses, d.Sources)
		subs = append(subs, d.SubmissionsSeries)
		views = append(views, d.ViewsSeries)
		visits = append(visits, d.VisitsSeries)
		countries = append(countries, d.Countries)
		articles = append(articles, journalArticles(d)...)
		ov.Journals = append(ov.Journals, journalSummary(d))
	}
	if site != nil {
		statuses = append(statuses, site.Sources)
		visits = [][]udmetrics.TimelinePoint{site.VisitsSeries}
		countries = [][]udmatomo.CountryVisits{site.Countries}
	}

	ov.SubmissionsSeries = udmetrics.MergeTimelines(subs...)
	ov.ViewsSeries = udmetrics.MergeTimelines(views...)
	ov.VisitsSeries = udmetrics.MergeTimelines(visits...)
	ov.Countries = mergeCountries(countries...)
	ov.TopArticles = udmetrics.TopN(articles, topArticles, compareArticles)
	ov.Sources = mergeStatuses(statuses...)
	ov.Demo = isDemo(ov.Sources)
	return ov
}

// aggregate calcule les totaux du site. Les visiteurs viennent du site
// Matomo global s'il existe (un visiteur peut lire plusieurs journaux), le
// h-index est calculé sur l'union dédupliquée des articles.
func aggregate(data []journalData, site *siteData) (Totals, udmetrics.CitationSummary) {
	t := Totals{Journals: len(data)}
	var samples []udmetrics.DecisionSample
	var works []udmetrics.CitedWork
	var visits udmatomo.VisitsSummary

	for _, d := range data {
		e := d.Editorial
		t.Submissions += e.Received
		t.Accepted += e.Accepted
		t.Declined += e.Declined
		t.Published += e.Published
		t.Views += d.views()
		t.Downloads += d.Downloads
		visits = visits.Add(d.Visits)
		samples = append(samples, udmetrics.DecisionSample{Decisions: e.Accepted + e.Declined, Days: e.DaysToDecision})
		works = append(works, d.citedWorks()...)
	}
	if site != nil {
		visits = site.Visits
	}

	rates := udmetrics.Rates(t.Accepted, t.Declined)
	t.AcceptanceRate = rates.AcceptanceRate
	t.RejectionRate = rates.RejectionRate
	t.DaysToDecision = udmetrics.WeightedDaysToDecision(samples)
	t.Visits = visits.Visits
	t.UniqueVisitors = visits.UniqueVisitors

	citations := udmetrics.SummarizeCitations(works, topCited)
	t.Citations = citations.TotalCitations
	t.HIndex = citations.HIndex
	t.I10Index = citations.I10Index
	return t, citations
}

func overviewKPIs(t Totals) []KPI {
	return []KPI{
		{Key: "submissions", Label: "Submissions", Value: float64(t.Submissions)},
		{Key: "acceptance_rate", Label: "Acceptance rate", Value: t.AcceptanceRate, Unit: "%"},
		{Key: "days_to_decision", Label: "Days to decision", Value: t.DaysToDecision, Unit: "days"},
		{Key: "published", Label: "Published", Value: float64(t.Published)},
		{Key: "views", Label: "Article views", Value: float64(t.Views)},
		{Key: "downloads", Label: "Downloads", Value: float64(t.Downloads)},
		{Key: "visitors", Label: "Unique visitors", Value: float64(t.UniqueVisitors)},
		{Key: "citations", Label: "Citations", Value: float64(t.Citations)},
		{Key: "h_index", Label: "h-index", Value: float64(t.HIndex)},
	}
}

func journalSummary(d journalData) JournalSummary {
	rates := udmetrics.Rates(d.Editorial.Accepted, d.Editorial.Declined)
	citations := udmetrics.SummarizeCitations(d.citedWorks(), 0)
	return JournalSummary{
		JournalInfo:    d.Journal,
		Submissions:    d.Editorial.Received,
		Published:      d.Editorial.Published,
		AcceptanceRate: rates.AcceptanceRate,
		Views:          d.views(),
		Visits:         d.Visits.Visits,
		Citations:      citations.TotalCitations,
		HIndex:         citations.HIndex,
	}
}

func journalArticles(d journalData) []ArticleRow {
	out := make([]ArticleRow, 0, len(d.Publications))
	for _, p := range d.Publications {
		out = append(out, ArticleRow{
			Journal:   d.Journal.Path,
			ID:        p.ID,
			Title:     p.Title,
			Authors:   p.Authors,
			DOI:       p.DOI,
			URL:       p.URL,
			Views:     p.TotalViews(),
			Downloads: p.GalleyViews,
			Citations: d.DOICitations[udmetrics.NormalizeDOI(p.DOI)],
		})
	}
	return out
}

func compareArticles(a, b ArticleRow) int {
	if c := cmp.Compare(b.Views, a.Views); c != 0 {
		return c
	}
	return strings.Compare(a.Title, b.Title)
}

// mergeCountries additionne les visites par code pays, triées par visites
func mergeCountries(lists ...[]udmatomo.CountryVisits) []udmatomo.CountryVisits {
	byCode := make(map[string]*udmatomo.CountryVisits)
	for _, list := range lists {
		for _, c := range list {
			code := strings.ToUpper(c.Code)
			if code == "" {
				continue
			}
			if m, ok := byCode[code]; ok {
				m.Visits += c.Visits
				continue
			}
			byCode[code] = &udmatomo.CountryVisits{Code: code, Label: c.Label, Visits: c.Visits}
		}
	}

	out := make([]udmatomo.CountryVisits, 0, len(byCode))
	for _, c := range byCode {
		out = append(out, *c)
	}
	slices.SortFunc(out, func(a, b udmatomo.CountryVisits) int {
		if c := cmp.Compare(b.Visits, a.Visits); c != 0 {
			return c
		}
		return strings.Compare(a.Code, b.Code)
	})
	return out
}

// Journal construit la vue détaillée d'un journal
func (s *Service) Journal(ctx context.Context, path string, r udmetrics.DateRange) (JournalDetail, error) {
	info, jst, err := s.journal(ctx, path)
	if err != nil {
		return JournalDetail{}, err
	}
	d := s.journalData(ctx, info, r)

	rates := udmetrics.Rates(d.Editorial.Accepted, d.Editorial.Declined)
	citations := udmetrics.SummarizeCitations(d.citedWorks(), topCited)
	views := d.views()

	detail := JournalDetail{
		GeneratedAt:       s.now(),
		Range:             r,
		Journal:           d.Journal,
		Editorial:         d.Editorial,
		Rates:             rates,
		Views:             views,
		Downloads:         d.Downloads,
		Visits:            d.Visits,
		SubmissionsSeries: nonNil(d.SubmissionsSeries),
		ViewsSeries:       nonNil(d.ViewsSeries),
		VisitsSeries:      nonNil(d.VisitsSeries),
		Countries:         mergeCountries(d.Countries),
		TopArticles:       udmetrics.TopN(journalArticles(d), topArticles, compareArticles),
		Citations:         citations,
		Sources:           mergeStatuses(jst, d.Sources),
	}
	detail.Demo = isDemo(detail.Sources)
	detail.KPIs = []KPI{
		{Key: "submissions", Label: "Submissions", Value: float64(d.Editorial.Received)},
		{Key: "acceptance_rate", Label: "Acceptance rate", Value: rates.AcceptanceRate, Unit: "%"},
		{Key: "rejection_rate", Label: "Rejection rate", Value: rates.RejectionRate, Unit: "%"},
		{Key: "days_to_decision", Label: "Days to decision", Value: udmetrics.Round1(d.Editorial.DaysToDecision), Unit: "days"},
		{Key: "published", Label: "Published", Value: float64(d.Editorial.Published)},
		{Key: "views", Label: "Article views", Value: float64(views)},
		{Key: "visitors", Label: "Unique visitors", Value: float64(d.Visits.UniqueVisitors)},
		{Key: "citations", Label: "Citations", Value: float64(citations.TotalCitations)},
		{Key: "h_index", Label: "h-index", Value: float64(citations.HIndex)},
	}
	return detail, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

type leaderMetric struct {
	value func(ComparisonRow) float64
	lower bool
}

var leaderMetrics = map[string]leaderMetric{
	"submissions":      {value: func(r ComparisonRow) float64 { return float64(r.Submissions) }},
	"published":        {value: func(r ComparisonRow) float64 { return float64(r.Published) }},
	"acceptance_rate":  {value: func(r ComparisonRow) float64 { return r.AcceptanceRate }},
	"days_to_decision": {value: func(r ComparisonRow) float64 { return r.DaysToDecision }, lower: true},
	"views":            {value: func(r ComparisonRow) float64 { return float64(r.Views) }},
	"downloads":        {value: func(r ComparisonRow) float64 { return float64(r.Downloads) }},
	"visits":           {value: func(r ComparisonRow) float64 { return float64(r.Visits) }},
	"citations":        {value: func(r ComparisonRow) float64 { return float64(r.Citations) }},
	"h_index":          {value: func(r ComparisonRow) float64 { return float64(r.HIndex) }},
}

// Compare met plusieurs journaux côte à côte; paths est dédupliqué
func (s *Service) Compare(ctx context.Context, paths []string, r udmetrics.DateRange) (Comparison, error) {
	var wanted []string
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" || slices.Contains(wanted, p) {
			continue
		}
		if _, ok := s.cfg.Journal(p); !ok {
			return Comparison{}, fmt.Errorf("%w: %s", ErrUnknownJournal, p)
		}
		wanted = append(wanted, p)
	}
	if len(wanted) < 2 {
		return Comparison{}, ErrNotEnoughJournals
	}

	all, jst := s.Journals(ctx)
	infos := make([]JournalInfo, 0, len(wanted))
	for _, p := range wanted {
		for _, info := range all {
			if info.Path == p {
				infos = append(infos, info)
			}
		}
	}

	data := s.collect(ctx, infos, r)
	cmpView := Comparison{
		GeneratedAt: s.now(),
		Range:       r,
		Rows:        make([]ComparisonRow, 0, len(data)),
		Leaders:     make(map[string]string),
	}
	statuses := [][]SourceStatus{jst}
	for _, d := range data {
		statuses = append(statuses, d.Sources)
		rates := udmetrics.Rates(d.Editorial.Accepted, d.Editorial.Declined)
		citations := udmetrics.SummarizeCitations(d.citedWorks(), 0)
		cmpView.Rows = append(cmpView.Rows, ComparisonRow{
			Journal:        d.Journal,
			Submissions:    d.Editorial.Received,
			Accepted:       d.Editorial.Accepted,
			Declined:       d.Editorial.Declined,
			Published:      d.Editorial.Published,
			AcceptanceRate: rates.AcceptanceRate,
			RejectionRate:  rates.RejectionRate,
			DaysToDecision: udmetrics.Round1(d.Editorial.DaysToDecision),
			Views:          d.views(),
			Downloads:      d.Downloads,
			Visits:         d.Visits.Visits,
			Citations:      citations.TotalCitations,
			HIndex:         citations.HIndex,
		})
	}

	for name, m := range leaderMetrics {
		values := make(map[string]float64, len(cmpView.Rows))
		for _, row := range cmpView.Rows {
			// une valeur nulle signifie pas de données, jamais un meilleur score
			if v := m.value(row); v > 0 {
				values[row.Journal.Path] = v
			}
		}
		if leader := udmetrics.Leader(values, m.lower); leader != "" {
			cmpView.Leaders[name] = leader
		}
	}

	cmpView.Sources = mergeStatuses(statuses...)
	cmpView.Demo = isDemo(cmpView.Sources)
	return cmpView, nil
}

// liveSite: site global, sinon le premier journal suivi par Matomo
func (s *Service) liveSite() int {
	if id := s.cfg.Upstreams.Matomo.SiteID; id > 0 {
		return id
	}
	for _, j := range s.cfg.Journals {
		if j.MatomoSiteID > 0 {
			return j.MatomoSiteID
		}
	}
	return 0
}

// Live retourne les dernières visites, localisées quand Matomo ne fournit
// pas de coordonnées
func (s *Service) Live(ctx context.Context, limit int) LiveFeed {
	return cached(ctx, s, "live:"+strconv.Itoa(limit), func(ctx context.Context) LiveFeed {
		t := s.newTracker()
		site := s.liveSite()
		ok := s.matomo.Configured()

		feed := LiveFeed{GeneratedAt: s.now()}
		if ok && site == 0 {
			// Matomo joignable mais aucun site suivi: flux vide, pas de démo
			feed.Visits = []udmatomo.Visit{}
			feed.Sources = t.list()
			return feed
		}
		feed.Counters = fetch(ctx, t, SourceMatomo, ok, func(ctx context.Context) (udmatomo.Counters, error) {
			return s.matomo.LiveCounters(ctx, site, liveMinutes)
		}, func() udmatomo.Counters {
			c, _ := s.fallback.Live(limit)
			return c
		})
		feed.Visits = fetch(ctx, t, SourceMatomo, ok, func(ctx context.Context) ([]udmatomo.Visit, error) {
			return s.matomo.LastVisits(ctx, site, limit)
		}, func() []udmatomo.Visit {
			_, v := s.fallback.Live(limit)
			return v
		})
		feed.Visits = nonNil(feed.Visits)
		udgeo.Enrich(s.geo, feed.Visits)

		feed.Sources = t.list()
		feed.Demo = isDemo(feed.Sources)
		return feed
	}, func(f LiveFeed) []SourceStatus { return f.Sources })
}

// Public résume l'ensemble de la plateforme depuis ses débuts
func (s *Service) Public(ctx context.Context) (PublicSummary, error) {
	r, err := udmetrics.ParseRange(publicRange, s.now())
	if err != nil {
		return PublicSummary{}, err
	}
	ov := s.Overview(ctx, r)

	intro := s.cfg.Public.Intro
	return PublicSummary{
		Title:       s.cfg.Public.Title,
		IntroHTML:   udmarkdown.ToHTML(intro),
		IntroText:   udmarkdown.PlainText(intro, 160),
		Journals:    ov.Totals.Journals,
		Articles:    ov.Totals.Published,
		Views:       ov.Totals.Views,
		Downloads:   ov.Totals.Downloads,
		Visits:      ov.Totals.Visits,
		Citations:   ov.Totals.Citations,
		HIndex:      ov.Totals.HIndex,
		Countries:   len(ov.Countries),
		GeneratedAt: ov.GeneratedAt,
		Demo:        ov.Demo,
	}, nil
}
