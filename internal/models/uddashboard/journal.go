package uddashboard

import (
	"context"
	"sync"

	"udsmanalytics/internal/models/udmetrics"
	"udsmanalytics/internal/udcache"
	"udsmanalytics/internal/udcrossref"
	"udsmanalytics/internal/udmatomo"
	"udsmanalytics/internal/udojs"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// les articles d'un ISSN changent peu: gardés plus longtemps que les vues
const worksTTLFactor = 8

func (s *Service) buildJournal(ctx context.Context, info JournalInfo, r udmetrics.DateRange) journalData {
	t := s.newTracker()
	d := journalData{Journal: info}
	path, id, site := info.Path, info.ID, info.MatomoSiteID

	ojsOK := s.ojs.Configured()
	matomoOK := s.matomo.Configured()
	crossrefOK := s.crossref.Configured()

	// un journal sans site Matomo ou sans ISSN n'est pas une panne: la source
	// n'est pas interrogée, ses valeurs restent à zéro et hors des états
	withMatomo := !matomoOK || site > 0
	withCrossref := !crossrefOK || info.ISSN != ""

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.Editorial = fetch(gctx, t, SourceOJS, ojsOK, func(ctx context.Context) (udojs.EditorialStats, error) {
			return s.ojs.EditorialStats(ctx, path, r)
		}, func() udojs.EditorialStats { return s.fallback.Editorial(path, id) })
		return nil
	})
	g.Go(func() error {
		d.Publications = fetch(gctx, t, SourceOJS, ojsOK, func(ctx context.Context) ([]udojs.PublicationStat, error) {
			return s.ojs.PublicationStats(ctx, path, r, topArticles)
		}, func() []udojs.PublicationStat { return s.fallback.Publications(path, id) })
		return nil
	})
	g.Go(func() error {
		d.ViewsSeries = fetch(gctx, t, SourceOJS, ojsOK, func(ctx context.Context) ([]udmetrics.TimelinePoint, error) {
			return s.ojs.PublicationTimeline(ctx, path, r, "")
		}, func() []udmetrics.TimelinePoint { return s.fallback.ViewsTimeline(id, r) })
		return nil
	})
	g.Go(func() error {
		d.SubmissionsSeries = fetch(gctx, t, SourceOJS, ojsOK, func(ctx context.Context) ([]udmetrics.TimelinePoint, error) {
			return s.ojs.SubmissionTimeline(ctx, path, r)
		}, func() []udmetrics.TimelinePoint { return s.fallback.SubmissionTimeline(id, r) })
		return nil
	})
	if withMatomo {
		g.Go(func() error {
			d.Visits = fetch(gctx, t, SourceMatomo, matomoOK, func(ctx context.Context) (udmatomo.VisitsSummary, error) {
				return s.matomo.VisitsSummary(ctx, site, r)
			}, func() udmatomo.VisitsSummary { return s.fallback.Visits(path, id) })
			return nil
		})
		g.Go(func() error {
			d.VisitsSeries = fetch(gctx, t, SourceMatomo, matomoOK, func(ctx context.Context) ([]udmetrics.TimelinePoint, error) {
				return s.matomo.VisitsTimeline(ctx, site, r)
			}, func() []udmetrics.TimelinePoint { return s.fallback.VisitsTimeline(id, r) })
			return nil
		})
		g.Go(func() error {
			d.Countries = fetch(gctx, t, SourceMatomo, matomoOK, func(ctx context.Context) ([]udmatomo.CountryVisits, error) {
				return s.matomo.Countries(ctx, site, r, countriesLimit)
			}, func() []udmatomo.CountryVisits { return s.fallback.Countries(path, id) })
			return nil
		})
		g.Go(func() error {
			d.Downloads = fetch(gctx, t, SourceMatomo, matomoOK, func(ctx context.Context) (int64, error) {
				return s.matomo.Downloads(ctx, site, r)
			}, func() int64 { return downloadsPlaceholder(s.fallback.Publications(path, id)) })
			return nil
		})
	}
	if withCrossref {
		g.Go(func() error {
			d.Works = fetch(gctx, t, SourceCrossref, crossrefOK, func(ctx context.Context) ([]udcrossref.Work, error) {
				return udcache.Remember(ctx, s.cache, "works:"+info.ISSN, s.ttl*worksTTLFactor, func(ctx context.Context) ([]udcrossref.Work, error) {
					return s.crossref.JournalWorks(ctx, info.ISSN)
				})
			}, func() []udcrossref.Work { return s.fallback.Works(path, id) })
			return nil
		})
	}
	g.Wait()

	d.DOICitations = s.articleCitations(ctx, d.Publications, d.Works, t.live(SourceCrossref))
	d.Sources = t.list()
	return d
}

// downloadsPlaceholder: sans Matomo, les vues de fichiers OJS de démo
func downloadsPlaceholder(pubs []udojs.PublicationStat) int64 {
	var n int64
	for _, p := range pubs {
		n += p.GalleyViews
	}
	return n
}

// articleCitations associe un nombre de citations aux articles les plus vus.
// Les DOI absents de la liste du journal (ISSN différent, article récent)
// sont demandés un par un à Crossref; un 404 y est fréquent et ignoré.
func (s *Service) articleCitations(ctx context.Context, pubs []udojs.PublicationStat, works []udcrossref.Work, lookup bool) map[string]int {
	byDOI := make(map[string]int, len(works))
	for _, w := range works {
		if doi := udmetrics.NormalizeDOI(w.DOI); doi != "" {
			byDOI[doi] = max(byDOI[doi], w.Citations)
		}
	}

	out := make(map[string]int)
	var missing []string
	for _, p := range pubs {
		doi := udmetrics.NormalizeDOI(p.DOI)
		if doi == "" {
			continue
		}
		if n, ok := byDOI[doi]; ok {
			out[doi] = n
			continue
		}
		missing = append(missing, doi)
	}
	if !lookup || len(missing) == 0 {
		return out
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOut)
	for _, doi := range missing {
		g.Go(func() error {
			n, err := s.crossref.WorkCitations(gctx, doi)
			if err != nil {
				log.Debug().Err(err).Str("doi", doi).Msg("citation lookup failed")
				return nil
			}
			mu.Lock()
			out[doi] = n
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return out
}

func (s *Service) buildSite(ctx context.Context, r udmetrics.DateRange) siteData {
	t := s.newTracker()
	site := s.cfg.Upstreams.Matomo.SiteID
	ok := s.matomo.Configured() && site > 0
	var d siteData

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.Visits = fetch(gctx, t, SourceMatomo, ok, func(ctx context.Context) (udmatomo.VisitsSummary, error) {
			return s.matomo.VisitsSummary(ctx, site, r)
		}, s.fallback.SiteVisits)
		return nil
	})
	g.Go(func() error {
		d.VisitsSeries = fetch(gctx, t, SourceMatomo, ok, func(ctx context.Context) ([]udmetrics.TimelinePoint, error) {
			return s.matomo.VisitsTimeline(ctx, site, r)
		}, func() []udmetrics.TimelinePoint { return s.fallback.VisitsTimeline(0, r) })
		return nil
	})
	g.Go(func() error {
		d.Countries = fetch(gctx, t, SourceMatomo, ok, func(ctx context.Context) ([]udmatomo.CountryVisits, error) {
			return s.matomo.Countries(ctx, site, r, countriesLimit)
		}, func() []udmatomo.CountryVisits { return s.fallback.Countries("", 0) })
		return nil
	})
	g.Wait()

	d.Sources = t.list()
	return d
}
