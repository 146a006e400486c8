// Package uddashboard agrège OJS, Matomo et Crossref en vues prêtes à
// afficher. Chaque source se dégrade seule: une panne produit un
// SourceStatus en erreur et des données de démonstration, jamais une vue
// en échec.
package uddashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"udsmanalytics/internal/models/udfallback"
	"udsmanalytics/internal/models/udmetrics"
	"udsmanalytics/internal/udcache"
	"udsmanalytics/internal/udconfig"
	"udsmanalytics/internal/udgeo"
	"udsmanalytics/internal/udimages"
	"udsmanalytics/internal/udojs"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var (
	ErrUnknownJournal    = errors.New("unknown journal")
	ErrNotEnoughJournals = errors.New("at least two journals are required")
	ErrRefreshRunning    = errors.New("refresh already running")
	ErrNoThumbnail       = errors.New("journal has no thumbnail")
)

const (
	// journaux interrogés en parallèle
	fanOut         = 4
	topArticles    = 10
	topCited       = 10
	countriesLimit = 250
	liveMinutes    = 30
	refreshTimeout = 10 * time.Minute
	thumbnailTTL   = 24 * time.Hour
	contextsKey    = "contexts"
)

type Service struct {
	cfg      *udconfig.Config
	ojs      OJS
	matomo   Matomo
	crossref Crossref
	cache    udcache.Cache
	fallback *udfallback.Store
	geo      udgeo.Locator
	cron     *cron.Cron

	ttl     time.Duration
	liveTTL time.Duration
	now     func() time.Time

	refreshing atomic.Bool
	flight     singleflight.Group
	mu         sync.RWMutex
	last       map[string]SourceStatus
}

func New(cfg *udconfig.Config, ojs OJS, matomo Matomo, crossref Crossref, cache udcache.Cache, fb *udfallback.Store, geo udgeo.Locator) *Service {
	return &Service{
		cfg:      cfg,
		ojs:      ojs,
		matomo:   matomo,
		crossref: crossref,
		cache:    cache,
		fallback: fb,
		geo:      geo,
		ttl:      time.Duration(cfg.Cache.TTL) * time.Second,
		liveTTL:  time.Duration(cfg.Cache.LiveTTL) * time.Second,
		now:      time.Now,
		last:     make(map[string]SourceStatus),
	}
}

// Now est l'horloge utilisée pour résoudre les périodes
func (s *Service) Now() time.Time {
	return s.now()
}

func (s *Service) newTracker() *tracker {
	return newTracker(s.now, s.cfg.Fallback.Enabled)
}

// cached lit key dans le cache, sinon construit la valeur et la stocke.
// Les constructions concurrentes d'une même clé sont partagées; une vue
// dégradée est gardée moins longtemps pour réessayer plus tôt.
func cached[T any](ctx context.Context, s *Service, key string, build func(context.Context) T, statuses func(T) []SourceStatus) T {
	if v, ok := lookup[T](ctx, s, key); ok {
		return v
	}

	res, _, shared := s.flight.Do(key, func() (any, error) {
		// un appel précédent a pu stocker la valeur entre-temps
		if v, ok := lookup[T](ctx, s, key); ok {
			return v, nil
		}
		v := build(ctx)
		s.store(ctx, key, v, statuses(v))
		return v, nil
	})
	if shared {
		log.Debug().Str("key", key).Msg("snapshot build shared")
	}
	return res.(T)
}

func lookup[T any](ctx context.Context, s *Service, key string) (T, bool) {
	var v T
	found, err := s.cache.Get(ctx, key, &v)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}
	return v, found
}

func (s *Service) store(ctx context.Context, key string, v any, statuses []SourceStatus) {
	ttl := s.ttl
	if degraded(statuses) {
		ttl = s.liveTTL
	}
	if err := s.cache.Set(ctx, key, v, ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	s.remember(statuses)
}

func (s *Service) remember(statuses []SourceStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range statuses {
		s.last[st.Name] = st
	}
}

// Sources retourne le dernier état connu de chaque source
func (s *Service) Sources() []SourceStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SourceStatus, 0, len(sourceOrder))
	for _, name := range sourceOrder {
		st, ok := s.last[name]
		if !ok {
			st = SourceStatus{Name: name}
		}
		out = append(out, st)
	}
	return out
}

// Journals retourne les journaux configurés, complétés par OJS
func (s *Service) Journals(ctx context.Context) ([]JournalInfo, []SourceStatus) {
	t := s.newTracker()
	contexts := fetch(ctx, t, SourceOJS, s.ojs.Configured(), func(ctx context.Context) ([]udojs.Context, error) {
		return udcache.Remember(ctx, s.cache, contextsKey, s.ttl, s.ojs.ListContexts)
	}, nil)

	statuses := t.list()
	s.remember(statuses)
	return reconcile(s.cfg.Journals, contexts), statuses
}

func reconcile(journals []udconfig.JournalConfig, contexts []udojs.Context) []JournalInfo {
	byPath := make(map[string]udojs.Context, len(contexts))
	for _, c := range contexts {
		byPath[c.URLPath] = c
	}

	out := make([]JournalInfo, 0, len(journals))
	for _, j := range journals {
		info := JournalInfo{
			ID:           j.Id,
			Path:         j.Path,
			Name:         j.Name,
			ISSN:         j.ISSN,
			MatomoSiteID: j.MatomoSiteID,
		}
		if c, ok := byPath[j.Path]; ok {
			if info.Name == "" {
				info.Name = c.Name
			}
			if info.ISSN == "" {
				info.ISSN = c.OnlineISSN
			}
			if info.ISSN == "" {
				info.ISSN = c.PrintISSN
			}
			info.Acronym = c.Acronym
			info.Description = c.Description
			info.ThumbnailURL = c.ThumbnailURL
		}
		if info.Name == "" {
			info.Name = j.Path
		}
		info.Color, info.ColorLight = udimages.JournalColors(j.Color, j.Id)
		out = append(out, info)
	}
	return out
}

// journal retrouve un journal configuré par son path
func (s *Service) journal(ctx context.Context, path string) (JournalInfo, []SourceStatus, error) {
	if _, ok := s.cfg.Journal(path); !ok {
		return JournalInfo{}, nil, fmt.Errorf("%w: %s", ErrUnknownJournal, path)
	}
	infos, statuses := s.Journals(ctx)
	for _, info := range infos {
		if info.Path == path {
			return info, statuses, nil
		}
	}
	return JournalInfo{}, nil, fmt.Errorf("%w: %s", ErrUnknownJournal, path)
}

// collect récupère les données de plusieurs journaux en parallèle
func (s *Service) collect(ctx context.Context, infos []JournalInfo, r udmetrics.DateRange) []journalData {
	out := make([]journalData, len(infos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOut)
	for i, info := range infos {
		g.Go(func() error {
			out[i] = s.journalData(gctx, info, r)
			return nil
		})
	}
	g.Wait()
	return out
}

func journalKey(path string, r udmetrics.DateRange) string {
	return "journal:" + path + ":" + r.CacheKey()
}

func siteKey(r udmetrics.DateRange) string {
	return "site:" + r.CacheKey()
}

func (s *Service) journalData(ctx context.Context, info JournalInfo, r udmetrics.DateRange) journalData {
	return cached(ctx, s, journalKey(info.Path, r), func(ctx context.Context) journalData {
		return s.buildJournal(ctx, info, r)
	}, func(d journalData) []SourceStatus { return d.Sources })
}

func (s *Service) siteData(ctx context.Context, r udmetrics.DateRange) siteData {
	return cached(ctx, s, siteKey(r), func(ctx context.Context) siteData {
		return s.buildSite(ctx, r)
	}, func(d siteData) []SourceStatus { return d.Sources })
}

// Refresh reconstruit les instantanés de la période par défaut et de la
// vue publique, sans attendre l'expiration du cache
func (s *Service) Refresh(ctx context.Context) error {
	if !s.refreshing.CompareAndSwap(false, true) {
		return ErrRefreshRunning
	}
	defer s.refreshing.Store(false)
	return s.refresh(ctx)
}

// RefreshAsync lance Refresh en arrière-plan; ErrRefreshRunning est
// retourné immédiatement si une reconstruction est déjà en cours
func (s *Service) RefreshAsync() error {
	if !s.refreshing.CompareAndSwap(false, true) {
		return ErrRefreshRunning
	}
	go func() {
		defer s.refreshing.Store(false)
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		if err := s.refresh(ctx); err != nil {
			log.Warn().Err(err).Msg("manual refresh failed")
		}
	}()
	return nil
}

func (s *Service) refresh(ctx context.Context) error {
	start := time.Now()
	if err := s.cache.Delete(ctx, contextsKey); err != nil {
		log.Warn().Err(err).Msg("cache delete failed")
	}
	infos, _ := s.Journals(ctx)

	for _, key := range []string{udmetrics.DefaultRange, publicRange} {
		r, err := udmetrics.ParseRange(key, s.now())
		if err != nil {
			return err
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(fanOut)
		for _, info := range infos {
			g.Go(func() error {
				d := s.buildJournal(gctx, info, r)
				s.store(gctx, journalKey(info.Path, r), d, d.Sources)
				return nil
			})
		}
		if s.cfg.Upstreams.Matomo.SiteID > 0 {
			g.Go(func() error {
				d := s.buildSite(gctx, r)
				s.store(gctx, siteKey(r), d, d.Sources)
				return nil
			})
		}
		g.Wait()
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	log.Info().
		Int("journals", len(infos)).
		Dur("duration", time.Since(start)).
		Msg("dashboard snapshots refreshed")
	return nil
}

// StartScheduler programme Refresh selon refresh.cron
func (s *Service) StartScheduler() error {
	if !s.cfg.Refresh.Enabled {
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(s.cfg.Refresh.Cron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		if err := s.Refresh(ctx); err != nil {
			log.Warn().Err(err).Msg("scheduled refresh failed")
		}
	})
	if err != nil {
		return fmt.Errorf("refresh cron %q: %w", s.cfg.Refresh.Cron, err)
	}

	c.Start()
	s.cron = c
	log.Info().Str("cron", s.cfg.Refresh.Cron).Msg("refresh scheduler started")
	return nil
}

func (s *Service) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
}

// Thumbnail retourne la vignette PNG réduite d'un journal
func (s *Service) Thumbnail(ctx context.Context, path string) ([]byte, error) {
	info, _, err := s.journal(ctx, path)
	if err != nil {
		return nil, err
	}
	if info.ThumbnailURL == "" || !s.ojs.Configured() {
		return nil, ErrNoThumbnail
	}

	return udcache.Remember(ctx, s.cache, "thumb:"+path, thumbnailTTL, func(ctx context.Context) ([]byte, error) {
		raw, err := s.ojs.Thumbnail(ctx, info.ThumbnailURL)
		if err != nil {
			return nil, err
		}
		return udimages.Thumbnail(raw, udimages.ThumbnailWidth)
	})
}
