// Package uddashboardtest fournit des sources hors ligne pour tester les
// handlers sans OJS, Matomo ni Crossref.
package uddashboardtest

import (
	"context"
	"errors"
	"testing"

	"udsmanalytics/internal/models/uddashboard"
	"udsmanalytics/internal/models/udfallback"
	"udsmanalytics/internal/models/udmetrics"
	"udsmanalytics/internal/udcache"
	"udsmanalytics/internal/udconfig"
	"udsmanalytics/internal/udcrossref"
	"udsmanalytics/internal/udmatomo"
	"udsmanalytics/internal/udojs"

	"github.com/stretchr/testify/require"
)

var ErrOffline = errors.New("offline")

// Offline implémente les trois sources sans jamais répondre
type Offline struct{}

func (Offline) Configured() bool { return false }

func (Offline) ListContexts(context.Context) ([]udojs.Context, error) {
	return nil, ErrOffline
}

func (Offline) EditorialStats(context.Context, string, udmetrics.DateRange) (udojs.EditorialStats, error) {
	return udojs.EditorialStats{}, ErrOffline
}

func (Offline) PublicationStats(context.Context, string, udmetrics.DateRange, int) ([]udojs.PublicationStat, error) {
	return nil, ErrOffline
}

func (Offline) PublicationTimeline(context.Context, string, udmetrics.DateRange, string) ([]udmetrics.TimelinePoint, error) {
	return nil, ErrOffline
}

func (Offline) SubmissionTimeline(context.Context, string, udmetrics.DateRange) ([]udmetrics.TimelinePoint, error) {
	return nil, ErrOffline
}

func (Offline) Thumbnail(context.Context, string) ([]byte, error) {
	return nil, ErrOffline
}

func (Offline) VisitsSummary(context.Context, int, udmetrics.DateRange) (udmatomo.VisitsSummary, error) {
	return udmatomo.VisitsSummary{}, ErrOffline
}

func (Offline) VisitsTimeline(context.Context, int, udmetrics.DateRange) ([]udmetrics.TimelinePoint, error) {
	return nil, ErrOffline
}

func (Offline) Countries(context.Context, int, udmetrics.DateRange, int) ([]udmatomo.CountryVisits, error) {
	return nil, ErrOffline
}

func (Offline) LastVisits(context.Context, int, int) ([]udmatomo.Visit, error) {
	return nil, ErrOffline
}

func (Offline) LiveCounters(context.Context, int, int) (udmatomo.Counters, error) {
	return udmatomo.Counters{}, ErrOffline
}

func (Offline) Downloads(context.Context, int, udmetrics.DateRange) (int64, error) {
	return 0, ErrOffline
}

func (Offline) JournalWorks(context.Context, string) ([]udcrossref.Work, error) {
	return nil, ErrOffline
}

func (Offline) WorkCitations(context.Context, string) (int, error) {
	return 0, ErrOffline
}

// Config : deux journaux, données de démonstration activées
func Config() *udconfig.Config {
	cfg := &udconfig.Config{
		Journals: []udconfig.JournalConfig{
			{Id: 1, Path: "tjs", ISSN: "1111-2222", MatomoSiteID: 2},
			{Id: 2, Path: "uj", MatomoSiteID: 3},
		},
		Public: udconfig.PublicConfig{
			Title: "UDSM Journals",
			Intro: "**Welcome** to the *journals* of the University of Dar es Salaam.",
		},
		Fallback: udconfig.FallbackConfig{Enabled: true},
	}
	cfg.ApplyDefaults()
	return cfg
}

// NewService construit un service dont toutes les sources sont hors ligne,
// sauf ojs s'il est fourni
func NewService(t testing.TB, cfg *udconfig.Config, ojs uddashboard.OJS) *uddashboard.Service {
	t.Helper()
	if ojs == nil {
		ojs = Offline{}
	}
	fb, err := udfallback.New()
	require.NoError(t, err)
	return uddashboard.New(cfg, ojs, Offline{}, Offline{}, udcache.NewMemory(), fb, nil)
}
