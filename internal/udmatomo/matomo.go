// Package udmatomo interroge l'API HTTP de Matomo.
//
// Toutes les méthodes passent par index.php?module=API en POST, le jeton
// token_auth voyage dans le corps du formulaire et jamais dans l'url.
package udmatomo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"udsmanalytics/internal/models/udmetrics"
	"udsmanalytics/internal/udconfig"
	"udsmanalytics/internal/udhttp"
)

const (
	Source   = "matomo"
	endpoint = "index.php"
	pageSize = 100
)

type Client struct {
	http   *udhttp.Client
	token  string
	SiteID int
}

func New(cfg udconfig.MatomoConfig) *Client {
	return &Client{
		http:   udhttp.New(Source, cfg.BaseURL, time.Duration(cfg.Timeout)*time.Second, cfg.Retries),
		token:  cfg.TokenAuth,
		SiteID: cfg.SiteID,
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.http.Configured()
}

// call exécute une méthode de l'API et décode le résultat dans out
func (c *Client) call(ctx context.Context, method string, params url.Values, out any) error {
	form := url.Values{
		"module":     {"API"},
		"method":     {method},
		"format":     {"JSON"},
		"token_auth": {c.token},
	}
	for k, v := range params {
		form[k] = v
	}

	var raw json.RawMessage
	if err := c.http.PostFormJSON(ctx, endpoint, form, &raw); err != nil {
		return fmt.Errorf("matomo %s: %w", method, err)
	}
	if err := checkError(method, raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("matomo %s: %w", method, err)
	}
	return nil
}

func siteParams(siteID int, period, date string) url.Values {
	return url.Values{
		"idSite": {strconv.Itoa(siteID)},
		"period": {period},
		"date":   {date},
	}
}

func (c *Client) VisitsSummary(ctx context.Context, siteID int, r udmetrics.DateRange) (VisitsSummary, error) {
	var raw json.RawMessage
	if err := c.call(ctx, "VisitsSummary.get", siteParams(siteID, "range", r.MatomoDate()), &raw); err != nil {
		return VisitsSummary{}, err
	}
	// une période sans données revient en []
	if isEmptyArray(raw) {
		return VisitsSummary{}, nil
	}
	var s apiVisitsSummary
	if err := json.Unmarshal(raw, &s); err != nil {
		return VisitsSummary{}, fmt.Errorf("matomo VisitsSummary.get: %w", err)
	}
	return s.toSummary(), nil
}

// VisitsTimeline retourne les visites par mois: la réponse est un objet
// {"2026-01": {...}, "2026-02": []} où [] signifie aucune donnée
func (c *Client) VisitsTimeline(ctx context.Context, siteID int, r udmetrics.DateRange) ([]udmetrics.TimelinePoint, error) {
	var byPeriod map[string]json.RawMessage
	if err := c.call(ctx, "VisitsSummary.get", siteParams(siteID, "month", r.MatomoDate()), &byPeriod); err != nil {
		return nil, err
	}
	return parsePeriodMap(byPeriod)
}

func parsePeriodMap(byPeriod map[string]json.RawMessage) ([]udmetrics.TimelinePoint, error) {
	points := make([]udmetrics.TimelinePoint, 0, len(byPeriod))
	for period, raw := range byPeriod {
		date := normalizePeriod(period)
		if date == "" {
			continue
		}
		p := udmetrics.TimelinePoint{Date: date}
		if t, err := time.Parse("2006-01", date); err == nil {
			p.Label = t.Format("January 2006")
		}
		if !isEmptyArray(raw) {
			var s apiVisitsSummary
			if err := json.Unmarshal(raw, &s); err != nil {
				return nil, fmt.Errorf("matomo période %s: %w", period, err)
			}
			p.Value = int64(s.Visits)
		}
		points = append(points, p)
	}
	slices.SortFunc(points, func(a, b udmetrics.TimelinePoint) int { return strings.Compare(a.Date, b.Date) })
	return points, nil
}

// normalizePeriod: "2026-01" ou "2026-01-01,2026-01-31" donnent "2026-01"
func normalizePeriod(period string) string {
	period = strings.TrimSpace(period)
	if i := strings.Index(period, ","); i >= 0 {
		period = period[:i]
	}
	if len(period) >= 7 {
		return period[:7]
	}
	return ""
}

func isEmptyArray(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "[]" || s == "" || s == "null"
}

// Countries retourne les visites par pays, triées par visites décroissantes
func (c *Client) Countries(ctx context.Context, siteID int, r udmetrics.DateRange, limit int) ([]CountryVisits, error) {
	params := siteParams(siteID, "range", r.MatomoDate())
	if limit > 0 {
		params.Set("filter_limit", strconv.Itoa(limit))
	}

	var rows []apiCountry
	if err := c.call(ctx, "UserCountry.getCountry", params, &rows); err != nil {
		return nil, err
	}

	out := make([]CountryVisits, 0, len(rows))
	for _, row := range rows {
		out = append(out, CountryVisits{
			Code:   strings.ToUpper(row.Code),
			Label:  row.Label,
			Visits: int64(row.Visits),
		})
	}
	slices.SortStableFunc(out, func(a, b CountryVisits) int {
		switch {
		case a.Visits > b.Visits:
			return -1
		case a.Visits < b.Visits:
			return 1
		}
		return 0
	})
	return out, nil
}

// LastVisits pagine Live.getLastVisitsDetails par filter_offset
func (c *Client) LastVisits(ctx context.Context, siteID int, limit int) ([]Visit, error) {
	if limit <= 0 {
		limit = 20
	}

	var out []Visit
	for offset := 0; len(out) < limit; offset += pageSize {
		n := min(pageSize, limit-len(out))
		params := url.Values{
			"idSite":        {strconv.Itoa(siteID)},
			"period":        {"day"},
			"date":          {"today"},
			"filter_limit":  {strconv.Itoa(n)},
			"filter_offset": {strconv.Itoa(offset)},
		}

		var rows []apiVisit
		if err := c.call(ctx, "Live.getLastVisitsDetails", params, &rows); err != nil {
			return nil, err
		}
		for _, row := range rows {
			out = append(out, row.toVisit())
		}
		if len(rows) < n {
			break
		}
	}
	return out, nil
}

func (v apiVisit) toVisit() Visit {
	visit := Visit{
		ID:          int64(v.IDVisit),
		IP:          v.VisitIP,
		Timestamp:   int64(v.ServerTimestamp),
		CountryCode: strings.ToUpper(v.CountryCode),
		Country:     v.Country,
		City:        v.City,
		Latitude:    float64(v.Latitude),
		Longitude:   float64(v.Longitude),
		Referrer:    v.ReferrerName,
		Device:      v.DeviceType,
		Actions:     make([]Action, 0, len(v.ActionDetails)),
	}
	// "xx" = pays inconnu pour Matomo
	if visit.CountryCode == "XX" {
		visit.CountryCode = ""
	}
	for _, a := range v.ActionDetails {
		visit.Actions = append(visit.Actions, Action{
			Type:      a.Type,
			URL:       a.URL,
			PageTitle: a.PageTitle,
			Timestamp: int64(a.Timestamp),
		})
	}
	return visit
}

func (c *Client) LiveCounters(ctx context.Context, siteID int, lastMinutes int) (Counters, error) {
	params := url.Values{
		"idSite":      {strconv.Itoa(siteID)},
		"lastMinutes": {strconv.Itoa(lastMinutes)},
	}

	var rows []apiCounters
	if err := c.call(ctx, "Live.getCounters", params, &rows); err != nil {
		return Counters{}, err
	}
	if len(rows) == 0 {
		return Counters{}, nil
	}
	return Counters{
		Visits:   int64(rows[0].Visits),
		Actions:  int64(rows[0].Actions),
		Visitors: int64(rows[0].Visitors),
	}, nil
}

// Downloads retourne le nombre total de téléchargements suivis par Matomo
func (c *Client) Downloads(ctx context.Context, siteID int, r udmetrics.DateRange) (int64, error) {
	params := siteParams(siteID, "range", r.MatomoDate())
	params.Set("flat", "1")

	var rows []struct {
		Hits FlexInt `json:"nb_hits"`
	}
	if err := c.call(ctx, "Actions.getDownloads", params, &rows); err != nil {
		return 0, err
	}
	var total int64
	for _, row := range rows {
		total += int64(row.Hits)
	}
	return total, nil
}
