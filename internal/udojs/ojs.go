// Package udojs interroge l'API REST d'Open Journal Systems.
//
// L'authentification passe par un jeton Bearer, les listes sont paginées
// avec count/offset et le total est donné par itemsMax.
package udojs

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"udsmanalytics/internal/models/udmetrics"
	"udsmanalytics/internal/udconfig"
	"udsmanalytics/internal/udhttp"

	"github.com/rs/zerolog/log"
)

const (
	Source   = "ojs"
	pageSize = 100
	maxPages = 50
	// contexte du site (hors journal) pour l'API
	siteContext = "index"
)

type Client struct {
	http *udhttp.Client
}

func New(cfg udconfig.OJSConfig) *Client {
	return &Client{
		http: udhttp.New(Source, cfg.BaseURL, time.Duration(cfg.Timeout)*time.Second, cfg.Retries,
			udhttp.WithBearer(cfg.APIToken)),
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.http.Configured()
}

func apiPath(journal, endpoint string) string {
	return journal + "/api/v1/" + strings.TrimLeft(endpoint, "/")
}

// paginate récupère les pages d'une liste OJS jusqu'à limit éléments
// (limit <= 0 pour tous) ou jusqu'à ce que done accepte la dernière page
func paginate[T any](ctx context.Context, c *Client, path string, query url.Values, limit int, done func(page []T) bool) ([]T, error) {
	if query == nil {
		query = url.Values{}
	}

	var out []T
	for page := 0; page < maxPages; page++ {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("count", strconv.Itoa(pageSize))
		q.Set("offset", strconv.Itoa(page*pageSize))

		var env envelope[T]
		if err := c.http.GetJSON(ctx, path, q, &env); err != nil {
			return nil, err
		}
		out = append(out, env.Items...)

		if limit > 0 && len(out) >= limit {
			return out[:limit], nil
		}
		if done != nil && done(env.Items) {
			return out, nil
		}
		if len(env.Items) < pageSize || (env.ItemsMax > 0 && len(out) >= env.ItemsMax) {
			return out, nil
		}
	}
	log.Warn().Str("source", Source).Str("path", path).Int("items", len(out)).Int("pages", maxPages).
		Msg("page limit reached, list truncated")
	return out, nil
}

// ListContexts retourne les journaux actifs de l'installation
func (c *Client) ListContexts(ctx context.Context) ([]Context, error) {
	items, err := paginate[apiContext](ctx, c, apiPath(siteContext, "contexts"), url.Values{"isEnabled": {"true"}}, 0, nil)
	if err != nil {
		return nil, fmt.Errorf("ojs contexts: %w", err)
	}

	out := make([]Context, 0, len(items))
	for _, it := range items {
		ctxItem := Context{
			ID:          it.ID,
			URLPath:     it.URLPath,
			Name:        it.Name.String(),
			Acronym:     it.Acronym.String(),
			Description: it.Description.String(),
			OnlineISSN:  it.OnlineISSN,
			PrintISSN:   it.PrintISSN,
		}
		if name := it.JournalThumbnail.uploadName(); name != "" {
			ctxItem.ThumbnailURL = c.publicFileURL(it.ID, name)
		}
		out = append(out, ctxItem)
	}
	return out, nil
}

// publicFileURL: les fichiers publics sont servis hors de index.php
func (c *Client) publicFileURL(contextID int, name string) string {
	base := strings.TrimSuffix(c.http.BaseURL, "/index.php")
	return fmt.Sprintf("%s/public/journals/%d/%s", base, contextID, url.PathEscape(name))
}

func rangeQuery(r udmetrics.DateRange) url.Values {
	return url.Values{
		"dateStart": {r.StartString()},
		"dateEnd":   {r.EndString()},
	}
}

// EditorialStats lit la liste clé/valeur de /stats/editorial
func (c *Client) EditorialStats(ctx context.Context, journal string, r udmetrics.DateRange) (EditorialStats, error) {
	var items []statItem
	if err := c.http.GetJSON(ctx, apiPath(journal, "stats/editorial"), rangeQuery(r), &items); err != nil {
		return EditorialStats{}, fmt.Errorf("ojs editorial %s: %w", journal, err)
	}
	return parseEditorial(items), nil
}

func parseEditorial(items []statItem) EditorialStats {
	var s EditorialStats
	for _, it := range items {
		switch it.Key {
		case "submissionsReceived":
			s.Received = int64(it.Value)
		case "submissionsAccepted":
			s.Accepted = int64(it.Value)
		case "submissionsDeclined":
			s.Declined = int64(it.Value)
		case "submissionsDeclinedDeskReject":
			s.DeclinedDesk = int64(it.Value)
		case "submissionsDeclinedPostReview":
			s.DeclinedReview = int64(it.Value)
		case "submissionsPublished":
			s.Published = int64(it.Value)
		case "daysToDecision":
			s.DaysToDecision = it.Value
		case "daysToAccept":
			s.DaysToAccept = it.Value
		case "daysToReject":
			s.DaysToReject = it.Value
		}
	}
	// certaines versions ne donnent que le détail des refus
	if s.Declined == 0 {
		s.Declined = s.DeclinedDesk + s.DeclinedReview
	}
	return s
}

// PublicationStats retourne les articles les plus vus, limit <= 0 pour tous
func (c *Client) PublicationStats(ctx context.Context, journal string, r udmetrics.DateRange, limit int) ([]PublicationStat, error) {
	q := rangeQuery(r)
	q.Set("orderBy", "total")
	q.Set("orderDirection", "DESC")

	items, err := paginate[apiPublicationStat](ctx, c, apiPath(journal, "stats/publications"), q, limit, nil)
	if err != nil {
		return nil, fmt.Errorf("ojs publications %s: %w", journal, err)
	}

	out := make([]PublicationStat, 0, len(items))
	for _, it := range items {
		title := it.Publication.FullTitle.String()
		if title == "" {
			title = it.Publication.Title.String()
		}
		out = append(out, PublicationStat{
			ID:            it.Publication.ID,
			Title:         title,
			Authors:       it.Publication.AuthorsStringShort,
			DOI:           it.Publication.doi(),
			URL:           it.Publication.URLPublished,
			AbstractViews: it.AbstractViews,
			GalleyViews:   it.GalleyViews,
			PDFViews:      it.PDFViews,
			HTMLViews:     it.HTMLViews,
			OtherViews:    it.OtherViews,
		})
	}
	return out, nil
}

// PublicationTimeline: vues par mois, kind vaut "abstract" ou "files"
func (c *Client) PublicationTimeline(ctx context.Context, journal string, r udmetrics.DateRange, kind string) ([]udmetrics.TimelinePoint, error) {
	q := rangeQuery(r)
	q.Set("timelineInterval", "month")
	if kind != "" {
		q.Set("type", kind)
	}

	var points []udmetrics.TimelinePoint
	if err := c.http.GetJSON(ctx, apiPath(journal, "stats/publications/timeline"), q, &points); err != nil {
		return nil, fmt.Errorf("ojs timeline %s: %w", journal, err)
	}
	return points, nil
}

// SubmissionTimeline compte les soumissions reçues par mois sur la période.
// L'API submissions ne filtre pas par date: les pages arrivent de la plus
// récente à la plus ancienne et on s'arrête dès qu'une page sort de la période.
func (c *Client) SubmissionTimeline(ctx context.Context, journal string, r udmetrics.DateRange) ([]udmetrics.TimelinePoint, error) {
	q := url.Values{"orderBy": {"dateSubmitted"}, "orderDirection": {"DESC"}}
	items, err := paginate[apiSubmission](ctx, c, apiPath(journal, "submissions"), q, 0, func(page []apiSubmission) bool {
		return reachesBefore(page, r.Start)
	})
	if err != nil {
		return nil, fmt.Errorf("ojs submissions %s: %w", journal, err)
	}
	return bucketSubmissions(items, r), nil
}

// reachesBefore: une soumission de la page est antérieure à start. Les
// brouillons sans date sont ignorés.
func reachesBefore(page []apiSubmission, start time.Time) bool {
	for _, it := range page {
		if submitted, ok := parseOJSDate(it.DateSubmitted); ok && submitted.Before(start) {
			return true
		}
	}
	return false
}

func bucketSubmissions(items []apiSubmission, r udmetrics.DateRange) []udmetrics.TimelinePoint {
	end := r.End.AddDate(0, 0, 1)
	var points []udmetrics.TimelinePoint
	for _, it := range items {
		submitted, ok := parseOJSDate(it.DateSubmitted)
		if !ok || submitted.Before(r.Start) || !submitted.Before(end) {
			continue
		}
		points = append(points, udmetrics.TimelinePoint{
			Date:  submitted.Format("2006-01"),
			Label: submitted.Format("January 2006"),
			Value: 1,
		})
	}
	return udmetrics.MergeTimelines(points)
}

func parseOJSDate(s string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Thumbnail télécharge l'image brute d'un journal
func (c *Client) Thumbnail(ctx context.Context, rawURL string) ([]byte, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("ojs: pas de vignette")
	}
	return c.http.GetBytes(ctx, rawURL)
}
