// Package udcrossref compte les citations des articles via l'API publique
// Crossref. Pas d'authentification: on s'annonce au "polite pool" avec
// mailto et un User-Agent identifiable.
package udcrossref

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

	"golang.org/x/time/rate"
)

const (
	Source    = "crossref"
	maxPages  = 100
	selectFld = "DOI,title,is-referenced-by-count,published,container-title"
)

type Client struct {
	http    *udhttp.Client
	mailto  string
	rows    int
	limiter *rate.Limiter
}

func New(cfg udconfig.CrossrefConfig, version string) *Client {
	ua := "udsmanalytics/" + version
	if cfg.Mailto != "" {
		ua += " (mailto:" + cfg.Mailto + ")"
	}

	perSecond := cfg.RatePerSecond
	if perSecond <= 0 {
		perSecond = udconfig.DefaultCrossrefRate
	}
	rows := cfg.RowsPerPage
	if rows <= 0 || rows > 1000 {
		rows = udconfig.DefaultCrossrefRows
	}

	return &Client{
		http: udhttp.New(Source, cfg.BaseURL, time.Duration(cfg.Timeout)*time.Second, cfg.Retries,
			udhttp.WithUserAgent(ua)),
		mailto:  cfg.Mailto,
		rows:    rows,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.http.Configured()
}

type dateParts struct {
	DateParts [][]int `json:"date-parts"`
}

func (d dateParts) time() (time.Time, bool) {
	if len(d.DateParts) == 0 || len(d.DateParts[0]) == 0 || d.DateParts[0][0] == 0 {
		return time.Time{}, false
	}
	p := d.DateParts[0]
	month, day := 1, 1
	if len(p) > 1 && p[1] > 0 {
		month = p[1]
	}
	if len(p) > 2 && p[2] > 0 {
		day = p[2]
	}
	return time.Date(p[0], time.Month(month), day, 0, 0, 0, 0, time.UTC), true
}

type apiWork struct {
	DOI            string    `json:"DOI"`
	Title          []string  `json:"title"`
	ContainerTitle []string  `json:"container-title"`
	Citations      int       `json:"is-referenced-by-count"`
	Published      dateParts `json:"published"`
}

type worksMessage struct {
	Items        []apiWork `json:"items"`
	NextCursor   string    `json:"next-cursor"`
	TotalResults int       `json:"total-results"`
}

type response[T any] struct {
	Status  string `json:"status"`
	Message T      `json:"message"`
}

// Work : un article référencé chez Crossref
type Work struct {
	DOI       string    `json:"doi"`
	Title     string    `json:"title"`
	Journal   string    `json:"journal,omitempty"`
	Published time.Time `json:"published,omitzero"`
	Citations int       `json:"citations"`
}

// Cited convertit vers le type utilisé par les calculs de citations
func (w Work) Cited(journal string) udmetrics.CitedWork {
	cw := udmetrics.CitedWork{
		DOI:       w.DOI,
		Title:     w.Title,
		Journal:   journal,
		Citations: w.Citations,
	}
	if !w.Published.IsZero() {
		cw.Year = w.Published.Year()
	}
	return cw
}

func (a apiWork) toWork() Work {
	w := Work{
		DOI:       udmetrics.NormalizeDOI(a.DOI),
		Citations: a.Citations,
	}
	if len(a.Title) > 0 {
		w.Title = strings.TrimSpace(a.Title[0])
	}
	if len(a.ContainerTitle) > 0 {
		w.Journal = a.ContainerTitle[0]
	}
	if t, ok := a.Published.time(); ok {
		w.Published = t
	}
	return w
}

func (c *Client) query() url.Values {
	q := url.Values{}
	if c.mailto != "" {
		q.Set("mailto", c.mailto)
	}
	return q
}

// JournalWorks parcourt tous les articles d'un ISSN par curseur profond.
// Crossref renvoie un next-cursor même sur la dernière page: on s'arrête
// sur une page vide ou quand total-results est atteint.
func (c *Client) JournalWorks(ctx context.Context, issn string) ([]Work, error) {
	issn = strings.TrimSpace(issn)
	if issn == "" {
		return nil, fmt.Errorf("crossref: issn vide")
	}

	path := "journals/" + url.PathEscape(issn) + "/works"
	cursor := "*"

	var out []Work
	for page := 0; page < maxPages; page++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		q := c.query()
		q.Set("rows", strconv.Itoa(c.rows))
		q.Set("cursor", cursor)
		q.Set("select", selectFld)

		var resp response[worksMessage]
		if err := c.http.GetJSON(ctx, path, q, &resp); err != nil {
			return nil, fmt.Errorf("crossref works %s: %w", issn, err)
		}

		for _, it := range resp.Message.Items {
			out = append(out, it.toWork())
		}

		next := resp.Message.NextCursor
		if len(resp.Message.Items) == 0 || next == "" || next == cursor {
			break
		}
		if resp.Message.TotalResults > 0 && len(out) >= resp.Message.TotalResults {
			break
		}
		cursor = next
	}
	return out, nil
}

// WorkCitations retourne le nombre de citations d'un DOI
func (c *Client) WorkCitations(ctx context.Context, doi string) (int, error) {
	doi = udmetrics.NormalizeDOI(doi)
	if doi == "" {
		return 0, fmt.Errorf("crossref: doi vide")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	var resp response[apiWork]
	if err := c.http.GetJSON(ctx, "works/"+doiPath(doi), c.query(), &resp); err != nil {
		return 0, fmt.Errorf("crossref work %s: %w", doi, err)
	}
	return resp.Message.Citations, nil
}

// doiPath échappe chaque segment du DOI; les "/" restent des séparateurs
func doiPath(doi string) string {
	parts := strings.Split(doi, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
