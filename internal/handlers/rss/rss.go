package handlers_rss

import (
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"udsmanalytics/internal/models/uddashboard"
	"udsmanalytics/internal/models/udmetrics"
	"udsmanalytics/internal/models/udrss"
	"udsmanalytics/internal/udconfig"
	"udsmanalytics/internal/udmarkdown"

	"github.com/gin-gonic/gin"
)

const feedRange = "all"

type RSSHandler struct {
	service *uddashboard.Service
	cfg     *udconfig.Config
	version string
}

func NewRSSHandler(service *uddashboard.Service, cfg *udconfig.Config, version string) *RSSHandler {
	return &RSSHandler{
		service: service,
		cfg:     cfg,
		version: version,
	}
}

func baseURL(c *gin.Context) string {
	// Obtenir l'URL de base depuis la requête
	scheme := "http"
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, c.Request.Host)
}

// articleLink : résolution DOI, sinon la page OJS de l'article
func articleLink(a uddashboard.ArticleRow) (string, bool) {
	if doi := udmetrics.NormalizeDOI(a.DOI); doi != "" {
		return "https://doi.org/" + doi, true
	}
	if a.URL != "" {
		return a.URL, true
	}
	return "", false
}

func describe(a uddashboard.ArticleRow) string {
	parts := []string{fmt.Sprintf("%d views", a.Views)}
	if a.Downloads > 0 {
		parts = append(parts, fmt.Sprintf("%d downloads", a.Downloads))
	}
	parts = append(parts, fmt.Sprintf("%d citations", a.Citations))
	if a.Authors != "" {
		return a.Authors + " · " + strings.Join(parts, ", ")
	}
	return strings.Join(parts, ", ")
}

// RssHandler génère le flux des articles les plus lus, de la plateforme
// ou d'un seul journal avec /:journal
func (rh *RSSHandler) RssHandler(c *gin.Context) {
	r, err := udmetrics.ParseRange(feedRange, rh.service.Now())
	if err != nil {
		c.XML(http.StatusInternalServerError, gin.H{"error": "Erreur période"})
		return
	}

	title := rh.cfg.Public.Title
	names := make(map[string]string)
	var articles []uddashboard.ArticleRow
	var generated time.Time

	if path := c.Param("journal"); path != "" {
		detail, err := rh.service.Journal(c.Request.Context(), path, r)
		if err != nil {
			if errors.Is(err, uddashboard.ErrUnknownJournal) {
				c.Status(http.StatusNotFound)
				return
			}
			c.Status(http.StatusInternalServerError)
			return
		}
		title = detail.Journal.Name
		names[detail.Journal.Path] = detail.Journal.Name
		articles = detail.TopArticles
		generated = detail.GeneratedAt
	} else {
		ov := rh.service.Overview(c.Request.Context(), r)
		for _, j := range ov.Journals {
			names[j.Path] = j.Name
		}
		articles = ov.TopArticles
		generated = ov.GeneratedAt
	}

	link := baseURL(c)
	feed := udrss.RSS{
		Version: "2.0",
		Channel: udrss.Channel{
			Title:         title,
			Link:          link + "/public",
			Description:   udmarkdown.PlainText(rh.cfg.Public.Intro, 0),
			Language:      "en",
			Copyright:     fmt.Sprintf("© %d %s", generated.Year(), rh.cfg.Public.Title),
			Generator:     fmt.Sprintf("udsmanalytics v%s", rh.version),
			LastBuildDate: generated.Format(time.RFC1123Z),
			TTL:           rh.cfg.Cache.TTL / 60,
			Items:         make([]udrss.Item, 0, len(articles)),
		},
	}

	for _, a := range articles {
		guid := udrss.GUID{Value: fmt.Sprintf("%s:%d", a.Journal, a.ID)}
		href, ok := articleLink(a)
		if ok {
			guid = udrss.GUID{Value: href, IsPermaLink: true}
		} else {
			href = link + "/public"
		}
		feed.Channel.Items = append(feed.Channel.Items, udrss.Item{
			Title:       a.Title,
			Link:        href,
			Description: describe(a),
			Category:    names[a.Journal],
			GUID:        guid,
		})
	}

	output, err := xml.MarshalIndent(feed, "", "  ")
	if err != nil {
		c.XML(http.StatusInternalServerError, gin.H{"error": "Erreur génération RSS"})
		return
	}

	// Ajouter le header XML au début
	c.Data(http.StatusOK, "application/rss+xml; charset=utf-8", []byte(xml.Header+string(output)))
}
