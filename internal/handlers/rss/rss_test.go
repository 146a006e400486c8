package handlers_rss

import (
	"encoding/xml"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"udsmanalytics/internal/models/uddashboard"
	"udsmanalytics/internal/models/uddashboard/uddashboardtest"
	"udsmanalytics/internal/models/udrss"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := uddashboardtest.Config()
	h := NewRSSHandler(uddashboardtest.NewService(t, cfg, nil), cfg, "1.2.3")

	r := gin.New()
	r.GET("/public/rss.xml", h.RssHandler)
	r.GET("/public/rss.xml/:journal", h.RssHandler)
	return r
}

func getFeed(t *testing.T, r *gin.Engine, target string) udrss.RSS {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/rss+xml; charset=utf-8", w.Header().Get("Content-Type"))
	require.True(t, strings.HasPrefix(w.Body.String(), "<?xml"))

	var feed udrss.RSS
	require.NoError(t, xml.Unmarshal(w.Body.Bytes(), &feed))
	return feed
}

func TestRssHandler(t *testing.T) {
	r := setupRouter(t)

	feed := getFeed(t, r, "/public/rss.xml")
	assert.Equal(t, "2.0", feed.Version)
	assert.Equal(t, "UDSM Journals", feed.Channel.Title)
	assert.Equal(t, "http://example.com/public", feed.Channel.Link)
	assert.Equal(t, "udsmanalytics v1.2.3", feed.Channel.Generator)
	require.NotEmpty(t, feed.Channel.Items)

	for _, item := range feed.Channel.Items {
		assert.True(t, strings.HasPrefix(item.Link, "https://doi.org/10.5555/"), item.Link)
		assert.True(t, item.GUID.IsPermaLink)
		assert.Contains(t, item.Description, "views")
		assert.NotEmpty(t, item.Category)
	}
}

func TestRssHandlerJournal(t *testing.T) {
	r := setupRouter(t)

	feed := getFeed(t, r, "/public/rss.xml/uj")
	assert.Equal(t, "uj", feed.Channel.Title)
	require.NotEmpty(t, feed.Channel.Items)
	for _, item := range feed.Channel.Items {
		assert.Equal(t, "uj", item.Category)
		assert.Contains(t, item.Link, "/10.5555/uj.")
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/public/rss.xml/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestArticleLink(t *testing.T) {
	link, ok := articleLink(uddashboard.ArticleRow{DOI: "https://doi.org/10.1/ABC", URL: "https://j.example/a/1"})
	assert.True(t, ok)
	assert.Equal(t, "https://doi.org/10.1/abc", link)

	link, ok = articleLink(uddashboard.ArticleRow{URL: "https://j.example/a/1"})
	assert.True(t, ok)
	assert.Equal(t, "https://j.example/a/1", link)

	_, ok = articleLink(uddashboard.ArticleRow{})
	assert.False(t, ok)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Mushi et al. · 12 views, 3 downloads, 1 citations",
		describe(uddashboard.ArticleRow{Authors: "Mushi et al.", Views: 12, Downloads: 3, Citations: 1}))
	assert.Equal(t, "4 views, 0 citations", describe(uddashboard.ArticleRow{Views: 4}))
}
