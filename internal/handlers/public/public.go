package handlers_public

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"path/filepath"
	"strconv"

	"udsmanalytics/internal/models/uddashboard"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/tdewolff/minify/v2"
	htmlmin "github.com/tdewolff/minify/v2/html"
)

//go:embed templates/*.html
var templatesFS embed.FS

type PublicHandler struct {
	service *uddashboard.Service
	version string
}

func NewPublicHandler(service *uddashboard.Service, version string) *PublicHandler {
	return &PublicHandler{
		service: service,
		version: version,
	}
}

// number formate un entier avec un séparateur de milliers
func number(v any) string {
	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int64:
		n = x
	default:
		return ""
	}

	s := strconv.FormatInt(n, 10)
	neg := n < 0
	if neg {
		s = s[1:]
	}
	out := make([]byte, 0, len(s)+len(s)/3)
	for i := range len(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}

// Templates parse les pages embarquées, minifiées en production
func Templates(production bool) *template.Template {
	m := minify.New()
	if production {
		m.Add("text/html", &htmlmin.Minifier{
			KeepDocumentTags: true,
			KeepEndTags:      true,
			KeepQuotes:       true,
			TemplateDelims:   htmlmin.GoTemplateDelims,
		})
	}

	tmpl := template.New("").Funcs(template.FuncMap{
		"number": number,
	})

	fs.WalkDir(templatesFS, "templates", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(path) != ".html" {
			return err
		}

		content, err := fs.ReadFile(templatesFS, path)
		if err != nil {
			return err
		}
		minified, err := m.Bytes("text/html", content)
		if err != nil {
			minified = content
		}

		if _, err := tmpl.New(path).Parse(string(minified)); err != nil {
			log.Error().Err(err).Str("template", path).Msg("template parse failed")
		}
		return nil
	})

	return tmpl
}

// GetSummary retourne le résumé public en JSON
func (ph *PublicHandler) GetSummary(c *gin.Context) {
	summary, err := ph.service.Public(c.Request.Context())
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build public summary"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (ph *PublicHandler) GetPage(c *gin.Context) {
	summary, err := ph.service.Public(c.Request.Context())
	if err != nil {
		c.Error(err)
		c.String(http.StatusInternalServerError, "Public summary unavailable")
		return
	}

	c.Header("Cache-Control", "public, max-age=300")
	c.HTML(http.StatusOK, "public", gin.H{
		"summary": summary,
		"version": ph.version,
	})
}
