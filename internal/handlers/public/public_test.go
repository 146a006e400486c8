package handlers_public

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"udsmanalytics/internal/models/uddashboard"
	"udsmanalytics/internal/models/uddashboard/uddashboardtest"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T, production bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.SetHTMLTemplate(Templates(production))

	h := NewPublicHandler(uddashboardtest.NewService(t, uddashboardtest.Config(), nil), "1.2.3")
	r.GET("/api/public/summary", h.GetSummary)
	r.GET("/public", h.GetPage)
	return r
}

func TestNumber(t *testing.T) {
	assert.Equal(t, "0", number(0))
	assert.Equal(t, "999", number(999))
	assert.Equal(t, "1,000", number(1000))
	assert.Equal(t, "1,234,567", number(int64(1234567)))
	assert.Equal(t, "-12,345", number(-12345))
	assert.Equal(t, "", number("x"))
}

func TestTemplates(t *testing.T) {
	for _, production := range []bool{false, true} {
		tmpl := Templates(production)
		assert.NotNil(t, tmpl.Lookup("public"), "production=%v", production)
	}
}

func TestGetSummary(t *testing.T) {
	r := setupRouter(t, false)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/public/summary", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var summary uddashboard.PublicSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, "UDSM Journals", summary.Title)
	assert.Equal(t, "Welcome to the journals of the University of Dar es Salaam.", summary.IntroText)
	assert.Contains(t, string(summary.IntroHTML), "<strong>Welcome</strong>")
	assert.Equal(t, 2, summary.Journals)
	assert.True(t, summary.Demo)
}

func TestGetPage(t *testing.T) {
	for _, production := range []bool{false, true} {
		r := setupRouter(t, production)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/public", nil))
		require.Equal(t, http.StatusOK, w.Code)

		body := w.Body.String()
		assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
		assert.Contains(t, body, "<title>UDSM Journals</title>")
		assert.Contains(t, body, "Welcome to the journals of the University of Dar es Salaam.")
		assert.Contains(t, body, "<strong>Welcome</strong>")
		assert.Contains(t, body, "sample data")
		assert.Contains(t, body, "udsmanalytics 1.2.3")
	}
}
