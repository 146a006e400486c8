package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"udsmanalytics/internal/models/uddashboard/uddashboardtest"
	"udsmanalytics/internal/udconfig"
	"udsmanalytics/internal/udmiddleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============= Setup =============

func setupTestRouter(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := uddashboardtest.Config()

	r := newServer(cfg)
	udmiddleware.InitMiddleware(r, false)
	setRoutes(r, cfg, uddashboardtest.NewService(t, cfg, nil))
	return r
}

func doRequest(r *gin.Engine, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

// ============= Tests =============

func TestHealthz(t *testing.T) {
	r := setupTestRouter(t)

	w := doRequest(r, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status  string `json:"status"`
		Version string `json:"version"`
		Sources []struct {
			Name string `json:"name"`
		} `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, VERSION, body.Version)
	assert.Len(t, body.Sources, 3)
	assert.NotEmpty(t, w.Header().Get(udmiddleware.RequestIDHeader))
}

func TestRoutes(t *testing.T) {
	r := setupTestRouter(t)

	cases := []struct {
		method string
		target string
		code   int
	}{
		{http.MethodGet, "/api/dashboard", http.StatusOK},
		{http.MethodGet, "/api/dashboard?range=ytd", http.StatusOK},
		{http.MethodGet, "/api/dashboard?range=1w", http.StatusBadRequest},
		{http.MethodGet, "/api/journals", http.StatusOK},
		{http.MethodGet, "/api/journals/uj?range=12m", http.StatusOK},
		{http.MethodGet, "/api/journals/missing", http.StatusNotFound},
		{http.MethodGet, "/api/compare?journals=tjs,uj", http.StatusOK},
		{http.MethodGet, "/api/compare?journals=tjs", http.StatusBadRequest},
		{http.MethodGet, "/api/live?limit=5", http.StatusOK},
		{http.MethodGet, "/api/sources", http.StatusOK},
		{http.MethodGet, "/api/public/summary", http.StatusOK},
		{http.MethodGet, "/api/settings", http.StatusOK},
		{http.MethodGet, "/public", http.StatusOK},
		{http.MethodGet, "/public/rss.xml", http.StatusOK},
		{http.MethodGet, "/public/rss.xml/tjs", http.StatusOK},
		{http.MethodGet, "/public/rss.xml/missing", http.StatusNotFound},
		{http.MethodGet, "/", http.StatusTemporaryRedirect},
		{http.MethodGet, "/nowhere", http.StatusNotFound},
	}
	for _, tc := range cases {
		w := doRequest(r, tc.method, tc.target)
		assert.Equal(t, tc.code, w.Code, "%s %s", tc.method, tc.target)
	}
}

func TestAPIRateLimited(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := uddashboardtest.Config()
	cfg.RateLimit.PerMinute = 3

	r := newServer(cfg)
	setRoutes(r, cfg, uddashboardtest.NewService(t, cfg, nil))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, doRequest(r, http.MethodGet, "/api/sources").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, doRequest(r, http.MethodGet, "/api/sources").Code)

	// hors /api pas de limite
	assert.Equal(t, http.StatusOK, doRequest(r, http.MethodGet, "/healthz").Code)
}

func TestNewServerTrustedPlatform(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := map[string]string{
		"cloudflare": gin.PlatformCloudflare,
		"google":     gin.PlatformGoogleAppEngine,
		"flyio":      gin.PlatformFlyIO,
		"X-Real-IP":  "X-Real-IP",
	}
	for platform, want := range cases {
		cfg := uddashboardtest.Config()
		cfg.TrustedPlatform = platform
		assert.Equal(t, want, newServer(cfg).TrustedPlatform, platform)
	}
}

func TestNewServiceWithoutUpstreams(t *testing.T) {
	cfg := uddashboardtest.Config()
	cfg.GeoIP.Path = filepath.Join(t.TempDir(), "missing.mmdb")

	service, cleanup, err := newService(cfg)
	require.NoError(t, err)
	defer cleanup()

	// aucune source configurée: tout est de la démonstration
	assert.True(t, service.Live(t.Context(), 3).Demo)
}

func TestExampleConfigLoads(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "udsmanalytics.yaml")
	written, err := udconfig.CreateExampleConfig(filename)
	require.NoError(t, err)
	require.Equal(t, filename, written)

	_, err = os.Stat(filename)
	require.NoError(t, err)

	cfg, err := udconfig.LoadAndValidate(filename)
	require.NoError(t, err)
	assert.Len(t, cfg.Journals, 2)
	assert.True(t, cfg.Fallback.Enabled)
}
