package handlers_dashboard

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"udsmanalytics/internal/models/uddashboard"
	"udsmanalytics/internal/models/udmetrics"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	defaultLiveLimit = 20
	maxLiveLimit     = 100
)

type DashboardHandler struct {
	service *uddashboard.Service
}

func NewDashboardHandler(service *uddashboard.Service) *DashboardHandler {
	return &DashboardHandler{
		service: service,
	}
}

// parseRange lit ?range=, répond 400 si la période est inconnue
func (dh *DashboardHandler) parseRange(c *gin.Context) (udmetrics.DateRange, bool) {
	r, err := udmetrics.ParseRange(c.Query("range"), dh.service.Now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid range, expected one of 7d, 30d, 90d, 12m, ytd, all",
		})
		return udmetrics.DateRange{}, false
	}
	return r, true
}

func journalError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, uddashboard.ErrUnknownJournal):
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown journal"})
	case errors.Is(err, uddashboard.ErrNotEnoughJournals):
		c.JSON(http.StatusBadRequest, gin.H{"error": "At least two journals are required"})
	case errors.Is(err, uddashboard.ErrNoThumbnail):
		c.JSON(http.StatusNotFound, gin.H{"error": "No thumbnail"})
	default:
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build view"})
	}
}

// GetDashboard retourne la vue d'ensemble de la plateforme
func (dh *DashboardHandler) GetDashboard(c *gin.Context) {
	r, ok := dh.parseRange(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, dh.service.Overview(c.Request.Context(), r))
}

func (dh *DashboardHandler) GetJournals(c *gin.Context) {
	journals, sources := dh.service.Journals(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"journals": journals,
		"sources":  sources,
	})
}

func (dh *DashboardHandler) GetJournal(c *gin.Context) {
	r, ok := dh.parseRange(c)
	if !ok {
		return
	}
	detail, err := dh.service.Journal(c.Request.Context(), c.Param("path"), r)
	if err != nil {
		journalError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (dh *DashboardHandler) GetThumbnail(c *gin.Context) {
	data, err := dh.service.Thumbnail(c.Request.Context(), c.Param("path"))
	if err != nil {
		if !errors.Is(err, uddashboard.ErrUnknownJournal) && !errors.Is(err, uddashboard.ErrNoThumbnail) {
			log.Warn().Err(err).Str("journal", c.Param("path")).Msg("thumbnail unavailable")
			c.JSON(http.StatusBadGateway, gin.H{"error": "Thumbnail unavailable"})
			return
		}
		journalError(c, err)
		return
	}

	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, "image/png", data)
}

// GetCompare compare les journaux de ?journals=a,b
func (dh *DashboardHandler) GetCompare(c *gin.Context) {
	r, ok := dh.parseRange(c)
	if !ok {
		return
	}
	var paths []string
	if raw := c.Query("journals"); raw != "" {
		paths = strings.Split(raw, ",")
	}

	comparison, err := dh.service.Compare(c.Request.Context(), paths, r)
	if err != nil {
		journalError(c, err)
		return
	}
	c.JSON(http.StatusOK, comparison)
}

func (dh *DashboardHandler) GetLive(c *gin.Context) {
	limit := defaultLiveLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxLiveLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, dh.service.Live(c.Request.Context(), limit))
}

func (dh *DashboardHandler) GetSources(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sources": dh.service.Sources()})
}

// PostRefresh lance la reconstruction des instantanés en tâche de fond
func (dh *DashboardHandler) PostRefresh(c *gin.Context) {
	if err := dh.service.RefreshAsync(); err != nil {
		if errors.Is(err, uddashboard.ErrRefreshRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": "Refresh already running"})
			return
		}
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Refresh failed"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "Refresh started"})
}
