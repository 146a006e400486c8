package handlers_settings

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"

	"udsmanalytics/internal/models/udmetrics"
	"udsmanalytics/internal/udconfig"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	sessionKey        = "settings"
	MinRefreshSeconds = 15
	MaxRefreshSeconds = 3600
	defaultRefresh    = 60
)

var themes = []string{"auto", "light", "dark"}

// Settings : préférences d'un navigateur, gardées dans le cookie de session
type Settings struct {
	DefaultRange   string   `json:"default_range"`
	RefreshSeconds int      `json:"refresh_seconds"`
	Journals       []string `json:"journals"`
	Theme          string   `json:"theme"`
}

func Defaults() Settings {
	return Settings{
		DefaultRange:   udmetrics.DefaultRange,
		RefreshSeconds: defaultRefresh,
		Journals:       []string{},
		Theme:          themes[0],
	}
}

func (s Settings) Validate(cfg *udconfig.Config) error {
	if !slices.Contains(udmetrics.RangeKeys, s.DefaultRange) {
		return fmt.Errorf("default_range must be one of %v", udmetrics.RangeKeys)
	}
	if s.RefreshSeconds < MinRefreshSeconds || s.RefreshSeconds > MaxRefreshSeconds {
		return fmt.Errorf("refresh_seconds must be between %d and %d", MinRefreshSeconds, MaxRefreshSeconds)
	}
	if !slices.Contains(themes, s.Theme) {
		return fmt.Errorf("theme must be one of %v", themes)
	}
	for _, path := range s.Journals {
		if _, ok := cfg.Journal(path); !ok {
			return fmt.Errorf("unknown journal %q", path)
		}
	}
	return nil
}

type SettingsHandler struct {
	cfg *udconfig.Config
}

func NewSettingsHandler(cfg *udconfig.Config) *SettingsHandler {
	return &SettingsHandler{cfg: cfg}
}

// load lit les préférences de la session; un cookie illisible ou périmé
// (journal retiré de la configuration) redonne les valeurs par défaut
func (sh *SettingsHandler) load(c *gin.Context) Settings {
	raw, ok := sessions.Default(c).Get(sessionKey).(string)
	if !ok {
		return Defaults()
	}
	st := Defaults()
	if err := json.Unmarshal([]byte(raw), &st); err != nil || st.Validate(sh.cfg) != nil {
		return Defaults()
	}
	return st
}

func (sh *SettingsHandler) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, sh.load(c))
}

func (sh *SettingsHandler) PutSettings(c *gin.Context) {
	st := sh.load(c)
	if err := c.ShouldBindJSON(&st); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid settings"})
		return
	}
	if st.Journals == nil {
		st.Journals = []string{}
	}
	if err := st.Validate(sh.cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	data, err := json.Marshal(st)
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Session error"})
		return
	}
	session := sessions.Default(c)
	session.Set(sessionKey, string(data))
	if err := session.Save(); err != nil {
		log.Error().Err(err).Msg("settings session save failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Session error"})
		return
	}

	c.JSON(http.StatusOK, st)
}
