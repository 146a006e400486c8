package udconfig

import (
	"fmt"
	"log/syslog"
	"net/url"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Config struct {
	TrustedProxies  []string        `yaml:"trustedproxies"`
	TrustedPlatform string          `yaml:"trustedplatform"`
	Production      bool            `yaml:"production"`
	Listen          ListenConfig    `yaml:"listen"`
	Logger          LoggerConfig    `yaml:"logger"`
	Cache           CacheConfig     `yaml:"cache"`
	Refresh         RefreshConfig   `yaml:"refresh"`
	RateLimit       RateLimitConfig `yaml:"ratelimit"`
	Upstreams       UpstreamsConfig `yaml:"upstreams"`
	Journals        []JournalConfig `yaml:"journals"`
	Public          PublicConfig    `yaml:"public"`
	GeoIP           GeoIPConfig     `yaml:"geoip"`
	Fallback        FallbackConfig  `yaml:"fallback"`
}

type ListenConfig struct {
	Website string `yaml:"website"`
}

type LoggerConfig struct {
	Level  string             `yaml:"level"`
	File   LoggerFileConfig   `yaml:"file"`
	Syslog LoggerSyslogConfig `yaml:"syslog"`
}

type LoggerFileConfig struct {
	Enable     bool   `yaml:"enable"`
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"maxsize"`
	MaxBackups int    `yaml:"maxbackups"`
	MaxAge     int    `yaml:"maxage"`
	Compress   bool   `yaml:"compress"`
}

type LoggerSyslogConfig struct {
	Enable   bool            `yaml:"enable"`
	Protocol string          `yaml:"protocol"`
	Address  string          `yaml:"address"`
	Tag      string          `yaml:"tag"`
	Priority syslog.Priority `yaml:"priority"`
}

// CacheConfig: sans adresse redis, un cache mémoire est utilisé
type CacheConfig struct {
	Redis   RedisConfig `yaml:"redis"`
	TTL     int         `yaml:"ttl"`
	LiveTTL int         `yaml:"livettl"`
}

type RedisConfig struct {
	Addr string `yaml:"addr"`
	Db   int    `yaml:"db"`
}

type RefreshConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
}

type RateLimitConfig struct {
	PerMinute int64 `yaml:"perminute"`
}

type UpstreamsConfig struct {
	OJS      OJSConfig      `yaml:"ojs"`
	Matomo   MatomoConfig   `yaml:"matomo"`
	Crossref CrossrefConfig `yaml:"crossref"`
}

type OJSConfig struct {
	BaseURL  string `yaml:"baseurl"`
	APIToken string `yaml:"apitoken"`
	Timeout  int    `yaml:"timeout"`
	Retries  int    `yaml:"retries"`
}

type MatomoConfig struct {
	BaseURL   string `yaml:"baseurl"`
	TokenAuth string `yaml:"tokenauth"`
	SiteID    int    `yaml:"siteid"`
	Timeout   int    `yaml:"timeout"`
	Retries   int    `yaml:"retries"`
}

type CrossrefConfig struct {
	BaseURL       string  `yaml:"baseurl"`
	Mailto        string  `yaml:"mailto"`
	RowsPerPage   int     `yaml:"rowsperpage"`
	RatePerSecond float64 `yaml:"ratepersecond"`
	Timeout       int     `yaml:"timeout"`
	Retries       int     `yaml:"retries"`
}

type JournalConfig struct {
	Id           uint   `yaml:"id"`
	Path         string `yaml:"path"`
	Name         string `yaml:"name"`
	ISSN         string `yaml:"issn"`
	MatomoSiteID int    `yaml:"matomositeid"`
	Color        string `yaml:"color"`
}

type PublicConfig struct {
	Title string `yaml:"title"`
	Intro string `yaml:"intro"`
}

type GeoIPConfig struct {
	Path string `yaml:"path"`
}

type FallbackConfig struct {
	Enabled bool `yaml:"enabled"`
}

const (
	DefaultListen        = "localhost:8080"
	DefaultCacheTTL      = 900
	DefaultLiveTTL       = 30
	DefaultRefreshCron   = "*/15 * * * *"
	DefaultRatePerMinute = 120
	DefaultCrossrefRows  = 200
	DefaultCrossrefRate  = 5
	DefaultTimeout       = 10
	DefaultRetries       = 2
	DefaultCrossrefURL   = "https://api.crossref.org"
)

func CreateExampleConfig(filename string) (string, error) {
	example := &Config{
		Production: false,
		Listen: ListenConfig{
			Website: "0.0.0.0:8080",
		},
		Logger: LoggerConfig{
			Level: "info",
		},
		Cache: CacheConfig{
			TTL:     DefaultCacheTTL,
			LiveTTL: DefaultLiveTTL,
		},
		Refresh: RefreshConfig{
			Enabled: true,
			Cron:    DefaultRefreshCron,
		},
		RateLimit: RateLimitConfig{
			PerMinute: DefaultRatePerMinute,
		},
		Upstreams: UpstreamsConfig{
			OJS: OJSConfig{
				BaseURL:  "https://journals.udsm.ac.tz/index.php",
				APIToken: "changeme",
			},
			Matomo: MatomoConfig{
				BaseURL:   "https://analytics.udsm.ac.tz",
				TokenAuth: "changeme",
				SiteID:    1,
			},
			Crossref: CrossrefConfig{
				BaseURL: DefaultCrossrefURL,
				Mailto:  "journals@udsm.ac.tz",
			},
		},
		Journals: []JournalConfig{
			{Id: 1, Path: "tjs", Name: "Tanzania Journal of Science", ISSN: "0856-1761", MatomoSiteID: 2, Color: "#1f77b4"},
			{Id: 2, Path: "tjet", Name: "Tanzania Journal of Engineering and Technology", ISSN: "1821-536X", MatomoSiteID: 3, Color: "#ff7f0e"},
		},
		Public: PublicConfig{
			Title: "UDSM Journals",
			Intro: "Open access research published by the **University of Dar es Salaam** :books:",
		},
		Fallback: FallbackConfig{
			Enabled: true,
		},
	}

	if filename == "/etc/" {
		example.Listen.Website = "127.0.0.1:8000"
		example.Production = true
		example.Cache.Redis.Addr = "127.0.0.1:6379"
		example.GeoIP.Path = "/var/lib/udsmanalytics/GeoLite2-City.mmdb"
		example.Logger.File = LoggerFileConfig{
			Enable:     true,
			Path:       "/var/log/udsmanalytics/udsmanalytics.log",
			MaxSize:    100,
			MaxBackups: 30,
			MaxAge:     7,
			Compress:   true,
		}
		filename = "/etc/udsmanalytics/config.yaml"
	}

	return filename, WriteConfigYaml(filename, example)
}

func WriteConfigYaml(filename string, conf *Config) error {
	data, err := yaml.Marshal(conf)
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}

// Charger la configuration YAML
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("impossible de lire le fichier %s: %w", filename, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("erreur de parsing YAML: %w", err)
	}

	return &config, nil
}

// LoadAndValidate charge, complète puis valide la configuration
func LoadAndValidate(filename string) (*Config, error) {
	conf, err := LoadConfig(filename)
	if err != nil {
		return nil, err
	}
	conf.ApplyDefaults()
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Config) ApplyDefaults() {
	if c.Listen.Website == "" {
		c.Listen.Website = DefaultListen
	}
	if strings.HasPrefix(c.Listen.Website, ":") {
		c.Listen.Website = "localhost" + c.Listen.Website
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = DefaultCacheTTL
	}
	if c.Cache.LiveTTL <= 0 {
		c.Cache.LiveTTL = DefaultLiveTTL
	}
	if c.Refresh.Cron == "" {
		c.Refresh.Cron = DefaultRefreshCron
	}
	if c.RateLimit.PerMinute <= 0 {
		c.RateLimit.PerMinute = DefaultRatePerMinute
	}

	up := &c.Upstreams
	if up.OJS.Timeout <= 0 {
		up.OJS.Timeout = DefaultTimeout
	}
	up.OJS.Retries = retries(up.OJS.Retries)
	if up.Matomo.Timeout <= 0 {
		up.Matomo.Timeout = DefaultTimeout
	}
	up.Matomo.Retries = retries(up.Matomo.Retries)
	if up.Crossref.BaseURL == "" {
		up.Crossref.BaseURL = DefaultCrossrefURL
	}
	if up.Crossref.RowsPerPage <= 0 {
		up.Crossref.RowsPerPage = DefaultCrossrefRows
	}
	if up.Crossref.RatePerSecond <= 0 {
		up.Crossref.RatePerSecond = DefaultCrossrefRate
	}
	if up.Crossref.Timeout <= 0 {
		up.Crossref.Timeout = DefaultTimeout
	}
	up.Crossref.Retries = retries(up.Crossref.Retries)
	if c.Public.Title == "" {
		c.Public.Title = "Journals"
	}
}

// 0 prend la valeur par défaut, une valeur négative désactive les retries
func retries(n int) int {
	switch {
	case n < 0:
		return 0
	case n == 0:
		return DefaultRetries
	}
	return n
}

func (c *Config) Validate() error {
	if len(c.Journals) == 0 {
		return fmt.Errorf("journals ne peut pas être vide")
	}

	ids := make(map[uint]bool, len(c.Journals))
	paths := make(map[string]bool, len(c.Journals))
	for _, j := range c.Journals {
		if j.Path == "" {
			return fmt.Errorf("journal %d: path ne peut pas être vide", j.Id)
		}
		if ids[j.Id] {
			return fmt.Errorf("l'id %d dans les journals doit etre unique", j.Id)
		}
		if paths[j.Path] {
			return fmt.Errorf("le path %q dans les journals doit etre unique", j.Path)
		}
		ids[j.Id] = true
		paths[j.Path] = true
	}

	if err := checkURL("upstreams.ojs.baseurl", c.Upstreams.OJS.BaseURL); err != nil {
		return err
	}
	if err := checkURL("upstreams.matomo.baseurl", c.Upstreams.Matomo.BaseURL); err != nil {
		return err
	}
	return checkURL("upstreams.crossref.baseurl", c.Upstreams.Crossref.BaseURL)
}

// Journal retrouve un journal par son path
func (c *Config) Journal(path string) (JournalConfig, bool) {
	for _, j := range c.Journals {
		if j.Path == path {
			return j, true
		}
	}
	return JournalConfig{}, false
}

func checkURL(name, raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s invalide: %w", name, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s doit être une url http(s) absolue", name)
	}
	return nil
}

func CreateExample(shouldCreateExample bool, configFile string) {
	// Handle example creation
	if shouldCreateExample {
		if err := handleExampleCreation(configFile); err != nil {
			fmt.Printf("❌ %v\n", err)
		}
		os.Exit(1)
	}

	_, err := os.Stat(configFile)
	if err != nil && os.IsNotExist(err) {
		if err := handleExampleCreation(configFile); err != nil {
			fmt.Printf("❌ %v\n", err)
			os.Exit(1)
		}
	}
}

func handleExampleCreation(filename string) error {
	if filename == "" {
		filename = "udsmanalytics.yaml"
	}
	filename, err := CreateExampleConfig(filename)
	if err != nil {
		return fmt.Errorf("erreur création exemple: %w", err)
	}

	fmt.Printf("✅ Fichier exemple créé: %s\n", filename)
	fmt.Println("⚠️  Renseigner les tokens OJS et Matomo avant la mise en production")
	return nil
}

func DisplayConfiguration(config *Config, version string) {
	logPrintf("udsmanalytics version %s", version)
	logPrintf("Mode Production %v", config.Production)
	logPrintf("Listen %s", config.Listen.Website)

	logPrintf("Cache")
	if config.Cache.Redis.Addr != "" {
		logPrintf("  • Redis %s (db %d)", config.Cache.Redis.Addr, config.Cache.Redis.Db)
	} else {
		logPrintf("  • Mémoire")
	}
	logPrintf("  • TTL %ds, live %ds", config.Cache.TTL, config.Cache.LiveTTL)

	if config.Refresh.Enabled {
		logPrintf("Rafraîchissement activé (%s)", config.Refresh.Cron)
	} else {
		logPrintf("Rafraîchissement désactivé")
	}

	logPrintf("Upstreams")
	logPrintf("  • OJS %s token %s", orNone(config.Upstreams.OJS.BaseURL), MaskSecret(config.Upstreams.OJS.APIToken))
	logPrintf("  • Matomo %s site %d token %s", orNone(config.Upstreams.Matomo.BaseURL), config.Upstreams.Matomo.SiteID, MaskSecret(config.Upstreams.Matomo.TokenAuth))
	logPrintf("  • Crossref %s mailto %s", config.Upstreams.Crossref.BaseURL, orNone(config.Upstreams.Crossref.Mailto))
	logPrintf("  • Fallback %v", config.Fallback.Enabled)

	if config.GeoIP.Path != "" {
		logPrintf("GeoIP %s", config.GeoIP.Path)
	}

	// Logger
	logPrintf("Logger en level %s", config.Logger.Level)
	if config.Logger.File.Enable {
		logPrintf("  Log en fichier activé")
		logPrintf("  • Path %s", config.Logger.File.Path)
		logPrintf("  • Max size %d", config.Logger.File.MaxSize)
		logPrintf("  • Max age %d", config.Logger.File.MaxAge)
		logPrintf("  • Max backup %d", config.Logger.File.MaxBackups)
		logPrintf("  • Compression %v", config.Logger.File.Compress)
	}
	if config.Logger.Syslog.Enable {
		logPrintf("  Log en syslog activé")
		logPrintf("  • Protocol %s", config.Logger.Syslog.Protocol)
		logPrintf("  • Address %s", config.Logger.Syslog.Address)
		logPrintf("  • Tag %s", config.Logger.Syslog.Tag)
	}

	logPrintf("Liste des journals")
	for _, j := range config.Journals {
		logPrintf("  • \"%s\" id %d path %s issn %s matomo %d", j.Name, j.Id, j.Path, orNone(j.ISSN), j.MatomoSiteID)
	}
}

// MaskSecret garde les 4 derniers caractères
func MaskSecret(s string) string {
	if s == "" {
		return "(aucun)"
	}
	if len(s) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}

func orNone(s string) string {
	if s == "" {
		return "(aucun)"
	}
	return s
}

// Info logue avec printf
func logPrintf(format string, a ...any) {
	log.Info().Msg(fmt.Sprintf(format, a...))
}
