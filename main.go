package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	handlers_dashboard "udsmanalytics/internal/handlers/dashboard"
	handlers_public "udsmanalytics/internal/handlers/public"
	handlers_rss "udsmanalytics/internal/handlers/rss"
	handlers_settings "udsmanalytics/internal/handlers/settings"
	"udsmanalytics/internal/models/uddashboard"
	"udsmanalytics/internal/models/udfallback"
	"udsmanalytics/internal/udcache"
	"udsmanalytics/internal/udconfig"
	"udsmanalytics/internal/udcrossref"
	"udsmanalytics/internal/udgeo"
	"udsmanalytics/internal/udlog"
	"udsmanalytics/internal/udmarkdown"
	"udsmanalytics/internal/udmatomo"
	"udsmanalytics/internal/udmiddleware"
	"udsmanalytics/internal/udojs"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var (
	VERSION = "0.3.0"
	BuildID = ""
)

const shutdownTimeout = 15 * time.Second

func parseCommandLineArgs() (configFile string, shouldCreateExample bool, versionDisplay bool, err error) {
	var config = flag.String("config", "", "Fichier de configuration YAML")
	var example = flag.Bool("example", false, "Créer un fichier de configuration exemple")
	var version = flag.Bool("version", false, "version du produit")
	flag.Parse()

	if *version {
		return "", false, true, nil
	}

	if *example {
		return "", true, false, nil
	}

	if *config == "" {
		return "", false, false, fmt.Errorf("fichier de configuration requis")
	}

	return *config, false, false, nil
}

func initConfiguration() *udconfig.Config {
	configFile, shouldCreateExample, versionDisplay, err := parseCommandLineArgs()
	if err != nil {
		fmt.Println("Usage:")
		fmt.Println("  udsmanalytics -config udsmanalytics.yaml")
		fmt.Println("  udsmanalytics -example  (pour créer un fichier exemple)")
		fmt.Println("  udsmanalytics -version  (affiche la version)")
		os.Exit(1)
	}

	if versionDisplay {
		println(VERSION)
		os.Exit(0)
	}

	udconfig.CreateExample(shouldCreateExample, configFile)

	// Load and validate configuration
	conf, err := udconfig.LoadAndValidate(configFile)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	return conf
}

// newService branche les clients upstream, le cache, les données de
// démonstration et la géolocalisation
func newService(cfg *udconfig.Config) (*uddashboard.Service, func(), error) {
	cache := udcache.New(cfg.Cache.Redis.Addr, cfg.Cache.Redis.Db)
	if rc, ok := cache.(*udcache.RedisCache); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rc.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Cache.Redis.Addr).Msg("redis unreachable, cache errors will be logged")
		}
	}

	fb, err := udfallback.New()
	if err != nil {
		return nil, nil, fmt.Errorf("données de démonstration: %w", err)
	}

	geo, err := udgeo.Open(cfg.GeoIP.Path)
	if err != nil {
		log.Warn().Err(err).Msg("GeoIP disabled")
		geo = nil
	}

	service := uddashboard.New(
		cfg,
		udojs.New(cfg.Upstreams.OJS),
		udmatomo.New(cfg.Upstreams.Matomo),
		udcrossref.New(cfg.Upstreams.Crossref, VERSION),
		cache,
		fb,
		locator(geo),
	)

	cleanup := func() {
		service.Stop()
		if err := geo.Close(); err != nil {
			log.Warn().Err(err).Msg("GeoIP close failed")
		}
	}
	return service, cleanup, nil
}

// locator évite de passer un *Reader nil dans l'interface
func locator(r *udgeo.Reader) udgeo.Locator {
	if r == nil {
		return nil
	}
	return r
}

func newServer(cfg *udconfig.Config) *gin.Engine {
	if cfg.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	if cfg.TrustedProxies != nil {
		if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
			log.Warn().Err(err).Msg("invalid trusted proxies")
		}
	}
	if cfg.TrustedPlatform != "" {
		switch cfg.TrustedPlatform {
		case "cloudflare":
			r.TrustedPlatform = gin.PlatformCloudflare
		case "google":
			r.TrustedPlatform = gin.PlatformGoogleAppEngine
		case "flyio":
			r.TrustedPlatform = gin.PlatformFlyIO
		default:
			r.TrustedPlatform = cfg.TrustedPlatform
		}
	}

	// parser les templates
	r.SetHTMLTemplate(handlers_public.Templates(cfg.Production))

	return r
}

func setRoutes(r *gin.Engine, cfg *udconfig.Config, service *uddashboard.Service) {
	dashboard := handlers_dashboard.NewDashboardHandler(service)
	settings := handlers_settings.NewSettingsHandler(cfg)
	public := handlers_public.NewPublicHandler(service, VERSION)
	feed := handlers_rss.NewRSSHandler(service, cfg, VERSION)

	//default
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})

	r.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusTemporaryRedirect, "/public")
	})
	r.GET("/public", public.GetPage)

	// Flux RSS
	r.GET("/public/rss.xml", feed.RssHandler)
	r.GET("/public/rss.xml/:journal", feed.RssHandler)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"version": VERSION,
			"build":   BuildID,
			"sources": service.Sources(),
		})
	})

	api := r.Group("/api")
	api.Use(udmiddleware.NewLimiter(cfg.RateLimit.PerMinute))
	{
		api.GET("/dashboard", dashboard.GetDashboard)
		api.GET("/journals", dashboard.GetJournals)
		api.GET("/journals/:path", dashboard.GetJournal)
		api.GET("/journals/:path/thumbnail", dashboard.GetThumbnail)
		api.GET("/compare", dashboard.GetCompare)
		api.GET("/live", dashboard.GetLive)
		api.GET("/sources", dashboard.GetSources)
		api.POST("/refresh", dashboard.PostRefresh)

		api.GET("/public/summary", public.GetSummary)

		api.GET("/settings", settings.GetSettings)
		api.PUT("/settings", settings.PutSettings)
	}
}

// startServer bloque jusqu'à SIGINT/SIGTERM puis arrête proprement
func startServer(r *gin.Engine, cfg *udconfig.Config) error {
	srv := &http.Server{
		Addr:              cfg.Listen.Website,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Msgf("Tableau de bord démarré sur http://%s", cfg.Listen.Website)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Arrêt du serveur")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func main() {
	if BuildID == "" {
		BuildID = VERSION
	}

	cfg := initConfiguration()
	udlog.InitLogger(cfg.Logger, cfg.Production)
	udconfig.DisplayConfiguration(cfg, VERSION)
	udmarkdown.InitMarkdown()

	service, cleanup, err := newService(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("initialisation impossible")
	}
	defer cleanup()

	if err := service.StartScheduler(); err != nil {
		log.Fatal().Err(err).Msg("planification impossible")
	}

	r := newServer(cfg)
	udmiddleware.InitMiddleware(r, cfg.Production)
	setRoutes(r, cfg, service)

	if err := startServer(r, cfg); err != nil {
		log.Error().Err(err).Msg("serveur arrêté")
	}
}
