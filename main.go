package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"streamscout/api"
	"streamscout/config"
	"streamscout/handlers"
	"streamscout/internal/cache"
	"streamscout/internal/fetch"
	"streamscout/services/aggregate"
	"streamscout/services/debrid"
	"streamscout/services/metadata"
	"streamscout/services/resolver"
	"streamscout/services/scraper"
	"streamscout/services/usenet"
)

func main() {
	portOverride := flag.Int("port", 0, "override server port from config")
	configPath := flag.String("config", "", "path to settings.json")
	flag.Parse()

	path := *configPath
	if path == "" {
		path = os.Getenv("STREAMSCOUT_CONFIG")
	}
	if path == "" {
		path = filepath.Join("cache", "settings.json")
	}

	cfgManager := config.NewManager(path)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	// File logging with rotation, alongside stdout.
	if settings.Log.File != "" {
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			log.Printf("warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   settings.Log.File,
				MaxSize:    settings.Log.MaxSize,
				MaxBackups: settings.Log.MaxBackups,
				MaxAge:     settings.Log.MaxAge,
				Compress:   settings.Log.Compress,
			}
			log.SetOutput(io.MultiWriter(os.Stdout, fileWriter))
			log.SetFlags(log.LstdFlags | log.Lshortfile)
			log.Printf("logging to file: %s", settings.Log.File)
		}
	}

	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}

	scraperTimeout := time.Duration(settings.Timeouts.ScraperSeconds) * time.Second
	globalTimeout := time.Duration(settings.Timeouts.GlobalSeconds) * time.Second

	store := cache.WithStats(buildCacheStore(settings.Cache), time.Hour)
	defer store.Close()

	proxies := fetch.NewProxyManager(fetch.ProxyConfig{
		ProxyURL: settings.Proxy.ProxyURL,
		Services: settings.Proxy.Services,
	}, scraperTimeout)

	metaService := metadata.NewService(settings.Metadata.CinemetaURL, fetch.NewClient(nil), store)

	var availability *debrid.Service
	if settings.Debrid.CheckAvailability {
		debridClient := fetch.NewClient(proxies.ClientFor(fetch.DebridPurpose(settings.Debrid.Service)))
		client, err := debrid.NewClient(settings.Debrid.Service, settings.Debrid.Token, debridClient)
		if err != nil {
			log.Printf("warning: debrid availability disabled: %v", err)
		} else if client != nil {
			availability = debrid.NewService(client, store)
			log.Printf("debrid availability checks enabled for %s", client.Service())
		}
	}

	var usenetController *usenet.Controller
	if settings.Usenet.Enabled && settings.Usenet.SABnzbdURL != "" {
		sab := usenet.NewSABnzbdClient(settings.Usenet.SABnzbdURL, settings.Usenet.SABnzbdAPIKey, nil)
		usenetController = usenet.NewController(settings.Usenet, sab, nil, nil)
		log.Printf("usenet downloads enabled via %s", settings.Usenet.SABnzbdURL)
	}

	var usenetResolver resolver.UsenetResolver
	if usenetController != nil {
		usenetResolver = usenetController
	}
	resolverService := resolver.New(
		fetch.NewClient(proxies.ClientFor(fetch.PurposeHTTPStreams)),
		proxies.ClientFor(fetch.PurposeHTTPStreams),
		usenetResolver,
		settings.Resolver,
	)

	deps := scraper.Deps{
		Proxies:   proxies,
		Easynews:  settings.Easynews,
		HomeMedia: settings.HomeMedia,
		Usenet:    settings.Usenet,
		Timeout:   scraperTimeout,
	}
	// Eager resolution trades response latency for clickable direct links.
	if settings.Resolver.DisableHTTPStreamLazyLoad {
		deps.Resolver = resolverService
	}
	scrapers := scraper.Build(settings.Scrapers, deps)
	log.Printf("built %d scrapers", len(scrapers))

	engine := aggregate.NewEngine(scrapers, metaService, store, availability, aggregate.Options{
		Languages:      settings.Languages,
		ScraperTimeout: scraperTimeout,
		GlobalTimeout:  globalTimeout,
		MinSizeGiB:     settings.Filtering.MinSizeGiB,
		MaxSizeGiB:     settings.Filtering.MaxSizeGiB,
		SelfBaseURL:    settings.SelfBaseURL,
		MovieTTL:       time.Duration(settings.Cache.MovieTTLMinutes) * time.Minute,
		SeriesTTL:      time.Duration(settings.Cache.SeriesTTLMinutes) * time.Minute,
	})

	// Saving settings rebuilds the scraper set in place.
	reloadScrapers := func(updated config.Settings) {
		next := deps
		next.Easynews = updated.Easynews
		next.HomeMedia = updated.HomeMedia
		next.Usenet = updated.Usenet
		engine.SetScrapers(scraper.Build(updated.Scrapers, next))
	}

	router := api.NewRouter(api.Handlers{
		Streams:   handlers.NewStreamHandler(engine),
		Resolve:   handlers.NewResolveHandler(resolverService),
		Downloads: downloadsHandler(usenetController),
		Settings:  handlers.NewSettingsHandler(cfgManager, reloadScrapers),
	})

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("streamscout listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// buildCacheStore selects the cache backend. SQLite failures fall back to
// memory so a corrupt database never prevents startup.
func buildCacheStore(cfg config.CacheSettings) cache.Store {
	if cfg.Backend == "sqlite" {
		if err := os.MkdirAll(cfg.Directory, 0755); err != nil {
			log.Printf("warning: could not create cache directory %s: %v", cfg.Directory, err)
		}
		dbPath := filepath.Join(cfg.Directory, "streamscout.db")
		store, err := cache.NewSQLiteStore(dbPath)
		if err != nil {
			log.Printf("warning: sqlite cache unavailable, using memory: %v", err)
			return cache.NewMemoryStore()
		}
		log.Printf("using sqlite cache at %s", dbPath)
		return store
	}
	return cache.NewMemoryStore()
}

func downloadsHandler(controller *usenet.Controller) *handlers.DownloadsHandler {
	if controller == nil {
		return nil
	}
	return handlers.NewDownloadsHandler(controller)
}
