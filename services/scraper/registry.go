package scraper

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"streamscout/config"
	"streamscout/internal/fetch"
	"streamscout/models"
)

// Deps carries the shared infrastructure adapters are built over.
type Deps struct {
	Proxies   *fetch.ProxyManager
	Resolver  SIDResolver // non-nil only when lazy loading is disabled
	Easynews  config.EasynewsSettings
	HomeMedia config.HomeMediaSettings
	Usenet    config.UsenetSettings
	Timeout   time.Duration
}

// Build constructs every enabled scraper from configuration. Unknown types
// are logged and skipped so one bad entry never takes the service down.
func Build(configs []config.ScraperConfig, deps Deps) []Scraper {
	scrapers := make([]Scraper, 0, len(configs)+3)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		s, err := newFromConfig(cfg, deps)
		if err != nil {
			log.Printf("[scraper] skipping %q: %v", cfg.Name, err)
			continue
		}
		scrapers = append(scrapers, withLimit(s, cfg.Limit))
	}

	// Account-backed sources are configured in their own settings sections
	// rather than the scraper list.
	if deps.Easynews.Enabled && deps.Easynews.Username != "" {
		scrapers = append(scrapers, NewEasynews(deps.scraperClient(), deps.Easynews.Username, deps.Easynews.Password, ""))
	}
	if deps.HomeMedia.Enabled && deps.HomeMedia.URL != "" {
		scrapers = append(scrapers, NewHomeMedia(deps.scraperClient(), deps.HomeMedia.URL, deps.HomeMedia.APIKey, ""))
	}
	if deps.Usenet.Enabled && deps.Usenet.IndexerURL != "" {
		scrapers = append(scrapers, NewNewznab(deps.scraperClient(), deps.Usenet.IndexerURL, deps.Usenet.IndexerAPIKey, ""))
	}
	return scrapers
}

func newFromConfig(cfg config.ScraperConfig, deps Deps) (Scraper, error) {
	client := deps.scraperClient()
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "torrentio":
		return NewTorrentio(client, cfg.URL, cfg.Options, cfg.Name), nil
	case "comet":
		return NewComet(client, cfg.URL, cfg.Options, cfg.Name), nil
	case "jackett", "bitmagnet", "stremthru", "torznab":
		if cfg.URL == "" {
			return nil, fmt.Errorf("torznab scraper needs a url")
		}
		return NewTorznab(client, cfg.Type, cfg.URL, cfg.APIKey, cfg.Name), nil
	case "zilean":
		if cfg.URL == "" {
			return nil, fmt.Errorf("zilean scraper needs a url")
		}
		return NewZilean(client, cfg.URL, cfg.Name), nil
	case "snowfl":
		return NewSnowfl(client, cfg.URL, cfg.Name), nil
	case "wolfmax4k":
		return NewWolfmax4K(client, cfg.URL, cfg.Name), nil
	case "1337x", "leetx":
		return NewLeetx(client, cfg.URL, cfg.Name, cfg.MaxPages), nil
	case "torrentgalaxy":
		return NewTorrentGalaxy(client, cfg.URL, cfg.Name), nil
	case "magnetdl":
		return NewMagnetDL(client, cfg.URL, cfg.Name), nil
	case "btdig":
		session, err := fetch.NewSession(deps.purposeClient(), deps.Timeout)
		if err != nil {
			return nil, fmt.Errorf("btdig session: %w", err)
		}
		return NewBTDig(client, session, cfg.URL, cfg.Name, cfg.MaxPages), nil
	case "ilcorsaronero":
		return NewIlCorsaroNero(client, cfg.URL, cfg.Name), nil
	case "torrent9":
		return NewTorrent9(client, cfg.URL, cfg.Name), nil
	case "bludv":
		return NewBluDV(client, cfg.URL, cfg.Name), nil
	case "uhdmovies":
		return NewUHDMovies(deps.httpStreamClient(), cfg.URL, cfg.Name, deps.Resolver), nil
	case "moviesdrive":
		return NewMoviesDrive(deps.httpStreamClient(), cfg.URL, cfg.Name, deps.Resolver), nil
	default:
		return nil, fmt.Errorf("unknown scraper type %q", cfg.Type)
	}
}

// limited carries an adapter's configured result cap into every search it
// serves. A caller-supplied cap on the request wins.
type limited struct {
	Scraper
	limit int
}

func (l limited) Search(ctx context.Context, req SearchRequest) ([]models.Candidate, error) {
	if req.Limit <= 0 {
		req.Limit = l.limit
	}
	return l.Scraper.Search(ctx, req)
}

func withLimit(s Scraper, limit int) Scraper {
	if limit <= 0 {
		return s
	}
	return limited{Scraper: s, limit: limit}
}

func (d Deps) scraperClient() *fetch.Client {
	return fetch.NewClient(d.purposeClient())
}

func (d Deps) httpStreamClient() *fetch.Client {
	if d.Proxies == nil {
		return fetch.NewClient(nil)
	}
	return fetch.NewClient(d.Proxies.ClientFor(fetch.PurposeHTTPStreams))
}

func (d Deps) purposeClient() *http.Client {
	if d.Proxies == nil {
		return nil
	}
	return d.Proxies.ClientFor(fetch.PurposeScrapers)
}
