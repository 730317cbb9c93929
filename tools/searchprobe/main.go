// Command searchprobe runs one search through the configured scrapers and
// prints the merged candidate list. Useful for checking scraper settings
// without starting the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"streamscout/config"
	"streamscout/internal/fetch"
	"streamscout/models"
	"streamscout/services/scraper"
	"streamscout/utils/filter"
)

func main() {
	var (
		configPath = flag.String("config", "cache/settings.json", "path to settings.json")
		mediaType  = flag.String("type", "movie", "movie or series")
		imdbID     = flag.String("imdb", "", "IMDb id, e.g. tt0133093")
		title      = flag.String("title", "", "title keyword query")
		year       = flag.Int("year", 0, "release year")
		season     = flag.Int("season", 0, "season number")
		episode    = flag.Int("episode", 0, "episode number")
	)
	flag.Parse()

	if *imdbID == "" && *title == "" {
		log.Fatal("need -imdb or -title")
	}

	settings, err := config.NewManager(*configPath).Load()
	if err != nil {
		log.Fatalf("load settings: %v", err)
	}

	timeout := time.Duration(settings.Timeouts.ScraperSeconds) * time.Second
	proxies := fetch.NewProxyManager(fetch.ProxyConfig{
		ProxyURL: settings.Proxy.ProxyURL,
		Services: settings.Proxy.Services,
	}, timeout)

	scrapers := scraper.Build(settings.Scrapers, scraper.Deps{
		Proxies:   proxies,
		Easynews:  settings.Easynews,
		HomeMedia: settings.HomeMedia,
		Usenet:    settings.Usenet,
		Timeout:   timeout,
	})
	if len(scrapers) == 0 {
		log.Fatal("no scrapers enabled")
	}

	query := *title
	if query != "" && *year > 0 {
		query = fmt.Sprintf("%s %d", *title, *year)
	}
	req := scraper.SearchRequest{
		MediaType:  *mediaType,
		IMDBID:     *imdbID,
		Title:      *title,
		Year:       *year,
		Season:     *season,
		Episode:    *episode,
		Query:      query,
		Languages:  settings.Languages,
		LogContext: "searchprobe",
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(settings.Timeouts.GlobalSeconds)*time.Second)
	defer cancel()

	var merged []models.Candidate
	for _, s := range scrapers {
		results, err := s.Search(ctx, req)
		if err != nil {
			log.Printf("%s: %v", s.Name(), err)
			continue
		}
		fmt.Printf("%-16s %d results\n", s.Name(), len(results))
		merged = append(merged, results...)
	}

	merged = filter.Dedup(merged)
	filter.Rank(merged, *season)
	fmt.Printf("\n%d candidates after dedup:\n", len(merged))
	for i, c := range merged {
		switch c.Kind {
		case models.KindTorrent:
			fmt.Printf("%3d. [%s] %s  %.2f GB  %d seeders  (%s)\n",
				i+1, c.Torrent.Quality, c.Torrent.Title,
				float64(c.Torrent.SizeBytes)/float64(1<<30), c.Torrent.Seeders, c.Torrent.Tracker)
		case models.KindHTTPStream:
			fmt.Printf("%3d. [%s] %s  %s  (%s)\n",
				i+1, c.HTTPStream.Quality, c.HTTPStream.DisplayName, c.HTTPStream.SizeHuman, c.HTTPStream.Provider)
		case models.KindNZB:
			fmt.Printf("%3d. [%s] %s  %.2f GB  (usenet)\n",
				i+1, c.NZB.Quality, c.NZB.Title, float64(c.NZB.SizeBytes)/float64(1<<30))
		}
	}
}
