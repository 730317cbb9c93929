// Package aggregate orchestrates a stream search: metadata resolution, query
// construction, parallel scraper fan-out with per-source deadlines, merging,
// ranking, debrid annotation, and preview wrapping.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"streamscout/internal/cache"
	"streamscout/internal/token"
	"streamscout/models"
	"streamscout/services/debrid"
	"streamscout/services/metadata"
	"streamscout/services/scraper"
	"streamscout/utils/filter"
)

// Options carries the per-instance engine configuration.
type Options struct {
	Languages      []string
	ScraperTimeout time.Duration
	GlobalTimeout  time.Duration
	MinSizeGiB     float64
	MaxSizeGiB     float64
	SelfBaseURL    string
	MovieTTL       time.Duration
	SeriesTTL      time.Duration
}

// Engine fans a request out across the configured scrapers and fuses the
// results into one ranked stream list.
type Engine struct {
	mu       sync.RWMutex
	scrapers []scraper.Scraper
	meta     *metadata.Service
	store    cache.Store
	debrid   *debrid.Service
	opts     Options
}

func NewEngine(scrapers []scraper.Scraper, meta *metadata.Service, store cache.Store, availability *debrid.Service, opts Options) *Engine {
	if opts.ScraperTimeout <= 0 {
		opts.ScraperTimeout = 15 * time.Second
	}
	if opts.GlobalTimeout < opts.ScraperTimeout {
		opts.GlobalTimeout = opts.ScraperTimeout
	}
	if opts.MovieTTL <= 0 {
		opts.MovieTTL = 6 * time.Hour
	}
	if opts.SeriesTTL <= 0 {
		opts.SeriesTTL = time.Hour
	}
	opts.SelfBaseURL = strings.TrimRight(opts.SelfBaseURL, "/")
	return &Engine{
		scrapers: scrapers,
		meta:     meta,
		store:    store,
		debrid:   availability,
		opts:     opts,
	}
}

// Aggregate resolves metadata for the request, queries every scraper in
// parallel, and returns the merged ranked stream list. One scraper's fault
// never fails the whole search; the only propagated scraper error is an
// Easynews credential rejection.
func (e *Engine) Aggregate(ctx context.Context, mediaType, id string) ([]models.PreviewStream, error) {
	started := time.Now()
	imdbID, season, episode, err := parseStreamID(id)
	if err != nil {
		return nil, err
	}

	meta, err := e.meta.GetMeta(ctx, mediaType, imdbID)
	if err != nil {
		return nil, fmt.Errorf("resolve metadata for %s: %w", imdbID, err)
	}

	queries := buildQueries(meta.Name, meta.Year, season, episode)
	if len(queries) == 0 {
		return nil, fmt.Errorf("no usable query for %s", imdbID)
	}

	req := scraper.SearchRequest{
		MediaType:  mediaType,
		IMDBID:     imdbID,
		Title:      meta.Name,
		Year:       meta.Year,
		Season:     season,
		Episode:    episode,
		Query:      queries[0],
		Languages:  e.opts.Languages,
		LogContext: mediaType + "/" + id,
	}

	scrapers := e.currentScrapers()
	merged, credErr := e.fanOut(ctx, scrapers, req, queries)

	merged = filter.Candidates(merged, filter.Options{
		Languages:  e.opts.Languages,
		MinSizeGiB: e.opts.MinSizeGiB,
		MaxSizeGiB: e.opts.MaxSizeGiB,
	})
	merged = filter.Dedup(merged)
	filter.Rank(merged, season)

	if e.debrid != nil {
		cached, other := e.debrid.Annotate(ctx, merged)
		merged = append(cached, other...)
	}

	streams := e.wrapStreams(merged)
	log.Printf("[%s] aggregated %d streams from %d scrapers in %s",
		req.LogContext, len(streams), len(scrapers), time.Since(started).Round(time.Millisecond))

	if len(streams) == 0 && credErr != nil {
		return nil, credErr
	}
	return streams, nil
}

// SetScrapers swaps the scraper set, applying a settings change without a
// restart. Searches already in flight keep the set they started with.
func (e *Engine) SetScrapers(scrapers []scraper.Scraper) {
	e.mu.Lock()
	e.scrapers = scrapers
	e.mu.Unlock()
	log.Printf("[aggregate] scraper set reloaded: %d active", len(scrapers))
}

func (e *Engine) currentScrapers() []scraper.Scraper {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.scrapers
}

type scraperOutcome struct {
	name       string
	candidates []models.Candidate
	err        error
}

// fanOut runs every scraper concurrently under the global deadline. Results
// are collected as they land; once the deadline fires the slow scrapers are
// abandoned (their contexts are canceled, they return empty on their own).
func (e *Engine) fanOut(parent context.Context, scrapers []scraper.Scraper, req scraper.SearchRequest, queries []string) ([]models.Candidate, error) {
	ctx, cancel := context.WithTimeout(parent, e.opts.GlobalTimeout)
	defer cancel()

	outcomes := make(chan scraperOutcome, len(scrapers))
	for _, s := range scrapers {
		s := s
		go func() {
			outcomes <- e.runScraper(ctx, s, req, queries)
		}()
	}

	var (
		merged  []models.Candidate
		credErr error
	)
	for remaining := len(scrapers); remaining > 0; remaining-- {
		select {
		case outcome := <-outcomes:
			if outcome.err != nil {
				if errors.Is(outcome.err, scraper.ErrEasynewsCredentials) {
					credErr = outcome.err
				} else if !errors.Is(outcome.err, context.Canceled) && !errors.Is(outcome.err, context.DeadlineExceeded) {
					log.Printf("[%s] %s failed: %v", req.LogContext, outcome.name, outcome.err)
				}
				continue
			}
			merged = append(merged, outcome.candidates...)
		case <-ctx.Done():
			log.Printf("[%s] global deadline hit with %d scrapers outstanding", req.LogContext, remaining)
			return merged, credErr
		}
	}
	return merged, credErr
}

// runScraper wraps one adapter invocation: cache check, per-scraper timeout,
// panic containment, fallback queries, cache fill.
func (e *Engine) runScraper(ctx context.Context, s scraper.Scraper, req scraper.SearchRequest, queries []string) (outcome scraperOutcome) {
	outcome.name = s.Name()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[%s] %s panicked: %v", req.LogContext, s.Name(), r)
			outcome.candidates, outcome.err = nil, nil
		}
	}()

	cacheKey := cache.ScraperKey(s.Name(), queries[0], e.opts.Languages)
	if e.store != nil {
		lookupCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		rec, ok, err := e.store.Get(lookupCtx, cacheKey)
		cancel()
		if err == nil && ok {
			if list, derr := cache.DecodeCandidates(rec.Value); derr == nil {
				log.Printf("[%s] %s cache hit (%d candidates, age %s)",
					req.LogContext, s.Name(), len(list), time.Since(rec.CreatedAt).Round(time.Second))
				outcome.candidates = list
				return outcome
			}
		}
	}

	scraperCtx, cancel := context.WithTimeout(ctx, e.opts.ScraperTimeout)
	defer cancel()

	var (
		candidates []models.Candidate
		err        error
	)
	for _, query := range queries {
		attempt := req
		attempt.Query = query
		candidates, err = s.Search(scraperCtx, attempt)
		if err != nil || len(candidates) > 0 || scraperCtx.Err() != nil {
			break
		}
	}
	if err != nil {
		outcome.err = err
		return outcome
	}

	if e.store != nil && len(candidates) > 0 {
		ttl := e.opts.MovieTTL
		if req.MediaType == "series" {
			ttl = e.opts.SeriesTTL
		}
		if data, cerr := cache.EncodeCandidates(candidates); cerr == nil {
			putCtx, cancelPut := context.WithTimeout(context.Background(), 2*time.Second)
			if perr := e.store.Put(putCtx, cacheKey, data, ttl); perr != nil {
				log.Printf("[%s] caching %s results failed: %v", req.LogContext, s.Name(), perr)
			}
			cancelPut()
		}
	}

	outcome.candidates = candidates
	return outcome
}

// wrapStreams converts ranked candidates into the outbound stream shapes.
// HTTP-stream and NZB candidates become previews pointing at the resolve
// endpoint; torrents carry their magnet and hash directly.
func (e *Engine) wrapStreams(candidates []models.Candidate) []models.PreviewStream {
	streams := make([]models.PreviewStream, 0, len(candidates))
	for _, c := range candidates {
		switch c.Kind {
		case models.KindTorrent:
			t := c.Torrent
			if t == nil {
				continue
			}
			streams = append(streams, models.PreviewStream{
				Name:            "StreamScout " + strings.ToUpper(string(t.Quality)),
				Title:           torrentStreamTitle(t),
				URL:             t.Magnet,
				Resolution:      string(t.Quality),
				Size:            humanGiB(t.SizeBytes),
				InfoHash:        t.InfoHash,
				NeedsResolution: false,
				Languages:       t.Languages,
				Attributes:      t.Attributes,
			})
		case models.KindHTTPStream:
			h := c.HTTPStream
			if h == nil {
				continue
			}
			stream := models.PreviewStream{
				Name:            "StreamScout " + strings.ToUpper(string(h.Quality)),
				Title:           h.DisplayName,
				Resolution:      string(h.Quality),
				Size:            h.SizeHuman,
				NeedsResolution: h.NeedsResolution,
				Languages:       h.Languages,
			}
			if !h.NeedsResolution && h.DirectURL != "" {
				stream.URL = h.DirectURL
			} else {
				resolveURL, err := e.resolveURL(h.Provider, h.Payload)
				if err != nil {
					log.Printf("[aggregate] dropping %s preview: %v", h.Provider, err)
					continue
				}
				stream.URL = resolveURL
			}
			streams = append(streams, stream)
		case models.KindNZB:
			n := c.NZB
			if n == nil {
				continue
			}
			resolveURL, err := e.resolveURL("usenet", map[string]string{
				"guid":        n.GUID,
				"downloadUrl": n.DownloadURL,
				"title":       n.Title,
			})
			if err != nil {
				log.Printf("[aggregate] dropping usenet preview: %v", err)
				continue
			}
			streams = append(streams, models.PreviewStream{
				Name:            "StreamScout Usenet " + strings.ToUpper(string(n.Quality)),
				Title:           n.Title,
				URL:             resolveURL,
				Resolution:      string(n.Quality),
				Size:            humanGiB(n.SizeBytes),
				NeedsResolution: true,
				Languages:       n.Languages,
			})
		}
	}
	return streams
}

func (e *Engine) resolveURL(provider string, payload map[string]string) (string, error) {
	encoded, err := token.Encode(token.Token{Provider: provider, Payload: payload})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/resolve/%s/%s", e.opts.SelfBaseURL, url.PathEscape(provider), encoded), nil
}

func torrentStreamTitle(t *models.TorrentCandidate) string {
	title := t.Title
	sources := t.Sources
	if len(sources) == 0 && t.Tracker != "" {
		sources = []string{t.Tracker}
	}
	if len(sources) > 0 {
		title += "\n" + strings.Join(sources, " | ")
	}
	if t.Seeders > 0 {
		title += fmt.Sprintf(" 👤 %d", t.Seeders)
	}
	return title
}

func humanGiB(bytes int64) string {
	if bytes <= 0 {
		return ""
	}
	return fmt.Sprintf("%.2f GB", float64(bytes)/float64(1<<30))
}
