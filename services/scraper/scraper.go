// Package scraper defines the adapter contract shared by every stream source
// and the family of adapters implementing it: public-tracker JSON and HTML
// scrapers, torznab XML indexers, stream-addon clients, HTTP file-hoster
// scrapers, a personal media server, Easynews, and a newznab usenet indexer.
package scraper

import (
	"context"
	"log"
	"time"

	"streamscout/models"
	"streamscout/utils/filter"
)

// SearchRequest provides normalized inputs to every adapter. Adapters use the
// fields relevant to their wire format; stream-addon adapters address by
// IMDbID, keyword trackers by Query.
type SearchRequest struct {
	MediaType string // "movie" or "series"
	IMDBID    string
	Title     string
	Year      int
	Season    int
	Episode   int
	Query     string // keyword query built by the aggregation engine
	Languages []string
	Limit     int // per-scraper result cap, 0 = unlimited

	// LogContext is the short label prefixed to the per-invocation timing
	// mark, typically the request id.
	LogContext string
}

// EpisodeTag returns the "S01E02" suffix for series requests, empty otherwise.
func (r SearchRequest) EpisodeTag() string {
	if r.Season <= 0 || r.Episode <= 0 {
		return ""
	}
	return formatEpisodeTag(r.Season, r.Episode)
}

// Scraper describes a pluggable stream source. Search never panics and never
// blocks past its context; failures degrade to an empty slice.
type Scraper interface {
	Name() string
	Search(ctx context.Context, req SearchRequest) ([]models.Candidate, error)
}

// postProcess applies the shared per-adapter pipeline: junk and language
// filtering, in-adapter dedup, and the result cap. Every adapter runs its raw
// candidates through here before returning.
func postProcess(list []models.Candidate, req SearchRequest) []models.Candidate {
	list = filter.Candidates(list, filter.Options{Languages: req.Languages})
	list = filter.Dedup(list)
	if req.Limit > 0 && len(list) > req.Limit {
		list = list[:req.Limit]
	}
	return list
}

// markTiming emits the per-invocation timing line each adapter owes the logs.
func markTiming(logContext, name string, count int, start time.Time) {
	if logContext == "" {
		logContext = "search"
	}
	log.Printf("[%s] %s#%d in %s", logContext, name, count, time.Since(start).Round(time.Millisecond))
}
