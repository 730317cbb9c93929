// Package metadata resolves IMDb IDs to titles and years via Cinemeta.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"streamscout/internal/cache"
	"streamscout/internal/fetch"
)

const metaTTL = 24 * time.Hour

// Meta is the slice of a Cinemeta record the scrapers need.
type Meta struct {
	ID   string `json:"id"`
	Type string `json:"type"` // "movie" or "series"
	Name string `json:"name"`
	Year int    `json:"year"`
}

// Service fetches metadata and keeps a cache in front of Cinemeta.
type Service struct {
	baseURL string
	client  *fetch.Client
	store   cache.Store
}

func NewService(baseURL string, client *fetch.Client, store cache.Store) *Service {
	return &Service{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		store:   store,
	}
}

// GetMeta resolves the name and year for an IMDb ID. mediaType is "movie" or
// "series". Results are cached; Cinemeta data rarely changes.
func (s *Service) GetMeta(ctx context.Context, mediaType, imdbID string) (Meta, error) {
	key := "meta:" + mediaType + ":" + imdbID
	if s.store != nil {
		if rec, ok, err := s.store.Get(ctx, key); err == nil && ok {
			var m Meta
			if err := json.Unmarshal(rec.Value, &m); err == nil {
				return m, nil
			}
		}
	}

	reqURL := fmt.Sprintf("%s/meta/%s/%s.json", s.baseURL, mediaType, imdbID)
	resp, err := s.client.Get(ctx, reqURL, nil)
	if err != nil {
		return Meta{}, fmt.Errorf("fetch cinemeta meta: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		fetch.Discard(resp)
		return Meta{}, fmt.Errorf("cinemeta returned %d for %s/%s", resp.StatusCode, mediaType, imdbID)
	}
	body, err := fetch.ReadBody(resp, 2<<20)
	if err != nil {
		return Meta{}, err
	}

	var payload struct {
		Meta struct {
			ID   string `json:"id"`
			Name string `json:"name"`
			Year string `json:"year"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return Meta{}, fmt.Errorf("decode cinemeta meta: %w", err)
	}
	if payload.Meta.Name == "" {
		return Meta{}, fmt.Errorf("cinemeta has no entry for %s/%s", mediaType, imdbID)
	}

	m := Meta{
		ID:   imdbID,
		Type: mediaType,
		Name: payload.Meta.Name,
		Year: parseYear(payload.Meta.Year),
	}

	if s.store != nil {
		if data, err := json.Marshal(m); err == nil {
			if err := s.store.Put(ctx, key, data, metaTTL); err != nil {
				log.Printf("[metadata] caching meta for %s failed: %v", imdbID, err)
			}
		}
	}
	return m, nil
}

// parseYear handles both movie years ("2008") and series ranges ("2008-2013",
// "2008-"), keeping the first year.
func parseYear(raw string) int {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexAny(raw, "-–"); i >= 0 {
		raw = raw[:i]
	}
	year, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return year
}
