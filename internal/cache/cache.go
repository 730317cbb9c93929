// Package cache provides the keyed record store backing the scraper result
// cache and the debrid hash-availability cache. Both logical caches share
// one physical store and are separated by key prefixes.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"
)

// Record is a stored value with its creation timestamp. Callers that need
// age-based policies (background refresh, stale-while-revalidate) read
// CreatedAt instead of re-deriving it.
type Record struct {
	Value     []byte
	CreatedAt time.Time
}

// Store is the pluggable cache backend. Expired entries behave like misses.
// Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (Record, bool, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	GetMany(ctx context.Context, keys []string) (map[string]Record, error)
	Close() error
}

// ScraperKey builds the cache key for one scraper's post-processed results.
// The query and language selection are hashed so arbitrary user input never
// shapes key structure.
func ScraperKey(scraperName, normalizedQuery string, languages []string) string {
	langKey := strings.Join(languages, ",")
	sum := sha1.Sum([]byte(scraperName + "|" + strings.ToLower(strings.TrimSpace(normalizedQuery)) + "|" + langKey))
	return "scraper:" + hex.EncodeToString(sum[:])
}

// AvailabilityKey builds the cache key for a debrid service's knowledge of
// one info hash.
func AvailabilityKey(service, infoHash string) string {
	return "debrid-cache:" + service + ":" + strings.ToLower(infoHash)
}
