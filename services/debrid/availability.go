// Package debrid annotates torrent candidates with instant-availability
// information from a debrid service, fronted by the shared cache.
package debrid

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"streamscout/internal/cache"
	"streamscout/internal/fetch"
	"streamscout/models"
)

const (
	availabilityTTL    = 30 * time.Minute
	availabilityBatch  = 40
	backgroundTimeout  = 45 * time.Second
	cacheLookupTimeout = 2 * time.Second
)

// AvailabilityClient checks which info hashes a debrid service has cached.
type AvailabilityClient interface {
	Service() string
	CheckCached(ctx context.Context, hashes []string) (map[string]bool, error)
}

// Service batches availability lookups through the cache, returning what is
// known immediately and refreshing unknown hashes in the background.
type Service struct {
	client AvailabilityClient
	store  cache.Store
}

func NewService(client AvailabilityClient, store cache.Store) *Service {
	return &Service{client: client, store: store}
}

// Annotate partitions torrent candidates into debrid-cached and the rest,
// based on cached knowledge only. Hashes the cache knows nothing about are
// refreshed by a detached background check; the current request never waits
// on the remote service. Synthetic hashes are never submitted.
func (s *Service) Annotate(ctx context.Context, candidates []models.Candidate) (cached, other []models.Candidate) {
	if s == nil || s.client == nil {
		return nil, candidates
	}

	keys := make([]string, 0, len(candidates))
	realHashes := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c.Kind != models.KindTorrent || c.Torrent == nil || c.Torrent.SyntheticHash {
			continue
		}
		keys = append(keys, cache.AvailabilityKey(s.client.Service(), c.Torrent.InfoHash))
		realHashes = append(realHashes, c.Torrent.InfoHash)
	}

	known := make(map[string]bool, len(keys))
	if s.store != nil && len(keys) > 0 {
		lookupCtx, cancel := context.WithTimeout(ctx, cacheLookupTimeout)
		defer cancel()
		records, err := s.store.GetMany(lookupCtx, keys)
		if err != nil {
			log.Printf("[debrid] availability cache lookup failed, treating as miss: %v", err)
		} else {
			for key, rec := range records {
				known[key] = string(rec.Value) == "1"
			}
		}
	}

	var unknown []string
	for i, hash := range realHashes {
		if _, ok := known[keys[i]]; !ok {
			unknown = append(unknown, hash)
		}
	}
	if len(unknown) > 0 {
		go s.refresh(unknown)
	}

	for _, c := range candidates {
		if c.Kind == models.KindTorrent && c.Torrent != nil && !c.Torrent.SyntheticHash &&
			known[cache.AvailabilityKey(s.client.Service(), c.Torrent.InfoHash)] {
			cached = append(cached, c)
			continue
		}
		other = append(other, c)
	}
	return cached, other
}

// refresh queries the remote service for a batch of hashes and stores the
// verdicts. It runs detached from any request.
func (s *Service) refresh(hashes []string) {
	ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
	defer cancel()

	for offset := 0; offset < len(hashes); offset += availabilityBatch {
		end := offset + availabilityBatch
		if end > len(hashes) {
			end = len(hashes)
		}
		batch := hashes[offset:end]

		verdicts, err := s.client.CheckCached(ctx, batch)
		if err != nil {
			log.Printf("[debrid] background availability check failed: %v", err)
			return
		}
		if s.store == nil {
			continue
		}
		for _, hash := range batch {
			value := []byte("0")
			if verdicts[hash] {
				value = []byte("1")
			}
			key := cache.AvailabilityKey(s.client.Service(), hash)
			if err := s.store.Put(ctx, key, value, availabilityTTL); err != nil {
				log.Printf("[debrid] caching availability for %s failed: %v", hash, err)
			}
		}
	}
}

// AllDebridClient checks hashes against AllDebrid's magnet/instant endpoint.
type AllDebridClient struct {
	apiKey  string
	agent   string
	baseURL string
	client  *fetch.Client
}

func NewAllDebridClient(client *fetch.Client, apiKey string) *AllDebridClient {
	return &AllDebridClient{
		apiKey:  apiKey,
		agent:   "streamscout",
		baseURL: "https://api.alldebrid.com/v4",
		client:  client,
	}
}

func (c *AllDebridClient) Service() string { return "alldebrid" }

func (c *AllDebridClient) CheckCached(ctx context.Context, hashes []string) (map[string]bool, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("alldebrid api key not configured")
	}

	params := url.Values{}
	params.Set("agent", c.agent)
	for _, hash := range hashes {
		params.Add("magnets[]", strings.ToLower(strings.TrimSpace(hash)))
	}

	endpoint := fmt.Sprintf("%s/magnet/instant?%s", c.baseURL, params.Encode())
	resp, err := c.client.Get(ctx, endpoint, map[string]string{"Authorization": "Bearer " + c.apiKey})
	if err != nil {
		return nil, fmt.Errorf("alldebrid instant availability: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		fetch.Discard(resp)
		return nil, fmt.Errorf("alldebrid authentication failed")
	}
	body, err := fetch.ReadBody(resp, 4<<20)
	if err != nil {
		return nil, err
	}

	var result struct {
		Status string `json:"status"`
		Data   struct {
			Magnets []struct {
				Hash    string `json:"hash"`
				Instant bool   `json:"instant"`
			} `json:"magnets"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode alldebrid response: %w", err)
	}
	if result.Status != "success" {
		return nil, fmt.Errorf("alldebrid returned status %q", result.Status)
	}

	verdicts := make(map[string]bool, len(hashes))
	for _, magnet := range result.Data.Magnets {
		verdicts[strings.ToLower(magnet.Hash)] = magnet.Instant
	}
	return verdicts, nil
}

// RealDebridClient checks hashes against Real-Debrid's instantAvailability
// endpoint.
type RealDebridClient struct {
	token   string
	baseURL string
	client  *fetch.Client
}

func NewRealDebridClient(client *fetch.Client, token string) *RealDebridClient {
	return &RealDebridClient{
		token:   token,
		baseURL: "https://api.real-debrid.com/rest/1.0",
		client:  client,
	}
}

func (c *RealDebridClient) Service() string { return "realdebrid" }

func (c *RealDebridClient) CheckCached(ctx context.Context, hashes []string) (map[string]bool, error) {
	if c.token == "" {
		return nil, fmt.Errorf("realdebrid token not configured")
	}

	lowered := make([]string, len(hashes))
	for i, hash := range hashes {
		lowered[i] = strings.ToLower(strings.TrimSpace(hash))
	}
	endpoint := fmt.Sprintf("%s/torrents/instantAvailability/%s", c.baseURL, strings.Join(lowered, "/"))
	resp, err := c.client.Get(ctx, endpoint, map[string]string{"Authorization": "Bearer " + c.token})
	if err != nil {
		return nil, fmt.Errorf("realdebrid instant availability: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		fetch.Discard(resp)
		return nil, fmt.Errorf("realdebrid authentication failed")
	}
	body, err := fetch.ReadBody(resp, 8<<20)
	if err != nil {
		return nil, err
	}

	// The response maps hash -> variant map; a non-empty variant set means
	// the torrent is cached.
	var result map[string]json.RawMessage
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode realdebrid response: %w", err)
	}

	verdicts := make(map[string]bool, len(hashes))
	for _, hash := range lowered {
		raw, ok := result[hash]
		if !ok {
			verdicts[hash] = false
			continue
		}
		trimmed := strings.TrimSpace(string(raw))
		verdicts[hash] = trimmed != "" && trimmed != "{}" && trimmed != "[]" && trimmed != "null"
	}
	return verdicts, nil
}

// NewClient builds the availability client for a configured service name.
func NewClient(service, token string, client *fetch.Client) (AvailabilityClient, error) {
	switch strings.ToLower(strings.TrimSpace(service)) {
	case "alldebrid":
		return NewAllDebridClient(client, token), nil
	case "realdebrid":
		return NewRealDebridClient(client, token), nil
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported debrid service %q", service)
	}
}
