package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"streamscout/internal/fetch"
	"streamscout/models"
	"streamscout/utils/filter"
)

const torrentGalaxyDefaultBaseURL = "https://torrentgalaxy.to"

// TorrentGalaxy queries a TorrentGalaxy JSON search endpoint.
type TorrentGalaxy struct {
	name    string
	baseURL string
	client  *fetch.Client
}

func NewTorrentGalaxy(client *fetch.Client, baseURL, name string) *TorrentGalaxy {
	if baseURL == "" {
		baseURL = torrentGalaxyDefaultBaseURL
	}
	return &TorrentGalaxy{
		name:    strings.TrimSpace(name),
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (t *TorrentGalaxy) Name() string {
	if t.name != "" {
		return t.name
	}
	return "torrentgalaxy"
}

func (t *TorrentGalaxy) Search(ctx context.Context, req SearchRequest) ([]models.Candidate, error) {
	start := time.Now()
	query := req.Query
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	category := "Movies"
	if req.MediaType == "series" {
		category = "TV"
	}
	endpoint := fmt.Sprintf("%s/api/search?q=%s&category=%s", t.baseURL, url.QueryEscape(query), category)

	resp, err := t.client.Get(ctx, endpoint, nil)
	if err != nil {
		markTiming(req.LogContext, t.Name(), 0, start)
		return nil, fmt.Errorf("torrentgalaxy request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		fetch.Discard(resp)
		markTiming(req.LogContext, t.Name(), 0, start)
		return nil, fmt.Errorf("torrentgalaxy returned %d", resp.StatusCode)
	}
	body, err := fetch.ReadBody(resp, 8<<20)
	if err != nil {
		markTiming(req.LogContext, t.Name(), 0, start)
		return nil, err
	}

	var payload struct {
		Status  string `json:"status"`
		Results []struct {
			Title    string `json:"title"`
			Size     string `json:"size"`
			Seeders  int    `json:"seeders"`
			Magnet   string `json:"magnet"`
			InfoHash string `json:"infohash"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		markTiming(req.LogContext, t.Name(), 0, start)
		return nil, fmt.Errorf("decode torrentgalaxy response: %w", err)
	}
	if payload.Status != "" && payload.Status != "success" {
		markTiming(req.LogContext, t.Name(), 0, start)
		return nil, fmt.Errorf("torrentgalaxy status %q", payload.Status)
	}

	candidates := make([]models.Candidate, 0, len(payload.Results))
	for _, row := range payload.Results {
		if req.MediaType == "movie" && !matchesStrictTitle(row.Title, req.Title, req.Year) {
			continue
		}
		infoHash := normalizeHash(row.InfoHash)
		if infoHash == "" {
			infoHash = hashFromMagnet(row.Magnet)
		}
		if infoHash == "" {
			continue
		}
		magnet := row.Magnet
		if magnet == "" {
			magnet = buildMagnet(infoHash, row.Title, nil)
		}
		candidates = append(candidates, models.NewTorrentCandidate(models.TorrentCandidate{
			Title:      row.Title,
			InfoHash:   infoHash,
			SizeBytes:  parseHumanSize(row.Size),
			Seeders:    row.Seeders,
			Tracker:    t.Name(),
			Languages:  filter.DetectLanguages(row.Title),
			Magnet:     magnet,
			Quality:    models.QualityFromTitle(row.Title),
			Attributes: map[string]string{"scraper": "torrentgalaxy"},
		}))
	}

	out := postProcess(candidates, req)
	markTiming(req.LogContext, t.Name(), len(out), start)
	return out, nil
}
