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

const cometDefaultBaseURL = "https://comet.elfhosted.com"

// Comet queries the comet stream addon. Same stream API shape as torrentio,
// but size and seeders arrive as structured fields rather than title text.
type Comet struct {
	name    string
	baseURL string
	options string
	client  *fetch.Client
}

func NewComet(client *fetch.Client, baseURL, options, name string) *Comet {
	if baseURL == "" {
		baseURL = cometDefaultBaseURL
	}
	baseURL = strings.TrimSuffix(strings.TrimRight(baseURL, "/"), "/manifest.json")
	return &Comet{
		name:    strings.TrimSpace(name),
		baseURL: baseURL,
		options: strings.TrimSpace(options),
		client:  client,
	}
}

func (c *Comet) Name() string {
	if c.name != "" {
		return c.name
	}
	return "comet"
}

func (c *Comet) Search(ctx context.Context, req SearchRequest) ([]models.Candidate, error) {
	start := time.Now()
	imdbID := strings.ToLower(strings.TrimSpace(req.IMDBID))
	if imdbID == "" {
		return nil, nil
	}
	if !strings.HasPrefix(imdbID, "tt") {
		imdbID = "tt" + imdbID
	}

	streamID := imdbID
	if req.MediaType == "series" && req.Season > 0 && req.Episode > 0 {
		streamID = fmt.Sprintf("%s:%d:%d", imdbID, req.Season, req.Episode)
	}

	var endpoint string
	if c.options != "" {
		endpoint = fmt.Sprintf("%s/%s/stream/%s/%s.json", c.baseURL, c.options, req.MediaType, url.PathEscape(streamID))
	} else {
		endpoint = fmt.Sprintf("%s/stream/%s/%s.json", c.baseURL, req.MediaType, url.PathEscape(streamID))
	}

	resp, err := c.client.Get(ctx, endpoint, nil)
	if err != nil {
		markTiming(req.LogContext, c.Name(), 0, start)
		return nil, fmt.Errorf("comet %s: %w", streamID, err)
	}
	if resp.StatusCode != http.StatusOK {
		fetch.Discard(resp)
		markTiming(req.LogContext, c.Name(), 0, start)
		return nil, fmt.Errorf("comet %s returned %d", streamID, resp.StatusCode)
	}
	body, err := fetch.ReadBody(resp, 8<<20)
	if err != nil {
		markTiming(req.LogContext, c.Name(), 0, start)
		return nil, err
	}

	var payload struct {
		Streams []struct {
			Name     string `json:"name"`
			Title    string `json:"title"`
			InfoHash string `json:"infoHash"`
			Size     any    `json:"size"`
			Seeders  any    `json:"seeders"`
			Tracker  any    `json:"tracker"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		markTiming(req.LogContext, c.Name(), 0, start)
		return nil, fmt.Errorf("decode comet response: %w", err)
	}

	candidates := make([]models.Candidate, 0, len(payload.Streams))
	for _, stream := range payload.Streams {
		infoHash := normalizeHash(stream.InfoHash)
		if infoHash == "" {
			continue
		}
		title := torrentioTitle(stream.Title)
		tracker := c.Name()
		if origin := asString(stream.Tracker); origin != "" {
			tracker = c.Name() + " | " + origin
		}
		size := asInt64(stream.Size)
		if size == 0 {
			size = parseHumanSize(stream.Title)
		}
		candidates = append(candidates, models.NewTorrentCandidate(models.TorrentCandidate{
			Title:      title,
			InfoHash:   infoHash,
			SizeBytes:  size,
			Seeders:    int(asInt64(stream.Seeders)),
			Tracker:    tracker,
			Languages:  filter.DetectLanguages(title),
			Magnet:     buildMagnet(infoHash, title, nil),
			Quality:    models.QualityFromTitle(stream.Name + " " + title),
			Attributes: map[string]string{"scraper": "comet"},
		}))
	}

	out := postProcess(candidates, req)
	markTiming(req.LogContext, c.Name(), len(out), start)
	return out, nil
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case string:
		trimmed := strings.TrimSpace(n)
		if trimmed == "" {
			return 0
		}
		var parsed int64
		if _, err := fmt.Sscan(trimmed, &parsed); err == nil {
			return parsed
		}
	}
	return 0
}
