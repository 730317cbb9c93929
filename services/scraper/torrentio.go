package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"streamscout/internal/fetch"
	"streamscout/models"
	"streamscout/utils/filter"
)

const torrentioDefaultBaseURL = "https://torrentio.strem.fun"

// Torrentio queries the torrentio stream addon by IMDb ID.
type Torrentio struct {
	name    string
	baseURL string
	options string // URL path options, e.g. "sort=qualitysize|qualityfilter=scr,cam"
	client  *fetch.Client
}

func NewTorrentio(client *fetch.Client, baseURL, options, name string) *Torrentio {
	if baseURL == "" {
		baseURL = torrentioDefaultBaseURL
	}
	return &Torrentio{
		name:    strings.TrimSpace(name),
		baseURL: strings.TrimRight(baseURL, "/"),
		options: strings.TrimSpace(options),
		client:  client,
	}
}

func (t *Torrentio) Name() string {
	if t.name != "" {
		return t.name
	}
	return "torrentio"
}

func (t *Torrentio) Search(ctx context.Context, req SearchRequest) ([]models.Candidate, error) {
	start := time.Now()
	if req.IMDBID == "" {
		return nil, nil
	}

	streamID := req.IMDBID
	if req.MediaType == "series" && req.Season > 0 && req.Episode > 0 {
		streamID = fmt.Sprintf("%s:%d:%d", req.IMDBID, req.Season, req.Episode)
	}

	var endpoint string
	if t.options != "" {
		endpoint = fmt.Sprintf("%s/%s/stream/%s/%s.json", t.baseURL, t.options, req.MediaType, url.PathEscape(streamID))
	} else {
		endpoint = fmt.Sprintf("%s/stream/%s/%s.json", t.baseURL, req.MediaType, url.PathEscape(streamID))
	}

	resp, err := t.client.Get(ctx, endpoint, nil)
	if err != nil {
		markTiming(req.LogContext, t.Name(), 0, start)
		return nil, fmt.Errorf("torrentio %s: %w", streamID, err)
	}
	if resp.StatusCode != http.StatusOK {
		fetch.Discard(resp)
		markTiming(req.LogContext, t.Name(), 0, start)
		return nil, fmt.Errorf("torrentio %s returned %d", streamID, resp.StatusCode)
	}
	body, err := fetch.ReadBody(resp, 8<<20)
	if err != nil {
		markTiming(req.LogContext, t.Name(), 0, start)
		return nil, err
	}

	var payload struct {
		Streams []struct {
			Name          string         `json:"name"`
			Title         string         `json:"title"`
			InfoHash      string         `json:"infoHash"`
			FileIdx       *int           `json:"fileIdx"`
			BehaviorHints map[string]any `json:"behaviorHints"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		markTiming(req.LogContext, t.Name(), 0, start)
		return nil, fmt.Errorf("decode torrentio response: %w", err)
	}

	candidates := make([]models.Candidate, 0, len(payload.Streams))
	for _, stream := range payload.Streams {
		infoHash := normalizeHash(stream.InfoHash)
		if infoHash == "" {
			continue
		}
		title := torrentioTitle(stream.Title)
		tracker := t.Name()
		if provider := torrentioProvider(stream.Title); provider != "" {
			tracker = t.Name() + " | " + provider
		}
		attrs := map[string]string{"scraper": "torrentio"}
		if stream.FileIdx != nil {
			attrs["fileIdx"] = strconv.Itoa(*stream.FileIdx)
		}
		candidates = append(candidates, models.NewTorrentCandidate(models.TorrentCandidate{
			Title:      title,
			InfoHash:   infoHash,
			SizeBytes:  torrentioSize(stream.Title),
			Seeders:    torrentioSeeders(stream.Title),
			Tracker:    tracker,
			Languages:  filter.DetectLanguages(title),
			Magnet:     buildMagnet(infoHash, title, torrentioTrackers(stream.BehaviorHints)),
			Quality:    models.QualityFromTitle(stream.Name + " " + title),
			Attributes: attrs,
		}))
	}

	out := postProcess(candidates, req)
	markTiming(req.LogContext, t.Name(), len(out), start)
	return out, nil
}

// Torrentio packs size, seeders and the origin tracker into the stream title
// line with emoji markers.
var (
	reTorrentioSize     = regexp.MustCompile(`💾\s*([\d.,]+)\s*([KMGTP]?B)`)
	reTorrentioSeeders  = regexp.MustCompile(`👤\s*(\d+)`)
	reTorrentioProvider = regexp.MustCompile(`⚙️\s*([^\n]+)`)
)

func torrentioTitle(raw string) string {
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	if len(lines) == 0 {
		return strings.TrimSpace(raw)
	}
	return strings.TrimSpace(lines[0])
}

func torrentioSize(raw string) int64 {
	match := reTorrentioSize.FindStringSubmatch(raw)
	if len(match) != 3 {
		return 0
	}
	return parseHumanSize(match[1] + " " + match[2])
}

func torrentioSeeders(raw string) int {
	match := reTorrentioSeeders.FindStringSubmatch(raw)
	if len(match) != 2 {
		return 0
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return 0
	}
	return n
}

func torrentioProvider(raw string) string {
	match := reTorrentioProvider.FindStringSubmatch(raw)
	if len(match) != 2 {
		return ""
	}
	return strings.TrimSpace(match[1])
}

func torrentioTrackers(hints map[string]any) []string {
	raw, ok := hints["openTrackers"]
	if !ok {
		return nil
	}
	arr, ok := raw.([]any)
	if !ok {
		return nil
	}
	trackers := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			trackers = append(trackers, strings.TrimSpace(s))
		}
	}
	return trackers
}
