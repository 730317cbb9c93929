package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"streamscout/internal/fetch"
	"streamscout/models"
	"streamscout/utils/filter"
)

// Zilean queries a Zilean instance's DMM filtered API. Zilean is the one
// torrent source that returns a native language list, so title detection is
// only a fallback here.
type Zilean struct {
	name    string
	baseURL string
	client  *fetch.Client
}

func NewZilean(client *fetch.Client, baseURL, name string) *Zilean {
	return &Zilean{
		name:    strings.TrimSpace(name),
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (z *Zilean) Name() string {
	if z.name != "" {
		return z.name
	}
	return "zilean"
}

func (z *Zilean) Search(ctx context.Context, req SearchRequest) ([]models.Candidate, error) {
	start := time.Now()
	if strings.TrimSpace(req.Title) == "" {
		return nil, nil
	}

	params := url.Values{}
	params.Set("Query", req.Title)
	if req.MediaType == "series" && req.Season > 0 {
		params.Set("Season", strconv.Itoa(req.Season))
		if req.Episode > 0 {
			params.Set("Episode", strconv.Itoa(req.Episode))
		}
	} else if req.Year > 0 {
		params.Set("Year", strconv.Itoa(req.Year))
	}

	apiURL := fmt.Sprintf("%s/dmm/filtered?%s", z.baseURL, params.Encode())
	resp, err := z.client.Get(ctx, apiURL, map[string]string{"Accept": "application/json"})
	if err != nil {
		markTiming(req.LogContext, z.Name(), 0, start)
		return nil, fmt.Errorf("zilean request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		fetch.Discard(resp)
		markTiming(req.LogContext, z.Name(), 0, start)
		return nil, fmt.Errorf("zilean returned %d", resp.StatusCode)
	}
	body, err := fetch.ReadBody(resp, 16<<20)
	if err != nil {
		markTiming(req.LogContext, z.Name(), 0, start)
		return nil, err
	}

	var items []struct {
		RawTitle  string   `json:"raw_title"`
		Size      any      `json:"size"`
		InfoHash  string   `json:"info_hash"`
		Languages []string `json:"languages"`
	}
	if err := json.Unmarshal(body, &items); err != nil {
		markTiming(req.LogContext, z.Name(), 0, start)
		return nil, fmt.Errorf("parse zilean response: %w", err)
	}

	candidates := make([]models.Candidate, 0, len(items))
	for _, item := range items {
		infoHash := normalizeHash(item.InfoHash)
		if infoHash == "" {
			continue
		}
		candidates = append(candidates, models.NewTorrentCandidate(models.TorrentCandidate{
			Title:      item.RawTitle,
			InfoHash:   infoHash,
			SizeBytes:  asInt64(item.Size),
			Tracker:    z.Name(),
			Languages:  normalizeZileanLanguages(item.Languages, item.RawTitle),
			Magnet:     buildMagnet(infoHash, item.RawTitle, nil),
			Quality:    models.QualityFromTitle(item.RawTitle),
			Attributes: map[string]string{"scraper": "zilean"},
		}))
	}

	out := postProcess(candidates, req)
	markTiming(req.LogContext, z.Name(), len(out), start)
	return out, nil
}

func normalizeZileanLanguages(native []string, title string) []string {
	out := make([]string, 0, len(native))
	seen := make(map[string]bool, len(native))
	for _, lang := range native {
		lang = strings.ToLower(strings.TrimSpace(lang))
		if len(lang) > 2 {
			lang = lang[:2]
		}
		if lang == "" || seen[lang] {
			continue
		}
		seen[lang] = true
		out = append(out, lang)
	}
	if len(out) > 0 {
		return out
	}
	return filter.DetectLanguages(title)
}
