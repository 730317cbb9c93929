package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"streamscout/internal/fetch"
	"streamscout/models"
	"streamscout/utils/filter"
)

const snowflDefaultBaseURL = "https://snowfl.com"

// Snowfl queries the snowfl meta-search. The API path is guarded by a token
// embedded in the site's bundled script, so each search first scrapes the
// token, then issues the JSON query.
type Snowfl struct {
	name    string
	baseURL string
	client  *fetch.Client
}

func NewSnowfl(client *fetch.Client, baseURL, name string) *Snowfl {
	if baseURL == "" {
		baseURL = snowflDefaultBaseURL
	}
	return &Snowfl{
		name:    strings.TrimSpace(name),
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (s *Snowfl) Name() string {
	if s.name != "" {
		return s.name
	}
	return "snowfl"
}

var (
	reSnowflBundle = regexp.MustCompile(`src="(b\.min\.js\?v=[^"]+)"`)
	reSnowflToken  = regexp.MustCompile(`"([a-zA-Z0-9]{30,40})"\s*\+\s*"/"\s*\+`)
)

func (s *Snowfl) Search(ctx context.Context, req SearchRequest) ([]models.Candidate, error) {
	start := time.Now()
	if strings.TrimSpace(req.Query) == "" {
		return nil, nil
	}

	token, err := s.fetchToken(ctx)
	if err != nil {
		markTiming(req.LogContext, s.Name(), 0, start)
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/%s/%s/x/0/SEED/NONE/1", s.baseURL, token, url.PathEscape(req.Query))
	resp, err := s.client.Get(ctx, endpoint, nil)
	if err != nil {
		markTiming(req.LogContext, s.Name(), 0, start)
		return nil, fmt.Errorf("snowfl search: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		fetch.Discard(resp)
		markTiming(req.LogContext, s.Name(), 0, start)
		return nil, fmt.Errorf("snowfl returned %d", resp.StatusCode)
	}
	body, err := fetch.ReadBody(resp, 8<<20)
	if err != nil {
		markTiming(req.LogContext, s.Name(), 0, start)
		return nil, err
	}

	var rows []struct {
		Name   string `json:"name"`
		Magnet string `json:"magnet"`
		Size   string `json:"size"`
		Seeder int    `json:"seeder"`
		Site   string `json:"site"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		markTiming(req.LogContext, s.Name(), 0, start)
		return nil, fmt.Errorf("decode snowfl response: %w", err)
	}

	candidates := make([]models.Candidate, 0, len(rows))
	for _, row := range rows {
		infoHash := hashFromMagnet(row.Magnet)
		if infoHash == "" {
			continue
		}
		tracker := s.Name()
		if row.Site != "" {
			tracker = s.Name() + " | " + row.Site
		}
		candidates = append(candidates, models.NewTorrentCandidate(models.TorrentCandidate{
			Title:      row.Name,
			InfoHash:   infoHash,
			SizeBytes:  parseHumanSize(row.Size),
			Seeders:    row.Seeder,
			Tracker:    tracker,
			Languages:  filter.DetectLanguages(row.Name),
			Magnet:     row.Magnet,
			Quality:    models.QualityFromTitle(row.Name),
			Attributes: map[string]string{"scraper": "snowfl"},
		}))
	}

	out := postProcess(candidates, req)
	markTiming(req.LogContext, s.Name(), len(out), start)
	return out, nil
}

func (s *Snowfl) fetchToken(ctx context.Context) (string, error) {
	resp, err := s.client.Get(ctx, s.baseURL, nil)
	if err != nil {
		return "", fmt.Errorf("snowfl home: %w", err)
	}
	home, err := fetch.ReadBody(resp, 2<<20)
	if err != nil {
		return "", err
	}
	match := reSnowflBundle.FindSubmatch(home)
	if match == nil {
		return "", fmt.Errorf("snowfl bundle script not found")
	}

	resp, err = s.client.Get(ctx, s.baseURL+"/"+string(match[1]), nil)
	if err != nil {
		return "", fmt.Errorf("snowfl bundle: %w", err)
	}
	bundle, err := fetch.ReadBody(resp, 4<<20)
	if err != nil {
		return "", err
	}
	tokenMatch := reSnowflToken.FindSubmatch(bundle)
	if tokenMatch == nil {
		return "", fmt.Errorf("snowfl api token not found in bundle")
	}
	return string(tokenMatch[1]), nil
}
