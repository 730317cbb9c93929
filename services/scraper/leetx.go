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

// Leetx queries a 1337x JSON mirror with keyword paging. Hashes come from
// the "h" field when present, otherwise from the magnet link.
type Leetx struct {
	name     string
	baseURL  string
	maxPages int
	client   *fetch.Client
}

func NewLeetx(client *fetch.Client, baseURL, name string, maxPages int) *Leetx {
	if maxPages <= 0 {
		maxPages = 1
	}
	return &Leetx{
		name:     strings.TrimSpace(name),
		baseURL:  strings.TrimRight(baseURL, "/"),
		maxPages: maxPages,
		client:   client,
	}
}

func (l *Leetx) Name() string {
	if l.name != "" {
		return l.name
	}
	return "1337x"
}

type leetxRow struct {
	Name     string `json:"name"`
	Hash     string `json:"h"`
	Magnet   string `json:"magnet"`
	Size     string `json:"size"`
	Seeders  any    `json:"seeders"`
	Leechers any    `json:"leechers"`
}

func (l *Leetx) Search(ctx context.Context, req SearchRequest) ([]models.Candidate, error) {
	start := time.Now()
	if l.baseURL == "" || strings.TrimSpace(req.Query) == "" {
		return nil, nil
	}

	var candidates []models.Candidate
	for page := 1; page <= l.maxPages; page++ {
		rows, err := l.fetchPage(ctx, req.Query, page)
		if err != nil {
			if page == 1 {
				markTiming(req.LogContext, l.Name(), 0, start)
				return nil, err
			}
			break
		}
		if len(rows) == 0 {
			break
		}
		for _, row := range rows {
			if !matchesStrictTitle(row.Name, req.Title, req.Year) && req.MediaType == "movie" {
				continue
			}
			infoHash := normalizeHash(row.Hash)
			if infoHash == "" {
				infoHash = hashFromMagnet(row.Magnet)
			}
			if infoHash == "" {
				continue
			}
			magnet := row.Magnet
			if magnet == "" {
				magnet = buildMagnet(infoHash, row.Name, nil)
			}
			candidates = append(candidates, models.NewTorrentCandidate(models.TorrentCandidate{
				Title:      row.Name,
				InfoHash:   infoHash,
				SizeBytes:  parseHumanSize(row.Size),
				Seeders:    int(asInt64(row.Seeders)),
				Tracker:    l.Name(),
				Languages:  filter.DetectLanguages(row.Name),
				Magnet:     magnet,
				Quality:    models.QualityFromTitle(row.Name),
				Attributes: map[string]string{"scraper": "1337x"},
			}))
		}
		if req.Limit > 0 && len(candidates) >= req.Limit {
			break
		}
	}

	out := postProcess(candidates, req)
	markTiming(req.LogContext, l.Name(), len(out), start)
	return out, nil
}

func (l *Leetx) fetchPage(ctx context.Context, query string, page int) ([]leetxRow, error) {
	endpoint := fmt.Sprintf("%s/api/search?q=%s&page=%s", l.baseURL, url.QueryEscape(query), strconv.Itoa(page))
	resp, err := l.client.Get(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("1337x page %d: %w", page, err)
	}
	if resp.StatusCode != http.StatusOK {
		fetch.Discard(resp)
		return nil, fmt.Errorf("1337x page %d returned %d", page, resp.StatusCode)
	}
	body, err := fetch.ReadBody(resp, 8<<20)
	if err != nil {
		return nil, err
	}
	var rows []leetxRow
	if err := json.Unmarshal(body, &rows); err != nil {
		// Some mirrors wrap the rows in a results envelope.
		var wrapped struct {
			Results []leetxRow `json:"results"`
		}
		if err2 := json.Unmarshal(body, &wrapped); err2 != nil {
			return nil, fmt.Errorf("decode 1337x page %d: %w", page, err)
		}
		rows = wrapped.Results
	}
	return rows, nil
}
