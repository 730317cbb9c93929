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

// MagnetDL queries a MagnetDL JSON mirror. Rows usually carry the hash
// directly; when only the row id is known the hash is synthesized from it
// and flagged so it never reaches availability checks.
type MagnetDL struct {
	name    string
	baseURL string
	client  *fetch.Client
}

func NewMagnetDL(client *fetch.Client, baseURL, name string) *MagnetDL {
	return &MagnetDL{
		name:    strings.TrimSpace(name),
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (m *MagnetDL) Name() string {
	if m.name != "" {
		return m.name
	}
	return "magnetdl"
}

func (m *MagnetDL) Search(ctx context.Context, req SearchRequest) ([]models.Candidate, error) {
	start := time.Now()
	if m.baseURL == "" || strings.TrimSpace(req.Query) == "" {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/api.php?url=/q.php?q=%s", m.baseURL, url.QueryEscape(req.Query))
	resp, err := m.client.Get(ctx, endpoint, nil)
	if err != nil {
		markTiming(req.LogContext, m.Name(), 0, start)
		return nil, fmt.Errorf("magnetdl request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		fetch.Discard(resp)
		markTiming(req.LogContext, m.Name(), 0, start)
		return nil, fmt.Errorf("magnetdl returned %d", resp.StatusCode)
	}
	body, err := fetch.ReadBody(resp, 8<<20)
	if err != nil {
		markTiming(req.LogContext, m.Name(), 0, start)
		return nil, err
	}

	var rows []struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		InfoHash string `json:"info_hash"`
		Size     any    `json:"size"`
		Seeders  any    `json:"seeders"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		markTiming(req.LogContext, m.Name(), 0, start)
		return nil, fmt.Errorf("decode magnetdl response: %w", err)
	}

	candidates := make([]models.Candidate, 0, len(rows))
	for _, row := range rows {
		// The mirror returns a single placeholder row on no results.
		if row.ID == "0" || strings.EqualFold(row.Name, "no results returned") {
			continue
		}
		if req.MediaType == "movie" && !matchesStrictTitle(row.Name, req.Title, req.Year) {
			continue
		}
		infoHash := normalizeHash(row.InfoHash)
		synthetic := false
		if infoHash == "" && row.ID != "" {
			infoHash = syntheticHash(m.Name() + ":" + row.ID)
			synthetic = true
		}
		if infoHash == "" {
			continue
		}
		size := asInt64(row.Size)
		if size == 0 {
			if s, ok := row.Size.(string); ok {
				size, _ = strconv.ParseInt(s, 10, 64)
			}
		}
		candidates = append(candidates, models.NewTorrentCandidate(models.TorrentCandidate{
			Title:         row.Name,
			InfoHash:      infoHash,
			SyntheticHash: synthetic,
			SizeBytes:     size,
			Seeders:       int(asInt64(row.Seeders)),
			Tracker:       m.Name(),
			Languages:     filter.DetectLanguages(row.Name),
			Magnet:        buildMagnet(infoHash, row.Name, nil),
			Quality:       models.QualityFromTitle(row.Name),
			Attributes:    map[string]string{"scraper": "magnetdl"},
		}))
	}

	out := postProcess(candidates, req)
	markTiming(req.LogContext, m.Name(), len(out), start)
	return out, nil
}
