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
	"streamscout/utils/similarity"
)

// HomeMedia searches the user's own media server. Matching is fuzzy: file
// and folder names rarely equal the canonical title, so word overlap plus a
// year window decides movie matches, and an exact SxxExx plus a looser
// overlap decides episodes.
type HomeMedia struct {
	name    string
	baseURL string
	apiKey  string
	client  *fetch.Client
}

func NewHomeMedia(client *fetch.Client, baseURL, apiKey, name string) *HomeMedia {
	return &HomeMedia{
		name:    strings.TrimSpace(name),
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

func (h *HomeMedia) Name() string {
	if h.name != "" {
		return h.name
	}
	return "homemedia"
}

const (
	movieOverlapThreshold  = 0.6
	seriesOverlapThreshold = 0.4
)

var reFileEpisode = regexp.MustCompile(`(?i)\bs(\d{1,2})\s*e(\d{1,3})\b`)
var reFileYear = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)

type homeMediaFile struct {
	Name       string `json:"name"`
	FolderName string `json:"folderName"`
	Path       string `json:"path"`
	FlatPath   string `json:"flatPath"`
	Size       int64  `json:"size"`
	IsComplete bool   `json:"isComplete"`
}

func (h *HomeMedia) Search(ctx context.Context, req SearchRequest) ([]models.Candidate, error) {
	start := time.Now()
	if h.baseURL == "" || strings.TrimSpace(req.Title) == "" {
		return nil, nil
	}

	var headers map[string]string
	if h.apiKey != "" {
		headers = map[string]string{"X-API-Key": h.apiKey}
	}
	resp, err := h.client.Get(ctx, h.baseURL+"/api/list", headers)
	if err != nil {
		markTiming(req.LogContext, h.Name(), 0, start)
		return nil, fmt.Errorf("homemedia list: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		fetch.Discard(resp)
		markTiming(req.LogContext, h.Name(), 0, start)
		return nil, fmt.Errorf("homemedia returned %d", resp.StatusCode)
	}
	body, err := fetch.ReadBody(resp, 32<<20)
	if err != nil {
		markTiming(req.LogContext, h.Name(), 0, start)
		return nil, err
	}

	var payload struct {
		Files []homeMediaFile `json:"files"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		markTiming(req.LogContext, h.Name(), 0, start)
		return nil, fmt.Errorf("decode homemedia list: %w", err)
	}

	var candidates []models.Candidate
	for _, file := range payload.Files {
		if !file.IsComplete || file.FlatPath == "" {
			continue
		}
		if !h.matches(file, req) {
			continue
		}
		display := file.Name
		if display == "" {
			display = file.FolderName
		}
		streamURL := h.baseURL + "/" + strings.TrimPrefix(file.FlatPath, "/")
		if h.apiKey != "" {
			streamURL += "?key=" + url.QueryEscape(h.apiKey)
		}
		candidates = append(candidates, models.NewHTTPStreamCandidate(models.HTTPStreamCandidate{
			DisplayName:     display,
			Quality:         models.QualityFromTitle(display),
			SizeHuman:       humanSize(file.Size),
			SizeBytes:       file.Size,
			Provider:        "homemedia",
			Languages:       filter.DetectLanguages(display),
			Payload:         map[string]string{"path": file.Path},
			NeedsResolution: false,
			DirectURL:       streamURL,
		}))
	}

	out := postProcess(candidates, req)
	markTiming(req.LogContext, h.Name(), len(out), start)
	return out, nil
}

func (h *HomeMedia) matches(file homeMediaFile, req SearchRequest) bool {
	combined := file.FolderName + " " + file.Name

	if req.MediaType == "series" && req.Season > 0 && req.Episode > 0 {
		match := reFileEpisode.FindStringSubmatch(combined)
		if match == nil {
			return false
		}
		season, _ := strconv.Atoi(match[1])
		episode, _ := strconv.Atoi(match[2])
		if season != req.Season || episode != req.Episode {
			return false
		}
		return similarity.WordOverlap(req.Title, combined) >= seriesOverlapThreshold
	}

	if similarity.WordOverlap(req.Title, combined) < movieOverlapThreshold {
		return false
	}
	if req.Year > 0 {
		if match := reFileYear.FindString(combined); match != "" {
			year, _ := strconv.Atoi(match)
			if year < req.Year-1 || year > req.Year+1 {
				return false
			}
		}
	}
	return true
}
