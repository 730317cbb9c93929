package scraper

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"streamscout/internal/fetch"
	"streamscout/models"
	"streamscout/utils/filter"
)

const wolfmax4kDefaultBaseURL = "https://wolfmax4k.com"

// Wolfmax4K scrapes the Spanish 4K release site. The site exposes no real
// info hashes; every candidate carries a synthetic one derived from its
// detail URL and is flagged so availability checks skip it.
type Wolfmax4K struct {
	name    string
	baseURL string
	client  *fetch.Client
}

func NewWolfmax4K(client *fetch.Client, baseURL, name string) *Wolfmax4K {
	if baseURL == "" {
		baseURL = wolfmax4kDefaultBaseURL
	}
	return &Wolfmax4K{
		name:    strings.TrimSpace(name),
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (w *Wolfmax4K) Name() string {
	if w.name != "" {
		return w.name
	}
	return "wolfmax4k"
}

func (w *Wolfmax4K) Search(ctx context.Context, req SearchRequest) ([]models.Candidate, error) {
	start := time.Now()
	if strings.TrimSpace(req.Title) == "" {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/?s=%s", w.baseURL, url.QueryEscape(req.Title))
	resp, err := w.client.Get(ctx, endpoint, nil)
	if err != nil {
		markTiming(req.LogContext, w.Name(), 0, start)
		return nil, fmt.Errorf("wolfmax4k search: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		fetch.Discard(resp)
		markTiming(req.LogContext, w.Name(), 0, start)
		return nil, fmt.Errorf("wolfmax4k returned %d", resp.StatusCode)
	}
	body, err := fetch.ReadBody(resp, 8<<20)
	if err != nil {
		markTiming(req.LogContext, w.Name(), 0, start)
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		markTiming(req.LogContext, w.Name(), 0, start)
		return nil, fmt.Errorf("parse wolfmax4k page: %w", err)
	}

	var candidates []models.Candidate
	doc.Find("article a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		title := strings.TrimSpace(sel.Text())
		if title == "" {
			title = strings.TrimSpace(sel.AttrOr("title", ""))
		}
		if href == "" || title == "" {
			return
		}
		if req.MediaType == "series" && req.EpisodeTag() != "" &&
			!strings.Contains(strings.ToUpper(title), req.EpisodeTag()) &&
			!strings.Contains(strings.ToUpper(title), fmt.Sprintf("TEMPORADA %d", req.Season)) {
			return
		}
		langs := filter.DetectLanguages(title)
		if len(langs) == 0 {
			// Site is Spanish-language; titles rarely say so explicitly.
			langs = []string{"es"}
		}
		candidates = append(candidates, models.NewTorrentCandidate(models.TorrentCandidate{
			Title:         title,
			InfoHash:      syntheticHash("wolfmax4k:" + href),
			SyntheticHash: true,
			Tracker:       w.Name(),
			Languages:     langs,
			Quality:       models.QualityFromTitle(title),
			Attributes:    map[string]string{"scraper": "wolfmax4k", "detailUrl": href},
		}))
	})

	out := postProcess(candidates, req)
	markTiming(req.LogContext, w.Name(), len(out), start)
	return out, nil
}
