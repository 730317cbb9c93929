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

const bludvDefaultBaseURL = "https://bludv.xyz"

// BluDV scrapes the Brazilian release site. Search results link post pages;
// each post carries one or more magnets (per quality). Posts are fetched in
// parallel batches of five.
type BluDV struct {
	name    string
	baseURL string
	client  *fetch.Client
}

func NewBluDV(client *fetch.Client, baseURL, name string) *BluDV {
	if baseURL == "" {
		baseURL = bludvDefaultBaseURL
	}
	return &BluDV{
		name:    strings.TrimSpace(name),
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (b *BluDV) Name() string {
	if b.name != "" {
		return b.name
	}
	return "bludv"
}

func (b *BluDV) Search(ctx context.Context, req SearchRequest) ([]models.Candidate, error) {
	start := time.Now()
	if strings.TrimSpace(req.Title) == "" {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/?s=%s", b.baseURL, url.QueryEscape(req.Title))
	resp, err := b.client.Get(ctx, endpoint, nil)
	if err != nil {
		markTiming(req.LogContext, b.Name(), 0, start)
		return nil, fmt.Errorf("bludv search: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		fetch.Discard(resp)
		markTiming(req.LogContext, b.Name(), 0, start)
		return nil, fmt.Errorf("bludv returned %d", resp.StatusCode)
	}
	body, err := fetch.ReadBody(resp, 4<<20)
	if err != nil {
		markTiming(req.LogContext, b.Name(), 0, start)
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		markTiming(req.LogContext, b.Name(), 0, start)
		return nil, fmt.Errorf("parse bludv page: %w", err)
	}

	var urls []string
	seen := make(map[string]bool)
	doc.Find("div.post a[href], article a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if href == "" || !strings.Contains(href, b.hostPart()) || seen[href] {
			return
		}
		seen[href] = true
		urls = append(urls, href)
	})
	if len(urls) > 10 {
		urls = urls[:10]
	}

	var candidates []models.Candidate
	for _, page := range fetchDetailPages(ctx, b.client, b.Name(), urls) {
		postTitle := strings.TrimSpace(page.Doc.Find("h1").First().Text())
		page.Doc.Find("a[href^='magnet:']").Each(func(_ int, sel *goquery.Selection) {
			magnet, _ := sel.Attr("href")
			infoHash := hashFromMagnet(magnet)
			if infoHash == "" {
				return
			}
			title := magnetDisplayName(magnet)
			if title == "" {
				title = postTitle
			}
			if title == "" {
				return
			}
			langs := filter.DetectLanguages(title + " " + postTitle)
			if len(langs) == 0 {
				langs = []string{"pt"}
			}
			candidates = append(candidates, models.NewTorrentCandidate(models.TorrentCandidate{
				Title:      title,
				InfoHash:   infoHash,
				Tracker:    b.Name(),
				Languages:  langs,
				Magnet:     magnet,
				Quality:    models.QualityFromTitle(title + " " + postTitle),
				Attributes: map[string]string{"scraper": "bludv"},
			}))
		})
	}

	out := postProcess(candidates, req)
	markTiming(req.LogContext, b.Name(), len(out), start)
	return out, nil
}

func (b *BluDV) hostPart() string {
	u, err := url.Parse(b.baseURL)
	if err != nil || u.Host == "" {
		return b.baseURL
	}
	return u.Host
}

// magnetDisplayName pulls the dn parameter out of a magnet URI.
func magnetDisplayName(magnet string) string {
	u, err := url.Parse(magnet)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(u.Query().Get("dn"))
}
