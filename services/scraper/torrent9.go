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

const torrent9DefaultBaseURL = "https://www.torrent9.fm"

// Torrent9 scrapes the French tracker. Same two-hop shape as the other HTML
// trackers: listing rows, then magnet extraction from batched detail pages.
type Torrent9 struct {
	name    string
	baseURL string
	client  *fetch.Client
}

func NewTorrent9(client *fetch.Client, baseURL, name string) *Torrent9 {
	if baseURL == "" {
		baseURL = torrent9DefaultBaseURL
	}
	return &Torrent9{
		name:    strings.TrimSpace(name),
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (t *Torrent9) Name() string {
	if t.name != "" {
		return t.name
	}
	return "torrent9"
}

func (t *Torrent9) Search(ctx context.Context, req SearchRequest) ([]models.Candidate, error) {
	start := time.Now()
	if strings.TrimSpace(req.Query) == "" {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/recherche/%s", t.baseURL, url.PathEscape(req.Query))
	resp, err := t.client.Get(ctx, endpoint, nil)
	if err != nil {
		markTiming(req.LogContext, t.Name(), 0, start)
		return nil, fmt.Errorf("torrent9 search: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		fetch.Discard(resp)
		markTiming(req.LogContext, t.Name(), 0, start)
		return nil, fmt.Errorf("torrent9 returned %d", resp.StatusCode)
	}
	body, err := fetch.ReadBody(resp, 4<<20)
	if err != nil {
		markTiming(req.LogContext, t.Name(), 0, start)
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		markTiming(req.LogContext, t.Name(), 0, start)
		return nil, fmt.Errorf("parse torrent9 page: %w", err)
	}

	type listingRow struct {
		title     string
		sizeBytes int64
		seeders   int
	}
	var urls []string
	byURL := make(map[string]listingRow)
	doc.Find("table tbody tr").Each(func(_ int, sel *goquery.Selection) {
		link := sel.Find("td a[href]").First()
		title := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		if title == "" || href == "" {
			return
		}
		if strings.HasPrefix(href, "/") {
			href = t.baseURL + href
		}
		cells := sel.Find("td")
		urls = append(urls, href)
		byURL[href] = listingRow{
			title:     title,
			sizeBytes: parseHumanSize(cells.Eq(1).Text()),
			seeders:   int(asInt64(strings.TrimSpace(cells.Eq(2).Text()))),
		}
	})

	limit := req.Limit
	if limit <= 0 || limit > 25 {
		limit = 25
	}
	if len(urls) > limit {
		urls = urls[:limit]
	}

	var candidates []models.Candidate
	for _, page := range fetchDetailPages(ctx, t.client, t.Name(), urls) {
		row := byURL[page.URL]
		magnet, _ := page.Doc.Find("a[href^='magnet:']").Attr("href")
		infoHash := hashFromMagnet(magnet)
		if infoHash == "" {
			continue
		}
		langs := filter.DetectLanguages(row.title)
		if len(langs) == 0 {
			langs = []string{"fr"}
		}
		candidates = append(candidates, models.NewTorrentCandidate(models.TorrentCandidate{
			Title:      row.title,
			InfoHash:   infoHash,
			SizeBytes:  row.sizeBytes,
			Seeders:    row.seeders,
			Tracker:    t.Name(),
			Languages:  langs,
			Magnet:     magnet,
			Quality:    models.QualityFromTitle(row.title),
			Attributes: map[string]string{"scraper": "torrent9"},
		}))
	}

	out := postProcess(candidates, req)
	markTiming(req.LogContext, t.Name(), len(out), start)
	return out, nil
}
