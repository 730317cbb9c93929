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

const ilCorsaroNeroDefaultBaseURL = "https://ilcorsaronero.link"

// IlCorsaroNero scrapes the Italian tracker. The listing carries title, size
// and seeders; magnets live on detail pages fetched in parallel batches.
type IlCorsaroNero struct {
	name    string
	baseURL string
	client  *fetch.Client
}

func NewIlCorsaroNero(client *fetch.Client, baseURL, name string) *IlCorsaroNero {
	if baseURL == "" {
		baseURL = ilCorsaroNeroDefaultBaseURL
	}
	return &IlCorsaroNero{
		name:    strings.TrimSpace(name),
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (i *IlCorsaroNero) Name() string {
	if i.name != "" {
		return i.name
	}
	return "ilcorsaronero"
}

type corsaroRow struct {
	title     string
	detailURL string
	sizeBytes int64
	seeders   int
}

func (i *IlCorsaroNero) Search(ctx context.Context, req SearchRequest) ([]models.Candidate, error) {
	start := time.Now()
	if strings.TrimSpace(req.Query) == "" {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/search?q=%s", i.baseURL, url.QueryEscape(req.Query))
	resp, err := i.client.Get(ctx, endpoint, nil)
	if err != nil {
		markTiming(req.LogContext, i.Name(), 0, start)
		return nil, fmt.Errorf("ilcorsaronero search: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		fetch.Discard(resp)
		markTiming(req.LogContext, i.Name(), 0, start)
		return nil, fmt.Errorf("ilcorsaronero returned %d", resp.StatusCode)
	}
	body, err := fetch.ReadBody(resp, 4<<20)
	if err != nil {
		markTiming(req.LogContext, i.Name(), 0, start)
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		markTiming(req.LogContext, i.Name(), 0, start)
		return nil, fmt.Errorf("parse ilcorsaronero page: %w", err)
	}

	var rows []corsaroRow
	doc.Find("table tbody tr").Each(func(_ int, sel *goquery.Selection) {
		link := sel.Find("a[href]").First()
		title := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		if title == "" || href == "" {
			return
		}
		if strings.HasPrefix(href, "/") {
			href = i.baseURL + href
		}
		cells := sel.Find("td")
		rows = append(rows, corsaroRow{
			title:     title,
			detailURL: href,
			sizeBytes: parseHumanSize(cells.Eq(2).Text()),
			seeders:   int(asInt64(strings.TrimSpace(cells.Eq(4).Text()))),
		})
	})

	limit := req.Limit
	if limit <= 0 || limit > 25 {
		limit = 25
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}

	urls := make([]string, len(rows))
	byURL := make(map[string]corsaroRow, len(rows))
	for idx, row := range rows {
		urls[idx] = row.detailURL
		byURL[row.detailURL] = row
	}

	var candidates []models.Candidate
	for _, page := range fetchDetailPages(ctx, i.client, i.Name(), urls) {
		row := byURL[page.URL]
		magnet, _ := page.Doc.Find("a[href^='magnet:']").Attr("href")
		infoHash := hashFromMagnet(magnet)
		if infoHash == "" {
			continue
		}
		langs := filter.DetectLanguages(row.title)
		if len(langs) == 0 {
			langs = []string{"it"}
		}
		candidates = append(candidates, models.NewTorrentCandidate(models.TorrentCandidate{
			Title:      row.title,
			InfoHash:   infoHash,
			SizeBytes:  row.sizeBytes,
			Seeders:    row.seeders,
			Tracker:    i.Name(),
			Languages:  langs,
			Magnet:     magnet,
			Quality:    models.QualityFromTitle(row.title),
			Attributes: map[string]string{"scraper": "ilcorsaronero"},
		}))
	}

	out := postProcess(candidates, req)
	markTiming(req.LogContext, i.Name(), len(out), start)
	return out, nil
}
