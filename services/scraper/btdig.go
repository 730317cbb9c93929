package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"streamscout/internal/fetch"
	"streamscout/models"
	"streamscout/utils/filter"
)

const (
	btdigDefaultBaseURL = "https://btdig.com"
	btdigPageBatchSize  = 2
	btdigPageDelay      = time.Second
)

// btdigUserAgents rotate per request; BTDigg rate-limits repeat agents hard.
var btdigUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:132.0) Gecko/20100101 Firefox/132.0",
}

// BTDig scrapes the BTDigg DHT search engine. Pages are fetched in batches
// of two with a one second gap, inter-request jitter, a persistent cookie
// session, and rotating user agents. A CAPTCHA interstitial aborts the
// search without retrying.
type BTDig struct {
	name     string
	baseURL  string
	maxPages int
	client   *fetch.Client
	session  *fetch.Session
}

func NewBTDig(client *fetch.Client, session *fetch.Session, baseURL, name string, maxPages int) *BTDig {
	if baseURL == "" {
		baseURL = btdigDefaultBaseURL
	}
	if maxPages <= 0 {
		maxPages = 2
	}
	return &BTDig{
		name:     strings.TrimSpace(name),
		baseURL:  strings.TrimRight(baseURL, "/"),
		maxPages: maxPages,
		client:   client,
		session:  session,
	}
}

func (b *BTDig) Name() string {
	if b.name != "" {
		return b.name
	}
	return "btdig"
}

func (b *BTDig) Search(ctx context.Context, req SearchRequest) ([]models.Candidate, error) {
	start := time.Now()
	if strings.TrimSpace(req.Query) == "" {
		return nil, nil
	}

	var candidates []models.Candidate
	for page := 0; page < b.maxPages; page++ {
		if ctx.Err() != nil {
			break
		}
		if page > 0 && page%btdigPageBatchSize == 0 {
			select {
			case <-ctx.Done():
				break
			case <-time.After(btdigPageDelay):
			}
		} else if page > 0 {
			jitter(ctx, 200*time.Millisecond, 600*time.Millisecond)
		}

		pageCandidates, stop, err := b.fetchPage(ctx, req.Query, page)
		if err != nil {
			if page == 0 {
				markTiming(req.LogContext, b.Name(), 0, start)
				return nil, err
			}
			break
		}
		candidates = append(candidates, pageCandidates...)
		if stop || (req.Limit > 0 && len(candidates) >= req.Limit) {
			break
		}
	}

	out := postProcess(candidates, req)
	markTiming(req.LogContext, b.Name(), len(out), start)
	return out, nil
}

// fetchPage returns the page's candidates and whether paging should stop.
func (b *BTDig) fetchPage(ctx context.Context, query string, page int) ([]models.Candidate, bool, error) {
	endpoint := fmt.Sprintf("%s/search?q=%s&p=%d&order=2", b.baseURL, url.QueryEscape(query), page)

	headers := map[string]string{
		"User-Agent": btdigUserAgents[rand.Intn(len(btdigUserAgents))],
	}
	var (
		resp *http.Response
		err  error
	)
	if b.session != nil {
		resp, err = b.session.GetWithHeaders(ctx, endpoint, b.baseURL+"/", headers)
	} else {
		resp, err = b.client.Get(ctx, endpoint, headers)
	}
	if err != nil {
		return nil, true, fmt.Errorf("btdig page %d: %w", page, err)
	}
	if resp.StatusCode != http.StatusOK {
		fetch.Discard(resp)
		return nil, true, fmt.Errorf("btdig page %d returned %d", page, resp.StatusCode)
	}
	body, err := fetch.ReadBody(resp, 4<<20)
	if err != nil {
		return nil, true, err
	}

	lower := strings.ToLower(string(body))
	if strings.Contains(lower, "captcha") || strings.Contains(lower, "unusual traffic") {
		log.Printf("[btdig] bot challenge on page %d, aborting search", page)
		return nil, true, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, true, fmt.Errorf("parse btdig page %d: %w", page, err)
	}

	var candidates []models.Candidate
	doc.Find("div.one_result").Each(func(_ int, sel *goquery.Selection) {
		title := strings.TrimSpace(sel.Find("div.torrent_name").Text())
		magnet, _ := sel.Find("div.torrent_magnet a[href^='magnet:']").Attr("href")
		if magnet == "" {
			magnet, _ = sel.Find("a[href^='magnet:']").Attr("href")
		}
		infoHash := hashFromMagnet(magnet)
		if title == "" || infoHash == "" {
			return
		}
		candidates = append(candidates, models.NewTorrentCandidate(models.TorrentCandidate{
			Title:      title,
			InfoHash:   infoHash,
			SizeBytes:  parseHumanSize(sel.Find("span.torrent_size").Text()),
			Tracker:    b.Name(),
			Languages:  filter.DetectLanguages(title),
			Magnet:     magnet,
			Quality:    models.QualityFromTitle(title),
			Attributes: map[string]string{"scraper": "btdig"},
		}))
	})
	return candidates, len(candidates) == 0, nil
}
