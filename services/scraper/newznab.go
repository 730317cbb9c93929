package scraper

import (
	"context"
	"encoding/xml"
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

// Newznab queries a newznab usenet indexer. Results become NZB candidates;
// on click the usenet controller fetches the NZB and drives the downloader.
type Newznab struct {
	name    string
	baseURL string
	apiKey  string
	client  *fetch.Client
}

func NewNewznab(client *fetch.Client, baseURL, apiKey, name string) *Newznab {
	return &Newznab{
		name:    strings.TrimSpace(name),
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

func (n *Newznab) Name() string {
	if n.name != "" {
		return n.name
	}
	return "newznab"
}

func (n *Newznab) Search(ctx context.Context, req SearchRequest) ([]models.Candidate, error) {
	start := time.Now()
	if n.baseURL == "" || strings.TrimSpace(req.Title) == "" {
		return nil, nil
	}

	params := url.Values{}
	params.Set("apikey", n.apiKey)
	params.Set("o", "xml")
	if req.MediaType == "series" && req.Season > 0 && req.Episode > 0 {
		params.Set("t", "tvsearch")
		params.Set("q", req.Title)
		params.Set("season", strconv.Itoa(req.Season))
		params.Set("ep", strconv.Itoa(req.Episode))
		params.Set("cat", "5000")
	} else {
		params.Set("t", "movie")
		query := req.Title
		if req.Year > 0 {
			query = fmt.Sprintf("%s %d", req.Title, req.Year)
		}
		params.Set("q", query)
		params.Set("cat", "2000")
	}

	resp, err := n.client.Get(ctx, n.baseURL+"/api?"+params.Encode(), nil)
	if err != nil {
		markTiming(req.LogContext, n.Name(), 0, start)
		return nil, fmt.Errorf("newznab request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		fetch.Discard(resp)
		markTiming(req.LogContext, n.Name(), 0, start)
		return nil, fmt.Errorf("newznab returned %d", resp.StatusCode)
	}
	body, err := fetch.ReadBody(resp, 16<<20)
	if err != nil {
		markTiming(req.LogContext, n.Name(), 0, start)
		return nil, err
	}

	var rss torznabRSS
	if err := xml.Unmarshal(body, &rss); err != nil {
		markTiming(req.LogContext, n.Name(), 0, start)
		return nil, fmt.Errorf("parse newznab xml: %w", err)
	}

	candidates := make([]models.Candidate, 0, len(rss.Channel.Items))
	for _, item := range rss.Channel.Items {
		downloadURL := item.Link
		if downloadURL == "" {
			downloadURL = item.Enclosure.URL
		}
		if item.Title == "" || downloadURL == "" {
			continue
		}
		size := item.Size
		if size == 0 {
			size = item.Enclosure.Length
		}
		guid := item.GUID
		if guid == "" {
			guid = downloadURL
		}
		candidates = append(candidates, models.NewNZBCandidate(models.NZBCandidate{
			Title:       item.Title,
			GUID:        guid,
			DownloadURL: downloadURL,
			SizeBytes:   size,
			Indexer:     n.Name(),
			Languages:   filter.DetectLanguages(item.Title),
			Quality:     models.QualityFromTitle(item.Title),
		}))
	}

	out := postProcess(candidates, req)
	markTiming(req.LogContext, n.Name(), len(out), start)
	return out, nil
}
