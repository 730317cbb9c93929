package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"streamscout/internal/fetch"
	"streamscout/models"
	"streamscout/utils/filter"
)

const moviesDriveDefaultBaseURL = "https://moviesdrive.world"

// MoviesDrive scrapes the MoviesDrive file-hoster site. Structure mirrors
// UHDMovies: search listing, post page, SID-protected quality links emitted
// as preview candidates.
type MoviesDrive struct {
	name     string
	baseURL  string
	client   *fetch.Client
	resolver SIDResolver
}

func NewMoviesDrive(client *fetch.Client, baseURL, name string, resolver SIDResolver) *MoviesDrive {
	if baseURL == "" {
		baseURL = moviesDriveDefaultBaseURL
	}
	return &MoviesDrive{
		name:     strings.TrimSpace(name),
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   client,
		resolver: resolver,
	}
}

func (m *MoviesDrive) Name() string {
	if m.name != "" {
		return m.name
	}
	return "moviesdrive"
}

func (m *MoviesDrive) Search(ctx context.Context, req SearchRequest) ([]models.Candidate, error) {
	start := time.Now()
	if strings.TrimSpace(req.Title) == "" {
		return nil, nil
	}

	searchURL := fmt.Sprintf("%s/?s=%s", m.baseURL, url.QueryEscape(req.Title))
	doc, err := m.fetchDocument(ctx, searchURL)
	if err != nil {
		markTiming(req.LogContext, m.Name(), 0, start)
		return nil, err
	}

	var postURL string
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		title := strings.TrimSpace(sel.AttrOr("title", sel.Text()))
		if href == "" || title == "" || !strings.Contains(href, m.baseURL) {
			return true
		}
		if !matchesStrictTitle(title, req.Title, 0) {
			return true
		}
		postURL = href
		return false
	})
	if postURL == "" {
		markTiming(req.LogContext, m.Name(), 0, start)
		return nil, nil
	}

	postDoc, err := m.fetchDocument(ctx, postURL)
	if err != nil {
		markTiming(req.LogContext, m.Name(), 0, start)
		return nil, err
	}

	var candidates []models.Candidate
	postDoc.Find("h5 a[href], p a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if !isSIDLink(href) {
			return
		}
		label := headingFor(sel)
		if label == "" {
			label = strings.TrimSpace(sel.Text())
		}
		if label == "" {
			return
		}
		if req.MediaType == "series" && req.EpisodeTag() != "" {
			blockText := strings.ToUpper(label + " " + sel.Text())
			if !strings.Contains(blockText, req.EpisodeTag()) &&
				!strings.Contains(blockText, fmt.Sprintf("EPISODE %d", req.Episode)) {
				return
			}
		}
		sizeHuman := ""
		if match := reSizeBracket.FindStringSubmatch(label); match != nil {
			sizeHuman = match[1]
		}
		candidate := models.HTTPStreamCandidate{
			DisplayName:     label,
			Quality:         models.QualityFromTitle(label),
			SizeHuman:       sizeHuman,
			SizeBytes:       parseHumanSize(sizeHuman),
			Provider:        "moviesdrive",
			Languages:       filter.DetectLanguages(label),
			Payload:         map[string]string{"sidUrl": href},
			NeedsResolution: true,
		}
		if m.resolver != nil {
			direct, err := m.resolver.ResolveSID(ctx, href)
			if err != nil || direct == "" {
				log.Printf("[moviesdrive] eager resolve failed for %s: %v", href, err)
				return
			}
			candidate.DirectURL = direct
			candidate.NeedsResolution = false
		}
		candidates = append(candidates, models.NewHTTPStreamCandidate(candidate))
	})

	out := postProcess(candidates, req)
	markTiming(req.LogContext, m.Name(), len(out), start)
	return out, nil
}

func (m *MoviesDrive) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	resp, err := m.client.Get(ctx, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("moviesdrive fetch %s: %w", pageURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		fetch.Discard(resp)
		return nil, fmt.Errorf("moviesdrive %s returned %d", pageURL, resp.StatusCode)
	}
	body, err := fetch.ReadBody(resp, 4<<20)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse moviesdrive page: %w", err)
	}
	return doc, nil
}
