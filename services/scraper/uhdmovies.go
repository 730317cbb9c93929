package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"streamscout/internal/fetch"
	"streamscout/models"
	"streamscout/utils/filter"
)

const uhdMoviesDefaultBaseURL = "https://uhdmovies.email"

// SIDResolver unwraps a SID anti-bot URL to a final direct URL. HTTP-stream
// adapters only invoke it when lazy loading is disabled; in preview mode the
// SID URL travels inside the candidate payload instead.
type SIDResolver interface {
	ResolveSID(ctx context.Context, sidURL string) (string, error)
}

// UHDMovies scrapes the UHD movie file-hoster site. Each quality block on a
// post page links a SID-protected download; candidates are previews carrying
// the SID URL as their resolution payload.
type UHDMovies struct {
	name     string
	baseURL  string
	client   *fetch.Client
	resolver SIDResolver // nil in preview mode
}

func NewUHDMovies(client *fetch.Client, baseURL, name string, resolver SIDResolver) *UHDMovies {
	if baseURL == "" {
		baseURL = uhdMoviesDefaultBaseURL
	}
	return &UHDMovies{
		name:     strings.TrimSpace(name),
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   client,
		resolver: resolver,
	}
}

func (u *UHDMovies) Name() string {
	if u.name != "" {
		return u.name
	}
	return "uhdmovies"
}

// reSizeBracket matches the "[12.4 GB]" suffix UHD sites append to quality
// headers.
var reSizeBracket = regexp.MustCompile(`\[([\d.,]+\s*[KMGT]B)[^\]]*\]`)

func (u *UHDMovies) Search(ctx context.Context, req SearchRequest) ([]models.Candidate, error) {
	start := time.Now()
	if strings.TrimSpace(req.Title) == "" {
		return nil, nil
	}

	postURL, err := u.findPost(ctx, req)
	if err != nil {
		markTiming(req.LogContext, u.Name(), 0, start)
		return nil, err
	}
	if postURL == "" {
		markTiming(req.LogContext, u.Name(), 0, start)
		return nil, nil
	}

	doc, err := u.fetchDocument(ctx, postURL)
	if err != nil {
		markTiming(req.LogContext, u.Name(), 0, start)
		return nil, err
	}

	var candidates []models.Candidate
	doc.Find("p a[href], h3 a[href], h4 a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if !isSIDLink(href) {
			return
		}
		// The quality header is the nearest preceding heading text.
		heading := headingFor(sel)
		if heading == "" {
			heading = strings.TrimSpace(sel.Text())
		}
		if req.MediaType == "series" && req.EpisodeTag() != "" {
			blockText := strings.ToUpper(heading + " " + sel.Text())
			if !strings.Contains(blockText, req.EpisodeTag()) &&
				!strings.Contains(blockText, fmt.Sprintf("EPISODE %d", req.Episode)) {
				return
			}
		}

		sizeHuman := ""
		if match := reSizeBracket.FindStringSubmatch(heading); match != nil {
			sizeHuman = match[1]
		}
		candidate := models.HTTPStreamCandidate{
			DisplayName:     heading,
			Quality:         models.QualityFromTitle(heading),
			SizeHuman:       sizeHuman,
			SizeBytes:       parseHumanSize(sizeHuman),
			Provider:        "uhdmovies",
			Languages:       filter.DetectLanguages(heading),
			Payload:         map[string]string{"sidUrl": href},
			NeedsResolution: true,
		}
		if u.resolver != nil {
			direct, err := u.resolver.ResolveSID(ctx, href)
			if err != nil || direct == "" {
				log.Printf("[uhdmovies] eager resolve failed for %s: %v", href, err)
				return
			}
			candidate.DirectURL = direct
			candidate.NeedsResolution = false
		}
		candidates = append(candidates, models.NewHTTPStreamCandidate(candidate))
	})

	out := postProcess(candidates, req)
	markTiming(req.LogContext, u.Name(), len(out), start)
	return out, nil
}

// findPost searches the site and picks the first result whose title overlaps
// the requested name and year.
func (u *UHDMovies) findPost(ctx context.Context, req SearchRequest) (string, error) {
	endpoint := fmt.Sprintf("%s/?s=%s", u.baseURL, url.QueryEscape(req.Title))
	doc, err := u.fetchDocument(ctx, endpoint)
	if err != nil {
		return "", err
	}

	var postURL string
	doc.Find("article a[href], h2 a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		title := strings.TrimSpace(sel.Text())
		if title == "" {
			title = strings.TrimSpace(sel.AttrOr("title", ""))
		}
		if href == "" || title == "" {
			return true
		}
		if !matchesStrictTitle(title, req.Title, 0) {
			return true
		}
		if req.Year > 0 && !strings.Contains(title, fmt.Sprint(req.Year)) {
			return true
		}
		postURL = href
		return false
	})
	return postURL, nil
}

func (u *UHDMovies) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	resp, err := u.client.Get(ctx, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("uhdmovies fetch %s: %w", pageURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		fetch.Discard(resp)
		return nil, fmt.Errorf("uhdmovies %s returned %d", pageURL, resp.StatusCode)
	}
	body, err := fetch.ReadBody(resp, 4<<20)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse uhdmovies page: %w", err)
	}
	return doc, nil
}

// isSIDLink recognizes the anti-bot hoster links UHD sites hide downloads
// behind.
func isSIDLink(href string) bool {
	if href == "" {
		return false
	}
	return strings.Contains(href, "sid=") ||
		strings.Contains(href, "unblockedgames") ||
		strings.Contains(href, "driveleech") ||
		strings.Contains(href, "tech.")
}

// headingFor walks back from a link to the closest heading above it.
func headingFor(sel *goquery.Selection) string {
	for parent := sel.Parent(); parent.Length() > 0; parent = parent.Parent() {
		heading := parent.PrevAllFiltered("h1,h2,h3,h4,h5").First()
		if heading.Length() > 0 {
			return strings.TrimSpace(heading.Text())
		}
	}
	return ""
}
