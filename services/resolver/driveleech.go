package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"streamscout/internal/fetch"
)

var (
	reLocationReplace = regexp.MustCompile(`window\.location\.replace\(["']([^"']+)["']\)`)
	reZfileKey        = regexp.MustCompile(`(?:formData\.append\(["']key["']\s*,\s*["']|name=["']key["']\s+value=["'])([^"']+)["']`)
	reVideoCDN        = regexp.MustCompile(`https?://[^\s"'<>]+\.(?:mkv|mp4|avi|m4v)(?:\?[^\s"'<>]*)?`)
	reEmbeddedURL     = regexp.MustCompile(`https?://[^\s"'<>&]+`)
)

// resolveFilePage extracts a downloadable URL from a hoster file page. The
// download options are tried in order of reliability: the resume-cloud
// worker link, the instant-download API, then a raw scan of the page for a
// video CDN URL.
func (s *Service) resolveFilePage(ctx context.Context, pageURL string) (string, error) {
	doc, base, err := s.fetchPage(ctx, pageURL)
	if err != nil {
		return "", err
	}

	// Some file pages are a stub that immediately client-side redirects.
	if html, herr := doc.Html(); herr == nil {
		if m := reLocationReplace.FindStringSubmatch(html); m != nil {
			redirected := absoluteURL(base, m[1])
			log.Printf("[resolver] following script redirect to %s", redirected)
			doc, base, err = s.fetchPage(ctx, redirected)
			if err != nil {
				return "", err
			}
		}
	}

	if link := s.resumeCloudLink(ctx, doc, base); link != "" {
		return link, nil
	}
	if link := s.instantDownloadLink(ctx, doc, base); link != "" {
		return link, nil
	}
	if link := workersLink(doc); link != "" {
		return link, nil
	}
	if html, herr := doc.Html(); herr == nil {
		if m := reVideoCDN.FindString(html); m != "" {
			return m, nil
		}
	}
	return "", fmt.Errorf("no download option found on %s", pageURL)
}

// resumeCloudLink follows the Resume Cloud button. The button either links
// straight to a workers host or to a /zfile/ page that mints the URL from a
// POSTed key.
func (s *Service) resumeCloudLink(ctx context.Context, doc *goquery.Document, base *url.URL) string {
	href := anchorByText(doc, "resume cloud")
	if href == "" {
		href = anchorByHref(doc, "/zfile/")
	}
	if href == "" {
		return ""
	}
	target := absoluteURL(base, href)
	if !strings.Contains(target, "/zfile/") {
		return target
	}

	zdoc, zbase, err := s.fetchPage(ctx, target)
	if err != nil {
		log.Printf("[resolver] zfile page fetch failed: %v", err)
		return ""
	}
	if direct := workersLink(zdoc); direct != "" {
		return direct
	}

	html, err := zdoc.Html()
	if err != nil {
		return ""
	}
	key := reZfileKey.FindStringSubmatch(html)
	if key == nil {
		return ""
	}
	form := url.Values{"key": {key[1]}}
	resp, err := s.client.PostForm(ctx, target, form, map[string]string{"Referer": zbase.String()}, false)
	if err != nil {
		log.Printf("[resolver] zfile key post failed: %v", err)
		return ""
	}
	body, err := fetch.ReadBody(resp, 1<<20)
	if err != nil {
		return ""
	}
	var minted struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &minted); err == nil && minted.URL != "" {
		return minted.URL
	}
	if m := reVideoCDN.Find(body); m != nil {
		return string(m)
	}
	return ""
}

// instantDownloadLink drives the Instant Download API: the button's href
// carries a url query parameter whose value becomes the keys parameter of a
// POST to the host's /api endpoint.
func (s *Service) instantDownloadLink(ctx context.Context, doc *goquery.Document, base *url.URL) string {
	href := anchorByText(doc, "instant download")
	if href == "" {
		return ""
	}
	target, err := url.Parse(absoluteURL(base, href))
	if err != nil {
		return ""
	}
	keys := target.Query().Get("url")
	if keys == "" {
		return ""
	}

	apiURL := target.Scheme + "://" + target.Host + "/api"
	form := url.Values{"keys": {keys}}
	resp, err := s.client.PostForm(ctx, apiURL, form, map[string]string{
		"Referer": target.String(),
		"x-token": target.Host,
	}, false)
	if err != nil {
		log.Printf("[resolver] instant download api failed: %v", err)
		return ""
	}
	body, err := fetch.ReadBody(resp, 1<<20)
	if err != nil {
		return ""
	}
	var result struct {
		Error bool   `json:"error"`
		URL   string `json:"url"`
	}
	if err := json.Unmarshal(body, &result); err != nil || result.Error {
		return ""
	}
	return result.URL
}

// unwrapIntermediate follows one video-leech style hop: these hosts carry
// the real CDN URL either in their url query parameter or embedded in the
// page body.
func (s *Service) unwrapIntermediate(ctx context.Context, rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL, nil
	}
	if !isIntermediateHost(parsed.Host) {
		return rawURL, nil
	}

	if inner := parsed.Query().Get("url"); inner != "" {
		if decoded, derr := url.QueryUnescape(inner); derr == nil {
			return decoded, nil
		}
		return inner, nil
	}

	resp, err := s.client.Get(ctx, rawURL, nil)
	if err != nil {
		return "", err
	}
	body, err := fetch.ReadBody(resp, 2<<20)
	if err != nil {
		return "", err
	}
	if m := reVideoCDN.Find(body); m != nil {
		return string(m), nil
	}
	for _, m := range reEmbeddedURL.FindAll(body, 32) {
		candidate := string(m)
		if u, uerr := url.Parse(candidate); uerr == nil && !isIntermediateHost(u.Host) && strings.Contains(u.Host, ".") {
			if strings.Contains(candidate, "workers.dev") || strings.Contains(u.Path, "/download") {
				return candidate, nil
			}
		}
	}
	return "", fmt.Errorf("no cdn url found behind %s", parsed.Host)
}

func isIntermediateHost(host string) bool {
	host = strings.ToLower(host)
	return host == "video-leech.pro" || host == "cdn.video-leech.pro" || host == "video-seed.pro" ||
		strings.HasSuffix(host, ".video-leech.pro") || strings.HasSuffix(host, ".video-seed.pro")
}

func (s *Service) fetchPage(ctx context.Context, pageURL string) (*goquery.Document, *url.URL, error) {
	resp, err := s.client.Get(ctx, pageURL, nil)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode != 200 {
		fetch.Discard(resp)
		return nil, nil, fmt.Errorf("%s returned %d", pageURL, resp.StatusCode)
	}
	body, err := fetch.ReadBody(resp, 4<<20)
	if err != nil {
		return nil, nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, nil, err
	}
	return doc, base, nil
}

func anchorByText(doc *goquery.Document, needle string) string {
	var href string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if strings.Contains(strings.ToLower(strings.TrimSpace(a.Text())), needle) {
			href, _ = a.Attr("href")
			return false
		}
		return true
	})
	return href
}

func anchorByHref(doc *goquery.Document, needle string) string {
	var href string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		h, _ := a.Attr("href")
		if strings.Contains(h, needle) {
			href = h
			return false
		}
		return true
	})
	return href
}

func workersLink(doc *goquery.Document) string {
	var link string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		h, _ := a.Attr("href")
		if strings.Contains(h, "workers.dev") {
			link = h
			return false
		}
		return true
	})
	return link
}
