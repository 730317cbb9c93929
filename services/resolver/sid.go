package resolver

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
)

const (
	sidMaxAttempts = 3
	sidRetryDelay  = 2 * time.Second
)

var (
	reSIDCookie   = regexp.MustCompile(`s_343\('([^']+)'\s*,\s*'([^']+)'\)`)
	reSIDHref     = regexp.MustCompile(`c\.setAttribute\("href"\s*,\s*"([^"]+)"\)`)
	reMetaRefresh = regexp.MustCompile(`(?i)url\s*=\s*['"]?([^'">\s]+)`)
)

// ResolveSID walks the four-step anti-bot form chain guarding hoster links.
// Each resolution gets its own cookie session; 403/429 responses are retried
// with growing delays.
func (s *Service) ResolveSID(ctx context.Context, sidURL string) (string, error) {
	session, err := fetch.NewSession(s.httpClient, s.chainTimeout)
	if err != nil {
		return "", err
	}
	origin, err := url.Parse(sidURL)
	if err != nil {
		return "", fmt.Errorf("parse sid url: %w", err)
	}

	// Step 0: landing form carries the _wp_http token.
	doc, err := s.sidFetch(ctx, session, sidURL, "")
	if err != nil {
		return "", fmt.Errorf("sid step 0: %w", err)
	}
	action, fields, ok := sidForm(doc, "_wp_http")
	if !ok {
		return "", fmt.Errorf("sid step 0: landing form not found")
	}

	// Step 1: post it back.
	doc, err = s.sidPost(ctx, session, absoluteURL(origin, action), fields, sidURL)
	if err != nil {
		return "", fmt.Errorf("sid step 1: %w", err)
	}

	// Step 2: verification form carries _wp_http2 plus a token.
	action, fields, ok = sidForm(doc, "_wp_http2")
	if !ok {
		return "", fmt.Errorf("sid step 2: verification form not found")
	}
	doc, err = s.sidPost(ctx, session, absoluteURL(origin, action), fields, sidURL)
	if err != nil {
		return "", fmt.Errorf("sid step 2: %w", err)
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	// Step 3: the result page mints a dynamic cookie and a link in inline
	// script; set the cookie, follow the link, read the meta refresh.
	html, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("sid step 3: %w", err)
	}
	cookieMatch := reSIDCookie.FindStringSubmatch(html)
	hrefMatch := reSIDHref.FindStringSubmatch(html)
	if cookieMatch == nil || hrefMatch == nil {
		return "", fmt.Errorf("sid step 3: cookie or link script not found")
	}
	session.SetCookie(origin, cookieMatch[1], cookieMatch[2])

	finalDoc, err := s.sidFetch(ctx, session, absoluteURL(origin, hrefMatch[1]), sidURL)
	if err != nil {
		return "", fmt.Errorf("sid step 3 follow: %w", err)
	}
	content, _ := finalDoc.Find(`meta[http-equiv="refresh" i]`).Attr("content")
	match := reMetaRefresh.FindStringSubmatch(content)
	if match == nil {
		return "", fmt.Errorf("sid step 3: meta refresh not found")
	}
	destination := absoluteURL(origin, match[1])
	log.Printf("[resolver] sid chain resolved to %s", destination)
	return destination, nil
}

// sidFetch GETs a chain page, retrying rate-limit responses.
func (s *Service) sidFetch(ctx context.Context, session *fetch.Session, pageURL, referer string) (*goquery.Document, error) {
	var lastStatus int
	for attempt := 0; attempt < sidMaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(sidRetryDelay * time.Duration(attempt)):
			}
		}
		resp, err := session.Get(ctx, pageURL, referer)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
			lastStatus = resp.StatusCode
			fetch.Discard(resp)
			continue
		}
		return readDocument(resp)
	}
	return nil, fmt.Errorf("gave up after %d: %d", sidMaxAttempts, lastStatus)
}

func (s *Service) sidPost(ctx context.Context, session *fetch.Session, postURL string, form url.Values, referer string) (*goquery.Document, error) {
	var lastStatus int
	for attempt := 0; attempt < sidMaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(sidRetryDelay * time.Duration(attempt)):
			}
		}
		resp, err := session.PostForm(ctx, postURL, form, referer)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
			lastStatus = resp.StatusCode
			fetch.Discard(resp)
			continue
		}
		return readDocument(resp)
	}
	return nil, fmt.Errorf("gave up after %d: %d", sidMaxAttempts, lastStatus)
}

// sidForm finds the form holding the named hidden input and returns its
// action plus all hidden fields.
func sidForm(doc *goquery.Document, marker string) (action string, fields url.Values, ok bool) {
	fields = url.Values{}
	doc.Find("form").EachWithBreak(func(_ int, form *goquery.Selection) bool {
		if form.Find(fmt.Sprintf(`input[name=%q]`, marker)).Length() == 0 {
			return true
		}
		action, _ = form.Attr("action")
		form.Find("input[name]").Each(func(_ int, input *goquery.Selection) {
			name, _ := input.Attr("name")
			value, _ := input.Attr("value")
			fields.Set(name, value)
		})
		ok = true
		return false
	})
	return action, fields, ok
}

func absoluteURL(origin *url.URL, ref string) string {
	parsed, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return origin.ResolveReference(parsed).String()
}

func readDocument(resp *http.Response) (*goquery.Document, error) {
	body, err := fetch.ReadBody(resp, 4<<20)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}
