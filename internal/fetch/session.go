package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// Session is a cookie-carrying client for multi-step anti-bot chains. Each
// session owns its jar; sessions are never shared across requests.
type Session struct {
	client *http.Client
	jar    *cookiejar.Jar
}

// NewSession creates a session over the given base client. The base's
// transport (and therefore its proxy policy) is reused; only the jar is new.
func NewSession(base *http.Client, timeout time.Duration) (*Session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	var transport http.RoundTripper
	if base != nil {
		transport = base.Transport
	}
	return &Session{
		client: &http.Client{
			Transport: transport,
			Jar:       jar,
			Timeout:   timeout,
		},
		jar: jar,
	}, nil
}

// Get fetches a URL within the session. An optional referer is attached.
// The caller owns the response body.
func (s *Session) Get(ctx context.Context, rawURL, referer string) (*http.Response, error) {
	return s.GetWithHeaders(ctx, rawURL, referer, nil)
}

// GetWithHeaders fetches a URL within the session with extra headers layered
// over the browser defaults. Adapters rotating user agents go through here.
func (s *Session) GetWithHeaders(ctx context.Context, rawURL, referer string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	applyBrowserHeaders(req)
	for name, value := range headers {
		req.Header.Set(name, value)
	}
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
	return s.client.Do(req)
}

// PostForm submits a form within the session.
func (s *Session) PostForm(ctx context.Context, rawURL string, form url.Values, referer string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	applyBrowserHeaders(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
	return s.client.Do(req)
}

// SetCookie stores a cookie on the origin of the given URL. Anti-bot pages
// mint cookies from inline script; this is how they get into the jar.
func (s *Session) SetCookie(origin *url.URL, name, value string) {
	s.jar.SetCookies(origin, []*http.Cookie{{Name: name, Value: value, Path: "/"}})
}
