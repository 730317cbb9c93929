// Package resolver turns opaque preview tokens into playable URLs at request
// time: SID anti-bot chains for HTTP-stream hosters, authenticated Easynews
// links, and Usenet download orchestration.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"streamscout/config"
	"streamscout/internal/fetch"
	"streamscout/internal/token"
)

// ErrDead reports that resolution completed but produced no playable URL.
// Handlers map it to a 404 instead of a server error.
var ErrDead = errors.New("resolver: no playable url")

// UsenetResolver hands NZB previews to the download controller and blocks
// until the file is streamable.
type UsenetResolver interface {
	ResolveStream(ctx context.Context, downloadURL, title string) (string, error)
}

// Resolved is the outcome of a token resolution.
type Resolved struct {
	URL string
	// LocalPath is set instead of URL for usenet resolutions, where the
	// playable artifact is a file under the completed-download directory.
	LocalPath string
}

// Service resolves preview tokens. One instance is shared by all requests;
// every SID chain gets its own cookie session.
type Service struct {
	client       *fetch.Client
	httpClient   *http.Client
	usenet       UsenetResolver
	settings     config.ResolverSettings
	chainTimeout time.Duration
}

func New(client *fetch.Client, httpClient *http.Client, usenet UsenetResolver, settings config.ResolverSettings) *Service {
	if client == nil {
		client = fetch.NewClient(httpClient)
	}
	return &Service{
		client:       client,
		httpClient:   httpClient,
		usenet:       usenet,
		settings:     settings,
		chainTimeout: 25 * time.Second,
	}
}

// Resolve decodes a token and dispatches on its provider. The provider in
// the URL path must match the one sealed inside the token.
func (s *Service) Resolve(ctx context.Context, provider, rawToken string) (*Resolved, error) {
	tok, err := token.Decode(rawToken)
	if err != nil {
		return nil, fmt.Errorf("resolver: %w", err)
	}
	if tok.Provider != provider {
		return nil, fmt.Errorf("resolver: token provider %q does not match path %q", tok.Provider, provider)
	}

	started := time.Now()
	defer func() {
		log.Printf("[resolver] %s resolution took %s", provider, time.Since(started).Round(time.Millisecond))
	}()

	switch provider {
	case "uhdmovies", "moviesdrive":
		return s.resolveHTTPStream(ctx, tok.Payload)
	case "easynews":
		return s.resolveEasynews(tok.Payload)
	case "usenet":
		return s.resolveUsenet(ctx, tok.Payload)
	default:
		return nil, fmt.Errorf("resolver: unknown provider %q", provider)
	}
}

// resolveHTTPStream runs the full hoster chain: SID forms, file page
// extraction, intermediate hop unwrapping, then playability validation.
func (s *Service) resolveHTTPStream(ctx context.Context, payload map[string]string) (*Resolved, error) {
	sidURL := payload["sidUrl"]
	if sidURL == "" {
		return nil, fmt.Errorf("resolver: token missing sidUrl")
	}

	fileURL, err := s.ResolveSID(ctx, sidURL)
	if err != nil {
		return nil, fmt.Errorf("resolver: sid chain: %w", err)
	}

	finalURL, err := s.resolveFilePage(ctx, fileURL)
	if err != nil {
		return nil, fmt.Errorf("resolver: file page: %w", err)
	}
	finalURL, err = s.unwrapIntermediate(ctx, finalURL)
	if err != nil {
		return nil, fmt.Errorf("resolver: intermediate: %w", err)
	}
	finalURL = rewritePixeldrain(finalURL)

	if !s.Validate(ctx, finalURL) {
		return nil, ErrDead
	}
	return &Resolved{URL: finalURL}, nil
}

// resolveEasynews rebuilds the authenticated download URL from the sealed
// account fields. No network round trip is needed.
func (s *Service) resolveEasynews(payload map[string]string) (*Resolved, error) {
	downURL := payload["downURL"]
	postHash := payload["postHash"]
	if downURL == "" || postHash == "" {
		return nil, fmt.Errorf("resolver: easynews token incomplete")
	}

	base, err := url.Parse(downURL)
	if err != nil {
		return nil, fmt.Errorf("resolver: easynews downURL: %w", err)
	}
	base.User = url.UserPassword(payload["username"], payload["password"])

	ext := payload["ext"]
	title := payload["postTitle"]
	if title == "" {
		title = postHash
	}
	base.Path = path.Join(base.Path,
		payload["dlFarm"], payload["dlPort"],
		postHash+ext,
		url.PathEscape(title)+ext)
	return &Resolved{URL: base.String()}, nil
}

func (s *Service) resolveUsenet(ctx context.Context, payload map[string]string) (*Resolved, error) {
	if s.usenet == nil {
		return nil, fmt.Errorf("resolver: usenet downloads are not configured")
	}
	downloadURL := payload["downloadUrl"]
	if downloadURL == "" {
		return nil, fmt.Errorf("resolver: usenet token missing downloadUrl")
	}
	filePath, err := s.usenet.ResolveStream(ctx, downloadURL, payload["title"])
	if err != nil {
		return nil, fmt.Errorf("resolver: usenet: %w", err)
	}
	return &Resolved{LocalPath: filePath}, nil
}

// rewritePixeldrain converts share-page links into their direct file API
// form, which supports range requests.
func rewritePixeldrain(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || !strings.Contains(parsed.Host, "pixeldrain") {
		return rawURL
	}
	if id, ok := strings.CutPrefix(parsed.Path, "/u/"); ok && id != "" {
		parsed.Path = "/api/file/" + id
		return parsed.String()
	}
	return rawURL
}
