package resolver

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const validateTimeout = 8 * time.Second

// Validate checks that a resolved URL is actually playable: the host must
// answer a range request, since players seek immediately. A dead or
// range-less link is worse than no link.
func (s *Service) Validate(ctx context.Context, rawURL string) bool {
	if s.settings.DisableURLValidation {
		return true
	}
	if host := hostOf(rawURL); host != "" && s.skipValidation(host) {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	headers := map[string]string{"Range": "bytes=0-1"}
	if resp, err := s.client.Head(ctx, rawURL, headers); err == nil {
		defer resp.Body.Close()
		return s.playableStatus(resp)
	}

	// Some CDNs reject HEAD outright; fall back to a GET whose body is
	// abandoned as soon as the status is known.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Range", "bytes=0-1")
	hc := s.httpClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		log.Printf("[resolver] validation failed for %s: %v", hostOf(rawURL), err)
		return false
	}
	defer resp.Body.Close()
	return s.playableStatus(resp)
}

// playableStatus accepts 206, or 200 when the host advertises byte ranges.
// With seek validation disabled, any success counts.
func (s *Service) playableStatus(resp *http.Response) bool {
	if resp.StatusCode == http.StatusPartialContent {
		return true
	}
	if resp.StatusCode == http.StatusOK {
		if s.settings.DisableSeekValidation {
			return true
		}
		return strings.EqualFold(resp.Header.Get("Accept-Ranges"), "bytes")
	}
	return false
}

func (s *Service) skipValidation(host string) bool {
	host = strings.ToLower(host)
	for _, skip := range s.settings.SkipValidationHosts {
		skip = strings.ToLower(strings.TrimSpace(skip))
		if skip == "" {
			continue
		}
		if host == skip || strings.HasSuffix(host, "."+skip) {
			return true
		}
	}
	return false
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Host
}
