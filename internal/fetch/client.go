// Package fetch is the shared HTTP substrate for scrapers and resolvers:
// bounded retries for transient failures, per-purpose proxy selection, and
// cookie-jar sessions for multi-step anti-bot chains.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

const (
	defaultTimeout  = 20 * time.Second
	defaultAttempts = 3
	defaultDelay    = 500 * time.Millisecond

	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
)

// errRetryableStatus marks 5xx responses for the retry policy.
var errRetryableStatus = errors.New("retryable upstream status")

// Client wraps an http.Client with the retry policy shared by all scrapers.
type Client struct {
	httpClient *http.Client
	attempts   uint
	delay      time.Duration
}

// NewClient builds a Client over the given http.Client. A nil argument gets
// a plain client with the default timeout.
func NewClient(hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{httpClient: hc, attempts: defaultAttempts, delay: defaultDelay}
}

// Get performs a GET with browser headers, retrying transient failures.
// The caller owns the response body.
func (c *Client) Get(ctx context.Context, rawURL string, headers map[string]string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, rawURL, "", nil, headers, true)
}

// Head performs a HEAD with retries. HEAD is always idempotent.
func (c *Client) Head(ctx context.Context, rawURL string, headers map[string]string) (*http.Response, error) {
	return c.do(ctx, http.MethodHead, rawURL, "", nil, headers, true)
}

// PostForm performs a form POST. POSTs are not retried on 5xx unless the
// caller declares them idempotent.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values, headers map[string]string, idempotent bool) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, rawURL, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()), headers, idempotent)
}

func (c *Client) do(ctx context.Context, method, rawURL, contentType string, body io.Reader, headers map[string]string, idempotent bool) (*http.Response, error) {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
	}

	var resp *http.Response
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, method, rawURL, bodyReader(bodyBytes))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			applyBrowserHeaders(req)
			if contentType != "" {
				req.Header.Set("Content-Type", contentType)
			}
			for key, value := range headers {
				req.Header.Set(key, value)
			}

			r, err := c.httpClient.Do(req)
			if err != nil {
				if !isTransient(err) {
					return retry.Unrecoverable(err)
				}
				return err
			}
			if r.StatusCode >= 500 && idempotent {
				r.Body.Close()
				return fmt.Errorf("%w: %s %s returned %d", errRetryableStatus, method, rawURL, r.StatusCode)
			}
			resp = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func bodyReader(b []byte) io.Reader {
	if b == nil {
		return nil
	}
	return strings.NewReader(string(b))
}

// isTransient reports whether an error is worth another attempt: timeouts,
// resets, DNS hiccups. Context cancelation is never transient.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "EOF")
}

func applyBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "application/json,text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Connection", "keep-alive")
}

// ReadBody drains and closes a response body with a size cap, so parse
// failures never leak connections and oversized pages never exhaust memory.
func ReadBody(resp *http.Response, limit int64) ([]byte, error) {
	defer resp.Body.Close()
	if limit <= 0 {
		limit = 8 << 20
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return data, nil
}

// Discard closes a response body after draining a token amount, releasing
// the connection back to the pool.
func Discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	io.CopyN(io.Discard, resp.Body, 512)
	resp.Body.Close()
}
