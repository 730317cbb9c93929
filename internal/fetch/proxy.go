package fetch

import (
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/proxy"
)

// Proxy purposes; the matrix decides per purpose whether traffic goes
// direct, through the URL-wrapping legacy proxy, or through a proxy agent.
const (
	PurposeScrapers    = "scrapers"
	PurposeHTTPStreams = "httpstreams"
)

// DebridPurpose names the proxy purpose for one debrid service.
func DebridPurpose(service string) string {
	return "debrid:" + strings.ToLower(service)
}

const (
	agentMaxAge         = 5 * time.Minute
	agentErrorCeiling   = 5
	proxyURLPlaceholder = "{url}"
)

// ProxyConfig mirrors the proxy settings section: one proxy URL and a
// service matrix ("*": true, or per-purpose flags).
type ProxyConfig struct {
	ProxyURL string
	Services map[string]bool
}

// Enabled reports whether the given purpose routes through the proxy.
func (c ProxyConfig) Enabled(purpose string) bool {
	if c.ProxyURL == "" {
		return false
	}
	if v, ok := c.Services[purpose]; ok {
		return v
	}
	if v, ok := c.Services["*"]; ok {
		return v
	}
	return false
}

// Wrapping reports whether the proxy is the legacy URL-wrapping kind, where
// the destination is percent-encoded into the proxy URL itself.
func (c ProxyConfig) Wrapping() bool {
	return strings.Contains(c.ProxyURL, proxyURLPlaceholder)
}

// WrapURL builds the legacy-proxy request URL for a destination.
func (c ProxyConfig) WrapURL(destination string) string {
	return strings.Replace(c.ProxyURL, proxyURLPlaceholder, url.QueryEscape(destination), 1)
}

type agent struct {
	client    *http.Client
	createdAt time.Time
	errCount  int
}

// ProxyManager hands out http.Clients per purpose. Agents are pooled, aged
// out after agentMaxAge, and rebuilt after a run of connection errors.
type ProxyManager struct {
	cfg     ProxyConfig
	timeout time.Duration

	mu     sync.Mutex
	agents map[string]*agent
}

// NewProxyManager builds the manager used by all scrapers and resolvers.
func NewProxyManager(cfg ProxyConfig, timeout time.Duration) *ProxyManager {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &ProxyManager{
		cfg:     cfg,
		timeout: timeout,
		agents:  make(map[string]*agent),
	}
}

// Config returns the proxy configuration the manager was built with.
func (m *ProxyManager) Config() ProxyConfig {
	return m.cfg
}

// ClientFor returns the http.Client to use for a purpose. Direct traffic
// and the wrapping proxy get a plain client; agent proxies are pooled.
func (m *ProxyManager) ClientFor(purpose string) *http.Client {
	if !m.cfg.Enabled(purpose) || m.cfg.Wrapping() {
		return &http.Client{Timeout: m.timeout}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.agents[purpose]
	if ok && time.Since(a.createdAt) < agentMaxAge && a.errCount < agentErrorCeiling {
		return a.client
	}

	client, err := m.buildAgent()
	if err != nil {
		log.Printf("[proxy] building agent for %s failed, going direct: %v", purpose, err)
		return &http.Client{Timeout: m.timeout}
	}
	m.agents[purpose] = &agent{client: client, createdAt: time.Now()}
	return client
}

// ReportError records a connection error against a purpose's agent. Once
// the ceiling is reached the next ClientFor call rebuilds the agent.
func (m *ProxyManager) ReportError(purpose string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.agents[purpose]; ok {
		a.errCount++
		if a.errCount >= agentErrorCeiling {
			log.Printf("[proxy] agent for %s hit %d consecutive errors, will recreate", purpose, a.errCount)
		}
	}
}

func (m *ProxyManager) buildAgent() (*http.Client, error) {
	u, err := url.Parse(m.cfg.ProxyURL)
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}

	switch u.Scheme {
	case "socks5", "socks5h":
		var auth *proxy.Auth
		if u.User != nil {
			password, _ := u.User.Password()
			auth = &proxy.Auth{User: u.User.Username(), Password: password}
		}
		dialer, err := proxy.SOCKS5("tcp", u.Host, auth, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("create socks5 dialer: %w", err)
		}
		return &http.Client{
			Transport: &http.Transport{Dial: dialer.Dial},
			Timeout:   m.timeout,
		}, nil
	case "http", "https":
		return &http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(u)},
			Timeout:   m.timeout,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
}
