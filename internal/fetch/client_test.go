package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := NewClient(srv.Client())
	c.delay = time.Millisecond

	resp, err := c.Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.Client())
	c.delay = time.Millisecond

	resp, err := c.Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load(), "4xx must not be retried")
}

func TestPostNotRetriedOn5xxUnlessIdempotent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.Client())
	c.delay = time.Millisecond

	resp, err := c.PostForm(context.Background(), srv.URL, nil, nil, false)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetHonorsContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	c := NewClient(srv.Client())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Get(ctx, srv.URL, nil)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "canceled call must return promptly")
}

func TestGetSendsBrowserHeaders(t *testing.T) {
	var gotUA, gotExtra string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotExtra = r.Header.Get("X-API-Key")
	}))
	defer srv.Close()

	c := NewClient(srv.Client())
	resp, err := c.Get(context.Background(), srv.URL, map[string]string{"X-API-Key": "secret"})
	require.NoError(t, err)
	resp.Body.Close()

	assert.Contains(t, gotUA, "Mozilla/5.0")
	assert.Equal(t, "secret", gotExtra)
}

func TestProxyConfigMatrix(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ProxyConfig
		purpose string
		want    bool
	}{
		{"no proxy url", ProxyConfig{}, PurposeScrapers, false},
		{"wildcard on", ProxyConfig{ProxyURL: "socks5://p:1080", Services: map[string]bool{"*": true}}, PurposeScrapers, true},
		{"explicit off beats wildcard", ProxyConfig{ProxyURL: "socks5://p:1080", Services: map[string]bool{"*": true, "scrapers": false}}, PurposeScrapers, false},
		{"explicit on only", ProxyConfig{ProxyURL: "socks5://p:1080", Services: map[string]bool{"httpstreams": true}}, PurposeHTTPStreams, true},
		{"unlisted purpose off", ProxyConfig{ProxyURL: "socks5://p:1080", Services: map[string]bool{"httpstreams": true}}, PurposeScrapers, false},
		{"debrid purpose", ProxyConfig{ProxyURL: "socks5://p:1080", Services: map[string]bool{"debrid:realdebrid": true}}, DebridPurpose("RealDebrid"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.Enabled(tt.purpose))
		})
	}
}

func TestProxyConfigWrapURL(t *testing.T) {
	cfg := ProxyConfig{ProxyURL: "https://legacy.example.com/fetch?target={url}"}
	require.True(t, cfg.Wrapping())
	wrapped := cfg.WrapURL("https://site.example.com/page?x=1&y=2")
	assert.Equal(t, "https://legacy.example.com/fetch?target=https%3A%2F%2Fsite.example.com%2Fpage%3Fx%3D1%26y%3D2", wrapped)
}

func TestProxyManagerDirectWhenDisabled(t *testing.T) {
	m := NewProxyManager(ProxyConfig{}, time.Second)
	client := m.ClientFor(PurposeScrapers)
	require.NotNil(t, client)
	assert.Nil(t, client.Transport, "direct client must not carry a proxy transport")
}

func TestProxyManagerPoolsAgents(t *testing.T) {
	m := NewProxyManager(ProxyConfig{
		ProxyURL: "socks5://127.0.0.1:1080",
		Services: map[string]bool{"*": true},
	}, time.Second)

	first := m.ClientFor(PurposeScrapers)
	second := m.ClientFor(PurposeScrapers)
	assert.Same(t, first, second, "agent must be reused within its lifetime")

	for i := 0; i < agentErrorCeiling; i++ {
		m.ReportError(PurposeScrapers)
	}
	third := m.ClientFor(PurposeScrapers)
	assert.NotSame(t, first, third, "agent must be recreated after repeated errors")
}

func TestSessionKeepsCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/set":
			http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc", Path: "/"})
		case "/check":
			cookie, err := r.Cookie("sid")
			if err != nil || cookie.Value != "abc" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
		}
	}))
	defer srv.Close()

	s, err := NewSession(srv.Client(), time.Second)
	require.NoError(t, err)

	resp, err := s.Get(context.Background(), srv.URL+"/set", "")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = s.Get(context.Background(), srv.URL+"/check", "")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSessionGetWithHeadersOverridesDefaults(t *testing.T) {
	const customUA = "Mozilla/5.0 (compatible; rotated-agent)"
	var gotUA, gotExtra string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotExtra = r.Header.Get("X-Extra")
	}))
	defer srv.Close()

	s, err := NewSession(srv.Client(), time.Second)
	require.NoError(t, err)

	resp, err := s.GetWithHeaders(context.Background(), srv.URL, "", map[string]string{
		"User-Agent": customUA,
		"X-Extra":    "yes",
	})
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, customUA, gotUA)
	assert.Equal(t, "yes", gotExtra)
}
