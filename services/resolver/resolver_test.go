package resolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamscout/config"
	"streamscout/internal/fetch"
	"streamscout/internal/token"
)

// newChainServer simulates a full hoster chain: the four-step anti-bot form
// walk, a file page with a download button, and a range-capable CDN file.
func newChainServer(t *testing.T, rangeCapable bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/sid", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<form id="landing" action="/step1" method="post">
				<input type="hidden" name="_wp_http" value="tok-one"/>
			</form></body></html>`))
	})
	mux.HandleFunc("/step1", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "tok-one", r.PostForm.Get("_wp_http"))
		w.Write([]byte(`<html><body>
			<form action="/step2" method="post">
				<input type="hidden" name="_wp_http2" value="tok-two"/>
				<input type="hidden" name="token" value="vtoken"/>
			</form></body></html>`))
	})
	mux.HandleFunc("/step2", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "tok-two", r.PostForm.Get("_wp_http2"))
		assert.Equal(t, "vtoken", r.PostForm.Get("token"))
		w.Write([]byte(`<html><body><script>
			function load() { s_343('chainck','chainval'); var c = document.createElement("a"); c.setAttribute("href","/gate"); }
		</script></body></html>`))
	})
	mux.HandleFunc("/gate", func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie("chainck")
		require.NoError(t, err)
		assert.Equal(t, "chainval", ck.Value)
		w.Write([]byte(`<html><head><meta http-equiv="refresh" content="0;url=/filepage"></head></html>`))
	})
	mux.HandleFunc("/filepage", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><a href="/cdn/video.mkv">Resume Cloud</a></body></html>`))
	})
	mux.HandleFunc("/cdn/video.mkv", func(w http.ResponseWriter, r *http.Request) {
		if rangeCapable && r.Header.Get("Range") != "" {
			w.Header().Set("Content-Range", "bytes 0-1/1000")
			w.WriteHeader(http.StatusPartialContent)
			w.Write([]byte("xx"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("xxxx"))
	})

	return httptest.NewServer(mux)
}

func sidToken(t *testing.T, provider, sidURL string) string {
	t.Helper()
	encoded, err := token.Encode(token.Token{Provider: provider, Payload: map[string]string{"sidUrl": sidURL}})
	require.NoError(t, err)
	return encoded
}

func newTestService(srv *httptest.Server, settings config.ResolverSettings) *Service {
	return New(fetch.NewClient(srv.Client()), srv.Client(), nil, settings)
}

func TestResolveSIDChain(t *testing.T) {
	srv := newChainServer(t, true)
	defer srv.Close()

	s := newTestService(srv, config.ResolverSettings{})
	resolved, err := s.Resolve(context.Background(), "uhdmovies", sidToken(t, "uhdmovies", srv.URL+"/sid"))
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/cdn/video.mkv", resolved.URL)
}

func TestResolveDeadLink(t *testing.T) {
	// CDN answers 200 without range support: the link is not playable.
	srv := newChainServer(t, false)
	defer srv.Close()

	s := newTestService(srv, config.ResolverSettings{})
	_, err := s.Resolve(context.Background(), "moviesdrive", sidToken(t, "moviesdrive", srv.URL+"/sid"))
	assert.ErrorIs(t, err, ErrDead)
}

func TestResolveDeadLinkAcceptedWhenSeekValidationDisabled(t *testing.T) {
	srv := newChainServer(t, false)
	defer srv.Close()

	s := newTestService(srv, config.ResolverSettings{DisableSeekValidation: true})
	resolved, err := s.Resolve(context.Background(), "uhdmovies", sidToken(t, "uhdmovies", srv.URL+"/sid"))
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/cdn/video.mkv", resolved.URL)
}

func TestResolveGarbageToken(t *testing.T) {
	s := New(fetch.NewClient(nil), nil, nil, config.ResolverSettings{})
	_, err := s.Resolve(context.Background(), "uhdmovies", "not-a-token")
	assert.Error(t, err)
}

func TestResolveProviderMismatch(t *testing.T) {
	s := New(fetch.NewClient(nil), nil, nil, config.ResolverSettings{})
	_, err := s.Resolve(context.Background(), "moviesdrive", sidToken(t, "uhdmovies", "http://example.com/sid"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")
}

func TestResolveEasynews(t *testing.T) {
	encoded, err := token.Encode(token.Token{Provider: "easynews", Payload: map[string]string{
		"username":  "user",
		"password":  "pass",
		"dlFarm":    "farm01",
		"dlPort":    "443",
		"postHash":  "abcdef123456",
		"ext":       ".mkv",
		"postTitle": "The.Matrix.1999",
		"downURL":   "https://members.easynews.com/dl",
	}})
	require.NoError(t, err)

	s := New(fetch.NewClient(nil), nil, nil, config.ResolverSettings{})
	resolved, err := s.Resolve(context.Background(), "easynews", encoded)
	require.NoError(t, err)

	parsed, err := url.Parse(resolved.URL)
	require.NoError(t, err)
	assert.Equal(t, "user", parsed.User.Username())
	pw, _ := parsed.User.Password()
	assert.Equal(t, "pass", pw)
	assert.Contains(t, parsed.Path, "farm01/443/abcdef123456.mkv")
	assert.True(t, strings.HasSuffix(parsed.Path, ".mkv"))
}

func TestResolveUsenetUnconfigured(t *testing.T) {
	encoded, err := token.Encode(token.Token{Provider: "usenet", Payload: map[string]string{
		"downloadUrl": "https://indexer.example/get/1",
	}})
	require.NoError(t, err)

	s := New(fetch.NewClient(nil), nil, nil, config.ResolverSettings{})
	_, err = s.Resolve(context.Background(), "usenet", encoded)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestRewritePixeldrain(t *testing.T) {
	assert.Equal(t, "https://pixeldrain.com/api/file/abc123", rewritePixeldrain("https://pixeldrain.com/u/abc123"))
	assert.Equal(t, "https://pixeldrain.com/api/file/x", rewritePixeldrain("https://pixeldrain.com/u/x"))
	assert.Equal(t, "https://example.com/u/abc", rewritePixeldrain("https://example.com/u/abc"))
	assert.Equal(t, "https://pixeldrain.com/other/abc", rewritePixeldrain("https://pixeldrain.com/other/abc"))
}

func TestValidateSkipHosts(t *testing.T) {
	s := New(fetch.NewClient(nil), nil, nil, config.ResolverSettings{
		SkipValidationHosts: []string{"trusted.example"},
	})
	assert.True(t, s.Validate(context.Background(), "https://trusted.example/video.mkv"))
	assert.True(t, s.Validate(context.Background(), "https://cdn.trusted.example/video.mkv"))
}

func TestValidateDisabled(t *testing.T) {
	s := New(fetch.NewClient(nil), nil, nil, config.ResolverSettings{DisableURLValidation: true})
	assert.True(t, s.Validate(context.Background(), "https://anything.example/video.mkv"))
}

func TestUnwrapIntermediateURLParam(t *testing.T) {
	s := New(fetch.NewClient(nil), nil, nil, config.ResolverSettings{})
	inner := "https://cdn.example.workers.dev/file.mkv"
	out, err := s.unwrapIntermediate(context.Background(), "https://video-leech.pro/dl?url="+url.QueryEscape(inner))
	require.NoError(t, err)
	assert.Equal(t, inner, out)

	// Non-intermediate hosts pass through untouched.
	out, err = s.unwrapIntermediate(context.Background(), "https://cdn.example/file.mkv")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/file.mkv", out)
}
