package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamscout/internal/fetch"
	"streamscout/models"
)

const torznabMovieFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:torznab="http://torznab.com/schemas/2015/feed">
  <channel>
    <item>
      <title>The.Matrix.1999.1080p.BluRay.x264-GROUP</title>
      <guid>https://indexer.example/details/1</guid>
      <link>magnet:?xt=urn:btih:A1B2C3D4E5F6A7B8C9D0A1B2C3D4E5F6A7B8C9D0&amp;dn=The.Matrix</link>
      <size>9126805504</size>
      <torznab:attr name="seeders" value="87"/>
      <torznab:attr name="jackettindexer" value="therarbg"/>
    </item>
    <item>
      <title>The.Matrix.1999.720p.x264</title>
      <guid>https://indexer.example/details/2</guid>
      <link>https://indexer.example/download/2.torrent</link>
      <torznab:attr name="infohash" value="B2C3D4E5F6A7B8C9D0A1B2C3D4E5F6A7B8C9D0A1"/>
      <torznab:attr name="size" value="2147483648"/>
    </item>
    <item>
      <title>Hashless.Release.1080p</title>
      <guid>https://indexer.example/details/3</guid>
      <link>https://indexer.example/download/3.torrent</link>
    </item>
  </channel>
</rss>`

func TestTorznabMovieSearch(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"t":      r.URL.Query().Get("t"),
			"q":      r.URL.Query().Get("q"),
			"apikey": r.URL.Query().Get("apikey"),
		}
		w.Write([]byte(torznabMovieFeed))
	}))
	defer srv.Close()

	s := NewTorznab(fetch.NewClient(srv.Client()), "torznab", srv.URL, "secret", "")
	got, err := s.Search(context.Background(), SearchRequest{
		MediaType: "movie",
		Title:     "The Matrix",
		Year:      1999,
		Query:     "The Matrix 1999",
	})
	require.NoError(t, err)
	assert.Equal(t, "movie", gotQuery["t"])
	assert.Equal(t, "The Matrix 1999", gotQuery["q"])
	assert.Equal(t, "secret", gotQuery["apikey"])

	require.Len(t, got, 2)
	first := got[0]
	require.Equal(t, models.KindTorrent, first.Kind)
	assert.Equal(t, "a1b2c3d4e5f6a7b8c9d0a1b2c3d4e5f6a7b8c9d0", first.Torrent.InfoHash)
	assert.Equal(t, int64(9126805504), first.Torrent.SizeBytes)
	assert.Equal(t, 87, first.Torrent.Seeders)
	assert.Equal(t, "torznab | therarbg", first.Torrent.Tracker)

	second := got[1]
	assert.Equal(t, "b2c3d4e5f6a7b8c9d0a1b2c3d4e5f6a7b8c9d0a1", second.Torrent.InfoHash)
	assert.Equal(t, int64(2147483648), second.Torrent.SizeBytes)
	assert.Contains(t, second.Torrent.Magnet, "magnet:?xt=urn:btih:")
}

func TestTorznabSeriesFallsBackToPlainSearch(t *testing.T) {
	var verbs []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		verb := r.URL.Query().Get("t")
		verbs = append(verbs, verb)
		if verb == "tvsearch" {
			w.Write([]byte(`<rss><channel></channel></rss>`))
			return
		}
		w.Write([]byte(torznabMovieFeed))
	}))
	defer srv.Close()

	s := NewTorznab(fetch.NewClient(srv.Client()), "torznab", srv.URL, "", "")
	got, err := s.Search(context.Background(), SearchRequest{
		MediaType: "series",
		Title:     "The Matrix",
		Season:    1,
		Episode:   2,
		Query:     "The Matrix S01E02",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"tvsearch", "search"}, verbs)
	assert.Len(t, got, 2)
}

func TestTorznabJackettAggregatePath(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(torznabMovieFeed))
	}))
	defer srv.Close()

	s := NewTorznab(fetch.NewClient(srv.Client()), "jackett", srv.URL, "k", "")
	_, err := s.Search(context.Background(), SearchRequest{MediaType: "movie", Title: "The Matrix"})
	require.NoError(t, err)
	assert.Equal(t, "/api/v2.0/indexers/all/results/torznab/api", gotPath)
}

func TestTorznabTestConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "caps", r.URL.Query().Get("t"))
		w.Write([]byte(`<caps></caps>`))
	}))
	defer srv.Close()

	s := NewTorznab(fetch.NewClient(srv.Client()), "torznab", srv.URL, "", "")
	assert.NoError(t, s.TestConnection(context.Background()))
}
