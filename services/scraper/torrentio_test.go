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

const torrentioMovieResponse = `{
  "streams": [
    {
      "name": "Torrentio\n1080p",
      "title": "The.Matrix.1999.1080p.BluRay.x264-GROUP\n👤 120 💾 8.5 GB ⚙️ ThePirateBay",
      "infoHash": "A1B2C3D4E5F6A7B8C9D0A1B2C3D4E5F6A7B8C9D0",
      "fileIdx": 0,
      "behaviorHints": {"openTrackers": ["udp://tracker.example:1337"]}
    },
    {
      "name": "Torrentio\n720p",
      "title": "The.Matrix.1999.720p.WEB-DL\n👤 44 💾 2.1 GB ⚙️ 1337x",
      "infoHash": "b2c3d4e5f6a7b8c9d0a1b2c3d4e5f6a7b8c9d0a1"
    },
    {
      "name": "Torrentio",
      "title": "No.Hash.Entry.1080p",
      "infoHash": ""
    }
  ]
}`

func TestTorrentioMovieSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stream/movie/tt0133093.json", r.URL.Path)
		w.Write([]byte(torrentioMovieResponse))
	}))
	defer srv.Close()

	s := NewTorrentio(fetch.NewClient(srv.Client()), srv.URL, "", "")
	got, err := s.Search(context.Background(), SearchRequest{
		MediaType: "movie",
		IMDBID:    "tt0133093",
		Title:     "The Matrix",
		Year:      1999,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	first := got[0]
	require.Equal(t, models.KindTorrent, first.Kind)
	assert.Equal(t, "a1b2c3d4e5f6a7b8c9d0a1b2c3d4e5f6a7b8c9d0", first.Torrent.InfoHash)
	assert.Equal(t, "The.Matrix.1999.1080p.BluRay.x264-GROUP", first.Torrent.Title)
	assert.Equal(t, 120, first.Torrent.Seeders)
	assert.Equal(t, parseHumanSize("8.5 GB"), first.Torrent.SizeBytes)
	assert.Equal(t, "torrentio | ThePirateBay", first.Torrent.Tracker)
	assert.Equal(t, "0", first.Torrent.Attributes["fileIdx"])
	assert.Contains(t, first.Torrent.Magnet, "tr=udp%3A%2F%2Ftracker.example%3A1337")
}

func TestTorrentioSeriesStreamID(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"streams":[]}`))
	}))
	defer srv.Close()

	s := NewTorrentio(fetch.NewClient(srv.Client()), srv.URL, "sort=qualitysize", "")
	_, err := s.Search(context.Background(), SearchRequest{
		MediaType: "series",
		IMDBID:    "tt0903747",
		Season:    2,
		Episode:   5,
	})
	require.NoError(t, err)
	assert.Equal(t, "/sort=qualitysize/stream/series/tt0903747:2:5.json", gotPath)
}

func TestTorrentioUpstreamErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s := NewTorrentio(fetch.NewClient(srv.Client()), srv.URL, "", "")
	got, err := s.Search(context.Background(), SearchRequest{MediaType: "movie", IMDBID: "tt1"})
	assert.Error(t, err)
	assert.Empty(t, got)
}

func TestTorrentioRespectsLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(torrentioMovieResponse))
	}))
	defer srv.Close()

	s := NewTorrentio(fetch.NewClient(srv.Client()), srv.URL, "", "")
	got, err := s.Search(context.Background(), SearchRequest{
		MediaType: "movie",
		IMDBID:    "tt0133093",
		Limit:     1,
	})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
