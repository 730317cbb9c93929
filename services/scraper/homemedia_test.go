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

const homeMediaListing = `{
  "files": [
    {"name": "The.Matrix.1999.1080p.mkv", "folderName": "The Matrix (1999)", "path": "/movies/matrix", "flatPath": "/files/matrix-1999.mkv", "size": 9126805504, "isComplete": true},
    {"name": "The.Matrix.Reloaded.2003.mkv", "folderName": "The Matrix Reloaded (2003)", "path": "/movies/matrix2", "flatPath": "/files/matrix-reloaded.mkv", "size": 8000000000, "isComplete": true},
    {"name": "The.Matrix.1999.partial.mkv", "folderName": "incoming", "path": "/incoming/x", "flatPath": "/files/partial.mkv", "size": 100, "isComplete": false},
    {"name": "Breaking.Bad.S02E05.720p.mkv", "folderName": "Breaking Bad Season 2", "path": "/tv/bb", "flatPath": "/files/bb-s02e05.mkv", "size": 2147483648, "isComplete": true}
  ]
}`

func newHomeMediaServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/list", r.URL.Path)
		assert.Equal(t, "sekrit", r.Header.Get("X-API-Key"))
		w.Write([]byte(homeMediaListing))
	}))
}

func TestHomeMediaMovieMatch(t *testing.T) {
	srv := newHomeMediaServer(t)
	defer srv.Close()

	s := NewHomeMedia(fetch.NewClient(srv.Client()), srv.URL, "sekrit", "")
	got, err := s.Search(context.Background(), SearchRequest{
		MediaType: "movie",
		Title:     "The Matrix",
		Year:      1999,
	})
	require.NoError(t, err)

	// Reloaded fails the year window, the partial file is skipped.
	require.Len(t, got, 1)
	c := got[0]
	require.Equal(t, models.KindHTTPStream, c.Kind)
	assert.Equal(t, "The.Matrix.1999.1080p.mkv", c.HTTPStream.DisplayName)
	assert.False(t, c.HTTPStream.NeedsResolution)
	assert.Equal(t, srv.URL+"/files/matrix-1999.mkv?key=sekrit", c.HTTPStream.DirectURL)
}

func TestHomeMediaEpisodeMatch(t *testing.T) {
	srv := newHomeMediaServer(t)
	defer srv.Close()

	s := NewHomeMedia(fetch.NewClient(srv.Client()), srv.URL, "sekrit", "")
	got, err := s.Search(context.Background(), SearchRequest{
		MediaType: "series",
		Title:     "Breaking Bad",
		Season:    2,
		Episode:   5,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Breaking.Bad.S02E05.720p.mkv", got[0].HTTPStream.DisplayName)
}

func TestHomeMediaEpisodeMismatch(t *testing.T) {
	srv := newHomeMediaServer(t)
	defer srv.Close()

	s := NewHomeMedia(fetch.NewClient(srv.Client()), srv.URL, "sekrit", "")
	got, err := s.Search(context.Background(), SearchRequest{
		MediaType: "series",
		Title:     "Breaking Bad",
		Season:    2,
		Episode:   6,
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}
