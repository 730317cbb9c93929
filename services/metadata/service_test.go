package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamscout/internal/cache"
	"streamscout/internal/fetch"
)

func TestGetMetaMovie(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/meta/movie/tt0133093.json", r.URL.Path)
		w.Write([]byte(`{"meta":{"id":"tt0133093","name":"The Matrix","year":"1999"}}`))
	}))
	defer srv.Close()

	s := NewService(srv.URL, fetch.NewClient(srv.Client()), nil)
	m, err := s.GetMeta(context.Background(), "movie", "tt0133093")
	require.NoError(t, err)
	assert.Equal(t, "The Matrix", m.Name)
	assert.Equal(t, 1999, m.Year)
}

func TestGetMetaSeriesYearRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"meta":{"id":"tt0903747","name":"Breaking Bad","year":"2008-2013"}}`))
	}))
	defer srv.Close()

	s := NewService(srv.URL, fetch.NewClient(srv.Client()), nil)
	m, err := s.GetMeta(context.Background(), "series", "tt0903747")
	require.NoError(t, err)
	assert.Equal(t, "Breaking Bad", m.Name)
	assert.Equal(t, 2008, m.Year)
}

func TestGetMetaUsesCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"meta":{"id":"tt1","name":"Foo","year":"2020"}}`))
	}))
	defer srv.Close()

	store := cache.NewMemoryStore()
	defer store.Close()

	s := NewService(srv.URL, fetch.NewClient(srv.Client()), store)
	ctx := context.Background()

	_, err := s.GetMeta(ctx, "movie", "tt1")
	require.NoError(t, err)
	m, err := s.GetMeta(ctx, "movie", "tt1")
	require.NoError(t, err)
	assert.Equal(t, "Foo", m.Name)
	assert.Equal(t, int32(1), calls.Load(), "second lookup must hit the cache")
}

func TestGetMetaMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"meta":{}}`))
	}))
	defer srv.Close()

	s := NewService(srv.URL, fetch.NewClient(srv.Client()), nil)
	_, err := s.GetMeta(context.Background(), "movie", "tt404")
	assert.Error(t, err)
}

func TestParseYear(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"1999", 1999},
		{"2008-2013", 2008},
		{"2008-", 2008},
		{"2008–2013", 2008},
		{"", 0},
		{"soon", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseYear(tt.in), tt.in)
	}
}
