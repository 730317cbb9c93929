package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamscout/config"
)

func torrentioStreamsJSON(n int) string {
	var b strings.Builder
	b.WriteString(`{"streams":[`)
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `{"name":"Torrentio\n1080p","title":"Movie.%d.1080p.WEB\n👤 10 💾 2.0 GB ⚙️ Tracker","infoHash":"%040x"}`, i, i+1)
	}
	b.WriteString("]}")
	return b.String()
}

func TestBuildAppliesConfiguredLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(torrentioStreamsJSON(10)))
	}))
	defer srv.Close()

	scrapers := Build([]config.ScraperConfig{{
		Name:    "torrentio",
		Type:    "torrentio",
		URL:     srv.URL,
		Limit:   3,
		Enabled: true,
	}}, Deps{})
	require.Len(t, scrapers, 1)

	got, err := scrapers[0].Search(context.Background(), SearchRequest{
		MediaType: "movie",
		IMDBID:    "tt0133093",
	})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestBuildRequestLimitWinsOverConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(torrentioStreamsJSON(10)))
	}))
	defer srv.Close()

	scrapers := Build([]config.ScraperConfig{{
		Name:    "torrentio",
		Type:    "torrentio",
		URL:     srv.URL,
		Limit:   3,
		Enabled: true,
	}}, Deps{})
	require.Len(t, scrapers, 1)

	got, err := scrapers[0].Search(context.Background(), SearchRequest{
		MediaType: "movie",
		IMDBID:    "tt0133093",
		Limit:     5,
	})
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestBuildSkipsDisabledAndUnknown(t *testing.T) {
	scrapers := Build([]config.ScraperConfig{
		{Name: "off", Type: "torrentio", Enabled: false},
		{Name: "bogus", Type: "flying-saucer", Enabled: true},
	}, Deps{})
	assert.Empty(t, scrapers)
}
