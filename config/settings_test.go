package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultsWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	m := NewManager(path)

	s, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, 7945, s.Server.Port)
	assert.Equal(t, "memory", s.Cache.Backend)
	assert.Equal(t, 360, s.Cache.MovieTTLMinutes)
	assert.Equal(t, 60, s.Cache.SeriesTTLMinutes)

	_, err = os.Stat(path)
	assert.NoError(t, err, "defaults must be persisted on first load")
}

func TestLoadBackfillsOlderConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"server": {"host": "127.0.0.1", "port": 9000},
		"languages": ["eng", "pt-BR", "eng", "bogus!!"],
		"selfBaseUrl": "http://example.com/"
	}`), 0o644))

	s, err := NewManager(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 9000, s.Server.Port)
	assert.Equal(t, []string{"en", "pt"}, s.Languages)
	assert.Equal(t, "http://example.com", s.SelfBaseURL)
	assert.Equal(t, 15, s.Timeouts.ScraperSeconds)
	assert.Equal(t, 30, s.Timeouts.GlobalSeconds)
	require.NotEmpty(t, s.Scrapers)
	assert.Equal(t, "torrentio", s.Scrapers[0].Type)
}

func TestGlobalTimeoutNeverBelowScraperTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"timeouts": {"scraperSeconds": 45, "globalSeconds": 20}
	}`), 0o644))

	s, err := NewManager(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 45, s.Timeouts.GlobalSeconds)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	m := NewManager(path)

	s := DefaultSettings()
	s.Server.Port = 8111
	s.Debrid = DebridSettings{Service: "realdebrid", Token: "tok", CheckAvailability: true}
	require.NoError(t, m.Save(s))

	loaded, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, 8111, loaded.Server.Port)
	assert.Equal(t, "realdebrid", loaded.Debrid.Service)
	assert.True(t, loaded.Debrid.CheckAvailability)
}

func TestNormalizeLanguages(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"three-letter codes", []string{"eng", "fra"}, []string{"en", "fr"}},
		{"regional variants collapse", []string{"pt-BR", "pt"}, []string{"pt"}},
		{"garbage dropped", []string{"en", "??", ""}, []string{"en"}},
		{"empty", nil, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeLanguages(tt.in))
		})
	}
}
