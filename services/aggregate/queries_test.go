package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildQueriesMovie(t *testing.T) {
	queries := buildQueries("Mission: Impossible - Dead Reckoning", 2023, 0, 0)
	require.NotEmpty(t, queries)
	assert.Equal(t, "Mission: Impossible - Dead Reckoning 2023", queries[0])
	assert.Contains(t, queries, "Mission 2023")
	assert.Contains(t, queries, "Mission: Impossible - Dead Reckoning")
}

func TestBuildQueriesSwapsNumerals(t *testing.T) {
	queries := buildQueries("Rocky 2", 1979, 0, 0)
	assert.Contains(t, queries, "Rocky two 1979")

	queries = buildQueries("Ocean's eight", 2018, 0, 0)
	assert.Contains(t, queries, "Ocean's 8 2018")
}

func TestBuildQueriesSeries(t *testing.T) {
	queries := buildQueries("Breaking Bad", 2008, 2, 5)
	require.NotEmpty(t, queries)
	assert.Equal(t, "Breaking Bad S02E05", queries[0])
	assert.Equal(t, "Breaking Bad", queries[len(queries)-1])
}

func TestBuildQueriesDedup(t *testing.T) {
	queries := buildQueries("Heat", 1995, 0, 0)
	seen := make(map[string]bool)
	for _, q := range queries {
		assert.False(t, seen[q], "duplicate query %q", q)
		seen[q] = true
	}
}

func TestBuildQueriesEmptyTitle(t *testing.T) {
	assert.Empty(t, buildQueries("  ", 2020, 0, 0))
}

func TestParseStreamID(t *testing.T) {
	imdb, season, episode, err := parseStreamID("tt0133093")
	require.NoError(t, err)
	assert.Equal(t, "tt0133093", imdb)
	assert.Zero(t, season)
	assert.Zero(t, episode)

	imdb, season, episode, err = parseStreamID("tt0903747:2:5")
	require.NoError(t, err)
	assert.Equal(t, "tt0903747", imdb)
	assert.Equal(t, 2, season)
	assert.Equal(t, 5, episode)

	for _, bad := range []string{"tt1:x:y", "tt1:1", "tt1:0:1", "tt1:1:2:3"} {
		_, _, _, err := parseStreamID(bad)
		assert.Error(t, err, "input %q", bad)
	}
}
