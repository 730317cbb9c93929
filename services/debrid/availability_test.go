package debrid

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamscout/internal/cache"
	"streamscout/internal/fetch"
	"streamscout/models"
)

const (
	hashCached  = "a1b2c3d4e5f6a7b8c9d0a1b2c3d4e5f6a7b8c9d0"
	hashMissing = "b2c3d4e5f6a7b8c9d0a1b2c3d4e5f6a7b8c9d0a1"
	hashUnknown = "c3d4e5f6a7b8c9d0a1b2c3d4e5f6a7b8c9d0a1b2"
)

type fakeClient struct {
	calls    atomic.Int32
	verdicts map[string]bool
}

func (f *fakeClient) Service() string { return "fakedebrid" }

func (f *fakeClient) CheckCached(ctx context.Context, hashes []string) (map[string]bool, error) {
	f.calls.Add(1)
	out := make(map[string]bool, len(hashes))
	for _, h := range hashes {
		out[h] = f.verdicts[h]
	}
	return out, nil
}

func torrent(hash string, synthetic bool) models.Candidate {
	return models.NewTorrentCandidate(models.TorrentCandidate{
		Title:         "Release." + hash[:8],
		InfoHash:      hash,
		SyntheticHash: synthetic,
	})
}

func TestAnnotatePartitionsFromCacheOnly(t *testing.T) {
	store := cache.NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, cache.AvailabilityKey("fakedebrid", hashCached), []byte("1"), time.Minute))
	require.NoError(t, store.Put(ctx, cache.AvailabilityKey("fakedebrid", hashMissing), []byte("0"), time.Minute))

	client := &fakeClient{verdicts: map[string]bool{hashUnknown: true}}
	svc := NewService(client, store)

	cached, other := svc.Annotate(ctx, []models.Candidate{
		torrent(hashCached, false),
		torrent(hashMissing, false),
		torrent(hashUnknown, false),
	})

	require.Len(t, cached, 1)
	assert.Equal(t, hashCached, cached[0].Torrent.InfoHash)
	// The unknown hash stays uncached for this request; the refresh runs in
	// the background.
	assert.Len(t, other, 2)

	assert.Eventually(t, func() bool {
		rec, ok, err := store.Get(ctx, cache.AvailabilityKey("fakedebrid", hashUnknown))
		return err == nil && ok && string(rec.Value) == "1"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAnnotateSkipsSyntheticHashes(t *testing.T) {
	store := cache.NewMemoryStore()
	defer store.Close()

	client := &fakeClient{verdicts: map[string]bool{}}
	svc := NewService(client, store)

	cached, other := svc.Annotate(context.Background(), []models.Candidate{
		torrent(hashUnknown, true),
	})
	assert.Empty(t, cached)
	assert.Len(t, other, 1)

	// No background refresh for synthetic hashes.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), client.calls.Load())
}

func TestAnnotateNilServicePassesThrough(t *testing.T) {
	var svc *Service
	input := []models.Candidate{torrent(hashCached, false)}
	cached, other := svc.Annotate(context.Background(), input)
	assert.Empty(t, cached)
	assert.Equal(t, input, other)
}

func TestAllDebridClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token123", r.Header.Get("Authorization"))
		assert.Equal(t, []string{hashCached, hashMissing}, r.URL.Query()["magnets[]"])
		w.Write([]byte(`{"status":"success","data":{"magnets":[
			{"hash":"` + hashCached + `","instant":true},
			{"hash":"` + hashMissing + `","instant":false}
		]}}`))
	}))
	defer srv.Close()

	c := NewAllDebridClient(fetch.NewClient(srv.Client()), "token123")
	c.baseURL = srv.URL

	verdicts, err := c.CheckCached(context.Background(), []string{hashCached, hashMissing})
	require.NoError(t, err)
	assert.True(t, verdicts[hashCached])
	assert.False(t, verdicts[hashMissing])
}

func TestRealDebridClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"` + hashCached + `": {"rd": [{"1": {"filename": "x.mkv"}}]},
			"` + hashMissing + `": {}
		}`))
	}))
	defer srv.Close()

	c := NewRealDebridClient(fetch.NewClient(srv.Client()), "token123")
	c.baseURL = srv.URL

	verdicts, err := c.CheckCached(context.Background(), []string{hashCached, hashMissing, hashUnknown})
	require.NoError(t, err)
	assert.True(t, verdicts[hashCached])
	assert.False(t, verdicts[hashMissing])
	assert.False(t, verdicts[hashUnknown])
}

func TestNewClientFactory(t *testing.T) {
	client, err := NewClient("alldebrid", "tok", fetch.NewClient(nil))
	require.NoError(t, err)
	assert.Equal(t, "alldebrid", client.Service())

	client, err = NewClient("", "", nil)
	require.NoError(t, err)
	assert.Nil(t, client)

	_, err = NewClient("unknownservice", "", nil)
	assert.Error(t, err)
}
