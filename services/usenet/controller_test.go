package usenet

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamscout/config"
	"streamscout/models"
)

const sampleNZB = `<?xml version="1.0" encoding="UTF-8"?>
<nzb xmlns="http://www.newzbin.com/DTD/2003/nzb">
  <file poster="a@b" date="1700000000" subject="The.Matrix.1999.1080p (1/2)">
    <groups><group>alt.binaries.test</group></groups>
    <segments>
      <segment bytes="500000" number="1">seg1@test</segment>
      <segment bytes="500000" number="2">seg2@test</segment>
    </segments>
  </file>
</nzb>`

// fakeSABServer emulates the SABnzbd API surface the controller touches.
type fakeSABServer struct {
	srv        *httptest.Server
	addCalls   atomic.Int32
	percentage atomic.Value // string
	status     atomic.Value // string
}

func newFakeSABServer(t *testing.T) *fakeSABServer {
	t.Helper()
	f := &fakeSABServer{}
	f.percentage.Store("50")
	f.status.Store("Downloading")

	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "apikey123", r.URL.Query().Get("apikey"))
		switch r.URL.Query().Get("mode") {
		case "addfile":
			f.addCalls.Add(1)
			w.Write([]byte(`{"status":true,"nzo_ids":["SABnzbd_nzo_test1"]}`))
		case "queue":
			if f.status.Load() == "Completed" {
				w.Write([]byte(`{"queue":{"slots":[]}}`))
				return
			}
			w.Write([]byte(`{"queue":{"slots":[{"nzo_id":"SABnzbd_nzo_test1","filename":"The.Matrix.1999.1080p","status":"` +
				f.status.Load().(string) + `","percentage":"` + f.percentage.Load().(string) + `","mb":"8700"}]}}`))
		case "history":
			w.Write([]byte(`{"history":{"slots":[{"nzo_id":"SABnzbd_nzo_test1","name":"The.Matrix.1999.1080p","status":"Completed","storage":"/downloads/complete/The.Matrix.1999.1080p","bytes":9126805504}]}}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	return f
}

func newNZBServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="The.Matrix.1999.1080p.nzb"`)
		w.Write([]byte(sampleNZB))
	}))
}

func seedVideoFS(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	dir := "/downloads/complete/The.Matrix.1999.1080p"
	require.NoError(t, fs.MkdirAll(dir, 0755))
	require.NoError(t, afero.WriteFile(fs, dir+"/The.Matrix.1999.1080p.mkv", make([]byte, 4096), 0644))
	require.NoError(t, afero.WriteFile(fs, dir+"/sample/The.Matrix.sample.mkv", make([]byte, 64), 0644))
	require.NoError(t, afero.WriteFile(fs, dir+"/info.nfo", make([]byte, 16), 0644))
	return fs
}

func newTestController(sab *fakeSABServer, nzb *httptest.Server, fs afero.Fs) *Controller {
	cfg := config.UsenetSettings{
		Enabled:        true,
		SABnzbdURL:     sab.srv.URL,
		SABnzbdAPIKey:  "apikey123",
		CompleteDir:    "/downloads/complete",
		ReadyPercent:   5,
		MaxWaitSeconds: 30,
	}
	client := NewSABnzbdClient(sab.srv.URL, "apikey123", sab.srv.Client())
	return NewController(cfg, client, nzb.Client(), fs)
}

func TestResolveStreamPastReadyThreshold(t *testing.T) {
	sab := newFakeSABServer(t)
	defer sab.srv.Close()
	nzb := newNZBServer(t)
	defer nzb.Close()

	c := newTestController(sab, nzb, seedVideoFS(t))
	path, err := c.ResolveStream(context.Background(), nzb.URL+"/get/1", "The Matrix 1999")
	require.NoError(t, err)
	assert.Equal(t, "/downloads/complete/The.Matrix.1999.1080p/The.Matrix.1999.1080p.mkv", path)
	assert.Equal(t, int32(1), sab.addCalls.Load())

	download, ok := c.Progress(nzb.URL + "/get/1")
	require.True(t, ok)
	assert.Equal(t, models.DownloadDownloading, download.Status)
	assert.Equal(t, path, download.Path)
}

func TestResolveStreamIsIdempotent(t *testing.T) {
	sab := newFakeSABServer(t)
	defer sab.srv.Close()
	nzb := newNZBServer(t)
	defer nzb.Close()

	c := newTestController(sab, nzb, seedVideoFS(t))
	first, err := c.ResolveStream(context.Background(), nzb.URL+"/get/1", "The Matrix 1999")
	require.NoError(t, err)
	second, err := c.ResolveStream(context.Background(), nzb.URL+"/get/1", "The Matrix 1999")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), sab.addCalls.Load(), "same NZB must not be submitted twice")
}

func TestResolveStreamCompletedUsesHistoryStorage(t *testing.T) {
	sab := newFakeSABServer(t)
	defer sab.srv.Close()
	sab.status.Store("Completed")
	nzb := newNZBServer(t)
	defer nzb.Close()

	c := newTestController(sab, nzb, seedVideoFS(t))
	path, err := c.ResolveStream(context.Background(), nzb.URL+"/get/1", "The Matrix 1999")
	require.NoError(t, err)
	assert.Equal(t, "/downloads/complete/The.Matrix.1999.1080p/The.Matrix.1999.1080p.mkv", path)

	download, ok := c.Progress(nzb.URL + "/get/1")
	require.True(t, ok)
	assert.Equal(t, models.DownloadCompleted, download.Status)
	assert.Equal(t, float64(100), download.PercentComplete)
}

func TestProgressByID(t *testing.T) {
	sab := newFakeSABServer(t)
	defer sab.srv.Close()
	nzb := newNZBServer(t)
	defer nzb.Close()

	c := newTestController(sab, nzb, seedVideoFS(t))
	_, err := c.ResolveStream(context.Background(), nzb.URL+"/get/1", "The Matrix 1999")
	require.NoError(t, err)

	download, ok := c.ProgressByID("SABnzbd_nzo_test1")
	require.True(t, ok)
	assert.Equal(t, "SABnzbd_nzo_test1", download.ID)

	_, ok = c.ProgressByID("SABnzbd_nzo_other")
	assert.False(t, ok)
}

func TestStreamPathSelectsEpisodeFromPack(t *testing.T) {
	sab := newFakeSABServer(t)
	defer sab.srv.Close()
	nzb := newNZBServer(t)
	defer nzb.Close()

	fs := seedVideoFS(t)
	dir := "/downloads/complete/The.Matrix.1999.1080p"
	require.NoError(t, afero.WriteFile(fs, dir+"/The.Matrix.S01E02.mkv", make([]byte, 256), 0644))

	c := newTestController(sab, nzb, fs)
	resolved, err := c.ResolveStream(context.Background(), nzb.URL+"/get/1", "The Matrix 1999")
	require.NoError(t, err)

	path, err := c.StreamPath("SABnzbd_nzo_test1", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, resolved, path)

	path, err = c.StreamPath("SABnzbd_nzo_test1", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, dir+"/The.Matrix.S01E02.mkv", path)

	_, err = c.StreamPath("SABnzbd_nzo_other", 0, 0)
	assert.Error(t, err)
}

func TestProgressUnknownDownload(t *testing.T) {
	sab := newFakeSABServer(t)
	defer sab.srv.Close()
	nzb := newNZBServer(t)
	defer nzb.Close()

	c := newTestController(sab, nzb, afero.NewMemMapFs())
	_, ok := c.Progress("https://never.submitted/get/9")
	assert.False(t, ok)
}

func TestNearlyDone(t *testing.T) {
	// 98% with recent fast progress: ETA under the threshold, keep waiting.
	assert.True(t, nearlyDone(98, 90, time.Now().Add(-2*time.Second)))
	// Slow progress: stream now.
	assert.False(t, nearlyDone(50, 49, time.Now().Add(-time.Minute)))
	// No earlier sample yet.
	assert.False(t, nearlyDone(50, 0, time.Time{}))
	// Stalled download never reports nearly done.
	assert.False(t, nearlyDone(50, 50, time.Now().Add(-time.Second)))
}

func TestLargestFileSize(t *testing.T) {
	assert.Equal(t, int64(1000000), largestFileSize([]byte(sampleNZB)))
	assert.Zero(t, largestFileSize([]byte("not xml")))
}

func TestDeriveNZBFileName(t *testing.T) {
	resp := &http.Response{Header: http.Header{"Content-Disposition": {`attachment; filename="release.nzb"`}}}
	assert.Equal(t, "release.nzb", deriveNZBFileName(resp, "https://x/api", "t"))

	resp = &http.Response{Header: http.Header{}}
	assert.Equal(t, "file.nzb", deriveNZBFileName(resp, "https://x/get/file.nzb", "t"))
	assert.Equal(t, "The.Matrix.1999.nzb", deriveNZBFileName(resp, "https://x/api", "The Matrix 1999"))
}

func TestPickVideoFileEpisodeMatch(t *testing.T) {
	fs := afero.NewMemMapFs()
	dir := "/downloads/complete/show"
	require.NoError(t, fs.MkdirAll(dir, 0755))
	require.NoError(t, afero.WriteFile(fs, dir+"/Show.S02E05.720p.mkv", make([]byte, 100), 0644))
	require.NoError(t, afero.WriteFile(fs, dir+"/Show.S02E06.720p.mkv", make([]byte, 200), 0644))

	c := &Controller{fs: fs}
	path, err := c.pickVideoFile(dir, "Show S02E05 720p")
	require.NoError(t, err)
	assert.Equal(t, dir+"/Show.S02E05.720p.mkv", path)

	// Without an episode tag the largest video wins.
	path, err = c.pickVideoFile(dir, "Show Season 2")
	require.NoError(t, err)
	assert.Equal(t, dir+"/Show.S02E06.720p.mkv", path)
}

func TestPickVideoFileNoVideos(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/empty", 0755))
	c := &Controller{fs: fs}
	_, err := c.pickVideoFile("/empty", "x")
	assert.Error(t, err)
}
