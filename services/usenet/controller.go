// Package usenet drives NZB downloads to the point of streamability: fetch
// the NZB from the indexer, hand it to SABnzbd, poll until enough of the
// file is on disk, then pick the video to serve.
package usenet

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/javi11/nzbparser"
	"github.com/spf13/afero"

	"streamscout/config"
	"streamscout/models"
)

const (
	pollInterval = 3 * time.Second
	// A download this close to done is worth waiting out rather than
	// streaming a partial file.
	smartCompleteETA = 20 * time.Second

	defaultReadyPercent = 5.0
	defaultMaxWait      = 5 * time.Minute
)

// Controller owns the download lifecycle. Concurrent resolutions of the same
// NZB share one SABnzbd job.
type Controller struct {
	cfg        config.UsenetSettings
	sab        *SABnzbdClient
	httpClient *http.Client
	fs         afero.Fs

	mu        sync.Mutex
	downloads map[string]*trackedDownload // keyed by download URL
}

type trackedDownload struct {
	nzoID     string
	title     string
	startedAt time.Time
	state     models.Download
	filePath  string
}

func NewController(cfg config.UsenetSettings, sab *SABnzbdClient, httpClient *http.Client, fs afero.Fs) *Controller {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Controller{
		cfg:        cfg,
		sab:        sab,
		httpClient: httpClient,
		fs:         fs,
		downloads:  make(map[string]*trackedDownload),
	}
}

// ResolveStream fetches the NZB, submits it, and blocks until the download
// is streamable, returning the path of the picked video file. Repeat calls
// for the same URL attach to the in-flight job instead of resubmitting.
func (c *Controller) ResolveStream(ctx context.Context, downloadURL, title string) (string, error) {
	tracked, err := c.ensureSubmitted(ctx, downloadURL, title)
	if err != nil {
		return "", err
	}
	if tracked.filePath != "" {
		return tracked.filePath, nil
	}
	return c.waitUntilStreamable(ctx, downloadURL, tracked)
}

// Progress reports the current state of a download by its URL. Safe to poll.
func (c *Controller) Progress(downloadURL string) (models.Download, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tracked, ok := c.downloads[downloadURL]
	if !ok {
		return models.Download{}, false
	}
	return tracked.state, true
}

// ProgressByID reports the current state of a download by its download id.
func (c *Controller) ProgressByID(downloadID string) (models.Download, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tracked := range c.downloads {
		if tracked.state.ID == downloadID {
			return tracked.state, true
		}
	}
	return models.Download{}, false
}

// StreamPath returns the playable file inside a tracked download. A season
// and episode pick the matching file out of a season pack; without them the
// file chosen at resolution time is returned.
func (c *Controller) StreamPath(downloadID string, season, episode int) (string, error) {
	c.mu.Lock()
	var tracked *trackedDownload
	for _, t := range c.downloads {
		if t.state.ID == downloadID {
			tracked = t
			break
		}
	}
	c.mu.Unlock()
	if tracked == nil {
		return "", fmt.Errorf("unknown download %s", downloadID)
	}

	if season <= 0 && tracked.filePath != "" {
		return tracked.filePath, nil
	}
	title := tracked.title
	if season > 0 && episode > 0 {
		title = fmt.Sprintf("S%02dE%02d", season, episode)
	}
	dir := c.jobDir(tracked.state.Name)
	if tracked.filePath != "" {
		dir = filepath.Dir(tracked.filePath)
	}
	return c.pickVideoFile(dir, title)
}

func (c *Controller) ensureSubmitted(ctx context.Context, downloadURL, title string) (*trackedDownload, error) {
	c.mu.Lock()
	if tracked, ok := c.downloads[downloadURL]; ok {
		c.mu.Unlock()
		return tracked, nil
	}
	c.mu.Unlock()

	nzbBytes, fileName, err := c.fetchNZB(ctx, downloadURL, title)
	if err != nil {
		return nil, err
	}
	expectedBytes := largestFileSize(nzbBytes)

	// Racing submitters: only the first one wins the map slot.
	c.mu.Lock()
	if tracked, ok := c.downloads[downloadURL]; ok {
		c.mu.Unlock()
		return tracked, nil
	}
	c.mu.Unlock()

	nzoID, err := c.sab.AddFile(ctx, fileName, nzbBytes)
	if err != nil {
		return nil, fmt.Errorf("submit to sabnzbd: %w", err)
	}
	log.Printf("[usenet] submitted %q as %s (%.2f GB expected)", fileName, nzoID, float64(expectedBytes)/float64(1<<30))

	tracked := &trackedDownload{
		nzoID:     nzoID,
		title:     title,
		startedAt: time.Now(),
		state: models.Download{
			ID:        nzoID,
			Name:      fileName,
			StartedAt: time.Now(),
			Status:    models.DownloadQueued,
			Bytes:     expectedBytes,
		},
	}
	c.mu.Lock()
	if existing, ok := c.downloads[downloadURL]; ok {
		c.mu.Unlock()
		// Lost the race after submitting; drop our duplicate job.
		if derr := c.sab.Delete(context.Background(), nzoID); derr != nil {
			log.Printf("[usenet] deleting duplicate job %s failed: %v", nzoID, derr)
		}
		return existing, nil
	}
	c.downloads[downloadURL] = tracked
	c.mu.Unlock()
	return tracked, nil
}

// waitUntilStreamable polls SABnzbd until the download is complete, or far
// enough along to stream. A download past the ready threshold is still
// waited out when its remaining time is small, so the player never starts
// on a file about to be renamed.
func (c *Controller) waitUntilStreamable(ctx context.Context, downloadURL string, tracked *trackedDownload) (string, error) {
	maxWait := time.Duration(c.cfg.MaxWaitSeconds) * time.Second
	if maxWait <= 0 {
		maxWait = defaultMaxWait
	}
	readyPercent := c.cfg.ReadyPercent
	if readyPercent <= 0 {
		readyPercent = defaultReadyPercent
	}
	deadline := time.Now().Add(maxWait)

	var (
		lastPercent float64
		lastSample  time.Time
	)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		state, known, err := c.sab.Status(ctx, tracked.nzoID)
		if err != nil {
			log.Printf("[usenet] status poll for %s failed: %v", tracked.nzoID, err)
		} else if !known {
			return "", fmt.Errorf("sabnzbd lost job %s", tracked.nzoID)
		} else {
			state.StartedAt = tracked.startedAt
			c.record(tracked, state)

			switch state.Status {
			case models.DownloadFailed, models.DownloadError:
				return "", fmt.Errorf("download failed: %s", state.Name)
			case models.DownloadCompleted:
				return c.pickAndRemember(tracked, state)
			case models.DownloadDownloading:
				if state.PercentComplete >= readyPercent &&
					!nearlyDone(state.PercentComplete, lastPercent, lastSample) {
					return c.pickAndRemember(tracked, state)
				}
			}
			lastPercent, lastSample = state.PercentComplete, time.Now()
		}

		if time.Now().After(deadline) {
			return "", fmt.Errorf("download %s not streamable after %s", tracked.nzoID, maxWait)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// nearlyDone estimates the time to 100% from the progress made since the
// last sample. Under the threshold it is cheaper to let the download finish.
func nearlyDone(percent, lastPercent float64, lastSample time.Time) bool {
	if percent >= 100 || lastSample.IsZero() || percent <= lastPercent {
		return false
	}
	rate := (percent - lastPercent) / time.Since(lastSample).Seconds() // %/s
	if rate <= 0 {
		return false
	}
	eta := time.Duration((100-percent)/rate) * time.Second
	return eta < smartCompleteETA
}

func (c *Controller) pickAndRemember(tracked *trackedDownload, state models.Download) (string, error) {
	dir := state.Path
	if dir == "" {
		dir = c.jobDir(state.Name)
	}
	filePath, err := c.pickVideoFile(dir, tracked.title)
	if err != nil {
		return "", fmt.Errorf("pick video in %s: %w", dir, err)
	}

	c.mu.Lock()
	tracked.filePath = filePath
	tracked.state.Path = filePath
	c.mu.Unlock()
	log.Printf("[usenet] %s streamable at %.1f%%: %s", tracked.nzoID, state.PercentComplete, filePath)
	return filePath, nil
}

func (c *Controller) record(tracked *trackedDownload, state models.Download) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tracked.filePath != "" {
		state.Path = tracked.filePath
	}
	tracked.state = state
}

func (c *Controller) jobDir(jobName string) string {
	base := strings.TrimRight(c.cfg.CompleteDir, "/")
	return base + "/" + strings.TrimSuffix(jobName, ".nzb")
}

// fetchNZB downloads the NZB document from the indexer.
func (c *Controller) fetchNZB(ctx context.Context, downloadURL, title string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build nzb request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download nzb: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, "", fmt.Errorf("download nzb failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, "", fmt.Errorf("read nzb body: %w", err)
	}
	return data, deriveNZBFileName(resp, downloadURL, title), nil
}

// largestFileSize sums segment sizes per file and returns the biggest, a
// good proxy for the video payload.
func largestFileSize(nzbBytes []byte) int64 {
	parsed, err := nzbparser.Parse(bytes.NewReader(nzbBytes))
	if err != nil || len(parsed.Files) == 0 {
		return 0
	}
	var largest int64
	for _, f := range parsed.Files {
		var size int64
		for _, seg := range f.Segments {
			size += int64(seg.Bytes)
		}
		if size > largest {
			largest = size
		}
	}
	return largest
}

func deriveNZBFileName(resp *http.Response, downloadURL, title string) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if name := fileNameFromContentDisposition(cd); name != "" {
			return ensureNZBExtension(name)
		}
	}
	if parsed, err := url.Parse(downloadURL); err == nil && parsed.Path != "" {
		parts := strings.Split(parsed.Path, "/")
		if candidate := parts[len(parts)-1]; candidate != "" && candidate != "api" {
			return ensureNZBExtension(candidate)
		}
	}
	if trimmed := strings.TrimSpace(title); trimmed != "" {
		safe := strings.Map(func(r rune) rune {
			switch {
			case r == ' ':
				return '.'
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
				return r
			case r == '.' || r == '-' || r == '_':
				return r
			default:
				return -1
			}
		}, trimmed)
		if safe != "" {
			return ensureNZBExtension(safe)
		}
	}
	return ensureNZBExtension("streamscout")
}

func fileNameFromContentDisposition(cd string) string {
	for _, part := range strings.Split(cd, ";") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(strings.ToLower(part), "filename=") {
			value := strings.Trim(strings.TrimPrefix(part, "filename="), `"`)
			if value != "" {
				return value
			}
		}
	}
	return ""
}

func ensureNZBExtension(name string) string {
	if strings.HasSuffix(strings.ToLower(name), ".nzb") {
		return name
	}
	return name + ".nzb"
}
