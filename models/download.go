package models

import "time"

// DownloadStatus mirrors the downloader's queue states.
type DownloadStatus string

const (
	DownloadQueued      DownloadStatus = "queued"
	DownloadDownloading DownloadStatus = "downloading"
	DownloadCompleted   DownloadStatus = "completed"
	DownloadFailed      DownloadStatus = "failed"
	DownloadError       DownloadStatus = "error"
)

// Download tracks one usenet download from submission to streamability.
type Download struct {
	ID              string         `json:"downloadId"`
	Name            string         `json:"name"`
	StartedAt       time.Time      `json:"startedAt"`
	PercentComplete float64        `json:"percentComplete"`
	Status          DownloadStatus `json:"status"`
	Bytes           int64          `json:"bytes"`
	Path            string         `json:"path,omitempty"`
}

// Terminal reports whether the download reached a state that will not change.
func (d Download) Terminal() bool {
	switch d.Status {
	case DownloadCompleted, DownloadFailed, DownloadError:
		return true
	}
	return false
}
