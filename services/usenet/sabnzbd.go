package usenet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"streamscout/models"
)

// SABnzbdClient talks to a SABnzbd instance over its JSON API.
type SABnzbdClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewSABnzbdClient(baseURL, apiKey string, httpClient *http.Client) *SABnzbdClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &SABnzbdClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// AddFile uploads an NZB and returns the queue id SABnzbd assigned.
func (c *SABnzbdClient) AddFile(ctx context.Context, fileName string, nzbBytes []byte) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("name", fileName)
	if err != nil {
		return "", fmt.Errorf("build nzb upload: %w", err)
	}
	if _, err := part.Write(nzbBytes); err != nil {
		return "", fmt.Errorf("build nzb upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("build nzb upload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api?%s", c.baseURL, url.Values{
		"mode":    {"addfile"},
		"apikey":  {c.apiKey},
		"output":  {"json"},
		"nzbname": {fileName},
	}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit nzb: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read sabnzbd response: %w", err)
	}

	var result struct {
		Status bool     `json:"status"`
		NzoIDs []string `json:"nzo_ids"`
		Error  string   `json:"error"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decode sabnzbd response: %w", err)
	}
	if !result.Status || len(result.NzoIDs) == 0 {
		if result.Error != "" {
			return "", fmt.Errorf("sabnzbd rejected nzb: %s", result.Error)
		}
		return "", fmt.Errorf("sabnzbd rejected nzb")
	}
	return result.NzoIDs[0], nil
}

// Status looks a job up in the queue, then in history once it has left the
// queue. The boolean reports whether the job is known at all.
func (c *SABnzbdClient) Status(ctx context.Context, nzoID string) (models.Download, bool, error) {
	if d, ok, err := c.queueStatus(ctx, nzoID); err != nil || ok {
		return d, ok, err
	}
	return c.historyStatus(ctx, nzoID)
}

func (c *SABnzbdClient) queueStatus(ctx context.Context, nzoID string) (models.Download, bool, error) {
	body, err := c.get(ctx, url.Values{"mode": {"queue"}, "nzo_ids": {nzoID}})
	if err != nil {
		return models.Download{}, false, err
	}

	var result struct {
		Queue struct {
			Slots []struct {
				NzoID      string `json:"nzo_id"`
				Filename   string `json:"filename"`
				Status     string `json:"status"`
				Percentage string `json:"percentage"`
				MB         string `json:"mb"`
			} `json:"slots"`
		} `json:"queue"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return models.Download{}, false, fmt.Errorf("decode queue response: %w", err)
	}

	for _, slot := range result.Queue.Slots {
		if slot.NzoID != nzoID {
			continue
		}
		percent, _ := strconv.ParseFloat(slot.Percentage, 64)
		mb, _ := strconv.ParseFloat(slot.MB, 64)
		status := models.DownloadDownloading
		if strings.EqualFold(slot.Status, "Queued") || strings.EqualFold(slot.Status, "Paused") {
			status = models.DownloadQueued
		}
		return models.Download{
			ID:              slot.NzoID,
			Name:            slot.Filename,
			PercentComplete: percent,
			Status:          status,
			Bytes:           int64(mb * 1024 * 1024),
		}, true, nil
	}
	return models.Download{}, false, nil
}

func (c *SABnzbdClient) historyStatus(ctx context.Context, nzoID string) (models.Download, bool, error) {
	body, err := c.get(ctx, url.Values{"mode": {"history"}, "nzo_ids": {nzoID}})
	if err != nil {
		return models.Download{}, false, err
	}

	var result struct {
		History struct {
			Slots []struct {
				NzoID       string `json:"nzo_id"`
				Name        string `json:"name"`
				Status      string `json:"status"`
				Storage     string `json:"storage"`
				Bytes       int64  `json:"bytes"`
				FailMessage string `json:"fail_message"`
			} `json:"slots"`
		} `json:"history"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return models.Download{}, false, fmt.Errorf("decode history response: %w", err)
	}

	for _, slot := range result.History.Slots {
		if slot.NzoID != nzoID {
			continue
		}
		download := models.Download{
			ID:    slot.NzoID,
			Name:  slot.Name,
			Bytes: slot.Bytes,
			Path:  slot.Storage,
		}
		switch strings.ToLower(slot.Status) {
		case "completed":
			download.Status = models.DownloadCompleted
			download.PercentComplete = 100
		case "failed":
			download.Status = models.DownloadFailed
			if slot.FailMessage != "" {
				download.Name = slot.Name + " (" + slot.FailMessage + ")"
			}
		default:
			download.Status = models.DownloadDownloading
		}
		return download, true, nil
	}
	return models.Download{}, false, nil
}

// Delete removes a job from the queue, discarding downloaded data.
func (c *SABnzbdClient) Delete(ctx context.Context, nzoID string) error {
	_, err := c.get(ctx, url.Values{"mode": {"queue"}, "name": {"delete"}, "value": {nzoID}, "del_files": {"1"}})
	return err
}

func (c *SABnzbdClient) get(ctx context.Context, params url.Values) ([]byte, error) {
	params.Set("apikey", c.apiKey)
	params.Set("output", "json")
	endpoint := fmt.Sprintf("%s/api?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sabnzbd request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sabnzbd returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read sabnzbd response: %w", err)
	}
	return body, nil
}
