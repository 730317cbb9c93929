package models

import "strings"

// CandidateKind discriminates the variants of a normalized scraper result.
type CandidateKind string

const (
	KindTorrent    CandidateKind = "torrent"
	KindHTTPStream CandidateKind = "http-stream"
	KindNZB        CandidateKind = "nzb"
)

// Quality is a canonical resolution bucket used for ranking and display.
type Quality string

const (
	Quality4K    Quality = "4k"
	Quality1080p Quality = "1080p"
	Quality720p  Quality = "720p"
	Quality480p  Quality = "480p"
	QualityOther Quality = "other"
)

// Weight returns the ranking weight of a quality bucket, higher is better.
func (q Quality) Weight() int {
	switch q {
	case Quality4K:
		return 4
	case Quality1080p:
		return 3
	case Quality720p:
		return 2
	case Quality480p:
		return 1
	default:
		return 0
	}
}

// QualityFromTitle detects the resolution bucket from a release title.
func QualityFromTitle(title string) Quality {
	release := strings.ToLower(title)
	switch {
	case strings.Contains(release, "2160p") || strings.Contains(release, "4k") || strings.Contains(release, "uhd"):
		return Quality4K
	case strings.Contains(release, "1080p") || strings.Contains(release, "1080i"):
		return Quality1080p
	case strings.Contains(release, "720p"):
		return Quality720p
	case strings.Contains(release, "480p") || strings.Contains(release, "360p"):
		return Quality480p
	default:
		return QualityOther
	}
}

// TorrentCandidate is the normalized record produced by torrent scrapers.
type TorrentCandidate struct {
	Title         string            `json:"title"`
	InfoHash      string            `json:"infoHash"`
	SyntheticHash bool              `json:"syntheticHash,omitempty"`
	SizeBytes     int64             `json:"sizeBytes"`
	Seeders       int               `json:"seeders"`
	Tracker       string            `json:"tracker"`
	Languages     []string          `json:"languages,omitempty"`
	Magnet        string            `json:"magnet,omitempty"`
	Quality       Quality           `json:"quality"`
	Sources       []string          `json:"sources,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`
}

// HTTPStreamCandidate is the normalized record produced by HTTP-stream scrapers.
// Payload carries the provider-specific resolution token fields; it is wrapped
// into an opaque token when the preview stream is synthesized.
type HTTPStreamCandidate struct {
	DisplayName     string            `json:"displayName"`
	Quality         Quality           `json:"quality"`
	SizeHuman       string            `json:"size"`
	SizeBytes       int64             `json:"sizeBytes"`
	Provider        string            `json:"provider"`
	Languages       []string          `json:"languages,omitempty"`
	Payload         map[string]string `json:"payload"`
	NeedsResolution bool              `json:"needsResolution"`
	// DirectURL is set only when lazy loading is disabled and the adapter
	// resolved the final URL at search time.
	DirectURL string `json:"directUrl,omitempty"`
}

// NZBCandidate is the normalized record produced by the usenet indexer scraper.
type NZBCandidate struct {
	Title       string   `json:"title"`
	GUID        string   `json:"guid"`
	DownloadURL string   `json:"downloadUrl"`
	SizeBytes   int64    `json:"sizeBytes"`
	Indexer     string   `json:"indexer"`
	Languages   []string `json:"languages,omitempty"`
	Quality     Quality  `json:"quality"`
}

// Candidate is the closed union carried through the aggregation pipeline.
// Exactly one variant matching Kind is non-nil.
type Candidate struct {
	Kind       CandidateKind        `json:"kind"`
	Torrent    *TorrentCandidate    `json:"torrent,omitempty"`
	HTTPStream *HTTPStreamCandidate `json:"httpStream,omitempty"`
	NZB        *NZBCandidate        `json:"nzb,omitempty"`
}

// NewTorrentCandidate wraps a torrent record into the union.
func NewTorrentCandidate(t TorrentCandidate) Candidate {
	return Candidate{Kind: KindTorrent, Torrent: &t}
}

// NewHTTPStreamCandidate wraps an HTTP-stream record into the union.
func NewHTTPStreamCandidate(h HTTPStreamCandidate) Candidate {
	return Candidate{Kind: KindHTTPStream, HTTPStream: &h}
}

// NewNZBCandidate wraps an NZB record into the union.
func NewNZBCandidate(n NZBCandidate) Candidate {
	return Candidate{Kind: KindNZB, NZB: &n}
}

// Title returns the release title of whichever variant is set.
func (c Candidate) Title() string {
	switch c.Kind {
	case KindTorrent:
		if c.Torrent != nil {
			return c.Torrent.Title
		}
	case KindHTTPStream:
		if c.HTTPStream != nil {
			return c.HTTPStream.DisplayName
		}
	case KindNZB:
		if c.NZB != nil {
			return c.NZB.Title
		}
	}
	return ""
}

// SizeBytes returns the payload size of whichever variant is set, 0 if unknown.
func (c Candidate) SizeBytes() int64 {
	switch c.Kind {
	case KindTorrent:
		if c.Torrent != nil {
			return c.Torrent.SizeBytes
		}
	case KindHTTPStream:
		if c.HTTPStream != nil {
			return c.HTTPStream.SizeBytes
		}
	case KindNZB:
		if c.NZB != nil {
			return c.NZB.SizeBytes
		}
	}
	return 0
}

// Quality returns the resolution bucket of whichever variant is set.
func (c Candidate) Quality() Quality {
	switch c.Kind {
	case KindTorrent:
		if c.Torrent != nil {
			return c.Torrent.Quality
		}
	case KindHTTPStream:
		if c.HTTPStream != nil {
			return c.HTTPStream.Quality
		}
	case KindNZB:
		if c.NZB != nil {
			return c.NZB.Quality
		}
	}
	return QualityOther
}

// Seeders returns the seeder count for torrent candidates, 0 otherwise.
func (c Candidate) Seeders() int {
	if c.Kind == KindTorrent && c.Torrent != nil {
		return c.Torrent.Seeders
	}
	return 0
}

// Languages returns the detected language codes of whichever variant is set.
func (c Candidate) Languages() []string {
	switch c.Kind {
	case KindTorrent:
		if c.Torrent != nil {
			return c.Torrent.Languages
		}
	case KindHTTPStream:
		if c.HTTPStream != nil {
			return c.HTTPStream.Languages
		}
	case KindNZB:
		if c.NZB != nil {
			return c.NZB.Languages
		}
	}
	return nil
}

// PreviewStream is the outbound shape for a stream the client resolves on
// click. URL always points at this service's own resolve endpoint; the
// upstream URL never appears in client output.
type PreviewStream struct {
	Name            string            `json:"name"`
	Title           string            `json:"title"`
	URL             string            `json:"url"`
	Resolution      string            `json:"resolution,omitempty"`
	Size            string            `json:"size,omitempty"`
	InfoHash        string            `json:"infoHash,omitempty"`
	NeedsResolution bool              `json:"needsResolution"`
	BehaviorHints   map[string]any    `json:"behaviorHints,omitempty"`
	Languages       []string          `json:"languages,omitempty"`
	Attributes      map[string]string `json:"attributes,omitempty"`
}

// ResolvedStream is a final playable descriptor whose URL is known to accept
// HTTP range requests (unless validation was disabled by configuration).
type ResolvedStream struct {
	URL      string `json:"url"`
	FileName string `json:"fileName,omitempty"`
}
