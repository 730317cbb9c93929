package filter

import (
	"strconv"
	"strings"

	"streamscout/models"
)

// junkTokens lists the release-type markers that identify unwatchable
// theater rips. Matched whole-word against the tokenized title.
var junkTokens = map[string]struct{}{
	"cam": {}, "hdcam": {}, "camrip": {},
	"ts": {}, "hdts": {}, "telesync": {},
	"tc": {}, "hdtc": {}, "telecine": {},
	"scr": {}, "screener": {}, "dvdscr": {}, "bdscr": {},
	"r5": {}, "r6": {},
	"workprint": {}, "wp": {},
	"hdrip": {},
}

// IsJunk reports whether a release title carries a junk marker. Empty titles
// are treated as non-junk.
func IsJunk(title string) bool {
	if strings.TrimSpace(title) == "" {
		return false
	}
	for _, token := range Tokenize(title) {
		if _, ok := junkTokens[token]; ok {
			return true
		}
	}
	return false
}

// Options carries the per-request filter inputs.
type Options struct {
	Languages  []string
	MinSizeGiB float64
	MaxSizeGiB float64
}

const gib = 1024 * 1024 * 1024

// Candidates applies the junk, language, and size filters to a candidate
// list. Candidates with unknown size (0) pass the size window.
func Candidates(list []models.Candidate, opts Options) []models.Candidate {
	kept := make([]models.Candidate, 0, len(list))
	for _, c := range list {
		title := c.Title()
		if IsJunk(title) {
			continue
		}
		if !MatchesLanguages(title, opts.Languages) {
			continue
		}
		if size := c.SizeBytes(); size > 0 {
			if opts.MinSizeGiB > 0 && float64(size) < opts.MinSizeGiB*gib {
				continue
			}
			if opts.MaxSizeGiB > 0 && float64(size) > opts.MaxSizeGiB*gib {
				continue
			}
		}
		kept = append(kept, c)
	}
	return kept
}

// Dedup collapses duplicates in a candidate list.
//
// Torrents group by info hash: the record with the largest size wins, ties
// broken by the highest seeder count, further ties keep the first-seen
// record. Source attribution (tracker labels) is merged onto the winner.
// HTTP-stream candidates have no hash and group by provider, quality and a
// coarse size bucket instead. NZB candidates group by GUID.
func Dedup(list []models.Candidate) []models.Candidate {
	type slot struct {
		index int
	}
	byKey := make(map[string]slot)
	out := make([]models.Candidate, 0, len(list))

	for _, c := range list {
		key := dedupKey(c)
		if key == "" {
			out = append(out, c)
			continue
		}
		existing, ok := byKey[key]
		if !ok {
			byKey[key] = slot{index: len(out)}
			out = append(out, c)
			continue
		}
		winner := pickWinner(out[existing.index], c)
		out[existing.index] = winner
	}
	return out
}

func dedupKey(c models.Candidate) string {
	switch c.Kind {
	case models.KindTorrent:
		if c.Torrent == nil || c.Torrent.InfoHash == "" {
			return ""
		}
		return "t:" + strings.ToLower(c.Torrent.InfoHash)
	case models.KindHTTPStream:
		if c.HTTPStream == nil {
			return ""
		}
		// 256 MiB buckets keep near-identical encodes together without
		// collapsing distinct releases of the same quality.
		bucket := c.HTTPStream.SizeBytes >> 28
		return "h:" + c.HTTPStream.Provider + ":" + string(c.HTTPStream.Quality) + ":" + strconv.FormatInt(bucket, 10)
	case models.KindNZB:
		if c.NZB == nil || c.NZB.GUID == "" {
			return ""
		}
		return "n:" + c.NZB.GUID
	}
	return ""
}

// pickWinner keeps the larger record, then the better-seeded one, then the
// first seen. Torrent source labels are merged either way.
func pickWinner(a, b models.Candidate) models.Candidate {
	winner, loser := a, b
	switch {
	case b.SizeBytes() > a.SizeBytes():
		winner, loser = b, a
	case b.SizeBytes() == a.SizeBytes() && b.Seeders() > a.Seeders():
		winner, loser = b, a
	}

	if winner.Kind == models.KindTorrent && winner.Torrent != nil && loser.Torrent != nil {
		merged := *winner.Torrent
		merged.Sources = mergeSources(winner.Torrent, loser.Torrent)
		winner.Torrent = &merged
	}
	return winner
}

func mergeSources(a, b *models.TorrentCandidate) []string {
	seen := make(map[string]struct{})
	var sources []string
	add := func(label string) {
		label = strings.TrimSpace(label)
		if label == "" {
			return
		}
		if _, dup := seen[label]; dup {
			return
		}
		seen[label] = struct{}{}
		sources = append(sources, label)
	}
	for _, s := range a.Sources {
		add(s)
	}
	add(a.Tracker)
	for _, s := range b.Sources {
		add(s)
	}
	add(b.Tracker)
	return sources
}
