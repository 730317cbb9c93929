package scraper

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"streamscout/utils/filter"
)

var (
	reHexHash    = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)
	reHumanSize  = regexp.MustCompile(`([\d.,]+)\s*([KMGTP]?i?B)`)
	reMagnetBTIH = regexp.MustCompile(`(?i)btih:([0-9a-f]{40})`)
)

func formatEpisodeTag(season, episode int) string {
	return fmt.Sprintf("S%02dE%02d", season, episode)
}

// normalizeHash lowercases a 40-hex info hash; anything else returns empty.
func normalizeHash(raw string) string {
	raw = strings.TrimSpace(raw)
	if !reHexHash.MatchString(raw) {
		return ""
	}
	return strings.ToLower(raw)
}

// hashFromMagnet extracts the btih hash from a magnet URI.
func hashFromMagnet(magnet string) string {
	match := reMagnetBTIH.FindStringSubmatch(magnet)
	if len(match) != 2 {
		return ""
	}
	return strings.ToLower(match[1])
}

// syntheticHash derives a stable pseudo info hash for sources that expose no
// real one. Callers must flag the candidate so it never reaches debrid APIs.
func syntheticHash(seed string) string {
	sum := sha1.Sum([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// buildMagnet assembles a magnet URI from a hash and optional trackers.
func buildMagnet(infoHash, title string, trackers []string) string {
	if infoHash == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString("magnet:?xt=urn:btih:")
	b.WriteString(strings.ToUpper(infoHash))
	if title != "" {
		b.WriteString("&dn=")
		b.WriteString(url.QueryEscape(title))
	}
	for _, tracker := range trackers {
		b.WriteString("&tr=")
		b.WriteString(url.QueryEscape(tracker))
	}
	return b.String()
}

// parseHumanSize converts "12.4 GB" / "700 MiB" style strings to bytes.
// Units are read as powers of 1024. Unknown input returns 0.
func parseHumanSize(raw string) int64 {
	match := reHumanSize.FindStringSubmatch(raw)
	if len(match) != 3 {
		return 0
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(match[1], ",", ""), 64)
	if err != nil {
		return 0
	}
	unit := strings.ToUpper(strings.ReplaceAll(match[2], "I", ""))
	multipliers := map[string]float64{
		"B":  1,
		"KB": 1 << 10,
		"MB": 1 << 20,
		"GB": 1 << 30,
		"TB": 1 << 40,
		"PB": 1 << 50,
	}
	mult, ok := multipliers[unit]
	if !ok {
		return 0
	}
	return int64(value * mult)
}

// matchesStrictTitle reports whether a release title carries every word of
// the expected name as a whole token, plus the year when one is known. Public
// keyword trackers return loosely related hits; this keeps only real matches.
func matchesStrictTitle(releaseTitle, name string, year int) bool {
	tokens := make(map[string]bool)
	for _, tok := range filter.Tokenize(releaseTitle) {
		tokens[tok] = true
	}
	for _, want := range filter.Tokenize(name) {
		if !tokens[want] {
			return false
		}
	}
	if year > 0 && !tokens[strconv.Itoa(year)] {
		return false
	}
	return true
}

// humanSize renders a byte count the way tracker pages do.
func humanSize(bytes int64) string {
	switch {
	case bytes >= 1<<40:
		return fmt.Sprintf("%.2f TB", float64(bytes)/float64(1<<40))
	case bytes >= 1<<30:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(1<<30))
	case bytes >= 1<<20:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(1<<20))
	case bytes > 0:
		return fmt.Sprintf("%d B", bytes)
	default:
		return ""
	}
}
