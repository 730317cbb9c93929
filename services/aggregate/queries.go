package aggregate

import (
	"fmt"
	"strconv"
	"strings"
)

// digitWords maps the small numerals franchises spell out ("Rocky II",
// "Ocean's 8"); conversions both ways feed the fallback queries.
var digitWords = map[string]string{
	"1": "one", "2": "two", "3": "three", "4": "four", "5": "five",
	"6": "six", "7": "seven", "8": "eight", "9": "nine", "10": "ten",
}

var wordDigits = func() map[string]string {
	m := make(map[string]string, len(digitWords))
	for digit, word := range digitWords {
		m[word] = digit
	}
	return m
}()

// buildQueries returns the keyword queries to try, most specific first.
// Fallbacks cover the common mismatches between canonical metadata titles
// and release names: subtitle after a colon, missing year, and numerals
// written out as words (or the reverse).
func buildQueries(title string, year, season, episode int) []string {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil
	}

	var queries []string
	add := func(q string) {
		q = strings.Join(strings.Fields(q), " ")
		if q == "" {
			return
		}
		for _, existing := range queries {
			if strings.EqualFold(existing, q) {
				return
			}
		}
		queries = append(queries, q)
	}

	if season > 0 && episode > 0 {
		tag := fmt.Sprintf("S%02dE%02d", season, episode)
		add(title + " " + tag)
		if short := stripSubtitle(title); short != title {
			add(short + " " + tag)
		}
		if swapped := swapNumerals(title); swapped != title {
			add(swapped + " " + tag)
		}
		add(title)
		return queries
	}

	if year > 0 {
		add(fmt.Sprintf("%s %d", title, year))
	}
	if short := stripSubtitle(title); short != title {
		if year > 0 {
			add(fmt.Sprintf("%s %d", short, year))
		}
		add(short)
	}
	if swapped := swapNumerals(title); swapped != title {
		if year > 0 {
			add(fmt.Sprintf("%s %d", swapped, year))
		}
		add(swapped)
	}
	add(title)
	return queries
}

// stripSubtitle drops everything after a colon or dash subtitle separator.
func stripSubtitle(title string) string {
	for _, sep := range []string{":", " - "} {
		if i := strings.Index(title, sep); i > 0 {
			return strings.TrimSpace(title[:i])
		}
	}
	return title
}

// swapNumerals converts trailing digits to words and vice versa.
func swapNumerals(title string) string {
	fields := strings.Fields(title)
	changed := false
	for i, field := range fields {
		lower := strings.ToLower(field)
		if word, ok := digitWords[lower]; ok {
			fields[i] = word
			changed = true
		} else if digit, ok := wordDigits[lower]; ok {
			fields[i] = digit
			changed = true
		}
	}
	if !changed {
		return title
	}
	return strings.Join(fields, " ")
}

// parseStreamID splits "<imdb>" or "<imdb>:<season>:<episode>".
func parseStreamID(id string) (imdbID string, season, episode int, err error) {
	parts := strings.Split(strings.TrimSpace(id), ":")
	switch len(parts) {
	case 1:
		return parts[0], 0, 0, nil
	case 3:
		season, serr := strconv.Atoi(parts[1])
		episode, eerr := strconv.Atoi(parts[2])
		if serr != nil || eerr != nil || season <= 0 || episode <= 0 {
			return "", 0, 0, fmt.Errorf("malformed series id %q", id)
		}
		return parts[0], season, episode, nil
	default:
		return "", 0, 0, fmt.Errorf("malformed stream id %q", id)
	}
}
