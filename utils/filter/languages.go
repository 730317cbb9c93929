package filter

import (
	"strings"

	"github.com/mozillazg/go-unidecode"
)

// languageTokens maps an ISO-ish language code to the release-title tokens
// that indicate it. Tokens are matched whole-word against the tokenized title.
var languageTokens = map[string][]string{
	"en": {"english", "eng"},
	"ru": {"russian", "rus"},
	"fr": {"french", "fre", "fra", "vostfr", "vff", "vf", "vfq", "truefrench"},
	"es": {"spanish", "spa", "esp", "castellano", "latino", "lat", "espanol"},
	"de": {"german", "ger", "deu", "deutsch"},
	"it": {"italian", "ita", "italiano"},
	"pt": {"portuguese", "por", "dublado", "nacional"},
	"pl": {"polish", "pol", "lektor"},
	// Multi-audio releases carry several languages; treated as non-English
	// for the purposes of the English-only filter.
	"multi": {"multi", "multilang", "dual"},
}

var tokenToLanguage = func() map[string]string {
	m := make(map[string]string)
	for code, tokens := range languageTokens {
		for _, token := range tokens {
			m[token] = code
		}
	}
	return m
}()

// Tokenize splits a release title into lowercase tokens. Brackets, dots,
// parentheses, underscores and dashes all act as separators.
func Tokenize(title string) []string {
	replacer := strings.NewReplacer(
		"[", " ", "]", " ", ".", " ", "(", " ", ")", " ", "_", " ", "-", " ",
	)
	normalized := strings.ToLower(replacer.Replace(unidecode.Unidecode(title)))
	return strings.Fields(normalized)
}

// DetectLanguages returns the set of language codes whose tokens appear in
// the title. The result is deterministic but unordered.
func DetectLanguages(title string) []string {
	if title == "" {
		return nil
	}
	seen := make(map[string]struct{})
	var codes []string
	for _, token := range Tokenize(title) {
		code, ok := tokenToLanguage[token]
		if !ok {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes
}

// MatchesLanguages reports whether a title passes the user's language
// selection:
//   - no codes selected: everything passes;
//   - only "en" selected: any title carrying a non-English token is dropped;
//   - otherwise: a title passes if it carries a token of any selected
//     non-English code, or carries only English tokens while "en" is selected.
func MatchesLanguages(title string, selected []string) bool {
	if len(selected) == 0 {
		return true
	}

	detected := DetectLanguages(title)
	hasNonEnglish := false
	for _, code := range detected {
		if code != "en" {
			hasNonEnglish = true
			break
		}
	}

	wantsEnglish := false
	nonEnglishSelected := make(map[string]struct{})
	for _, code := range selected {
		code = strings.ToLower(strings.TrimSpace(code))
		if code == "en" {
			wantsEnglish = true
			continue
		}
		if code != "" {
			nonEnglishSelected[code] = struct{}{}
		}
	}

	// English-only mode: reject anything with a non-English marker.
	if wantsEnglish && len(nonEnglishSelected) == 0 {
		return !hasNonEnglish
	}

	for _, code := range detected {
		if _, ok := nonEnglishSelected[code]; ok {
			return true
		}
	}

	// No selected non-English token found: only acceptable when the title is
	// English-flavored and English is part of the selection.
	if wantsEnglish && !hasNonEnglish {
		return true
	}
	return false
}

// FilterByLanguages keeps the titles passing MatchesLanguages.
func FilterByLanguages(titles []string, selected []string) []string {
	if len(selected) == 0 {
		return titles
	}
	kept := make([]string, 0, len(titles))
	for _, title := range titles {
		if MatchesLanguages(title, selected) {
			kept = append(kept, title)
		}
	}
	return kept
}
