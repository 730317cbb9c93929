package similarity

import (
	"strings"
	"unicode"
)

// Score returns the similarity between two titles as a value between 0.0 and
// 1.0, based on Levenshtein distance over normalized forms. Punctuation,
// case, and separator style (dots vs spaces) do not affect the result.
func Score(s1, s2 string) float64 {
	s1 = Normalize(s1)
	s2 = Normalize(s2)

	if s1 == s2 {
		return 1.0
	}
	if len(s1) == 0 || len(s2) == 0 {
		return 0.0
	}

	distance := levenshtein(s1, s2)
	maxLen := len(s1)
	if len(s2) > maxLen {
		maxLen = len(s2)
	}
	return 1.0 - float64(distance)/float64(maxLen)
}

// WordOverlap returns the fraction of words from the expected title that
// appear in the candidate title, between 0.0 and 1.0. Used for matching
// library file names against a requested title, where release names carry
// extra tokens (year, quality, group) that must not count against the match.
func WordOverlap(expected, candidate string) float64 {
	expectedWords := strings.Fields(Normalize(expected))
	if len(expectedWords) == 0 {
		return 0.0
	}
	candidateWords := make(map[string]struct{})
	for _, w := range strings.Fields(Normalize(candidate)) {
		candidateWords[w] = struct{}{}
	}
	matched := 0
	for _, w := range expectedWords {
		if _, ok := candidateWords[w]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(expectedWords))
}

// Normalize lowercases a title, converts "&" to "and", maps separator
// punctuation to spaces, strips everything else, and collapses whitespace.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "&", " and ")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '.' || r == '-' || r == '_' || r == ':':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func levenshtein(s1, s2 string) int {
	r1 := []rune(s1)
	r2 := []rune(s2)

	prev := make([]int, len(r2)+1)
	curr := make([]int, len(r2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(r1); i++ {
		curr[0] = i
		for j := 1; j <= len(r2); j++ {
			cost := 1
			if r1[i-1] == r2[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(r2)]
}

func minInt(values ...int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
