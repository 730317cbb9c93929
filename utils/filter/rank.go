package filter

import (
	"regexp"
	"sort"
	"strconv"

	"streamscout/models"
)

var (
	reSeasonCode  = regexp.MustCompile(`(?i)\bs(\d{1,2})(?:\s*-\s*s?(\d{1,2})|e\d{1,3}(?:-e?\d{1,3})?)?\b`)
	reSeasonWord  = regexp.MustCompile(`(?i)\bseasons?\s*(\d{1,2})(?:\s*-\s*(\d{1,2}))?\b`)
	reCompleteSet = regexp.MustCompile(`(?i)\b(complete|collection|integrale)\b`)
)

const (
	seasonExactBonus = 2
	seasonCoverBonus = 1
	seasonOldPenalty = -1
)

// SeasonScore scores how well a release title fits the requested season.
// Exact single-season matches beat season ranges covering the request;
// releases carrying only older seasons are penalized. Titles without season
// markers score zero.
func SeasonScore(title string, season int) int {
	if season <= 0 || title == "" {
		return 0
	}

	best := 0
	sawSeason := false
	allOlder := true

	score := func(from, to int) {
		sawSeason = true
		if to == 0 {
			to = from
		}
		if from <= season && season <= to {
			allOlder = false
			if from == season && to == season {
				if best < seasonExactBonus {
					best = seasonExactBonus
				}
			} else if best < seasonCoverBonus {
				best = seasonCoverBonus
			}
		} else if to > season {
			allOlder = false
		}
	}

	for _, m := range reSeasonCode.FindAllStringSubmatch(title, -1) {
		from, _ := strconv.Atoi(m[1])
		to := 0
		if m[2] != "" {
			to, _ = strconv.Atoi(m[2])
		}
		score(from, to)
	}
	for _, m := range reSeasonWord.FindAllStringSubmatch(title, -1) {
		from, _ := strconv.Atoi(m[1])
		to := 0
		if m[2] != "" {
			to, _ = strconv.Atoi(m[2])
		}
		score(from, to)
	}

	if best > 0 {
		return best
	}
	if sawSeason && allOlder {
		return seasonOldPenalty
	}
	if !sawSeason && reCompleteSet.MatchString(title) {
		// Complete-series packs cover every season.
		return seasonCoverBonus
	}
	return 0
}

// Rank orders candidates: resolution bucket first, then (for series) the
// season coverage score, then size descending, then seeders descending.
// The sort is stable so equal records keep their merge order.
func Rank(list []models.Candidate, season int) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if wa, wb := a.Quality().Weight(), b.Quality().Weight(); wa != wb {
			return wa > wb
		}
		if season > 0 {
			if sa, sb := SeasonScore(a.Title(), season), SeasonScore(b.Title(), season); sa != sb {
				return sa > sb
			}
		}
		if sa, sb := a.SizeBytes(), b.SizeBytes(); sa != sb {
			return sa > sb
		}
		return a.Seeders() > b.Seeders()
	})
}
