package chord

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// SuggestThreshold is the minimum Jaro-Winkler similarity for a suggestion.
const SuggestThreshold = 0.85

// Suggest returns the known chord name closest to name, for "did you mean"
// hints after a failed lookup. Comparison ignores case; an exact
// case-insensitive match always wins.
func Suggest(name string) (string, bool) {
	in := strings.ToLower(strings.TrimSpace(name))
	if in == "" {
		return "", false
	}

	var (
		best  string
		score float64
	)
	for _, n := range Names() {
		cand := strings.ToLower(n)
		if cand == in {
			return n, true
		}
		if s := matchr.JaroWinkler(in, cand, false); s > score {
			best, score = n, s
		}
	}
	if score < SuggestThreshold {
		return "", false
	}
	return best, true
}
