// Package util holds small string and shell helpers shared across herd.
package util

import (
	"sort"
	"strings"
)

// JoinOrNone joins items with ", ", or returns "(none)" when there are none.
func JoinOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}

// Pluralize returns singular if count is 1, otherwise plural.
func Pluralize(count int, singular, plural string) string {
	if count == 1 {
		return singular
	}
	return plural
}

// LevenshteinDistance is the case-sensitive edit distance between a and b.
func LevenshteinDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// SuggestSimilar returns the candidates that input plausibly misspells,
// closest first. A candidate qualifies when input is a prefix of it or when
// the case-insensitive edit distance is within half the input length, capped
// at maxDistance. Returns nil when nothing qualifies.
func SuggestSimilar(input string, candidates []string, maxDistance int) []string {
	if input == "" || len(candidates) == 0 {
		return nil
	}
	needle := strings.ToLower(input)
	limit := min(maxDistance, len(needle)/2)

	type scored struct {
		name string
		dist int
	}
	var hits []scored
	for _, c := range candidates {
		lc := strings.ToLower(c)
		d := LevenshteinDistance(needle, lc)
		if d <= limit || strings.HasPrefix(lc, needle) {
			hits = append(hits, scored{c, d})
		}
	}
	if len(hits) == 0 {
		return nil
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.name
	}
	return out
}

// DidYouMean formats a hint from SuggestSimilar, falling back to listing
// every candidate under label.
func DidYouMean(input string, candidates []string, label string) string {
	if similar := SuggestSimilar(input, candidates, 3); len(similar) > 0 {
		return "Did you mean: " + strings.Join(similar, ", ") + "?"
	}
	return label + ": " + JoinOrNone(candidates)
}
