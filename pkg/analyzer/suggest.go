package analyzer

import "github.com/agext/levenshtein"

// suggestThreshold bounds how dissimilar a candidate may be from the typo'd
// name before it's no longer worth suggesting.
const suggestThreshold = 0.6

// maxSuggestDistance is the edit distance within which the most similar
// candidate is suggested even when it falls short of suggestThreshold.
const maxSuggestDistance = 2

// suggest returns the candidate most similar to name by normalized
// Levenshtein similarity, or "" if it neither clears suggestThreshold nor
// lies within maxSuggestDistance edits of name.
func suggest(name string, candidates []string) string {
	best := ""
	bestScore := 0.0
	for _, c := range candidates {
		score := levenshtein.Similarity(name, c, nil)
		if score > bestScore {
			bestScore = score
			best = c
		}
	}
	if best == "" || (bestScore < suggestThreshold && levenshtein.Distance(name, best, nil) > maxSuggestDistance) {
		return ""
	}
	return best
}
