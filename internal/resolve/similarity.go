package resolve

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// FuzzyCutoff is the minimum similarity score for the last-resort global
// fuzzy match to accept a candidate.
const FuzzyCutoff = 0.6

// Similarity scores how alike two strings are, in [0, 1].
type Similarity interface {
	Score(a, b string) float64
}

// EditDistanceSimilarity scores strings by normalized Levenshtein distance.
type EditDistanceSimilarity struct{}

func (EditDistanceSimilarity) Score(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(longest)
}
