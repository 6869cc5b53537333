package keyword

import (
	"strings"
)

// Sensitivity used when a rule does not configure one.
var DefaultFuzzySensitivity = 0.8

// Classic edit distance (insertions, deletions, substitutions) between two whole strings, counted in runes.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	// two rolling rows of the DP matrix
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

// Normalized similarity in [0,1]: 1 - distance/max(len). Two empty strings are identical (1); one empty string is dissimilar to anything else (0).
func Similarity(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	if la == 0 && lb == 0 {
		return 1
	}
	if la == 0 || lb == 0 {
		return 0
	}
	longest := max(la, lb)
	return float64(longest-Levenshtein(a, b)) / float64(longest)
}

// True if content contains keyword as a case-insensitive substring, or if the whole-string similarity of the two reaches sensitivity.
//
// A non-positive sensitivity means DefaultFuzzySensitivity. With sensitivity 1.0 this degenerates to the substring check.
func FuzzyMatch(content, keyword string, sensitivity float64) bool {
	if sensitivity <= 0 {
		sensitivity = DefaultFuzzySensitivity
	}
	c, k := Fold(content), Fold(keyword)
	if strings.Contains(c, k) {
		return true
	}
	return Similarity(c, k) >= sensitivity
}
