// Package matching scores inbound records against existing entities and
// routes the results by confidence.
package matching

// Scorer provides the string similarity used to score identity matches.
type Scorer struct{}

// NewScorer creates a new Scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Similarity returns 1.0 for equal strings (including both empty), otherwise
// 1 - distance/maxLen. Symmetric, always in [0, 1].
func (s *Scorer) Similarity(a, b string) float64 {
	distance := s.LevenshteinDistance(a, b)
	maxLen := max(len(a), len(b))
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(distance)/float64(maxLen)
}

// LevenshteinDistance calculates the edit distance between two strings
func (s *Scorer) LevenshteinDistance(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	// Two-row dynamic programming
	row := make([]int, len(b)+1)
	prevRow := make([]int, len(b)+1)

	for j := 0; j <= len(b); j++ {
		prevRow[j] = j
	}

	for i := 1; i <= len(a); i++ {
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			row[j] = min(min(row[j-1]+1, prevRow[j]+1), prevRow[j-1]+cost)
		}
		row, prevRow = prevRow, row
	}

	return prevRow[len(b)]
}
