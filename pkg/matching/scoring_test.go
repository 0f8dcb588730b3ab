package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevenshteinDistance(t *testing.T) {
	scorer := NewScorer()

	tests := []struct {
		name     string
		a        string
		b        string
		expected int
	}{
		{name: "identical strings", a: "acme", b: "acme", expected: 0},
		{name: "both empty", a: "", b: "", expected: 0},
		{name: "empty against value", a: "", b: "acme", expected: 4},
		{name: "value against empty", a: "acme", b: "", expected: 4},
		{name: "single substitution", a: "acme", b: "akme", expected: 1},
		{name: "single insertion", a: "acme", b: "acmee", expected: 1},
		{name: "single deletion", a: "acme", b: "ace", expected: 1},
		{name: "kitten sitting", a: "kitten", b: "sitting", expected: 3},
		{name: "transposed letters", a: "acme corp", b: "acme crop", expected: 2},
		{name: "completely different", a: "abc", b: "xyz", expected: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, scorer.LevenshteinDistance(tt.a, tt.b))
		})
	}
}

func TestLevenshteinDistanceIsSymmetric(t *testing.T) {
	scorer := NewScorer()

	pairs := [][2]string{
		{"acme holdings", "acme"},
		{"jane smith", "jayne smith"},
		{"", "anything"},
		{"short", "a much longer string"},
	}

	for _, pair := range pairs {
		assert.Equal(t, scorer.LevenshteinDistance(pair[0], pair[1]), scorer.LevenshteinDistance(pair[1], pair[0]))
	}
}

func TestSimilarity(t *testing.T) {
	scorer := NewScorer()

	t.Run("should return 1 for identical strings", func(t *testing.T) {
		assert.Equal(t, 1.0, scorer.Similarity("acme solutions", "acme solutions"))
	})

	t.Run("should return 1 for two empty strings", func(t *testing.T) {
		assert.Equal(t, 1.0, scorer.Similarity("", ""))
	})

	t.Run("should return 0 when one side is empty", func(t *testing.T) {
		assert.Equal(t, 0.0, scorer.Similarity("acme", ""))
		assert.Equal(t, 0.0, scorer.Similarity("", "acme"))
	})

	t.Run("should scale distance by the longer string", func(t *testing.T) {
		// One edit across fourteen characters.
		assert.InDelta(t, 13.0/14.0, scorer.Similarity("acme solutions", "akme solutions"), 0.0001)
	})

	t.Run("should stay within zero and one", func(t *testing.T) {
		pairs := [][2]string{
			{"a", "zzzzzzzzzz"},
			{"acme", "acme"},
			{"abc", "xyz"},
			{"", "x"},
		}
		for _, pair := range pairs {
			similarity := scorer.Similarity(pair[0], pair[1])
			assert.GreaterOrEqual(t, similarity, 0.0)
			assert.LessOrEqual(t, similarity, 1.0)
		}
	})

	t.Run("should be symmetric", func(t *testing.T) {
		assert.Equal(t, scorer.Similarity("acme corp", "acme group"), scorer.Similarity("acme group", "acme corp"))
	})
}
