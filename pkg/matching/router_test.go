package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func TestRoute(t *testing.T) {
	cfg := DefaultMatchConfig()

	tests := []struct {
		name           string
		confidence     float64
		expectedAction models.MatchAction
		expectedType   models.MatchType
		expectEntity   bool
	}{
		{name: "at auto link threshold", confidence: 0.95, expectedAction: models.MatchActionAutoLink, expectedType: models.MatchTypeExact, expectEntity: true},
		{name: "above auto link threshold", confidence: 0.99, expectedAction: models.MatchActionAutoLink, expectedType: models.MatchTypeExact, expectEntity: true},
		{name: "just below auto link", confidence: 0.9499, expectedAction: models.MatchActionSuggestMerge, expectedType: models.MatchTypeHighConfidence, expectEntity: true},
		{name: "at suggest threshold", confidence: 0.70, expectedAction: models.MatchActionSuggestMerge, expectedType: models.MatchTypeHighConfidence, expectEntity: true},
		{name: "just below suggest", confidence: 0.6999, expectedAction: models.MatchActionSaveProvisional, expectedType: models.MatchTypePossible, expectEntity: true},
		{name: "at provisional threshold", confidence: 0.50, expectedAction: models.MatchActionSaveProvisional, expectedType: models.MatchTypePossible, expectEntity: true},
		{name: "just below provisional", confidence: 0.4999, expectedAction: models.MatchActionCreateNew, expectedType: models.MatchTypeNoMatch, expectEntity: false},
		{name: "zero confidence", confidence: 0, expectedAction: models.MatchActionCreateNew, expectedType: models.MatchTypeNoMatch, expectEntity: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			routed := Route(&models.MatchResult{
				EntityID:   "entity-1",
				Confidence: tt.confidence,
			}, cfg)

			assert.Equal(t, tt.expectedAction, routed.Action)
			assert.Equal(t, tt.expectedType, routed.MatchType)
			if tt.expectEntity {
				assert.Equal(t, "entity-1", routed.EntityID)
			} else {
				assert.Empty(t, routed.EntityID)
			}
		})
	}

	t.Run("should create new for a nil result", func(t *testing.T) {
		routed := Route(nil, cfg)
		assert.Equal(t, models.MatchActionCreateNew, routed.Action)
		assert.Equal(t, models.MatchTypeNoMatch, routed.MatchType)
	})

	t.Run("should create new when no entity matched", func(t *testing.T) {
		routed := Route(&models.MatchResult{}, cfg)
		assert.Equal(t, models.MatchActionCreateNew, routed.Action)
		assert.Empty(t, routed.EntityID)
	})

	t.Run("should keep only the winning entity's reasons, strongest first", func(t *testing.T) {
		routed := Route(&models.MatchResult{
			EntityID:   "entity-1",
			Confidence: 0.95,
			Signals: []models.MatchSignal{
				{EntityID: "entity-1", Confidence: 0.95, Reason: "owns verified domain"},
				{EntityID: "entity-1", Confidence: 0.85, Reason: "exact normalized name"},
				{EntityID: "entity-2", Confidence: 0.72, Reason: "name similarity"},
			},
		}, cfg)

		require.Equal(t, []string{"owns verified domain", "exact normalized name"}, routed.Reasons)
	})
}

func TestRouteIsMonotonic(t *testing.T) {
	cfg := DefaultMatchConfig()

	rank := func(action models.MatchAction) int {
		switch action {
		case models.MatchActionAutoLink:
			return 3
		case models.MatchActionSuggestMerge:
			return 2
		case models.MatchActionSaveProvisional:
			return 1
		default:
			return 0
		}
	}

	previous := -1
	for confidence := 0.0; confidence <= 1.0; confidence += 0.01 {
		routed := Route(&models.MatchResult{EntityID: "entity-1", Confidence: confidence}, cfg)
		current := rank(routed.Action)
		assert.GreaterOrEqual(t, current, previous, "action weakened as confidence rose to %.2f", confidence)
		previous = current
	}
}
