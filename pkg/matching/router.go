package matching

import (
	"github.com/Ramsey-B/clover/pkg/models"
)

// Route turns a scored match into the action the caller must take. The
// mapping is monotonic in confidence: raising a score can only move the
// outcome toward a stronger action.
func Route(result *models.MatchResult, cfg MatchConfig) *models.RoutedMatch {
	if result == nil || result.EntityID == "" {
		return &models.RoutedMatch{
			Action:    models.MatchActionCreateNew,
			MatchType: models.MatchTypeNoMatch,
		}
	}

	routed := &models.RoutedMatch{
		EntityID:   result.EntityID,
		Confidence: result.Confidence,
		Reasons:    winningReasons(result),
	}

	switch {
	case result.Confidence >= cfg.AutoLinkThreshold:
		routed.Action = models.MatchActionAutoLink
		routed.MatchType = models.MatchTypeExact
	case result.Confidence >= cfg.SuggestThreshold:
		routed.Action = models.MatchActionSuggestMerge
		routed.MatchType = models.MatchTypeHighConfidence
	case result.Confidence >= cfg.ProvisionalThreshold:
		routed.Action = models.MatchActionSaveProvisional
		routed.MatchType = models.MatchTypePossible
	default:
		// Too weak to link to anything. The caller creates a fresh record;
		// the reasons stay so the near miss can be explained.
		routed.Action = models.MatchActionCreateNew
		routed.MatchType = models.MatchTypeNoMatch
		routed.EntityID = ""
	}

	return routed
}

// winningReasons lists the winning entity's reasons, strongest first.
func winningReasons(result *models.MatchResult) []string {
	var reasons []string
	for _, signal := range result.Signals {
		if signal.EntityID == result.EntityID {
			reasons = append(reasons, signal.Reason)
		}
	}
	return reasons
}
