package matching

import (
	"sort"

	"github.com/Ramsey-B/clover/pkg/models"
)

// collectResult picks the winning entity from a pile of signals. Each entity
// keeps only its strongest signal as its confidence, and the entity with the
// highest confidence wins. Signals are returned sorted strongest first.
func collectResult(signals []models.MatchSignal) *models.MatchResult {
	if len(signals) == 0 {
		return &models.MatchResult{}
	}

	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].Confidence > signals[j].Confidence
	})

	best := signals[0]
	return &models.MatchResult{
		EntityID:   best.EntityID,
		Confidence: best.Confidence,
		Signals:    signals,
	}
}

// bestConfidence returns the highest confidence seen so far, or 0 when no
// signal has fired yet.
func bestConfidence(signals []models.MatchSignal) float64 {
	best := 0.0
	for _, signal := range signals {
		if signal.Confidence > best {
			best = signal.Confidence
		}
	}
	return best
}
