package models

// MatchAction is the routed outcome of a match request.
type MatchAction string

const (
	// MatchActionAutoLink links the record to the matched entity without review
	MatchActionAutoLink MatchAction = "auto_link"
	// MatchActionSuggestMerge queues the match for human review
	MatchActionSuggestMerge MatchAction = "suggest_merge"
	// MatchActionSaveProvisional stores the link as provisional
	MatchActionSaveProvisional MatchAction = "save_provisional"
	// MatchActionCreateNew treats the record as a new entity
	MatchActionCreateNew MatchAction = "create_new"
)

// MatchType labels the strength band of the routed match.
type MatchType string

const (
	MatchTypeExact          MatchType = "exact"
	MatchTypeHighConfidence MatchType = "high_confidence"
	MatchTypePossible       MatchType = "possible"
	MatchTypeNoMatch        MatchType = "no_match"
)

// MatchSignal is one piece of evidence tying a record to an entity.
type MatchSignal struct {
	EntityID   string  `json:"entity_id"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// MatchResult is the best candidate found for a record before routing.
// EntityID is empty when nothing scored above zero.
type MatchResult struct {
	EntityID   string        `json:"entity_id,omitempty"`
	Confidence float64       `json:"confidence"`
	Signals    []MatchSignal `json:"signals,omitempty"`
}

// RoutedMatch is the final answer for a match request: the action to take,
// the matched entity if any, and the evidence in strongest-first order.
type RoutedMatch struct {
	Action     MatchAction `json:"action"`
	MatchType  MatchType   `json:"match_type"`
	EntityID   string      `json:"entity_id,omitempty"`
	Confidence float64     `json:"confidence"`
	Reasons    []string    `json:"reasons,omitempty"`
}
