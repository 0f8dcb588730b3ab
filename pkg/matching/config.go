package matching

// MatchConfig carries the thresholds and signal weights for one match request.
// Values are read-only once constructed; callers pass it per call so a config
// change never affects an in-flight request.
type MatchConfig struct {
	// Routing thresholds
	AutoLinkThreshold    float64
	SuggestThreshold     float64
	ProvisionalThreshold float64

	// Company signal weights
	VerifiedDomainConfidence float64
	ExactNameConfidence      float64
	IdentifierURLConfidence  float64

	// Person signal weights
	EmailConfidence              float64
	PersonIdentifierConfidence   float64
	NameWithEmployerConfidence   float64
	NameWithEmailDomainConfidence float64
	NameOnlyConfidence           float64

	// Fuzzy name matching
	FuzzyMinSimilarity float64
	FuzzyDiscount      float64
	PrefixLength       int
	PrefixScanLimit    int
}

// DefaultMatchConfig returns the production defaults.
func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		AutoLinkThreshold:    0.95,
		SuggestThreshold:     0.70,
		ProvisionalThreshold: 0.50,

		VerifiedDomainConfidence: 0.95,
		ExactNameConfidence:      0.85,
		IdentifierURLConfidence:  0.90,

		EmailConfidence:               0.99,
		PersonIdentifierConfidence:    0.95,
		NameWithEmployerConfidence:    0.85,
		NameWithEmailDomainConfidence: 0.80,
		NameOnlyConfidence:            0.50,

		FuzzyMinSimilarity: 0.80,
		FuzzyDiscount:      0.75,
		PrefixLength:       4,
		PrefixScanLimit:    100,
	}
}
