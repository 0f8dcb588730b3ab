// Package models defines the typed records the service persists and serves.
package models

// EntityKind discriminates the two record types the engine resolves.
type EntityKind string

const (
	EntityKindCompany EntityKind = "company"
	EntityKindPerson  EntityKind = "person"
)

func (k EntityKind) Valid() bool {
	return k == EntityKindCompany || k == EntityKindPerson
}

// DataQuality grades how trustworthy a record's data is. Used to pick the
// survivor when two records merge automatically.
type DataQuality string

const (
	DataQualityVerified    DataQuality = "verified"
	DataQualityEnriched    DataQuality = "enriched"
	DataQualitySuggested   DataQuality = "suggested"
	DataQualityProvisional DataQuality = "provisional"
)

// Rank orders qualities for survivor selection. Higher wins.
func (q DataQuality) Rank() int {
	switch q {
	case DataQualityVerified:
		return 4
	case DataQualityEnriched:
		return 3
	case DataQualitySuggested:
		return 2
	case DataQualityProvisional:
		return 1
	default:
		return 0
	}
}
