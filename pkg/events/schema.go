package events

import (
	"encoding/json"
	"time"
)

// EventType defines the type of event
type EventType string

const (
	// EventTypeEntityMerged is emitted after a merge transaction commits
	EventTypeEntityMerged EventType = "entity.merged"
	// EventTypeDuplicatesDetected is emitted when a scan run finishes
	EventTypeDuplicatesDetected EventType = "duplicates.detected"
	// EventTypeAutoMergeCompleted is emitted when an auto-merge run finishes
	EventTypeAutoMergeCompleted EventType = "automerge.completed"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Envelope is the wire format shared by every event this service emits.
type Envelope struct {
	ID            string          `json:"id"`
	EventType     EventType       `json:"event_type"`
	SchemaVersion string          `json:"schema_version"`
	TenantID      string          `json:"tenant_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

// EntityMergedPayload describes a completed merge.
type EntityMergedPayload struct {
	EntityKind  string   `json:"entity_kind"`
	SurvivorID  string   `json:"survivor_id"`
	AbsorbedIDs []string `json:"absorbed_ids"`
	AuditID     string   `json:"audit_id"`
	PerformedBy string   `json:"performed_by,omitempty"`
}

// DuplicatesDetectedPayload summarizes a scan run.
type DuplicatesDetectedPayload struct {
	RunID              string `json:"run_id"`
	CompaniesScanned   int    `json:"companies_scanned"`
	PeopleScanned      int    `json:"people_scanned"`
	PairsCompared      int    `json:"pairs_compared"`
	CandidatesFound    int    `json:"candidates_found"`
	CandidatesInserted int    `json:"candidates_inserted"`
}

// AutoMergeCompletedPayload summarizes an auto-merge policy run.
type AutoMergeCompletedPayload struct {
	RunID    string `json:"run_id"`
	Examined int    `json:"examined"`
	Merged   int    `json:"merged"`
	Skipped  int    `json:"skipped"`
	Errored  int    `json:"errored"`
	DryRun   bool   `json:"dry_run"`
}
